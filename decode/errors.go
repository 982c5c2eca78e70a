package decode

import (
	"errors"
	"fmt"
)

// ErrFrameTooLarge is reported by Delimited when a frame payload grows past
// the configured maximum size.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// FrameSizeError reports a frame abandoned by Delimited for exceeding its
// maximum size. It matches ErrFrameTooLarge and is not fatal: the decoder
// has already dropped the frame and resumes at the next start delimiter.
type FrameSizeError struct {
	Size int
	Max  int
}

func (e *FrameSizeError) Error() string {
	return fmt.Sprintf("%v: %d > %d bytes", ErrFrameTooLarge, e.Size, e.Max)
}

func (e *FrameSizeError) Unwrap() error {
	return ErrFrameTooLarge
}

// IsFatal reports false; the stream stays usable.
func (e *FrameSizeError) IsFatal() bool {
	return false
}

// IsFatal reports whether err leaves a Stream latched until Reset. Errors
// opt out by implementing IsFatal() bool.
func IsFatal(err error) bool {
	return isFatal(err)
}

// errUnspecified stands in for a Failed outcome carrying no error.
var errUnspecified = errors.New("unspecified decoder failure")

// Error is returned by Stream when its decoder reports Failed.
type Error struct {
	Stream string
	Err    error
}

func (e *Error) Error() string {
	if e.Stream == "" {
		return fmt.Sprintf("decode failed: %v", e.Err)
	}
	return fmt.Sprintf("decode failed on stream %q: %v", e.Stream, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// EmitError is returned by Stream when the sink rejects a message.
//
// The decoder state was committed before the emit, and the bytes following
// the rejected message are still buffered: Drain or the next Accept resumes
// with the next message.
type EmitError struct {
	Stream  string
	Message any
	Err     error
}

func (e *EmitError) Error() string {
	if e.Stream == "" {
		return fmt.Sprintf("emit failed: %v", e.Err)
	}
	return fmt.Sprintf("emit failed on stream %q: %v", e.Stream, e.Err)
}

func (e *EmitError) Unwrap() error {
	return e.Err
}

// IsEmitError reports whether err is or wraps an *EmitError.
func IsEmitError(err error) bool {
	var e *EmitError
	return errors.As(err, &e)
}
