// Package lenprefix implements length-prefixed framing behind the
// decode.Decoder contract.
//
// A frame is a 4-byte big-endian payload length followed by the payload.
// Unlike delimiter framing, a corrupt length cannot be resynchronized, so an
// oversized length is reported as a fatal Failed outcome.
package lenprefix

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/framewire/bufchain"
	"github.com/pithecene-io/framewire/decode"
)

// Frame size constants.
const (
	// MaxFrameSize is the default maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the default maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorTooLarge indicates a length prefix exceeding the maximum payload size.
	FrameErrorTooLarge FrameErrorKind = iota
	// FrameErrorDecode indicates a payload the finalize function rejected.
	FrameErrorDecode
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether the stream can no longer be framed.
// An oversized length is fatal; a payload decode error is not, since the
// next frame boundary is still known.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// Decoder frames length-prefixed payloads.
type Decoder[T any] struct {
	finalize   func(payload []byte) (T, error)
	maxPayload uint32

	header  [LengthPrefixSize]byte
	headerN int
	size    uint32
	inFrame bool
	buf     []byte
}

// New creates a decoder passing each payload to finalize.
func New[T any](finalize func(payload []byte) (T, error)) *Decoder[T] {
	return &Decoder[T]{finalize: finalize, maxPayload: MaxPayloadSize}
}

// NewRaw creates a decoder emitting raw payloads.
func NewRaw() *Decoder[[]byte] {
	return New(func(p []byte) ([]byte, error) { return p, nil })
}

// NewMsgpack creates a decoder emitting msgpack-decoded payloads.
func NewMsgpack() *Decoder[map[string]any] {
	return New(DecodeMsgpack)
}

// WithMaxPayloadSize overrides the maximum payload size.
func (d *Decoder[T]) WithMaxPayloadSize(n uint32) *Decoder[T] {
	d.maxPayload = n
	return d
}

// Reset drops any partially read frame.
func (d *Decoder[T]) Reset() {
	d.headerN = 0
	d.size = 0
	d.inFrame = false
	d.buf = nil
}

// Decode implements decode.Decoder.
func (d *Decoder[T]) Decode(c bufchain.Cursor) decode.Outcome[T] {
	if !d.inFrame {
		if d.headerN == 0 && !c.HasRemaining() {
			return decode.Signal[T](decode.Empty)
		}
		for d.headerN < LengthPrefixSize && c.HasRemaining() {
			d.header[d.headerN] = c.NextByte()
			d.headerN++
		}
		if d.headerN < LengthPrefixSize {
			return decode.Signal[T](decode.Partial)
		}

		size := binary.BigEndian.Uint32(d.header[:])
		d.headerN = 0
		if size > d.maxPayload {
			return decode.Fail[T](&FrameError{
				Kind: FrameErrorTooLarge,
				Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", size, d.maxPayload),
			})
		}
		if size == 0 {
			return decode.Signal[T](decode.Ignored)
		}
		d.size = size
		d.inFrame = true
		d.buf = make([]byte, 0, size)
	}

	for uint32(len(d.buf)) < d.size && c.HasRemaining() {
		d.buf = append(d.buf, c.NextByte())
	}
	if uint32(len(d.buf)) < d.size {
		return decode.Signal[T](decode.Partial)
	}

	payload := d.buf
	d.Reset()

	msg, err := d.finalize(payload)
	if err != nil {
		return decode.Fail[T](&FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode payload",
			Err:  err,
		})
	}
	return decode.Message(msg)
}

// Encode prepends the 4-byte big-endian length to payload.
func Encode(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}

// DecodeMsgpack decodes a msgpack map payload.
func DecodeMsgpack(payload []byte) (map[string]any, error) {
	var fields map[string]any
	if err := msgpack.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

var _ decode.Decoder[[]byte] = (*Decoder[[]byte])(nil)
