package pipeline

import "errors"

// ErrorKind classifies pipeline errors.
type ErrorKind int

const (
	// ErrorTransport indicates the byte source failed.
	ErrorTransport ErrorKind = iota
	// ErrorPolicy indicates the policy rejected a frame or failed to flush.
	ErrorPolicy
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorTransport:
		return "transport"
	case ErrorPolicy:
		return "policy"
	default:
		return "unknown"
	}
}

// Error is returned by Run and Process.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is a source failure.
func IsTransportError(err error) bool {
	var pErr *Error
	return errors.As(err, &pErr) && pErr.Kind == ErrorTransport
}

// IsPolicyError reports whether err is a policy failure.
func IsPolicyError(err error) bool {
	var pErr *Error
	return errors.As(err, &pErr) && pErr.Kind == ErrorPolicy
}
