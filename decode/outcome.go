// Package decode implements incremental, chunk-agnostic stream decoding.
//
// A Decoder inspects the bytes currently buffered in a bufchain.Cursor and
// reports one Outcome per call. The Stream driver owns the chain, feeds it
// with incoming chunks and re-invokes the decoder until it reports that more
// input is needed, forwarding every decoded message to a Sink.
//
// Decoders never block and never wait for input: each call terminates in
// time bounded by the number of bytes currently available.
package decode

import "fmt"

// Kind discriminates decode outcomes.
type Kind uint8

// Outcome kinds.
const (
	// Empty means the cursor was exhausted without a frame in progress.
	Empty Kind = iota
	// Partial means bytes were consumed and a message is still in progress.
	Partial
	// Ignored means bytes were consumed and discarded; decode again.
	Ignored
	// Decoded means one message was produced; decode again for more.
	Decoded
	// Failed means the decoder hit an unrecoverable condition.
	Failed
)

// String returns the outcome kind name.
func (k Kind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Partial:
		return "partial"
	case Ignored:
		return "ignored"
	case Decoded:
		return "decoded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Outcome is the result of a single decode step.
// Message is set only for Decoded, Err only for Failed.
type Outcome[T any] struct {
	Kind    Kind
	Message T
	Err     error
}

// Signal returns a message-less outcome of kind k.
func Signal[T any](k Kind) Outcome[T] {
	return Outcome[T]{Kind: k}
}

// Message returns a Decoded outcome carrying msg.
func Message[T any](msg T) Outcome[T] {
	return Outcome[T]{Kind: Decoded, Message: msg}
}

// Fail returns a Failed outcome carrying err.
func Fail[T any](err error) Outcome[T] {
	return Outcome[T]{Kind: Failed, Err: err}
}

// NeedsInput reports whether the driver must wait for more bytes before
// invoking the decoder again.
func (o Outcome[T]) NeedsInput() bool {
	return o.Kind == Empty || o.Kind == Partial
}
