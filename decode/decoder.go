package decode

import (
	"context"

	"github.com/pithecene-io/framewire/bufchain"
)

// Decoder is a framing algorithm driven by Stream.
//
// Decode consumes bytes from c and reports what happened. Implementations
// keep their framing state between calls so that a message may span any
// number of chunks.
type Decoder[T any] interface {
	Decode(c bufchain.Cursor) Outcome[T]
}

// Resetter is implemented by decoders whose framing state can be
// reinitialized mid-stream.
type Resetter interface {
	Reset()
}

// DecoderFunc adapts a stateless function to the Decoder interface.
type DecoderFunc[T any] func(c bufchain.Cursor) Outcome[T]

// Decode calls f(c).
func (f DecoderFunc[T]) Decode(c bufchain.Cursor) Outcome[T] {
	return f(c)
}

// Sink receives decoded messages in stream order.
// Emit may block; that is the driver's only suspension point.
type Sink[T any] interface {
	Emit(ctx context.Context, msg T) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc[T any] func(ctx context.Context, msg T) error

// Emit calls f(ctx, msg).
func (f SinkFunc[T]) Emit(ctx context.Context, msg T) error {
	return f(ctx, msg)
}

// Collect is a Sink that appends every message to Messages.
type Collect[T any] struct {
	Messages []T
}

// Emit appends msg.
func (c *Collect[T]) Emit(_ context.Context, msg T) error {
	c.Messages = append(c.Messages, msg)
	return nil
}

// Take returns the collected messages and clears the collector.
func (c *Collect[T]) Take() []T {
	msgs := c.Messages
	c.Messages = nil
	return msgs
}
