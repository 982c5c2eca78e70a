package decode

import (
	"context"
	"errors"

	"github.com/pithecene-io/framewire/bufchain"
	"github.com/pithecene-io/framewire/log"
	"github.com/pithecene-io/framewire/metrics"
)

// Stream drives a Decoder over a chunked byte stream.
//
// Stream is not safe for concurrent use: exactly one goroutine may call
// Accept, Drain or Reset at a time.
type Stream[T any] struct {
	decoder Decoder[T]
	sink    Sink[T]
	chain   *bufchain.Chain

	name      string
	logger    *log.Logger
	collector *metrics.Collector

	// failed latches the first decoder failure until Reset.
	failed *Error
}

type options struct {
	name      string
	logger    *log.Logger
	collector *metrics.Collector
}

// Option configures a Stream.
type Option func(*options)

// WithName sets the stream name used in errors and log entries.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCollector sets the metrics collector. A nil collector is allowed.
func WithCollector(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// NewStream creates a stream driving d and forwarding messages to sink.
func NewStream[T any](d Decoder[T], sink Sink[T], opts ...Option) *Stream[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewNop()
	}
	return &Stream[T]{
		decoder:   d,
		sink:      sink,
		chain:     bufchain.New(),
		name:      o.name,
		logger:    o.logger,
		collector: o.collector,
	}
}

// Accept appends chunk to the buffered bytes and emits every message that
// is now complete, in stream order.
//
// A decoder failure stops the loop and returns an *Error. Unless the
// underlying error implements IsFatal and reports false, the stream then
// refuses input until Reset. After a non-fatal failure, Drain resumes with
// the bytes that follow.
//
// A zero-length chunk is allowed and only re-runs the decode loop.
// The chunk is retained until consumed and must not be modified afterwards.
func (s *Stream[T]) Accept(ctx context.Context, chunk []byte) error {
	if s.failed != nil {
		return s.failed
	}
	s.chain.Append(chunk)
	s.collector.AddChunk(len(chunk))
	return s.run(ctx)
}

// Drain re-runs the decode loop over the bytes already buffered. Use it to
// resume after an EmitError without waiting for the next chunk.
func (s *Stream[T]) Drain(ctx context.Context) error {
	if s.failed != nil {
		return s.failed
	}
	return s.run(ctx)
}

// Reset discards buffered bytes, reinitializes the decoder if it implements
// Resetter and clears a latched failure.
func (s *Stream[T]) Reset() {
	s.chain.Reset()
	if r, ok := s.decoder.(Resetter); ok {
		r.Reset()
	}
	s.failed = nil
}

// Buffered returns the number of bytes accepted but not yet consumed by the
// decoder.
func (s *Stream[T]) Buffered() int {
	return s.chain.Remaining()
}

// Name returns the stream name.
func (s *Stream[T]) Name() string {
	return s.name
}

// run loops the decoder until it needs more input, fails, or the sink
// rejects a message.
func (s *Stream[T]) run(ctx context.Context) error {
	for {
		out := s.decoder.Decode(s.chain)
		switch out.Kind {
		case Decoded:
			if isAborted(out.Message) {
				s.collector.IncFramesAborted()
			} else {
				s.collector.IncFramesDecoded()
			}
			if err := s.sink.Emit(ctx, out.Message); err != nil {
				s.collector.IncEmitFailures()
				s.logger.Warn("sink rejected message", map[string]any{
					"stream":   s.name,
					"buffered": s.chain.Remaining(),
					"error":    err.Error(),
				})
				return &EmitError{Stream: s.name, Message: out.Message, Err: err}
			}
		case Ignored:
			s.collector.IncFramesIgnored()
		case Failed:
			err := out.Err
			if err == nil {
				err = errUnspecified
			}
			s.collector.IncDecodeFailures()
			decErr := &Error{Stream: s.name, Err: err}
			fatal := isFatal(err)
			if fatal {
				s.failed = decErr
			}
			s.logger.Error("decoder failed", map[string]any{
				"stream": s.name,
				"fatal":  fatal,
				"error":  err.Error(),
			})
			return decErr
		default:
			return nil
		}
	}
}

// isFatal reports whether err leaves the stream unusable. Errors may opt out
// by implementing IsFatal.
func isFatal(err error) bool {
	var f interface{ IsFatal() bool }
	if errors.As(err, &f) {
		return f.IsFatal()
	}
	return true
}

func isAborted(msg any) bool {
	a, ok := msg.(interface{ Aborted() bool })
	return ok && a.Aborted()
}
