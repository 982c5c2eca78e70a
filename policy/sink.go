package policy

import (
	"context"
	"sync"

	"github.com/pithecene-io/framewire/types"
)

// Sink is where a policy delivers frames: a publisher adapter, a renderer,
// or a stub in tests.
type Sink interface {
	// WriteFrames delivers a batch of frames, preserving batch order.
	// The caller decides whether to retry or fail.
	WriteFrames(ctx context.Context, frames []*types.FrameEvent) error

	// Close releases any resources held by the sink.
	Close() error
}

// SinkFunc adapts a function to a Sink with a no-op Close.
type SinkFunc func(ctx context.Context, frames []*types.FrameEvent) error

// WriteFrames calls f.
func (f SinkFunc) WriteFrames(ctx context.Context, frames []*types.FrameEvent) error {
	return f(ctx, frames)
}

// Close does nothing.
func (SinkFunc) Close() error { return nil }

// StubSink records writes in memory for test assertions.
type StubSink struct {
	mu sync.Mutex

	// FramesWritten is the total count of frames written.
	FramesWritten int64
	// Batches is the number of WriteFrames calls that succeeded.
	Batches int64
	// Closed indicates whether Close was called.
	Closed bool

	// Written stores every written frame.
	Written []*types.FrameEvent
	// BatchSizes records the size of each successful batch, in order.
	BatchSizes []int

	// ErrorOnWrite, if non-nil, is returned by WriteFrames.
	ErrorOnWrite error
}

// NewStubSink creates an empty StubSink.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// WriteFrames records the frames.
func (s *StubSink) WriteFrames(_ context.Context, frames []*types.FrameEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}

	s.Batches++
	s.FramesWritten += int64(len(frames))
	s.Written = append(s.Written, frames...)
	s.BatchSizes = append(s.BatchSizes, len(frames))
	return nil
}

// SetError sets ErrorOnWrite under the sink's lock.
func (s *StubSink) SetError(err error) {
	s.mu.Lock()
	s.ErrorOnWrite = err
	s.mu.Unlock()
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Closed = true
	return nil
}

// Seqs returns the sequence numbers of the written frames in order.
func (s *StubSink) Seqs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int64, len(s.Written))
	for i, f := range s.Written {
		out[i] = f.Seq
	}
	return out
}

// Stats returns a snapshot of sink statistics.
func (s *StubSink) Stats() StubSinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StubSinkStats{
		FramesWritten: s.FramesWritten,
		Batches:       s.Batches,
		Closed:        s.Closed,
	}
}

// StubSinkStats is a snapshot of StubSink statistics.
type StubSinkStats struct {
	FramesWritten int64
	Batches       int64
	Closed        bool
}
