package policy

import (
	"context"

	"github.com/pithecene-io/framewire/types"
)

// StrictPolicy delivers each frame synchronously as it is ingested.
//
//   - No buffering: each frame is a batch of one
//   - No drops
//   - Backpressure: the caller blocks on sink latency
//   - Sink errors fail the pipeline
type StrictPolicy struct {
	sink  Sink
	stats *statsRecorder
}

// NewStrictPolicy creates a strict policy writing to sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{
		sink:  sink,
		stats: newStatsRecorder(),
	}
}

// IngestFrame writes frame to the sink immediately.
func (p *StrictPolicy) IngestFrame(ctx context.Context, frame *types.FrameEvent) error {
	p.stats.incTotalFrames()

	if err := p.sink.WriteFrames(ctx, []*types.FrameEvent{frame}); err != nil {
		p.stats.incErrors()
		return err
	}

	p.stats.incDelivered(1)
	return nil
}

// Flush is a no-op; nothing is buffered.
func (p *StrictPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close closes the sink.
func (p *StrictPolicy) Close() error {
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}

var _ Policy = (*StrictPolicy)(nil)
