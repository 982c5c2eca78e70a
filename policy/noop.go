package policy

import (
	"context"

	"github.com/pithecene-io/framewire/types"
)

// NoopPolicy accepts frames without delivering them.
//
// Stats keep the drop semantics of the other policies: aborted frames count
// as dropped, data frames count as delivered.
type NoopPolicy struct {
	stats *statsRecorder
}

// NewNoopPolicy creates a no-op policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{stats: newStatsRecorder()}
}

// IngestFrame counts the frame.
func (p *NoopPolicy) IngestFrame(_ context.Context, frame *types.FrameEvent) error {
	p.stats.incTotalFrames()
	if frame.Kind.IsDroppable() {
		p.stats.incDropped(frame.Kind)
	} else {
		p.stats.incDelivered(1)
	}
	return nil
}

// Flush is a no-op.
func (p *NoopPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close is a no-op.
func (p *NoopPolicy) Close() error {
	return nil
}

// Stats returns policy statistics.
func (p *NoopPolicy) Stats() Stats {
	return p.stats.snapshot()
}

var _ Policy = (*NoopPolicy)(nil)
