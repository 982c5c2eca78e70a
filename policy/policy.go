// Package policy decides how decoded frames reach a downstream Sink:
// immediately, batched behind a bounded buffer, or batched on a schedule.
package policy

import (
	"context"
	"maps"
	"sync"

	"github.com/pithecene-io/framewire/types"
)

// Policy controls buffering, dropping and delivery of frame events.
//
// Rules shared by every policy:
//   - Only aborted frames may be dropped
//   - Frames are delivered in the order they were ingested
//   - A policy never alters a frame event
//   - An ingest error stops the pipeline
type Policy interface {
	// IngestFrame handles one frame event.
	IngestFrame(ctx context.Context, frame *types.FrameEvent) error

	// Flush delivers any buffered frames.
	Flush(ctx context.Context) error

	// Close releases policy resources and closes the sink.
	Close() error

	// Stats returns a consistent snapshot of policy counters.
	Stats() Stats
}

// Stats are policy observability counters.
type Stats struct {
	// TotalFrames is the number of frames ingested.
	TotalFrames int64
	// FramesDelivered is the number of frames written to the sink.
	FramesDelivered int64
	// FramesDropped is the number of frames dropped.
	FramesDropped int64
	// DroppedByKind maps frame kinds to drop counts.
	DroppedByKind map[types.FrameKind]int64
	// BufferSize is the current buffer size in bytes (if buffered).
	BufferSize int64
	// FlushCount is the number of flush operations.
	FlushCount int64
	// Errors is the count of sink and overflow errors.
	Errors int64
}

// DroppedByKindStrings returns DroppedByKind keyed by plain strings, the
// shape metrics.Collector.AbsorbPolicyStats takes.
func (s Stats) DroppedByKindStrings() map[string]int64 {
	out := make(map[string]int64, len(s.DroppedByKind))
	for k, v := range s.DroppedByKind {
		out[string(k)] = v
	}
	return out
}

// statsRecorder holds Stats behind its own mutex.
//
// Lock discipline:
//   - StrictPolicy and NoopPolicy use the locking methods
//   - BufferedPolicy and StreamingPolicy use the Locked methods while holding
//     their own mu, keeping buffer state and counters consistent
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{
		stats: Stats{
			DroppedByKind: make(map[types.FrameKind]int64),
		},
	}
}

func (r *statsRecorder) incTotalFrames() {
	r.mu.Lock()
	r.stats.TotalFrames++
	r.mu.Unlock()
}

func (r *statsRecorder) incDelivered(n int64) {
	r.mu.Lock()
	r.stats.FramesDelivered += n
	r.mu.Unlock()
}

func (r *statsRecorder) incDropped(kind types.FrameKind) {
	r.mu.Lock()
	r.stats.FramesDropped++
	r.stats.DroppedByKind[kind]++
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(r.stats.BufferSize)
}

// --- Locked methods ---
// Caller must hold the owning policy's mu.

func (r *statsRecorder) incTotalFramesLocked() {
	r.stats.TotalFrames++
}

func (r *statsRecorder) incDeliveredLocked(n int64) {
	r.stats.FramesDelivered += n
}

func (r *statsRecorder) incDroppedLocked(kind types.FrameKind) {
	r.stats.FramesDropped++
	r.stats.DroppedByKind[kind]++
}

func (r *statsRecorder) incErrorsLocked() {
	r.stats.Errors++
}

func (r *statsRecorder) incFlushLocked() {
	r.stats.FlushCount++
}

func (r *statsRecorder) setBufferSizeLocked(bytes int64) {
	r.stats.BufferSize = bytes
}

func (r *statsRecorder) snapshotLocked(bufferSize int64) Stats {
	s := r.stats
	s.BufferSize = bufferSize
	s.DroppedByKind = maps.Clone(r.stats.DroppedByKind)
	return s
}
