package policy

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/pithecene-io/framewire/log"
	"github.com/pithecene-io/framewire/types"
)

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// MaxBufferFrames is the maximum number of frames to buffer.
	// Zero means no count limit.
	MaxBufferFrames int

	// MaxBufferBytes is the maximum buffer size in bytes (estimated).
	// Zero means no byte limit. At least one limit must be set.
	MaxBufferBytes int64

	// Logger is an optional logger for policy observability.
	Logger *log.Logger
}

// DefaultBufferedConfig returns defaults for the buffered policy.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{
		MaxBufferFrames: 1000,
		MaxBufferBytes:  1024 * 1024,
	}
}

var (
	// ErrBufferFull is returned when the buffer is full and the incoming
	// frame may not be dropped.
	ErrBufferFull = errors.New("buffer full: cannot accept data frame")

	// ErrInvalidConfig is returned when BufferedConfig sets no limit.
	ErrInvalidConfig = errors.New("invalid config: at least one of MaxBufferFrames or MaxBufferBytes must be set")
)

// BufferedPolicy batches frames behind a bounded buffer.
//
//   - Bounded buffer with explicit limits
//   - May drop aborted frames when full, never data frames
//   - Batch writes on Flush, in ingest order
//   - A failed flush keeps the buffer for the next attempt
type BufferedPolicy struct {
	sink   Sink
	config BufferedConfig
	logger *log.Logger

	mu          sync.Mutex // guards buffer state and stats
	buffer      []*types.FrameEvent
	bufferBytes int64
	stats       *statsRecorder
}

// NewBufferedPolicy creates a buffered policy.
func NewBufferedPolicy(sink Sink, config BufferedConfig) (*BufferedPolicy, error) {
	if config.MaxBufferFrames <= 0 && config.MaxBufferBytes <= 0 {
		return nil, ErrInvalidConfig
	}

	return &BufferedPolicy{
		sink:   sink,
		config: config,
		logger: config.Logger,
		buffer: make([]*types.FrameEvent, 0, min(max(config.MaxBufferFrames, 64), 1024)),
		stats:  newStatsRecorder(),
	}, nil
}

// IngestFrame buffers the frame, applying drop rules if the buffer is full.
//
// Drop strategy when full:
//   - Incoming aborted frame: drop it
//   - Incoming data frame with aborted frames buffered: evict the oldest
//     aborted frames until it fits
//   - Otherwise: ErrBufferFull
func (p *BufferedPolicy) IngestFrame(_ context.Context, frame *types.FrameEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.incTotalFramesLocked()
	size := frame.Size()

	if p.hasRoom(size) {
		p.appendFrame(frame, size)
		return nil
	}

	if frame.Kind.IsDroppable() {
		p.stats.incDroppedLocked(frame.Kind)
		p.logDrop(frame, "buffer_full")
		return nil
	}

	for p.dropOldestDroppable() {
		if p.hasRoom(size) {
			p.appendFrame(frame, size)
			return nil
		}
	}

	p.stats.incErrorsLocked()
	p.logBufferOverflow(frame)
	return ErrBufferFull
}

// appendFrame adds a frame to the buffer. Caller must hold mu.
func (p *BufferedPolicy) appendFrame(frame *types.FrameEvent, size int64) {
	p.buffer = append(p.buffer, frame)
	p.bufferBytes += size
	p.stats.setBufferSizeLocked(p.bufferBytes)
}

// Flush writes every buffered frame as one batch. The buffer is cleared
// only after the sink accepts it; frames ingested during the write are
// kept behind the written batch.
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	p.mu.Lock()
	p.stats.incFlushLocked()
	batch := slices.Clone(p.buffer)
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := p.sink.WriteFrames(ctx, batch); err != nil {
		p.mu.Lock()
		p.stats.incErrorsLocked()
		p.mu.Unlock()
		p.logFlushFailure(len(batch), err)
		return err
	}

	p.mu.Lock()
	p.stats.incDeliveredLocked(int64(len(batch)))
	p.removeDelivered(batch)
	p.mu.Unlock()

	return nil
}

// removeDelivered drops the written batch from the front of the buffer.
// Eviction during the write may have removed some of its aborted frames
// already, so frames are matched by identity. Caller must hold mu.
func (p *BufferedPolicy) removeDelivered(batch []*types.FrameEvent) {
	delivered := make(map[*types.FrameEvent]struct{}, len(batch))
	for _, f := range batch {
		delivered[f] = struct{}{}
	}
	p.buffer = slices.DeleteFunc(p.buffer, func(f *types.FrameEvent) bool {
		_, ok := delivered[f]
		return ok
	})
	p.recalculateBufferBytes()
}

// recalculateBufferBytes recomputes bufferBytes. Caller must hold mu.
func (p *BufferedPolicy) recalculateBufferBytes() {
	var total int64
	for _, f := range p.buffer {
		total += f.Size()
	}
	p.bufferBytes = total
	p.stats.setBufferSizeLocked(p.bufferBytes)
}

// Close flushes remaining frames and closes the sink.
func (p *BufferedPolicy) Close() error {
	_ = p.Flush(context.Background())
	return p.sink.Close()
}

// Stats returns policy statistics. The buffer mutex is held while the
// snapshot is taken so counters and buffer size agree.
func (p *BufferedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stats.snapshotLocked(p.bufferBytes)
}

// Buffered returns the number of frames waiting for a flush.
func (p *BufferedPolicy) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.buffer)
}

// hasRoom reports whether a frame of the given size fits. Caller must hold mu.
func (p *BufferedPolicy) hasRoom(size int64) bool {
	if p.config.MaxBufferFrames > 0 && len(p.buffer) >= p.config.MaxBufferFrames {
		return false
	}
	if p.config.MaxBufferBytes > 0 && p.bufferBytes+size > p.config.MaxBufferBytes {
		return false
	}
	return true
}

// dropOldestDroppable evicts the oldest aborted frame. Returns false if the
// buffer holds none. Caller must hold mu.
func (p *BufferedPolicy) dropOldestDroppable() bool {
	i := slices.IndexFunc(p.buffer, func(f *types.FrameEvent) bool {
		return f.Kind.IsDroppable()
	})
	if i < 0 {
		return false
	}

	frame := p.buffer[i]
	p.buffer = slices.Delete(p.buffer, i, i+1)
	p.bufferBytes -= frame.Size()
	p.stats.setBufferSizeLocked(p.bufferBytes)
	p.stats.incDroppedLocked(frame.Kind)
	p.logDrop(frame, "evicted_for_data_frame")
	return true
}

// --- Logging helpers ---

func (p *BufferedPolicy) logDrop(frame *types.FrameEvent, reason string) {
	if p.logger == nil {
		return
	}
	p.logger.Warn("frame dropped", map[string]any{
		"kind":   string(frame.Kind),
		"seq":    frame.Seq,
		"reason": reason,
		"policy": "buffered",
	})
}

func (p *BufferedPolicy) logBufferOverflow(frame *types.FrameEvent) {
	if p.logger == nil {
		return
	}
	p.logger.Error("buffer overflow", map[string]any{
		"kind":   string(frame.Kind),
		"seq":    frame.Seq,
		"policy": "buffered",
	})
}

func (p *BufferedPolicy) logFlushFailure(frames int, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("flush failed", map[string]any{
		"frames": frames,
		"error":  err.Error(),
		"policy": "buffered",
	})
}

var _ Policy = (*BufferedPolicy)(nil)
