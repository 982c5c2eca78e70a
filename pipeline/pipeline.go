// Package pipeline wires a byte source through a KISS decoding stream into a
// delivery policy.
//
// Each chunk received from the source is accepted by a decode.Stream. Every
// decoded or aborted KISS frame becomes a types.FrameEvent with a monotonic
// sequence number and is handed to the policy, which delivers it downstream.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/framewire/decode"
	"github.com/pithecene-io/framewire/decode/kiss"
	"github.com/pithecene-io/framewire/log"
	"github.com/pithecene-io/framewire/metrics"
	"github.com/pithecene-io/framewire/policy"
	"github.com/pithecene-io/framewire/port"
	"github.com/pithecene-io/framewire/types"
)

// flushTimeout bounds the final policy flush once the run context is done.
const flushTimeout = 10 * time.Second

// ErrSourceClosed is returned by Process when the source disconnected
// cleanly and no more chunks will arrive.
var ErrSourceClosed = errors.New("source closed")

// Config configures a Pipeline.
type Config struct {
	// Source supplies byte chunks (required).
	Source port.Receiver[[]byte]
	// Meta names the stream (required).
	Meta *types.StreamMeta
	// Markers are the KISS marker bytes. The zero value selects
	// kiss.DefaultMarkers.
	Markers kiss.Markers
	// MaxFrameSize bounds a decoded frame payload. Zero means unbounded.
	MaxFrameSize int
	// Policy receives every frame event (required).
	Policy policy.Policy
	// Logger defaults to a nop logger.
	Logger *log.Logger
	// Collector is optional.
	Collector *metrics.Collector
	// Period switches Run from blocking receives to draining the source on
	// a ticker. Zero means block on the source.
	Period time.Duration
	// OnFrame, if set, observes each frame after the policy accepted it.
	OnFrame func(*types.FrameEvent)
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Pipeline moves bytes from a source to a policy.
//
// A Pipeline is driven by one goroutine: Run, or repeated Process calls.
type Pipeline struct {
	source    port.Receiver[[]byte]
	policy    policy.Policy
	meta      *types.StreamMeta
	logger    *log.Logger
	collector *metrics.Collector
	period    time.Duration
	onFrame   func(*types.FrameEvent)
	clock     func() time.Time

	stream *decode.Stream[kiss.Message]
	seq    int64
}

// New validates cfg and builds a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, errors.New("pipeline: source is required")
	}
	if cfg.Policy == nil {
		return nil, errors.New("pipeline: policy is required")
	}
	if cfg.Meta == nil || cfg.Meta.Stream == "" {
		return nil, errors.New("pipeline: stream name is required")
	}
	if cfg.Markers == (kiss.Markers{}) {
		cfg.Markers = kiss.DefaultMarkers()
	}
	if err := cfg.Markers.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	p := &Pipeline{
		source:    cfg.Source,
		policy:    cfg.Policy,
		meta:      cfg.Meta,
		logger:    cfg.Logger,
		collector: cfg.Collector,
		period:    cfg.Period,
		onFrame:   cfg.OnFrame,
		clock:     cfg.Clock,
	}

	decoder := kiss.NewMessageDecoder(cfg.Markers).WithMaxFrameSize(cfg.MaxFrameSize)
	p.stream = decode.NewStream[kiss.Message](
		decoder,
		decode.SinkFunc[kiss.Message](p.ingest),
		decode.WithName(cfg.Meta.Stream),
		decode.WithLogger(cfg.Logger),
		decode.WithCollector(cfg.Collector),
	)
	return p, nil
}

// Run moves chunks until ctx is done or the source disconnects, then drains
// whatever the source still holds and flushes the policy.
//
// Returns nil on cancellation or a clean disconnect, an *Error with
// ErrorTransport if the source failed, or ErrorPolicy if the policy rejected
// a frame or the final flush failed.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", map[string]any{
		"period": p.period.String(),
	})

	err := p.loop(ctx)
	if ctx.Err() != nil && err == nil {
		// Chunks already queued are still part of the run.
		err = p.drain(context.WithoutCancel(ctx))
	}

	if ferr := p.flush(ctx); ferr != nil && err == nil {
		err = ferr
	}

	s := p.Summary()
	p.logger.Info("pipeline stopped", map[string]any{
		"frames_decoded":   s.Metrics.FramesDecoded,
		"frames_aborted":   s.Metrics.FramesAborted,
		"frames_delivered": s.Policy.FramesDelivered,
		"frames_dropped":   s.Policy.FramesDropped,
	})
	return err
}

func (p *Pipeline) loop(ctx context.Context) error {
	if p.period > 0 {
		ticker := time.NewTicker(p.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := p.Process(ctx); err != nil {
					return p.stopped(err)
				}
			}
		}
	}

	for {
		chunk, err := p.source.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return p.stopped(p.sourceError(err))
		}
		if err := p.accept(ctx, chunk); err != nil {
			return err
		}
	}
}

// Process accepts every chunk the source currently holds without blocking.
// Returns ErrSourceClosed once the source has disconnected cleanly.
func (p *Pipeline) Process(ctx context.Context) error {
	for {
		chunk, err := p.source.TryRecv()
		if errors.Is(err, port.ErrEmpty) {
			return nil
		}
		if err != nil {
			return p.sourceError(err)
		}
		if err := p.accept(ctx, chunk); err != nil {
			return err
		}
	}
}

// drain accepts what is left in the source after cancellation.
func (p *Pipeline) drain(ctx context.Context) error {
	return p.stopped(p.Process(ctx))
}

// stopped maps a clean end of input to nil.
func (p *Pipeline) stopped(err error) error {
	if errors.Is(err, ErrSourceClosed) {
		return nil
	}
	return err
}

func (p *Pipeline) sourceError(err error) error {
	if !errors.Is(err, port.ErrDisconnected) {
		return &Error{Kind: ErrorTransport, Err: err}
	}
	if cause := p.source.Err(); cause != nil {
		p.logger.Error("source failed", map[string]any{
			"device": p.meta.Device,
			"error":  cause.Error(),
		})
		return &Error{Kind: ErrorTransport, Err: cause}
	}
	return ErrSourceClosed
}

// accept feeds one chunk to the stream. An oversize frame has already been
// dropped by the decoder, so decoding continues over the buffered bytes.
func (p *Pipeline) accept(ctx context.Context, chunk []byte) error {
	err := p.stream.Accept(ctx, chunk)
	for err != nil {
		var emitErr *decode.EmitError
		if errors.As(err, &emitErr) {
			return &Error{Kind: ErrorPolicy, Err: emitErr.Err}
		}

		if decode.IsFatal(err) {
			// Nothing can be framed from the buffered bytes; start over
			// with the next chunk.
			p.logger.Error("resetting stream", map[string]any{
				"dropped_bytes": p.stream.Buffered(),
				"error":         err.Error(),
			})
			p.stream.Reset()
			return nil
		}

		p.logger.Warn("frame dropped", map[string]any{
			"buffered": p.stream.Buffered(),
			"error":    err.Error(),
		})
		err = p.stream.Drain(ctx)
	}
	return nil
}

// ingest converts a decoded message and hands it to the policy.
func (p *Pipeline) ingest(ctx context.Context, msg kiss.Message) error {
	ev := p.event(msg)
	if err := p.policy.IngestFrame(ctx, ev); err != nil {
		return err
	}
	if p.onFrame != nil {
		p.onFrame(ev)
	}
	return nil
}

func (p *Pipeline) event(msg kiss.Message) *types.FrameEvent {
	p.seq++
	ev := &types.FrameEvent{
		SchemaVersion: types.SchemaVersion,
		Stream:        p.meta.Stream,
		Seq:           p.seq,
		Kind:          types.FrameKindData,
		Port:          msg.Port(),
		Command:       msg.Command(),
		Payload:       msg.Payload,
		Ts:            types.FormatTimestamp(p.clock()),
	}
	if msg.Aborted() {
		ev.Kind = types.FrameKindAborted
		off := msg.Offending
		ev.Offending = &off
	}
	return ev
}

func (p *Pipeline) flush(ctx context.Context) error {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	if err := p.policy.Flush(flushCtx); err != nil {
		p.logger.Error("final flush failed", map[string]any{
			"error": err.Error(),
		})
		return &Error{Kind: ErrorPolicy, Err: fmt.Errorf("flush: %w", err)}
	}
	return nil
}

// Summary is a point-in-time view of a pipeline's counters.
type Summary struct {
	Meta    types.StreamMeta
	Seq     int64
	Metrics metrics.Snapshot
	Policy  policy.Stats
}

// Summary returns current decode metrics and policy stats. Policy counters
// are also absorbed into the collector.
func (p *Pipeline) Summary() Summary {
	stats := p.policy.Stats()
	p.collector.AbsorbPolicyStats(stats.TotalFrames, stats.FramesDelivered, stats.FramesDropped, stats.DroppedByKindStrings())
	return Summary{
		Meta:    *p.meta,
		Seq:     p.seq,
		Metrics: p.collector.Snapshot(),
		Policy:  stats,
	}
}

// Close closes the source and the policy.
func (p *Pipeline) Close() error {
	return errors.Join(p.source.Close(), p.policy.Close())
}
