// Package adapter publishes frame events to downstream systems.
//
// An Adapter publishes one frame at a time; NewSink turns it into the
// batch-oriented policy.Sink the delivery policies write to.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/framewire/policy"
	"github.com/pithecene-io/framewire/types"
)

// Adapter publishes frame events to a downstream system.
type Adapter interface {
	// Publish sends one frame event. Must respect context cancellation
	// and deadlines.
	Publish(ctx context.Context, frame *types.FrameEvent) error

	// Close releases adapter resources.
	Close() error
}

// Codec selects the wire encoding of published frames.
type Codec string

const (
	// CodecJSON encodes frames as JSON objects.
	CodecJSON Codec = "json"
	// CodecMsgpack encodes frames as msgpack maps.
	CodecMsgpack Codec = "msgpack"
)

// ErrUnknownCodec is returned by ParseCodec for unsupported names.
var ErrUnknownCodec = errors.New("unknown codec")

// ParseCodec validates a codec name. Empty selects JSON.
func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case "", CodecJSON:
		return CodecJSON, nil
	case CodecMsgpack:
		return CodecMsgpack, nil
	default:
		return "", fmt.Errorf("%w: %q (want json or msgpack)", ErrUnknownCodec, s)
	}
}

// Marshal encodes a frame event.
func (c Codec) Marshal(frame *types.FrameEvent) ([]byte, error) {
	switch c {
	case CodecMsgpack:
		return msgpack.Marshal(frame)
	case "", CodecJSON:
		return json.Marshal(frame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, string(c))
	}
}

// Unmarshal decodes a frame event encoded by Marshal.
func (c Codec) Unmarshal(data []byte) (*types.FrameEvent, error) {
	var frame types.FrameEvent
	var err error
	switch c {
	case CodecMsgpack:
		err = msgpack.Unmarshal(data, &frame)
	case "", CodecJSON:
		err = json.Unmarshal(data, &frame)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCodec, string(c))
	}
	if err != nil {
		return nil, err
	}
	return &frame, nil
}

// ContentType returns the HTTP content type of the encoding.
func (c Codec) ContentType() string {
	if c == CodecMsgpack {
		return "application/msgpack"
	}
	return "application/json"
}

// Sink delivers policy batches through an Adapter, one Publish per frame in
// batch order. A failed Publish fails the batch; frames published before the
// failure are published again when the policy retries, so delivery is at
// least once.
type Sink struct {
	adapter Adapter
}

// NewSink wraps a as a policy.Sink.
func NewSink(a Adapter) *Sink {
	return &Sink{adapter: a}
}

// WriteFrames publishes each frame in order.
func (s *Sink) WriteFrames(ctx context.Context, frames []*types.FrameEvent) error {
	for _, f := range frames {
		if err := s.adapter.Publish(ctx, f); err != nil {
			return fmt.Errorf("publish frame seq=%d: %w", f.Seq, err)
		}
	}
	return nil
}

// Close closes the adapter.
func (s *Sink) Close() error {
	return s.adapter.Close()
}

var _ policy.Sink = (*Sink)(nil)

// BaseBackoff is the delay before the first retry; it doubles per attempt.
const BaseBackoff = 500 * time.Millisecond

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. It stops early when ctx ends or permanent reports the error as
// non-retriable. name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, permanent func(error) bool, fn func(context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BaseBackoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
