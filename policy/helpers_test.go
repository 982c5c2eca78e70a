package policy_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pithecene-io/framewire/policy"
	"github.com/pithecene-io/framewire/types"
)

// dataFrame returns a data frame whose Size is 32+len(payload).
func dataFrame(seq int64, payload ...byte) *types.FrameEvent {
	return &types.FrameEvent{Seq: seq, Kind: types.FrameKindData, Payload: payload}
}

func abortedFrame(seq int64, payload ...byte) *types.FrameEvent {
	off := uint8(0x42)
	return &types.FrameEvent{Seq: seq, Kind: types.FrameKindAborted, Payload: payload, Offending: &off}
}

func mustIngest(t *testing.T, p policy.Policy, frames ...*types.FrameEvent) {
	t.Helper()
	for _, f := range frames {
		if err := p.IngestFrame(t.Context(), f); err != nil {
			t.Fatalf("IngestFrame(seq=%d) failed: %v", f.Seq, err)
		}
	}
}

func equalSeqs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// failNSink fails the first n writes, then records like a StubSink.
type failNSink struct {
	*policy.StubSink
	mu    sync.Mutex
	fails int
	err   error
}

func (s *failNSink) WriteFrames(ctx context.Context, frames []*types.FrameEvent) error {
	s.mu.Lock()
	if s.fails > 0 {
		s.fails--
		s.mu.Unlock()
		return s.err
	}
	s.mu.Unlock()
	return s.StubSink.WriteFrames(ctx, frames)
}
