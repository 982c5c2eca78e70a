package policy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pithecene-io/framewire/policy"
	"github.com/pithecene-io/framewire/types"
)

func TestStubSink(t *testing.T) {
	sink := policy.NewStubSink()

	if err := sink.WriteFrames(t.Context(), []*types.FrameEvent{dataFrame(1), dataFrame(2)}); err != nil {
		t.Fatalf("WriteFrames failed: %v", err)
	}
	if err := sink.WriteFrames(t.Context(), []*types.FrameEvent{dataFrame(3)}); err != nil {
		t.Fatalf("WriteFrames failed: %v", err)
	}

	st := sink.Stats()
	if st.FramesWritten != 3 || st.Batches != 2 {
		t.Errorf("stats = %+v, want 3 frames in 2 batches", st)
	}
	if len(sink.BatchSizes) != 2 || sink.BatchSizes[0] != 2 || sink.BatchSizes[1] != 1 {
		t.Errorf("BatchSizes = %v, want [2 1]", sink.BatchSizes)
	}

	errWrite := errors.New("boom")
	sink.SetError(errWrite)
	if err := sink.WriteFrames(t.Context(), []*types.FrameEvent{dataFrame(4)}); !errors.Is(err, errWrite) {
		t.Errorf("WriteFrames error = %v, want %v", err, errWrite)
	}
	if sink.Stats().FramesWritten != 3 {
		t.Error("failed write must not be recorded")
	}

	if err := sink.Close(); err != nil || !sink.Stats().Closed {
		t.Errorf("Close = %v, closed = %v", err, sink.Stats().Closed)
	}
}

func TestSinkFunc(t *testing.T) {
	var got []int64
	sink := policy.SinkFunc(func(_ context.Context, frames []*types.FrameEvent) error {
		for _, f := range frames {
			got = append(got, f.Seq)
		}
		return nil
	})

	pol := policy.NewStrictPolicy(sink)
	mustIngest(t, pol, dataFrame(7), dataFrame(8))
	if err := pol.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !equalSeqs(got, []int64{7, 8}) {
		t.Errorf("got %v, want [7 8]", got)
	}
}
