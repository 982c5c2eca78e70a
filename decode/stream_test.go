package decode

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/pithecene-io/framewire/bufchain"
	"github.com/pithecene-io/framewire/log"
	"github.com/pithecene-io/framewire/metrics"
	"github.com/pithecene-io/framewire/types"
)

// feed accepts input split at the given cut points and returns the
// emitted messages.
func feed(t *testing.T, s *Stream[string], sink *Collect[string], input []byte, cuts []int) []string {
	t.Helper()
	prev := 0
	for _, cut := range append(cuts, len(input)) {
		if err := s.Accept(t.Context(), input[prev:cut]); err != nil {
			t.Fatalf("Accept(%q) failed: %v", input[prev:cut], err)
		}
		prev = cut
	}
	return sink.Take()
}

func TestStream_ChunkBoundaryInvariance(t *testing.T) {
	inputs := []string{
		"|abc||de|f|",
		"noise|x|||y",
		"||||",
		"|a|b|c|d|e|",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			whole := &Collect[string]{}
			want := feed(t, NewStream[string](NewDelimited('|', '|', asString), whole), whole, []byte(input), nil)

			for cut := 0; cut <= len(input); cut++ {
				sink := &Collect[string]{}
				s := NewStream[string](NewDelimited('|', '|', asString), sink)
				got := feed(t, s, sink, []byte(input), []int{cut})
				if !reflect.DeepEqual(got, want) {
					t.Errorf("split at %d: got %q, want %q", cut, got, want)
				}
			}

			rng := rand.New(rand.NewSource(int64(len(input))))
			for range 50 {
				var cuts []int
				for i := 1; i < len(input); i++ {
					if rng.Intn(3) == 0 {
						cuts = append(cuts, i)
					}
				}
				sink := &Collect[string]{}
				s := NewStream[string](NewDelimited('|', '|', asString), sink)
				got := feed(t, s, sink, []byte(input), cuts)
				if !reflect.DeepEqual(got, want) {
					t.Errorf("cuts %v: got %q, want %q", cuts, got, want)
				}
			}
		})
	}
}

func TestStream_NoLoss(t *testing.T) {
	sink := &Collect[string]{}
	s := NewStream[string](NewDelimited('<', '>', asString), sink)

	input := []byte("junk<one><two><><three>tail")
	for _, b := range input {
		if err := s.Accept(t.Context(), []byte{b}); err != nil {
			t.Fatalf("Accept failed: %v", err)
		}
	}

	if s.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", s.Buffered())
	}
	if s.chain.Consumed() != s.chain.Appended() {
		t.Errorf("consumed %d of %d appended bytes", s.chain.Consumed(), s.chain.Appended())
	}
	if s.chain.Appended() != int64(len(input)) {
		t.Errorf("Appended() = %d, want %d", s.chain.Appended(), len(input))
	}

	want := []string{"one", "two", "three"}
	if !reflect.DeepEqual(sink.Messages, want) {
		t.Errorf("messages = %q, want %q", sink.Messages, want)
	}
}

func TestStream_EmitErrorKeepsRemainingBytes(t *testing.T) {
	errDown := errors.New("downstream unavailable")
	var got []string
	failNext := true
	sink := SinkFunc[string](func(_ context.Context, msg string) error {
		if msg == "b" && failNext {
			failNext = false
			return errDown
		}
		got = append(got, msg)
		return nil
	})

	s := NewStream[string](NewDelimited('<', '>', asString), sink, WithName("tnc0"))

	err := s.Accept(t.Context(), []byte("<a><b><c><d>"))
	var emitErr *EmitError
	if !errors.As(err, &emitErr) {
		t.Fatalf("Accept error = %v, want *EmitError", err)
	}
	if !errors.Is(err, errDown) {
		t.Errorf("EmitError does not wrap the sink error: %v", err)
	}
	if emitErr.Message != "b" {
		t.Errorf("EmitError.Message = %v, want b", emitErr.Message)
	}
	if emitErr.Stream != "tnc0" {
		t.Errorf("EmitError.Stream = %q, want tnc0", emitErr.Stream)
	}
	if !IsEmitError(err) {
		t.Error("IsEmitError() = false")
	}
	if s.Buffered() != len("<c><d>") {
		t.Errorf("Buffered() = %d, want %d", s.Buffered(), len("<c><d>"))
	}

	if err := s.Drain(t.Context()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	want := []string{"a", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("emitted %q, want %q", got, want)
	}
}

func TestStream_FailureLatchesUntilReset(t *testing.T) {
	errCorrupt := errors.New("corrupt stream")
	inner := NewDelimited('<', '>', asString)
	d := DecoderFunc[string](func(c bufchain.Cursor) Outcome[string] {
		if c.HasRemaining() && c.PeekByte() == '!' {
			c.Advance(1)
			return Fail[string](errCorrupt)
		}
		return inner.Decode(c)
	})

	sink := &Collect[string]{}
	c := metrics.NewCollector("s", "file", "strict")
	s := NewStream[string](d, sink, WithCollector(c))

	err := s.Accept(t.Context(), []byte("!<ok>"))
	var decErr *Error
	if !errors.As(err, &decErr) || !errors.Is(err, errCorrupt) {
		t.Fatalf("Accept error = %v, want *Error wrapping errCorrupt", err)
	}

	if err := s.Accept(t.Context(), []byte("<x>")); !errors.Is(err, errCorrupt) {
		t.Errorf("Accept after failure = %v, want latched error", err)
	}
	if err := s.Drain(t.Context()); !errors.Is(err, errCorrupt) {
		t.Errorf("Drain after failure = %v, want latched error", err)
	}
	if len(sink.Messages) != 0 {
		t.Errorf("messages emitted while failed: %q", sink.Messages)
	}

	s.Reset()
	if s.Buffered() != 0 {
		t.Errorf("Buffered() after Reset = %d, want 0", s.Buffered())
	}
	if err := s.Accept(t.Context(), []byte("<y>")); err != nil {
		t.Fatalf("Accept after Reset failed: %v", err)
	}
	if !reflect.DeepEqual(sink.Messages, []string{"y"}) {
		t.Errorf("messages = %q, want [y]", sink.Messages)
	}
	if got := c.Snapshot().DecodeFailures; got != 1 {
		t.Errorf("DecodeFailures = %d, want 1", got)
	}
}

func TestStream_OversizeFrameIsNotFatal(t *testing.T) {
	sink := &Collect[string]{}
	c := metrics.NewCollector("s", "file", "strict")
	s := NewStream[string](
		NewDelimited('<', '>', asString).WithMaxFrameSize(2),
		sink,
		WithCollector(c),
	)

	err := s.Accept(t.Context(), []byte("<toolong><ok>"))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("Accept error = %v, want ErrFrameTooLarge", err)
	}
	var sizeErr *FrameSizeError
	if !errors.As(err, &sizeErr) || sizeErr.Max != 2 || sizeErr.Size != 3 {
		t.Errorf("FrameSizeError = %+v, want size 3, max 2", sizeErr)
	}
	if IsFatal(err) {
		t.Error("oversize frame must not be fatal")
	}
	if len(sink.Messages) != 0 {
		t.Fatalf("messages before Drain = %q", sink.Messages)
	}

	// The frame after the oversize one is still buffered.
	if err := s.Drain(t.Context()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if !reflect.DeepEqual(sink.Messages, []string{"ok"}) {
		t.Errorf("messages = %q, want [ok]", sink.Messages)
	}
	if err := s.Accept(t.Context(), []byte("<z>")); err != nil {
		t.Fatalf("Accept after oversize frame failed: %v", err)
	}
	if got := c.Snapshot().DecodeFailures; got != 1 {
		t.Errorf("DecodeFailures = %d, want 1", got)
	}
}

func TestStream_OversizeFrameChunkInvariance(t *testing.T) {
	input := []byte("<toolong><ok><also>")
	want := []string{"ok", "also"}

	for cut := range len(input) + 1 {
		sink := &Collect[string]{}
		s := NewStream[string](NewDelimited('<', '>', asString).WithMaxFrameSize(4), sink)

		for _, chunk := range [][]byte{input[:cut], input[cut:]} {
			err := s.Accept(t.Context(), chunk)
			for err != nil {
				if IsFatal(err) {
					t.Fatalf("cut %d: fatal error %v", cut, err)
				}
				err = s.Drain(t.Context())
			}
		}
		if !reflect.DeepEqual(sink.Messages, want) {
			t.Errorf("cut %d: messages = %q, want %q", cut, sink.Messages, want)
		}
	}
}

func TestStream_FailedWithoutError(t *testing.T) {
	d := DecoderFunc[string](func(c bufchain.Cursor) Outcome[string] {
		return Fail[string](nil)
	})
	s := NewStream[string](d, &Collect[string]{})

	err := s.Accept(t.Context(), []byte{0x00})
	if !errors.Is(err, errUnspecified) {
		t.Errorf("Accept error = %v, want errUnspecified", err)
	}
}

func TestStream_ResetDropsFrameInProgress(t *testing.T) {
	sink := &Collect[string]{}
	s := NewStream[string](NewDelimited('<', '>', asString), sink)

	if err := s.Accept(t.Context(), []byte("<par")); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	s.Reset()
	if err := s.Accept(t.Context(), []byte("tial><new>")); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	if !reflect.DeepEqual(sink.Messages, []string{"new"}) {
		t.Errorf("messages = %q, want [new]", sink.Messages)
	}
}

type abortable struct {
	payload string
	aborted bool
}

func (a abortable) Aborted() bool { return a.aborted }

func TestStream_Metrics(t *testing.T) {
	tr := escapeTransformer{}
	d := NewDelimitedWith('|', '|', Transformer[abortable](&tr), func(p []byte) abortable {
		return abortable{payload: string(p)}
	})
	c := metrics.NewCollector("tnc0", "file", "strict")
	sink := &Collect[abortable]{}
	s := NewStream[abortable](d, sink, WithCollector(c))

	// One good frame, one empty frame, one aborted frame.
	if err := s.Accept(t.Context(), []byte("|ab||c\\x")); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if err := s.Accept(t.Context(), []byte("|")); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	snap := c.Snapshot()
	if snap.ChunksAccepted != 2 || snap.BytesAccepted != 9 {
		t.Errorf("chunks/bytes = %d/%d, want 2/9", snap.ChunksAccepted, snap.BytesAccepted)
	}
	if snap.FramesDecoded != 1 {
		t.Errorf("FramesDecoded = %d, want 1", snap.FramesDecoded)
	}
	if snap.FramesAborted != 1 {
		t.Errorf("FramesAborted = %d, want 1", snap.FramesAborted)
	}
	if snap.FramesIgnored != 1 {
		t.Errorf("FramesIgnored = %d, want 1", snap.FramesIgnored)
	}
	if len(sink.Messages) != 2 || !sink.Messages[1].aborted || sink.Messages[1].payload != "c" {
		t.Errorf("messages = %+v", sink.Messages)
	}
}

func TestStream_LogsEmitFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewLogger(&types.StreamMeta{Stream: "tnc0"}).WithOutput(&buf)
	sink := SinkFunc[string](func(context.Context, string) error {
		return errors.New("boom")
	})
	s := NewStream[string](NewDelimited('<', '>', asString), sink, WithLogger(logger), WithName("tnc0"))

	if err := s.Accept(t.Context(), []byte("<a>")); err == nil {
		t.Fatal("expected emit error")
	}
	if !strings.Contains(buf.String(), "sink rejected message") {
		t.Errorf("log output missing warning: %q", buf.String())
	}
}

// escapeTransformer treats '\' as an escape that must be followed by '\'.
type escapeTransformer struct {
	escaped bool
}

func (e *escapeTransformer) Transform(prev []byte, b byte) Transform[abortable] {
	if e.escaped {
		e.escaped = false
		if b == '\\' {
			return TransformOne[abortable](b)
		}
		return TransformAbort(abortable{payload: string(prev), aborted: true})
	}
	if b == '\\' {
		e.escaped = true
		return TransformNone[abortable]()
	}
	return TransformOne[abortable](b)
}

func (e *escapeTransformer) Reset() { e.escaped = false }
