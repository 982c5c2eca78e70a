package adapter

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pithecene-io/framewire/types"
)

// Writer publishes encoded frames to an io.Writer. JSON frames are written
// one per line; msgpack frames are written back to back.
type Writer struct {
	mu    sync.Mutex
	w     io.Writer
	codec Codec
}

// NewWriter creates a Writer adapter. Close closes w if it is an io.Closer.
func NewWriter(w io.Writer, codec Codec) *Writer {
	return &Writer{w: w, codec: codec}
}

// Publish encodes and writes one frame.
func (a *Writer) Publish(ctx context.Context, frame *types.FrameEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := a.codec.Marshal(frame)
	if err != nil {
		return fmt.Errorf("writer: marshal frame: %w", err)
	}
	if a.codec != CodecMsgpack {
		body = append(body, '\n')
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.w.Write(body); err != nil {
		return fmt.Errorf("writer: %w", err)
	}
	return nil
}

// Close closes the underlying writer when it supports it.
func (a *Writer) Close() error {
	if c, ok := a.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var _ Adapter = (*Writer)(nil)
