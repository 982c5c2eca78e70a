package port

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// chanPort is a Port fed from a channel.
type chanPort struct {
	reads    chan []byte
	readErr  chan error
	writeErr error

	mu      sync.Mutex
	written [][]byte

	closed    chan struct{}
	closeOnce sync.Once
}

func newChanPort() *chanPort {
	return &chanPort{
		reads:   make(chan []byte, 16),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (p *chanPort) Read() ([]byte, error) {
	select {
	case b := <-p.reads:
		return b, nil
	case err := <-p.readErr:
		return nil, err
	case <-p.closed:
		return nil, io.ErrClosedPipe
	}
}

func (p *chanPort) Write(data []byte) error {
	if p.writeErr != nil {
		return p.writeErr
	}
	p.mu.Lock()
	p.written = append(p.written, data)
	p.mu.Unlock()
	return nil
}

func (p *chanPort) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *chanPort) writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.written...)
}

func recvWithin(t *testing.T, th *Thread[[]byte, []byte]) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	b, err := th.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	return b
}

func TestThread_TryRecvEmpty(t *testing.T) {
	th := NewThread[[]byte, []byte](newChanPort())
	defer th.Close()

	if _, err := th.TryRecv(); !errors.Is(err, ErrEmpty) {
		t.Errorf("TryRecv error = %v, want ErrEmpty", err)
	}
}

func TestThread_ReceivesInOrder(t *testing.T) {
	p := newChanPort()
	th := NewThread[[]byte, []byte](p)
	defer th.Close()

	p.reads <- []byte{0x01}
	p.reads <- []byte{0x02, 0x03}

	if got := recvWithin(t, th); !bytes.Equal(got, []byte{0x01}) {
		t.Errorf("first = % X, want 01", got)
	}
	if got := recvWithin(t, th); !bytes.Equal(got, []byte{0x02, 0x03}) {
		t.Errorf("second = % X, want 02 03", got)
	}
}

func TestThread_SendWritesToPort(t *testing.T) {
	p := newChanPort()
	th := NewThread[[]byte, []byte](p)

	if err := th.Send([]byte("abc")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(p.writes()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := th.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	w := p.writes()
	if len(w) != 1 || string(w[0]) != "abc" {
		t.Errorf("written = %q, want [abc]", w)
	}
	if err := th.Send([]byte("late")); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Send after Close = %v, want ErrDisconnected", err)
	}
}

func TestThread_CloseDisconnects(t *testing.T) {
	p := newChanPort()
	th := NewThread[[]byte, []byte](p)

	if err := th.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := th.TryRecv(); !errors.Is(err, ErrDisconnected) {
		t.Errorf("TryRecv after Close = %v, want ErrDisconnected", err)
	}
	if _, err := th.Recv(t.Context()); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Recv after Close = %v, want ErrDisconnected", err)
	}
	if th.Err() != nil {
		t.Errorf("Err() = %v, want nil after clean close", th.Err())
	}
}

func TestThread_ReadErrorStopsThread(t *testing.T) {
	p := newChanPort()
	th := NewThread[[]byte, []byte](p)
	defer th.Close()

	errDevice := errors.New("device unplugged")
	p.reads <- []byte{0xAA}
	if got := recvWithin(t, th); !bytes.Equal(got, []byte{0xAA}) {
		t.Errorf("Recv = % X, want AA", got)
	}
	p.readErr <- errDevice

	if _, err := th.Recv(t.Context()); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Recv = %v, want ErrDisconnected", err)
	}
	if !errors.Is(th.Err(), errDevice) {
		t.Errorf("Err() = %v, want %v", th.Err(), errDevice)
	}
}

func TestThread_EOFIsClean(t *testing.T) {
	p := newChanPort()
	th := NewThread[[]byte, []byte](p)
	defer th.Close()

	p.readErr <- io.EOF

	if _, err := th.Recv(t.Context()); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Recv = %v, want ErrDisconnected", err)
	}
	if th.Err() != nil {
		t.Errorf("Err() = %v, want nil on EOF", th.Err())
	}
}

func TestThread_WriteErrorStopsThread(t *testing.T) {
	p := newChanPort()
	p.writeErr = errors.New("not all bytes written")
	th := NewThread[[]byte, []byte](p)
	defer th.Close()

	if err := th.Send([]byte{0x01}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := th.Recv(t.Context()); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Recv = %v, want ErrDisconnected", err)
	}
	if !errors.Is(th.Err(), p.writeErr) {
		t.Errorf("Err() = %v, want write error", th.Err())
	}
}

func TestThread_SendWouldBlock(t *testing.T) {
	p := newChanPort()
	block := make(chan struct{})
	th := NewThread[[]byte, []byte](&blockingWriter{chanPort: p, release: block}, WithQueueSize(1))
	defer th.Close()
	defer close(block)

	// One write is held by the port, one fills the queue; eventually Send
	// must refuse without blocking.
	var err error
	for range 10 {
		if err = th.Send([]byte{0x00}); errors.Is(err, ErrWouldBlock) {
			break
		}
	}
	if !errors.Is(err, ErrWouldBlock) {
		t.Errorf("Send = %v, want ErrWouldBlock", err)
	}
}

func TestThread_RecvHonorsContext(t *testing.T) {
	th := NewThread[[]byte, []byte](newChanPort())
	defer th.Close()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := th.Recv(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Recv = %v, want context.Canceled", err)
	}
}

type blockingWriter struct {
	*chanPort
	release chan struct{}
}

func (b *blockingWriter) Write([]byte) error {
	select {
	case <-b.release:
	case <-b.closed:
	}
	return nil
}

func TestStreamPort(t *testing.T) {
	rw := &rwBuffer{Buffer: bytes.NewBufferString("hello world")}
	p := NewStreamPort(rw, 4)

	first, err := p.Read()
	if err != nil || string(first) != "hell" {
		t.Fatalf("Read = %q, %v; want %q", first, err, "hell")
	}
	second, _ := p.Read()
	if string(first) != "hell" || string(second) != "o wo" {
		t.Errorf("blocks = %q, %q; first block must not be reused", first, second)
	}

	if err := p.Write([]byte("!")); err != nil {
		t.Errorf("Write failed: %v", err)
	}

	short := NewStreamPort(&rwBuffer{Buffer: &bytes.Buffer{}, short: true}, 0)
	if err := short.Write([]byte("abc")); err == nil {
		t.Error("expected error on short write")
	}
}

func TestStreamPort_ReadOnly(t *testing.T) {
	p := NewStreamPort(ReadOnly(io.NopCloser(bytes.NewReader([]byte{0x01}))), 0)
	if err := p.Write([]byte{0x00}); err == nil {
		t.Error("expected write to a read-only port to fail")
	}
	if b, err := p.Read(); err != nil || !bytes.Equal(b, []byte{0x01}) {
		t.Errorf("Read = % X, %v", b, err)
	}
	if _, err := p.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("Read at end = %v, want io.EOF", err)
	}
}

func TestBytes_SkipsEmptyPayloads(t *testing.T) {
	p := newChanPort()
	th := NewThread[[]byte, []byte](p)
	defer th.Close()

	r := Bytes[[]byte](th, func(b []byte) []byte {
		if len(b) == 0 {
			return nil
		}
		return b[1:]
	})

	p.reads <- []byte{0x00}
	p.reads <- []byte{0x00, 0xC0}

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	got, err := r.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if !bytes.Equal(got, []byte{0xC0}) {
		t.Errorf("Recv = % X, want C0", got)
	}
}

type rwBuffer struct {
	*bytes.Buffer
	short bool
}

func (b *rwBuffer) Write(p []byte) (int, error) {
	if b.short && len(p) > 0 {
		return len(p) - 1, nil
	}
	return b.Buffer.Write(p)
}

func (b *rwBuffer) Close() error { return nil }
