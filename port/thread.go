// Package port bridges blocking device I/O to non-blocking consumers.
//
// A Thread owns a Port and runs one goroutine blocked in Port.Read and one
// draining queued writes into Port.Write. The consumer polls with TryRecv,
// or waits with Recv, and queues writes with Send without ever blocking on
// the device.
package port

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/pithecene-io/framewire/log"
	"github.com/pithecene-io/framewire/metrics"
)

// Errors reported by Thread.
var (
	// ErrEmpty is returned by TryRecv when no data is available yet.
	ErrEmpty = errors.New("port: receiving on an empty queue")
	// ErrDisconnected is returned once the port stopped and all received
	// data has been consumed, or when sending to a stopped port.
	ErrDisconnected = errors.New("port: disconnected")
	// ErrWouldBlock is returned by Send when the write queue is full. Port
	// implementations also return it from Read when no data arrived before
	// their read timeout.
	ErrWouldBlock = errors.New("port: operation would block")
)

// DefaultQueueSize is the default capacity of the receive and send queues.
const DefaultQueueSize = 64

// Port is a blocking device. Read and Write may be called concurrently with
// each other; Close must unblock a pending Read.
type Port[R, T any] interface {
	Read() (R, error)
	Write(data T) error
	Close() error
}

// Receiver is the consumer side of a Thread.
type Receiver[R any] interface {
	TryRecv() (R, error)
	Recv(ctx context.Context) (R, error)
	// Err reports why the receiver disconnected; nil after a clean stop.
	Err() error
	Close() error
}

// Thread runs a Port in background goroutines.
type Thread[R, T any] struct {
	port Port[R, T]
	in   chan R
	out  chan T
	done chan struct{}

	wg       sync.WaitGroup
	haltOnce sync.Once
	closeErr error

	mu  sync.Mutex
	err error

	logger    *log.Logger
	collector *metrics.Collector
}

type options struct {
	queueSize int
	logger    *log.Logger
	collector *metrics.Collector
}

// Option configures a Thread.
type Option func(*options)

// WithQueueSize sets the capacity of the receive and send queues.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCollector records read failures in c.
func WithCollector(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// NewThread starts the read and write goroutines for p.
func NewThread[R, T any](p Port[R, T], opts ...Option) *Thread[R, T] {
	o := options{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.queueSize <= 0 {
		o.queueSize = DefaultQueueSize
	}
	if o.logger == nil {
		o.logger = log.NewNop()
	}

	t := &Thread[R, T]{
		port:      p,
		in:        make(chan R, o.queueSize),
		out:       make(chan T, o.queueSize),
		done:      make(chan struct{}),
		logger:    o.logger,
		collector: o.collector,
	}
	t.wg.Add(2)
	go t.readLoop()
	go t.writeLoop()
	return t
}

// TryRecv returns the next received value without blocking.
func (t *Thread[R, T]) TryRecv() (R, error) {
	select {
	case v, ok := <-t.in:
		if !ok {
			var zero R
			return zero, ErrDisconnected
		}
		return v, nil
	default:
		var zero R
		return zero, ErrEmpty
	}
}

// Recv waits for the next received value.
func (t *Thread[R, T]) Recv(ctx context.Context) (R, error) {
	select {
	case v, ok := <-t.in:
		if !ok {
			var zero R
			return zero, ErrDisconnected
		}
		return v, nil
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Send queues data for writing without blocking.
func (t *Thread[R, T]) Send(data T) error {
	select {
	case <-t.done:
		return ErrDisconnected
	default:
	}
	select {
	case t.out <- data:
		return nil
	case <-t.done:
		return ErrDisconnected
	default:
		return ErrWouldBlock
	}
}

// Err returns the error that stopped the thread, if any. A clean end of
// input (io.EOF) and Close are not errors.
func (t *Thread[R, T]) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Close stops both goroutines, closes the port and waits for shutdown.
// Values already received remain available to TryRecv and Recv.
func (t *Thread[R, T]) Close() error {
	t.halt()
	t.wg.Wait()
	return t.closeErr
}

func (t *Thread[R, T]) halt() {
	t.haltOnce.Do(func() {
		close(t.done)
		t.closeErr = t.port.Close()
	})
}

func (t *Thread[R, T]) halted() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Thread[R, T]) fail(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
	t.halt()
}

func (t *Thread[R, T]) readLoop() {
	defer t.wg.Done()
	defer close(t.in)

	for !t.halted() {
		v, err := t.port.Read()
		if err != nil {
			switch {
			case errors.Is(err, ErrWouldBlock):
				continue
			case t.halted():
				return
			case errors.Is(err, io.EOF):
				t.logger.Debug("port reached end of input", nil)
				t.halt()
				return
			}
			t.collector.IncPortReadErrors()
			t.logger.Error("port read failed", map[string]any{"error": err.Error()})
			t.fail(err)
			return
		}

		select {
		case t.in <- v:
		case <-t.done:
			return
		}
	}
}

func (t *Thread[R, T]) writeLoop() {
	defer t.wg.Done()

	for {
		select {
		case <-t.done:
			return
		case v := <-t.out:
			if err := t.port.Write(v); err != nil {
				t.logger.Error("port write failed", map[string]any{"error": err.Error()})
				t.fail(err)
				return
			}
		}
	}
}

var _ Receiver[[]byte] = (*Thread[[]byte, []byte])(nil)
