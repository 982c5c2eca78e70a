//go:build linux

package can

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.einride.tech/can/pkg/socketcan"

	"github.com/pithecene-io/framewire/port"
)

// transmitTimeout bounds a single frame transmission.
const transmitTimeout = time.Second

// Port reads from and writes to a set of SocketCAN interfaces.
type Port struct {
	names        []string
	conns        []net.Conn
	transmitters []*socketcan.Transmitter

	frames chan Data
	errs   chan error
	done   chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open dials every configured interface.
func Open(ctx context.Context, cfg Config) (*Port, error) {
	names := cfg.interfaces()
	p := &Port{
		names:  names,
		frames: make(chan Data, port.DefaultQueueSize),
		errs:   make(chan error, len(names)),
		done:   make(chan struct{}),
	}

	for _, name := range names {
		conn, err := socketcan.DialContext(ctx, "can", name)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("failed to open CAN interface %s: %w", name, err)
		}
		p.conns = append(p.conns, conn)
		p.transmitters = append(p.transmitters, socketcan.NewTransmitter(conn))
	}

	for i, conn := range p.conns {
		p.wg.Add(1)
		go p.receive(i, socketcan.NewReceiver(conn))
	}
	return p, nil
}

// OpenThread opens the interfaces and starts a port.Thread over them.
func OpenThread(ctx context.Context, cfg Config, opts ...port.Option) (*port.Thread[Data, Data], error) {
	p, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return port.NewThread[Data, Data](p, opts...), nil
}

// Interfaces returns the interface names in index order.
func (p *Port) Interfaces() []string {
	return p.names
}

func (p *Port) receive(i int, r *socketcan.Receiver) {
	defer p.wg.Done()
	for r.Receive() {
		if r.HasErrorFrame() {
			continue
		}
		select {
		case p.frames <- Data{Interface: i, Frame: r.Frame()}:
		case <-p.done:
			return
		}
	}
	if err := r.Err(); err != nil {
		select {
		case p.errs <- fmt.Errorf("CAN interface %s: %w", p.names[i], err):
		default:
		}
	}
}

// Read blocks until a frame arrives on any interface.
func (p *Port) Read() (Data, error) {
	select {
	case d := <-p.frames:
		return d, nil
	case err := <-p.errs:
		return Data{}, err
	case <-p.done:
		return Data{}, net.ErrClosed
	}
}

// Write transmits d.Frame on interface d.Interface.
func (p *Port) Write(d Data) error {
	if err := checkInterface(p.names, d.Interface); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), transmitTimeout)
	defer cancel()
	return p.transmitters[d.Interface].TransmitFrame(ctx, d.Frame)
}

// Close closes every interface and waits for the receivers to stop.
func (p *Port) Close() error {
	var first error
	p.closeOnce.Do(func() {
		close(p.done)
		for _, conn := range p.conns {
			if err := conn.Close(); err != nil && first == nil {
				first = err
			}
		}
		p.wg.Wait()
	})
	return first
}

var _ port.Port[Data, Data] = (*Port)(nil)
