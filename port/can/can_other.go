//go:build !linux

package can

import (
	"context"

	"github.com/pithecene-io/framewire/port"
)

// Port is unavailable on this platform.
type Port struct{}

// Open always fails with ErrUnsupported.
func Open(context.Context, Config) (*Port, error) {
	return nil, ErrUnsupported
}

// OpenThread always fails with ErrUnsupported.
func OpenThread(context.Context, Config, ...port.Option) (*port.Thread[Data, Data], error) {
	return nil, ErrUnsupported
}

// Interfaces returns nil.
func (*Port) Interfaces() []string { return nil }

// Read always fails with ErrUnsupported.
func (*Port) Read() (Data, error) { return Data{}, ErrUnsupported }

// Write always fails with ErrUnsupported.
func (*Port) Write(Data) error { return ErrUnsupported }

// Close is a no-op.
func (*Port) Close() error { return nil }
