// Package can bridges SocketCAN interfaces to port.Thread.
//
// A Port listens on several interfaces at once. Received frames are tagged
// with the index of the interface they arrived on, and frames to send name
// the interface by index.
package can

import (
	"errors"
	"fmt"

	"go.einride.tech/can"
)

// DefaultInterfaces are used when Config.Interfaces is empty.
var DefaultInterfaces = []string{"vcan0", "vcan1"}

var (
	// ErrUnknownInterface is returned when sending on an interface index
	// outside the configured list.
	ErrUnknownInterface = errors.New("can: unknown interface")
	// ErrUnsupported is returned by Open on platforms without SocketCAN.
	ErrUnsupported = errors.New("can: SocketCAN is only available on linux")
)

// Config lists the interfaces a Port opens.
type Config struct {
	Interfaces []string
}

func (c Config) interfaces() []string {
	if len(c.Interfaces) == 0 {
		return DefaultInterfaces
	}
	return c.Interfaces
}

// Data is a CAN frame together with the index of its interface.
type Data struct {
	Interface int
	Frame     can.Frame
}

// Payload returns the data bytes of a frame, i.e. the bytes carried by a
// stream tunnelled over CAN. Remote frames carry none.
func Payload(d Data) []byte {
	if d.Frame.IsRemote {
		return nil
	}
	n := int(d.Frame.Length)
	if n > len(d.Frame.Data) {
		n = len(d.Frame.Data)
	}
	out := make([]byte, n)
	copy(out, d.Frame.Data[:n])
	return out
}

// Frames splits payload into data frames with the given ID, at most eight
// bytes each.
func Frames(iface int, id uint32, payload []byte) []Data {
	var out []Data
	for len(payload) > 0 {
		n := min(len(payload), len(can.Data{}))
		f := can.Frame{ID: id, Length: uint8(n), IsExtended: id > 0x7FF}
		copy(f.Data[:], payload[:n])
		out = append(out, Data{Interface: iface, Frame: f})
		payload = payload[n:]
	}
	return out
}

func checkInterface(names []string, i int) error {
	if i < 0 || i >= len(names) {
		return fmt.Errorf("%w: index %d of %d", ErrUnknownInterface, i, len(names))
	}
	return nil
}
