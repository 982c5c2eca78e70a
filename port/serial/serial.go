// Package serial opens serial-line ports for the port.Thread bridge.
package serial

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goserial "go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/pithecene-io/framewire/port"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultBaudRate    = 9600
	DefaultReadTimeout = 100 * time.Millisecond
)

// ErrNoPath is returned by Open when the config has no device path.
var ErrNoPath = errors.New("serial: no device path (e.g. /dev/ttyUSB0 or COM3) provided")

// Config describes a serial port.
type Config struct {
	// Path is the device path.
	Path string
	// BaudRate is the line speed. Zero selects DefaultBaudRate.
	BaudRate int
	// BufferSize is the maximum number of bytes forwarded per read.
	// Zero selects port.DefaultBufferSize.
	BufferSize int
	// ReadTimeout bounds each blocking read so that Close is observed
	// promptly. Zero selects DefaultReadTimeout.
	ReadTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.BufferSize <= 0 {
		c.BufferSize = port.DefaultBufferSize
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return c
}

// Open opens the serial device described by cfg.
func Open(cfg Config) (*port.StreamPort, error) {
	if cfg.Path == "" {
		return nil, ErrNoPath
	}
	cfg = cfg.withDefaults()

	p, err := goserial.Open(cfg.Path, &goserial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Path, err)
	}

	// Without a read timeout Read blocks forever and Close cannot interrupt it
	// on every platform.
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return port.NewStreamPort(p, cfg.BufferSize), nil
}

// OpenThread opens the device and starts a port.Thread over it.
func OpenThread(cfg Config, opts ...port.Option) (*port.Thread[[]byte, []byte], error) {
	p, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return port.NewThread[[]byte, []byte](p, opts...), nil
}

// Info describes an available serial port.
type Info struct {
	Name    string `json:"name" yaml:"name"`
	IsUSB   bool   `json:"is_usb" yaml:"is_usb"`
	VID     string `json:"vid,omitempty" yaml:"vid,omitempty"`
	PID     string `json:"pid,omitempty" yaml:"pid,omitempty"`
	Serial  string `json:"serial,omitempty" yaml:"serial,omitempty"`
	Product string `json:"product,omitempty" yaml:"product,omitempty"`
}

// ListPorts returns the available serial ports, excluding Bluetooth and
// modem pseudo-ports, sorted by name. USB details are included when the
// platform supports them.
func ListPorts() ([]Info, error) {
	var infos []Info

	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		for _, d := range details {
			infos = append(infos, Info{
				Name:    d.Name,
				IsUSB:   d.IsUSB,
				VID:     d.VID,
				PID:     d.PID,
				Serial:  d.SerialNumber,
				Product: d.Product,
			})
		}
	} else {
		names, err := goserial.GetPortsList()
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			infos = append(infos, Info{Name: name})
		}
	}

	return filterPorts(infos), nil
}

func filterPorts(infos []Info) []Info {
	out := make([]Info, 0, len(infos))
	for _, info := range infos {
		if !isBluetoothPort(info.Name) {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// isBluetoothPort reports whether name looks like a Bluetooth or modem
// pseudo-port.
func isBluetoothPort(name string) bool {
	low := strings.ToLower(name)
	if strings.Contains(low, "bluetooth-incoming-port") || strings.Contains(low, "modem") {
		return true
	}
	return strings.Contains(low, "bluetooth") && !strings.Contains(low, "usb")
}
