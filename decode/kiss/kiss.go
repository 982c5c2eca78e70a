// Package kiss implements KISS framing on top of decode.Delimited.
//
// A KISS frame is delimited on both sides by FEND. Inside a frame, FEND and
// FESC are transmitted as FESC TFEND and FESC TFESC. Any other byte after
// FESC is illegal: the frame is abandoned and reported as an aborted
// message so that the caller sees it, and decoding resynchronizes on the
// next FEND.
package kiss

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pithecene-io/framewire/decode"
)

// Standard KISS marker bytes.
const (
	FEND  byte = 0xC0
	FESC  byte = 0xDB
	TFEND byte = 0xDC
	TFESC byte = 0xDD
)

// ErrMarkersNotDistinct is returned by Markers.Validate when two markers share
// a value.
var ErrMarkersNotDistinct = errors.New("kiss: marker bytes must be distinct")

// Markers holds the four bytes that define an escaped-delimiter protocol.
type Markers struct {
	FEND  byte
	FESC  byte
	TFEND byte
	TFESC byte
}

// DefaultMarkers returns the standard KISS markers.
func DefaultMarkers() Markers {
	return Markers{FEND: FEND, FESC: FESC, TFEND: TFEND, TFESC: TFESC}
}

// Validate checks that all four markers are distinct.
func (m Markers) Validate() error {
	all := [4]byte{m.FEND, m.FESC, m.TFEND, m.TFESC}
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			if all[i] == all[j] {
				return fmt.Errorf("%w: 0x%02X repeated", ErrMarkersNotDistinct, all[i])
			}
		}
	}
	return nil
}

// Transformer de-escapes a KISS frame body.
type Transformer[T any] struct {
	markers Markers
	abort   func(prev []byte, offending byte) T
	escaped bool
}

// NewTransformer creates a transformer for markers m. abort builds the
// message reported for an illegal escape sequence from the payload collected
// so far and the offending byte.
func NewTransformer[T any](m Markers, abort func(prev []byte, offending byte) T) *Transformer[T] {
	return &Transformer[T]{markers: m, abort: abort}
}

// Transform implements decode.Transformer.
func (t *Transformer[T]) Transform(prev []byte, b byte) decode.Transform[T] {
	if !t.escaped {
		if b == t.markers.FESC {
			t.escaped = true
			return decode.TransformNone[T]()
		}
		return decode.TransformOne[T](b)
	}

	t.escaped = false
	switch b {
	case t.markers.TFEND:
		return decode.TransformOne[T](t.markers.FEND)
	case t.markers.TFESC:
		return decode.TransformOne[T](t.markers.FESC)
	default:
		return decode.TransformAbort(t.abort(prev, b))
	}
}

// Reset clears a pending escape.
func (t *Transformer[T]) Reset() {
	t.escaped = false
}

// Escaped reports whether the previous byte was FESC.
func (t *Transformer[T]) Escaped() bool {
	return t.escaped
}

// New creates a KISS decoder. finalize builds a message from a completed
// frame payload, abort builds one from an abandoned frame.
func New[T any](m Markers, finalize func(payload []byte) T, abort func(prev []byte, offending byte) T) *decode.Delimited[T] {
	return decode.NewDelimitedWith[T](m.FEND, m.FEND, NewTransformer(m, abort), finalize)
}

// NewStream creates a stream driving a KISS decoder.
func NewStream[T any](
	m Markers,
	finalize func(payload []byte) T,
	abort func(prev []byte, offending byte) T,
	sink decode.Sink[T],
	opts ...decode.Option,
) *decode.Stream[T] {
	return decode.NewStream[T](New(m, finalize, abort), sink, opts...)
}

// Message is a decoded KISS frame.
//
// For a completed frame Payload is the de-escaped frame body. For an
// abandoned frame Abandoned is set, Payload is what was collected before the
// illegal escape and Offending is the byte that followed FESC.
type Message struct {
	Payload   []byte
	Abandoned bool
	Offending byte
}

// Aborted reports whether the frame was abandoned.
func (m Message) Aborted() bool {
	return m.Abandoned
}

// Port returns the port number from the high nibble of the type byte.
func (m Message) Port() uint8 {
	if len(m.Payload) == 0 {
		return 0
	}
	return m.Payload[0] >> 4
}

// Command returns the command from the low nibble of the type byte.
func (m Message) Command() uint8 {
	if len(m.Payload) == 0 {
		return 0
	}
	return m.Payload[0] & 0x0F
}

// Data returns the payload following the type byte.
func (m Message) Data() []byte {
	if len(m.Payload) < 2 {
		return nil
	}
	return m.Payload[1:]
}

// String renders the message for debugging.
func (m Message) String() string {
	if m.Abandoned {
		return fmt.Sprintf("aborted(% X, offending=0x%02X)", m.Payload, m.Offending)
	}
	return fmt.Sprintf("frame(% X)", m.Payload)
}

// NewMessageDecoder creates a KISS decoder producing Message values.
func NewMessageDecoder(m Markers) *decode.Delimited[Message] {
	return New(m, messageFromPayload, abortedMessage)
}

func messageFromPayload(payload []byte) Message {
	return Message{Payload: payload}
}

func abortedMessage(prev []byte, offending byte) Message {
	return Message{Payload: bytes.Clone(prev), Abandoned: true, Offending: offending}
}
