package kiss

import (
	"errors"
	"fmt"
)

// Commands defined by the KISS protocol (low nibble of the type byte).
const (
	CmdData        uint8 = 0x00
	CmdTxDelay     uint8 = 0x01
	CmdPersistence uint8 = 0x02
	CmdSlotTime    uint8 = 0x03
	CmdTxTail      uint8 = 0x04
	CmdFullDuplex  uint8 = 0x05
	CmdSetHardware uint8 = 0x06
)

// ErrNibbleRange is returned by EncodeFrame when a port or command does not
// fit in four bits.
var ErrNibbleRange = errors.New("kiss: port and command must be in 0..15")

// Encode escapes payload and wraps it in FEND delimiters.
func Encode(m Markers, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+len(payload)/8+2)
	out = append(out, m.FEND)
	out = appendEscaped(out, m, payload)
	return append(out, m.FEND)
}

// EncodeFrame prepends the type byte built from port and command to data
// and encodes the result.
func EncodeFrame(m Markers, port, command uint8, data []byte) ([]byte, error) {
	if port > 0x0F || command > 0x0F {
		return nil, fmt.Errorf("%w: port=%d command=%d", ErrNibbleRange, port, command)
	}
	payload := make([]byte, 0, len(data)+1)
	payload = append(payload, port<<4|command)
	payload = append(payload, data...)
	return Encode(m, payload), nil
}

func appendEscaped(out []byte, m Markers, payload []byte) []byte {
	for _, b := range payload {
		switch b {
		case m.FEND:
			out = append(out, m.FESC, m.TFEND)
		case m.FESC:
			out = append(out, m.FESC, m.TFESC)
		default:
			out = append(out, b)
		}
	}
	return out
}
