package decode

import "github.com/pithecene-io/framewire/bufchain"

// Sentinel decodes one message for every occurrence of a single byte and
// discards everything else.
type Sentinel[T any] struct {
	b   byte
	msg T
}

// NewSentinel creates a decoder emitting msg each time b is read.
func NewSentinel[T any](b byte, msg T) *Sentinel[T] {
	return &Sentinel[T]{b: b, msg: msg}
}

// Decode implements Decoder.
func (s *Sentinel[T]) Decode(c bufchain.Cursor) Outcome[T] {
	for c.HasRemaining() {
		if c.NextByte() == s.b {
			return Message(s.msg)
		}
	}
	return Signal[T](Empty)
}
