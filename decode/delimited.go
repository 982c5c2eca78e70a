package decode

import (
	"github.com/pithecene-io/framewire/bufchain"
)

// Delimited frames a byte stream with start and end delimiter bytes.
//
// Bytes outside a frame are skipped. Inside a frame every byte up to the end
// delimiter goes through the Transformer; the finalize function turns the
// resulting payload into a message.
//
// When start and end are the same byte, a delimiter both closes the current
// frame and opens the next one, so it is left in the cursor to be read as
// the next start delimiter. Consecutive delimiters are empty frames and
// yield Ignored.
type Delimited[T any] struct {
	start       byte
	end         byte
	transformer Transformer[T]
	finalize    func(payload []byte) T

	maxFrameSize int

	decoding bool
	buf      []byte
}

// NewDelimited creates a delimited decoder with the Identity transformer.
func NewDelimited[T any](start, end byte, finalize func(payload []byte) T) *Delimited[T] {
	return NewDelimitedWith[T](start, end, Identity[T]{}, finalize)
}

// NewDelimitedWith creates a delimited decoder with a custom transformer.
// finalize receives a payload slice it may retain.
func NewDelimitedWith[T any](start, end byte, t Transformer[T], finalize func(payload []byte) T) *Delimited[T] {
	if t == nil {
		t = Identity[T]{}
	}
	return &Delimited[T]{
		start:       start,
		end:         end,
		transformer: t,
		finalize:    finalize,
	}
}

// WithMaxFrameSize bounds the transformed payload of a frame to n bytes.
// A frame growing past n is abandoned and reported as Failed with a
// non-fatal *FrameSizeError. Zero means unbounded.
func (d *Delimited[T]) WithMaxFrameSize(n int) *Delimited[T] {
	d.maxFrameSize = n
	return d
}

// InFrame reports whether a start delimiter has been seen and its frame is
// not yet complete.
func (d *Delimited[T]) InFrame() bool {
	return d.decoding
}

// Reset drops any frame in progress.
func (d *Delimited[T]) Reset() {
	d.decoding = false
	d.buf = nil
	d.transformer.Reset()
}

// Decode implements Decoder.
func (d *Delimited[T]) Decode(c bufchain.Cursor) Outcome[T] {
	if !d.decoding {
		for c.HasRemaining() && c.PeekByte() != d.start {
			c.Advance(1)
		}
		if !c.HasRemaining() {
			return Signal[T](Empty)
		}
		c.Advance(1)
		d.open()
	}

	for c.HasRemaining() {
		b := c.PeekByte()
		if b == d.end {
			break
		}
		c.Advance(1)

		t := d.transformer.Transform(d.buf, b)
		switch t.Action {
		case ActionNone:
		case ActionOne:
			d.buf = append(d.buf, t.Byte)
		case ActionMany:
			d.buf = append(d.buf, t.Bytes...)
		case ActionAbort:
			d.close()
			return Message(t.Abort)
		}

		if d.maxFrameSize > 0 && len(d.buf) > d.maxFrameSize {
			size := len(d.buf)
			d.close()
			return Fail[T](&FrameSizeError{Size: size, Max: d.maxFrameSize})
		}
	}

	if !c.HasRemaining() {
		return Signal[T](Partial)
	}

	d.decoding = false
	if d.start != d.end {
		c.Advance(1)
	}
	if len(d.buf) == 0 {
		return Signal[T](Ignored)
	}

	payload := d.buf
	d.buf = nil
	return Message(d.finalize(payload))
}

// open starts collecting a new frame.
func (d *Delimited[T]) open() {
	d.decoding = true
	d.buf = d.buf[:0]
	d.transformer.Reset()
}

// close abandons the current frame. The payload slice is released rather
// than reused since an abort message may still reference it.
func (d *Delimited[T]) close() {
	d.decoding = false
	d.buf = nil
}

var (
	_ Decoder[struct{}] = (*Delimited[struct{}])(nil)
	_ Resetter          = (*Delimited[struct{}])(nil)
)
