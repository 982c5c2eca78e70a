// Package bufchain implements the chunk accumulator used by stream decoders.
//
// A Chain holds not-yet-consumed bytes as a queue of chunks plus a read
// offset into the front chunk. Parsers see the chain through the Cursor
// capability and never need to know how many physical chunks a logical
// byte range spans.
//
// Chunks are retained, never copied. Callers must not modify a chunk after
// appending it.
package bufchain

import (
	"fmt"
	"io"
)

// Cursor is the minimal read capability a framing algorithm needs.
//
// PeekByte, NextByte and Advance panic when reading past the end;
// callers check HasRemaining (or Remaining) first.
type Cursor interface {
	// HasRemaining reports whether at least one byte is available.
	HasRemaining() bool
	// Remaining returns the number of unread bytes.
	Remaining() int
	// PeekByte returns the next byte without consuming it.
	PeekByte() byte
	// NextByte consumes and returns the next byte.
	NextByte() byte
	// Advance skips n bytes without copying them.
	Advance(n int)
}

// Chain is an ordered queue of byte chunks with a read cursor.
//
// The zero value is an empty chain ready to use. A Chain is not safe for
// concurrent use.
type Chain struct {
	chunks [][]byte
	head   int // index of the front chunk
	off    int // read offset into chunks[head]
	n      int // unread bytes across all chunks

	appended int64
	consumed int64
}

// New creates an empty chain.
func New() *Chain {
	return &Chain{}
}

// Append adds chunk to the back of the chain. Zero-length chunks are ignored.
func (c *Chain) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c.chunks = append(c.chunks, chunk)
	c.n += len(chunk)
	c.appended += int64(len(chunk))
}

// HasRemaining reports whether at least one byte is available.
func (c *Chain) HasRemaining() bool {
	return c.n > 0
}

// Remaining returns the number of unread bytes.
func (c *Chain) Remaining() int {
	return c.n
}

// Len is an alias for Remaining.
func (c *Chain) Len() int {
	return c.n
}

// Chunks returns the number of chunks still holding unread bytes.
func (c *Chain) Chunks() int {
	return len(c.chunks) - c.head
}

// Appended returns the total number of bytes ever appended.
func (c *Chain) Appended() int64 {
	return c.appended
}

// Consumed returns the total number of bytes ever consumed.
func (c *Chain) Consumed() int64 {
	return c.consumed
}

// PeekByte returns the next byte without consuming it.
func (c *Chain) PeekByte() byte {
	if c.n == 0 {
		panic("bufchain: PeekByte on empty chain")
	}
	return c.chunks[c.head][c.off]
}

// NextByte consumes and returns the next byte.
func (c *Chain) NextByte() byte {
	b := c.PeekByte()
	c.Advance(1)
	return b
}

// Advance skips n bytes. It panics if fewer than n bytes remain.
func (c *Chain) Advance(n int) {
	if n < 0 || n > c.n {
		panic(fmt.Sprintf("bufchain: advance %d with %d remaining", n, c.n))
	}
	c.n -= n
	c.consumed += int64(n)
	for n > 0 {
		front := len(c.chunks[c.head]) - c.off
		if n < front {
			c.off += n
			return
		}
		n -= front
		c.popFront()
	}
}

// ReadByte implements io.ByteReader.
func (c *Chain) ReadByte() (byte, error) {
	if c.n == 0 {
		return 0, io.EOF
	}
	return c.NextByte(), nil
}

// Read implements io.Reader. It copies unread bytes into p and consumes them.
func (c *Chain) Read(p []byte) (int, error) {
	if c.n == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	read := 0
	for read < len(p) && c.n > 0 {
		k := copy(p[read:], c.chunks[c.head][c.off:])
		read += k
		c.Advance(k)
	}
	return read, nil
}

// Reset discards all unread bytes. Lifetime counters are kept.
func (c *Chain) Reset() {
	c.consumed += int64(c.n)
	clear(c.chunks)
	c.chunks = c.chunks[:0]
	c.head = 0
	c.off = 0
	c.n = 0
}

// popFront releases the front chunk once it has been fully read.
func (c *Chain) popFront() {
	c.chunks[c.head] = nil
	c.head++
	c.off = 0
	switch {
	case c.head == len(c.chunks):
		c.chunks = c.chunks[:0]
		c.head = 0
	case c.head >= compactThreshold && c.head*2 >= len(c.chunks):
		live := copy(c.chunks, c.chunks[c.head:])
		clear(c.chunks[live:])
		c.chunks = c.chunks[:live]
		c.head = 0
	}
}

// compactThreshold is the number of released slots at the front of the
// queue that triggers moving live chunks back to the start.
const compactThreshold = 32

var (
	_ Cursor        = (*Chain)(nil)
	_ io.Reader     = (*Chain)(nil)
	_ io.ByteReader = (*Chain)(nil)
)
