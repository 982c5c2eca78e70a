package port

import (
	"context"
	"fmt"
	"io"
)

// DefaultBufferSize is the default read block size of a StreamPort.
const DefaultBufferSize = 256

// StreamPort adapts an io.ReadWriteCloser to Port. Reads are forwarded in
// blocks of at most the buffer size.
type StreamPort struct {
	rwc        io.ReadWriteCloser
	bufferSize int
}

// NewStreamPort wraps rwc. A non-positive bufferSize selects DefaultBufferSize.
func NewStreamPort(rwc io.ReadWriteCloser, bufferSize int) *StreamPort {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &StreamPort{rwc: rwc, bufferSize: bufferSize}
}

// Read returns the next block of bytes. Each block is freshly allocated so
// that decoders may retain it. A read returning no bytes and no error
// reports ErrWouldBlock.
func (p *StreamPort) Read() ([]byte, error) {
	buf := make([]byte, p.bufferSize)
	n, err := p.rwc.Read(buf)
	if n > 0 {
		// Deliver data now; a sticky error is returned again by the next Read.
		return buf[:n], nil
	}
	if err != nil {
		return nil, err
	}
	return nil, ErrWouldBlock
}

// Write writes all of data or fails.
func (p *StreamPort) Write(data []byte) error {
	n, err := p.rwc.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("not all bytes written: had to write %d, but wrote %d", len(data), n)
	}
	return nil
}

// Close closes the underlying stream.
func (p *StreamPort) Close() error {
	return p.rwc.Close()
}

// ReadOnly adapts an io.ReadCloser to io.ReadWriteCloser; writes fail.
func ReadOnly(rc io.ReadCloser) io.ReadWriteCloser {
	return readOnly{rc}
}

type readOnly struct {
	io.ReadCloser
}

func (readOnly) Write([]byte) (int, error) {
	return 0, fmt.Errorf("port is read-only")
}

// Bytes maps a receiver of arbitrary values to a byte receiver using
// extract. Values for which extract returns no bytes are skipped.
func Bytes[R any](r Receiver[R], extract func(R) []byte) Receiver[[]byte] {
	return &byteReceiver[R]{r: r, extract: extract}
}

type byteReceiver[R any] struct {
	r       Receiver[R]
	extract func(R) []byte
}

func (b *byteReceiver[R]) TryRecv() ([]byte, error) {
	for {
		v, err := b.r.TryRecv()
		if err != nil {
			return nil, err
		}
		if chunk := b.extract(v); len(chunk) > 0 {
			return chunk, nil
		}
	}
}

func (b *byteReceiver[R]) Recv(ctx context.Context) ([]byte, error) {
	for {
		v, err := b.r.Recv(ctx)
		if err != nil {
			return nil, err
		}
		if chunk := b.extract(v); len(chunk) > 0 {
			return chunk, nil
		}
	}
}

func (b *byteReceiver[R]) Err() error {
	return b.r.Err()
}

func (b *byteReceiver[R]) Close() error {
	return b.r.Close()
}

var _ Port[[]byte, []byte] = (*StreamPort)(nil)
