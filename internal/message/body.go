package message

import (
	"bytes"
	"io"
)

// Body is a seekable byte stream over a request or response payload.
type Body struct {
	data []byte
	r    *bytes.Reader
}

// NewBody wraps b without copying it.
func NewBody(b []byte) *Body {
	return &Body{data: b, r: bytes.NewReader(b)}
}

// Read implements io.Reader.
func (b *Body) Read(p []byte) (int, error) {
	if b == nil {
		return 0, io.EOF
	}
	return b.r.Read(p)
}

// Seek implements io.Seeker.
func (b *Body) Seek(offset int64, whence int) (int64, error) {
	if b == nil {
		return 0, nil
	}
	return b.r.Seek(offset, whence)
}

// Rewind moves the read position back to the start.
func (b *Body) Rewind() {
	if b != nil {
		_, _ = b.r.Seek(0, io.SeekStart)
	}
}

// Len returns the full payload size, independent of the read position.
func (b *Body) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Bytes returns the full payload.
func (b *Body) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

func (b *Body) String() string {
	return string(b.Bytes())
}
