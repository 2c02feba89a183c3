package utils

import (
	"bufio"
	"encoding/binary"
	"io"
)

const (
	BUF_SIZE = 1 << 12
)

type ReadWriter struct {
	*bufio.ReadWriter
}

func NewReadWriter(rw io.ReadWriter) *ReadWriter {
	return &ReadWriter{
		bufio.NewReadWriter(
			bufio.NewReaderSize(rw, BUF_SIZE),
			bufio.NewWriterSize(rw, BUF_SIZE)),
	}
}

// NewReader wraps a read-only stream. The returned value must not be written to.
func NewReader(r io.Reader) *ReadWriter {
	return &ReadWriter{
		bufio.NewReadWriter(bufio.NewReaderSize(r, BUF_SIZE), nil),
	}
}

// ReadUint32BE reads a size byte big endian unsigned integer (size <= 4).
func (rw *ReadWriter) ReadUint32BE(size int) (uint32, error) {
	bs4 := make([]byte, 4)
	if _, err := io.ReadFull(rw, bs4[4-size:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(bs4), nil
}

// ReadUint32LE reads a size byte little endian unsigned integer (size <= 4).
func (rw *ReadWriter) ReadUint32LE(size int) (uint32, error) {
	bs4 := make([]byte, 4)
	if _, err := io.ReadFull(rw, bs4[:size]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(bs4), nil
}

// ReadN reads exactly n bytes into a new slice.
func (rw *ReadWriter) ReadN(n int) ([]byte, error) {
	bs := make([]byte, n)
	if _, err := io.ReadFull(rw, bs); err != nil {
		return nil, err
	}
	return bs, nil
}

// PutUint24BE writes the low three bytes of v into bs.
func PutUint24BE(bs []byte, v uint32) {
	bs[0] = byte(v >> 16)
	bs[1] = byte(v >> 8)
	bs[2] = byte(v)
}
