package video

import "errors"

type Writer interface {
	Write(*Packet) error
}

// Reader returns io.EOF once the stream has ended.
type Reader interface {
	Read(*Packet) error
}

// Source is an opened, demultiplexed stream.
type Source interface {
	Reader
	Info() StreamInfo
	Close() error
}

// Decoder turns one compressed packet into zero or more frames.
type Decoder interface {
	Decode(*Packet) ([]Frame, error)
}

// Decoder failure classes. Decoder implementations wrap these so callers can
// tell failures apart with errors.Is.
var (
	ErrInvalidData    = errors.New("invalid data found when processing input")
	ErrUnexpectedEOF  = errors.New("end of stream reached inside a unit")
	ErrDecoderBug     = errors.New("internal decoder fault")
	ErrBufferTooSmall = errors.New("output buffer too small")
)
