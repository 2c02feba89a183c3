package forensic

import (
	"errors"
	"io"

	"streamripper/src/video"
)

// ErrorKind classifies a failure on the decode path.
type ErrorKind int

const (
	InvalidBitstreamData ErrorKind = iota
	UnexpectedEndOfStream
	ExternalDecoderError
	DecoderInternalFault
	BufferCapacityExceeded
	NoFramesDecoded
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidBitstreamData:
		return "InvalidBitstreamData"
	case UnexpectedEndOfStream:
		return "UnexpectedEndOfStream"
	case ExternalDecoderError:
		return "ExternalDecoderError"
	case DecoderInternalFault:
		return "DecoderInternalFault"
	case BufferCapacityExceeded:
		return "BufferCapacityExceeded"
	case NoFramesDecoded:
		return "NoFramesDecoded"
	default:
		return "ExternalDecoderError"
	}
}

// Description is the explanation printed next to a kind in reports.
func (k ErrorKind) Description() string {
	switch k {
	case InvalidBitstreamData:
		return "Invalid data found when processing input (H.264 bitstream corruption)"
	case UnexpectedEndOfStream:
		return "End of stream reached unexpectedly"
	case DecoderInternalFault:
		return "Internal fault in the decoder"
	case BufferCapacityExceeded:
		return "Buffer too small for decoded data"
	case NoFramesDecoded:
		return "Packet produced no decoded frames (silent corruption)"
	default:
		return "Generic error in the external decode library"
	}
}

// DescribeKind returns the description of a kind given by name.
func DescribeKind(name string) string {
	for k := InvalidBitstreamData; k <= NoFramesDecoded; k++ {
		if k.String() == name {
			return k.Description()
		}
	}
	return name
}

// Classify maps a decoder error onto the taxonomy. Errors the decoder did not
// wrap in one of the video sentinels are external decoder errors.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ExternalDecoderError
	case errors.Is(err, video.ErrInvalidData):
		return InvalidBitstreamData
	case errors.Is(err, video.ErrUnexpectedEOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return UnexpectedEndOfStream
	case errors.Is(err, video.ErrDecoderBug):
		return DecoderInternalFault
	case errors.Is(err, video.ErrBufferTooSmall):
		return BufferCapacityExceeded
	default:
		return ExternalDecoderError
	}
}
