// Package frametype classifies coded video data into canonical frame types,
// either from raw Annex-B bytes or from decoder picture types.
package frametype

import (
	"fmt"

	"github.com/bluenviron/mediacommon/pkg/codecs/h264"

	"streamripper/src/video"
)

type Type byte

const (
	Unknown Type = iota
	IFrame
	PFrame
	BFrame
	Audio
	Metadata
)

func (t Type) String() string {
	switch t {
	case IFrame:
		return "IFrame"
	case PFrame:
		return "PFrame"
	case BFrame:
		return "BFrame"
	case Audio:
		return "Audio"
	case Metadata:
		return "Metadata"
	default:
		return "Unknown"
	}
}

// Label is the short form written to flow records.
func (t Type) Label() string {
	switch t {
	case IFrame:
		return "I"
	case PFrame:
		return "P"
	case BFrame:
		return "B"
	case Audio:
		return "A"
	case Metadata:
		return "M"
	default:
		return "?"
	}
}

func (t Type) IsVideo() bool {
	return t == IFrame || t == PFrame || t == BFrame
}

// Result is the outcome of classifying one access unit.
// Code and StartOffset are -1 when no NAL header was found.
type Result struct {
	Type        Type
	Code        int
	StartOffset int
	Description string
}

const minUnitLen = 4

var naluDescriptions = map[h264.NALUType]string{
	h264.NALUTypeNonIDR:              "P-frame (non-IDR slice)",
	h264.NALUTypeDataPartitionA:      "Slice partition A",
	h264.NALUTypeDataPartitionB:      "Slice partition B",
	h264.NALUTypeDataPartitionC:      "Slice partition C",
	h264.NALUTypeIDR:                 "I-frame (IDR slice)",
	h264.NALUTypeSEI:                 "SEI (Supplemental Enhancement Info)",
	h264.NALUTypeSPS:                 "SPS (Sequence Parameter Set)",
	h264.NALUTypePPS:                 "PPS (Picture Parameter Set)",
	h264.NALUTypeAccessUnitDelimiter: "Access Unit Delimiter",
	h264.NALUTypeEndOfSequence:       "End of Sequence",
	h264.NALUTypeEndOfStream:         "End of Stream",
}

// Classify locates the first start code in data and maps the NAL unit type
// that follows it. It holds no state; equal inputs give equal results.
func Classify(data []byte) Result {
	if len(data) < minUnitLen {
		return Result{Type: Unknown, Code: -1, StartOffset: -1, Description: "Unknown (too small)"}
	}

	start, headerAt := findStartCode(data)
	if start < 0 || headerAt >= len(data) {
		return Result{Type: Unknown, Code: -1, StartOffset: -1, Description: "Unknown (no start code)"}
	}

	nt := h264.NALUType(data[headerAt] & 0x1f)
	res := Result{
		Type:        naluFrameType(nt),
		Code:        int(nt),
		StartOffset: start,
	}
	if desc, ok := naluDescriptions[nt]; ok {
		res.Description = desc
	} else {
		res.Description = fmt.Sprintf("Unknown NAL type %d", nt)
	}
	return res
}

// findStartCode returns the index of the first start code and the index of
// the byte right after it, or -1 when there is none.
func findStartCode(data []byte) (int, int) {
	for i := 0; i+3 <= len(data); i++ {
		if data[i] != 0 || data[i+1] != 0 {
			continue
		}
		if i+4 <= len(data) && data[i+2] == 0 && data[i+3] == 1 {
			return i, i + 4
		}
		if data[i+2] == 1 {
			return i, i + 3
		}
	}
	return -1, -1
}

func naluFrameType(nt h264.NALUType) Type {
	switch nt {
	case h264.NALUTypeIDR:
		return IFrame
	case h264.NALUTypeNonIDR,
		h264.NALUTypeDataPartitionA,
		h264.NALUTypeDataPartitionB,
		h264.NALUTypeDataPartitionC:
		return PFrame
	case h264.NALUTypeSEI,
		h264.NALUTypeSPS,
		h264.NALUTypePPS,
		h264.NALUTypeAccessUnitDelimiter,
		h264.NALUTypeEndOfSequence,
		h264.NALUTypeEndOfStream:
		return Metadata
	default:
		return Unknown
	}
}

// FromPicture maps a decoder picture type onto the canonical taxonomy.
func FromPicture(pt video.PictureType) Type {
	switch pt {
	case video.PICTURE_TYPE_I, video.PICTURE_TYPE_SI:
		return IFrame
	case video.PICTURE_TYPE_P, video.PICTURE_TYPE_SP:
		return PFrame
	case video.PICTURE_TYPE_B:
		return BFrame
	default:
		return Unknown
	}
}
