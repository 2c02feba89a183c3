// Package decode provides the decode collaborator used by the analyzer. It
// does not reconstruct pictures: it validates the H.264 access unit structure
// and reads the slice header far enough to know the picture type, which is
// all the analysis needs from a decoder.
package decode

import (
	"fmt"

	"github.com/bluenviron/mediacommon/pkg/bits"
	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
	"github.com/sirupsen/logrus"

	"streamripper/src/utils"
	"streamripper/src/video"
)

// DEFAULT_MAX_AU_SIZE bounds the size of one access unit. It is also the
// largest size the Annex-B parser accepts.
const DEFAULT_MAX_AU_SIZE = h264.MaxAccessUnitSize

type Config struct {
	// MaxAccessUnitSize is the largest access unit accepted, in bytes.
	// Zero or anything above DEFAULT_MAX_AU_SIZE means DEFAULT_MAX_AU_SIZE.
	MaxAccessUnitSize int
}

type H264Decoder struct {
	cfg Config
	log *logrus.Entry
}

var _ video.Decoder = &H264Decoder{}

func NewH264Decoder(cfg Config) *H264Decoder {
	if cfg.MaxAccessUnitSize <= 0 || cfg.MaxAccessUnitSize > DEFAULT_MAX_AU_SIZE {
		cfg.MaxAccessUnitSize = DEFAULT_MAX_AU_SIZE
	}
	return &H264Decoder{
		cfg: cfg,
		log: logrus.WithField("component", "decode"),
	}
}

// Decode returns one frame per access unit that carries a slice, no frames
// for units made only of parameter sets or SEI, and an error wrapping one of
// the video sentinel errors when the bitstream is malformed.
func (d *H264Decoder) Decode(p *video.Packet) (frames []video.Frame, err error) {
	defer utils.HandlePanic(func(perr error) {
		frames = nil
		err = fmt.Errorf("%w: %v", video.ErrDecoderBug, perr)
	})

	if len(p.Data) == 0 {
		return nil, nil
	}
	if len(p.Data) > d.cfg.MaxAccessUnitSize {
		return nil, fmt.Errorf("%w: access unit of %d bytes exceeds %d",
			video.ErrBufferTooSmall, len(p.Data), d.cfg.MaxAccessUnitSize)
	}

	nalus, err := h264.AnnexBUnmarshal(p.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", video.ErrInvalidData, err)
	}

	for _, nalu := range nalus {
		if len(nalu) == 0 {
			return nil, fmt.Errorf("%w: empty NAL unit", video.ErrInvalidData)
		}
		if nalu[0]&0x80 != 0 {
			return nil, fmt.Errorf("%w: forbidden_zero_bit set", video.ErrInvalidData)
		}
		typ := h264.NALUType(nalu[0] & 0x1f)
		if typ != h264.NALUTypeIDR && typ != h264.NALUTypeNonIDR {
			continue
		}

		pt, err := readPictureType(nalu)
		if err != nil {
			return nil, err
		}
		if typ == h264.NALUTypeIDR && pt != video.PICTURE_TYPE_I && pt != video.PICTURE_TYPE_SI {
			return nil, fmt.Errorf("%w: IDR slice with %s slice type", video.ErrInvalidData, pt)
		}
		// the first slice decides the picture type
		return []video.Frame{{
			PTS:         p.PTS,
			HasPTS:      p.HasPTS,
			TimeBase:    p.TimeBase,
			PictureType: pt,
		}}, nil
	}

	d.log.WithField("nalus", len(nalus)).Debug("access unit without slices")
	return nil, nil
}

// readPictureType reads first_mb_in_slice and slice_type from the slice
// header that follows the one byte NAL header.
func readPictureType(nalu []byte) (video.PictureType, error) {
	buf := h264.EmulationPreventionRemove(nalu[1:])
	pos := 0

	if _, err := bits.ReadGolombUnsigned(buf, &pos); err != nil {
		return video.PICTURE_TYPE_NONE, fmt.Errorf("%w: first_mb_in_slice: %v", video.ErrUnexpectedEOF, err)
	}
	sliceType, err := bits.ReadGolombUnsigned(buf, &pos)
	if err != nil {
		return video.PICTURE_TYPE_NONE, fmt.Errorf("%w: slice_type: %v", video.ErrUnexpectedEOF, err)
	}
	if sliceType > 9 {
		return video.PICTURE_TYPE_NONE, fmt.Errorf("%w: slice_type %d", video.ErrInvalidData, sliceType)
	}

	switch sliceType % 5 {
	case 0:
		return video.PICTURE_TYPE_P, nil
	case 1:
		return video.PICTURE_TYPE_B, nil
	case 2:
		return video.PICTURE_TYPE_I, nil
	case 3:
		return video.PICTURE_TYPE_SP, nil
	default:
		return video.PICTURE_TYPE_SI, nil
	}
}
