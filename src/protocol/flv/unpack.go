package flv

import (
	"encoding/binary"
	"fmt"

	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
	"github.com/sirupsen/logrus"

	"streamripper/src/utils"
	"streamripper/src/video"
)

// Unpacker turns FLV tag bodies (and RTMP audio/video/data message bodies,
// which share the layout) into packets. AVC payloads are rewritten from
// length-prefixed to Annex-B so that offsets and evidence refer to the
// bytes a decoder sees.
type Unpacker struct {
	info       video.StreamInfo
	nalLenSize int
	log        *logrus.Entry
}

func NewUnpacker(log *logrus.Entry) *Unpacker {
	if log == nil {
		log = logrus.WithField("component", "flv")
	}
	return &Unpacker{
		info:       video.StreamInfo{Metadata: map[string]interface{}{}},
		nalLenSize: 4,
		log:        log,
	}
}

func (u *Unpacker) Info() video.StreamInfo {
	return u.info
}

// SetHasAudio records that the container announced an audio track.
func (u *Unpacker) SetHasAudio(v bool) {
	u.info.HasAudio = u.info.HasAudio || v
}

// Unpack fills p from one message body. A non-nil error means the body could
// not be unpacked cleanly: p still holds the raw body so the caller can pass
// it on and let the decoder report the damage.
func (u *Unpacker) Unpack(dt video.DataType, ts, streamID uint32, body []byte, p *video.Packet) error {
	*p = video.Packet{
		DataType:  dt,
		StreamId:  streamID,
		Data:      body,
		Timestamp: ts,
		PTS:       int64(ts),
		HasPTS:    true,
		TimeBase:  video.MillisecondTimeBase,
	}
	switch dt {
	case video.DATA_TYPE_VIDEO:
		return u.unpackVideo(body, p)
	case video.DATA_TYPE_AUDIO:
		return u.unpackAudio(body, p)
	default:
		u.parseScript(body)
		return nil
	}
}

func (u *Unpacker) unpackVideo(body []byte, p *video.Packet) error {
	tag, err := video.ParseTagHeader(body, video.DATA_TYPE_VIDEO)
	if err != nil {
		return err
	}
	p.Header = tag
	if u.info.VideoCodec == "" {
		u.info.VideoCodec = video.VideoCodecName(tag.CodecID())
	}
	payload := body[tag.Len():]
	p.Data = payload
	if tag.CodecID() != video.CODEC_ID_AVC {
		return nil
	}

	switch {
	case tag.IsSeq():
		p.DataType = video.DATA_TYPE_META
		u.parseAVCConfig(payload)
		return nil
	case tag.IsEndOfSequence():
		p.DataType = video.DATA_TYPE_META
		return nil
	}

	p.PTS = int64(p.Timestamp) + int64(tag.CompositionTime())
	annexB, err := u.toAnnexB(payload)
	if err != nil {
		return fmt.Errorf("convert avc payload: %w", err)
	}
	p.Data = annexB
	return nil
}

func (u *Unpacker) unpackAudio(body []byte, p *video.Packet) error {
	tag, err := video.ParseTagHeader(body, video.DATA_TYPE_AUDIO)
	if err != nil {
		return err
	}
	p.Header = tag
	u.info.HasAudio = true
	if u.info.AudioCodec == "" {
		u.info.AudioCodec = video.SoundFormatName(tag.SoundFmt())
	}
	p.Data = body[tag.Len():]
	if tag.IsAACSeq() {
		p.DataType = video.DATA_TYPE_META
	}
	return nil
}

// toAnnexB rewrites length-prefixed NAL units with 4 byte start codes. The
// number of NAL units per access unit is not limited.
func (u *Unpacker) toAnnexB(payload []byte) ([]byte, error) {
	nalus, err := splitNALUs(payload, u.nalLenSize)
	if err != nil {
		return nil, err
	}
	n := 0
	for _, nalu := range nalus {
		n += len(startCode) + len(nalu)
	}
	out := make([]byte, 0, n)
	for _, nalu := range nalus {
		out = append(out, startCode...)
		out = append(out, nalu...)
	}
	return out, nil
}

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

func splitNALUs(buf []byte, lenSize int) ([][]byte, error) {
	var nalus [][]byte
	for len(buf) > 0 {
		if len(buf) < lenSize {
			return nil, fmt.Errorf("truncated NALU length")
		}
		var l int
		for i := 0; i < lenSize; i++ {
			l = l<<8 | int(buf[i])
		}
		buf = buf[lenSize:]
		if l == 0 || l > len(buf) {
			return nil, fmt.Errorf("invalid NALU length %d", l)
		}
		nalus = append(nalus, buf[:l])
		buf = buf[l:]
	}
	return nalus, nil
}

// parseAVCConfig reads an AVCDecoderConfigurationRecord far enough to learn
// the NALU length size and the picture dimensions.
func (u *Unpacker) parseAVCConfig(rec []byte) {
	if len(rec) < 6 {
		u.log.Warn("short avc decoder configuration record")
		return
	}
	u.nalLenSize = int(rec[4]&0x03) + 1
	if rec[5]&0x1f == 0 || len(rec) < 8 {
		return
	}
	l := int(binary.BigEndian.Uint16(rec[6:8]))
	if 8+l > len(rec) {
		return
	}
	var sps h264.SPS
	if err := sps.Unmarshal(rec[8 : 8+l]); err != nil {
		u.log.WithError(err).Debug("unparsable sps")
		return
	}
	u.info.Metadata["width"] = sps.Width()
	u.info.Metadata["height"] = sps.Height()
	if fps := sps.FPS(); fps > 0 {
		u.info.Metadata["sps_fps"] = fps
	}
}

func (u *Unpacker) parseScript(body []byte) {
	vals, err := utils.GetAMFHandler().DecodeBatch(body, utils.AMF0)
	if err != nil {
		u.log.WithError(err).Debug("undecodable script data")
		return
	}
	isMeta := false
	for _, v := range vals {
		if name, ok := v.(string); ok && name == "onMetaData" {
			isMeta = true
			continue
		}
		if !isMeta {
			continue
		}
		if obj, ok := utils.ToAMFObj(v); ok {
			for k, val := range obj {
				u.info.Metadata[k] = val
			}
		}
	}
}
