package video

import "fmt"

const (
	FRAME_TYPE_KEY   uint8 = 1
	FRAME_TYPE_INTER uint8 = 2
	FRAME_TYPE_DISP  uint8 = 3

	CODEC_ID_AVC uint8 = 7

	AVC_PKT_TYPE_SEQHDR uint8 = 0
	AVC_PKT_TYPE_NALU   uint8 = 1
	AVC_PKT_TYPE_EOS    uint8 = 2

	SOUND_FMT_MP3   uint8 = 2
	SOUND_FMT_G711A uint8 = 7
	SOUND_FMT_G711U uint8 = 8
	SOUND_FMT_AAC   uint8 = 10

	AAC_PKT_TYPE_SEQHDR uint8 = 0
	AAC_PKT_TYPE_RAW    uint8 = 1
)

type PacketHeader interface {
	// Len is the number of tag body bytes taken by the header.
	Len() int
}

type VideoPacketHeader interface {
	PacketHeader
	IsKeyFrame() bool
	IsSeq() bool
	CodecID() uint8
	CompositionTime() int32
}

type AudioPacketHeader interface {
	PacketHeader
	SoundFmt() uint8
	AACPacketType() uint8
}

// Tag is the parsed header of an FLV/RTMP audio or video message body.
type Tag struct {
	soundFmt        uint8
	soundRate       uint8
	soundSize       uint8
	soundType       uint8
	aacPktType      uint8
	avcPktType      uint8
	frameType       uint8
	codecID         uint8
	compositionTime int32
	length          int
}

var (
	_ VideoPacketHeader = &Tag{}
	_ AudioPacketHeader = &Tag{}
)

// ParseTagHeader parses the header of a message body of the given type.
func ParseTagHeader(data []byte, dtype DataType) (*Tag, error) {
	var t Tag
	if err := t.ParsePacketHeader(data, dtype); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Tag) ParsePacketHeader(data []byte, dtype DataType) error {
	switch dtype {
	case DATA_TYPE_VIDEO:
		return t.parseVideoTag(data)
	case DATA_TYPE_AUDIO:
		return t.parseAudioTag(data)
	default:
		return fmt.Errorf("no packet header for %s", dtype)
	}
}

func (t *Tag) parseVideoTag(data []byte) error {
	if len(data) < 1 {
		return fmt.Errorf("invalid video packet len[%d]", len(data))
	}
	flags := data[0]
	t.frameType = flags >> 4
	t.codecID = flags & 0xf
	t.length = 1

	if t.codecID != CODEC_ID_AVC {
		return nil
	}
	if len(data) < 5 {
		return fmt.Errorf("invalid avc packet len[%d]", len(data))
	}
	t.avcPktType = data[1]
	var cts uint32
	for i := 0; i < 3; i++ {
		cts = cts<<8 | uint32(data[2+i])
	}
	// SI24: sign extend
	if cts&0x800000 != 0 {
		cts |= 0xff000000
	}
	t.compositionTime = int32(cts)
	t.length = 5
	return nil
}

func (t *Tag) parseAudioTag(data []byte) error {
	if len(data) < 1 {
		return fmt.Errorf("invalid audio packet len")
	}
	flags := data[0]
	t.soundFmt = flags >> 4
	t.soundRate = (flags >> 2) & 3
	t.soundSize = (flags >> 1) & 1
	t.soundType = flags & 1
	t.length = 1
	if t.soundFmt == SOUND_FMT_AAC {
		if len(data) < 2 {
			return fmt.Errorf("invalid aac packet len[%d]", len(data))
		}
		t.aacPktType = data[1]
		t.length = 2
	}
	return nil
}

func (t *Tag) Len() int {
	return t.length
}

func (t *Tag) IsKeyFrame() bool {
	return t.frameType == FRAME_TYPE_KEY
}

func (t *Tag) IsSeq() bool {
	return t.IsKeyFrame() && t.codecID == CODEC_ID_AVC && t.avcPktType == AVC_PKT_TYPE_SEQHDR
}

func (t *Tag) IsEndOfSequence() bool {
	return t.codecID == CODEC_ID_AVC && t.avcPktType == AVC_PKT_TYPE_EOS
}

func (t *Tag) CodecID() uint8 {
	return t.codecID
}

func (t *Tag) CompositionTime() int32 {
	return t.compositionTime
}

func (t *Tag) SoundFmt() uint8 {
	return t.soundFmt
}

func (t *Tag) AACPacketType() uint8 {
	return t.aacPktType
}

func (t *Tag) IsAACSeq() bool {
	return t.soundFmt == SOUND_FMT_AAC && t.aacPktType == AAC_PKT_TYPE_SEQHDR
}

// VideoCodecName names an FLV video codec id.
func VideoCodecName(id uint8) string {
	switch id {
	case 2:
		return "flv1"
	case 4:
		return "vp6f"
	case 5:
		return "vp6a"
	case CODEC_ID_AVC:
		return "h264"
	case 12:
		return "hevc"
	default:
		return fmt.Sprintf("codec_%d", id)
	}
}

// SoundFormatName names an FLV sound format.
func SoundFormatName(fmtID uint8) string {
	switch fmtID {
	case SOUND_FMT_MP3:
		return "mp3"
	case SOUND_FMT_G711A:
		return "pcm_alaw"
	case SOUND_FMT_G711U:
		return "pcm_mulaw"
	case SOUND_FMT_AAC:
		return "aac"
	default:
		return fmt.Sprintf("sound_%d", fmtID)
	}
}
