package video

import "fmt"

type DataType byte

const (
	DATA_TYPE_VIDEO DataType = iota
	DATA_TYPE_AUDIO
	DATA_TYPE_META
)

func (dt DataType) String() string {
	switch dt {
	case DATA_TYPE_VIDEO:
		return "video"
	case DATA_TYPE_AUDIO:
		return "audio"
	case DATA_TYPE_META:
		return "meta"
	default:
		return fmt.Sprintf("datatype(%d)", byte(dt))
	}
}

func (dt DataType) MarshalText() ([]byte, error) {
	return []byte(dt.String()), nil
}

func (dt *DataType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "video":
		*dt = DATA_TYPE_VIDEO
	case "audio":
		*dt = DATA_TYPE_AUDIO
	case "meta":
		*dt = DATA_TYPE_META
	default:
		return fmt.Errorf("unknown data type %q", b)
	}
	return nil
}

// TimeBase is the rational unit of a stream's timestamps, in seconds.
type TimeBase struct {
	Num int64
	Den int64
}

// MillisecondTimeBase is used by FLV and RTMP.
var MillisecondTimeBase = TimeBase{Num: 1, Den: 1000}

// Millis converts a timestamp expressed in tb units to milliseconds.
func (tb TimeBase) Millis(ts int64) float64 {
	if tb.Den == 0 {
		return float64(ts)
	}
	return float64(ts) * float64(tb.Num) * 1000 / float64(tb.Den)
}

type Packet struct {
	DataType
	StreamId uint32
	Data     []byte
	// Timestamp is the container (decode order) timestamp in TimeBase units.
	Timestamp uint32
	PTS       int64
	HasPTS    bool
	TimeBase  TimeBase
	Header    PacketHeader
}

func (p *Packet) Size() int {
	return len(p.Data)
}

// PTSMillis returns the presentation timestamp in milliseconds.
func (p *Packet) PTSMillis() (float64, bool) {
	if !p.HasPTS {
		return 0, false
	}
	return p.TimeBase.Millis(p.PTS), true
}

// PictureType is the picture coding type reported by a decoder.
type PictureType byte

const (
	PICTURE_TYPE_NONE PictureType = iota
	PICTURE_TYPE_I
	PICTURE_TYPE_P
	PICTURE_TYPE_B
	PICTURE_TYPE_SI
	PICTURE_TYPE_SP
)

func (pt PictureType) String() string {
	switch pt {
	case PICTURE_TYPE_I:
		return "I"
	case PICTURE_TYPE_P:
		return "P"
	case PICTURE_TYPE_B:
		return "B"
	case PICTURE_TYPE_SI:
		return "SI"
	case PICTURE_TYPE_SP:
		return "SP"
	default:
		return "NONE"
	}
}

// Frame is one decoded picture. PTS is copied from the packet that produced it.
type Frame struct {
	PTS         int64
	HasPTS      bool
	TimeBase    TimeBase
	PictureType PictureType
}

func (f *Frame) PTSMillis() (float64, bool) {
	if !f.HasPTS {
		return 0, false
	}
	return f.TimeBase.Millis(f.PTS), true
}

// StreamInfo describes what a source found when it was opened.
type StreamInfo struct {
	VideoCodec string                 `json:"video_codec"`
	AudioCodec string                 `json:"audio_codec,omitempty"`
	HasAudio   bool                   `json:"has_audio"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
