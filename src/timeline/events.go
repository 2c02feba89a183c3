package timeline

import (
	"streamripper/src/frametype"
	"streamripper/src/video"
)

// PacketEvent is one classified unit of stream data. It is created once and
// never modified after it is appended.
type PacketEvent struct {
	Kind         video.DataType `json:"stream_kind"`
	Sequence     int            `json:"sequence_number"`
	FrameType    frametype.Type `json:"-"`
	FrameLabel   string         `json:"frame_type"`
	TimestampMs  float64        `json:"presentation_timestamp_ms"`
	WallClockMs  float64        `json:"wall_clock_ms"`
	Size         int            `json:"size_bytes"`
	StreamOffset int64          `json:"stream_byte_offset"`
	DriftMs      float64        `json:"drift_ms"`
}

// Artifacts are the evidence files written for one corrupted packet.
type Artifacts struct {
	Binary  string `json:"binary,omitempty"`
	HexDump string `json:"hex_dump,omitempty"`
}

func (a Artifacts) Empty() bool {
	return a.Binary == "" && a.HexDump == ""
}

// CorruptionEvent is the metadata kept for a packet whose decode failed or
// produced nothing. The raw bytes are not part of it.
type CorruptionEvent struct {
	PacketIndex   int            `json:"packet_index"`
	Kind          video.DataType `json:"stream_kind"`
	ErrorKind     string         `json:"error_kind"`
	Error         string         `json:"error"`
	StreamOffset  int64          `json:"stream_byte_offset"`
	Size          int            `json:"size_bytes"`
	TimestampMs   float64        `json:"timestamp_ms"`
	HasTimestamp  bool           `json:"has_timestamp"`
	FrameTypeHint string         `json:"frame_type_hint"`
	NALType       int            `json:"nal_type"`
	Artifacts     Artifacts      `json:"artifacts"`
}
