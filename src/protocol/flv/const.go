package flv

import "errors"

const (
	TAG_TYPE_AUDIO  byte = 8
	TAG_TYPE_VIDEO  byte = 9
	TAG_TYPE_SCRIPT byte = 18

	HEADER_LEN     = 9
	TAG_HEADER_LEN = 11

	FLAG_AUDIO byte = 0x04
	FLAG_VIDEO byte = 0x01

	// PROBE_TAG_LIMIT bounds how many tags are read ahead to fill StreamInfo.
	PROBE_TAG_LIMIT = 32
)

var (
	ErrNotFLV       = errors.New("not an FLV stream")
	ErrEncryptedTag = errors.New("encrypted FLV tags are not supported")
)
