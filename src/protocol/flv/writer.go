package flv

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Writer muxes tag bodies into an FLV byte stream. It is the inverse of
// Demuxer and is used to replay captured message bodies as FLV.
type Writer struct {
	w      io.Writer
	buf    []byte
	closed bool
}

func NewWriter(w io.Writer, hasAudio, hasVideo bool) (*Writer, error) {
	fw := &Writer{
		w:   w,
		buf: make([]byte, TAG_HEADER_LEN),
	}
	var flags byte
	if hasAudio {
		flags |= FLAG_AUDIO
	}
	if hasVideo {
		flags |= FLAG_VIDEO
	}
	hdr := []byte{'F', 'L', 'V', 0x01, flags, 0x00, 0x00, 0x00, HEADER_LEN, 0, 0, 0, 0}
	if _, err := w.Write(hdr); err != nil {
		return nil, err
	}
	return fw, nil
}

// WriteTag writes one tag and its trailing PreviousTagSize.
func (fw *Writer) WriteTag(typeID byte, timestamp uint32, body []byte) error {
	if fw.closed {
		return fmt.Errorf("flv writer closed")
	}
	dataLen := len(body)
	if dataLen > 0xffffff {
		return fmt.Errorf("tag body of %d bytes too large", dataLen)
	}
	hbts := fw.buf[:TAG_HEADER_LEN]
	timestampBase := timestamp & 0xffffff
	timestampExt := timestamp >> 24 & 0xff

	binary.BigEndian.PutUint32(hbts[:4], uint32(typeID)<<24|uint32(dataLen))
	binary.BigEndian.PutUint32(hbts[4:8], timestampBase<<8|timestampExt)
	hbts[8], hbts[9], hbts[10] = 0, 0, 0

	if _, err := fw.w.Write(hbts); err != nil {
		return err
	}
	if _, err := fw.w.Write(body); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(hbts[:4], uint32(dataLen+TAG_HEADER_LEN))
	_, err := fw.w.Write(hbts[:4])
	return err
}

func (fw *Writer) Close() error {
	fw.closed = true
	if c, ok := fw.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// AVCTagBody builds an AVC video tag body around payload.
func AVCTagBody(key bool, pktType uint8, cts int32, payload []byte) []byte {
	frameType := uint8(2)
	if key {
		frameType = 1
	}
	body := make([]byte, 5, 5+len(payload))
	body[0] = frameType<<4 | 7
	body[1] = pktType
	body[2] = byte(uint32(cts) >> 16)
	body[3] = byte(uint32(cts) >> 8)
	body[4] = byte(cts)
	return append(body, payload...)
}

// AACTagBody builds an AAC audio tag body (44.1 kHz, 16 bit, stereo).
func AACTagBody(pktType uint8, payload []byte) []byte {
	body := make([]byte, 2, 2+len(payload))
	body[0] = 10<<4 | 3<<2 | 1<<1 | 1
	body[1] = pktType
	return append(body, payload...)
}

// AVCC length-prefixes each NALU with four bytes.
func AVCC(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		l := make([]byte, 4)
		binary.BigEndian.PutUint32(l, uint32(len(n)))
		out = append(out, l...)
		out = append(out, n...)
	}
	return out
}
