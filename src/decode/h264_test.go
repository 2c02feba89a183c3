package decode

import (
	"errors"
	"testing"

	"streamripper/src/video"
)

func annexB(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		out = append(out, 0, 0, 0, 1)
		out = append(out, n...)
	}
	return out
}

var (
	sps      = []byte{0x67, 0x42, 0xc0, 0x1f, 0xda}
	pps      = []byte{0x68, 0xce, 0x3c, 0x80}
	idrSlice = []byte{0x65, 0x88, 0x84, 0x00, 0x21}
	pSlice   = []byte{0x41, 0x9a, 0x02, 0x0c}
	bSlice   = []byte{0x01, 0x9c, 0x40, 0x08}
)

func videoPacket(data []byte) *video.Packet {
	return &video.Packet{
		DataType: video.DATA_TYPE_VIDEO,
		Data:     data,
		PTS:      66,
		HasPTS:   true,
		TimeBase: video.MillisecondTimeBase,
	}
}

func TestDecodePictureTypes(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want video.PictureType
	}{
		{"idr with parameter sets", annexB(sps, pps, idrSlice), video.PICTURE_TYPE_I},
		{"p slice", annexB(pSlice), video.PICTURE_TYPE_P},
		{"b slice", annexB(bSlice), video.PICTURE_TYPE_B},
	}
	d := NewH264Decoder(Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, err := d.Decode(videoPacket(tt.data))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(frames) != 1 {
				t.Fatalf("got %d frames, want 1", len(frames))
			}
			f := frames[0]
			if f.PictureType != tt.want {
				t.Fatalf("PictureType = %s, want %s", f.PictureType, tt.want)
			}
			if ms, ok := f.PTSMillis(); !ok || ms != 66 {
				t.Fatalf("PTS = %v/%v", ms, ok)
			}
		})
	}
}

func TestDecodeWithoutSlicesYieldsNoFrames(t *testing.T) {
	frames, err := NewH264Decoder(Config{}).Decode(videoPacket(annexB(sps, pps)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("got %d frames, want 0", len(frames))
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		max  int
		want error
	}{
		{"no start code", []byte{0x12, 0x34, 0x56, 0x78}, 0, video.ErrInvalidData},
		{"forbidden bit", annexB([]byte{0xe5, 0x88}), 0, video.ErrInvalidData},
		{"truncated slice header", annexB([]byte{0x41, 0x00, 0x80}), 0, video.ErrUnexpectedEOF},
		{"idr carrying p slice", annexB([]byte{0x65, 0x9a, 0x02}), 0, video.ErrInvalidData},
		{"oversized unit", annexB(idrSlice), 4, video.ErrBufferTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewH264Decoder(Config{MaxAccessUnitSize: tt.max}).Decode(videoPacket(tt.data))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeEmptyPacket(t *testing.T) {
	frames, err := NewH264Decoder(Config{}).Decode(videoPacket(nil))
	if err != nil || frames != nil {
		t.Fatalf("Decode(nil) = %v, %v", frames, err)
	}
}

func TestDecodeAccessUnitLimitIsClamped(t *testing.T) {
	d := NewH264Decoder(Config{MaxAccessUnitSize: 4 * DEFAULT_MAX_AU_SIZE})
	if d.cfg.MaxAccessUnitSize != DEFAULT_MAX_AU_SIZE {
		t.Fatalf("limit = %d, want %d", d.cfg.MaxAccessUnitSize, DEFAULT_MAX_AU_SIZE)
	}
	data := append(annexB(idrSlice), make([]byte, DEFAULT_MAX_AU_SIZE)...)
	if _, err := d.Decode(videoPacket(data)); !errors.Is(err, video.ErrBufferTooSmall) {
		t.Fatalf("err = %v, want %v", err, video.ErrBufferTooSmall)
	}
}

func TestDecodeManySlices(t *testing.T) {
	slices := make([][]byte, 30)
	for i := range slices {
		slices[i] = idrSlice
	}
	frames, err := NewH264Decoder(Config{}).Decode(videoPacket(annexB(slices...)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(frames) != 1 || frames[0].PictureType != video.PICTURE_TYPE_I {
		t.Fatalf("frames = %+v", frames)
	}
}
