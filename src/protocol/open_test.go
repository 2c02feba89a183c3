package protocol

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"streamripper/src/protocol/flv"
	"streamripper/src/video"
)

func writeFLV(t *testing.T) string {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	w, err := flv.NewWriter(buf, false, true)
	if err != nil {
		t.Fatal(err)
	}
	body := flv.AVCTagBody(true, video.AVC_PKT_TYPE_NALU, 0, flv.AVCC([]byte{0x65, 0x88, 0x84, 0x00, 0x21}))
	if err := w.WriteTag(flv.TAG_TYPE_VIDEO, 0, body); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "clip.flv")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenFile(t *testing.T) {
	path := writeFLV(t)
	for _, u := range []string{path, "file://" + path} {
		src, err := Open(context.Background(), u, Options{})
		if err != nil {
			t.Fatalf("%s: %v", u, err)
		}
		if src.Info().VideoCodec != "h264" {
			t.Errorf("%s: video codec %q", u, src.Info().VideoCodec)
		}
		src.Close()
	}
}

func TestOpenErrors(t *testing.T) {
	for _, u := range []string{
		"rtsp://camera.local/stream1",
		filepath.Join(t.TempDir(), "missing.flv"),
	} {
		if _, err := Open(context.Background(), u, Options{}); err == nil {
			t.Errorf("%s: expected error", u)
		}
	}
}
