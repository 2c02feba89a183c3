package httpflv

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"streamripper/src/protocol/flv"
	"streamripper/src/video"
)

func flvStream(t *testing.T) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	w, err := flv.NewWriter(buf, false, true)
	if err != nil {
		t.Fatal(err)
	}
	for i, nalu := range [][]byte{{0x65, 0x88, 0x84, 0x00, 0x21}, {0x41, 0x9a, 0x02, 0x0c}} {
		body := flv.AVCTagBody(i == 0, video.AVC_PKT_TYPE_NALU, 0, flv.AVCC(nalu))
		if err := w.WriteTag(flv.TAG_TYPE_VIDEO, uint32(i*40), body); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

func TestDialReadsStream(t *testing.T) {
	stream := flvStream(t)
	var gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "video/x-flv")
		w.Write(stream)
	}))
	defer srv.Close()

	url := strings.Replace(srv.URL, "http://", "http://admin:secret@", 1) + "/live/cam.flv"
	d, err := Dial(context.Background(), url, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if gotUser != "admin" {
		t.Errorf("basic auth user %q", gotUser)
	}
	if d.Info().VideoCodec != "h264" {
		t.Errorf("video codec %q", d.Info().VideoCodec)
	}
	n := 0
	for {
		var p video.Packet
		err := d.Read(&p)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if p.DataType != video.DATA_TYPE_VIDEO {
			t.Fatalf("unexpected %s packet", p.DataType)
		}
		n++
	}
	if n != 2 {
		t.Errorf("read %d packets, want 2", n)
	}
}

func TestDialBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := Dial(context.Background(), srv.URL+"/missing.flv", srv.Client()); err == nil {
		t.Fatal("expected error for 404")
	}
}
