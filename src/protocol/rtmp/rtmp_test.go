package rtmp

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"streamripper/src/protocol/flv"
	"streamripper/src/utils"
	"streamripper/src/video"
)

func bufferConn(raw []byte) *connection {
	return &connection{
		rw:              utils.NewReadWriter(bytes.NewBuffer(raw)),
		chunkSize:       DEFAULT_CHUNK_SIZE,
		remoteChunkSize: DEFAULT_CHUNK_SIZE,
		windowAckSize:   WINDOW_ACK_SIZE,
		chunkMap:        make(map[uint32]*chunk),
		log:             logrus.WithField("component", "rtmp"),
	}
}

func TestReadMsgHeaderFormats(t *testing.T) {
	raw := []byte{
		// fmt 0, csid 4, ts 100, len 3, audio, stream 1
		0x04, 0x00, 0x00, 0x64, 0x00, 0x00, 0x03, 0x08, 0x01, 0x00, 0x00, 0x00, 'a', 'b', 'c',
		// fmt 2, delta 10
		0x84, 0x00, 0x00, 0x0a, 'd', 'e', 'f',
		// fmt 3, same delta
		0xc4, 'g', 'h', 'i',
		// fmt 0 with extended timestamp
		0x04, 0xff, 0xff, 0xff, 0x00, 0x00, 0x01, 0x09, 0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 'j',
	}
	c := bufferConn(raw)
	want := []struct {
		ts   uint32
		typ  byte
		data string
	}{
		{100, TYPE_ID_AUDIO_MSG, "abc"},
		{110, TYPE_ID_AUDIO_MSG, "def"},
		{120, TYPE_ID_AUDIO_MSG, "ghi"},
		{0x01000000, TYPE_ID_VIDEO_MSG, "j"},
	}
	for i, w := range want {
		msg, err := c.readMsg()
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if msg.timestamp != w.ts || msg.typeId != w.typ || string(msg.data) != w.data {
			t.Errorf("message %d: ts %d type %d data %q", i, msg.timestamp, msg.typeId, msg.data)
		}
		if msg.streamId != 1 {
			t.Errorf("message %d: stream id %d", i, msg.streamId)
		}
	}
	if _, err := c.readMsg(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadMsgInterleavedHeaderFails(t *testing.T) {
	raw := []byte{
		0x04, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x08, 0x01, 0x00, 0x00, 0x00,
	}
	raw = append(raw, make([]byte, DEFAULT_CHUNK_SIZE)...)
	raw = append(raw, 0x84, 0x00, 0x00, 0x01)
	c := bufferConn(raw)
	if _, err := c.readMsg(); err == nil {
		t.Fatal("expected error for a new header inside an unfinished message")
	}
}

func TestWriteChunkSplitsPayload(t *testing.T) {
	out := bytes.NewBuffer(nil)
	c := bufferConn(nil)
	c.rw = utils.NewReadWriter(out)

	payload := bytes.Repeat([]byte{0xaa}, 2*DEFAULT_CHUNK_SIZE)
	ch := newChunk(TYPE_ID_VIDEO_MSG, CSID_AUTO, 1, payload)
	ch.timestamp = 40
	if err := c.writeChunk(ch); err != nil {
		t.Fatal(err)
	}
	// 12 byte header, payload chunk, 1 byte fmt 3 header, payload chunk
	if got, want := out.Len(), 12+DEFAULT_CHUNK_SIZE+1+DEFAULT_CHUNK_SIZE; got != want {
		t.Fatalf("wrote %d bytes, want %d", got, want)
	}

	r := bufferConn(out.Bytes())
	msg, err := r.readMsg()
	if err != nil {
		t.Fatal(err)
	}
	if msg.timestamp != 40 || !bytes.Equal(msg.data, payload) {
		t.Errorf("round trip mismatch: ts %d len %d", msg.timestamp, len(msg.data))
	}
}

type publisher struct {
	t *testing.T
	c *connection
}

func dialPublisher(t *testing.T, addr string) *publisher {
	t.Helper()
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	c := newConn(nc)

	c0c1 := make([]byte, 1+HANDSHAKE_PKT_LEN)
	c0c1[0] = 3
	copy(c0c1[9:], utils.RandBytes(HANDSHAKE_RAND_LEN))
	c.rw.Write(c0c1)
	if err := c.rw.Flush(); err != nil {
		t.Fatal(err)
	}
	s0s1s2 := make([]byte, 1+2*HANDSHAKE_PKT_LEN)
	if _, err := io.ReadFull(c.rw, s0s1s2); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(s0s1s2[1+HANDSHAKE_PKT_LEN+8:], c0c1[9:]) {
		t.Error("s2 does not echo c1")
	}
	c.rw.Write(s0s1s2[1 : 1+HANDSHAKE_PKT_LEN])
	if err := c.rw.Flush(); err != nil {
		t.Fatal(err)
	}
	return &publisher{t: t, c: c}
}

func (p *publisher) command(streamID uint32, args ...interface{}) {
	p.t.Helper()
	if err := p.c.writeAmfMsg(TYPE_ID_CMD_MSG_AMF0, CSID_CMD, streamID, args...); err != nil {
		p.t.Fatal(err)
	}
}

func (p *publisher) publish(app, name string) {
	p.command(0, CMD_CONNECT, 1, map[string]interface{}{
		"app":   app,
		"tcUrl": "rtmp://127.0.0.1/" + app,
	})
	p.command(0, CMD_CREATE_STREAM, 2, nil)
	p.command(1, CMD_PUBLISH, 3, nil, name, "live")
}

func (p *publisher) send(typeID byte, ts uint32, body []byte) {
	p.t.Helper()
	ch := newChunk(typeID, CSID_AUTO, 1, body)
	ch.timestamp = ts
	if err := p.c.writeChunk(ch); err != nil {
		p.t.Fatal(err)
	}
}

func TestPublishToSource(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", "/live/cam/")
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	go srv.Serve()

	idr := append([]byte{0x65, 0x88, 0x84, 0x00, 0x21}, bytes.Repeat([]byte{0x5a}, 300)...)
	pSlice := append([]byte{0x41, 0x9a, 0x02, 0x0c}, bytes.Repeat([]byte{0x3c}, 300)...)

	pub := dialPublisher(t, srv.Addr().String())
	defer pub.c.Close()
	pub.publish("live", "cam?token=abc")
	if err := pub.c.writeAmfMsg(TYPE_ID_DATA_MSG_AMF0, CSID_AUTO, 1, "@setDataFrame", "onMetaData",
		map[string]interface{}{"encoder": "unit-test"}); err != nil {
		t.Fatal(err)
	}
	pub.send(TYPE_ID_VIDEO_MSG, 0, flv.AVCTagBody(true, video.AVC_PKT_TYPE_SEQHDR, 0,
		[]byte{0x01, 0x42, 0xc0, 0x1f, 0xff, 0xe0, 0x00}))
	pub.send(TYPE_ID_VIDEO_MSG, 0, flv.AVCTagBody(true, video.AVC_PKT_TYPE_NALU, 0, flv.AVCC(idr)))

	bs4 := make([]byte, 4)
	binary.BigEndian.PutUint32(bs4, 4096)
	pub.send(TYPE_ID_SET_CHUNK_SIZE, 0, bs4)
	pub.send(TYPE_ID_VIDEO_MSG, 40, flv.AVCTagBody(false, video.AVC_PKT_TYPE_NALU, 0, flv.AVCC(pSlice)))
	pub.send(TYPE_ID_AUDIO_MSG, 23, flv.AACTagBody(video.AAC_PKT_TYPE_RAW, []byte{0x21, 0x00}))
	pub.command(1, CMD_DELETE_STREAM, 4, nil, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	src, err := srv.Accept(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if src.Name() != "live/cam" {
		t.Errorf("stream name %q", src.Name())
	}
	if src.Info().VideoCodec != "h264" {
		t.Errorf("video codec %q", src.Info().VideoCodec)
	}
	if srv.Publishers() != 1 {
		t.Errorf("publishers %d", srv.Publishers())
	}

	annexB := func(n []byte) []byte { return append([]byte{0, 0, 0, 1}, n...) }
	want := []struct {
		dt   video.DataType
		ts   uint32
		data []byte
	}{
		{video.DATA_TYPE_META, 0, nil},
		{video.DATA_TYPE_META, 0, nil},
		{video.DATA_TYPE_VIDEO, 0, annexB(idr)},
		{video.DATA_TYPE_VIDEO, 40, annexB(pSlice)},
		{video.DATA_TYPE_AUDIO, 23, []byte{0x21, 0x00}},
	}
	for i, w := range want {
		var p video.Packet
		if err := src.Read(&p); err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		if p.DataType != w.dt {
			t.Fatalf("packet %d: type %s, want %s", i, p.DataType, w.dt)
		}
		if w.data == nil {
			continue
		}
		if p.Timestamp != w.ts || !bytes.Equal(p.Data, w.data) {
			t.Errorf("packet %d: ts %d, %d bytes", i, p.Timestamp, len(p.Data))
		}
	}
	if src.Info().Metadata["encoder"] != "unit-test" {
		t.Errorf("metadata %v", src.Info().Metadata)
	}
	var p video.Packet
	if err := src.Read(&p); err != io.EOF {
		t.Fatalf("expected io.EOF after deleteStream, got %v", err)
	}
}

func TestRejectsOtherStream(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", "live/cam")
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	go srv.Serve()

	pub := dialPublisher(t, srv.Addr().String())
	defer pub.c.Close()
	pub.publish("live", "other")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if _, err := srv.Accept(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if srv.Publishers() != 0 {
		t.Errorf("publishers %d", srv.Publishers())
	}
}
