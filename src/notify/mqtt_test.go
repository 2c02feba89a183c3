package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"streamripper/src/timeline"
	"streamripper/src/video"
)

type published struct {
	topic   string
	qos     byte
	payload []byte
}

func sampleEvent() timeline.CorruptionEvent {
	return timeline.CorruptionEvent{
		PacketIndex:   3,
		Kind:          video.DATA_TYPE_VIDEO,
		ErrorKind:     "InvalidBitstreamData",
		Error:         "invalid data found when processing input",
		StreamOffset:  0x898,
		Size:          900,
		FrameTypeHint: "P-frame (non-IDR slice)",
		NALType:       1,
	}
}

func TestCorruptionJSON(t *testing.T) {
	var got []published
	p := newPublisher(Config{Topic: "cams/"}, "rtsp://cam/ch0", func(topic string, qos byte, payload []byte) error {
		got = append(got, published{topic, qos, payload})
		return nil
	})
	p.now = func() time.Time { return time.UnixMilli(1714564800123) }

	if err := p.Corruption("run-1", sampleEvent()); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].topic != "cams/run-1" {
		t.Fatalf("published %+v", got)
	}

	var msg map[string]interface{}
	if err := json.Unmarshal(got[0].payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg["run_id"] != "run-1" || msg["source"] != "rtsp://cam/ch0" || msg["published_at_ms"] != float64(1714564800123) {
		t.Errorf("unexpected message %v", msg)
	}
	ev := msg["event"].(map[string]interface{})
	if ev["stream_kind"] != "video" || ev["stream_byte_offset"] != float64(0x898) {
		t.Errorf("unexpected event %v", ev)
	}
	if s := p.Stats(); s.Published != 1 || s.Errors != 0 {
		t.Errorf("stats %+v", s)
	}
}

func TestCorruptionMsgpack(t *testing.T) {
	var payload []byte
	p := newPublisher(Config{Encoding: ENCODING_MSGPACK, QoS: 1}, "", func(topic string, qos byte, b []byte) error {
		if topic != DEFAULT_TOPIC+"/run-2" || qos != 1 {
			t.Errorf("topic %q qos %d", topic, qos)
		}
		payload = b
		return nil
	})
	if err := p.Corruption("run-2", sampleEvent()); err != nil {
		t.Fatal(err)
	}

	var msg map[string]interface{}
	if err := msgpack.Unmarshal(payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg["run_id"] != "run-2" {
		t.Errorf("run_id = %v", msg["run_id"])
	}
	ev, ok := msg["event"].(map[string]interface{})
	if !ok || ev["error_kind"] != "InvalidBitstreamData" {
		t.Errorf("event = %v", msg["event"])
	}
}

func TestCorruptionPublishError(t *testing.T) {
	p := newPublisher(Config{}, "", func(string, byte, []byte) error {
		return errors.New("not connected")
	})
	err := p.Corruption("run-3", sampleEvent())
	if err == nil || !strings.Contains(err.Error(), "not connected") {
		t.Fatalf("err = %v", err)
	}
	if s := p.Stats(); s.Published != 0 || s.Errors != 1 {
		t.Errorf("stats %+v", s)
	}
}

func TestEncodeUnknown(t *testing.T) {
	if _, err := Encode("xml", Message{}); err == nil {
		t.Error("expected error")
	}
}

func TestNormalize(t *testing.T) {
	cfg := normalize(Config{Broker: "localhost:1883"})
	if cfg.Broker != "tcp://localhost:1883" || cfg.Topic != DEFAULT_TOPIC || cfg.Encoding != ENCODING_JSON {
		t.Errorf("normalize = %+v", cfg)
	}
	if !strings.HasPrefix(cfg.ClientID, "streamripper-") {
		t.Errorf("client id %q", cfg.ClientID)
	}
	if cfg := normalize(Config{Broker: "ssl://broker:8883"}); cfg.Broker != "ssl://broker:8883" {
		t.Errorf("broker %q", cfg.Broker)
	}
}

func TestDialValidates(t *testing.T) {
	if _, err := Dial(context.Background(), Config{}, ""); err == nil {
		t.Error("expected error without broker")
	}
	if _, err := Dial(context.Background(), Config{Broker: "localhost:1", Encoding: "xml"}, ""); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type fakeConnector struct {
	token        *fakeToken
	disconnected int
}

func (c *fakeConnector) Connect() mqtt.Token     { return c.token }
func (c *fakeConnector) Disconnect(quiesce uint) { c.disconnected++ }

func TestConnectAbandonsFailedAttempt(t *testing.T) {
	finished := make(chan struct{})
	close(finished)
	tests := []struct {
		name           string
		token          *fakeToken
		wantErr        bool
		wantDisconnect int
	}{
		{"connected", &fakeToken{done: finished}, false, 0},
		{"refused", &fakeToken{done: finished, err: errors.New("connection refused")}, true, 1},
		{"timeout", &fakeToken{done: make(chan struct{})}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeConnector{token: tt.token}
			err := connect(c, 10*time.Millisecond)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if c.disconnected != tt.wantDisconnect {
				t.Errorf("disconnected %d times, want %d", c.disconnected, tt.wantDisconnect)
			}
		})
	}
}
