// Package notify publishes corruption events of a running analysis to an
// MQTT broker.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"streamripper/src/timeline"
)

const (
	ENCODING_JSON    = "json"
	ENCODING_MSGPACK = "msgpack"

	DEFAULT_TOPIC = "streamripper/corruptions"

	CONNECT_TIMEOUT = 5 * time.Second
	PUBLISH_TIMEOUT = 2 * time.Second
)

type Config struct {
	// Broker is host:port or a full tcp://, ssl:// or ws:// URL.
	Broker   string
	Topic    string
	Encoding string
	QoS      byte
	ClientID string
}

// Message is the payload published for one corruption event.
type Message struct {
	RunID       string                   `json:"run_id"`
	Source      string                   `json:"source"`
	PublishedAt int64                    `json:"published_at_ms"`
	Event       timeline.CorruptionEvent `json:"event"`
}

// Encode serializes msg in the given encoding.
func Encode(encoding string, msg Message) ([]byte, error) {
	switch encoding {
	case "", ENCODING_JSON:
		return json.Marshal(msg)
	case ENCODING_MSGPACK:
		buf := bytes.NewBuffer(nil)
		enc := msgpack.NewEncoder(buf)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(msg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
}

type publishFunc func(topic string, qos byte, payload []byte) error

// MQTTPublisher sends every corruption event it is given to
// <topic>/<run id>.
type MQTTPublisher struct {
	cfg     Config
	source  string
	client  mqtt.Client
	publish publishFunc
	now     func() time.Time

	mu        sync.Mutex
	published uint64
	errors    uint64

	log *logrus.Entry
}

type Stats struct {
	Published uint64
	Errors    uint64
}

func normalize(cfg Config) Config {
	if cfg.Topic == "" {
		cfg.Topic = DEFAULT_TOPIC
	}
	cfg.Topic = strings.TrimSuffix(cfg.Topic, "/")
	if cfg.Encoding == "" {
		cfg.Encoding = ENCODING_JSON
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "streamripper-" + uuid.NewV4().String()
	}
	if cfg.Broker != "" && !strings.Contains(cfg.Broker, "://") {
		cfg.Broker = "tcp://" + cfg.Broker
	}
	return cfg
}

func newPublisher(cfg Config, source string, publish publishFunc) *MQTTPublisher {
	cfg = normalize(cfg)
	return &MQTTPublisher{
		cfg:     cfg,
		source:  source,
		publish: publish,
		now:     time.Now,
		log: logrus.WithFields(logrus.Fields{
			"component": "notify",
			"broker":    cfg.Broker,
			"topic":     cfg.Topic,
		}),
	}
}

// Dial connects to the broker. source is the stream URL put in every
// message; it should not carry credentials.
func Dial(ctx context.Context, cfg Config, source string) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker not set")
	}
	if _, err := Encode(cfg.Encoding, Message{}); err != nil {
		return nil, err
	}
	p := newPublisher(cfg, source, nil)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.cfg.Broker)
	opts.SetClientID(p.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		p.log.WithError(err).Warn("mqtt connection lost")
	}
	p.client = mqtt.NewClient(opts)
	p.publish = p.clientPublish

	timeout := CONNECT_TIMEOUT
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	if err := connect(p.client, timeout); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", p.cfg.Broker, err)
	}
	p.log.WithField("client_id", p.cfg.ClientID).Info("mqtt connected")
	return p, nil
}

type connector interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
}

// connect waits up to timeout for the connection. A failed or pending
// attempt is abandoned so it does not keep dialing in the background.
func connect(c connector, timeout time.Duration) error {
	token := c.Connect()
	if !token.WaitTimeout(timeout) {
		c.Disconnect(0)
		return fmt.Errorf("timeout after %s", timeout)
	}
	if err := token.Error(); err != nil {
		c.Disconnect(0)
		return err
	}
	return nil
}

func (p *MQTTPublisher) clientPublish(topic string, qos byte, payload []byte) error {
	token := p.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(PUBLISH_TIMEOUT) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}

// Corruption publishes ev.
func (p *MQTTPublisher) Corruption(runID string, ev timeline.CorruptionEvent) error {
	payload, err := Encode(p.cfg.Encoding, Message{
		RunID:       runID,
		Source:      p.source,
		PublishedAt: p.now().UnixMilli(),
		Event:       ev,
	})
	if err != nil {
		p.countError()
		return fmt.Errorf("encode corruption event: %w", err)
	}

	topic := p.cfg.Topic + "/" + runID
	if err := p.publish(topic, p.cfg.QoS, payload); err != nil {
		p.countError()
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()
	p.log.WithFields(logrus.Fields{
		"packet_index": ev.PacketIndex,
		"size":         len(payload),
	}).Debug("corruption event published")
	return nil
}

func (p *MQTTPublisher) countError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}

func (p *MQTTPublisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Published: p.published, Errors: p.errors}
}

// Close disconnects from the broker after a short grace period.
func (p *MQTTPublisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		p.log.Info("mqtt disconnected")
	}
}
