// Package forensic turns decode failures into corruption events and, when
// capture is enabled, persists the offending packet bytes as evidence.
package forensic

import (
	"time"

	"github.com/sirupsen/logrus"

	"streamripper/src/frametype"
	"streamripper/src/timeline"
	"streamripper/src/video"
)

// Failure describes one packet that failed to decode or decoded to nothing.
type Failure struct {
	PacketIndex int
	Offset      int64
	Packet      *video.Packet
	// Err is the decoder error; nil means the decode produced no frames.
	Err error
}

func (f Failure) kind() ErrorKind {
	if f.Err == nil {
		return NoFramesDecoded
	}
	return Classify(f.Err)
}

type Detector struct {
	store *EvidenceStore
	now   func() time.Time
	log   *logrus.Entry
}

type Option func(*Detector)

// WithEvidenceStore enables forensic capture into store.
func WithEvidenceStore(store *EvidenceStore) Option {
	return func(d *Detector) {
		d.store = store
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(d *Detector) {
		d.log = log
	}
}

func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		now: time.Now,
		log: logrus.WithField("component", "forensic"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Capturing reports whether evidence is persisted.
func (d *Detector) Capturing() bool {
	return d.store != nil
}

// Record builds the corruption event for f, persisting evidence when capture
// is enabled. Persistence failures are logged and leave the event without
// artifacts. The packet's bytes are released before returning.
func (d *Detector) Record(f Failure) timeline.CorruptionEvent {
	p := f.Packet
	kind := f.kind()
	class := frametype.Classify(p.Data)

	ev := timeline.CorruptionEvent{
		PacketIndex:   f.PacketIndex,
		Kind:          p.DataType,
		ErrorKind:     kind.String(),
		StreamOffset:  f.Offset,
		Size:          p.Size(),
		FrameTypeHint: class.Description,
		NALType:       class.Code,
	}
	if f.Err != nil {
		ev.Error = f.Err.Error()
	} else {
		ev.Error = "Packet produced no decoded frames"
	}
	if ts, ok := p.PTSMillis(); ok {
		ev.TimestampMs = ts
		ev.HasTimestamp = true
	}

	log := d.log.WithFields(logrus.Fields{
		"packet_index": ev.PacketIndex,
		"offset":       ev.StreamOffset,
		"size":         ev.Size,
		"error_kind":   ev.ErrorKind,
		"frame_type":   ev.FrameTypeHint,
	})

	if d.store != nil {
		arts, err := d.store.Persist(Evidence{
			Kind:      p.DataType,
			Offset:    f.Offset,
			Data:      p.Data,
			Class:     class,
			Generated: d.now(),
		})
		if err != nil {
			log.WithError(err).Warn("could not save evidence")
		}
		ev.Artifacts = arts
	}
	p.Data = nil

	log.Info("corrupted packet")
	return ev
}
