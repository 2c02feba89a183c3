// Package analyzer drives one diagnostic run: it pulls packets from a source,
// tracks offsets, decodes video, records corruption and timing, and returns
// the collected Result.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"streamripper/src/drift"
	"streamripper/src/forensic"
	"streamripper/src/frametype"
	"streamripper/src/timeline"
	"streamripper/src/utils"
	"streamripper/src/video"
)

const DEFAULT_DURATION = 30 * time.Second

type Config struct {
	// URL is recorded in the result; it should not carry credentials.
	URL string
	// Duration bounds the run. Zero means until the source ends.
	Duration time.Duration
	// Forensic enables evidence persistence into EvidenceDir. Corruption
	// events are recorded either way.
	Forensic    bool
	EvidenceDir string
	// RawStreamPath, when set, receives every video packet payload in order.
	RawStreamPath string
	Clock         func() time.Time
}

// CorruptionSink is told about each corruption event after its evidence has
// been persisted. Errors are logged and otherwise ignored.
type CorruptionSink interface {
	Corruption(runID string, ev timeline.CorruptionEvent) error
}

type Analyzer struct {
	cfg      Config
	src      video.Source
	dec      video.Decoder
	agg      *timeline.Aggregator
	tracker  *drift.Tracker
	detector *forensic.Detector
	store    *forensic.EvidenceStore
	raw      video.Writer
	sinks    []CorruptionSink
	runID    string
	closeSrc sync.Once
	log      *logrus.Entry
}

type Option func(*Analyzer)

func WithSink(sink CorruptionSink) Option {
	return func(a *Analyzer) {
		a.sinks = append(a.sinks, sink)
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(a *Analyzer) {
		a.log = log
	}
}

func WithRunID(id string) Option {
	return func(a *Analyzer) {
		a.runID = id
	}
}

// WithRawWriter replaces the file writer selected by Config.RawStreamPath.
func WithRawWriter(w video.Writer) Option {
	return func(a *Analyzer) {
		a.raw = w
	}
}

func New(cfg Config, src video.Source, dec video.Decoder, opts ...Option) *Analyzer {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	a := &Analyzer{
		cfg:     cfg,
		src:     src,
		dec:     dec,
		agg:     timeline.NewAggregator(),
		tracker: drift.NewTracker(),
		runID:   newRunID(),
		log:     logrus.WithField("component", "analyzer"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.WithField("run", a.runID)

	dopts := []forensic.Option{
		forensic.WithClock(cfg.Clock),
		forensic.WithLogger(a.log.WithField("component", "forensic")),
	}
	if cfg.Forensic && cfg.EvidenceDir != "" {
		a.store = forensic.NewEvidenceStore(cfg.EvidenceDir)
		dopts = append(dopts, forensic.WithEvidenceStore(a.store))
	}
	a.detector = forensic.NewDetector(dopts...)
	return a
}

func (a *Analyzer) RunID() string {
	return a.runID
}

func (a *Analyzer) now() time.Time {
	return a.cfg.Clock()
}

func (a *Analyzer) wallMs() float64 {
	return float64(a.now().UnixNano()) / float64(time.Millisecond)
}

// Run reads packets until the source ends, the duration budget is spent or
// ctx is cancelled. Decode failures never end a run.
func (a *Analyzer) Run(ctx context.Context) *Result {
	start := a.now()
	res := &Result{
		RunID:     a.runID,
		URL:       a.cfg.URL,
		Stream:    a.src.Info(),
		StartedAt: start,
		Forensic:  a.detector.Capturing(),
	}
	if a.store != nil {
		res.EvidenceDir = a.store.Dir()
	}
	a.openRaw(res)

	runCtx := ctx
	if a.cfg.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.cfg.Duration)
		defer cancel()
	}
	// A blocked Read is released by closing the source.
	stop := context.AfterFunc(runCtx, a.closeSource)
	defer stop()

	a.log.WithFields(logrus.Fields{
		"url":      a.cfg.URL,
		"duration": a.cfg.Duration,
		"forensic": res.Forensic,
	}).Info("analysis started")

	deadline := start.Add(a.cfg.Duration)
	for runCtx.Err() == nil {
		if a.cfg.Duration > 0 && !a.now().Before(deadline) {
			a.log.Debug("duration reached")
			break
		}
		var p video.Packet
		if err := a.src.Read(&p); err != nil {
			if !errors.Is(err, io.EOF) && runCtx.Err() == nil {
				a.log.WithError(err).Error("stream read failed")
				res.ReadError = err.Error()
			}
			break
		}
		a.process(&p)
	}

	a.finalize(res)
	return res
}

func (a *Analyzer) openRaw(res *Result) {
	if a.raw != nil || a.cfg.RawStreamPath == "" {
		return
	}
	fw, err := NewFileWriter(a.cfg.RawStreamPath)
	if err != nil {
		a.log.WithError(err).Warn("raw stream will not be saved")
		return
	}
	a.raw = fw
	res.RawStreamPath = a.cfg.RawStreamPath
}

func (a *Analyzer) closeSource() {
	a.closeSrc.Do(func() {
		if err := a.src.Close(); err != nil {
			a.log.WithError(err).Debug("close source")
		}
	})
}

func (a *Analyzer) finalize(res *Result) {
	if c, ok := a.raw.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.log.WithError(err).Warn("could not finish raw stream file")
		}
	}
	a.closeSource()

	res.FinishedAt = a.now()
	res.Timeline = a.agg.Timeline()
	res.Corruptions = a.agg.Corruptions()
	res.Summary = a.agg.Summarize(res.Elapsed())
	res.VideoBytes = a.agg.Offset(video.DATA_TYPE_VIDEO)
	res.AudioBytes = a.agg.Offset(video.DATA_TYPE_AUDIO)
	if a.store != nil {
		res.EvidenceFiles = a.store.Count()
	}

	a.log.WithFields(logrus.Fields{
		"events":      len(res.Timeline),
		"corruptions": len(res.Corruptions),
		"evidence":    res.EvidenceFiles,
		"video_bytes": res.VideoBytes,
		"elapsed":     res.Elapsed(),
	}).Info("analysis finished")
}

func (a *Analyzer) process(p *video.Packet) {
	switch p.DataType {
	case video.DATA_TYPE_VIDEO:
		off := a.agg.Observe(p.DataType, p.Size())
		a.saveRaw(p)
		a.processVideo(p, off)
	case video.DATA_TYPE_AUDIO:
		off := a.agg.Observe(p.DataType, p.Size())
		a.processAudio(p, off)
	}
}

func (a *Analyzer) saveRaw(p *video.Packet) {
	if a.raw == nil {
		return
	}
	if err := a.raw.Write(p); err != nil {
		a.log.WithError(err).Warn("raw stream write failed")
	}
}

func (a *Analyzer) decode(p *video.Packet) (frames []video.Frame, err error) {
	defer utils.HandlePanic(func(perr error) {
		frames = nil
		err = fmt.Errorf("%w: %v", video.ErrDecoderBug, perr)
	})
	return a.dec.Decode(p)
}

func (a *Analyzer) processVideo(p *video.Packet, off int64) {
	size := p.Size()
	frames, err := a.decode(p)
	if err != nil || (len(frames) == 0 && size > 0) {
		a.recordCorruption(p, off, err)
		return
	}

	for i := range frames {
		f := &frames[i]
		ptsMs, ok := f.PTSMillis()
		if !ok {
			a.log.WithField("offset", off).Warn("decoded frame has no PTS, skipping")
			continue
		}
		ft := frametype.FromPicture(f.PictureType)
		if ft == frametype.Unknown {
			// the leading NAL may be an AUD or parameter set
			if c := frametype.Classify(p.Data).Type; c.IsVideo() {
				ft = c
			}
		}
		wall := a.wallMs()
		ev := a.agg.Append(timeline.PacketEvent{
			Kind:         video.DATA_TYPE_VIDEO,
			FrameType:    ft,
			TimestampMs:  ptsMs,
			WallClockMs:  wall,
			Size:         size,
			StreamOffset: off,
			DriftMs:      a.tracker.Observe(video.DATA_TYPE_VIDEO, ptsMs, wall),
		})
		a.log.WithFields(logrus.Fields{
			"seq":    ev.Sequence,
			"type":   ev.FrameLabel,
			"pts_ms": ptsMs,
			"drift":  ev.DriftMs,
		}).Debug("video frame")
	}
}

func (a *Analyzer) processAudio(p *video.Packet, off int64) {
	ptsMs, ok := p.PTSMillis()
	if !ok {
		return
	}
	wall := a.wallMs()
	a.agg.Append(timeline.PacketEvent{
		Kind:         video.DATA_TYPE_AUDIO,
		FrameType:    frametype.Audio,
		TimestampMs:  ptsMs,
		WallClockMs:  wall,
		Size:         p.Size(),
		StreamOffset: off,
		DriftMs:      a.tracker.Observe(video.DATA_TYPE_AUDIO, ptsMs, wall),
	})
}

func (a *Analyzer) recordCorruption(p *video.Packet, off int64, err error) {
	ev := a.detector.Record(forensic.Failure{
		PacketIndex: a.agg.NextPacketIndex(),
		Offset:      off,
		Packet:      p,
		Err:         err,
	})
	a.agg.AddCorruption(ev)
	for _, sink := range a.sinks {
		if serr := sink.Corruption(a.runID, ev); serr != nil {
			a.log.WithError(serr).Warn("corruption sink failed")
		}
	}
}
