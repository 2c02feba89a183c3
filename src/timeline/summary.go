package timeline

import (
	"math"
	"time"

	"streamripper/src/drift"
	"streamripper/src/video"
)

// StreamSummary aggregates the events of one stream kind.
type StreamSummary struct {
	Count             int     `json:"count"`
	Rate              float64 `json:"rate_per_second"`
	AvgSize           float64 `json:"avg_size_bytes"`
	MinSize           int     `json:"min_size_bytes"`
	MaxSize           int     `json:"max_size_bytes"`
	AvgTimestampDelta float64 `json:"avg_timestamp_delta_ms"`
	AvgDrift          float64 `json:"avg_drift_ms"`
	MaxDrift          float64 `json:"max_drift_ms"`
	NonMonotonic      []int   `json:"non_monotonic_indices"`
	Gaps              []int   `json:"gap_indices"`
}

// Summary is built once, at the end of a run.
type Summary struct {
	Duration         time.Duration  `json:"duration"`
	Video            StreamSummary  `json:"video"`
	Audio            StreamSummary  `json:"audio"`
	FrameTypes       map[string]int `json:"frame_types"`
	CorruptionTally  map[string]int `json:"corruption_tally"`
	CorruptedPackets int            `json:"corrupted_packets"`
}

// Summarize computes the run summary from the merged timeline and the
// corruption list. duration is the time the run spent reading packets.
func (a *Aggregator) Summarize(duration time.Duration) Summary {
	s := Summary{
		Duration:         duration,
		FrameTypes:       make(map[string]int),
		CorruptionTally:  make(map[string]int),
		CorruptedPackets: len(a.corruptions),
	}

	var vids, auds []PacketEvent
	for _, ev := range a.Timeline() {
		switch ev.Kind {
		case video.DATA_TYPE_VIDEO:
			vids = append(vids, ev)
			s.FrameTypes[ev.FrameType.Label()]++
		case video.DATA_TYPE_AUDIO:
			auds = append(auds, ev)
		}
	}
	s.Video = summarizeStream(vids, duration)
	s.Audio = summarizeStream(auds, duration)

	for _, c := range a.corruptions {
		s.CorruptionTally[c.ErrorKind]++
	}
	return s
}

func summarizeStream(evs []PacketEvent, duration time.Duration) StreamSummary {
	ss := StreamSummary{Count: len(evs)}
	if duration > 0 {
		ss.Rate = float64(len(evs)) / duration.Seconds()
	}
	if len(evs) == 0 {
		return ss
	}

	var sizeSum, driftSum float64
	ss.MinSize = evs[0].Size
	ss.MaxSize = evs[0].Size
	ss.MaxDrift = evs[0].DriftMs
	ts := make([]float64, len(evs))
	for i, ev := range evs {
		ts[i] = ev.TimestampMs
		sizeSum += float64(ev.Size)
		driftSum += ev.DriftMs
		if ev.Size < ss.MinSize {
			ss.MinSize = ev.Size
		}
		if ev.Size > ss.MaxSize {
			ss.MaxSize = ev.Size
		}
		if math.Abs(ev.DriftMs) > math.Abs(ss.MaxDrift) {
			ss.MaxDrift = ev.DriftMs
		}
	}
	n := float64(len(evs))
	ss.AvgSize = sizeSum / n
	ss.AvgDrift = driftSum / n
	ss.AvgTimestampDelta = drift.AverageDelta(ts)
	ss.NonMonotonic = drift.NonMonotonic(ts)
	ss.Gaps = drift.Gaps(ts)
	return ss
}
