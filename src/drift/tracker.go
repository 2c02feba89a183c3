// Package drift models how far a stream's delivery departs from real time.
//
// Each elementary stream is anchored on its first event: the wall clock and
// presentation timestamp observed then. Every later event is expected to
// arrive first_wall_clock + (pts - first_pts). The difference between the
// actual and the expected arrival is the drift. Positive drift means delivery
// falls behind real time, negative drift means timestamps run ahead of it.
package drift

import "streamripper/src/video"

// StreamTimingState holds the anchors of one stream. Both are set once, on
// the first event, and never reset during a run.
type StreamTimingState struct {
	FirstWallClockMs float64
	FirstTimestampMs float64
}

type Tracker struct {
	states map[video.DataType]*StreamTimingState
}

func NewTracker() *Tracker {
	return &Tracker{states: make(map[video.DataType]*StreamTimingState)}
}

// Observe records one event and returns its drift in milliseconds.
func (t *Tracker) Observe(kind video.DataType, ptsMs, wallMs float64) float64 {
	st, ok := t.states[kind]
	if !ok {
		t.states[kind] = &StreamTimingState{
			FirstWallClockMs: wallMs,
			FirstTimestampMs: ptsMs,
		}
		return 0
	}
	relative := ptsMs - st.FirstTimestampMs
	expected := st.FirstWallClockMs + relative
	return wallMs - expected
}

// State returns the anchors of kind, if they have been set.
func (t *Tracker) State(kind video.DataType) (StreamTimingState, bool) {
	st, ok := t.states[kind]
	if !ok {
		return StreamTimingState{}, false
	}
	return *st, true
}
