// Package timeline collects packet and corruption events of one run, keeps
// per-stream byte offsets, and summarizes the run.
package timeline

import (
	"sort"

	"streamripper/src/video"
)

// Aggregator is owned by a single run and is not safe for concurrent use.
type Aggregator struct {
	offsets     map[video.DataType]int64
	events      []PacketEvent
	corruptions []CorruptionEvent
}

func NewAggregator() *Aggregator {
	return &Aggregator{offsets: make(map[video.DataType]int64)}
}

// Observe returns the stream offset of a packet of the given kind and size
// and advances that stream's counter past it.
func (a *Aggregator) Observe(kind video.DataType, size int) int64 {
	off := a.offsets[kind]
	a.offsets[kind] = off + int64(size)
	return off
}

// Offset is the number of bytes of kind observed so far.
func (a *Aggregator) Offset(kind video.DataType) int64 {
	return a.offsets[kind]
}

// Append assigns the next sequence number to ev and stores it.
func (a *Aggregator) Append(ev PacketEvent) PacketEvent {
	ev.Sequence = len(a.events)
	ev.FrameLabel = ev.FrameType.Label()
	a.events = append(a.events, ev)
	return ev
}

func (a *Aggregator) AddCorruption(ev CorruptionEvent) {
	a.corruptions = append(a.corruptions, ev)
}

// NextPacketIndex is the position of the next packet among successes and
// failures combined.
func (a *Aggregator) NextPacketIndex() int {
	return len(a.events) + len(a.corruptions)
}

func (a *Aggregator) Events() []PacketEvent {
	out := make([]PacketEvent, len(a.events))
	copy(out, a.events)
	return out
}

func (a *Aggregator) Corruptions() []CorruptionEvent {
	out := make([]CorruptionEvent, len(a.corruptions))
	copy(out, a.corruptions)
	return out
}

// Timeline merges both streams into wall clock order. Ties keep arrival order.
func (a *Aggregator) Timeline() []PacketEvent {
	out := a.Events()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WallClockMs < out[j].WallClockMs
	})
	return out
}
