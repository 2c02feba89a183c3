package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"streamripper/src/timeline"
)

var FlowHeader = []string{
	"Wall Clock Time (ms)",
	"Stream Offset (hex)",
	"Stream Offset (dec)",
	"Packet Number",
	"Type",
	"Packet Size (bytes)",
	"Timestamp (ms)",
	"Drift (ms)",
}

// WriteFlow writes one row per event. Packet numbers start at 1.
func WriteFlow(w io.Writer, events []timeline.PacketEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(FlowHeader); err != nil {
		return err
	}
	for _, ev := range events {
		row := []string{
			fmt.Sprintf("%.2f", ev.WallClockMs),
			fmt.Sprintf("0x%08x", ev.StreamOffset),
			strconv.FormatInt(ev.StreamOffset, 10),
			strconv.Itoa(ev.Sequence + 1),
			ev.FrameLabel,
			strconv.Itoa(ev.Size),
			fmt.Sprintf("%.2f", ev.TimestampMs),
			fmt.Sprintf("%.2f", ev.DriftMs),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
