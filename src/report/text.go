package report

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"streamripper/src/analyzer"
	"streamripper/src/forensic"
	"streamripper/src/timeline"
)

const (
	// MAX_REPORT_CORRUPTIONS is how many corruption events report.txt
	// details; corruption.txt lists all of them.
	MAX_REPORT_CORRUPTIONS = 20
	MAX_ERROR_LEN          = 100

	timeLayout = "2006-01-02 15:04:05"
)

var (
	rule     = strings.Repeat("-", 30)
	longRule = strings.Repeat("=", 60)
)

type lines []string

func (l *lines) add(format string, args ...interface{}) {
	*l = append(*l, fmt.Sprintf(format, args...))
}

func joinInts(idx []int) string {
	s := make([]string, len(idx))
	for i, v := range idx {
		s[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(s, ", ") + "]"
}

// WriteReport writes the narrative report of res.
func WriteReport(w io.Writer, res *analyzer.Result) error {
	var l lines
	if res.Failed() {
		l.add("Error: Could not open stream at %s: %s", res.URL, res.OpenError)
		_, err := io.WriteString(w, strings.Join(l, "\n")+"\n")
		return err
	}

	l.add("Stream Forensic Analysis Report")
	l.add("Stream URL: %s", res.URL)
	l.add("Run ID: %s", res.RunID)
	l.add("Analysis started at: %s", res.StartedAt.Format(timeLayout))
	l.add(rule)
	l.add("Video Codec: %s", res.Stream.VideoCodec)
	if res.Stream.HasAudio {
		l.add("Audio Codec: %s", res.Stream.AudioCodec)
	}
	if res.Forensic {
		l.add("Forensic Mode: ENABLED - Corrupted packets will be extracted")
	}
	l.add(rule)

	sum := res.Summary
	l.add("Analysis duration: %.2f seconds", sum.Duration.Seconds())
	if res.ReadError != "" {
		l.add("Stream ended early: %s", res.ReadError)
	}
	l.add("")
	writeVideo(&l, sum)
	if res.Stream.HasAudio || sum.Audio.Count > 0 {
		l.add("")
		writeAudio(&l, sum)
	}
	writeCorruptionSummary(&l, res)

	l.add(rule)
	l.add("Analysis finished.")
	_, err := io.WriteString(w, strings.Join(l, "\n")+"\n")
	return err
}

func writeVideo(l *lines, sum timeline.Summary) {
	v := sum.Video
	l.add("Video Analysis")
	l.add("Total frames captured: %d", v.Count)
	if sum.Duration > 0 {
		l.add("Average FPS: %.2f", v.Rate)
	} else {
		l.add("No frames captured.")
	}
	if v.Count == 0 {
		return
	}

	l.add("Frame Type Distribution:")
	labels := make([]string, 0, len(sum.FrameTypes))
	for label := range sum.FrameTypes {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		l.add("  - %s: %d", label, sum.FrameTypes[label])
	}

	if v.Count > 1 {
		l.add("Average timestamp difference: %.2f ms", v.AvgTimestampDelta)
		if len(v.NonMonotonic) > 0 {
			l.add("Warning: Non-monotonic timestamps found at frame indices: %s", joinInts(v.NonMonotonic))
		} else {
			l.add("Timestamps are monotonic.")
		}
		if len(v.Gaps) > 0 {
			l.add("Warning: Potential skipped frames detected at frame indices: %s", joinInts(v.Gaps))
		} else {
			l.add("No significant timestamp gaps detected.")
		}
		l.add("Average wall clock drift: %.2f ms", v.AvgDrift)
		l.add("Max wall clock drift: %.2f ms", v.MaxDrift)
	}
	l.add("Average compressed frame size: %.2f KB", v.AvgSize/1024)
	l.add("Min compressed frame size: %.2f KB", float64(v.MinSize)/1024)
	l.add("Max compressed frame size: %.2f KB", float64(v.MaxSize)/1024)
}

func writeAudio(l *lines, sum timeline.Summary) {
	a := sum.Audio
	l.add("Audio Analysis")
	l.add("Total audio packets: %d", a.Count)
	if sum.Duration > 0 {
		l.add("Average packets per second: %.2f", a.Rate)
	}
	if a.Count == 0 {
		return
	}
	l.add("Average packet size: %.2f bytes", a.AvgSize)
	l.add("Min packet size: %d bytes", a.MinSize)
	l.add("Max packet size: %d bytes", a.MaxSize)
	l.add("Average wall clock drift: %.2f ms", a.AvgDrift)
	l.add("Max wall clock drift: %.2f ms", a.MaxDrift)
}

func writeCorruptionSummary(l *lines, res *analyzer.Result) {
	cs := res.Corruptions
	if len(cs) == 0 {
		if res.Forensic {
			l.add(rule)
			l.add("FORENSIC CORRUPTION ANALYSIS")
			l.add("No corrupted packets detected.")
		}
		return
	}

	l.add(rule)
	l.add("FORENSIC CORRUPTION ANALYSIS")
	l.add("Total corrupted packets detected: %d", len(cs))
	if !res.Forensic {
		l.add("Evidence capture disabled; no packet dumps were written.")
	}
	l.add("")

	l.add("Corruption Types:")
	kinds := make([]string, 0, len(res.Summary.CorruptionTally))
	for k := range res.Summary.CorruptionTally {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		l.add("  - %s: %d occurrences", k, res.Summary.CorruptionTally[k])
		l.add("    (%s)", forensic.DescribeKind(k))
	}

	l.add("")
	l.add("Detailed Corruption Events:")
	for i, c := range cs {
		if i == MAX_REPORT_CORRUPTIONS {
			l.add("  ... and %d more corrupted packets", len(cs)-MAX_REPORT_CORRUPTIONS)
			break
		}
		errText := truncateRunes(c.Error, MAX_ERROR_LEN)
		l.add("  [%d] Packet #%d", i+1, c.PacketIndex)
		l.add("      Timestamp: %s", timestampText(c))
		l.add("      Size: %d bytes", c.Size)
		l.add("      Frame Type: %s", c.FrameTypeHint)
		l.add("      Error Type: %s", c.ErrorKind)
		l.add("      Error: %s", errText)
	}
}

// truncateRunes keeps the first n characters of s.
func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func timestampText(c timeline.CorruptionEvent) string {
	if !c.HasTimestamp {
		return "unknown"
	}
	return fmt.Sprintf("%.2f ms", c.TimestampMs)
}

// WriteCorruptions writes every corruption event of res with its evidence
// file names.
func WriteCorruptions(w io.Writer, res *analyzer.Result, generated time.Time) error {
	var l lines
	l.add("DETAILED CORRUPTION FORENSIC REPORT")
	l.add("Generated: %s", generated.Format(timeLayout))
	l.add("Stream: %s", res.URL)
	l.add("%s\n", longRule)

	for i, c := range res.Corruptions {
		l.add("Corrupted Packet #%d", i+1)
		l.add("  Packet Index: %d", c.PacketIndex)
		l.add("  Stream: %s", c.Kind)
		l.add("  Stream Offset: 0x%08x (%d bytes)", c.StreamOffset, c.StreamOffset)
		l.add("  Timestamp (PTS): %s", timestampText(c))
		l.add("  Packet Size: %d bytes", c.Size)
		l.add("  Frame Type: %s", c.FrameTypeHint)
		l.add("  Error Type: %s", c.ErrorKind)
		l.add("  Error Description: %s", c.Error)
		if c.Artifacts.HexDump != "" {
			l.add("  Hex Dump: %s", filepath.Base(c.Artifacts.HexDump))
		}
		if c.Artifacts.Binary != "" {
			l.add("  Binary: %s", filepath.Base(c.Artifacts.Binary))
		}
		l.add("%s\n", strings.Repeat("-", 60))
	}
	_, err := io.WriteString(w, strings.Join(l, "\n")+"\n")
	return err
}
