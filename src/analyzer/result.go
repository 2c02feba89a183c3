package analyzer

import (
	"time"

	uuid "github.com/satori/go.uuid"

	"streamripper/src/timeline"
	"streamripper/src/video"
)

// Result is everything a run hands to the report, API and notification
// layers. The corruption list is complete; presentation layers truncate.
type Result struct {
	RunID       string                     `json:"run_id"`
	URL         string                     `json:"url"`
	Stream      video.StreamInfo           `json:"stream"`
	StartedAt   time.Time                  `json:"started_at"`
	FinishedAt  time.Time                  `json:"finished_at"`
	Forensic    bool                       `json:"forensic"`
	Timeline    []timeline.PacketEvent     `json:"-"`
	Corruptions []timeline.CorruptionEvent `json:"corruptions"`
	Summary     timeline.Summary           `json:"summary"`
	EvidenceDir string                     `json:"evidence_dir,omitempty"`
	// EvidenceFiles counts the corrupted packets whose dumps were written.
	EvidenceFiles int `json:"evidence_files"`
	// VideoBytes and AudioBytes are the final stream offsets.
	VideoBytes    int64  `json:"video_bytes"`
	AudioBytes    int64  `json:"audio_bytes"`
	RawStreamPath string `json:"raw_stream_path,omitempty"`
	// OpenError is set when the source could not be opened; nothing else
	// in the result is meaningful then.
	OpenError string `json:"open_error,omitempty"`
	// ReadError is the ingestion error that ended the run early, if any.
	ReadError string `json:"read_error,omitempty"`
}

func (r *Result) Failed() bool {
	return r.OpenError != ""
}

// Elapsed is the time spent reading packets.
func (r *Result) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func newRunID() string {
	return uuid.NewV4().String()
}

// OpenFailed builds the minimal result of a run whose source never opened.
func OpenFailed(url string, err error) *Result {
	now := time.Now()
	return &Result{
		RunID:       newRunID(),
		URL:         url,
		StartedAt:   now,
		FinishedAt:  now,
		Corruptions: []timeline.CorruptionEvent{},
		Summary:     timeline.NewAggregator().Summarize(0),
		OpenError:   err.Error(),
	}
}
