// Package httpapi serves finished runs over HTTP: summaries, the flow log,
// corruption events and the evidence files behind them.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"streamripper/src/report"
	"streamripper/src/timeline"
)

type runInfo struct {
	RunID            string    `json:"run_id"`
	URL              string    `json:"url"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	CorruptedPackets int       `json:"corrupted_packets"`
	OpenError        string    `json:"open_error,omitempty"`
}

// NewRouter builds the API router over reg.
func NewRouter(reg *Registry) *mux.Router {
	h := &handler{reg: reg, log: logrus.WithField("component", "httpapi")}
	r := mux.NewRouter()
	r.Use(h.logRequests)
	r.HandleFunc("/runs", h.listRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}", h.withRun(h.getRun)).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/summary", h.withRun(h.getSummary)).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/report.txt", h.withRun(h.getReport)).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/flow.csv", h.withRun(h.getFlow)).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/corruptions", h.withRun(h.getCorruptions)).Methods(http.MethodGet)
	r.HandleFunc(`/runs/{id}/evidence/{name:(?:audio_)?[0-9a-f]{8}\.(?:bin|hex)}`, h.withRun(h.getEvidence)).Methods(http.MethodGet)
	return r
}

type handler struct {
	reg *Registry
	log *logrus.Entry
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
		h.log.WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"elapsed": time.Since(start),
		}).Debug("request served")
	})
}

func (h *handler) withRun(fn func(http.ResponseWriter, *http.Request, *Run)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := h.reg.Get(mux.Vars(r)["id"])
		if !ok {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		fn(w, r, run)
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithError(err).Warn("could not write response")
	}
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.reg.List()
	infos := make([]runInfo, 0, len(runs))
	for _, run := range runs {
		res := run.Result
		infos = append(infos, runInfo{
			RunID:            res.RunID,
			URL:              res.URL,
			StartedAt:        res.StartedAt,
			FinishedAt:       res.FinishedAt,
			CorruptedPackets: len(res.Corruptions),
			OpenError:        res.OpenError,
		})
	}
	h.writeJSON(w, infos)
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request, run *Run) {
	h.writeJSON(w, run.Result)
}

func (h *handler) getSummary(w http.ResponseWriter, r *http.Request, run *Run) {
	h.writeJSON(w, run.Result.Summary)
}

func (h *handler) getReport(w http.ResponseWriter, r *http.Request, run *Run) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := report.WriteReport(w, run.Result); err != nil {
		h.log.WithError(err).Warn("could not write report")
	}
}

func (h *handler) getFlow(w http.ResponseWriter, r *http.Request, run *Run) {
	w.Header().Set("Content-Type", "text/csv")
	if err := report.WriteFlow(w, run.Result.Timeline); err != nil {
		h.log.WithError(err).Warn("could not write flow log")
	}
}

func (h *handler) getCorruptions(w http.ResponseWriter, r *http.Request, run *Run) {
	cs := run.Result.Corruptions
	if cs == nil {
		cs = []timeline.CorruptionEvent{}
	}
	h.writeJSON(w, cs)
}

func (h *handler) getEvidence(w http.ResponseWriter, r *http.Request, run *Run) {
	dir := run.Result.EvidenceDir
	if dir == "" {
		http.Error(w, "evidence capture was disabled", http.StatusNotFound)
		return
	}
	name := mux.Vars(r)["name"]
	if filepath.Ext(name) == ".hex" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	http.ServeFile(w, r, filepath.Join(dir, name))
}

// Serve runs the API on addr until ctx is done.
func Serve(ctx context.Context, addr string, reg *Registry) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, lis, reg)
}

func ServeListener(ctx context.Context, lis net.Listener, reg *Registry) error {
	srv := &http.Server{
		Handler:           NewRouter(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	logrus.WithFields(logrus.Fields{
		"component": "httpapi",
		"addr":      lis.Addr().String(),
	}).Info("serving results")
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
