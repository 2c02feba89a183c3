package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"streamripper/src/analyzer"
	"streamripper/src/frametype"
	"streamripper/src/timeline"
	"streamripper/src/video"
)

func testResult(t *testing.T) *analyzer.Result {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "00000898.hex"), []byte("00000000  00 00 00 01\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "00000898.bin"), []byte{0, 0, 0, 1, 0x41}, 0o644); err != nil {
		t.Fatal(err)
	}

	agg := timeline.NewAggregator()
	agg.Append(timeline.PacketEvent{
		Kind:        video.DATA_TYPE_VIDEO,
		FrameType:   frametype.IFrame,
		TimestampMs: 0,
		WallClockMs: 1000,
		Size:        2200,
	})
	agg.AddCorruption(timeline.CorruptionEvent{
		PacketIndex:  1,
		Kind:         video.DATA_TYPE_VIDEO,
		ErrorKind:    "InvalidBitstreamData",
		StreamOffset: 0x898,
		Size:         5,
		Artifacts: timeline.Artifacts{
			Binary:  filepath.Join(dir, "00000898.bin"),
			HexDump: filepath.Join(dir, "00000898.hex"),
		},
	})
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &analyzer.Result{
		RunID:       "run-1",
		URL:         "rtmp://0.0.0.0/live/cam",
		Stream:      video.StreamInfo{VideoCodec: "h264"},
		StartedAt:   start,
		FinishedAt:  start.Add(time.Second),
		Forensic:    true,
		Timeline:    agg.Timeline(),
		Corruptions: agg.Corruptions(),
		Summary:     agg.Summarize(time.Second),
		EvidenceDir: dir,
	}
}

func get(t *testing.T, srv *httptest.Server, path string) (int, http.Header, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, resp.Header, string(body)
}

func newTestServer(t *testing.T) *httptest.Server {
	reg := NewRegistry()
	reg.Add(testResult(t), "")
	srv := httptest.NewServer(NewRouter(reg))
	t.Cleanup(srv.Close)
	return srv
}

func TestListRuns(t *testing.T) {
	srv := newTestServer(t)
	code, hdr, body := get(t, srv, "/runs")
	if code != http.StatusOK || hdr.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("code %d headers %v", code, hdr)
	}
	var runs []runInfo
	if err := json.Unmarshal([]byte(body), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-1" || runs[0].CorruptedPackets != 1 {
		t.Errorf("runs %+v", runs)
	}
}

func TestSummaryAndCorruptions(t *testing.T) {
	srv := newTestServer(t)

	code, _, body := get(t, srv, "/runs/run-1/summary")
	if code != http.StatusOK {
		t.Fatalf("code %d", code)
	}
	var sum timeline.Summary
	if err := json.Unmarshal([]byte(body), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Video.Count != 1 || sum.CorruptionTally["InvalidBitstreamData"] != 1 {
		t.Errorf("summary %+v", sum)
	}

	code, _, body = get(t, srv, "/runs/run-1/corruptions")
	if code != http.StatusOK || !strings.Contains(body, `"stream_byte_offset":2200`) {
		t.Errorf("code %d body %s", code, body)
	}

	if code, _, _ := get(t, srv, "/runs/nope/summary"); code != http.StatusNotFound {
		t.Errorf("unknown run: code %d", code)
	}
}

func TestFlowAndReport(t *testing.T) {
	srv := newTestServer(t)
	code, _, body := get(t, srv, "/runs/run-1/flow.csv")
	if code != http.StatusOK || !strings.HasPrefix(body, "Wall Clock Time (ms),") ||
		!strings.Contains(body, "1000.00,0x00000000,0,1,I,2200,0.00,0.00") {
		t.Errorf("code %d flow %s", code, body)
	}
	code, _, body = get(t, srv, "/runs/run-1/report.txt")
	if code != http.StatusOK || !strings.Contains(body, "Total corrupted packets detected: 1") {
		t.Errorf("code %d report %s", code, body)
	}
}

func TestEvidence(t *testing.T) {
	srv := newTestServer(t)

	code, hdr, body := get(t, srv, "/runs/run-1/evidence/00000898.hex")
	if code != http.StatusOK || !strings.HasPrefix(hdr.Get("Content-Type"), "text/plain") || !strings.Contains(body, "00 00 00 01") {
		t.Errorf("hex: code %d type %q body %q", code, hdr.Get("Content-Type"), body)
	}
	code, _, body = get(t, srv, "/runs/run-1/evidence/00000898.bin")
	if code != http.StatusOK || body != "\x00\x00\x00\x01\x41" {
		t.Errorf("bin: code %d body %q", code, body)
	}

	for _, name := range []string{"00000899.bin", "report.txt", "0000089.bin", "00000898.txt"} {
		if code, _, _ := get(t, srv, "/runs/run-1/evidence/"+name); code != http.StatusNotFound {
			t.Errorf("%s: code %d", name, code)
		}
	}
}

func TestEvidenceDisabled(t *testing.T) {
	res := testResult(t)
	res.EvidenceDir = ""
	reg := NewRegistry()
	reg.Add(res, "")
	srv := httptest.NewServer(NewRouter(reg))
	defer srv.Close()

	if code, _, _ := get(t, srv, "/runs/run-1/evidence/00000898.bin"); code != http.StatusNotFound {
		t.Errorf("code %d", code)
	}
}

func TestRegistryListOrder(t *testing.T) {
	reg := NewRegistry()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		reg.Add(&analyzer.Result{RunID: id, StartedAt: base.Add(time.Duration(i) * time.Minute)}, "")
	}
	runs := reg.List()
	if len(runs) != 3 || runs[0].Result.RunID != "c" || runs[2].Result.RunID != "b" {
		t.Errorf("order %v %v %v", runs[0].Result.RunID, runs[1].Result.RunID, runs[2].Result.RunID)
	}
	if _, ok := reg.Get("a"); !ok {
		t.Error("run a missing")
	}
}

func TestServeListenerStopsOnCancel(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeListener(ctx, lis, NewRegistry()) }()

	resp, err := http.Get("http://" + lis.Addr().String() + "/runs")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
