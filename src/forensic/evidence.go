package forensic

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	cmap "github.com/orcaman/concurrent-map"

	"streamripper/src/frametype"
	"streamripper/src/timeline"
	"streamripper/src/video"
)

const (
	BIN_EXT = ".bin"
	HEX_EXT = ".hex"

	ruleWidth = 80
)

var ErrDuplicateArtifact = errors.New("evidence artifact already written")

// Evidence is a corrupted packet waiting to be persisted. It owns Data until
// Persist returns.
type Evidence struct {
	Kind      video.DataType
	Offset    int64
	Data      []byte
	Class     frametype.Result
	Generated time.Time
}

// ArtifactName is the base file name for evidence at offset: the offset as
// eight zero-padded hex digits, so names sort by offset.
func ArtifactName(kind video.DataType, offset int64) string {
	if kind == video.DATA_TYPE_AUDIO {
		return fmt.Sprintf("audio_%08x", offset)
	}
	return fmt.Sprintf("%08x", offset)
}

// EvidenceStore writes evidence pairs into one directory. Persist may be
// called from several goroutines.
type EvidenceStore struct {
	dir     string
	written cmap.ConcurrentMap
}

func NewEvidenceStore(dir string) *EvidenceStore {
	return &EvidenceStore{
		dir:     dir,
		written: cmap.New(),
	}
}

func (s *EvidenceStore) Dir() string {
	return s.dir
}

// Count is the number of evidence pairs claimed so far.
func (s *EvidenceStore) Count() int {
	return s.written.Count()
}

// Persist writes the binary and hex dump artifacts for ev.
func (s *EvidenceStore) Persist(ev Evidence) (timeline.Artifacts, error) {
	name := ArtifactName(ev.Kind, ev.Offset)
	if !s.written.SetIfAbsent(name, ev.Offset) {
		return timeline.Artifacts{}, fmt.Errorf("%s: %w", name, ErrDuplicateArtifact)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return timeline.Artifacts{}, fmt.Errorf("create evidence dir: %w", err)
	}

	arts := timeline.Artifacts{
		Binary:  filepath.Join(s.dir, name+BIN_EXT),
		HexDump: filepath.Join(s.dir, name+HEX_EXT),
	}
	if err := os.WriteFile(arts.Binary, ev.Data, 0o644); err != nil {
		return timeline.Artifacts{}, fmt.Errorf("write %s: %w", arts.Binary, err)
	}
	if err := writeHexDump(arts.HexDump, ev); err != nil {
		return timeline.Artifacts{Binary: arts.Binary}, fmt.Errorf("write %s: %w", arts.HexDump, err)
	}
	return arts, nil
}

func writeHexDump(path string, ev Evidence) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(f)
	if err = WriteHexDump(w, ev); err != nil {
		return err
	}
	return w.Flush()
}

// WriteHexDump renders the header and a 16-bytes-per-line hex+ASCII dump.
func WriteHexDump(w io.Writer, ev Evidence) error {
	fmt.Fprintf(w, "Stream Offset: 0x%08x (%d bytes)\n", ev.Offset, ev.Offset)
	fmt.Fprintf(w, "Packet Size: %d bytes\n", len(ev.Data))
	fmt.Fprintf(w, "Frame Type: %s\n", ev.Class.Description)
	if ev.Class.Code >= 0 {
		fmt.Fprintf(w, "NAL Type: %d\n", ev.Class.Code)
	}
	if ev.Class.StartOffset >= 0 {
		fmt.Fprintf(w, "Start Code Offset: %d\n", ev.Class.StartOffset)
	}
	fmt.Fprintf(w, "Generated: %s\n", ev.Generated.Format(time.RFC3339Nano))
	fmt.Fprintf(w, "%s\n\n", strings.Repeat("=", ruleWidth))

	d := hex.Dumper(w)
	if _, err := d.Write(ev.Data); err != nil {
		return err
	}
	return d.Close()
}
