package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"streamripper/src/analyzer"
)

type Options struct {
	// FlowLog writes flow.csv.
	FlowLog bool
	// Now stamps corruption.txt. nil means time.Now.
	Now func() time.Time
}

// Files are the paths Save wrote; empty fields were not written.
type Files struct {
	Dir        string
	Report     string
	Flow       string
	Corruption string
}

// Save writes the report files of res into dir. report.txt is always
// written; corruption.txt only when there is something in it.
func Save(dir string, res *analyzer.Result, opts Options) (Files, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	files := Files{Dir: dir}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return files, err
	}

	buf := bytes.NewBuffer(nil)
	if err := WriteReport(buf, res); err != nil {
		return files, err
	}
	if err := writeFileAtomic(dir, REPORT_FILE, buf.Bytes()); err != nil {
		return files, err
	}
	files.Report = filepath.Join(dir, REPORT_FILE)

	if res.Failed() {
		return files, nil
	}

	if opts.FlowLog {
		buf.Reset()
		if err := WriteFlow(buf, res.Timeline); err != nil {
			return files, err
		}
		if err := writeFileAtomic(dir, FLOW_FILE, buf.Bytes()); err != nil {
			return files, err
		}
		files.Flow = filepath.Join(dir, FLOW_FILE)
	}

	if len(res.Corruptions) > 0 {
		buf.Reset()
		if err := WriteCorruptions(buf, res, opts.Now()); err != nil {
			return files, err
		}
		if err := writeFileAtomic(dir, CORRUPTION_FILE, buf.Bytes()); err != nil {
			return files, err
		}
		files.Corruption = filepath.Join(dir, CORRUPTION_FILE)
	}

	logrus.WithFields(logrus.Fields{
		"component": "report",
		"dir":       dir,
	}).Info("report saved")
	return files, nil
}

// writeFileAtomic writes through a temp file in the same directory and
// renames it over name.
func writeFileAtomic(dir, name string, data []byte) (err error) {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(dir, name))
}
