package analyzer

import (
	"bufio"
	"os"
	"path/filepath"

	"streamripper/src/video"
)

// FileWriter appends packet payloads to a file, producing the raw elementary
// stream that evidence offsets index into.
type FileWriter struct {
	f *os.File
	w *bufio.Writer
}

var _ video.Writer = &FileWriter{}

func NewFileWriter(path string) (*FileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileWriter{f: f, w: bufio.NewWriterSize(f, 1<<16)}, nil
}

func (fw *FileWriter) Write(p *video.Packet) error {
	_, err := fw.w.Write(p.Data)
	return err
}

func (fw *FileWriter) Close() error {
	ferr := fw.w.Flush()
	if err := fw.f.Close(); err != nil {
		return err
	}
	return ferr
}
