package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hazyhaar/favisync/snapshot"
)

// File writes the decoded SVG document of every snapshot to a path. The
// write goes to a temporary file renamed over the target, so readers never
// see a partial icon.
type File struct {
	path string
}

// NewFile creates a File sink writing to path.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Publish(_ context.Context, snap snapshot.Snapshot) error {
	doc, err := snapshot.Decode(snap.Resource)
	if err != nil {
		return fmt.Errorf("file: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".favicon-*.svg")
	if err != nil {
		return fmt.Errorf("file: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(doc); err != nil {
		tmp.Close()
		return fmt.Errorf("file: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("file: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("file: rename: %w", err)
	}
	return nil
}

func (f *File) Close() error { return nil }
