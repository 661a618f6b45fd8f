package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"storyflow/internal/engine"
)

// Writer patches story records in the stories file.
//
// Every write goes to a temporary file that is renamed over the original,
// so readers never observe a half-written file. Writes from one Writer are
// serialized.
type Writer struct {
	path string
	mu   sync.Mutex
}

// NewWriter creates a [Writer] for the given stories file path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Patch loads the story's snapshot, applies fn, and writes back the fields
// fn changed. Other stored values are left as written. It returns an error
// wrapping [ErrStoryNotFound] when the story is absent.
func (w *Writer) Patch(storyID string, fn func(*engine.Snapshot)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := readFile(w.path)
	if err != nil {
		return err
	}

	rec, ok := f.Stories[storyID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStoryNotFound, storyID)
	}

	before := rec.Snapshot(storyID)
	after := rec.Snapshot(storyID)
	fn(&after)
	f.Stories[storyID] = rec.Merge(before, after)

	return w.write(f)
}

// Put creates or replaces a story record, creating the file if needed.
func (w *Writer) Put(storyID string, snap engine.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := readFile(w.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		f = &File{Stories: make(map[string]Record)}
	}

	f.Stories[storyID] = FromSnapshot(snap)
	return w.write(f)
}

func (w *Writer) write(f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal stories file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("failed to write stories file: %w", err)
	}

	tmpPath := w.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write stories file: %w", err)
	}

	if err := os.Rename(tmpPath, w.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write stories file: %w", err)
	}

	return nil
}
