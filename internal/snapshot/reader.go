package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"storyflow/internal/engine"
)

// DefaultPath is the stories file location relative to the project root.
const DefaultPath = ".storyflow/stories.yaml"

// LegacyPath is the older root-level location of the stories file.
const LegacyPath = "stories.yaml"

// SearchPaths lists the paths tried, in priority order, when auto-discovering
// the stories file.
var SearchPaths = []string{
	DefaultPath,
	LegacyPath,
}

// PathEnv overrides every other way of locating the stories file.
const PathEnv = "STORYFLOW_SNAPSHOTS_PATH"

// ResolvePath discovers the stories file location.
//
// Resolution order:
//  1. STORYFLOW_SNAPSHOTS_PATH environment variable (used as-is if set)
//  2. Explicit path parameter (if non-empty)
//  3. Auto-discovery of [SearchPaths] under basePath
//  4. Falls back to [DefaultPath] (reads will fail if it does not exist)
func ResolvePath(basePath, path string) string {
	if envPath := os.Getenv(PathEnv); envPath != "" {
		return envPath
	}

	if path != "" {
		return path
	}

	for _, p := range SearchPaths {
		fullPath := filepath.Join(basePath, p)
		if _, err := os.Stat(fullPath); err == nil {
			return fullPath
		}
	}

	return filepath.Join(basePath, DefaultPath)
}

// Reader reads story snapshots from the YAML stories file.
//
// Use [NewReader] for auto-discovery or [NewReaderWithPath] for an explicit path.
type Reader struct {
	path string
}

// NewReader creates a [Reader] that auto-discovers the stories file under basePath.
func NewReader(basePath string) *Reader {
	return &Reader{path: ResolvePath(basePath, "")}
}

// NewReaderWithPath creates a [Reader] for the given stories file. The
// STORYFLOW_SNAPSHOTS_PATH environment variable still takes priority.
func NewReaderWithPath(basePath, path string) *Reader {
	return &Reader{path: ResolvePath(basePath, path)}
}

// Path returns the resolved stories file path.
func (r *Reader) Path() string {
	return r.path
}

// Read reads and parses the complete stories file.
func (r *Reader) Read() (*File, error) {
	return readFile(r.path)
}

// Get returns the engine snapshot for a single story. It returns an error
// wrapping [ErrStoryNotFound] when the story is absent.
func (r *Reader) Get(storyID string) (engine.Snapshot, error) {
	f, err := r.Read()
	if err != nil {
		return engine.Snapshot{}, err
	}

	rec, ok := f.Stories[storyID]
	if !ok {
		return engine.Snapshot{}, fmt.Errorf("%w: %s", ErrStoryNotFound, storyID)
	}
	return rec.Snapshot(storyID), nil
}

// List returns every story id in the file, sorted.
func (r *Reader) List() ([]string, error) {
	f, err := r.Read()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(f.Stories))
	for id := range f.Stories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func readFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stories file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse stories file: %w", err)
	}
	if f.Stories == nil {
		f.Stories = make(map[string]Record)
	}
	return &f, nil
}
