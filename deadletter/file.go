package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// FileSink persists one JSON record per file, keyed by dead-letter id,
// under a configured directory.
type FileSink struct {
	dir string
}

// NewFileSink creates a file sink rooted at dir, creating it if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("dead-letter directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create dead-letter directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Dir returns the sink's root directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// Persist writes the record to <dir>/<id>.json. Re-persisting the same id
// overwrites the previous file, so duplicate persists are no-ops in effect.
func (s *FileSink) Persist(_ context.Context, dl DeadLetter) error {
	data, err := json.MarshalIndent(dl, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dead letter %s: %w", dl.ID, err)
	}

	path := filepath.Join(s.dir, dl.ID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write dead letter %s: %w", dl.ID, err)
	}
	return nil
}

// Load reads a persisted record by dead-letter id.
func (s *FileSink) Load(id string) (DeadLetter, error) {
	path := filepath.Join(s.dir, id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return DeadLetter{}, fmt.Errorf("read dead letter %s: %w", id, err)
	}

	var dl DeadLetter
	if err := json.Unmarshal(data, &dl); err != nil {
		return DeadLetter{}, fmt.Errorf("parse dead letter %s: %w", id, err)
	}
	return dl, nil
}

// List returns the file paths of persisted records whose relative paths
// match the given glob pattern ("*" for everything).
func (s *FileSink) List(pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*.json"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern: %q", pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(s.dir), pattern)
	if err != nil {
		return nil, fmt.Errorf("glob dead letters: %w", err)
	}

	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		paths = append(paths, filepath.Join(s.dir, m))
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadAll reads every record matching the given glob pattern. Unparseable
// files are skipped and reported alongside the parsed records.
func (s *FileSink) LoadAll(pattern string) ([]DeadLetter, []error) {
	paths, err := s.List(pattern)
	if err != nil {
		return nil, []error{err}
	}

	var records []DeadLetter
	var errs []error
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", path, err))
			continue
		}
		var dl DeadLetter
		if err := json.Unmarshal(data, &dl); err != nil {
			errs = append(errs, fmt.Errorf("parse %s: %w", path, err))
			continue
		}
		records = append(records, dl)
	}
	return records, errs
}
