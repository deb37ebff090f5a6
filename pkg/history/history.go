// Package history archives finished tasks, one JSON document per task.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"

	"github.com/devicelab-dev/droidpilot/pkg/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is an archived task.
type Record struct {
	ID         string         `json:"id"`
	Intent     string         `json:"intent"`
	Action     string         `json:"action,omitempty"`
	App        string         `json:"app,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Phase      core.TaskPhase `json:"phase"`
	Steps      []string       `json:"steps,omitempty"`
	Iterations int            `json:"iterations"`
	ErrorCount int            `json:"errorCount"`
	RetryCount int            `json:"retryCount"`
	Error      string         `json:"error,omitempty"`
	Category   string         `json:"category,omitempty"`
	Response   string         `json:"response,omitempty"`
}

// Duration returns how long the task ran.
func (r *Record) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store writes records to <dir>/<id>.json.
type Store struct {
	fs  afero.Fs
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

// Dir returns the archive directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes the record atomically, replacing any earlier copy.
func (s *Store) Save(r *Record) error {
	if r.ID == "" {
		return fmt.Errorf("history: record has no id")
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("history: encode %s: %w", r.ID, err)
	}
	return writeFileAtomic(s.fs, s.path(r.ID), data)
}

// Get reads one record.
func (s *Store) Get(id string) (*Record, error) {
	data, err := afero.ReadFile(s.fs, s.path(id))
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, core.ErrParse.WithMessage("history: corrupt record " + id).WithCause(err)
	}
	return &r, nil
}

// List returns every record sorted by start time. Unreadable files are
// skipped. A missing directory is an empty archive.
func (s *Store) List() ([]*Record, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []*Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		r, err := s.Get(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		records = append(records, r)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})
	return records, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpFile, err := afero.TempFile(fs, dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer fs.Remove(tmpPath) //nolint:errcheck // already renamed on success

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	return nil
}
