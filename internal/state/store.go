package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store persists MachineState as a single JSON document. Writes are atomic:
// a reader never observes a partially written file, only the previous or the
// new content.
type Store struct {
	path string
}

// NewStore returns a store backed by the given file path. The parent
// directory is created on the first save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the last durably committed state. A missing file yields the
// default first-run state. Absent fields fall back to their zero values, a
// corrupt document is an error so the caller can decide between failing and
// starting fresh.
func (s *Store) Load() (MachineState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return DefaultState(), nil
	}
	if err != nil {
		return DefaultState(), fmt.Errorf("read state %s: %w", s.path, err)
	}
	var st MachineState
	if err := json.Unmarshal(data, &st); err != nil {
		return DefaultState(), fmt.Errorf("parse state %s: %w", s.path, err)
	}
	if st.Status == "" {
		st.Status = StatusIdle
	}
	return st, nil
}

// LoadWithRetry is for readers outside the listener process. The file may be
// mid-replace, so a parse failure is retried a few times before giving up.
func (s *Store) LoadWithRetry(attempts int, delay time.Duration) (MachineState, error) {
	if attempts < 1 {
		attempts = 1
	}
	var (
		st  MachineState
		err error
	)
	for i := 0; i < attempts; i++ {
		if st, err = s.Load(); err == nil {
			return st, nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return DefaultState(), err
}

// Save writes the full state durably: temp file in the same directory,
// fsync, rename over the target, fsync the directory. A crash at any point
// leaves either the old or the new document, never a mix.
func (s *Store) Save(st MachineState) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	data = append(data, '\n')

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename state file: %w", err)
	}

	// Persist the rename itself.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
