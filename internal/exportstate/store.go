// Package exportstate implements the export state marker (spec §3,
// §4.3): the single durable, mutable file that makes an interrupted
// export resumable. Writes are atomic (temp file plus rename); load
// returns an absent marker, not an error, when the file is missing or
// unparseable.
package exportstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bookmarkctl/bookmarkctl/internal/logging"
	"github.com/bookmarkctl/bookmarkctl/internal/model"
)

// Store owns the single state-marker file. No other component may write
// it (spec §5's "shared resource policy").
//
// It also owns a sibling records buffer: spec §4.3's invariant promises
// that "resumption yields the complete remaining tail," which requires
// the records already fetched before an interruption to survive the
// interruption too, not just the cursor. This stays within spec's
// Non-goal allowance ("persistence beyond flat artifact files and a
// single export-resume marker") because the buffer is itself a flat
// JSON file, written with the same atomic discipline as the marker, and
// is deleted the moment the real export artifact is written.
type Store struct {
	path string
	log  logging.Sink // optional; nil is fine
}

// New creates a Store bound to path. log may be nil.
func New(path string, log logging.Sink) *Store {
	return &Store{path: path, log: log}
}

func (s *Store) recordsPath() string {
	return s.path + ".records.json"
}

// Load returns the marker and true when a well-formed marker file
// exists. A missing file returns a zero marker and false, no error. An
// unparseable file logs a warning and is treated the same as missing,
// per spec §4.3.
func (s *Store) Load() (model.StateMarker, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return model.StateMarker{}, false
	}

	var marker model.StateMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		s.warn("exportstate.load", fmt.Sprintf("state marker at %s is unparseable, starting fresh: %v", s.path, err))
		return model.StateMarker{}, false
	}
	return marker, true
}

// Save writes marker atomically: write to a temp sibling, then rename
// over the final path, so a crash mid-write never leaves a torn file.
func (s *Store) Save(marker model.StateMarker) error {
	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state marker: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp state file into place: %w", err)
	}
	return nil
}

// Clear deletes the marker. Absence after Clear is not an error (spec
// §4.3).
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear state marker: %w", err)
	}
	return nil
}

// SaveRecords overwrites the records buffer atomically. Called after
// every successfully fetched page so an interruption never loses more
// than the in-flight page.
func (s *Store) SaveRecords(records []model.Record) error {
	if records == nil {
		records = []model.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal records buffer: %w", err)
	}

	dir := filepath.Dir(s.recordsPath())
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create records buffer directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".records-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp records buffer: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp records buffer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp records buffer: %w", err)
	}
	if err := os.Rename(tmpPath, s.recordsPath()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp records buffer into place: %w", err)
	}
	return nil
}

// LoadRecords returns the buffered records from a prior interrupted
// run, or nil if none exist or the buffer is unparseable (treated the
// same as "no buffer," mirroring Load's handling of the state marker).
func (s *Store) LoadRecords() []model.Record {
	data, err := os.ReadFile(s.recordsPath())
	if err != nil {
		return nil
	}
	var records []model.Record
	if err := json.Unmarshal(data, &records); err != nil {
		s.warn("exportstate.loadrecords", fmt.Sprintf("records buffer at %s is unparseable, starting fresh: %v", s.recordsPath(), err))
		return nil
	}
	return records
}

// ClearRecords deletes the records buffer. Absence is not an error.
func (s *Store) ClearRecords() error {
	err := os.Remove(s.recordsPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear records buffer: %w", err)
	}
	return nil
}

func (s *Store) warn(op, msg string) {
	if s.log == nil {
		return
	}
	s.log.Log(logging.Event{Level: logging.LevelWarn, Op: op, Context: map[string]interface{}{"message": msg}})
}
