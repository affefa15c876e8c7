// Package artifactwriter writes export/analysis artifacts to disk with
// the same atomic temp-file-plus-rename discipline as
// internal/exportstate, plus collision-safe filename suffixing (spec
// §4.2 step 6, §8 Property 14): a timestamp-based basename that never
// overwrites a prior file, disambiguated by fractional seconds and a
// monotonic counter when two writes land in the same instant.
package artifactwriter

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

var collisionCounter uint64

// Basename builds "<prefix>-<RFC3339Nano-ish timestamp>.json", then
// disambiguates against dir with a monotonic counter suffix until it
// finds a name that does not yet exist.
func Basename(dir, prefix string, now time.Time) (string, error) {
	stamp := now.UTC().Format("20060102T150405.000000000Z")
	name := fmt.Sprintf("%s-%s.json", prefix, stamp)
	path := filepath.Join(dir, name)

	for {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return name, nil
		} else if err != nil {
			return "", fmt.Errorf("artifactwriter: stat %s: %w", path, err)
		}
		n := atomic.AddUint64(&collisionCounter, 1)
		name = fmt.Sprintf("%s-%s-%d.json", prefix, stamp, n)
		path = filepath.Join(dir, name)
	}
}

// Write writes data (already pretty-printed JSON bytes) to
// dir/basename atomically: write to a temp sibling, then rename into
// place, so a crash mid-write never leaves a torn artifact.
func Write(dir, basename string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("artifactwriter: create output directory: %w", err)
	}

	finalPath := filepath.Join(dir, basename)

	tmp, err := os.CreateTemp(dir, ".artifact-*.tmp")
	if err != nil {
		return "", fmt.Errorf("artifactwriter: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("artifactwriter: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("artifactwriter: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("artifactwriter: rename temp file into place: %w", err)
	}
	return finalPath, nil
}
