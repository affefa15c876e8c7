package artifactwriter

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteTwiceProducesDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	name1, err := Basename(dir, "export", now)
	if err != nil {
		t.Fatalf("Basename: %v", err)
	}
	path1, err := Write(dir, name1, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	name2, err := Basename(dir, "export", now)
	if err != nil {
		t.Fatalf("Basename: %v", err)
	}
	path2, err := Write(dir, name2, []byte(`{"a":2}`))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if path1 == path2 {
		t.Fatalf("expected distinct paths, got %s twice", path1)
	}

	data1, err := os.ReadFile(path1)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	data2, err := os.ReadFile(path2)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data1) == string(data2) {
		t.Errorf("expected distinct contents to survive, first file was overwritten")
	}
}

func TestWriteLeavesNoLeftoverTempFiles(t *testing.T) {
	dir := t.TempDir()
	name, _ := Basename(dir, "export", time.Now())
	if _, err := Write(dir, name, []byte(`{}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}
