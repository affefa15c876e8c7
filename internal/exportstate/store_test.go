package exportstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bookmarkctl/bookmarkctl/internal/model"
)

func TestLoadAbsentMarker(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "state.json"), nil)
	_, ok := store.Load()
	if ok {
		t.Errorf("expected no marker for missing file")
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := New(path, nil)

	marker := model.StateMarker{LastCursor: "c2", ProcessedCount: 4, StartTime: "2024-01-01T00:00:00Z", APIVersion: "v1"}
	if err := store.Save(marker); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, ok := store.Load()
	if !ok {
		t.Fatalf("expected marker to load")
	}
	if loaded != marker {
		t.Errorf("expected %+v, got %+v", marker, loaded)
	}
}

func TestSaveIsAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := New(path, nil)
	if err := store.Save(model.StateMarker{LastCursor: "c1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("leftover temp file after Save: %s", e.Name())
		}
	}
}

func TestClearAbsentIsNotError(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "state.json"), nil)
	if err := store.Clear(); err != nil {
		t.Errorf("Clear on absent marker should not error, got %v", err)
	}
}

func TestSaveRecordsThenLoadRoundTrips(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "state.json"), nil)
	records := []model.Record{{ID: "1", Text: model.StringPtr("a")}, {ID: "2", Text: model.StringPtr("b")}}
	if err := store.SaveRecords(records); err != nil {
		t.Fatalf("SaveRecords: %v", err)
	}

	loaded := store.LoadRecords()
	if len(loaded) != 2 || loaded[0].ID != "1" || loaded[1].ID != "2" {
		t.Fatalf("expected round-tripped records, got %+v", loaded)
	}
}

func TestLoadRecordsAbsentReturnsNil(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "state.json"), nil)
	if records := store.LoadRecords(); records != nil {
		t.Errorf("expected nil for absent records buffer, got %+v", records)
	}
}

func TestClearRecordsAbsentIsNotError(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "state.json"), nil)
	if err := store.ClearRecords(); err != nil {
		t.Errorf("ClearRecords on absent buffer should not error, got %v", err)
	}
}

func TestUnparseableMarkerTreatedAsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store := New(path, nil)
	_, ok := store.Load()
	if ok {
		t.Errorf("expected unparseable marker to be treated as absent")
	}
}
