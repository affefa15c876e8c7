package exportengine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bookmarkctl/bookmarkctl/internal/bookmarkerr"
	"github.com/bookmarkctl/bookmarkctl/internal/exportstate"
	"github.com/bookmarkctl/bookmarkctl/internal/gateway"
	"github.com/bookmarkctl/bookmarkctl/internal/model"
	"github.com/bookmarkctl/bookmarkctl/internal/progress"
	"github.com/bookmarkctl/bookmarkctl/internal/ratelimit"
	"github.com/bookmarkctl/bookmarkctl/internal/schema"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return nil
}

func newEngine(t *testing.T, gw gateway.Gateway, outputDir string) (*Engine, *exportstate.Store) {
	t.Helper()
	validator, err := schema.New()
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	state := exportstate.New(filepath.Join(outputDir, "state.json"), nil)
	governor := ratelimit.New(ratelimit.Config{}, &fakeClock{now: time.Now()})
	cfg := Config{OutputDir: outputDir, ExporterVersion: "bookmarkctl-test/1.0", Resume: false}
	return New(gw, governor, state, validator, nil, &progress.Fake{}, cfg), state
}

func strPtr(s string) *string { return &s }

func readArtifact(t *testing.T, path string) model.ExportArtifact {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var artifact model.ExportArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return artifact
}

func TestRunEmptyExportProducesZeroCountArtifact(t *testing.T) {
	dir := t.TempDir()
	gw := &gateway.Fake{
		Identity: gateway.Identity{UserID: "u1", Username: "alice"},
		Pages:    []gateway.Page{{Records: nil, NextCursor: ""}},
	}
	engine, state := newEngine(t, gw, dir)

	path, err := engine.Run(context.Background(), "creds")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	artifact := readArtifact(t, path)
	if artifact.Metadata.TotalCount != 0 || len(artifact.Bookmarks) != 0 {
		t.Errorf("expected empty artifact, got %+v", artifact)
	}
	if _, ok := state.Load(); ok {
		t.Errorf("expected state marker to be absent after successful export")
	}
}

func TestRunSinglePageOneBookmark(t *testing.T) {
	dir := t.TempDir()
	createdAt := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	gw := &gateway.Fake{
		Identity: gateway.Identity{UserID: "u1", Username: "alice"},
		Pages: []gateway.Page{{
			Records: []gateway.RawRecord{{
				ID: "1", URL: strPtr("https://u"), Text: strPtr("hi"),
				AuthorUsername: strPtr("a"), AuthorName: strPtr("A"), CreatedAt: &createdAt,
				LikeCount: 1, RetweetCount: 0, ReplyCount: 0,
			}},
			NextCursor: "",
		}},
	}
	engine, _ := newEngine(t, gw, dir)

	path, err := engine.Run(context.Background(), "creds")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	artifact := readArtifact(t, path)
	if artifact.Metadata.TotalCount != 1 {
		t.Fatalf("expected totalCount=1, got %d", artifact.Metadata.TotalCount)
	}
	if artifact.Bookmarks[0].ID != "1" || artifact.Bookmarks[0].CreatedAtOrEmpty() != "2024-01-15T10:00:00Z" {
		t.Errorf("unexpected record: %+v", artifact.Bookmarks[0])
	}
}

func TestRunDeduplicatesRepeatedID(t *testing.T) {
	dir := t.TempDir()
	gw := &gateway.Fake{
		Pages: []gateway.Page{
			{Records: []gateway.RawRecord{{ID: "1", Text: strPtr("first")}}, NextCursor: "c2"},
			{Records: []gateway.RawRecord{{ID: "1", Text: strPtr("duplicate")}, {ID: "2", Text: strPtr("second")}}, NextCursor: ""},
		},
	}
	engine, _ := newEngine(t, gw, dir)

	path, err := engine.Run(context.Background(), "creds")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	artifact := readArtifact(t, path)
	if artifact.Metadata.TotalCount != 2 {
		t.Fatalf("expected 2 unique records, got %d: %+v", artifact.Metadata.TotalCount, artifact.Bookmarks)
	}
	if artifact.Bookmarks[0].TextOrEmpty() != "first" {
		t.Errorf("expected first occurrence kept, got %q", artifact.Bookmarks[0].TextOrEmpty())
	}
}

func TestRunTerminatesOnCursorRepetition(t *testing.T) {
	dir := t.TempDir()
	gw := &gateway.Fake{
		Pages: []gateway.Page{
			{Records: []gateway.RawRecord{{ID: "1"}}, NextCursor: "c1"},
			{Records: []gateway.RawRecord{{ID: "2"}}, NextCursor: "c1"},
		},
	}
	engine, _ := newEngine(t, gw, dir)

	path, err := engine.Run(context.Background(), "creds")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gw.CallCount() != 2 {
		t.Fatalf("expected pagination to stop after the repeated cursor, got %d calls", gw.CallCount())
	}

	artifact := readArtifact(t, path)
	if artifact.Metadata.TotalCount != 2 {
		t.Fatalf("expected both pages' records kept, got %d", artifact.Metadata.TotalCount)
	}
}

func TestRunFailsWithCredentialKindOnAuthError(t *testing.T) {
	dir := t.TempDir()
	gw := &gateway.Fake{AuthErr: bookmarkerr.ErrCredential}
	engine, _ := newEngine(t, gw, dir)

	_, err := engine.Run(context.Background(), "creds")
	if err == nil {
		t.Fatalf("expected an error")
	}
	var stageErr *bookmarkerr.StageError
	if !errors.As(err, &stageErr) || stageErr.Kind != bookmarkerr.KindCredential {
		t.Errorf("expected a credential StageError, got %v", err)
	}
}

func TestRunResumeContinuesFromSavedCursor(t *testing.T) {
	dir := t.TempDir()
	state := exportstate.New(filepath.Join(dir, "state.json"), nil)
	if err := state.Save(model.StateMarker{LastCursor: "c2", ProcessedCount: 2, StartTime: time.Now().UTC().Format(time.RFC3339)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := state.SaveRecords([]model.Record{{ID: "1"}, {ID: "2"}}); err != nil {
		t.Fatalf("SaveRecords: %v", err)
	}

	gw := &gateway.Fake{
		Pages: []gateway.Page{
			{Records: []gateway.RawRecord{{ID: "3"}}, NextCursor: ""},
		},
	}

	validator, err := schema.New()
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	governor := ratelimit.New(ratelimit.Config{}, &fakeClock{now: time.Now()})
	cfg := Config{OutputDir: dir, ExporterVersion: "bookmarkctl-test/1.0", Resume: true}
	engine := New(gw, governor, state, validator, nil, &progress.Fake{}, cfg)

	path, err := engine.Run(context.Background(), "creds")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	artifact := readArtifact(t, path)
	if artifact.Metadata.TotalCount != 3 {
		t.Fatalf("expected buffered records plus the resumed page's record, got %d", artifact.Metadata.TotalCount)
	}
	if gw.CallCount() != 1 {
		t.Fatalf("expected only the remaining page to be fetched, got %d calls", gw.CallCount())
	}
}
