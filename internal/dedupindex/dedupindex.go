// Package dedupindex implements the Export Engine's seen-id and
// seen-cursor tracking as an in-memory sqlite database, grounded on the
// teacher's SessionDB in db.go (same database/sql + modernc.org/sqlite
// schema-creation idiom, repurposed from session bookkeeping to
// per-run export dedup). The database is opened against ":memory:" and
// never touches disk, so it does not add a second durable store beyond
// the single state marker spec.md's Non-goals allow.
package dedupindex

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Index tracks bookmark ids and pagination cursors seen during one
// export run.
type Index struct {
	db *sql.DB
}

// Open creates a fresh, process-local in-memory index.
func Open() (*Index, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("dedupindex: open in-memory database: %w", err)
	}

	schema := `
	CREATE TABLE seen_ids (id TEXT PRIMARY KEY);
	CREATE TABLE seen_cursors (cursor TEXT PRIMARY KEY);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("dedupindex: create schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Close releases the in-memory database.
func (i *Index) Close() error {
	return i.db.Close()
}

// SeenID reports whether id has already been recorded, then records it
// if it had not (an atomic check-and-set, so callers don't race a
// separate Has+Add into a TOCTOU duplicate).
func (i *Index) SeenID(id string) (alreadySeen bool, err error) {
	_, err = i.db.Exec(`INSERT INTO seen_ids (id) VALUES (?)`, id)
	if err == nil {
		return false, nil
	}
	if isUniqueViolation(err) {
		return true, nil
	}
	return false, fmt.Errorf("dedupindex: record id %q: %w", id, err)
}

// SeenCursor reports whether cursor has already been recorded (spec
// §4.2's cursor-repetition-is-terminal edge case), recording it if not.
func (i *Index) SeenCursor(cursor string) (alreadySeen bool, err error) {
	_, err = i.db.Exec(`INSERT INTO seen_cursors (cursor) VALUES (?)`, cursor)
	if err == nil {
		return false, nil
	}
	if isUniqueViolation(err) {
		return true, nil
	}
	return false, fmt.Errorf("dedupindex: record cursor %q: %w", cursor, err)
}

// isUniqueViolation matches modernc.org/sqlite's constraint-violation
// error text, since the driver does not export a typed sentinel for it.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
