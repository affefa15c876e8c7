// Package analyzer defines the capability boundary the Analysis Engine
// drives (spec §4.5): a narrow interface shared by the LM categorizer,
// usefulness scorer, and script runner, plus a registry that returns
// them in registration order. Small method sets, no shared base struct.
package analyzer

import (
	"context"

	"github.com/bookmarkctl/bookmarkctl/internal/model"
)

// Scope distinguishes analyzers that run once per record from those
// that run once per job over the whole artifact.
type Scope int

const (
	// ScopeRecord analyzers are invoked once per record (LMCategorizer,
	// UsefulnessScorer).
	ScopeRecord Scope = iota
	// ScopeJob analyzers are invoked exactly once with the full
	// artifact (ScriptRunner).
	ScopeJob
)

// Result is the open record an analyzer returns: any field left zero
// (nil slice, nil map) is simply not merged. An analyzer-local failure
// is reported as Analyze's error return alongside a Result that holds
// only the analyzer's fallback fields, if any (see Analyzer.Analyze's
// contract below).
type Result struct {
	Categories      []string
	UsefulnessScore *int
	CustomFields    map[string]interface{}
}

// Analyzer is the capability every record-scoped variant implements.
// Job-scoped analyzers (ScriptRunner) implement JobAnalyzer instead;
// both share Name() and Scope() so the engine can treat initialization
// and registry lookup uniformly.
type Analyzer interface {
	// Name is the analyzer's logical name, used in analyzersUsed,
	// errorSummary incidents, and customAnalysis namespacing.
	Name() string
	// Scope reports whether Analyze is called per-record or per-job.
	Scope() Scope
	// Init performs one-time setup (e.g. verifying capability
	// reachability). An error here disables the analyzer for the whole
	// job without failing the job itself (spec §4.9 step 2).
	Init(ctx context.Context) error
	// Analyze produces a Result for a single record. An error here is
	// always analyzer-local (timeout, transport error, unparseable
	// output) and never propagates past the Analysis Engine: the
	// engine applies the analyzer's own fallback (the LM categorizer's
	// Result already carries "uncategorized" when it cannot reach its
	// capability) and appends one errorSummary incident. Analyze must
	// never panic.
	Analyze(ctx context.Context, record model.Record) (Result, error)
}

// JobAnalyzer is the capability job-scoped analyzers implement: a
// single call over the whole export artifact rather than per-record.
type JobAnalyzer interface {
	Name() string
	Scope() Scope
	Init(ctx context.Context) error
	// AnalyzeJob receives the full export artifact and returns a
	// mapping from record id to the custom fields contributed for that
	// record. Like Analyzer.Analyze, it must not raise for ordinary
	// failure; see ScriptRunner for how subprocess failures are
	// contained before this boundary.
	AnalyzeJob(ctx context.Context, artifact model.ExportArtifact) (map[string]map[string]interface{}, error)
}

// Registry holds analyzers keyed by name and returns them in
// registration order; it has no lookup-by-name accessor.
type Registry struct {
	record map[string]Analyzer
	job    map[string]JobAnalyzer
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		record: make(map[string]Analyzer),
		job:    make(map[string]JobAnalyzer),
	}
}

// RegisterRecord adds a record-scoped analyzer, preserving registration
// order so the Analysis Engine runs record analyzers in a deterministic
// order.
func (r *Registry) RegisterRecord(a Analyzer) {
	r.record[a.Name()] = a
	r.order = append(r.order, a.Name())
}

// RegisterJob adds a job-scoped analyzer.
func (r *Registry) RegisterJob(a JobAnalyzer) {
	r.job[a.Name()] = a
	r.order = append(r.order, a.Name())
}

// RecordAnalyzers returns the registered record-scoped analyzers in
// registration order.
func (r *Registry) RecordAnalyzers() []Analyzer {
	out := make([]Analyzer, 0, len(r.record))
	for _, name := range r.order {
		if a, ok := r.record[name]; ok {
			out = append(out, a)
		}
	}
	return out
}

// JobAnalyzers returns the registered job-scoped analyzers in
// registration order.
func (r *Registry) JobAnalyzers() []JobAnalyzer {
	out := make([]JobAnalyzer, 0, len(r.job))
	for _, name := range r.order {
		if a, ok := r.job[name]; ok {
			out = append(out, a)
		}
	}
	return out
}
