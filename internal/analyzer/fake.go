package analyzer

import (
	"context"

	"github.com/bookmarkctl/bookmarkctl/internal/model"
)

// Fake is a deterministic, hermetic Analyzer used in tests: it can be
// configured to fail on specific record ids and to fail Init outright.
type Fake struct {
	NameValue string
	ScopeValue Scope
	InitErr   error
	FailIDs   map[string]bool
	Result    Result
}

func (f *Fake) Name() string { return f.NameValue }
func (f *Fake) Scope() Scope { return f.ScopeValue }

func (f *Fake) Init(ctx context.Context) error {
	return f.InitErr
}

func (f *Fake) Analyze(ctx context.Context, record model.Record) (Result, error) {
	if f.FailIDs != nil && f.FailIDs[record.ID] {
		return Result{}, errAnalyzeFailed
	}
	return f.Result, nil
}

var errAnalyzeFailed = &fakeError{"fake analyzer failure"}

type fakeError struct{ msg string }

func (e *fakeError) Error() string { return e.msg }
