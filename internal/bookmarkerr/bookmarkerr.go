// Package bookmarkerr defines the error-kind taxonomy shared by the
// export and analysis pipelines (spec §7): credential, rate-limited,
// transient transport, protocol, schema, analyzer-local, and filesystem
// failures. Components return a *StageError tagged with a Kind so
// callers can classify a failure with errors.As without depending on a
// component's concrete error type; the matching sentinel is the wrapped
// error (and so visible to errors.Is) only when New is given a nil err.
package bookmarkerr

import "errors"

var (
	// ErrCredential means the remote rejected the caller's credentials.
	// Non-retryable; aborts the export.
	ErrCredential = errors.New("credential error: not authenticated or not authorized")

	// ErrTransient covers network errors and remote 5xx responses. Retried
	// with backoff by the Rate Governor; promoted to fatal after the
	// configured retry ceiling.
	ErrTransient = errors.New("transient transport error")

	// ErrProtocol means the remote returned an unparseable or
	// schema-violating payload. Non-retryable for that page.
	ErrProtocol = errors.New("protocol error: unparseable remote response")

	// ErrSchema means a produced artifact failed its own schema. A
	// programmer error; aborts the run that produced it.
	ErrSchema = errors.New("schema error: artifact failed validation")

	// ErrAnalyzerLocal covers a single analyzer's failure on a single
	// record or job. Contained: the engine falls back and continues.
	ErrAnalyzerLocal = errors.New("analyzer error: contained, fallback applied")

	// ErrFilesystem covers write failures and permission errors.
	// Non-retryable; aborts the run, writing a partial artifact where
	// possible.
	ErrFilesystem = errors.New("filesystem error")
)

// Kind is the taxonomy tag attached to a StageError, independent of the
// Go error chain, so it can be serialized into an error-log line or an
// artifact's errorSummary.
type Kind string

const (
	KindCredential Kind = "credential"
	KindRateLimit  Kind = "rate_limited"
	KindTransient  Kind = "transient"
	KindProtocol   Kind = "protocol"
	KindSchema     Kind = "schema"
	KindAnalyzer   Kind = "analyzer_local"
	KindFilesystem Kind = "filesystem"
)

// StageError carries the kind, the operation that failed, and (for
// record-scoped failures) the affected record id, so a single wrapped
// error can drive both log lines and errorSummary entries.
type StageError struct {
	Kind     Kind
	Op       string
	RecordID string
	Analyzer string
	Err      error
}

func (e *StageError) Error() string {
	msg := string(e.Kind) + ": " + e.Op
	if e.Analyzer != "" {
		msg += " (analyzer=" + e.Analyzer + ")"
	}
	if e.RecordID != "" {
		msg += " (record=" + e.RecordID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.Err }

// New builds a StageError, inferring the sentinel Err from kind when one
// isn't supplied.
func New(kind Kind, op string, err error) *StageError {
	if err == nil {
		switch kind {
		case KindCredential:
			err = ErrCredential
		case KindTransient:
			err = ErrTransient
		case KindProtocol:
			err = ErrProtocol
		case KindSchema:
			err = ErrSchema
		case KindAnalyzer:
			err = ErrAnalyzerLocal
		case KindFilesystem:
			err = ErrFilesystem
		}
	}
	return &StageError{Kind: kind, Op: op, Err: err}
}

// WithRecord returns a copy of e annotated with a record id.
func (e *StageError) WithRecord(id string) *StageError {
	c := *e
	c.RecordID = id
	return &c
}

// WithAnalyzer returns a copy of e annotated with the analyzer name.
func (e *StageError) WithAnalyzer(name string) *StageError {
	c := *e
	c.Analyzer = name
	return &c
}
