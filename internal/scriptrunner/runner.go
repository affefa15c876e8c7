// Package scriptrunner implements the Script Runner (spec §4.8): a
// job-scoped analyzer that pipes the export artifact to an external
// program's stdin and merges its validated JSON stdout back into the
// enriched records under a namespace keyed by the script's name.
package scriptrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/bookmarkctl/bookmarkctl/internal/analyzer"
	"github.com/bookmarkctl/bookmarkctl/internal/model"
	"github.com/bookmarkctl/bookmarkctl/internal/schema"
)

// limitedWriter stops accepting bytes after N, but never returns an
// error, capping a child process's stdout without failing the copy.
type limitedWriter struct {
	buf      bytes.Buffer
	n        int64
	overflow bool
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.overflow {
		return len(p), nil
	}
	if int64(len(p)) > w.n {
		w.overflow = true
		return len(p), nil
	}
	written, _ := w.buf.Write(p)
	w.n -= int64(written)
	return len(p), nil
}

// Config describes one configured script.
type Config struct {
	Name      string
	Command   string
	Args      []string
	WorkDir   string
	Timeout   time.Duration
	MaxOutput int64
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxOutput <= 0 {
		c.MaxOutput = 8 << 20
	}
	return c
}

// Runner is a JobAnalyzer: it runs once per analysis job, not once per
// record.
type Runner struct {
	cfg       Config
	validator *schema.Validator
}

// New returns a Runner for the given script configuration. validator is
// used to check the script's merged output against
// script-output.schema.json before it is returned (spec §4.4); it must
// not be nil.
func New(cfg Config, validator *schema.Validator) *Runner {
	return &Runner{cfg: cfg.withDefaults(), validator: validator}
}

func (r *Runner) Name() string          { return r.cfg.Name }
func (r *Runner) Scope() analyzer.Scope { return analyzer.ScopeJob }

// Init verifies the command is resolvable; it does not invoke it (spec
// §4.9 step 2: initialization should be cheap enough to run even when
// the script is never exercised).
func (r *Runner) Init(ctx context.Context) error {
	if r.cfg.Command == "" {
		return fmt.Errorf("scriptrunner %q: no command configured", r.cfg.Name)
	}
	if _, err := exec.LookPath(r.cfg.Command); err != nil {
		return fmt.Errorf("scriptrunner %q: command %q not found: %w", r.cfg.Name, r.cfg.Command, err)
	}
	return nil
}

// AnalyzeJob runs the configured program once, feeding it the export
// artifact as JSON on stdin and reading its stdout. Any failure along
// the way (nonzero exit, unparseable output, timeout, or output that
// parses as JSON but fails script-output.schema.json) discards the
// script's contribution entirely and returns an error for the engine
// to record as one errorSummary incident (spec §4.8 step 4); it never
// corrupts results from other analyzers. Unparseable JSON and
// schema-invalid JSON are distinct failure modes the caller can tell
// apart from the wrapped error text; both take the same discard path.
func (r *Runner) AnalyzeJob(ctx context.Context, artifact model.ExportArtifact) (map[string]map[string]interface{}, error) {
	payload, err := json.Marshal(artifact)
	if err != nil {
		return nil, fmt.Errorf("scriptrunner %q: marshal export artifact: %w", r.cfg.Name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cfg.Command, r.cfg.Args...)
	if r.cfg.WorkDir != "" {
		cmd.Dir = r.cfg.WorkDir
	}
	cmd.Stdin = bytes.NewReader(payload)

	stdout := &limitedWriter{n: r.cfg.MaxOutput}
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr // captured for diagnostics only, never parsed as data (spec §4.8)

	runErr := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("scriptrunner %q: exceeded timeout %s", r.cfg.Name, r.cfg.Timeout)
	}
	if runErr != nil {
		return nil, fmt.Errorf("scriptrunner %q: exit error: %w (stderr: %s)", r.cfg.Name, runErr, truncate(stderr.String(), 2048))
	}
	if stdout.overflow {
		return nil, fmt.Errorf("scriptrunner %q: output exceeded %d bytes", r.cfg.Name, r.cfg.MaxOutput)
	}

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(stdout.buf.Bytes(), &parsed); err != nil {
		return nil, fmt.Errorf("scriptrunner %q: unparseable output: %w", r.cfg.Name, err)
	}

	if ok, errs := r.validator.Validate(parsed, schema.KindScriptOutput); !ok {
		return nil, fmt.Errorf("scriptrunner %q: output failed schema validation: %v", r.cfg.Name, errs)
	}

	known := make(map[string]bool, len(artifact.Bookmarks))
	for _, rec := range artifact.Bookmarks {
		known[rec.ID] = true
	}

	out := make(map[string]map[string]interface{}, len(parsed))
	for id, fields := range parsed {
		if !known[id] {
			// Unknown id: dropped here. This package has no logger and
			// the Analysis Engine never sees the dropped ids, so no
			// warning is logged for them.
			continue
		}
		out[id] = fields
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

var _ io.Writer = (*limitedWriter)(nil)
