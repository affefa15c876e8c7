// Package lmcategorizer implements the LM Categorizer (spec §4.6):
// maps a record's text to 0..maxCategories labels via an injected
// language-model capability, with a deterministic fallback on failure.
package lmcategorizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/bookmarkctl/bookmarkctl/internal/analyzer"
	"github.com/bookmarkctl/bookmarkctl/internal/lm"
	"github.com/bookmarkctl/bookmarkctl/internal/model"
)

const defaultSystemPrompt = "Classify the following bookmark into a short list of topical categories. " +
	"Reply with a comma-separated list of lowercase labels only, no other text."

const fallbackCategory = "uncategorized"

// Config tunes the categorizer's prompt shape and limits.
type Config struct {
	ModelID       string
	SystemPrompt  string
	MaxCategories int
}

func (c Config) withDefaults() Config {
	if c.SystemPrompt == "" {
		c.SystemPrompt = defaultSystemPrompt
	}
	if c.MaxCategories <= 0 {
		c.MaxCategories = 5
	}
	return c
}

// Categorizer is a record-scoped analyzer.Analyzer.
type Categorizer struct {
	cfg        Config
	capability lm.Capability
}

// New returns a Categorizer bound to capability, a language-model
// dependency injected per "capabilities over subclassing" (spec §9).
func New(cfg Config, capability lm.Capability) *Categorizer {
	return &Categorizer{cfg: cfg.withDefaults(), capability: capability}
}

func (c *Categorizer) Name() string        { return "lm-categorizer" }
func (c *Categorizer) Scope() analyzer.Scope { return analyzer.ScopeRecord }

// Init verifies the capability is configured; it does not make a live
// call, since that would consume quota for every job regardless of
// whether any record is ever analyzed.
func (c *Categorizer) Init(ctx context.Context) error {
	if c.capability == nil {
		return fmt.Errorf("lmcategorizer: no language-model capability configured")
	}
	return nil
}

// Analyze builds a prompt from the record text, calls the capability
// once, and retries exactly once on a capability error or an
// unparseable response before falling back to "uncategorized" (spec
// §4.6). Categories is always present, as Property 13 requires; when
// the fallback is used, Analyze also returns the last failure as an
// error so the engine can record the incident.
func (c *Categorizer) Analyze(ctx context.Context, record model.Record) (analyzer.Result, error) {
	prompt := c.buildPrompt(record)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		text, err := c.capability.Complete(ctx, prompt, c.cfg.ModelID, lm.Options{MaxTokens: 128})
		if err != nil {
			lastErr = err
			continue
		}
		labels := parseLabels(text)
		if len(labels) == 0 {
			lastErr = fmt.Errorf("lmcategorizer: could not parse any labels from response %q", text)
			continue
		}
		return analyzer.Result{Categories: truncateAndNormalize(labels, c.cfg.MaxCategories)}, nil
	}

	return analyzer.Result{Categories: []string{fallbackCategory}}, fmt.Errorf("lmcategorizer: %w", lastErr)
}

func (c *Categorizer) buildPrompt(record model.Record) string {
	return fmt.Sprintf("%s\n\n%s", c.cfg.SystemPrompt, record.TextOrEmpty())
}

// parseLabels tolerates comma-separated, bullet-list, and
// quoted-list-shaped responses (spec §4.6 "tolerate quoted or bullet
// formats").
func parseLabels(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	var fields []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "-")
		line = strings.TrimPrefix(line, "*")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, part := range strings.Split(line, ",") {
			fields = append(fields, part)
		}
	}

	var labels []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		f = strings.Trim(f, `"'`)
		f = strings.TrimSpace(f)
		if f != "" {
			labels = append(labels, f)
		}
	}
	return labels
}

func truncateAndNormalize(labels []string, max int) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, max)
	for _, l := range labels {
		norm := strings.ToLower(strings.TrimSpace(l))
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
		if len(out) >= max {
			break
		}
	}
	return out
}
