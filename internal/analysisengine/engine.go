// Package analysisengine implements the Analysis Engine (spec §4.9,
// C7): reads a validated export artifact, drives record-scoped and
// job-scoped analyzers with bounded fan-out, merges results with
// per-record and per-analyzer fault isolation, and emits the analysis
// artifact (or a partial artifact on abort).
package analysisengine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bookmarkctl/bookmarkctl/internal/analyzer"
	"github.com/bookmarkctl/bookmarkctl/internal/artifactwriter"
	"github.com/bookmarkctl/bookmarkctl/internal/bookmarkerr"
	"github.com/bookmarkctl/bookmarkctl/internal/logging"
	"github.com/bookmarkctl/bookmarkctl/internal/model"
	"github.com/bookmarkctl/bookmarkctl/internal/progress"
	"github.com/bookmarkctl/bookmarkctl/internal/schema"
)

// Config tunes the Analysis Engine's run.
type Config struct {
	OutputDir     string
	Concurrency   int64 // bounded fan-out width for record-scoped analyzers; default 8 (spec §5)
	ScoringMethod string
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.ScoringMethod == "" {
		c.ScoringMethod = "none"
	}
	return c
}

// Engine drives C6's registered analyzers over an export artifact.
type Engine struct {
	registry  *analyzer.Registry
	validator *schema.Validator
	log       logging.Sink
	sink      progress.Sink
	cfg       Config
	now       func() time.Time
}

// New wires the Analysis Engine's collaborators.
func New(registry *analyzer.Registry, validator *schema.Validator, log logging.Sink, sink progress.Sink, cfg Config) *Engine {
	return &Engine{registry: registry, validator: validator, log: log, sink: sink, cfg: cfg.withDefaults(), now: time.Now}
}

// Run executes spec §4.9's algorithm end to end, returning the written
// artifact's path. On a context cancellation mid-run it instead writes
// a partial artifact and returns that path alongside a non-nil error.
func (e *Engine) Run(ctx context.Context, export model.ExportArtifact) (string, error) {
	if ok, errs := e.validator.Validate(export, schema.KindExport); !ok {
		return "", bookmarkerr.New(bookmarkerr.KindSchema, "analysisengine.validateinput", fmt.Errorf("input export artifact failed schema validation: %v", errs))
	}

	enriched := make([]model.EnrichedRecord, len(export.Bookmarks))
	for i, rec := range export.Bookmarks {
		enriched[i] = model.EnrichedRecord{Record: rec}
	}

	var mu sync.Mutex
	var incidents []model.ErrorIncident
	analyzersUsed := make(map[string]bool)
	categoriesApplied := make(map[string]bool)

	recordAnalyzers := e.registry.RecordAnalyzers()
	jobAnalyzers := e.registry.JobAnalyzers()

	activeRecord := make([]analyzer.Analyzer, 0, len(recordAnalyzers))
	for _, a := range recordAnalyzers {
		if err := a.Init(ctx); err != nil {
			mu.Lock()
			incidents = append(incidents, model.ErrorIncident{Analyzer: a.Name(), Kind: string(bookmarkerr.KindAnalyzer), Message: fmt.Sprintf("init failed, analyzer disabled for this job: %v", err)})
			mu.Unlock()
			e.warn("analysisengine.init", "", a.Name(), err)
			continue
		}
		activeRecord = append(activeRecord, a)
	}

	activeJob := make([]analyzer.JobAnalyzer, 0, len(jobAnalyzers))
	for _, a := range jobAnalyzers {
		if err := a.Init(ctx); err != nil {
			mu.Lock()
			incidents = append(incidents, model.ErrorIncident{Analyzer: a.Name(), Kind: string(bookmarkerr.KindAnalyzer), Message: fmt.Sprintf("init failed, analyzer disabled for this job: %v", err)})
			mu.Unlock()
			e.warn("analysisengine.init", "", a.Name(), err)
			continue
		}
		activeJob = append(activeJob, a)
	}

	lastProcessed := -1
	abortReason := ""

	if len(activeRecord) > 0 {
		sem := semaphore.NewWeighted(e.cfg.Concurrency)
		var wg sync.WaitGroup

		for i := range enriched {
			if err := ctx.Err(); err != nil {
				abortReason = err.Error()
				break
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				abortReason = err.Error()
				break
			}

			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				defer sem.Release(1)

				rec := enriched[idx].Record
				for _, a := range activeRecord {
					result, err := a.Analyze(ctx, rec)
					mu.Lock()
					mergeRecordResult(&enriched[idx], result)
					if result.Categories != nil {
						analyzersUsed[a.Name()] = true
						for _, cat := range result.Categories {
							categoriesApplied[cat] = true
						}
					}
					if result.UsefulnessScore != nil {
						analyzersUsed[a.Name()] = true
					}
					if err != nil {
						incidents = append(incidents, model.ErrorIncident{RecordID: rec.ID, Analyzer: a.Name(), Kind: string(bookmarkerr.KindAnalyzer), Message: err.Error()})
					}
					if idx > lastProcessed {
						lastProcessed = idx
					}
					mu.Unlock()
				}

				mu.Lock()
				e.sink.Report(progress.Event{Processed: lastProcessed + 1, Total: len(enriched), Op: "analyze"})
				mu.Unlock()
			}(i)
		}
		wg.Wait()
	}

	for _, a := range activeJob {
		contributions, err := a.AnalyzeJob(ctx, export)
		if err != nil {
			incidents = append(incidents, model.ErrorIncident{Analyzer: a.Name(), Kind: string(bookmarkerr.KindAnalyzer), Message: err.Error()})
			e.warn("analysisengine.jobanalyzer", "", a.Name(), err)
			continue
		}
		analyzersUsed[a.Name()] = true
		for id, fields := range contributions {
			for i := range enriched {
				if enriched[i].ID == id {
					if enriched[i].CustomAnalysis == nil {
						enriched[i].CustomAnalysis = make(map[string]interface{})
					}
					enriched[i].CustomAnalysis[a.Name()] = fields
					break
				}
			}
		}
	}

	metadata := model.AnalysisMetadata{
		ExportMetadata:    export.Metadata,
		AnalysisTimestamp: e.now().UTC().Format(time.RFC3339),
		CategoriesApplied: sortedKeys(categoriesApplied),
		ScoringMethod:     e.cfg.ScoringMethod,
		AnalyzersUsed:     sortedKeys(analyzersUsed),
	}
	if len(incidents) > 0 {
		metadata.ErrorSummary = &model.ErrorSummary{Incidents: incidents}
	}

	if abortReason != "" {
		if metadata.ErrorSummary == nil {
			metadata.ErrorSummary = &model.ErrorSummary{Incidents: []model.ErrorIncident{}}
		}
		metadata.ErrorSummary.AbortReason = abortReason
		if lastProcessed >= 0 {
			metadata.ErrorSummary.LastProcessedIdx = lastProcessed
		}
		return e.writePartial(metadata, enriched)
	}

	artifact := model.AnalysisArtifact{Metadata: metadata, Bookmarks: enriched}
	if ok, errs := e.validator.Validate(artifact, schema.KindAnalysis); !ok {
		return "", bookmarkerr.New(bookmarkerr.KindSchema, "analysisengine.validateoutput", fmt.Errorf("analysis artifact failed schema validation: %v", errs))
	}

	data, err := model.MarshalIndent(artifact)
	if err != nil {
		return "", bookmarkerr.New(bookmarkerr.KindFilesystem, "analysisengine.marshal", err)
	}
	basename, err := artifactwriter.Basename(e.cfg.OutputDir, "analysis", e.now())
	if err != nil {
		return "", bookmarkerr.New(bookmarkerr.KindFilesystem, "analysisengine.basename", err)
	}
	path, err := artifactwriter.Write(e.cfg.OutputDir, basename, data)
	if err != nil {
		return "", bookmarkerr.New(bookmarkerr.KindFilesystem, "analysisengine.write", err)
	}

	e.sink.Summary(fmt.Sprintf("analysis complete: %d records, %d incidents, written to %s", len(enriched), len(incidents), path))
	return path, nil
}

// writePartial emits the `_partial` artifact spec §4.9's critical-failure
// path describes: every input record is present, but only the records
// processed before abort carry enriched fields.
func (e *Engine) writePartial(metadata model.AnalysisMetadata, enriched []model.EnrichedRecord) (string, error) {
	artifact := model.AnalysisArtifact{Metadata: metadata, Bookmarks: enriched}
	data, err := model.MarshalIndent(artifact)
	if err != nil {
		return "", bookmarkerr.New(bookmarkerr.KindFilesystem, "analysisengine.marshalpartial", err)
	}
	basename, err := artifactwriter.Basename(e.cfg.OutputDir, "analysis_partial", e.now())
	if err != nil {
		return "", bookmarkerr.New(bookmarkerr.KindFilesystem, "analysisengine.basenamepartial", err)
	}
	path, writeErr := artifactwriter.Write(e.cfg.OutputDir, basename, data)
	if writeErr != nil {
		return "", bookmarkerr.New(bookmarkerr.KindFilesystem, "analysisengine.writepartial", writeErr)
	}
	return path, fmt.Errorf("analysis aborted: %s", metadata.ErrorSummary.AbortReason)
}

func mergeRecordResult(enriched *model.EnrichedRecord, result analyzer.Result) {
	if result.Categories != nil {
		enriched.Categories = result.Categories
	}
	if result.UsefulnessScore != nil {
		enriched.UsefulnessScore = result.UsefulnessScore
	}
	if result.CustomFields != nil {
		if enriched.CustomAnalysis == nil {
			enriched.CustomAnalysis = make(map[string]interface{})
		}
		for k, v := range result.CustomFields {
			enriched.CustomAnalysis[k] = v
		}
	}
}

func (e *Engine) warn(op, recordID, analyzerName string, err error) {
	if e.log == nil {
		return
	}
	e.log.Log(logging.Event{
		Level:    logging.LevelWarn,
		Op:       op,
		RecordID: recordID,
		Context:  map[string]interface{}{"analyzer": analyzerName, "message": err.Error()},
	})
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
