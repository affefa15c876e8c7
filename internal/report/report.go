// Package report produces the terse end-of-run summary the CLI prints
// after an analysis job: sort, count, format. No server, no templates,
// just a formatted string.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bookmarkctl/bookmarkctl/internal/model"
)

// CategoryCount pairs a category label with how many records carried it.
type CategoryCount struct {
	Category string
	Count    int
}

// TopRecord is one entry in the Report's highest-scoring sample.
type TopRecord struct {
	ID    string
	Text  string
	Score int
}

// Report is the computed summary of one analysis artifact.
type Report struct {
	TotalRecords        int
	ScoringMethod       string
	AnalyzersUsed       []string
	CategoryCounts      []CategoryCount
	ScoredRecords       int
	AverageUsefulness   float64
	TopRecords          []TopRecord
	IncidentCount       int
	IncidentsByAnalyzer map[string]int
	AbortReason         string
}

// Summarize walks an analysis artifact's records and metadata into a
// Report: one pass to collect, one sort.Slice to rank.
func Summarize(artifact model.AnalysisArtifact) Report {
	r := Report{
		TotalRecords:        len(artifact.Bookmarks),
		ScoringMethod:       artifact.Metadata.ScoringMethod,
		AnalyzersUsed:       artifact.Metadata.AnalyzersUsed,
		IncidentsByAnalyzer: make(map[string]int),
	}

	categoryCounts := make(map[string]int)
	var scoreSum int
	var top []TopRecord

	for _, rec := range artifact.Bookmarks {
		for _, cat := range rec.Categories {
			categoryCounts[cat]++
		}
		if rec.UsefulnessScore != nil {
			r.ScoredRecords++
			scoreSum += *rec.UsefulnessScore
			top = append(top, TopRecord{ID: rec.ID, Text: truncate(rec.TextOrEmpty(), 80), Score: *rec.UsefulnessScore})
		}
	}

	for cat, count := range categoryCounts {
		r.CategoryCounts = append(r.CategoryCounts, CategoryCount{Category: cat, Count: count})
	}
	sort.Slice(r.CategoryCounts, func(i, j int) bool {
		if r.CategoryCounts[i].Count != r.CategoryCounts[j].Count {
			return r.CategoryCounts[i].Count > r.CategoryCounts[j].Count
		}
		return r.CategoryCounts[i].Category < r.CategoryCounts[j].Category
	})

	sort.Slice(top, func(i, j int) bool { return top[i].Score > top[j].Score })
	if len(top) > 5 {
		top = top[:5]
	}
	r.TopRecords = top

	if r.ScoredRecords > 0 {
		r.AverageUsefulness = float64(scoreSum) / float64(r.ScoredRecords)
	}

	if summary := artifact.Metadata.ErrorSummary; summary != nil {
		r.IncidentCount = len(summary.Incidents)
		r.AbortReason = summary.AbortReason
		for _, incident := range summary.Incidents {
			if incident.Analyzer != "" {
				r.IncidentsByAnalyzer[incident.Analyzer]++
			}
		}
	}

	return r
}

// String renders the report the way the CLI prints it: a handful of
// terse lines, no tables, no color.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "analyzed %d records (method=%s, analyzers=%s)\n", r.TotalRecords, r.ScoringMethod, strings.Join(r.AnalyzersUsed, ","))

	if len(r.CategoryCounts) > 0 {
		b.WriteString("categories:")
		for _, c := range r.CategoryCounts {
			fmt.Fprintf(&b, " %s=%d", c.Category, c.Count)
		}
		b.WriteString("\n")
	}

	if r.ScoredRecords > 0 {
		fmt.Fprintf(&b, "usefulness: %d scored, average %.1f\n", r.ScoredRecords, r.AverageUsefulness)
		for _, t := range r.TopRecords {
			fmt.Fprintf(&b, "  [%d] %s: %s\n", t.Score, t.ID, t.Text)
		}
	}

	if r.IncidentCount > 0 {
		fmt.Fprintf(&b, "incidents: %d", r.IncidentCount)
		if len(r.IncidentsByAnalyzer) > 0 {
			names := make([]string, 0, len(r.IncidentsByAnalyzer))
			for name := range r.IncidentsByAnalyzer {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(&b, " %s=%d", name, r.IncidentsByAnalyzer[name])
			}
		}
		b.WriteString("\n")
	}

	if r.AbortReason != "" {
		fmt.Fprintf(&b, "aborted: %s\n", r.AbortReason)
	}

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
