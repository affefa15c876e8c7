package report

import (
	"strings"
	"testing"

	"github.com/bookmarkctl/bookmarkctl/internal/model"
)

func intPtr(v int) *int { return &v }

func sampleArtifact() model.AnalysisArtifact {
	return model.AnalysisArtifact{
		Metadata: model.AnalysisMetadata{
			ScoringMethod: "heuristic",
			AnalyzersUsed: []string{"categorizer", "scorer"},
			ErrorSummary: &model.ErrorSummary{
				Incidents: []model.ErrorIncident{
					{RecordID: "2", Analyzer: "categorizer", Kind: "analyzer", Message: "timeout"},
				},
			},
		},
		Bookmarks: []model.EnrichedRecord{
			{Record: model.Record{ID: "1", Text: model.StringPtr("a useful link about go")}, Categories: []string{"tech"}, UsefulnessScore: intPtr(90)},
			{Record: model.Record{ID: "2", Text: model.StringPtr("another one")}, Categories: []string{"tech", "news"}, UsefulnessScore: intPtr(40)},
		},
	}
}

func TestSummarizeCountsCategoriesAndAverages(t *testing.T) {
	r := Summarize(sampleArtifact())

	if r.TotalRecords != 2 {
		t.Errorf("expected TotalRecords=2, got %d", r.TotalRecords)
	}
	if r.ScoredRecords != 2 || r.AverageUsefulness != 65 {
		t.Errorf("expected average 65 over 2 scored records, got %d/%v", r.ScoredRecords, r.AverageUsefulness)
	}
	if len(r.CategoryCounts) != 2 {
		t.Fatalf("expected 2 distinct categories, got %+v", r.CategoryCounts)
	}
	if r.CategoryCounts[0].Category != "tech" || r.CategoryCounts[0].Count != 2 {
		t.Errorf("expected tech to be the most common category, got %+v", r.CategoryCounts[0])
	}
}

func TestSummarizeRanksTopRecordsByScoreDescending(t *testing.T) {
	r := Summarize(sampleArtifact())
	if len(r.TopRecords) != 2 {
		t.Fatalf("expected 2 top records, got %d", len(r.TopRecords))
	}
	if r.TopRecords[0].ID != "1" || r.TopRecords[0].Score != 90 {
		t.Errorf("expected record 1 to rank first, got %+v", r.TopRecords[0])
	}
}

func TestSummarizeCountsIncidentsByAnalyzer(t *testing.T) {
	r := Summarize(sampleArtifact())
	if r.IncidentCount != 1 {
		t.Fatalf("expected 1 incident, got %d", r.IncidentCount)
	}
	if r.IncidentsByAnalyzer["categorizer"] != 1 {
		t.Errorf("expected 1 incident attributed to categorizer, got %+v", r.IncidentsByAnalyzer)
	}
}

func TestStringRendersWithoutPanicking(t *testing.T) {
	s := Summarize(sampleArtifact()).String()
	if !strings.Contains(s, "analyzed 2 records") {
		t.Errorf("expected summary header, got %q", s)
	}
	if !strings.Contains(s, "incidents: 1") {
		t.Errorf("expected incidents line, got %q", s)
	}
}

func TestSummarizeEmptyArtifactProducesZeroedReport(t *testing.T) {
	r := Summarize(model.AnalysisArtifact{})
	if r.TotalRecords != 0 || r.ScoredRecords != 0 || r.IncidentCount != 0 {
		t.Errorf("expected a zeroed report for an empty artifact, got %+v", r)
	}
	if r.String() == "" {
		t.Errorf("expected a non-empty string even for an empty artifact")
	}
}
