package lmcategorizer

import (
	"context"
	"testing"

	"github.com/bookmarkctl/bookmarkctl/internal/lm"
	"github.com/bookmarkctl/bookmarkctl/internal/model"
)

func TestAnalyzeReturnsParsedCategories(t *testing.T) {
	text := "a great golang article"
	rec := model.Record{ID: "1", Text: model.StringPtr(text)}
	cat := New(Config{ModelID: "m"}, &lm.Fake{
		Responses: map[string]string{
			defaultSystemPrompt + "\n\n" + text: "Go, Programming, go",
		},
	})

	result, err := cat.Analyze(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Categories) != 2 {
		t.Fatalf("expected deduped+lowercased categories, got %v", result.Categories)
	}
	if result.Categories[0] != "go" || result.Categories[1] != "programming" {
		t.Errorf("unexpected categories: %v", result.Categories)
	}
}

func TestAnalyzeFallsBackToUncategorizedOnCapabilityFailure(t *testing.T) {
	text := "whatever"
	rec := model.Record{ID: "1", Text: model.StringPtr(text)}
	cat := New(Config{ModelID: "m"}, &lm.Fake{
		FailPrompts: map[string]bool{defaultSystemPrompt + "\n\n" + text: true},
	})

	result, err := cat.Analyze(context.Background(), rec)
	if err == nil {
		t.Fatalf("expected an error reporting the analyzer-local failure")
	}
	if len(result.Categories) != 1 || result.Categories[0] != fallbackCategory {
		t.Fatalf("expected fallback category, got %v", result.Categories)
	}
}

func TestAnalyzeFallsBackOnUnparseableResponse(t *testing.T) {
	rec := model.Record{ID: "1", Text: model.StringPtr("x")}
	cat := New(Config{ModelID: "m"}, &lm.Fake{
		Responses: map[string]string{defaultSystemPrompt + "\n\nx": "   "},
	})

	result, _ := cat.Analyze(context.Background(), rec)
	if len(result.Categories) != 1 || result.Categories[0] != fallbackCategory {
		t.Fatalf("expected fallback category for unparseable response, got %v", result.Categories)
	}
}

func TestAnalyzeTruncatesToMaxCategories(t *testing.T) {
	rec := model.Record{ID: "1", Text: model.StringPtr("x")}
	cat := New(Config{ModelID: "m", MaxCategories: 2}, &lm.Fake{
		Responses: map[string]string{defaultSystemPrompt + "\n\nx": "a, b, c, d"},
	})

	result, err := cat.Analyze(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Categories) != 2 {
		t.Fatalf("expected truncation to 2 categories, got %v", result.Categories)
	}
}

func TestInitFailsWithoutCapability(t *testing.T) {
	cat := New(Config{}, nil)
	if err := cat.Init(context.Background()); err == nil {
		t.Fatalf("expected Init to fail without a capability")
	}
}
