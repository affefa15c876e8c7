// Package scorer implements the Usefulness Scorer (spec §4.7):
// heuristic, LM, and hybrid methods, each producing an integer in
// [0,100]. Normalization functions follow the Open Question decision
// recorded in SPEC_FULL.md §5.1: a saturating x/(x+k) transform for
// engagement, exponential decay for recency, and a bounded
// length/boilerplate function for quality.
package scorer

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bookmarkctl/bookmarkctl/internal/analyzer"
	"github.com/bookmarkctl/bookmarkctl/internal/lm"
	"github.com/bookmarkctl/bookmarkctl/internal/model"
)

// Method selects which scoring strategy a Scorer runs.
type Method string

const (
	MethodHeuristic Method = "heuristic"
	MethodLLM       Method = "llm"
	MethodHybrid    Method = "hybrid"
)

// defaultLLMScore is emitted when pure-LM scoring fails to produce a
// usable value (SPEC_FULL.md §5.2): a documented default rather than an
// omitted field, so Property 10's total-function requirement always
// holds.
const defaultLLMScore = 50

// Config tunes engagement/recency/quality sub-weights (must sum to 1 for
// the heuristic/hybrid blends; New does not enforce this. A
// misconfigured weight set is a configuration error the caller is
// expected to validate, not an analyzer-local failure) plus the
// saturation constant k and recency half-life.
type Config struct {
	Method            Method
	EngagementWeight  float64
	RecencyWeight     float64
	QualityWeight     float64
	SaturationK       float64
	RecencyHalfLifeDays float64
	HybridLMWeight    float64 // weight given to the LM score in hybrid mode; heuristic gets 1-this
	ModelID           string
}

func (c Config) withDefaults() Config {
	if c.Method == "" {
		c.Method = MethodHeuristic
	}
	if c.EngagementWeight == 0 && c.RecencyWeight == 0 && c.QualityWeight == 0 {
		c.EngagementWeight, c.RecencyWeight, c.QualityWeight = 0.5, 0.3, 0.2
	}
	if c.SaturationK <= 0 {
		c.SaturationK = 50
	}
	if c.RecencyHalfLifeDays <= 0 {
		c.RecencyHalfLifeDays = 30
	}
	if c.HybridLMWeight <= 0 {
		c.HybridLMWeight = 0.5
	}
	return c
}

// Scorer is a record-scoped analyzer.Analyzer.
type Scorer struct {
	cfg        Config
	capability lm.Capability
	now        func() time.Time
}

// New returns a Scorer. capability may be nil when Method is
// MethodHeuristic.
func New(cfg Config, capability lm.Capability) *Scorer {
	return &Scorer{cfg: cfg.withDefaults(), capability: capability, now: time.Now}
}

func (s *Scorer) Name() string        { return "usefulness-scorer" }
func (s *Scorer) Scope() analyzer.Scope { return analyzer.ScopeRecord }

func (s *Scorer) Init(ctx context.Context) error {
	if (s.cfg.Method == MethodLLM || s.cfg.Method == MethodHybrid) && s.capability == nil {
		return fmt.Errorf("scorer: method %q requires a language-model capability", s.cfg.Method)
	}
	return nil
}

// Analyze produces a usefulnessScore in [0,100] per the configured
// method. A score is always produced: on an LM failure, hybrid mode
// falls back to the heuristic component (spec §8 Property 10) and
// pure-LM mode yields defaultLLMScore. In both modes the LM failure is
// also returned as an analyzer-local error so the engine can record
// the incident.
func (s *Scorer) Analyze(ctx context.Context, record model.Record) (analyzer.Result, error) {
	switch s.cfg.Method {
	case MethodLLM:
		score, err := s.llmScore(ctx, record)
		if err != nil {
			v := defaultLLMScore
			return analyzer.Result{UsefulnessScore: &v}, fmt.Errorf("scorer: %w", err)
		}
		return analyzer.Result{UsefulnessScore: &score}, nil

	case MethodHybrid:
		heuristic := s.heuristicScore(record)
		llmScore, err := s.llmScore(ctx, record)
		if err != nil {
			return analyzer.Result{UsefulnessScore: &heuristic}, fmt.Errorf("scorer: %w", err)
		}
		blended := clampScore(int(math.Round(
			s.cfg.HybridLMWeight*float64(llmScore) + (1-s.cfg.HybridLMWeight)*float64(heuristic),
		)))
		return analyzer.Result{UsefulnessScore: &blended}, nil

	default:
		score := s.heuristicScore(record)
		return analyzer.Result{UsefulnessScore: &score}, nil
	}
}

func (s *Scorer) heuristicScore(record model.Record) int {
	engagement := engagementScore(record, s.cfg.SaturationK)
	recency := recencyScore(record, s.now(), s.cfg.RecencyHalfLifeDays)
	quality := qualityScore(record)

	raw := s.cfg.EngagementWeight*engagement + s.cfg.RecencyWeight*recency + s.cfg.QualityWeight*quality
	return clampScore(int(math.Round(100 * raw)))
}

func (s *Scorer) llmScore(ctx context.Context, record model.Record) (int, error) {
	prompt := fmt.Sprintf(
		"Rate the usefulness of this bookmark on an integer scale from 0 to 100. "+
			"Reply with only the number.\n\n%s", record.TextOrEmpty(),
	)
	text, err := s.capability.Complete(ctx, prompt, s.cfg.ModelID, lm.Options{MaxTokens: 8})
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("unparseable score %q: %w", text, err)
	}
	return clampScore(n), nil
}

// engagementScore is a saturating transform x/(x+k) applied to total
// engagement (likes+retweets+replies), monotone and bounded to [0,1] as
// spec §4.7 requires.
func engagementScore(record model.Record, k float64) float64 {
	total := float64(record.LikeCount + record.RetweetCount + record.ReplyCount)
	if total <= 0 {
		return 0
	}
	return total / (total + k)
}

// recencyScore decays exponentially with age, halving every
// halfLifeDays. A record with no parseable createdAt scores 0 rather
// than panicking or erroring: recency is best-effort, not a required
// field's source of truth.
func recencyScore(record model.Record, now time.Time, halfLifeDays float64) float64 {
	created, err := time.Parse(time.RFC3339, record.CreatedAtOrEmpty())
	if err != nil {
		return 0
	}
	ageDays := now.Sub(created).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-math.Ln2 * ageDays / halfLifeDays)
}

// boilerplatePhrases penalize records that read as low-content noise
// rather than a substantive bookmark.
var boilerplatePhrases = []string{
	"click here", "sign up now", "limited time offer", "subscribe today",
}

// qualityScore rewards longer text up to a saturation point and
// penalizes boilerplate phrasing, bounded to [0,1].
func qualityScore(record model.Record) float64 {
	text := record.TextOrEmpty()
	length := float64(len(strings.TrimSpace(text)))
	lengthComponent := length / (length + 140) // saturates similarly to engagement

	lower := strings.ToLower(text)
	penalty := 0.0
	for _, phrase := range boilerplatePhrases {
		if strings.Contains(lower, phrase) {
			penalty += 0.25
		}
	}

	score := lengthComponent - penalty
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
