// Package config loads bookmarkctl's configuration. Config parsing and
// environment-variable resolution are named external collaborators in
// spec §1 (the core pipeline never imports this package), but a
// complete repository still needs something to build the CLI's wiring:
// TOML via go-toml/v2, overridden by environment variables, overridden
// again by CLI flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// ScriptConfig describes one external analyzer script (spec §4.8).
type ScriptConfig struct {
	Name       string   `toml:"name"`
	Command    string   `toml:"command"`
	Args       []string `toml:"args"`
	WorkDir    string   `toml:"workdir"`
	TimeoutStr string   `toml:"timeout"`
	MaxOutput  int64    `toml:"max_output_bytes"`
}

// Timeout parses TimeoutStr, defaulting to 30s when unset or invalid.
func (s ScriptConfig) Timeout() time.Duration {
	if s.TimeoutStr == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(s.TimeoutStr)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// RemoteLogConfig configures the optional secondary error-log fan-out.
type RemoteLogConfig struct {
	Enabled     bool   `toml:"enabled"`
	URL         string `toml:"url"`
	AuthToken   string `toml:"auth_token"`
	BatchSize   int    `toml:"batch_size"`
	BatchWait   string `toml:"batch_wait"`
	RetryMax    int    `toml:"retry_max"`
	UseGzip     bool   `toml:"use_gzip"`
	Environment string `toml:"environment"`
}

// LMConfig configures the default Bedrock-backed language-model
// capability (spec §6's "language-model capability" is an interface; this
// is the one concrete implementation this repository ships).
type LMConfig struct {
	Region    string `toml:"bedrock_region"`
	ModelID   string `toml:"model_id"`
	TimeoutMs int    `toml:"timeout_ms"`
}

func (c LMConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ScorerConfig configures the usefulness scorer (spec §4.7).
type ScorerConfig struct {
	Method           string  `toml:"method"` // llm | heuristic | hybrid
	HybridLMWeight   float64 `toml:"hybrid_lm_weight"`
	EngagementWeight float64 `toml:"engagement_weight"`
	RecencyWeight    float64 `toml:"recency_weight"`
	QualityWeight    float64 `toml:"quality_weight"`
}

// RateLimitConfig configures the Rate Governor's backoff schedule
// (spec §4.1).
type RateLimitConfig struct {
	MaxRetries    int    `toml:"max_retries"`
	BaseDelayMs   int    `toml:"base_delay_ms"`
	Multiplier    float64 `toml:"multiplier"`
	MaxDelayMs    int    `toml:"max_delay_ms"`
}

// Config is bookmarkctl's full configuration.
type Config struct {
	OutputDir       string          `toml:"output_dir"`
	StateFilePath   string          `toml:"state_file"`
	ErrorLogPath    string          `toml:"error_log"`
	ExporterVersion string          `toml:"exporter_version"`
	AnalyzerConcurrency int         `toml:"analyzer_concurrency"`
	RateLimit       RateLimitConfig `toml:"rate_limit"`
	LM              LMConfig        `toml:"lm"`
	Scorer          ScorerConfig    `toml:"scorer"`
	RemoteLog       RemoteLogConfig `toml:"remote_log"`
	Scripts         []ScriptConfig  `toml:"scripts"`

	// APIToken authenticates against the remote bookmarks API. Never
	// persisted back to a config file; sourced from environment only.
	APIToken string `toml:"-"`
}

// DefaultConfig gives every field a sane, explicit value so a zero-arg
// run is reproducible.
func DefaultConfig() Config {
	return Config{
		OutputDir:           "./export",
		StateFilePath:       "./.bookmarkctl-state.json",
		ErrorLogPath:        "./bookmarkctl-errors.jsonl",
		ExporterVersion:     "bookmarkctl/1.0",
		AnalyzerConcurrency: 8,
		RateLimit: RateLimitConfig{
			MaxRetries:  5,
			BaseDelayMs: 250,
			Multiplier:  2.0,
			MaxDelayMs:  30000,
		},
		Scorer: ScorerConfig{
			Method:           "heuristic",
			HybridLMWeight:   0.5,
			EngagementWeight: 0.4,
			RecencyWeight:    0.3,
			QualityWeight:    0.3,
		},
		RemoteLog: RemoteLogConfig{
			BatchSize:   500,
			BatchWait:   "5s",
			RetryMax:    5,
			UseGzip:     true,
			Environment: "development",
		},
	}
}

// LoadFromTOML parses data over DefaultConfig, decoding onto
// already-defaulted fields so an absent TOML key keeps its default.
func LoadFromTOML(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromEnv overlays recognized BOOKMARKCTL_* environment variables.
func LoadFromEnv(cfg Config) Config {
	if v := os.Getenv("BOOKMARKCTL_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("BOOKMARKCTL_STATE_FILE"); v != "" {
		cfg.StateFilePath = v
	}
	if v := os.Getenv("BOOKMARKCTL_ERROR_LOG"); v != "" {
		cfg.ErrorLogPath = v
	}
	if v := os.Getenv("BOOKMARKCTL_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AnalyzerConcurrency = n
		}
	}
	if v := os.Getenv("BOOKMARKCTL_BEDROCK_REGION"); v != "" {
		cfg.LM.Region = v
	}
	if v := os.Getenv("BOOKMARKCTL_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := os.Getenv("BOOKMARKCTL_REMOTE_LOG_URL"); v != "" {
		cfg.RemoteLog.URL = v
		cfg.RemoteLog.Enabled = true
	}
	return cfg
}

// Load auto-discovers configPath when empty, reads it if present, then
// overlays the environment, applying the three-tier precedence described above.
func Load(configPath string) (Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			candidate := home + "/.config/bookmarkctl/config.toml"
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
			}
		}
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err == nil {
			cfg, err = LoadFromTOML(data)
			if err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", configPath, err)
			}
		}
	}

	return LoadFromEnv(cfg), nil
}
