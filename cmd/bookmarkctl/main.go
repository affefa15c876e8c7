// Command bookmarkctl exports a user's bookmarks to a flat JSON artifact
// and runs the configured analyzers over an export to produce an
// enriched analysis artifact. Uses a flags/config dispatch shape
// (CLIFlags/ParseCLIFlags/MergeConfig) restructured into subcommands
// since this is a one-shot pipeline tool, not a background
// service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bookmarkctl/bookmarkctl/internal/analyzer"
	"github.com/bookmarkctl/bookmarkctl/internal/analysisengine"
	"github.com/bookmarkctl/bookmarkctl/internal/config"
	"github.com/bookmarkctl/bookmarkctl/internal/exportengine"
	"github.com/bookmarkctl/bookmarkctl/internal/exportstate"
	"github.com/bookmarkctl/bookmarkctl/internal/gateway"
	"github.com/bookmarkctl/bookmarkctl/internal/lm"
	"github.com/bookmarkctl/bookmarkctl/internal/lmcategorizer"
	"github.com/bookmarkctl/bookmarkctl/internal/logging"
	"github.com/bookmarkctl/bookmarkctl/internal/model"
	"github.com/bookmarkctl/bookmarkctl/internal/progress"
	"github.com/bookmarkctl/bookmarkctl/internal/ratelimit"
	"github.com/bookmarkctl/bookmarkctl/internal/report"
	"github.com/bookmarkctl/bookmarkctl/internal/schema"
	"github.com/bookmarkctl/bookmarkctl/internal/scorer"
	"github.com/bookmarkctl/bookmarkctl/internal/scriptrunner"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: bookmarkctl <export|analyze|run> [flags]")
	fmt.Fprintln(os.Stderr, "  export   fetch bookmarks and write an export artifact")
	fmt.Fprintln(os.Stderr, "  analyze  run analyzers over an existing export artifact")
	fmt.Fprintln(os.Stderr, "  run      export then analyze in one invocation")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "export":
		err = runExport(ctx, os.Args[2:])
	case "analyze":
		err = runAnalyze(ctx, os.Args[2:])
	case "run":
		err = runFull(ctx, os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "bookmarkctl: %v\n", err)
		os.Exit(1)
	}
}

// sharedFlags are the flags every subcommand accepts.
type sharedFlags struct {
	configPath  string
	outputDir   string
	fixturePath string
	resume      bool
}

func bindSharedFlags(fs *flag.FlagSet, f *sharedFlags) {
	fs.StringVar(&f.configPath, "config", "", "path to a bookmarkctl.toml config file")
	fs.StringVar(&f.outputDir, "output-dir", "", "directory for written artifacts (overrides config)")
	fs.StringVar(&f.fixturePath, "fixture", "", "path to a JSON gateway fixture (stand-in for a live remote; production Gateway wiring is external)")
	fs.BoolVar(&f.resume, "resume", false, "resume from a previously interrupted export")
}

func loadConfig(f sharedFlags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if f.outputDir != "" {
		cfg.OutputDir = f.outputDir
	}
	return cfg, nil
}

func newLogSink(cfg config.Config) (logging.Sink, error) {
	file, err := logging.NewFileLogger(cfg.ErrorLogPath)
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}
	if !cfg.RemoteLog.Enabled {
		return file, nil
	}
	remote, err := logging.NewRemoteSink(logging.RemoteConfig{
		Enabled:     cfg.RemoteLog.Enabled,
		URL:         cfg.RemoteLog.URL,
		AuthToken:   cfg.RemoteLog.AuthToken,
		BatchSize:   cfg.RemoteLog.BatchSize,
		RetryMax:    cfg.RemoteLog.RetryMax,
		UseGzip:     cfg.RemoteLog.UseGzip,
		Environment: cfg.RemoteLog.Environment,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "remote log disabled: %v\n", err)
		return file, nil
	}
	return logging.NewMultiSink(file, remote), nil
}

// loadGatewayFixture builds a hermetic gateway.Fake from a JSON fixture
// file shaped like {"identity": {...}, "pages": [...]}. A production
// Gateway implementation against the real remote API is outside this
// repository's scope (spec §1); the fixture keeps export/run usable
// standalone and is what the test suite's fakes are themselves modeled
// on.
func loadGatewayFixture(path string) (*gateway.Fake, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gateway fixture: %w", err)
	}
	var fx gateway.Fake
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse gateway fixture: %w", err)
	}
	return &fx, nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var shared sharedFlags
	bindSharedFlags(fs, &shared)
	credentials := fs.String("credentials", "", "credentials string passed to Gateway.Authenticate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if shared.fixturePath == "" {
		return fmt.Errorf("-fixture is required: no production Gateway is wired into this binary")
	}

	cfg, err := loadConfig(shared)
	if err != nil {
		return err
	}
	log, err := newLogSink(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	gw, err := loadGatewayFixture(shared.fixturePath)
	if err != nil {
		return err
	}

	path, err := doExport(ctx, cfg, shared, gw, log, *credentials)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func doExport(ctx context.Context, cfg config.Config, shared sharedFlags, gw gateway.Gateway, log logging.Sink, credentials string) (string, error) {
	validator, err := schema.New()
	if err != nil {
		return "", fmt.Errorf("compile schemas: %w", err)
	}
	state := exportstate.New(cfg.StateFilePath, log)
	governor := ratelimit.New(ratelimit.Config{
		MaxRetries: cfg.RateLimit.MaxRetries,
		BaseDelay:  msToDuration(cfg.RateLimit.BaseDelayMs),
		Multiplier: cfg.RateLimit.Multiplier,
		MaxDelay:   msToDuration(cfg.RateLimit.MaxDelayMs),
	}, nil)
	sink := progress.NewTerminalSink(os.Stderr)

	engine := exportengine.New(gw, governor, state, validator, log, sink, exportengine.Config{
		OutputDir:       cfg.OutputDir,
		ExporterVersion: cfg.ExporterVersion,
		Resume:          shared.resume,
	})
	return engine.Run(ctx, credentials)
}

func runAnalyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	var shared sharedFlags
	bindSharedFlags(fs, &shared)
	inputPath := fs.String("input", "", "path to an export artifact to analyze")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inputPath == "" {
		return fmt.Errorf("-input is required")
	}

	cfg, err := loadConfig(shared)
	if err != nil {
		return err
	}
	log, err := newLogSink(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	data, err := os.ReadFile(*inputPath)
	if err != nil {
		return fmt.Errorf("read export artifact: %w", err)
	}
	var export model.ExportArtifact
	if err := json.Unmarshal(data, &export); err != nil {
		return fmt.Errorf("parse export artifact: %w", err)
	}

	path, artifact, err := doAnalyze(ctx, cfg, log, export)
	if err != nil {
		return err
	}
	fmt.Println(path)
	fmt.Print(report.Summarize(artifact).String())
	return nil
}

func doAnalyze(ctx context.Context, cfg config.Config, log logging.Sink, export model.ExportArtifact) (string, model.AnalysisArtifact, error) {
	validator, err := schema.New()
	if err != nil {
		return "", model.AnalysisArtifact{}, fmt.Errorf("compile schemas: %w", err)
	}
	sink := progress.NewTerminalSink(os.Stderr)

	registry := analyzer.NewRegistry()
	capability, err := buildLMCapability(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "language-model capability unavailable, categorization and LM-based scoring are disabled for this run: %v\n", err)
	}
	log.Log(logging.Event{
		Level: logging.LevelInfo,
		Op:    "bookmarkctl.lmcapability",
		Context: map[string]interface{}{
			"region":   cfg.LM.Region,
			"apiToken": logging.ObfuscateSecret(cfg.APIToken),
		},
	})

	registry.RegisterRecord(lmcategorizer.New(lmcategorizer.Config{ModelID: cfg.LM.ModelID}, capability))
	registry.RegisterRecord(scorer.New(scorer.Config{
		Method:           scorer.Method(cfg.Scorer.Method),
		EngagementWeight: cfg.Scorer.EngagementWeight,
		RecencyWeight:    cfg.Scorer.RecencyWeight,
		QualityWeight:    cfg.Scorer.QualityWeight,
		HybridLMWeight:   cfg.Scorer.HybridLMWeight,
		ModelID:          cfg.LM.ModelID,
	}, capability))
	for _, scriptCfg := range cfg.Scripts {
		registry.RegisterJob(scriptrunner.New(scriptrunner.Config{
			Name:      scriptCfg.Name,
			Command:   scriptCfg.Command,
			Args:      scriptCfg.Args,
			WorkDir:   scriptCfg.WorkDir,
			Timeout:   scriptCfg.Timeout(),
			MaxOutput: scriptCfg.MaxOutput,
		}, validator))
	}

	engine := analysisengine.New(registry, validator, log, sink, analysisengine.Config{
		OutputDir:     cfg.OutputDir,
		Concurrency:   int64(cfg.AnalyzerConcurrency),
		ScoringMethod: cfg.Scorer.Method,
	})

	path, err := engine.Run(ctx, export)
	if err != nil {
		return path, model.AnalysisArtifact{}, err
	}

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return path, model.AnalysisArtifact{}, nil
	}
	var artifact model.AnalysisArtifact
	_ = json.Unmarshal(data, &artifact)
	return path, artifact, nil
}

func buildLMCapability(ctx context.Context, cfg config.Config) (lm.Capability, error) {
	if cfg.LM.Region == "" {
		return nil, fmt.Errorf("no bedrock_region configured")
	}
	bedrock, err := lm.NewBedrock(ctx, cfg.LM.Region, cfg.AnalyzerConcurrency)
	if err != nil {
		return nil, err
	}
	return bedrock, nil
}

func runFull(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var shared sharedFlags
	bindSharedFlags(fs, &shared)
	credentials := fs.String("credentials", "", "credentials string passed to Gateway.Authenticate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if shared.fixturePath == "" {
		return fmt.Errorf("-fixture is required: no production Gateway is wired into this binary")
	}

	cfg, err := loadConfig(shared)
	if err != nil {
		return err
	}
	log, err := newLogSink(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	gw, err := loadGatewayFixture(shared.fixturePath)
	if err != nil {
		return err
	}

	exportPath, err := doExport(ctx, cfg, shared, gw, log, *credentials)
	if err != nil {
		return err
	}
	fmt.Println(exportPath)

	data, err := os.ReadFile(exportPath)
	if err != nil {
		return fmt.Errorf("read just-written export artifact: %w", err)
	}
	var export model.ExportArtifact
	if err := json.Unmarshal(data, &export); err != nil {
		return fmt.Errorf("parse just-written export artifact: %w", err)
	}

	analysisPath, artifact, err := doAnalyze(ctx, cfg, log, export)
	if err != nil {
		return err
	}
	fmt.Println(analysisPath)
	fmt.Print(report.Summarize(artifact).String())
	return nil
}

func msToDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
