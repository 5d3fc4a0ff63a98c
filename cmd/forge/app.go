package main

import (
	"context"
	"crypto/rand"
	"log/slog"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hyperion-agent/contractforge/internal/artifactstore"
	"github.com/hyperion-agent/contractforge/internal/audit"
	"github.com/hyperion-agent/contractforge/internal/audit/llmrunner"
	"github.com/hyperion-agent/contractforge/internal/audit/pattern"
	"github.com/hyperion-agent/contractforge/internal/audit/symbolic"
	"github.com/hyperion-agent/contractforge/internal/config"
	"github.com/hyperion-agent/contractforge/internal/deploy"
	"github.com/hyperion-agent/contractforge/internal/history"
	"github.com/hyperion-agent/contractforge/internal/llm"
	"github.com/hyperion-agent/contractforge/internal/model"
	"github.com/hyperion-agent/contractforge/internal/source"
	"github.com/hyperion-agent/contractforge/internal/template"
	"github.com/hyperion-agent/contractforge/internal/verify"
)

// newLogger builds the process-wide structured logger. JSON to stdout,
// level raised to Debug under FORGE_DEBUG=true.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("FORGE_DEBUG") == "true" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig wraps config.Load for command RunE functions, which return the
// error directly so cliutil.PrintError renders its ConfigInvalid/ConfigMissing
// banner.
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// newRunID mints a run identifier seeded from a fresh monotonic ulid source.
// A new entropy reader per call keeps concurrent invocations independent.
func newRunID() model.RunID {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return model.NewRunID(time.Now(), entropy)
}

// buildRunners assembles the closed set of audit runners spec.md §4.2 names:
// pattern always runs; symbolic joins when an analyzer binary is configured,
// and the LLM runner joins when an API key is configured.
func buildRunners(cfg *config.Config, logger *slog.Logger) ([]audit.Runner, error) {
	var runners []audit.Runner

	patternRunner, err := pattern.NewRunner("")
	if err != nil {
		return nil, err
	}
	runners = append(runners, patternRunner)

	if cfg.Symbolic.Binary != "" {
		runners = append(runners, symbolic.NewRunner(cfg.Symbolic.Binary, cfg.Symbolic.Args, cfg.Symbolic.Timeout, logger))
	}

	if key := os.Getenv(cfg.LLM.ProviderKeyEnv); key != "" {
		runners = append(runners, llmrunner.NewRunner(cfg.LLM.BaseURL, key, cfg.LLM.Model, nil, logger))
	}

	return runners, nil
}

// buildGenerator wires the Generating-stage completer against the same
// provider endpoint/key the audit LLM runner uses.
func buildGenerator(cfg *config.Config) *llm.Generator {
	completer := &llm.HTTPCompleter{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  os.Getenv(cfg.LLM.ProviderKeyEnv),
		Model:   cfg.LLM.Model,
	}
	return llm.NewGenerator(completer)
}

func buildDeployer(cfg *config.Config, logger *slog.Logger) *deploy.Deployer {
	return deploy.NewDeployer(cfg.Deployer.Binary, cfg.Deployer.Timeout, cfg.Deployer.ShutdownGrace, logger)
}

func buildVerifier(cfg *config.Config) *verify.Verifier {
	apiKey := os.Getenv(cfg.Explorer.APIKeyEnv)
	return verify.NewVerifier(cfg.Explorer.BaseURL, apiKey, nil, 5*time.Minute)
}

func buildArtifactStore(cfg *config.Config) *artifactstore.Store {
	return artifactstore.NewStore(cfg.Artifacts.RootDir)
}

// buildSourceFetcher wires the explorer -> Sourcify -> bytecode fallback
// chain `audit contract --address` resolves a deployed address through.
func buildSourceFetcher(cfg *config.Config) *source.Fetcher {
	apiKey := os.Getenv(cfg.Explorer.APIKeyEnv)
	explorer := source.NewExplorerClient(cfg.Explorer.BaseURL, apiKey, nil)
	var sourcify *source.ExplorerClient
	if cfg.Explorer.SourcifyURL != "" {
		sourcify = source.NewExplorerClient(cfg.Explorer.SourcifyURL, "", nil)
	}
	return source.NewFetcher(explorer, sourcify)
}

// buildTemplateFetcher wires the optional Redis secondary cache in front of
// the content-addressed gateway (spec.md §4.7).
func buildTemplateFetcher(cfg *config.Config) *template.Fetcher {
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	}
	return template.NewFetcher(cfg.Template.CacheDir, cfg.Template.GatewayURL, rdb, nil)
}

// buildHistory opens the optional durable run-history store and runs its
// migrations. A disabled history config returns a nil *history.Store, which
// every caller downstream treats as a no-op.
func buildHistory(ctx context.Context, cfg *config.Config) (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	store, err := history.NewStore(ctx, cfg.History.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(cfg.History.DSN); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
