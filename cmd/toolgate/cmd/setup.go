package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tool-Gate/toolgate/internal/adapter/outbound/ruleset"
	"github.com/Tool-Gate/toolgate/internal/adapter/outbound/state"
	"github.com/Tool-Gate/toolgate/internal/config"
	"github.com/Tool-Gate/toolgate/internal/metrics"
	"github.com/Tool-Gate/toolgate/internal/service"
)

// app bundles the wired engine and its collaborators for one CLI invocation.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	engine    *service.Engine
	loaded    *ruleset.Result
	integrity *service.IntegrityManager
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
}

// newLogger builds the slog logger the CLI components share.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// loadConfigOnly loads and validates the config without building an engine.
func loadConfigOnly() (*config.Config, error) {
	return config.LoadConfig()
}

// buildApp loads config and policies and constructs the decision engine.
// Directories failing an enforced integrity check are excluded from the load.
func buildApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.LogLevel)

	mode := cfg.Mode
	if modeFlag != "" {
		mode = modeFlag
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	var integrity *service.IntegrityManager
	if cfg.Integrity.BaselinePath != "" {
		store := state.NewBaselineStore(cfg.Integrity.BaselinePath, logger)
		integrity = service.NewIntegrityManager(store, logger).WithIntegrityMetrics(m)
	}

	dirs := cfg.Policy.Dirs()
	trusted := dirs
	if integrity != nil {
		trusted = trusted[:0:0]
		for _, dir := range dirs {
			res, err := integrity.Check("policy", dir, dir)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					trusted = append(trusted, dir)
					continue
				}
				return nil, fmt.Errorf("integrity check for %s: %w", dir, err)
			}
			if res.Status == service.IntegrityMismatch {
				if cfg.Integrity.Enforce {
					logger.Warn("policy directory failed integrity check, excluded from load", "dir", dir)
					continue
				}
				logger.Warn("policy directory changed since last accepted", "dir", dir)
			}
			trusted = append(trusted, dir)
		}
	}

	loader := ruleset.NewLoader(logger).WithMetrics(m)
	loaded, err := loader.Load(trusted, cfg.Policy.TierOf)
	if err != nil {
		return nil, err
	}

	rules := loaded.Rules
	if len(dirs) == 0 {
		rules = service.DefaultRules()
	}

	engine := service.NewEngine(rules, mode, logger,
		service.WithCheckers(loaded.Checkers),
		service.WithMetrics(m),
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		engine:    engine,
		loaded:    loaded,
		integrity: integrity,
		registry:  registry,
		metrics:   m,
	}, nil
}
