package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/slok/scriptrun/internal/engine"
	"github.com/slok/scriptrun/internal/log"
	"github.com/slok/scriptrun/internal/metrics"
	metricsprometheus "github.com/slok/scriptrun/internal/metrics/prometheus"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/policy"
	"github.com/slok/scriptrun/internal/process"
	"github.com/slok/scriptrun/internal/storage"
	"github.com/slok/scriptrun/internal/storage/io"
	"github.com/slok/scriptrun/internal/storage/sqlite"
)

// rootFSPath returns the absolute path of p relative to the root filesystem.
func rootFSPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("could not resolve path %q: %w", p, err)
	}
	return filepath.ToSlash(abs)[1:], nil
}

func newScriptRepository() storage.ScriptRepository {
	return io.NewScriptYAMLRepository(os.DirFS("/"))
}

// loadSettings loads the engine settings, without config file the defaults are used.
func loadSettings(ctx context.Context, configPath string) (model.EngineSettings, error) {
	if configPath == "" {
		return model.EngineSettings{}, nil
	}

	p, err := rootFSPath(configPath)
	if err != nil {
		return model.EngineSettings{}, err
	}

	settings, err := io.NewConfigYAMLRepository(os.DirFS("/")).GetConfig(ctx, p)
	if err != nil {
		return model.EngineSettings{}, fmt.Errorf("could not load engine settings: %w", err)
	}

	return settings, nil
}

func newProcessRunner(settings model.EngineSettings, logger log.Logger) (*process.Runner, error) {
	runner, err := process.NewRunner(process.RunnerConfig{
		Interpreter:    settings.Interpreter,
		EnvPassthrough: settings.EnvPassthrough,
		KillGrace:      settings.KillGrace,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create process runner: %w", err)
	}
	return runner, nil
}

func newResultRepository(ctx context.Context, dbPath string, logger log.Logger) (*sqlite.Repository, error) {
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: dbPath,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}
	return repo, nil
}

type engineDeps struct {
	settings model.EngineSettings
	results  storage.ResultRepository
	registry *prometheus.Registry
	logger   log.Logger
}

// newEngine wires the execution engine from the settings. Metrics are only
// recorded when a registry is provided.
func newEngine(deps engineDeps) (*engine.Engine, error) {
	runner, err := newProcessRunner(deps.settings, deps.logger)
	if err != nil {
		return nil, err
	}

	validator, err := policy.NewValidatorFromSettings(deps.settings.Policy)
	if err != nil {
		return nil, fmt.Errorf("could not create policy validator: %w", err)
	}

	var recorder metrics.Recorder = metrics.Noop
	if deps.registry != nil {
		recorder, err = metricsprometheus.NewRecorder(deps.registry)
		if err != nil {
			return nil, fmt.Errorf("could not create metrics recorder: %w", err)
		}
	}

	eng, err := engine.NewEngine(engine.Config{
		Runner:             runner,
		Validator:          validator,
		Results:            deps.results,
		Metrics:            recorder,
		MaxConcurrent:      deps.settings.MaxConcurrent,
		MaxTranscriptBytes: deps.settings.MaxTranscriptBytes,
		MaxTimeout:         deps.settings.MaxTimeout,
		DefaultTimeout:     deps.settings.DefaultTimeout,
		Logger:             deps.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create engine: %w", err)
	}

	return eng, nil
}
