package lib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/slok/scriptrun/internal/app/doctor"
	"github.com/slok/scriptrun/internal/conventions"
	"github.com/slok/scriptrun/internal/engine"
	"github.com/slok/scriptrun/internal/log"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/policy"
	"github.com/slok/scriptrun/internal/process"
	"github.com/slok/scriptrun/internal/process/fake"
	"github.com/slok/scriptrun/internal/storage/io"
	"github.com/slok/scriptrun/internal/storage/sqlite"
)

// PolicyConfig customizes the content policy of restricted executions.
// Empty fields use the built-in defaults.
type PolicyConfig struct {
	RestrictedCommands      []string
	RestrictedModules       []string
	DangerousPatterns       []string
	EncodedPayloadMinLength int
	ObfuscationChar         rune
	ObfuscationThreshold    int
}

// FakeConfig is the simulated behavior of every execution with [EngineFake].
type FakeConfig struct {
	Stdout   []string
	Stderr   []string
	ExitCode int
	// Duration is how long each simulated execution runs.
	Duration time.Duration
}

// Config configures the SDK client.
//
// All fields are optional. An empty Config{} uses ~/.scriptrun/scriptrun.db
// for the results and runs scripts with PowerShell.
type Config struct {
	// DBPath is the SQLite database path of the execution results.
	// Default: ~/.scriptrun/scriptrun.db.
	DBPath string

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger

	// Engine selects the process runner. Default: [EngineProcess].
	Engine EngineType
	// Fake configures the simulated executions of [EngineFake].
	Fake FakeConfig

	// Interpreter is the argv of the interpreter, scripts are written to its stdin.
	// Default: pwsh reading from stdin.
	Interpreter []string
	// EnvPassthrough are the environment variables scripts inherit.
	EnvPassthrough []string
	KillGrace      time.Duration

	MaxConcurrent      int
	MaxTranscriptBytes int
	MaxTimeout         time.Duration
	DefaultTimeout     time.Duration

	Policy PolicyConfig
	// RoleTrust maps caller roles to their default trust level, unknown roles are restricted.
	RoleTrust map[string]TrustLevel
}

func (c *Config) defaults() error {
	if c.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not get user home dir: %w", err)
		}
		c.DBPath = conventions.DBPath(filepath.Join(home, conventions.DefaultDataDir))
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	if c.Engine == "" {
		c.Engine = EngineProcess
	}

	return nil
}

func (c Config) settings() model.EngineSettings {
	s := model.EngineSettings{
		MaxConcurrent:      c.MaxConcurrent,
		MaxTranscriptBytes: c.MaxTranscriptBytes,
		MaxTimeout:         c.MaxTimeout,
		DefaultTimeout:     c.DefaultTimeout,
		KillGrace:          c.KillGrace,
		Interpreter:        c.Interpreter,
		EnvPassthrough:     c.EnvPassthrough,
		Policy: model.PolicySettings{
			RestrictedCommands:      c.Policy.RestrictedCommands,
			RestrictedModules:       c.Policy.RestrictedModules,
			DangerousPatterns:       c.Policy.DangerousPatterns,
			EncodedPayloadMinLength: c.Policy.EncodedPayloadMinLength,
			ObfuscationChar:         c.Policy.ObfuscationChar,
			ObfuscationThreshold:    c.Policy.ObfuscationThreshold,
		},
		RoleTrust: make(map[string]model.TrustLevel, len(c.RoleTrust)),
	}
	for role, t := range c.RoleTrust {
		s.RoleTrust[strings.ToLower(role)] = model.TrustLevel(t)
	}
	return s
}

type interpreterChecker interface {
	Check(ctx context.Context) (string, error)
}

// Client is the main SDK entry point for running scripts programmatically.
//
// Create a Client with [New] and release its resources with [Client.Close].
// A Client is safe for concurrent use.
type Client struct {
	engine    *engine.Engine
	repo      *sqlite.Repository
	validator *policy.Validator
	checker   interpreterChecker
	settings  model.EngineSettings
	logger    log.Logger
}

// New creates a new SDK client backed by a SQLite database.
//
// The caller must call [Client.Close] when done, it cancels the executions in
// flight and releases the database connection:
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	settings := cfg.settings()

	runner, checker, err := newRunner(cfg, settings)
	if err != nil {
		return nil, mapError(err)
	}

	validator, err := policy.NewValidatorFromSettings(settings.Policy)
	if err != nil {
		return nil, mapError(fmt.Errorf("could not create policy validator: %w", err))
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	eng, err := engine.NewEngine(engine.Config{
		Runner:             runner,
		Validator:          validator,
		Results:            repo,
		MaxConcurrent:      settings.MaxConcurrent,
		MaxTranscriptBytes: settings.MaxTranscriptBytes,
		MaxTimeout:         settings.MaxTimeout,
		DefaultTimeout:     settings.DefaultTimeout,
		Logger:             cfg.Logger,
	})
	if err != nil {
		_ = repo.Close()
		return nil, mapError(fmt.Errorf("could not create engine: %w", err))
	}

	return &Client{
		engine:    eng,
		repo:      repo,
		validator: validator,
		checker:   checker,
		settings:  settings,
		logger:    cfg.Logger,
	}, nil
}

func newRunner(cfg Config, settings model.EngineSettings) (engine.Runner, interpreterChecker, error) {
	switch cfg.Engine {
	case EngineProcess:
		r, err := process.NewRunner(process.RunnerConfig{
			Interpreter:    settings.Interpreter,
			EnvPassthrough: settings.EnvPassthrough,
			KillGrace:      settings.KillGrace,
			Logger:         cfg.Logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create process runner: %w", err)
		}
		return r, r, nil
	case EngineFake:
		r, err := fake.NewRunner(fake.RunnerConfig{
			Default: fake.Behavior{
				Stdout:   cfg.Fake.Stdout,
				Stderr:   cfg.Fake.Stderr,
				ExitCode: cfg.Fake.ExitCode,
				Duration: cfg.Fake.Duration,
			},
			Logger: cfg.Logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create fake runner: %w", err)
		}
		return r, fakeChecker{}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported engine type: %s: %w", cfg.Engine, model.ErrNotValid)
	}
}

type fakeChecker struct{}

func (fakeChecker) Check(context.Context) (string, error) { return "fake", nil }

// Close cancels the executions in flight, waits for them and releases the
// database connection. After Close returns, the client must not be used.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := c.engine.Shutdown(ctx); err != nil {
		c.logger.Errorf("Could not shutdown engine: %s", err)
	}
	return c.repo.Close()
}

// LoadScript loads a script definition YAML file.
func (c *Client) LoadScript(ctx context.Context, path string) (*Script, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("could not resolve script path: %w", err)
	}

	s, err := io.NewScriptYAMLRepository(os.DirFS("/")).GetScript(ctx, filepath.ToSlash(abs)[1:])
	if err != nil {
		return nil, mapError(err)
	}

	script := fromInternalScript(s)
	return &script, nil
}

// Doctor runs the preflight checks of the interpreter and the results storage.
func (c *Client) Doctor(ctx context.Context) ([]CheckResult, error) {
	svc, err := doctor.NewService(doctor.ServiceConfig{
		Interpreter: c.checker,
		Repository:  c.repo,
		Logger:      c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	return fromInternalCheckResults(svc.Run(ctx).Checks), nil
}
