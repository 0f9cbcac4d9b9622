package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/slok/scriptrun/internal/log"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/output"
	"github.com/slok/scriptrun/internal/storage"
)

// Engine is the execution engine used by the service.
type Engine interface {
	Submit(ctx context.Context, req model.ExecutionRequest) (string, error)
	Subscribe(ctx context.Context, id string) (*output.Subscription, error)
	Cancel(ctx context.Context, id string) error
	Wait(ctx context.Context, id string) (*model.ExecutionResult, error)
}

// ServiceConfig is the configuration for the run service.
type ServiceConfig struct {
	Engine  Engine
	Scripts storage.ScriptRepository
	// Settings are used to resolve the trust level of the caller roles.
	Settings model.EngineSettings
	Logger   log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if c.Scripts == nil {
		return fmt.Errorf("scripts repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Run"})

	return nil
}

// Service runs stored scripts streaming their output.
type Service struct {
	engine   Engine
	scripts  storage.ScriptRepository
	settings model.EngineSettings
	logger   log.Logger
}

// NewService creates a new run service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		engine:   cfg.Engine,
		scripts:  cfg.Scripts,
		settings: cfg.Settings,
		logger:   cfg.Logger,
	}, nil
}

// Request contains the parameters for running a script.
type Request struct {
	ScriptPath string
	Values     map[string]any
	// Timeout of the execution, 0 means the engine default.
	Timeout time.Duration
	// Role is the caller role used to resolve the trust level.
	Role string
	// Trust overrides the role trust level when set.
	Trust model.TrustLevel
	// Stdout and Stderr receive the live output lines (optional). Engine lines go to Stderr.
	Stdout io.Writer
	Stderr io.Writer
}

// Run runs the script and blocks until it finishes. Cancelling the context
// cancels the execution and waits for its final result.
//
// Scripts rejected by the policy are not an error, the rejected result is returned.
func (s *Service) Run(ctx context.Context, req Request) (*model.ExecutionResult, error) {
	script, err := s.scripts.GetScript(ctx, req.ScriptPath)
	if err != nil {
		return nil, fmt.Errorf("could not load script: %w", err)
	}

	trust := req.Trust
	if trust == "" {
		trust = s.settings.TrustForRole(req.Role)
	}

	id, err := s.engine.Submit(ctx, model.ExecutionRequest{
		Script:  script,
		Values:  req.Values,
		Timeout: req.Timeout,
		Trust:   trust,
	})
	if err != nil {
		if errors.Is(err, model.ErrValidationRejected) && id != "" {
			res, werr := s.engine.Wait(context.Background(), id)
			if werr != nil {
				return nil, fmt.Errorf("could not get rejected execution: %w", werr)
			}
			return res, nil
		}
		return nil, fmt.Errorf("could not submit execution: %w", err)
	}

	logger := s.logger.WithValues(log.Kv{"execution-id": id})
	logger.Debugf("execution submitted with %s trust", trust)

	sub, err := s.engine.Subscribe(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not subscribe to execution: %w", err)
	}
	defer sub.Close()

	final := s.stream(ctx, id, sub, req.Stdout, req.Stderr, logger)
	if final != nil {
		return final, nil
	}

	res, err := s.engine.Wait(context.Background(), id)
	if err != nil {
		return nil, fmt.Errorf("could not wait for execution: %w", err)
	}
	return res, nil
}

func (s *Service) stream(ctx context.Context, id string, sub *output.Subscription, stdout, stderr io.Writer, logger log.Logger) *model.ExecutionResult {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	var (
		final   *model.ExecutionResult
		dropped int
		done    = ctx.Done()
	)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return final
			}
			if ev.Dropped > dropped {
				logger.Warningf("Output consumer too slow, %d lines skipped", ev.Dropped-dropped)
				dropped = ev.Dropped
			}
			if ev.Final != nil {
				final = ev.Final
				continue
			}
			if ev.Line == nil {
				continue
			}

			w := stdout
			if ev.Line.Stream != model.StreamStdout {
				w = stderr
			}
			fmt.Fprintln(w, ev.Line.Text)

		case <-done:
			logger.Infof("Cancelling execution")
			if err := s.engine.Cancel(context.Background(), id); err != nil {
				logger.Errorf("Could not cancel execution: %s", err)
			}
			done = nil
		}
	}
}
