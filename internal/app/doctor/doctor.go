package doctor

import (
	"context"
	"fmt"

	"github.com/slok/scriptrun/internal/log"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/storage"
)

// InterpreterChecker checks the script interpreter is available.
type InterpreterChecker interface {
	Check(ctx context.Context) (string, error)
}

// ServiceConfig is the configuration for the doctor service.
type ServiceConfig struct {
	Interpreter InterpreterChecker
	Repository  storage.ResultRepository
	Logger      log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Interpreter == nil {
		return fmt.Errorf("interpreter checker is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Doctor"})

	return nil
}

// Service runs the preflight checks of the engine dependencies.
type Service struct {
	interpreter InterpreterChecker
	repo        storage.ResultRepository
	logger      log.Logger
}

// NewService creates a new doctor service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		interpreter: cfg.Interpreter,
		repo:        cfg.Repository,
		logger:      cfg.Logger,
	}, nil
}

// Response contains the check results.
type Response struct {
	Checks []model.CheckResult
}

// Failed returns true when any check ended with error.
func (r Response) Failed() bool {
	_, _, errs := model.CountChecks(r.Checks)
	return errs > 0
}

// Run runs all the checks, a failing check doesn't stop the next ones.
func (s *Service) Run(ctx context.Context) Response {
	checks := []model.CheckResult{
		s.checkInterpreter(ctx),
		s.checkResults(ctx),
	}

	ok, warnings, errs := model.CountChecks(checks)
	s.logger.Debugf("checks finished: %d ok, %d warnings, %d errors", ok, warnings, errs)

	return Response{Checks: checks}
}

func (s *Service) checkInterpreter(ctx context.Context) model.CheckResult {
	path, err := s.interpreter.Check(ctx)
	if err != nil {
		return model.CheckResult{ID: "interpreter", Status: model.CheckStatusError, Message: err.Error()}
	}
	return model.CheckResult{ID: "interpreter", Status: model.CheckStatusOK, Message: fmt.Sprintf("found at %s", path)}
}

func (s *Service) checkResults(ctx context.Context) model.CheckResult {
	res, err := s.repo.ListResults(ctx, storage.ListResultsOpts{Limit: 1})
	if err != nil {
		return model.CheckResult{ID: "results_storage", Status: model.CheckStatusError, Message: fmt.Sprintf("could not read executions: %s", err)}
	}
	if len(res) == 0 {
		return model.CheckResult{ID: "results_storage", Status: model.CheckStatusWarning, Message: "reachable, no executions stored yet"}
	}
	return model.CheckResult{ID: "results_storage", Status: model.CheckStatusOK, Message: "reachable"}
}
