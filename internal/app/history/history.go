package history

import (
	"context"
	"fmt"

	"github.com/slok/scriptrun/internal/log"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/storage"
)

// ServiceConfig is the configuration for the history service.
type ServiceConfig struct {
	Repository storage.ResultRepository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.History"})

	return nil
}

// Service lists the execution history with optional filtering.
type Service struct {
	repo   storage.ResultRepository
	logger log.Logger
}

// NewService creates a new history service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the history request parameters.
type Request struct {
	// StatusFilter is an optional filter to only show executions with this status.
	StatusFilter *model.ExecutionStatus
	// Limit is the maximum number of executions, 0 means all.
	Limit int
}

// Run lists the executions, most recent first.
func (s *Service) Run(ctx context.Context, req Request) ([]model.ExecutionResult, error) {
	if req.Limit < 0 {
		return nil, fmt.Errorf("limit can't be negative: %w", model.ErrNotValid)
	}

	opts := storage.ListResultsOpts{Limit: req.Limit}
	if req.StatusFilter != nil {
		opts.Status = *req.StatusFilter
	}

	s.logger.Debugf("listing executions with filter: %v", opts)

	results, err := s.repo.ListResults(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("could not list executions: %w", err)
	}

	s.logger.Debugf("found %d executions", len(results))
	return results, nil
}
