package show

import (
	"context"
	"fmt"
	"strings"

	"github.com/slok/scriptrun/internal/log"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/storage"
)

// ServiceConfig is the configuration for the show service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Show"})

	return nil
}

// Service gets the complete result of an execution.
type Service struct {
	repo   storage.ResultRepository
	logger log.Logger
}

// NewService creates a new show service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the show request parameters.
type Request struct {
	ID string
}

// Run returns the execution result with its transcript.
func (s *Service) Run(ctx context.Context, req Request) (*model.ExecutionResult, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return nil, fmt.Errorf("execution id is required: %w", model.ErrNotValid)
	}

	res, err := s.repo.GetResult(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not get execution: %w", err)
	}

	s.logger.Debugf("execution %s has %d transcript lines", id, len(res.Transcript))
	return res, nil
}
