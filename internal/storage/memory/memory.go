package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/slok/scriptrun/internal/log"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.ResultRepository.
type Repository struct {
	results map[string]model.ExecutionResult
	mu      sync.RWMutex
	logger  log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		results: make(map[string]model.ExecutionResult),
		logger:  cfg.Logger,
	}, nil
}

// SaveResult stores an execution result.
func (r *Repository) SaveResult(ctx context.Context, res model.ExecutionResult) error {
	if res.ID == "" {
		return fmt.Errorf("result id is required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.results[res.ID]; ok {
		return fmt.Errorf("result %s: %w", res.ID, model.ErrAlreadyExists)
	}

	r.results[res.ID] = copyResult(res)
	r.logger.Debugf("Saved result in repository: %s", res.ID)

	return nil
}

// GetResult retrieves an execution result by ID.
func (r *Repository) GetResult(ctx context.Context, id string) (*model.ExecutionResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.results[id]
	if !ok {
		return nil, fmt.Errorf("result %s: %w", id, model.ErrNotFound)
	}

	c := copyResult(res)
	return &c, nil
}

// ListResults returns the stored results, most recent first.
func (r *Repository) ListResults(ctx context.Context, opts storage.ListResultsOpts) ([]model.ExecutionResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]model.ExecutionResult, 0, len(r.results))
	for _, res := range r.results {
		if opts.Status != "" && res.Status != opts.Status {
			continue
		}
		results = append(results, copyResult(res))
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].StartedAt.Equal(results[j].StartedAt) {
			return results[i].ID > results[j].ID
		}
		return results[i].StartedAt.After(results[j].StartedAt)
	})

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	return results, nil
}

func copyResult(r model.ExecutionResult) model.ExecutionResult {
	if r.ExitCode != nil {
		code := *r.ExitCode
		r.ExitCode = &code
	}
	r.Issues = append([]string(nil), r.Issues...)
	r.Transcript = append([]model.OutputLine(nil), r.Transcript...)
	return r
}
