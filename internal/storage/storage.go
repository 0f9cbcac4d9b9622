package storage

//go:generate mockery --case underscore --output storagemock --outpkg storagemock --name ResultRepository

import (
	"context"

	"github.com/slok/scriptrun/internal/model"
)

// ListResultsOpts are the options to filter and limit listed results.
type ListResultsOpts struct {
	// Status filters by status when not empty.
	Status model.ExecutionStatus
	// Limit is the maximum number of results, 0 means no limit.
	Limit int
}

// ResultRepository is the interface for execution result persistence.
// Results are immutable once saved.
type ResultRepository interface {
	SaveResult(ctx context.Context, r model.ExecutionResult) error
	GetResult(ctx context.Context, id string) (*model.ExecutionResult, error)
	// ListResults returns the results, most recent first.
	ListResults(ctx context.Context, opts ListResultsOpts) ([]model.ExecutionResult, error)
}

// ScriptRepository is the interface to get script definitions.
type ScriptRepository interface {
	GetScript(ctx context.Context, path string) (model.ScriptSource, error)
}

// ConfigRepository is the interface to get the engine settings.
type ConfigRepository interface {
	GetConfig(ctx context.Context, path string) (model.EngineSettings, error)
}
