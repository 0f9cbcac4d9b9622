package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scriptrun/internal/log"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/storage"
	"github.com/slok/scriptrun/internal/storage/sqlite"
)

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 123456789, time.UTC)

func resultFixture(id string, status model.ExecutionStatus, startedAt time.Time) model.ExecutionResult {
	code := 3
	return model.ExecutionResult{
		ID:           id,
		ScriptName:   "greet",
		Status:       status,
		ExitCode:     &code,
		Error:        "script exited with code 3",
		Truncated:    true,
		DroppedLines: 2,
		Transcript: []model.OutputLine{
			{Seq: 3, Stream: model.StreamStdout, Text: "Hello, Ada!", Time: startedAt.Add(time.Millisecond)},
			{Seq: 4, Stream: model.StreamStderr, Text: "oops", Time: startedAt.Add(2 * time.Millisecond)},
		},
		StartedAt:   startedAt,
		CompletedAt: startedAt.Add(time.Second),
		Duration:    time.Second,
	}
}

func newRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: log.Noop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepositorySaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	res := resultFixture("id-1", model.ExecutionStatusFailed, t0)
	require.NoError(t, repo.SaveResult(ctx, res))

	got, err := repo.GetResult(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, res, *got)
}

func TestRepositoryRejectedResult(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	res := model.ExecutionResult{
		ID:          "id-1",
		ScriptName:  "evil",
		Status:      model.ExecutionStatusRejected,
		Error:       "validation rejected",
		Issues:      []string{"restricted command detected: Invoke-Expression"},
		StartedAt:   t0,
		CompletedAt: t0,
	}
	require.NoError(t, repo.SaveResult(ctx, res))

	got, err := repo.GetResult(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, res, *got)
	assert.Nil(t, got.ExitCode)
	assert.Empty(t, got.Transcript)
}

func TestRepositoryConstraints(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.SaveResult(ctx, resultFixture("id-1", model.ExecutionStatusCompleted, t0)))

	err := repo.SaveResult(ctx, resultFixture("id-1", model.ExecutionStatusCompleted, t0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAlreadyExists))

	err = repo.SaveResult(ctx, resultFixture("", model.ExecutionStatusCompleted, t0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotValid))

	_, err = repo.GetResult(ctx, "id-x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestRepositoryListResults(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.SaveResult(ctx, resultFixture("id-1", model.ExecutionStatusCompleted, t0)))
	require.NoError(t, repo.SaveResult(ctx, resultFixture("id-2", model.ExecutionStatusFailed, t0.Add(time.Minute))))
	require.NoError(t, repo.SaveResult(ctx, resultFixture("id-3", model.ExecutionStatusCompleted, t0.Add(2*time.Minute))))

	all, err := repo.ListResults(ctx, storage.ListResultsOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "id-3", all[0].ID)
	assert.Equal(t, "id-2", all[1].ID)
	assert.Equal(t, "id-1", all[2].ID)
	assert.Empty(t, all[0].Transcript)

	completed, err := repo.ListResults(ctx, storage.ListResultsOpts{Status: model.ExecutionStatusCompleted, Limit: 1})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "id-3", completed[0].ID)
}

func TestRepositoryPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: path})
	require.NoError(t, err)
	require.NoError(t, repo.SaveResult(ctx, resultFixture("id-1", model.ExecutionStatusCompleted, t0)))
	require.NoError(t, repo.Close())

	repo, err = sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: path})
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.GetResult(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada!", got.Stdout())
}
