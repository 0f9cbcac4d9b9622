package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scriptrun/internal/engine"
	"github.com/slok/scriptrun/internal/model"
)

func TestRegistry(t *testing.T) {
	r := engine.NewRegistry()
	t0 := time.Now()

	cancelled := 0
	cancel := func() { cancelled++ }

	require.NoError(t, r.Register(engine.RunningExecution{ID: "b", PID: 2, StartedAt: t0.Add(time.Second)}, cancel))
	require.NoError(t, r.Register(engine.RunningExecution{ID: "a", PID: 1, StartedAt: t0}, cancel))

	err := r.Register(engine.RunningExecution{ID: "a", PID: 3}, cancel)
	assert.True(t, errors.Is(err, model.ErrAlreadyExists))

	info, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, info.PID)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	// Cancelling twice only cancels once.
	assert.True(t, r.Cancel("a"))
	assert.True(t, r.Cancel("a"))
	assert.Equal(t, 1, cancelled)
	assert.False(t, r.Cancel("missing"))

	r.Deregister("a")
	_, ok = r.Get("a")
	assert.False(t, ok)
	assert.False(t, r.Cancel("a"))
	assert.Len(t, r.List(), 1)
}
