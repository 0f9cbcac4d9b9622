package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/slok/scriptrun/internal/model"
)

// RunningExecution is the information of a running execution.
type RunningExecution struct {
	ID        string
	PID       int
	StartedAt time.Time
}

type handle struct {
	mu        sync.Mutex
	info      RunningExecution
	cancel    context.CancelFunc
	cancelled bool
}

// Registry tracks the running executions and their control handles.
// An execution is registered only while its process is alive.
// It's safe for concurrent use, operations on different executions don't
// contend with each other.
type Registry struct {
	handles sync.Map
}

// NewRegistry returns a new empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register registers a running execution. An execution can only have one live handle.
func (r *Registry) Register(info RunningExecution, cancel context.CancelFunc) error {
	h := &handle{info: info, cancel: cancel}
	if _, loaded := r.handles.LoadOrStore(info.ID, h); loaded {
		return fmt.Errorf("running execution %s: %w", info.ID, model.ErrAlreadyExists)
	}
	return nil
}

// Deregister removes a running execution.
func (r *Registry) Deregister(id string) {
	r.handles.Delete(id)
}

// Cancel requests the cancellation of a running execution. It returns false if
// the execution is not running.
func (r *Registry) Cancel(id string) bool {
	v, ok := r.handles.Load(id)
	if !ok {
		return false
	}

	h := v.(*handle)
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.cancelled {
		h.cancelled = true
		h.cancel()
	}

	return true
}

// Get returns the information of a running execution.
func (r *Registry) Get(id string) (RunningExecution, bool) {
	v, ok := r.handles.Load(id)
	if !ok {
		return RunningExecution{}, false
	}
	return v.(*handle).info, true
}

// List returns the running executions sorted by start time.
func (r *Registry) List() []RunningExecution {
	var list []RunningExecution
	r.handles.Range(func(_, v any) bool {
		list = append(list, v.(*handle).info)
		return true
	})

	sort.Slice(list, func(i, j int) bool {
		if list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].StartedAt.Before(list[j].StartedAt)
	})

	return list
}
