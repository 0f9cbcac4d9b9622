package fake

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slok/scriptrun/internal/log"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/process"
)

// Behavior is how a fake process behaves.
type Behavior struct {
	Stdout   []string
	Stderr   []string
	ExitCode int
	// Duration is how long the fake process runs after writing its output.
	Duration time.Duration
	// SpawnErr makes the spawn fail.
	SpawnErr error
}

// RunnerConfig is the configuration for the fake runner.
type RunnerConfig struct {
	// Behaviors are the behaviors by script content, scripts not found use Default.
	Behaviors map[string]Behavior
	Default   Behavior
	Logger    log.Logger
}

func (c *RunnerConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "process.Fake"})
	return nil
}

// Runner is a fake process runner that doesn't spawn real processes.
// It honors the timeout and the context cancellation like the real one.
type Runner struct {
	behaviors map[string]Behavior
	def       Behavior
	logger    log.Logger

	mu       sync.Mutex
	requests []process.Request
	spawned  atomic.Int64
	nextPID  atomic.Int64
}

// NewRunner creates a new fake runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	r := &Runner{
		behaviors: cfg.Behaviors,
		def:       cfg.Default,
		logger:    cfg.Logger,
	}
	r.nextPID.Store(1000)
	return r, nil
}

// Spawned returns the number of fake processes spawned.
func (r *Runner) Spawned() int { return int(r.spawned.Load()) }

// Requests returns the received run requests.
func (r *Runner) Requests() []process.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]process.Request(nil), r.requests...)
}

// Run simulates a process run.
func (r *Runner) Run(ctx context.Context, req process.Request) process.Outcome {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()

	b, ok := r.behaviors[req.Script]
	if !ok {
		b = r.def
	}

	now := time.Now().UTC()
	if ctx.Err() != nil {
		return process.Outcome{Status: model.ExecutionStatusCancelled, Note: "execution cancelled before start", StartedAt: now, CompletedAt: now}
	}
	if b.SpawnErr != nil {
		return process.Outcome{Status: model.ExecutionStatusFailed, InfrastructureError: true, Err: b.SpawnErr, StartedAt: now, CompletedAt: now}
	}

	r.spawned.Add(1)
	pid := int(r.nextPID.Add(1))
	startedAt := time.Now().UTC()
	if req.OnStart != nil {
		req.OnStart(pid, startedAt)
	}
	r.logger.Debugf("Fake process %d started", pid)

	write(req.Stdout, b.Stdout)
	write(req.Stderr, b.Stderr)

	timer := time.NewTimer(req.Timeout)
	defer timer.Stop()
	work := time.NewTimer(b.Duration)
	defer work.Stop()

	out := process.Outcome{StartedAt: startedAt}
	select {
	case <-work.C:
		code := b.ExitCode
		out.ExitCode = &code
		out.Status = model.ExecutionStatusCompleted
		if code != 0 {
			out.Status = model.ExecutionStatusFailed
		}
	case <-timer.C:
		out.Status = model.ExecutionStatusTimedOut
		out.Note = fmt.Sprintf("execution timeout after %s", req.Timeout)
	case <-ctx.Done():
		out.Status = model.ExecutionStatusCancelled
		out.Note = "execution cancelled"
	}
	out.CompletedAt = time.Now().UTC()

	return out
}

func write(w io.Writer, lines []string) {
	if w == nil {
		return
	}
	for _, l := range lines {
		_, _ = io.WriteString(w, l+"\n")
	}
}
