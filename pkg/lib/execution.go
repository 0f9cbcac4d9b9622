package lib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/slok/scriptrun/internal/app/history"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/output"
)

func (c *Client) trust(opts SubmitOpts) model.TrustLevel {
	if opts.Trust != "" {
		return model.TrustLevel(opts.Trust)
	}
	return c.settings.TrustForRole(opts.Role)
}

// Submit validates and starts an execution, it returns as soon as the script
// is running with the execution ID.
//
// Returns [ErrRejected] when the policy rejects the script, the ID of the
// rejected execution is still returned so its issues can be read with
// [Client.GetResult]. Returns [ErrBinding] on invalid parameter values and
// [ErrBusy] when the concurrent executions limit is reached.
func (c *Client) Submit(ctx context.Context, opts SubmitOpts) (string, error) {
	id, err := c.engine.Submit(ctx, model.ExecutionRequest{
		Script:  toInternalScript(opts.Script),
		Values:  opts.Values,
		Timeout: opts.Timeout,
		Trust:   c.trust(opts),
	})
	return id, mapError(err)
}

// RunOpts configures the live output of [Client.Run].
type RunOpts struct {
	// Stdout receives the standard output lines.
	Stdout io.Writer
	// Stderr receives the standard error and engine lines.
	Stderr io.Writer
}

// Run submits the script and blocks until it finishes, streaming its output
// when opts is set. Cancelling the context cancels the execution.
//
// A rejected script is not an error, the rejected result is returned.
func (c *Client) Run(ctx context.Context, opts SubmitOpts, runOpts *RunOpts) (*ExecutionResult, error) {
	id, err := c.Submit(ctx, opts)
	if err != nil {
		if errors.Is(err, ErrRejected) && id != "" {
			return c.GetResult(context.Background(), id)
		}
		return nil, err
	}

	if runOpts == nil {
		runOpts = &RunOpts{}
	}
	stdout, stderr := runOpts.Stdout, runOpts.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	sub, err := c.engine.Subscribe(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	defer sub.Close()

	done := ctx.Done()
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return c.Wait(context.Background(), id)
			}
			if ev.Final != nil {
				res := fromInternalResult(*ev.Final)
				return &res, nil
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
			if err := c.engine.Cancel(context.Background(), id); err != nil {
				c.logger.Warningf("Could not cancel execution %s: %s", id, err)
			}
			done = nil
		}
	}
}

// Cancel cancels an execution. Cancelling a finished execution does nothing.
// Returns [ErrNotFound] if the execution does not exist.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return mapError(c.engine.Cancel(ctx, id))
}

// Subscription is a live view of the output of an execution.
type Subscription struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
	sub    *output.Subscription
}

// Events returns the events channel, it's closed after the final event or
// after [Subscription.Close].
func (s *Subscription) Events() <-chan Event { return s.events }

// Close detaches the subscription, the execution is not affected.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.sub.Close()
	})
}

// Subscribe returns a live view of the execution output. The retained
// transcript is delivered first, finished executions are replayed.
//
// A slow consumer never blocks the execution, it loses the oldest events instead.
func (c *Client) Subscribe(ctx context.Context, id string) (*Subscription, error) {
	sub, err := c.engine.Subscribe(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}

	s := &Subscription{
		events: make(chan Event),
		done:   make(chan struct{}),
		sub:    sub,
	}
	go func() {
		defer close(s.events)
		for ev := range sub.Events() {
			select {
			case s.events <- fromInternalEvent(ev):
			case <-s.done:
				return
			}
		}
	}()

	return s, nil
}

// GetResult returns the result of a finished execution.
// Returns [ErrStillRunning] if it didn't finish yet and [ErrNotFound] if it does not exist.
func (c *Client) GetResult(ctx context.Context, id string) (*ExecutionResult, error) {
	r, err := c.engine.GetResult(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	res := fromInternalResult(*r)
	return &res, nil
}

// Wait blocks until the execution finishes and returns its result.
func (c *Client) Wait(ctx context.Context, id string) (*ExecutionResult, error) {
	r, err := c.engine.Wait(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	res := fromInternalResult(*r)
	return &res, nil
}

// Status returns the current status of an execution.
func (c *Client) Status(ctx context.Context, id string) (ExecutionStatus, error) {
	s, err := c.engine.Status(ctx, id)
	if err != nil {
		return "", mapError(err)
	}
	return ExecutionStatus(s), nil
}

// Running returns the executions with a live process, oldest first.
func (c *Client) Running() []RunningExecution {
	running := c.engine.Running()
	out := make([]RunningExecution, 0, len(running))
	for _, r := range running {
		out = append(out, RunningExecution{ID: r.ID, PID: r.PID, StartedAt: r.StartedAt})
	}
	return out
}

// History lists the finished executions, most recent first. The results
// don't include their transcripts, use [Client.GetResult] for those.
// Pass nil opts to list everything.
func (c *Client) History(ctx context.Context, opts *HistoryOpts) ([]ExecutionResult, error) {
	svc, err := history.NewService(history.ServiceConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	req := history.Request{}
	if opts != nil {
		req.Limit = opts.Limit
		if opts.Status != nil {
			s := model.ExecutionStatus(*opts.Status)
			req.StatusFilter = &s
		}
	}

	results, err := svc.Run(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]ExecutionResult, 0, len(results))
	for _, r := range results {
		out = append(out, fromInternalResult(r))
	}
	return out, nil
}

// Validate checks the script content against the policy without running it.
func (c *Client) Validate(script string, trust TrustLevel) Validation {
	allowed, issues := c.validator.Validate(script, model.TrustLevel(trust))
	return Validation{Allowed: allowed, Issues: issues}
}
