// Package engine accepts script execution requests and supervises them until
// they reach a terminal status.
//
// A submission goes through validation, the content policy and the parameter
// binding before any process is spawned; any failure there returns without
// consuming resources. Accepted executions run concurrently, each one owns its
// process tree and its output multiplexer so they never share state.
package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/slok/scriptrun/internal/binder"
	"github.com/slok/scriptrun/internal/log"
	"github.com/slok/scriptrun/internal/metrics"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/output"
	"github.com/slok/scriptrun/internal/policy"
	"github.com/slok/scriptrun/internal/process"
	"github.com/slok/scriptrun/internal/storage"
	"github.com/slok/scriptrun/internal/storage/memory"
)

const (
	DefaultMaxConcurrent  = 16
	DefaultMaxTimeout     = time.Hour
	DefaultDefaultTimeout = 300 * time.Second
)

// Runner knows how to run a script process until it's gone.
type Runner interface {
	Run(ctx context.Context, req process.Request) process.Outcome
}

// Config is the engine configuration.
type Config struct {
	Runner Runner
	// Validator is the content policy, by default the built-in rules.
	Validator *policy.Validator
	// Results stores the terminal results, by default in memory.
	Results            storage.ResultRepository
	Metrics            metrics.Recorder
	MaxConcurrent      int
	MaxTranscriptBytes int
	SubscriberBuffer   int
	MaxTimeout         time.Duration
	DefaultTimeout     time.Duration
	// EnvPrefix is the prefix of the environment variables that carry the parameters.
	EnvPrefix string
	// IDGenerator returns new unique execution IDs.
	IDGenerator func() string
	TimeNow     func() time.Time
	Logger      log.Logger
}

func (c *Config) defaults() error {
	if c.Runner == nil {
		return fmt.Errorf("runner is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "engine.Engine"})

	if c.Validator == nil {
		v, err := policy.NewValidatorFromSettings(model.PolicySettings{})
		if err != nil {
			return fmt.Errorf("could not create default validator: %w", err)
		}
		c.Validator = v
	}
	if c.Results == nil {
		r, err := memory.NewRepository(memory.RepositoryConfig{Logger: c.Logger})
		if err != nil {
			return fmt.Errorf("could not create default results repository: %w", err)
		}
		c.Results = r
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}

	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max concurrent can't be negative")
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.MaxTranscriptBytes < 0 {
		return fmt.Errorf("max transcript bytes can't be negative")
	}
	if c.MaxTranscriptBytes == 0 {
		c.MaxTranscriptBytes = output.DefaultMaxTranscriptBytes
	}
	if c.SubscriberBuffer < 0 {
		return fmt.Errorf("subscriber buffer can't be negative")
	}
	if c.SubscriberBuffer == 0 {
		c.SubscriberBuffer = output.DefaultSubscriberBuffer
	}
	if c.MaxTimeout < 0 || c.DefaultTimeout < 0 {
		return fmt.Errorf("timeouts can't be negative")
	}
	if c.MaxTimeout == 0 {
		c.MaxTimeout = DefaultMaxTimeout
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = DefaultDefaultTimeout
	}
	if c.DefaultTimeout > c.MaxTimeout {
		c.DefaultTimeout = c.MaxTimeout
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = binder.DefaultEnvPrefix
	}
	if c.IDGenerator == nil {
		c.IDGenerator = func() string { return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String() }
	}
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}

	return nil
}

// Engine runs scripts concurrently with bounded resources. It's safe for concurrent use.
type Engine struct {
	runner     Runner
	validator  *policy.Validator
	results    storage.ResultRepository
	metrics    metrics.Recorder
	sem        *semaphore.Weighted
	registry   *Registry
	executions sync.Map

	// lifecycle guards closed and the wait group additions against Shutdown.
	lifecycle sync.RWMutex
	closed    bool
	wg        sync.WaitGroup

	maxTranscriptBytes int
	subscriberBuffer   int
	maxTimeout         time.Duration
	defaultTimeout     time.Duration
	envPrefix          string
	newID              func() string
	timeNow            func() time.Time
	logger             log.Logger
}

// NewEngine returns a new engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		runner:             cfg.Runner,
		validator:          cfg.Validator,
		results:            cfg.Results,
		metrics:            cfg.Metrics,
		sem:                semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		registry:           NewRegistry(),
		maxTranscriptBytes: cfg.MaxTranscriptBytes,
		subscriberBuffer:   cfg.SubscriberBuffer,
		maxTimeout:         cfg.MaxTimeout,
		defaultTimeout:     cfg.DefaultTimeout,
		envPrefix:          cfg.EnvPrefix,
		newID:              cfg.IDGenerator,
		timeNow:            cfg.TimeNow,
		logger:             cfg.Logger,
	}, nil
}

// Submit accepts a script execution and returns its ID without waiting for it.
//
// Requests rejected by the content policy return a *policy.RejectedError
// together with the ID of the stored rejected result. Binding errors and
// a full engine (model.ErrBusy) return no ID and create no execution.
func (e *Engine) Submit(ctx context.Context, req model.ExecutionRequest) (string, error) {
	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()
	if e.closed {
		return "", fmt.Errorf("engine is shutting down: %w", model.ErrBusy)
	}

	if err := req.Script.Validate(); err != nil {
		e.metrics.SubmissionRejected(ctx, metrics.ReasonInvalid)
		return "", fmt.Errorf("invalid script: %w", err)
	}

	timeout, err := e.timeout(req.Timeout)
	if err != nil {
		e.metrics.SubmissionRejected(ctx, metrics.ReasonInvalid)
		return "", err
	}

	trust := req.Trust
	if trust != model.TrustLevelPrivileged {
		trust = model.TrustLevelRestricted
	}

	if allowed, issues := e.validator.Validate(req.Script.Content, trust); !allowed {
		e.metrics.SubmissionRejected(ctx, metrics.ReasonPolicy)
		return e.reject(ctx, req.Script.Name, issues)
	}

	bound, err := binder.Bind(req.Script.Parameters, req.Values)
	if err != nil {
		e.metrics.SubmissionRejected(ctx, metrics.ReasonBinding)
		return "", err
	}

	if !e.sem.TryAcquire(1) {
		e.metrics.SubmissionRejected(ctx, metrics.ReasonBusy)
		return "", fmt.Errorf("concurrent executions limit reached: %w", model.ErrBusy)
	}

	mux, err := output.NewMultiplexer(output.MultiplexerConfig{
		MaxTranscriptBytes: e.maxTranscriptBytes,
		SubscriberBuffer:   e.subscriberBuffer,
		Logger:             e.logger,
		TimeNow:            e.timeNow,
	})
	if err != nil {
		e.sem.Release(1)
		return "", fmt.Errorf("could not create output multiplexer: %w", err)
	}

	id := e.newID()
	runCtx, cancel := context.WithCancel(context.Background())
	ex := &execution{
		id:         id,
		scriptName: req.Script.Name,
		mux:        mux,
		cancel:     cancel,
		done:       make(chan struct{}),
		status:     model.ExecutionStatusPending,
	}
	if _, loaded := e.executions.LoadOrStore(id, ex); loaded {
		cancel()
		e.sem.Release(1)
		return "", fmt.Errorf("execution %s: %w", id, model.ErrAlreadyExists)
	}

	logger := e.logger.WithValues(log.Kv{"execution-id": id, "script": req.Script.Name, "trust": trust})
	e.metrics.ExecutionAccepted(ctx, trust)
	logger.Infof("Execution accepted")

	e.wg.Add(1)
	go e.supervise(runCtx, ex, process.Request{
		Script:  req.Script.Content,
		Env:     bound.Env(e.envPrefix),
		Timeout: timeout,
		Logger:  logger,
	}, logger)

	return id, nil
}

func (e *Engine) timeout(t time.Duration) (time.Duration, error) {
	switch {
	case t == 0:
		return e.defaultTimeout, nil
	case t < 0:
		return 0, fmt.Errorf("timeout can't be negative: %w", model.ErrNotValid)
	case t > e.maxTimeout:
		return 0, fmt.Errorf("timeout %s is greater than the maximum %s: %w", t, e.maxTimeout, model.ErrNotValid)
	}
	return t, nil
}

func (e *Engine) reject(ctx context.Context, scriptName string, issues []string) (string, error) {
	id := e.newID()
	now := e.timeNow().UTC()
	res, err := Assemble(Record{
		ID:         id,
		ScriptName: scriptName,
		Outcome: process.Outcome{
			Status:      model.ExecutionStatusRejected,
			StartedAt:   now,
			CompletedAt: now,
		},
		Issues: issues,
	})
	if err != nil {
		return "", err
	}

	rejected := &policy.RejectedError{Issues: issues}
	if err := e.results.SaveResult(ctx, res); err != nil {
		e.logger.Errorf("Could not store rejected execution %s: %s", id, err)
		return "", rejected
	}

	e.logger.WithValues(log.Kv{"execution-id": id, "script": scriptName}).Warningf("Execution rejected by policy: %d issues", len(issues))
	return id, rejected
}

func (e *Engine) supervise(ctx context.Context, ex *execution, req process.Request, logger log.Logger) {
	defer e.wg.Done()
	defer e.sem.Release(1)
	defer ex.cancel()

	stdout := output.NewLineWriter(model.StreamStdout, ex.mux)
	stderr := output.NewLineWriter(model.StreamStderr, ex.mux)
	req.Stdout = stdout
	req.Stderr = stderr
	req.OnStart = func(pid int, startedAt time.Time) {
		if err := ex.transition(model.ExecutionStatusRunning); err != nil {
			logger.Errorf("Invalid status transition: %s", err)
		}
		if err := e.registry.Register(RunningExecution{ID: ex.id, PID: pid, StartedAt: startedAt}, ex.cancel); err != nil {
			logger.Errorf("Could not register running execution, cancelling it: %s", err)
			ex.cancel()
			return
		}
		logger.Infof("Execution running on process %d", pid)
	}

	out := e.runner.Run(ctx, req)
	e.registry.Deregister(ex.id)

	// Nothing else can write to the writers now.
	stdout.Flush()
	stderr.Flush()
	if out.Note != "" {
		ex.mux.Publish(model.StreamSystem, out.Note)
	}
	if out.InfrastructureError && out.Err != nil {
		ex.mux.Publish(model.StreamSystem, out.Err.Error())
	}

	lines, truncated, dropped := ex.mux.Snapshot()
	res, err := Assemble(Record{
		ID:         ex.id,
		ScriptName: ex.scriptName,
		Outcome:    out,
		Lines:      lines,
		Truncated:  truncated,
		Dropped:    dropped,
	})
	if err != nil {
		logger.Errorf("Runner returned a non terminal outcome: %s", err)
		out.Status = model.ExecutionStatusFailed
		out.InfrastructureError = true
		out.Err = err
		res, _ = Assemble(Record{ID: ex.id, ScriptName: ex.scriptName, Outcome: out, Lines: lines, Truncated: truncated, Dropped: dropped})
	}

	if err := ex.finish(res); err != nil {
		logger.Errorf("Invalid status transition: %s", err)
	}

	saved := true
	if err := e.results.SaveResult(context.Background(), res); err != nil {
		saved = false
		logger.Errorf("Could not store execution result, keeping it in memory: %s", err)
	}

	ex.mux.Close(res)
	if saved {
		e.executions.Delete(ex.id)
	}
	close(ex.done)

	e.metrics.ExecutionFinished(context.Background(), res.Status, res.Duration, res.Truncated)
	logger.Infof("Execution finished with status %s in %s", res.Status, res.Duration)
}

// Cancel requests the cancellation of an execution. Cancelling an already
// finished execution has no effect.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	if e.registry.Cancel(id) {
		e.logger.Debugf("Cancellation requested for running execution %s", id)
		return nil
	}

	if ex, ok := e.load(id); ok {
		ex.cancel()
		return nil
	}

	if _, err := e.results.GetResult(ctx, id); err != nil {
		return fmt.Errorf("could not get execution %s: %w", id, err)
	}

	return nil
}

// Subscribe returns a live view of the execution output. Late subscribers
// receive the retained transcript first, and the subscribers of a finished
// execution receive its transcript and the final event.
func (e *Engine) Subscribe(ctx context.Context, id string) (*output.Subscription, error) {
	if ex, ok := e.load(id); ok {
		return ex.mux.Subscribe(), nil
	}

	res, err := e.results.GetResult(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not get execution %s: %w", id, err)
	}

	return output.Replay(*res), nil
}

// GetResult returns the result of a finished execution, model.ErrStillRunning
// if it didn't finish yet.
func (e *Engine) GetResult(ctx context.Context, id string) (*model.ExecutionResult, error) {
	if ex, ok := e.load(id); ok {
		if res, ok := ex.Result(); ok {
			return &res, nil
		}
		return nil, fmt.Errorf("execution %s: %w", id, model.ErrStillRunning)
	}

	res, err := e.results.GetResult(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not get execution %s: %w", id, err)
	}

	return res, nil
}

// Wait blocks until the execution finishes or the context is done.
func (e *Engine) Wait(ctx context.Context, id string) (*model.ExecutionResult, error) {
	if ex, ok := e.load(id); ok {
		select {
		case <-ex.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return e.GetResult(ctx, id)
}

// Status returns the current status of an execution.
func (e *Engine) Status(ctx context.Context, id string) (model.ExecutionStatus, error) {
	if ex, ok := e.load(id); ok {
		return ex.Status(), nil
	}

	res, err := e.results.GetResult(ctx, id)
	if err != nil {
		return "", fmt.Errorf("could not get execution %s: %w", id, err)
	}
	return res.Status, nil
}

// Running returns the executions with a live process.
func (e *Engine) Running() []RunningExecution { return e.registry.List() }

// Shutdown stops accepting executions, cancels the ones in flight and waits
// until all of them finished or the context is done.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.lifecycle.Lock()
	e.closed = true
	e.lifecycle.Unlock()

	e.executions.Range(func(_, v any) bool {
		v.(*execution).cancel()
		return true
	})

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Infof("Engine shut down")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine shutdown interrupted: %w", ctx.Err())
	}
}

func (e *Engine) load(id string) (*execution, bool) {
	v, ok := e.executions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*execution), true
}

// execution is an accepted execution that didn't reach the results storage yet.
// Only its supervisor changes its status.
type execution struct {
	id         string
	scriptName string
	mux        *output.Multiplexer
	cancel     context.CancelFunc
	done       chan struct{}

	mu     sync.RWMutex
	status model.ExecutionStatus
	result *model.ExecutionResult
}

func (x *execution) transition(next model.ExecutionStatus) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.status.CanTransitionTo(next) {
		return fmt.Errorf("execution %s can't move from %s to %s: %w", x.id, x.status, next, model.ErrNotValid)
	}
	x.status = next
	return nil
}

func (x *execution) finish(res model.ExecutionResult) error {
	err := x.transition(res.Status)

	x.mu.Lock()
	defer x.mu.Unlock()
	// The result is set even on invalid transitions, callers must get a terminal result.
	x.status = res.Status
	x.result = &res

	return err
}

// Status returns the current status.
func (x *execution) Status() model.ExecutionStatus {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.status
}

// Result returns the result once the execution is terminal.
func (x *execution) Result() (model.ExecutionResult, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.result == nil {
		return model.ExecutionResult{}, false
	}
	return *x.result, true
}
