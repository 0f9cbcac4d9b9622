// Package process runs scripts as isolated interpreter processes.
//
// Every script runs in a new process group so the whole process tree can be
// signaled at once. A run ends when the process exits, the deadline expires or
// the context is cancelled; the last two kill the tree with a graceful signal
// first and a forced kill after the grace period, so the tree is guaranteed to
// be gone by a fixed time after the deadline or the cancellation.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/slok/scriptrun/internal/log"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/utils/env"
)

var (
	// DefaultInterpreter runs PowerShell reading the script from stdin.
	DefaultInterpreter = []string{"pwsh", "-NoProfile", "-NonInteractive", "-Command", "-"}
	// DefaultEnvPassthrough are the environment variables scripts inherit from the engine.
	DefaultEnvPassthrough = []string{"PATH", "HOME", "USER", "LANG", "TMPDIR", "PSModulePath"}
)

// DefaultKillGrace is the time a process tree has to exit after the graceful termination signal.
const DefaultKillGrace = 3 * time.Second

// RunnerConfig is the configuration of the process runner.
type RunnerConfig struct {
	// Interpreter is the argv of the interpreter, the script is written to its stdin.
	Interpreter []string
	// WorkDir is the working directory of the processes (optional).
	WorkDir string
	// EnvPassthrough are the environment variables inherited from the current process.
	EnvPassthrough []string
	// KillGrace is the time between the termination signal and the forced kill.
	KillGrace time.Duration
	Logger    log.Logger
	// TimeNow is used to get the current time.
	TimeNow func() time.Time
}

func (c *RunnerConfig) defaults() error {
	if len(c.Interpreter) == 0 {
		c.Interpreter = DefaultInterpreter
	}
	if c.Interpreter[0] == "" {
		return fmt.Errorf("interpreter binary is required")
	}
	if c.EnvPassthrough == nil {
		c.EnvPassthrough = DefaultEnvPassthrough
	}
	if c.KillGrace < 0 {
		return fmt.Errorf("kill grace can't be negative")
	}
	if c.KillGrace == 0 {
		c.KillGrace = DefaultKillGrace
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "process.Runner"})
	return nil
}

// Request is a single script run.
type Request struct {
	Script string
	// Env are extra environment variables (e.g. the bound parameters).
	Env     []string
	Timeout time.Duration
	// Stdout and Stderr receive the process output (optional).
	Stdout io.Writer
	Stderr io.Writer
	// OnStart is called once the process has been spawned (optional).
	OnStart func(pid int, startedAt time.Time)
	Logger  log.Logger
}

// Outcome is the terminal outcome of a run.
type Outcome struct {
	Status model.ExecutionStatus
	// ExitCode is only set when the process exited by itself.
	ExitCode *int
	// InfrastructureError is set when the process could not be spawned.
	InfrastructureError bool
	Err                 error
	// Note is an engine note about the termination (e.g. the timeout).
	Note        string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Runner spawns and supervises interpreter processes. It has no state shared
// between runs so it's safe for concurrent use.
type Runner struct {
	interpreter []string
	workDir     string
	baseEnv     []string
	killGrace   time.Duration
	timeNow     func() time.Time
	logger      log.Logger
}

// NewRunner returns a new process runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Runner{
		interpreter: cfg.Interpreter,
		workDir:     cfg.WorkDir,
		baseEnv:     env.Passthrough(cfg.EnvPassthrough),
		killGrace:   cfg.KillGrace,
		timeNow:     cfg.TimeNow,
		logger:      cfg.Logger,
	}, nil
}

// Check checks the interpreter is available and returns its resolved path.
func (r *Runner) Check(ctx context.Context) (string, error) {
	path, err := exec.LookPath(r.interpreter[0])
	if err != nil {
		return "", fmt.Errorf("interpreter %q not found: %w", r.interpreter[0], err)
	}
	return path, nil
}

// Run runs the script and blocks until the process tree is gone. Cancelling
// the context kills the process tree and ends with a cancelled status.
func (r *Runner) Run(ctx context.Context, req Request) Outcome {
	logger := req.Logger
	if logger == nil {
		logger = r.logger
	}

	now := r.timeNow().UTC()
	if req.Timeout <= 0 {
		return Outcome{Status: model.ExecutionStatusFailed, InfrastructureError: true, Err: fmt.Errorf("timeout must be positive: %w", model.ErrNotValid), StartedAt: now, CompletedAt: now}
	}
	if ctx.Err() != nil {
		return Outcome{Status: model.ExecutionStatusCancelled, Note: "execution cancelled before start", StartedAt: now, CompletedAt: now}
	}

	p, err := r.spawn(req)
	if err != nil {
		now := r.timeNow().UTC()
		logger.Errorf("Could not spawn interpreter: %s", err)
		return Outcome{Status: model.ExecutionStatusFailed, InfrastructureError: true, Err: err, StartedAt: now, CompletedAt: now}
	}
	startedAt := r.timeNow().UTC()
	logger.Debugf("Spawned interpreter process %d", p.pid)
	if req.OnStart != nil {
		req.OnStart(p.pid, startedAt)
	}

	timer := time.NewTimer(req.Timeout)
	defer timer.Stop()

	var (
		status model.ExecutionStatus
		note   string
	)
	select {
	case waitErr := <-p.done:
		// Stray descendants can't outlive the script.
		p.killTree(true)
		p.drain(r.killGrace)
		out := exitOutcome(waitErr)
		out.StartedAt = startedAt
		out.CompletedAt = r.timeNow().UTC()
		return out
	case <-timer.C:
		status = model.ExecutionStatusTimedOut
		note = fmt.Sprintf("execution timeout after %s", req.Timeout)
		logger.Warningf("Execution timed out after %s, killing process tree %d", req.Timeout, p.pid)
	case <-ctx.Done():
		status = model.ExecutionStatusCancelled
		note = "execution cancelled"
		logger.Infof("Execution cancelled, killing process tree %d", p.pid)
	}

	if err := p.terminate(r.killGrace); err != nil {
		logger.Errorf("Could not terminate process tree %d: %s", p.pid, err)
	}
	p.drain(r.killGrace)

	return Outcome{
		Status:      status,
		Note:        note,
		StartedAt:   startedAt,
		CompletedAt: r.timeNow().UTC(),
	}
}

// proc is a spawned process tree.
type proc struct {
	pid      int
	cmd      *exec.Cmd
	done     chan error
	exited   bool
	readers  sync.WaitGroup
	pipes    []*os.File
	killOnce sync.Once
}

func (r *Runner) spawn(req Request) (*proc, error) {
	cmd := exec.Command(r.interpreter[0], r.interpreter[1:]...)
	cmd.Dir = r.workDir
	cmd.Env = append(append([]string{}, r.baseEnv...), req.Env...)
	cmd.Stdin = strings.NewReader(req.Script)
	cmd.SysProcAttr = sysProcAttr()
	// Stdin is copied by exec, don't let a descendant holding it block Wait.
	cmd.WaitDelay = r.killGrace

	p := &proc{cmd: cmd, done: make(chan error, 1)}

	// Own pipes so Wait returns as soon as the interpreter exits even if
	// descendants still hold the write side.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("could not create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return nil, fmt.Errorf("could not create stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	// The child has its own copy of the write sides.
	_ = stdoutW.Close()
	_ = stderrW.Close()
	if err != nil {
		_ = stdoutR.Close()
		_ = stderrR.Close()
		return nil, fmt.Errorf("could not start interpreter %q: %w", r.interpreter[0], err)
	}

	p.pid = cmd.Process.Pid
	p.pipes = []*os.File{stdoutR, stderrR}
	p.copy(stdoutR, req.Stdout)
	p.copy(stderrR, req.Stderr)

	go func() { p.done <- cmd.Wait() }()

	return p, nil
}

func (p *proc) copy(src *os.File, dst io.Writer) {
	if dst == nil {
		dst = io.Discard
	}
	p.readers.Add(1)
	go func() {
		defer p.readers.Done()
		_, _ = io.Copy(dst, src)
	}()
}

// killTree signals the whole process group, it's safe to call multiple times.
func (p *proc) killTree(force bool) {
	// The group can be already gone.
	_ = signalGroup(p.cmd.Process, force)
}

// terminate stops the process tree gracefully, forcing the kill after grace.
// Only the first call has effect.
func (p *proc) terminate(grace time.Duration) error {
	var err error
	p.killOnce.Do(func() {
		p.killTree(false)

		t := time.NewTimer(grace)
		defer t.Stop()
		select {
		case <-p.done:
			p.exited = true
		case <-t.C:
		}

		// Always force, descendants could ignore the graceful signal.
		p.killTree(true)
		if p.exited {
			return
		}

		t.Reset(grace)
		select {
		case <-p.done:
			p.exited = true
		case <-t.C:
			err = fmt.Errorf("process %d did not exit after forced kill", p.pid)
		}
	})
	return err
}

// drain waits for the output readers to finish, closing the pipes if they
// don't finish in time.
func (p *proc) drain(timeout time.Duration) {
	finished := make(chan struct{})
	go func() {
		p.readers.Wait()
		close(finished)
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-finished:
	case <-t.C:
	}

	// Closing unblocks the readers held by surviving descendants.
	for _, f := range p.pipes {
		_ = f.Close()
	}
	<-finished
}

func exitOutcome(waitErr error) Outcome {
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		waitErr = nil
	}

	if waitErr == nil {
		code := 0
		return Outcome{Status: model.ExecutionStatusCompleted, ExitCode: &code}
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if code, ok := exitCode(exitErr.ProcessState); ok {
			return Outcome{Status: model.ExecutionStatusFailed, ExitCode: &code}
		}
		return Outcome{Status: model.ExecutionStatusFailed, Err: fmt.Errorf("interpreter terminated: %s", exitErr.ProcessState)}
	}

	return Outcome{Status: model.ExecutionStatusFailed, InfrastructureError: true, Err: fmt.Errorf("could not wait for the interpreter: %w", waitErr)}
}
