package model

import (
	"fmt"
	"strings"
	"time"
)

// TrustLevel is the trust the caller has been granted for an execution.
type TrustLevel string

const (
	// TrustLevelRestricted applies the content policy before running a script.
	TrustLevelRestricted TrustLevel = "restricted"
	// TrustLevelPrivileged bypasses the content policy.
	TrustLevelPrivileged TrustLevel = "privileged"
)

// ParseTrustLevel parses a trust level.
func ParseTrustLevel(s string) (TrustLevel, error) {
	switch t := TrustLevel(strings.ToLower(strings.TrimSpace(s))); t {
	case TrustLevelRestricted, TrustLevelPrivileged:
		return t, nil
	}
	return "", fmt.Errorf("unknown trust level %q: %w", s, ErrNotValid)
}

// ExecutionRequest is a single request to run a script.
type ExecutionRequest struct {
	Script ScriptSource
	// Values are the caller supplied parameter values by parameter name.
	Values map[string]any
	// Timeout is the maximum time the script can run, zero means the engine default.
	Timeout time.Duration
	Trust   TrustLevel
}

// ExecutionStatus is the state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusTimedOut  ExecutionStatus = "timed_out"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusRejected  ExecutionStatus = "rejected"
)

var statusTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionStatusPending: {
		ExecutionStatusRunning,
		ExecutionStatusRejected,
		// Spawn failures and cancellations before the process started.
		ExecutionStatusFailed,
		ExecutionStatusCancelled,
	},
	ExecutionStatusRunning: {
		ExecutionStatusCompleted,
		ExecutionStatusFailed,
		ExecutionStatusTimedOut,
		ExecutionStatusCancelled,
	},
}

// IsTerminal returns true when no more transitions can happen from the status.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusTimedOut, ExecutionStatusCancelled, ExecutionStatusRejected:
		return true
	}
	return false
}

// CanTransitionTo returns true if the status can move to next.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	for _, st := range statusTransitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// ParseExecutionStatus parses an execution status.
func ParseExecutionStatus(s string) (ExecutionStatus, error) {
	st := ExecutionStatus(strings.ToLower(strings.TrimSpace(s)))
	if st == ExecutionStatusPending || st == ExecutionStatusRunning || st.IsTerminal() {
		return st, nil
	}
	return "", fmt.Errorf("unknown execution status %q: %w", s, ErrNotValid)
}

// Stream is the origin of an output line.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
	// StreamSystem lines are written by the engine itself (e.g. timeout notes).
	StreamSystem Stream = "system"
)

// OutputLine is a single line of output produced by an execution.
type OutputLine struct {
	// Seq is the arrival order of the line inside its execution, starting at 1.
	Seq    int
	Stream Stream
	Text   string
	Time   time.Time
}

// Event is what subscribers of an execution receive.
// Exactly one of Line or Final is set.
type Event struct {
	Line  *OutputLine
	Final *ExecutionResult
	// Dropped is the total number of events dropped so far for this subscriber
	// because it was not consuming fast enough.
	Dropped int
}

// ExecutionResult is the immutable outcome of an execution.
type ExecutionResult struct {
	ID         string
	ScriptName string
	Status     ExecutionStatus
	// ExitCode is only present when the process exited by itself.
	ExitCode *int
	// InfrastructureError is set when the interpreter could not be started,
	// this is not a script error.
	InfrastructureError bool
	Error               string
	// Issues are the policy issues that rejected the script.
	Issues       []string
	Transcript   []OutputLine
	Truncated    bool
	DroppedLines int
	StartedAt    time.Time
	CompletedAt  time.Time
	Duration     time.Duration
}

// Stdout returns the captured standard output lines joined.
func (e ExecutionResult) Stdout() string { return e.joinStream(StreamStdout) }

// Stderr returns the captured standard error and engine lines joined.
func (e ExecutionResult) Stderr() string { return e.joinStream(StreamStderr, StreamSystem) }

func (e ExecutionResult) joinStream(streams ...Stream) string {
	var lines []string
	for _, l := range e.Transcript {
		for _, s := range streams {
			if l.Stream == s {
				lines = append(lines, l.Text)
				break
			}
		}
	}
	return strings.Join(lines, "\n")
}
