package lib

import (
	"slices"
	"strings"
	"time"

	"github.com/slok/scriptrun/internal/model"
)

// EngineType identifies the process runner implementation.
type EngineType string

const (
	// EngineProcess runs scripts as real interpreter processes.
	EngineProcess EngineType = "process"

	// EngineFake simulates the executions without spawning processes.
	// Use this for unit testing without an interpreter installed.
	EngineFake EngineType = "fake"
)

// TrustLevel decides how much of the content policy applies to a script.
type TrustLevel string

const (
	// TrustRestricted scripts are checked against the content policy.
	TrustRestricted TrustLevel = "restricted"
	// TrustPrivileged scripts bypass the content policy.
	TrustPrivileged TrustLevel = "privileged"
)

// ParameterType is the declared type of a script parameter.
type ParameterType string

const (
	ParameterTypeString  ParameterType = "string"
	ParameterTypeInteger ParameterType = "integer"
	ParameterTypeBoolean ParameterType = "boolean"
)

// Parameter declares a script parameter. Values reach the script as
// environment variables, never as part of the script text.
type Parameter struct {
	Name     string
	Type     ParameterType
	Required bool
	// Default is used when the caller doesn't provide a value.
	Default any
	// Pattern is a regular expression the whole value must match (optional).
	Pattern string
}

// Script is a script body with its declared parameters.
type Script struct {
	Name       string
	Content    string
	Parameters []Parameter
}

// SubmitOpts configures a script execution.
type SubmitOpts struct {
	Script Script
	// Values are the parameter values by parameter name.
	Values map[string]any
	// Timeout of the execution, 0 means the engine default.
	Timeout time.Duration
	// Trust overrides the role trust level when set.
	Trust TrustLevel
	// Role is the caller role used to resolve the trust level with [Config].RoleTrust.
	Role string
}

// ExecutionStatus is the lifecycle state of an execution.
//
// The lifecycle is:
//
//	pending -> running -> completed | failed | timed_out | cancelled
//
// Scripts rejected by the policy end as rejected without running.
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

// Stream identifies where an output line came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
	// StreamSystem lines are written by the engine (e.g. timeout notes).
	StreamSystem Stream = "system"
)

// OutputLine is a single output line of an execution.
type OutputLine struct {
	Seq    int
	Stream Stream
	Text   string
	Time   time.Time
}

// Event is a subscription event, exactly one of Line or Final is set.
type Event struct {
	Line  *OutputLine
	Final *ExecutionResult
	// Dropped is the number of events lost so far because the consumer was too slow.
	Dropped int
}

// ExecutionResult is the final outcome of an execution.
type ExecutionResult struct {
	ID         string
	ScriptName string
	Status     ExecutionStatus
	// ExitCode is nil when the process didn't exit by itself.
	ExitCode *int
	// InfrastructureError is set when the interpreter could not be started.
	InfrastructureError bool
	Error               string
	// Issues are the policy issues of a rejected script.
	Issues       []string
	Transcript   []OutputLine
	Truncated    bool
	DroppedLines int
	StartedAt    time.Time
	CompletedAt  time.Time
	Duration     time.Duration
}

// Stdout returns the standard output lines joined.
func (r ExecutionResult) Stdout() string { return joinLines(r.Transcript, StreamStdout) }

// Stderr returns the standard error and engine lines joined.
func (r ExecutionResult) Stderr() string { return joinLines(r.Transcript, StreamStderr, StreamSystem) }

func joinLines(lines []OutputLine, streams ...Stream) string {
	var out []string
	for _, l := range lines {
		if slices.Contains(streams, l.Stream) {
			out = append(out, l.Text)
		}
	}
	return strings.Join(out, "\n")
}

// RunningExecution is an execution with a live process.
type RunningExecution struct {
	ID        string
	PID       int
	StartedAt time.Time
}

// HistoryOpts filters the execution history.
type HistoryOpts struct {
	// Status filters by status (optional).
	Status *ExecutionStatus
	// Limit is the maximum number of results, 0 means all.
	Limit int
}

// Validation is the policy verdict for a script.
type Validation struct {
	Allowed bool
	Issues  []string
}

// CheckStatus is the status of a preflight check.
type CheckStatus string

const (
	CheckStatusOK      CheckStatus = "ok"
	CheckStatusWarning CheckStatus = "warning"
	CheckStatusError   CheckStatus = "error"
)

// CheckResult is the result of a single preflight check.
type CheckResult struct {
	ID      string
	Message string
	Status  CheckStatus
}

// --- Internal conversion helpers ---

func toInternalScript(s Script) model.ScriptSource {
	params := make([]model.ParameterSpec, 0, len(s.Parameters))
	for _, p := range s.Parameters {
		params = append(params, model.ParameterSpec{
			Name:     p.Name,
			Type:     model.ParameterType(p.Type),
			Required: p.Required,
			Default:  p.Default,
			Pattern:  p.Pattern,
		})
	}
	return model.ScriptSource{Name: s.Name, Content: s.Content, Parameters: params}
}

func fromInternalScript(s model.ScriptSource) Script {
	params := make([]Parameter, 0, len(s.Parameters))
	for _, p := range s.Parameters {
		params = append(params, Parameter{
			Name:     p.Name,
			Type:     ParameterType(p.Type),
			Required: p.Required,
			Default:  p.Default,
			Pattern:  p.Pattern,
		})
	}
	return Script{Name: s.Name, Content: s.Content, Parameters: params}
}

func fromInternalLine(l model.OutputLine) OutputLine {
	return OutputLine{Seq: l.Seq, Stream: Stream(l.Stream), Text: l.Text, Time: l.Time}
}

func fromInternalResult(r model.ExecutionResult) ExecutionResult {
	res := ExecutionResult{
		ID:                  r.ID,
		ScriptName:          r.ScriptName,
		Status:              ExecutionStatus(r.Status),
		InfrastructureError: r.InfrastructureError,
		Error:               r.Error,
		Issues:              append([]string(nil), r.Issues...),
		Truncated:           r.Truncated,
		DroppedLines:        r.DroppedLines,
		StartedAt:           r.StartedAt,
		CompletedAt:         r.CompletedAt,
		Duration:            r.Duration,
	}
	if r.ExitCode != nil {
		code := *r.ExitCode
		res.ExitCode = &code
	}
	if len(r.Transcript) > 0 {
		res.Transcript = make([]OutputLine, len(r.Transcript))
		for i, l := range r.Transcript {
			res.Transcript[i] = fromInternalLine(l)
		}
	}
	return res
}

func fromInternalEvent(ev model.Event) Event {
	out := Event{Dropped: ev.Dropped}
	if ev.Line != nil {
		l := fromInternalLine(*ev.Line)
		out.Line = &l
	}
	if ev.Final != nil {
		r := fromInternalResult(*ev.Final)
		out.Final = &r
	}
	return out
}

func fromInternalCheckResults(results []model.CheckResult) []CheckResult {
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{ID: r.ID, Message: r.Message, Status: CheckStatus(r.Status)})
	}
	return out
}
