package engine

import (
	"fmt"
	"strings"

	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/process"
)

// Record is the state of an execution when it reaches a terminal status.
type Record struct {
	ID         string
	ScriptName string
	Outcome    process.Outcome
	// Issues are the policy issues of a rejected execution.
	Issues    []string
	Lines     []model.OutputLine
	Truncated bool
	Dropped   int
}

// Assemble builds the immutable result of a terminal execution record.
//
// Only executions whose process exited by itself have an exit code, rejected
// executions never have a transcript.
func Assemble(r Record) (model.ExecutionResult, error) {
	out := r.Outcome
	if !out.Status.IsTerminal() {
		return model.ExecutionResult{}, fmt.Errorf("execution %s status %q is not terminal: %w", r.ID, out.Status, model.ErrNotValid)
	}

	res := model.ExecutionResult{
		ID:                  r.ID,
		ScriptName:          r.ScriptName,
		Status:              out.Status,
		InfrastructureError: out.InfrastructureError,
		StartedAt:           out.StartedAt,
		CompletedAt:         out.CompletedAt,
	}
	if res.CompletedAt.After(res.StartedAt) {
		res.Duration = res.CompletedAt.Sub(res.StartedAt)
	}

	switch out.Status {
	case model.ExecutionStatusRejected:
		res.Issues = append([]string(nil), r.Issues...)
		res.Error = fmt.Sprintf("script rejected by policy: %s", strings.Join(r.Issues, "; "))
		return res, nil
	case model.ExecutionStatusCompleted, model.ExecutionStatusFailed:
		if out.ExitCode != nil {
			code := *out.ExitCode
			res.ExitCode = &code
		}
	}

	res.Transcript = append([]model.OutputLine(nil), r.Lines...)
	res.Truncated = r.Truncated
	res.DroppedLines = r.Dropped

	switch {
	case out.Err != nil:
		res.Error = out.Err.Error()
	case out.Status == model.ExecutionStatusFailed && res.ExitCode != nil:
		res.Error = fmt.Sprintf("script exited with code %d", *res.ExitCode)
	case out.Note != "":
		res.Error = out.Note
	}

	return res, nil
}
