package metrics

import (
	"context"
	"time"

	"github.com/slok/scriptrun/internal/model"
)

// Submission rejection reasons.
const (
	ReasonInvalid = "invalid"
	ReasonPolicy  = "policy"
	ReasonBinding = "binding"
	ReasonBusy    = "busy"
)

// Recorder knows how to record the engine metrics.
type Recorder interface {
	// SubmissionRejected records a submission that didn't reach the interpreter.
	SubmissionRejected(ctx context.Context, reason string)
	// ExecutionAccepted records an execution accepted to run.
	ExecutionAccepted(ctx context.Context, trust model.TrustLevel)
	// ExecutionFinished records an accepted execution that reached a terminal status.
	ExecutionFinished(ctx context.Context, status model.ExecutionStatus, duration time.Duration, truncated bool)
}

// Noop is a Recorder that doesn't record anything.
const Noop = noop(0)

type noop int

func (noop) SubmissionRejected(context.Context, string)                                    {}
func (noop) ExecutionAccepted(context.Context, model.TrustLevel)                           {}
func (noop) ExecutionFinished(context.Context, model.ExecutionStatus, time.Duration, bool) {}
