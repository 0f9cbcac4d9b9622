package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scriptrun/internal/engine"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/process"
)

func TestAssemble(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	lines := []model.OutputLine{{Seq: 1, Stream: model.StreamStdout, Text: "hi"}}

	tests := map[string]struct {
		record    engine.Record
		expErr    error
		expResult model.ExecutionResult
	}{
		"A completed outcome should have the exit code and the transcript.": {
			record: engine.Record{
				ID:         "id",
				ScriptName: "s",
				Outcome:    process.Outcome{Status: model.ExecutionStatusCompleted, ExitCode: intPtr(0), StartedAt: t0, CompletedAt: t0.Add(time.Second)},
				Lines:      lines,
			},
			expResult: model.ExecutionResult{
				ID:          "id",
				ScriptName:  "s",
				Status:      model.ExecutionStatusCompleted,
				ExitCode:    intPtr(0),
				Transcript:  lines,
				StartedAt:   t0,
				CompletedAt: t0.Add(time.Second),
				Duration:    time.Second,
			},
		},

		"A failed outcome with exit code should describe the code.": {
			record: engine.Record{
				ID:      "id",
				Outcome: process.Outcome{Status: model.ExecutionStatusFailed, ExitCode: intPtr(4), StartedAt: t0, CompletedAt: t0},
			},
			expResult: model.ExecutionResult{
				ID:          "id",
				Status:      model.ExecutionStatusFailed,
				ExitCode:    intPtr(4),
				Error:       "script exited with code 4",
				StartedAt:   t0,
				CompletedAt: t0,
			},
		},

		"A timed out outcome should never have an exit code.": {
			record: engine.Record{
				ID:        "id",
				Outcome:   process.Outcome{Status: model.ExecutionStatusTimedOut, ExitCode: intPtr(137), Note: "execution timeout after 1s", StartedAt: t0, CompletedAt: t0.Add(time.Second)},
				Lines:     lines,
				Truncated: true,
				Dropped:   3,
			},
			expResult: model.ExecutionResult{
				ID:           "id",
				Status:       model.ExecutionStatusTimedOut,
				Error:        "execution timeout after 1s",
				Transcript:   lines,
				Truncated:    true,
				DroppedLines: 3,
				StartedAt:    t0,
				CompletedAt:  t0.Add(time.Second),
				Duration:     time.Second,
			},
		},

		"A rejected outcome should never have a transcript.": {
			record: engine.Record{
				ID:      "id",
				Outcome: process.Outcome{Status: model.ExecutionStatusRejected, StartedAt: t0, CompletedAt: t0},
				Issues:  []string{"restricted command detected: Remove-Item"},
				Lines:   lines,
			},
			expResult: model.ExecutionResult{
				ID:          "id",
				Status:      model.ExecutionStatusRejected,
				Issues:      []string{"restricted command detected: Remove-Item"},
				Error:       "script rejected by policy: restricted command detected: Remove-Item",
				StartedAt:   t0,
				CompletedAt: t0,
			},
		},

		"A non terminal outcome should fail.": {
			record: engine.Record{ID: "id", Outcome: process.Outcome{Status: model.ExecutionStatusRunning}},
			expErr: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			res, err := engine.Assemble(test.record)
			if test.expErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, test.expErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expResult, res)
		})
	}
}

func intPtr(i int) *int { return &i }
