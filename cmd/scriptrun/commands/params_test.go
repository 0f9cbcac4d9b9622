package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scriptrun/internal/model"
)

func TestParseParams(t *testing.T) {
	t.Setenv("FROM_HOST", "host-value")

	tests := map[string]struct {
		specs     []string
		expValues map[string]any
		expErr    bool
	}{
		"NAME=VALUE should parse": {
			specs:     []string{"Name=Ada"},
			expValues: map[string]any{"Name": "Ada"},
		},
		"Values with equals should keep everything after the first one": {
			specs:     []string{"Query=a=b"},
			expValues: map[string]any{"Query": "a=b"},
		},
		"NAME should inherit from host": {
			specs:     []string{"FROM_HOST"},
			expValues: map[string]any{"FROM_HOST": "host-value"},
		},
		"Later entries should override earlier ones": {
			specs:     []string{"Count=1", "Count=2"},
			expValues: map[string]any{"Count": "2"},
		},
		"Missing inherited var should fail": {
			specs:  []string{"DOES_NOT_EXIST"},
			expErr: true,
		},
		"Invalid name should fail": {
			specs:  []string{"1INVALID=value"},
			expErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			values, err := parseParams(tc.specs)

			if tc.expErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expValues, values)
		})
	}
}

func TestExitError(t *testing.T) {
	code := func(c int) *int { return &c }

	tests := map[string]struct {
		result  model.ExecutionResult
		expCode int
		expNil  bool
	}{
		"A completed execution should exit cleanly": {
			result: model.ExecutionResult{Status: model.ExecutionStatusCompleted, ExitCode: code(0)},
			expNil: true,
		},
		"A failed execution should exit with the script exit code": {
			result:  model.ExecutionResult{Status: model.ExecutionStatusFailed, ExitCode: code(3)},
			expCode: 3,
		},
		"A failed execution without exit code should exit with 1": {
			result:  model.ExecutionResult{Status: model.ExecutionStatusFailed, InfrastructureError: true},
			expCode: 1,
		},
		"A rejected execution should exit with 1": {
			result:  model.ExecutionResult{Status: model.ExecutionStatusRejected},
			expCode: ExitCodeRejected,
		},
		"A timed out execution should exit with 124": {
			result:  model.ExecutionResult{Status: model.ExecutionStatusTimedOut},
			expCode: ExitCodeTimeout,
		},
		"A cancelled execution should exit with 130": {
			result:  model.ExecutionResult{Status: model.ExecutionStatusCancelled},
			expCode: ExitCodeCanceled,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := exitError(tc.result)
			if tc.expNil {
				assert.NoError(t, err)
				return
			}

			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, tc.expCode, exitErr.Code)
		})
	}
}
