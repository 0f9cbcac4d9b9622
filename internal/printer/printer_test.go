package printer_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/printer"
)

func resultFixture() model.ExecutionResult {
	startedAt := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	code := 3
	return model.ExecutionResult{
		ID:         "01J0000000000000000000000A",
		ScriptName: "cleanup",
		Status:     model.ExecutionStatusFailed,
		ExitCode:   &code,
		Error:      "script exited with code 3",
		Transcript: []model.OutputLine{
			{Seq: 1, Stream: model.StreamStdout, Text: "removing temp files", Time: startedAt},
			{Seq: 2, Stream: model.StreamStderr, Text: "permission denied", Time: startedAt.Add(time.Second)},
		},
		StartedAt:   startedAt,
		CompletedAt: startedAt.Add(1500 * time.Millisecond),
		Duration:    1500 * time.Millisecond,
	}
}

func TestTablePrinterPrintResult(t *testing.T) {
	tests := map[string]struct {
		result    func() model.ExecutionResult
		expLines  []string
		expAbsent []string
	}{
		"A failed execution should print its details and transcript": {
			result: resultFixture,
			expLines: []string{
				"Status:     failed",
				"Exit code:  3",
				"Error:      script exited with code 3",
				"Started:    2026-01-30 10:00:00 UTC",
				"Duration:   1.5s",
				"Output (2 lines, 36 B):",
				"  stdout removing temp files",
				"  stderr permission denied",
			},
		},

		"A rejected execution should print its issues without output": {
			result: func() model.ExecutionResult {
				r := resultFixture()
				r.Status = model.ExecutionStatusRejected
				r.ExitCode = nil
				r.Transcript = nil
				r.Issues = []string{"restricted command: Remove-Item"}
				return r
			},
			expLines:  []string{"Exit code:  -", "Issues:", "  - restricted command: Remove-Item"},
			expAbsent: []string{"Output"},
		},

		"A truncated execution should show the dropped lines": {
			result: func() model.ExecutionResult {
				r := resultFixture()
				r.Truncated = true
				r.DroppedLines = 7
				return r
			},
			expLines: []string{"Output (2 lines, 36 B, truncated with 7 lines dropped):"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			p := printer.NewTablePrinter(&buf)

			err := p.PrintResult(test.result())
			require.NoError(t, err)

			out := buf.String()
			for _, l := range test.expLines {
				assert.Contains(t, out, l)
			}
			for _, l := range test.expAbsent {
				assert.NotContains(t, out, l)
			}
		})
	}
}

func TestTablePrinterPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintHistory([]model.ExecutionResult{resultFixture()})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"ID", "SCRIPT", "STATUS", "EXIT", "DURATION", "STARTED"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"01J0000000000000000000000A", "cleanup", "failed", "3", "1.5s"}, strings.Fields(lines[1])[:5])
}

func TestTablePrinterPrintHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	require.NoError(t, p.PrintHistory(nil))
	assert.Empty(t, buf.String())
}

func TestTablePrinterPrintChecks(t *testing.T) {
	tests := map[string]struct {
		checks     []model.CheckResult
		expSummary string
	}{
		"All passing checks should print the success summary": {
			checks:     []model.CheckResult{{ID: "interpreter", Status: model.CheckStatusOK, Message: "found"}},
			expSummary: "All checks passed!",
		},

		"Failing checks should count errors and warnings": {
			checks: []model.CheckResult{
				{ID: "interpreter", Status: model.CheckStatusError, Message: "not found"},
				{ID: "results_storage", Status: model.CheckStatusWarning, Message: "empty"},
			},
			expSummary: "1 error(s), 1 warning(s)",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			p := printer.NewTablePrinter(&buf)

			require.NoError(t, p.PrintChecks(test.checks))

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			assert.Equal(t, test.expSummary, lines[len(lines)-1])
		})
	}
}

func TestTablePrinterPrintValidation(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintValidation(printer.Validation{
		Script:        "cleanup",
		Trust:         model.TrustLevelRestricted,
		Allowed:       true,
		BindingIssues: []string{`parameter "Path" is required`},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Result:  invalid")
	assert.Contains(t, out, "Parameter issues:\n  - parameter \"Path\" is required")
	assert.NotContains(t, out, "Policy issues")
}

func TestJSONPrinterPrintResult(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintResult(resultFixture())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "failed", got["status"])
	assert.Equal(t, float64(3), got["exit_code"])
	assert.Equal(t, float64(1500), got["duration_ms"])
	assert.Len(t, got["transcript"], 2)
	assert.NotContains(t, got, "issues")
}

func TestJSONPrinterPrintValidation(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintValidation(printer.Validation{Script: "ok", Trust: model.TrustLevelPrivileged, Allowed: true})
	require.NoError(t, err)

	assert.JSONEq(t, `{"script":"ok","trust":"privileged","valid":true,"issues":[],"binding_issues":[]}`, buf.String())
}

func TestPrintMessage(t *testing.T) {
	var tbuf, jbuf bytes.Buffer

	require.NoError(t, printer.NewTablePrinter(&tbuf).PrintMessage("execution cancelled"))
	require.NoError(t, printer.NewJSONPrinter(&jbuf).PrintMessage("execution cancelled"))

	assert.Equal(t, "execution cancelled", strings.TrimSpace(tbuf.String()))
	assert.JSONEq(t, `{"message":"execution cancelled"}`, jbuf.String())
}
