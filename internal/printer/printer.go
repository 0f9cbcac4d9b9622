package printer

import "github.com/slok/scriptrun/internal/model"

// Validation is the outcome of validating a script without running it.
type Validation struct {
	Script        string
	Trust         model.TrustLevel
	Allowed       bool
	Issues        []string
	BindingIssues []string
}

// Printer knows how to print execution information in different formats.
type Printer interface {
	PrintHistory(results []model.ExecutionResult) error
	PrintResult(result model.ExecutionResult) error
	PrintValidation(v Validation) error
	PrintChecks(checks []model.CheckResult) error
	PrintMessage(msg string) error
}

func transcriptBytes(lines []model.OutputLine) int64 {
	var n int64
	for _, l := range lines {
		n += int64(len(l.Text))
	}
	return n
}
