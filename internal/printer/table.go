package printer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/slok/scriptrun/internal/model"
)

// TablePrinter prints execution information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintHistory prints executions in a table format.
func (t *TablePrinter) PrintHistory(results []model.ExecutionResult) error {
	if len(results) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tSCRIPT\tSTATUS\tEXIT\tDURATION\tSTARTED")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.ScriptName,
			r.Status,
			exitCode(r.ExitCode),
			r.Duration.Round(time.Millisecond),
			TimeAgo(r.StartedAt),
		)
	}

	return nil
}

// PrintResult prints the detailed execution result with its transcript.
func (t *TablePrinter) PrintResult(r model.ExecutionResult) error {
	fmt.Fprintf(t.writer, "ID:         %s\n", r.ID)
	fmt.Fprintf(t.writer, "Script:     %s\n", r.ScriptName)
	fmt.Fprintf(t.writer, "Status:     %s\n", r.Status)
	fmt.Fprintf(t.writer, "Exit code:  %s\n", exitCode(r.ExitCode))
	if r.Error != "" {
		fmt.Fprintf(t.writer, "Error:      %s\n", r.Error)
	}
	if r.InfrastructureError {
		fmt.Fprintf(t.writer, "Cause:      infrastructure\n")
	}
	fmt.Fprintf(t.writer, "Started:    %s\n", FormatTimestamp(r.StartedAt))
	if !r.CompletedAt.IsZero() {
		fmt.Fprintf(t.writer, "Completed:  %s\n", FormatTimestamp(r.CompletedAt))
	}
	fmt.Fprintf(t.writer, "Duration:   %s\n", r.Duration.Round(time.Millisecond))

	if len(r.Issues) > 0 {
		fmt.Fprintf(t.writer, "\nIssues:\n")
		for _, is := range r.Issues {
			fmt.Fprintf(t.writer, "  - %s\n", is)
		}
	}

	if r.Status == model.ExecutionStatusRejected {
		return nil
	}

	output := fmt.Sprintf("%d lines, %s", len(r.Transcript), FormatBytes(transcriptBytes(r.Transcript)))
	if r.Truncated {
		output += fmt.Sprintf(", truncated with %d lines dropped", r.DroppedLines)
	}
	fmt.Fprintf(t.writer, "\nOutput (%s):\n", output)
	for _, l := range r.Transcript {
		fmt.Fprintf(t.writer, "  %-6s %s\n", l.Stream, l.Text)
	}

	return nil
}

// PrintValidation prints the validation outcome.
func (t *TablePrinter) PrintValidation(v Validation) error {
	verdict := "valid"
	if !v.Allowed || len(v.BindingIssues) > 0 {
		verdict = "invalid"
	}
	fmt.Fprintf(t.writer, "Script:  %s\n", v.Script)
	fmt.Fprintf(t.writer, "Trust:   %s\n", v.Trust)
	fmt.Fprintf(t.writer, "Result:  %s\n", verdict)

	printList(t.writer, "Policy issues", v.Issues)
	printList(t.writer, "Parameter issues", v.BindingIssues)

	return nil
}

// PrintChecks prints the preflight check results with a summary.
func (t *TablePrinter) PrintChecks(checks []model.CheckResult) error {
	for _, c := range checks {
		fmt.Fprintf(t.writer, "  %s %-20s %s\n", statusIcon(c.Status), c.ID, c.Message)
	}

	fmt.Fprintln(t.writer)
	_, warnings, errs := model.CountChecks(checks)
	if warnings == 0 && errs == 0 {
		fmt.Fprintln(t.writer, "All checks passed!")
		return nil
	}

	var summary []string
	if errs > 0 {
		summary = append(summary, fmt.Sprintf("%d error(s)", errs))
	}
	if warnings > 0 {
		summary = append(summary, fmt.Sprintf("%d warning(s)", warnings))
	}
	fmt.Fprintln(t.writer, strings.Join(summary, ", "))

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}

func exitCode(code *int) string {
	if code == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *code)
}

func statusIcon(status model.CheckStatus) string {
	switch status {
	case model.CheckStatusOK:
		return "OK"
	case model.CheckStatusWarning:
		return "!!"
	case model.CheckStatusError:
		return "XX"
	default:
		return "??"
	}
}
