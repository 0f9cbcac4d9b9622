package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/scriptrun/internal/model"
)

// JSONPrinter prints execution information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// historyItem represents an execution in the history output (subset of fields).
type historyItem struct {
	ID         string    `json:"id"`
	ScriptName string    `json:"script_name"`
	Status     string    `json:"status"`
	ExitCode   *int      `json:"exit_code"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

type lineOutput struct {
	Seq    int       `json:"seq"`
	Stream string    `json:"stream"`
	Text   string    `json:"text"`
	Time   time.Time `json:"time"`
}

// resultOutput represents the full execution result output.
type resultOutput struct {
	ID                  string       `json:"id"`
	ScriptName          string       `json:"script_name"`
	Status              string       `json:"status"`
	ExitCode            *int         `json:"exit_code"`
	InfrastructureError bool         `json:"infrastructure_error"`
	Error               string       `json:"error,omitempty"`
	Issues              []string     `json:"issues,omitempty"`
	Transcript          []lineOutput `json:"transcript"`
	Truncated           bool         `json:"truncated"`
	DroppedLines        int          `json:"dropped_lines"`
	StartedAt           time.Time    `json:"started_at"`
	CompletedAt         time.Time    `json:"completed_at"`
	DurationMS          int64        `json:"duration_ms"`
}

type validationOutput struct {
	Script        string   `json:"script"`
	Trust         string   `json:"trust"`
	Valid         bool     `json:"valid"`
	Issues        []string `json:"issues"`
	BindingIssues []string `json:"binding_issues"`
}

type checkOutput struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintHistory prints executions in JSON format with a subset of fields.
func (j *JSONPrinter) PrintHistory(results []model.ExecutionResult) error {
	items := make([]historyItem, len(results))
	for i, r := range results {
		items[i] = historyItem{
			ID:         r.ID,
			ScriptName: r.ScriptName,
			Status:     string(r.Status),
			ExitCode:   r.ExitCode,
			StartedAt:  r.StartedAt.UTC(),
			DurationMS: r.Duration.Milliseconds(),
		}
	}

	return j.encode(items)
}

// PrintResult prints the full execution result in JSON format.
func (j *JSONPrinter) PrintResult(r model.ExecutionResult) error {
	output := resultOutput{
		ID:                  r.ID,
		ScriptName:          r.ScriptName,
		Status:              string(r.Status),
		ExitCode:            r.ExitCode,
		InfrastructureError: r.InfrastructureError,
		Error:               r.Error,
		Issues:              r.Issues,
		Transcript:          make([]lineOutput, len(r.Transcript)),
		Truncated:           r.Truncated,
		DroppedLines:        r.DroppedLines,
		StartedAt:           r.StartedAt.UTC(),
		CompletedAt:         r.CompletedAt.UTC(),
		DurationMS:          r.Duration.Milliseconds(),
	}
	for i, l := range r.Transcript {
		output.Transcript[i] = lineOutput{Seq: l.Seq, Stream: string(l.Stream), Text: l.Text, Time: l.Time.UTC()}
	}

	return j.encode(output)
}

// PrintValidation prints the validation outcome in JSON format.
func (j *JSONPrinter) PrintValidation(v Validation) error {
	output := validationOutput{
		Script:        v.Script,
		Trust:         string(v.Trust),
		Valid:         v.Allowed && len(v.BindingIssues) == 0,
		Issues:        v.Issues,
		BindingIssues: v.BindingIssues,
	}
	if output.Issues == nil {
		output.Issues = []string{}
	}
	if output.BindingIssues == nil {
		output.BindingIssues = []string{}
	}

	return j.encode(output)
}

// PrintChecks prints the preflight check results in JSON format.
func (j *JSONPrinter) PrintChecks(checks []model.CheckResult) error {
	items := make([]checkOutput, len(checks))
	for i, c := range checks {
		items[i] = checkOutput{ID: c.ID, Status: string(c.Status), Message: c.Message}
	}

	return j.encode(items)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
