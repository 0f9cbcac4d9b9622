package model

// CheckStatus is the status of a doctor preflight check.
type CheckStatus string

const (
	CheckStatusOK      CheckStatus = "ok"
	CheckStatusWarning CheckStatus = "warning"
	CheckStatusError   CheckStatus = "error"
)

// CheckResult is the result of a single preflight check.
type CheckResult struct {
	ID      string // Check identifier (e.g. "interpreter").
	Message string
	Status  CheckStatus
}

// CountChecks counts the check results by status.
func CountChecks(results []CheckResult) (ok, warnings, errors int) {
	for _, r := range results {
		switch r.Status {
		case CheckStatusOK:
			ok++
		case CheckStatusWarning:
			warnings++
		case CheckStatusError:
			errors++
		}
	}
	return ok, warnings, errors
}
