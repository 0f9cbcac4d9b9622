// Package policy decides if a script body is allowed to run at a given trust level.
//
// The policy is a composable ordered set of independent rules. Every rule
// inspects the script text (no code is executed) and reports zero or more issues;
// a script is allowed only when no rule reported an issue. Rules never short
// circuit so callers always get the complete list of issues at once.
//
// This is a best-effort filter, not a security boundary.
package policy

import (
	"fmt"
	"strings"

	"github.com/slok/scriptrun/internal/model"
)

// Rule is a single independent content check.
type Rule interface {
	// Name identifies the rule in logs and issues.
	Name() string
	// Check returns the issues found on the script, empty if none.
	Check(script string) []string
}

// RejectedError is returned when a script is rejected by the policy.
type RejectedError struct {
	Issues []string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("script rejected by policy: %s", strings.Join(e.Issues, "; "))
}

// Unwrap lets callers match the error with errors.Is(err, model.ErrValidationRejected).
func (e *RejectedError) Unwrap() error { return model.ErrValidationRejected }

// Validator applies an ordered list of rules to scripts.
type Validator struct {
	rules []Rule
}

// NewValidator returns a validator using the received rules in order.
func NewValidator(rules ...Rule) *Validator {
	return &Validator{rules: rules}
}

// NewValidatorFromSettings returns a validator with the built-in rules
// customized by the operator settings.
func NewValidatorFromSettings(s model.PolicySettings) (*Validator, error) {
	commands := s.RestrictedCommands
	if len(commands) == 0 {
		commands = DefaultRestrictedCommands
	}
	modules := s.RestrictedModules
	if len(modules) == 0 {
		modules = DefaultRestrictedModules
	}
	patterns := s.DangerousPatterns
	if len(patterns) == 0 {
		patterns = DefaultDangerousPatterns
	}

	patternRule, err := NewDangerousPatternRule(patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid dangerous patterns: %w", err)
	}

	return NewValidator(
		NewCommandDenylistRule(commands),
		NewModuleDenylistRule(modules),
		NewEncodedPayloadRule(s.EncodedPayloadMinLength),
		NewObfuscationRule(s.ObfuscationChar, s.ObfuscationThreshold),
		patternRule,
	), nil
}

// Validate returns if the script is allowed and all the issues found.
// Privileged executions bypass the content checks.
func (v *Validator) Validate(script string, trust model.TrustLevel) (allowed bool, issues []string) {
	if trust == model.TrustLevelPrivileged {
		return true, nil
	}

	for _, r := range v.rules {
		issues = append(issues, r.Check(script)...)
	}

	return len(issues) == 0, issues
}

// Check is like Validate but returns a *RejectedError when the script is not allowed.
func (v *Validator) Check(script string, trust model.TrustLevel) error {
	allowed, issues := v.Validate(script, trust)
	if !allowed {
		return &RejectedError{Issues: issues}
	}
	return nil
}
