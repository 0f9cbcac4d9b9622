package model

import (
	"fmt"
	"regexp"
)

// ParameterType is the type of a script parameter.
type ParameterType string

const (
	ParameterTypeString  ParameterType = "string"
	ParameterTypeInteger ParameterType = "integer"
	ParameterTypeBoolean ParameterType = "boolean"
)

// Valid returns true if the parameter type is a known one.
func (p ParameterType) Valid() bool {
	switch p {
	case ParameterTypeString, ParameterTypeInteger, ParameterTypeBoolean:
		return true
	}
	return false
}

var parameterNameRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParameterSpec declares a parameter that a script accepts.
type ParameterSpec struct {
	Name     string
	Type     ParameterType
	Required bool
	// Default is used when the caller doesn't provide a value (nil means no default).
	Default any
	// Pattern is an optional regular expression that string values must fully match.
	Pattern string
}

// ScriptSource is a stored script ready to be executed.
type ScriptSource struct {
	Name       string
	Content    string
	Parameters []ParameterSpec
}

// Validate validates the script definition.
func (s ScriptSource) Validate() error {
	if s.Content == "" {
		return fmt.Errorf("script content is required: %w", ErrNotValid)
	}

	seen := map[string]bool{}
	for _, p := range s.Parameters {
		if !parameterNameRegexp.MatchString(p.Name) {
			return fmt.Errorf("invalid parameter name %q: %w", p.Name, ErrNotValid)
		}
		if seen[p.Name] {
			return fmt.Errorf("parameter %q declared more than once: %w", p.Name, ErrNotValid)
		}
		seen[p.Name] = true

		if !p.Type.Valid() {
			return fmt.Errorf("parameter %q has unknown type %q: %w", p.Name, p.Type, ErrNotValid)
		}

		if p.Pattern != "" {
			if p.Type != ParameterTypeString {
				return fmt.Errorf("parameter %q: pattern is only allowed on string parameters: %w", p.Name, ErrNotValid)
			}
			if _, err := regexp.Compile(p.Pattern); err != nil {
				return fmt.Errorf("parameter %q has invalid pattern: %w: %w", p.Name, err, ErrNotValid)
			}
		}
	}

	return nil
}
