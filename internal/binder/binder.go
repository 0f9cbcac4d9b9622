// Package binder binds caller supplied values to the parameters a script declares.
//
// Bound values never touch the script text, they are handed to the process
// through namespaced environment variables.
package binder

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/slok/scriptrun/internal/conventions"
	"github.com/slok/scriptrun/internal/model"
)

// DefaultEnvPrefix is the prefix of the environment variables that carry the parameters.
const DefaultEnvPrefix = conventions.EnvParamPrefix

// ErrorKind is the kind of a binding problem.
type ErrorKind string

const (
	KindMissingParameter ErrorKind = "MissingParameter"
	KindTypeMismatch     ErrorKind = "TypeMismatch"
	KindPatternMismatch  ErrorKind = "PatternMismatch"
	KindInvalidSpec      ErrorKind = "InvalidSpec"
)

// ParameterError is a binding problem on a single parameter.
type ParameterError struct {
	Parameter string
	Kind      ErrorKind
	Reason    string
}

func (e *ParameterError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: parameter %q", e.Kind, e.Parameter)
	}
	return fmt.Sprintf("%s: parameter %q: %s", e.Kind, e.Parameter, e.Reason)
}

// Unwrap lets callers match the error with errors.Is(err, model.ErrBinding).
func (e *ParameterError) Unwrap() error { return model.ErrBinding }

// BoundParameter is a parameter with its final textual value.
type BoundParameter struct {
	Name  string
	Type  model.ParameterType
	Value string
}

// BoundArgs are the bound parameters, in the order the script declares them.
type BoundArgs struct {
	Parameters []BoundParameter
}

// Env returns the parameters as environment variables using the received prefix,
// if empty DefaultEnvPrefix is used.
func (b BoundArgs) Env(prefix string) []string {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	env := make([]string, 0, len(b.Parameters))
	for _, p := range b.Parameters {
		env = append(env, prefix+p.Name+"="+p.Value)
	}
	return env
}

// Map returns the bound values by parameter name.
func (b BoundArgs) Map() map[string]string {
	m := make(map[string]string, len(b.Parameters))
	for _, p := range b.Parameters {
		m[p.Name] = p.Value
	}
	return m
}

var parameterNameRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Bind binds the values to the spec. Values with keys not present in the spec are ignored.
// All the problems are returned joined, each of them is a *ParameterError.
func Bind(spec []model.ParameterSpec, values map[string]any) (BoundArgs, error) {
	var (
		bound BoundArgs
		errs  []error
	)

	for _, p := range spec {
		if !parameterNameRegexp.MatchString(p.Name) {
			errs = append(errs, &ParameterError{Parameter: p.Name, Kind: KindInvalidSpec, Reason: "name is not a valid identifier"})
			continue
		}

		raw, ok := values[p.Name]
		if ok && raw == nil {
			ok = false
		}
		if !ok {
			switch {
			case p.Default != nil:
				raw = p.Default
			case p.Required:
				errs = append(errs, &ParameterError{Parameter: p.Name, Kind: KindMissingParameter, Reason: "required parameter is missing"})
				continue
			default:
				continue
			}
		}

		v, err := coerce(p, raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		bound.Parameters = append(bound.Parameters, BoundParameter{Name: p.Name, Type: p.Type, Value: v})
	}

	if len(errs) > 0 {
		return BoundArgs{}, errors.Join(errs...)
	}

	return bound, nil
}

func coerce(p model.ParameterSpec, raw any) (string, error) {
	switch p.Type {
	case model.ParameterTypeString, "":
		s, ok := raw.(string)
		if !ok {
			return "", &ParameterError{Parameter: p.Name, Kind: KindTypeMismatch, Reason: fmt.Sprintf("expected string, got %T", raw)}
		}
		if p.Pattern != "" {
			re, err := regexp.Compile(`^(?:` + p.Pattern + `)$`)
			if err != nil {
				return "", &ParameterError{Parameter: p.Name, Kind: KindInvalidSpec, Reason: fmt.Sprintf("invalid pattern: %s", err)}
			}
			if !re.MatchString(s) {
				return "", &ParameterError{Parameter: p.Name, Kind: KindPatternMismatch, Reason: fmt.Sprintf("value does not match pattern %q", p.Pattern)}
			}
		}
		return s, nil

	case model.ParameterTypeInteger:
		i, ok := toInteger(raw)
		if !ok {
			return "", &ParameterError{Parameter: p.Name, Kind: KindTypeMismatch, Reason: fmt.Sprintf("expected integer, got %v", raw)}
		}
		return strconv.FormatInt(i, 10), nil

	case model.ParameterTypeBoolean:
		b, ok := toBoolean(raw)
		if !ok {
			return "", &ParameterError{Parameter: p.Name, Kind: KindTypeMismatch, Reason: fmt.Sprintf("expected boolean, got %v", raw)}
		}
		return strconv.FormatBool(b), nil
	}

	return "", &ParameterError{Parameter: p.Name, Kind: KindInvalidSpec, Reason: fmt.Sprintf("unknown type %q", p.Type)}
}

func toInteger(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		// JSON decoded numbers. float64(math.MaxInt64) rounds up to 2^63, so the bounds are exact.
		if v != math.Trunc(v) || math.IsInf(v, 0) || v >= 0x1p63 || v < -0x1p63 {
			return 0, false
		}
		return int64(v), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func toBoolean(raw any) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1", "on":
			return true, true
		case "false", "no", "0", "off":
			return false, true
		}
	}
	return false, false
}
