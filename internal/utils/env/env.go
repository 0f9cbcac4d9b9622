package env

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var envKeyRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseSpecs parses KEY=VALUE specs, a bare KEY takes the value from the current environment.
func ParseSpecs(specs []string) (map[string]string, error) {
	env := make(map[string]string, len(specs))

	for _, spec := range specs {
		if spec == "" {
			return nil, fmt.Errorf("spec cannot be empty")
		}

		if key, value, ok := strings.Cut(spec, "="); ok {
			if !IsValidKey(key) {
				return nil, fmt.Errorf("invalid key %q", key)
			}

			env[key] = value
			continue
		}

		if !IsValidKey(spec) {
			return nil, fmt.Errorf("invalid key %q", spec)
		}

		value, ok := os.LookupEnv(spec)
		if !ok {
			return nil, fmt.Errorf("environment variable %q is not set", spec)
		}

		env[spec] = value
	}

	return env, nil
}

// Passthrough returns the KEY=VALUE entries of the current environment for the allowed keys.
// Keys not set are skipped.
func Passthrough(keys []string) []string {
	var env []string
	for _, k := range keys {
		if !IsValidKey(k) {
			continue
		}
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	return env
}

// IsValidKey returns true if k can be used as an environment variable name.
func IsValidKey(k string) bool {
	return envKeyRegexp.MatchString(k)
}
