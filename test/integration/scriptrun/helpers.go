package scriptrun

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/slok/scriptrun/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
	// Shell is the POSIX shell used as the script interpreter.
	Shell string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		c.Binary = "scriptrun"
	}

	// go test changes the CWD to the test package directory, relative paths are ambiguous.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("SCRIPTRUN_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("scriptrun binary not found at %q: %w", c.Binary, err)
	}

	if c.Shell == "" {
		c.Shell = "/bin/sh"
	}
	if _, err := os.Stat(c.Shell); err != nil {
		return fmt.Errorf("shell not found at %q: %w", c.Shell, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "SCRIPTRUN_INTEGRATION"
		envBinary     = "SCRIPTRUN_INTEGRATION_BINARY"
		envShell      = "SCRIPTRUN_INTEGRATION_SHELL"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{
		Binary: os.Getenv(envBinary),
		Shell:  os.Getenv(envShell),
	}

	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// Env is an isolated environment for a test: its own results database and
// engine settings using the shell as the interpreter.
type Env struct {
	Config     Config
	Dir        string
	DBPath     string
	ConfigPath string
}

// NewEnv creates a new isolated test environment.
func NewEnv(t *testing.T, config Config) Env {
	t.Helper()

	dir := t.TempDir()
	e := Env{
		Config:     config,
		Dir:        dir,
		DBPath:     filepath.Join(dir, "scriptrun.db"),
		ConfigPath: filepath.Join(dir, "settings.yaml"),
	}

	settings := fmt.Sprintf(`interpreter: [%q, "-s"]
default_timeout: 10s
max_timeout: 1m
kill_grace: 1s
role_trust:
  admin: privileged
`, config.Shell)
	if err := os.WriteFile(e.ConfigPath, []byte(settings), 0o644); err != nil {
		t.Fatalf("could not write settings: %s", err)
	}

	return e
}

// WriteScript writes a script definition file and returns its path.
func (e Env) WriteScript(t *testing.T, name, definition string) string {
	t.Helper()

	p := filepath.Join(e.Dir, name+".yaml")
	if err := os.WriteFile(p, []byte(definition), 0o644); err != nil {
		t.Fatalf("could not write script: %s", err)
	}
	return p
}

// Run runs a scriptrun command in the environment.
func (e Env) Run(ctx context.Context, args ...string) (stdout, stderr []byte, err error) {
	all := append([]string{"--no-log", "--db-path", e.DBPath, "--config", e.ConfigPath}, args...)
	return testutils.RunScriptrun(ctx, nil, e.Config.Binary, all, true)
}
