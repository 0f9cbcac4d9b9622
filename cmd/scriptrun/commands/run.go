package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/slok/scriptrun/internal/app/run"
	metricsprometheus "github.com/slok/scriptrun/internal/metrics/prometheus"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/printer"
	utilsenv "github.com/slok/scriptrun/internal/utils/env"
)

// Exit codes of the run command when the script didn't exit by itself.
const (
	ExitCodeRejected = 1
	ExitCodeTimeout  = 124
	ExitCodeCanceled = 130
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	scriptPath  string
	paramSpecs  []string
	timeout     time.Duration
	role        string
	trust       string
	format      string
	metricsFile string
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run a script streaming its output.")
	c.Cmd.Arg("script", "Path to the script YAML file.").Required().StringVar(&c.scriptPath)
	c.Cmd.Flag("param", "Script parameters (NAME=VALUE or NAME from current environment). Can be repeated.").Short('p').StringsVar(&c.paramSpecs)
	c.Cmd.Flag("timeout", "Execution timeout, by default the engine default timeout.").Short('t').DurationVar(&c.timeout)
	c.Cmd.Flag("role", "Caller role, used to resolve the trust level.").Default("user").StringVar(&c.role)
	c.Cmd.Flag("trust", "Trust level, overrides the role trust level (restricted, privileged).").EnumVar(&c.trust, string(model.TrustLevelRestricted), string(model.TrustLevelPrivileged))
	c.Cmd.Flag("format", "Output format (table, json). JSON prints the full result when finished instead of streaming.").Default("table").EnumVar(&c.format, "table", "json")
	c.Cmd.Flag("metrics-file", "Write the engine Prometheus metrics to this file when finished.").StringVar(&c.metricsFile)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	values, err := parseParams(c.paramSpecs)
	if err != nil {
		return fmt.Errorf("invalid --param value: %w", err)
	}

	scriptPath, err := rootFSPath(c.scriptPath)
	if err != nil {
		return err
	}

	settings, err := loadSettings(ctx, c.rootCmd.settingsPath())
	if err != nil {
		return err
	}

	repo, err := newResultRepository(ctx, c.rootCmd.DBPath, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	var registry *prometheus.Registry
	if c.metricsFile != "" {
		registry = prometheus.NewRegistry()
	}

	eng, err := newEngine(engineDeps{settings: settings, results: repo, registry: registry, logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Shutdown(context.Background()); err != nil {
			logger.Errorf("Could not shutdown engine: %s", err)
		}
	}()

	svc, err := run.NewService(run.ServiceConfig{
		Engine:   eng,
		Scripts:  newScriptRepository(),
		Settings: settings,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	req := run.Request{
		ScriptPath: scriptPath,
		Values:     values,
		Timeout:    c.timeout,
		Role:       c.role,
		Trust:      model.TrustLevel(c.trust),
	}
	if c.format == "table" {
		req.Stdout = c.rootCmd.Stdout
		req.Stderr = c.rootCmd.Stderr
	}

	result, err := svc.Run(ctx, req)
	if err != nil {
		if errors.Is(err, model.ErrBinding) {
			return &ExitError{Code: ExitCodeRejected, Reason: err.Error()}
		}
		return fmt.Errorf("could not run script: %w", err)
	}

	if c.metricsFile != "" {
		if err := metricsprometheus.WriteTextfile(c.metricsFile, registry); err != nil {
			logger.Errorf("Could not write metrics: %s", err)
		}
	}

	if err := c.print(*result); err != nil {
		return fmt.Errorf("could not print result: %w", err)
	}

	return exitError(*result)
}

func (c RunCommand) print(result model.ExecutionResult) error {
	if c.format == "json" {
		return printer.NewJSONPrinter(c.rootCmd.Stdout).PrintResult(result)
	}

	// Output was already streamed, only the summary is missing.
	p := printer.NewTablePrinter(c.rootCmd.Stderr)
	switch {
	case result.Status == model.ExecutionStatusRejected:
		if err := p.PrintMessage("Script rejected by policy:"); err != nil {
			return err
		}
		for _, is := range result.Issues {
			fmt.Fprintf(c.rootCmd.Stderr, "  - %s\n", is)
		}
	case result.Truncated:
		return p.PrintMessage(fmt.Sprintf("Transcript truncated, %d lines not stored (execution %s)", result.DroppedLines, result.ID))
	}

	return nil
}

// exitError maps the execution result to the exit code of the command.
func exitError(result model.ExecutionResult) error {
	switch result.Status {
	case model.ExecutionStatusCompleted:
		return nil
	case model.ExecutionStatusRejected:
		return &ExitError{Code: ExitCodeRejected, Reason: "script rejected"}
	case model.ExecutionStatusTimedOut:
		return &ExitError{Code: ExitCodeTimeout, Reason: "script timed out"}
	case model.ExecutionStatusCancelled:
		return &ExitError{Code: ExitCodeCanceled, Reason: "script cancelled"}
	}

	if result.ExitCode != nil && *result.ExitCode != 0 {
		return &ExitError{Code: *result.ExitCode, Reason: result.Error}
	}
	return &ExitError{Code: 1, Reason: result.Error}
}

// parseParams parses NAME=VALUE parameter specs, all values are strings
// and the binder coerces them to the declared type.
func parseParams(specs []string) (map[string]any, error) {
	m, err := utilsenv.ParseSpecs(specs)
	if err != nil {
		return nil, err
	}

	values := make(map[string]any, len(m))
	for k, v := range m {
		values[k] = v
	}
	return values, nil
}
