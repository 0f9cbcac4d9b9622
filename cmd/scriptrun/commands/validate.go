package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/scriptrun/internal/app/validate"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/policy"
	"github.com/slok/scriptrun/internal/printer"
)

type ValidateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	scriptPath string
	paramSpecs []string
	role       string
	trust      string
	format     string
}

// NewValidateCommand returns the validate command.
func NewValidateCommand(rootCmd *RootCommand, app *kingpin.Application) *ValidateCommand {
	c := &ValidateCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("validate", "Check a script against the policy without running it.")
	c.Cmd.Arg("script", "Path to the script YAML file.").Required().StringVar(&c.scriptPath)
	c.Cmd.Flag("param", "Check the parameter binding with these values (NAME=VALUE). Can be repeated.").Short('p').StringsVar(&c.paramSpecs)
	c.Cmd.Flag("role", "Caller role, used to resolve the trust level.").Default("user").StringVar(&c.role)
	c.Cmd.Flag("trust", "Trust level, overrides the role trust level (restricted, privileged).").EnumVar(&c.trust, string(model.TrustLevelRestricted), string(model.TrustLevelPrivileged))
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ValidateCommand) Name() string { return c.Cmd.FullCommand() }

func (c ValidateCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	var values map[string]any
	if len(c.paramSpecs) > 0 {
		v, err := parseParams(c.paramSpecs)
		if err != nil {
			return fmt.Errorf("invalid --param value: %w", err)
		}
		values = v
	}

	scriptPath, err := rootFSPath(c.scriptPath)
	if err != nil {
		return err
	}

	settings, err := loadSettings(ctx, c.rootCmd.settingsPath())
	if err != nil {
		return err
	}

	validator, err := policy.NewValidatorFromSettings(settings.Policy)
	if err != nil {
		return fmt.Errorf("could not create policy validator: %w", err)
	}

	svc, err := validate.NewService(validate.ServiceConfig{
		Scripts:   newScriptRepository(),
		Validator: validator,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	trust := model.TrustLevel(c.trust)
	if trust == "" {
		trust = settings.TrustForRole(c.role)
	}

	resp, err := svc.Run(ctx, validate.Request{
		ScriptPath: scriptPath,
		Trust:      trust,
		Values:     values,
	})
	if err != nil {
		return fmt.Errorf("could not validate script: %w", err)
	}

	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	err = p.PrintValidation(printer.Validation{
		Script:        resp.Script.Name,
		Trust:         resp.Trust,
		Allowed:       resp.Allowed,
		Issues:        resp.Issues,
		BindingIssues: resp.BindingIssues,
	})
	if err != nil {
		return fmt.Errorf("could not print validation: %w", err)
	}

	if !resp.Valid() {
		return &ExitError{Code: ExitCodeRejected, Reason: "script is not valid"}
	}

	return nil
}
