package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/scriptrun/internal/app/doctor"
	"github.com/slok/scriptrun/internal/printer"
)

type DoctorCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewDoctorCommand returns the doctor command.
func NewDoctorCommand(rootCmd *RootCommand, app *kingpin.Application) *DoctorCommand {
	c := &DoctorCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("doctor", "Run preflight checks of the execution engine dependencies.")
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c DoctorCommand) Name() string { return c.Cmd.FullCommand() }

func (c DoctorCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	settings, err := loadSettings(ctx, c.rootCmd.settingsPath())
	if err != nil {
		return err
	}

	runner, err := newProcessRunner(settings, logger)
	if err != nil {
		return err
	}

	repo, err := newResultRepository(ctx, c.rootCmd.DBPath, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := doctor.NewService(doctor.ServiceConfig{
		Interpreter: runner,
		Repository:  repo,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	resp := svc.Run(ctx)

	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintChecks(resp.Checks); err != nil {
		return fmt.Errorf("could not print checks: %w", err)
	}

	if resp.Failed() {
		return fmt.Errorf("preflight checks failed")
	}

	return nil
}
