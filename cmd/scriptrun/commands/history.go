package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/scriptrun/internal/app/history"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/printer"
)

type HistoryCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	statusFilter string
	limit        int
	format       string
}

// NewHistoryCommand returns the history command.
func NewHistoryCommand(rootCmd *RootCommand, app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("history", "List the finished executions, most recent first.")
	c.Cmd.Flag("status", "Filter by status (completed, failed, timed_out, cancelled, rejected).").StringVar(&c.statusFilter)
	c.Cmd.Flag("limit", "Maximum number of executions, 0 lists all.").Default("20").IntVar(&c.limit)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c HistoryCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	var statusFilter *model.ExecutionStatus
	if c.statusFilter != "" {
		status, err := model.ParseExecutionStatus(c.statusFilter)
		if err != nil {
			return fmt.Errorf("invalid status filter: %w", err)
		}
		statusFilter = &status
	}

	repo, err := newResultRepository(ctx, c.rootCmd.DBPath, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := history.NewService(history.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	results, err := svc.Run(ctx, history.Request{
		StatusFilter: statusFilter,
		Limit:        c.limit,
	})
	if err != nil {
		return fmt.Errorf("could not list executions: %w", err)
	}

	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintHistory(results); err != nil {
		return fmt.Errorf("could not print history: %w", err)
	}

	return nil
}
