package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/scriptrun/internal/log"
	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/storage"
	"github.com/slok/scriptrun/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.ResultRepository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	version, err := migrations.Up(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s (schema v%d)", cfg.DBPath, version)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// SaveResult stores an execution result with its transcript.
func (r *Repository) SaveResult(ctx context.Context, res model.ExecutionResult) (err error) {
	if res.ID == "" {
		return fmt.Errorf("result id is required: %w", model.ErrNotValid)
	}

	issues, err := json.Marshal(nonNil(res.Issues))
	if err != nil {
		return fmt.Errorf("could not encode issues: %w", err)
	}

	var exitCode *int64
	if res.ExitCode != nil {
		c := int64(*res.ExitCode)
		exitCode = &c
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO executions (
			id, script_name, status,
			exit_code, infrastructure_error, error, issues,
			truncated, dropped_lines,
			started_at, completed_at, duration_ns
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(
		ctx,
		query,
		res.ID,
		res.ScriptName,
		res.Status,
		exitCode,
		res.InfrastructureError,
		res.Error,
		string(issues),
		res.Truncated,
		res.DroppedLines,
		unixNano(res.StartedAt),
		unixNano(res.CompletedAt),
		int64(res.Duration),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: executions.") {
			return fmt.Errorf("result %s: %w", res.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert result: %w", err)
	}

	if len(res.Transcript) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO execution_lines (execution_id, seq, stream, text, time) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("could not prepare line insert: %w", err)
		}
		defer stmt.Close()

		for _, l := range res.Transcript {
			if _, err := stmt.ExecContext(ctx, res.ID, l.Seq, l.Stream, l.Text, unixNano(l.Time)); err != nil {
				return fmt.Errorf("could not insert line %d: %w", l.Seq, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Saved result in repository: %s", res.ID)
	return nil
}

const selectExecution = `
	SELECT
		id, script_name, status,
		exit_code, infrastructure_error, error, issues,
		truncated, dropped_lines,
		started_at, completed_at, duration_ns
	FROM executions
`

// GetResult retrieves an execution result by ID with its transcript.
func (r *Repository) GetResult(ctx context.Context, id string) (*model.ExecutionResult, error) {
	row := r.db.QueryRowContext(ctx, selectExecution+` WHERE id = ?`, id)
	res, err := r.scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("result %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query result: %w", err)
	}

	lines, err := r.lines(ctx, id)
	if err != nil {
		return nil, err
	}
	res.Transcript = lines

	return &res, nil
}

// ListResults returns the results without transcripts, most recent first.
func (r *Repository) ListResults(ctx context.Context, opts storage.ListResultsOpts) ([]model.ExecutionResult, error) {
	query := selectExecution
	var args []any
	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, opts.Status)
	}
	query += ` ORDER BY started_at DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query results: %w", err)
	}
	defer rows.Close()

	var results []model.ExecutionResult
	for rows.Next() {
		res, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		results = append(results, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

func (r *Repository) lines(ctx context.Context, id string) ([]model.OutputLine, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT seq, stream, text, time FROM execution_lines WHERE execution_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("could not query lines: %w", err)
	}
	defer rows.Close()

	var lines []model.OutputLine
	for rows.Next() {
		var l model.OutputLine
		var t int64
		if err := rows.Scan(&l.Seq, &l.Stream, &l.Text, &t); err != nil {
			return nil, fmt.Errorf("could not scan line: %w", err)
		}
		l.Time = timeFromUnixNano(t)
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lines: %w", err)
	}

	return lines, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanRow(s scanner) (model.ExecutionResult, error) {
	var res model.ExecutionResult
	var exitCode sql.NullInt64
	var issues string
	var startedAt, completedAt, duration int64

	err := s.Scan(
		&res.ID,
		&res.ScriptName,
		&res.Status,
		&exitCode,
		&res.InfrastructureError,
		&res.Error,
		&issues,
		&res.Truncated,
		&res.DroppedLines,
		&startedAt,
		&completedAt,
		&duration,
	)
	if err != nil {
		return model.ExecutionResult{}, err
	}

	if exitCode.Valid {
		c := int(exitCode.Int64)
		res.ExitCode = &c
	}
	if err := json.Unmarshal([]byte(issues), &res.Issues); err != nil {
		return model.ExecutionResult{}, fmt.Errorf("could not decode issues: %w", err)
	}
	if len(res.Issues) == 0 {
		res.Issues = nil
	}
	res.StartedAt = timeFromUnixNano(startedAt)
	res.CompletedAt = timeFromUnixNano(completedAt)
	res.Duration = time.Duration(duration)

	return res, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func timeFromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
