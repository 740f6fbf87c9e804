// Package store provides SQLite-backed run history for videobatch.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run is one recorded pipeline run over a single input
type Run struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id,omitempty"`
	Name        string    `json:"name"` // task or job name
	Kind        string    `json:"kind"`
	Input       string    `json:"input,omitempty"`
	Output      string    `json:"output,omitempty"`
	Success     bool      `json:"success"`
	HasError    bool      `json:"has_error"`
	StepsRun    int       `json:"steps_run"`
	StepsFailed int       `json:"steps_failed"`
	Error       string    `json:"error,omitempty"`
	Messages    []string  `json:"messages,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
}

// Duration returns how long the run took
func (r *Run) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// ListOptions filters List
type ListOptions struct {
	Name       string
	FailedOnly bool
	Limit      int
}

// Store provides access to the run history database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		input TEXT,
		output TEXT,
		success INTEGER NOT NULL,
		has_error INTEGER NOT NULL,
		steps_run INTEGER NOT NULL DEFAULT 0,
		steps_failed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		messages TEXT,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_name ON runs(name);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record inserts a run. An empty ID is replaced by a new UUID.
func (s *Store) Record(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Name == "" {
		return fmt.Errorf("run name is required")
	}

	messages, err := json.Marshal(run.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, session_id, name, kind, input, output, success, has_error, steps_run, steps_failed, error, messages, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SessionID, run.Name, run.Kind, run.Input, run.Output,
		boolInt(run.Success), boolInt(run.HasError), run.StepsRun, run.StepsFailed,
		run.Error, string(messages), run.StartedAt.UnixNano(), run.EndedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const runColumns = `id, session_id, name, kind, input, output, success, has_error, steps_run, steps_failed, error, messages, started_at, ended_at`

// Get retrieves a run by ID. Returns nil, nil when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return run, nil
}

// List returns runs, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []interface{}

	if opts.Name != "" {
		query += ` AND name = ?`
		args = append(args, opts.Name)
	}
	if opts.FailedOnly {
		query += ` AND success = 0`
	}
	query += ` ORDER BY started_at DESC, rowid DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Prune deletes runs that started before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run                      Run
		sessionID, input, output sql.NullString
		errText, messages        sql.NullString
		success, hasError        int
		startedAt, endedAt       int64
	)

	err := sc.Scan(&run.ID, &sessionID, &run.Name, &run.Kind, &input, &output,
		&success, &hasError, &run.StepsRun, &run.StepsFailed, &errText, &messages,
		&startedAt, &endedAt)
	if err != nil {
		return nil, err
	}

	run.SessionID = sessionID.String
	run.Input = input.String
	run.Output = output.String
	run.Error = errText.String
	run.Success = success != 0
	run.HasError = hasError != 0
	run.StartedAt = time.Unix(0, startedAt)
	run.EndedAt = time.Unix(0, endedAt)

	if messages.Valid && messages.String != "" {
		if err := json.Unmarshal([]byte(messages.String), &run.Messages); err != nil {
			return nil, fmt.Errorf("unmarshal messages: %w", err)
		}
	}
	return &run, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
