// Package ledger keeps a record of batch runs and of the outcome of every record, so
// that failed and skipped records can be retried.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	RunRunning     = "running"
	RunCompleted   = "completed"
	RunInterrupted = "interrupted"
)

// Run is one invocation of the batch tool.
type Run struct {
	ID         string     `db:"id"`
	ParentID   string     `db:"parent_id"` // run being retried, if any
	Mode       string     `db:"mode"`
	Input      string     `db:"input"`
	Output     string     `db:"output"`
	MaxDepth   int        `db:"max_depth"`
	Status     string     `db:"status"`
	Processed  int64      `db:"processed"`
	Skipped    int64      `db:"skipped"`
	Failed     int64      `db:"failed"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
}

// Outcome is the stored result of one record.
type Outcome struct {
	RunID     string    `db:"run_id"`
	RecordID  string    `db:"record_id"`
	Outcome   string    `db:"outcome"`
	Detail    string    `db:"detail"`
	Depth     int       `db:"depth"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Store is a SQLite backed ledger. It is safe for concurrent use.
type Store struct {
	db *sqlx.DB
}

// NewRunID returns a new time ordered run ID.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Open opens (or creates) the ledger at dbPath, enables WAL mode, and runs any
// pending schema migrations. ":memory:" gives a private in-memory ledger.
func Open(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// Single connection: an in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// BeginRun stores a new run in the running state.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	const query = `
		INSERT INTO runs (id, parent_id, mode, input, output, max_depth, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.ParentID, run.Mode, run.Input, run.Output, run.MaxDepth,
		RunRunning, run.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// RecordOutcome stores the outcome of one record, replacing an earlier one of the same run.
func (s *Store) RecordOutcome(ctx context.Context, runID, recordID, outcome, detail string, depth int) error {
	const query = `
		INSERT OR REPLACE INTO records (run_id, record_id, outcome, detail, depth, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, runID, recordID, outcome, detail, depth, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording outcome of %s: %w", recordID, err)
	}
	return nil
}

// FinishRun stores the final counts and status of a run.
func (s *Store) FinishRun(ctx context.Context, runID, status string, processed, skipped, failed int64) error {
	const query = `
		UPDATE runs SET status = ?, processed = ?, skipped = ?, failed = ?, finished_at = ?
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, status, processed, skipped, failed, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("finishing run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	err := s.db.GetContext(ctx, &run, "SELECT * FROM runs WHERE id = ?", runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", runID, err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := s.db.SelectContext(ctx, &runs, "SELECT * FROM runs ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Outcomes returns the outcomes of a run ordered by record ID.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	var out []Outcome
	err := s.db.SelectContext(ctx, &out, "SELECT * FROM records WHERE run_id = ? ORDER BY record_id", runID)
	if err != nil {
		return nil, fmt.Errorf("listing outcomes of run %s: %w", runID, err)
	}
	return out, nil
}

// RetryIDs returns the IDs of records of a run whose outcome is one of outcomes.
func (s *Store) RetryIDs(ctx context.Context, runID string, outcomes ...string) ([]string, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	if len(outcomes) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		"SELECT record_id FROM records WHERE run_id = ? AND outcome IN (?) ORDER BY record_id",
		runID, outcomes,
	)
	if err != nil {
		return nil, fmt.Errorf("building retry query: %w", err)
	}
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing records to retry: %w", err)
	}
	return ids, nil
}
