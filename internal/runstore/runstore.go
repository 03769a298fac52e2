// Package runstore records indexing runs in PostgreSQL. A Store built without
// a client accepts every call and stores nothing, so the indexer runs the
// same with or without a database.
package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/postgres"
)

// Run status values.
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
	StatusFailed      = "failed"
)

// Run is one row of the ledger.
type Run struct {
	ID          string     `json:"id"`
	Roots       []string   `json:"roots"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Files       int64      `json:"files"`
	Terms       int64      `json:"terms"`
	Occurrences int64      `json:"occurrences"`
	Failures    int64      `json:"failures"`
	Error       string     `json:"error,omitempty"`
}

// Summary is what Finish records about a completed run.
type Summary struct {
	Files       int64
	Terms       int64
	Occurrences int64
	Failures    int64
	Interrupted bool
	Err         error
}

const schema = `
CREATE TABLE IF NOT EXISTS index_runs (
	id          TEXT PRIMARY KEY,
	roots       TEXT[] NOT NULL,
	status      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	files       BIGINT NOT NULL DEFAULT 0,
	terms       BIGINT NOT NULL DEFAULT 0,
	occurrences BIGINT NOT NULL DEFAULT 0,
	failures    BIGINT NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
)`

const startedIndex = `CREATE INDEX IF NOT EXISTS index_runs_started_at ON index_runs (started_at DESC)`

type Store struct {
	client *postgres.Client
	logger *slog.Logger
}

// New returns a Store over client. client may be nil.
func New(client *postgres.Client) *Store {
	return &Store{
		client: client,
		logger: slog.Default().With("component", "runstore"),
	}
}

// Enabled reports whether runs are persisted.
func (s *Store) Enabled() bool {
	return s != nil && s.client != nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.client.Migrate(ctx, schema, startedIndex); err != nil {
		return fmt.Errorf("ensuring index_runs schema: %w", err)
	}
	return nil
}

// Start inserts a run in the running state.
func (s *Store) Start(ctx context.Context, id string, roots []string, startedAt time.Time) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.client.DB.ExecContext(ctx,
		`INSERT INTO index_runs (id, roots, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, pq.Array(roots), StatusRunning, startedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording run start %s: %w", id, err)
	}
	return nil
}

// Finish stores the outcome of run id.
func (s *Store) Finish(ctx context.Context, id string, sum Summary) error {
	if !s.Enabled() {
		return nil
	}
	status, errText := StatusOf(sum)
	res, err := s.client.DB.ExecContext(ctx,
		`UPDATE index_runs
		    SET status = $2, finished_at = $3, files = $4, terms = $5,
		        occurrences = $6, failures = $7, error = $8
		  WHERE id = $1`,
		id, status, time.Now().UTC(), sum.Files, sum.Terms, sum.Occurrences, sum.Failures, errText,
	)
	if err != nil {
		return fmt.Errorf("recording run finish %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Warn("finished run was never started", "run_id", id)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if !s.Enabled() {
		return []Run{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT id, roots, status, started_at, finished_at, files, terms, occurrences, failures, error
		   FROM index_runs
		  ORDER BY started_at DESC
		  LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r        Run
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, pq.Array(&r.Roots), &r.Status, &r.StartedAt, &finished,
			&r.Files, &r.Terms, &r.Occurrences, &r.Failures, &r.Error); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// StatusOf maps a summary to its ledger status and error text.
func StatusOf(sum Summary) (string, string) {
	switch {
	case sum.Err != nil:
		return StatusFailed, sum.Err.Error()
	case sum.Interrupted:
		return StatusInterrupted, ""
	default:
		return StatusCompleted, ""
	}
}
