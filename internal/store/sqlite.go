package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/seantiz/modelrouter/internal/model"

	_ "modernc.org/sqlite"
)

const createArtifactsTable = `
CREATE TABLE IF NOT EXISTS artifacts (
    backend    TEXT PRIMARY KEY,
    params     TEXT NOT NULL,
    state      BLOB NOT NULL,
    metrics    TEXT NOT NULL,
    trained_at DATETIME NOT NULL
)`

const createRunsTable = `
CREATE TABLE IF NOT EXISTS training_runs (
    job_id       TEXT PRIMARY KEY,
    backend      TEXT NOT NULL,
    state        TEXT NOT NULL,
    error        TEXT NOT NULL DEFAULT '',
    duration_ms  INTEGER NOT NULL,
    submitted_at DATETIME NOT NULL,
    finished_at  DATETIME NOT NULL
)`

const createRunsIndex = `
CREATE INDEX IF NOT EXISTS idx_training_runs_finished_at ON training_runs(finished_at)`

// ErrNotFound is returned when no artifact exists for a backend.
var ErrNotFound = errors.New("artifact not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every pooled connection to ":memory:" would be a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createArtifactsTable, createRunsTable, createRunsIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveArtifact inserts or replaces the artifact for a.Backend.
func (s *SQLiteStore) SaveArtifact(ctx context.Context, a model.Artifact) error {
	params, err := json.Marshal(a.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	metrics, err := json.Marshal(a.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts (backend, params, state, metrics, trained_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(backend) DO UPDATE SET
			params = excluded.params,
			state = excluded.state,
			metrics = excluded.metrics,
			trained_at = excluded.trained_at`,
		a.Backend, string(params), a.State, string(metrics), a.TrainedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*model.Artifact, error) {
	a := &model.Artifact{}
	var params, metrics string
	if err := row.Scan(&a.Backend, &params, &a.State, &metrics, &a.TrainedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &a.Params); err != nil {
		return nil, fmt.Errorf("decode params of %s: %w", a.Backend, err)
	}
	if err := json.Unmarshal([]byte(metrics), &a.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics of %s: %w", a.Backend, err)
	}
	return a, nil
}

// GetArtifact retrieves the artifact of a backend.
func (s *SQLiteStore) GetArtifact(ctx context.Context, backend string) (*model.Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT backend, params, state, metrics, trained_at
		FROM artifacts WHERE backend = ?`, backend,
	)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return a, nil
}

// ListArtifacts returns every stored artifact ordered by backend.
func (s *SQLiteStore) ListArtifacts(ctx context.Context) ([]*model.Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT backend, params, state, metrics, trained_at
		FROM artifacts ORDER BY backend`,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*model.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return artifacts, nil
}

// RecordRun inserts a training history row. Recording the same job twice
// keeps the latest row.
func (s *SQLiteStore) RecordRun(ctx context.Context, run model.TrainingRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO training_runs (
			job_id, backend, state, error, duration_ms, submitted_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.JobID, run.Backend, string(run.State), run.Error, run.DurationMS,
		run.SubmittedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns a page of training runs ordered by finished_at DESC,
// along with the total number of runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*model.TrainingRun, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM training_runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT job_id, backend, state, error, duration_ms, submitted_at, finished_at
		FROM training_runs ORDER BY finished_at DESC, job_id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.TrainingRun
	for rows.Next() {
		r := &model.TrainingRun{}
		var state string
		if err := rows.Scan(
			&r.JobID, &r.Backend, &state, &r.Error, &r.DurationMS, &r.SubmittedAt, &r.FinishedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		r.State = model.JobState(state)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, total, nil
}

// GetRunStats returns aggregate statistics over all training runs.
func (s *SQLiteStore) GetRunStats(ctx context.Context) (*RunStats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	stats := &RunStats{
		CountByState:   make(map[string]int),
		CountByBackend: make(map[string]int),
	}

	var avg sql.NullFloat64
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*), AVG(duration_ms) FROM training_runs",
	).Scan(&stats.Total, &avg); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	stats.AvgDurationMS = avg.Float64

	if err := countBy(ctx, tx, "state", stats.CountByState); err != nil {
		return nil, err
	}
	if err := countBy(ctx, tx, "backend", stats.CountByBackend); err != nil {
		return nil, err
	}
	return stats, nil
}

// countBy fills into with row counts grouped by column, which must be a
// trusted column name.
func countBy(ctx context.Context, tx *sql.Tx, column string, into map[string]int) error {
	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, COUNT(*) FROM training_runs GROUP BY %s", column, column),
	)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		into[key] = n
	}
	return rows.Err()
}
