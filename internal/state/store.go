// Package state records generation run history in a SQLite database: when a
// model was generated or applied, against which connection mode, and the
// content hash of every emitted table file. The history powers `tmdlgen
// list` and makes drift between runs inspectable.
package state

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded generation or apply.
type Run struct {
	ID          string
	Project     string
	Action      string
	Mode        string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// TableRecord is the emitted state of one table within a run.
type TableRecord struct {
	LogicalName string
	File        string
	ContentHash string
}

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// Store persists run history in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the history database at path and initializes the
// schema. Use ":memory:" for an in-memory database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun records the start of a generation or apply.
func (s *Store) CreateRun(project, action, mode string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Project:   project,
		Action:    action,
		Mode:      mode,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	s.logger.Debug("creating run", slog.String("id", run.ID), slog.String("action", action))

	_, err := s.db.Exec(
		`INSERT INTO runs (id, project, action, mode, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Project, run.Action, run.Mode, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run finished. errMsg is stored only for failures.
func (s *Store) CompleteRun(id string, status RunStatus, errMsg string) error {
	var errPtr *string
	if errMsg != "" {
		errPtr = &errMsg
	}
	now := time.Now().UTC()

	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, now, errPtr, id,
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// RecordTables stores the emitted table hashes of a run.
func (s *Store) RecordTables(runID string, tables []TableRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range tables {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO run_tables (run_id, logical_name, file, content_hash) VALUES (?, ?, ?, ?)`,
			runID, t.LogicalName, t.File, t.ContentHash,
		); err != nil {
			return fmt.Errorf("record table %s: %w", t.LogicalName, err)
		}
	}
	return tx.Commit()
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(id string) (*Run, error) {
	run, err := scanRun(s.db.QueryRow(
		`SELECT id, project, action, mode, status, started_at, completed_at, error
		 FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// LatestRun retrieves the most recent run of a project, or ErrRunNotFound.
func (s *Store) LatestRun(project string) (*Run, error) {
	run, err := scanRun(s.db.QueryRow(
		`SELECT id, project, action, mode, status, started_at, completed_at, error
		 FROM runs WHERE project = ? ORDER BY started_at DESC, id DESC LIMIT 1`, project))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: project %s", ErrRunNotFound, project)
	}
	return run, err
}

// ListRuns returns the runs of a project, newest first, up to limit.
func (s *Store) ListRuns(project string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, project, action, mode, status, started_at, completed_at, error
		 FROM runs WHERE project = ? ORDER BY started_at DESC, id DESC LIMIT ?`, project, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// TableRecords returns the table hashes recorded for a run, sorted by
// logical name.
func (s *Store) TableRecords(runID string) ([]TableRecord, error) {
	rows, err := s.db.Query(
		`SELECT logical_name, file, content_hash FROM run_tables
		 WHERE run_id = ? ORDER BY logical_name`, runID)
	if err != nil {
		return nil, fmt.Errorf("table records: %w", err)
	}
	defer rows.Close()

	var records []TableRecord
	for rows.Next() {
		var r TableRecord
		if err := rows.Scan(&r.LogicalName, &r.File, &r.ContentHash); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var completedAt sql.NullTime
	var errMsg sql.NullString
	if err := row.Scan(&run.ID, &run.Project, &run.Action, &run.Mode,
		&run.Status, &run.StartedAt, &completedAt, &errMsg); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	run.Error = errMsg.String
	return run, nil
}
