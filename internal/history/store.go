// Package history records finished runs, per-task outcomes, and model
// conversation turns in SQLite. It is an audit log: nothing here feeds back
// into scheduling, and a run is never resumed from it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/maestro-go/maestro/internal/scheduler"
)

// Run statuses stored in the runs table.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one recorded orchestration run.
type Run struct {
	ID         string
	Request    string
	Status     string
	Output     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Turn is a single message exchanged with the model for a task.
type Turn struct {
	TaskID    string
	Role      string // "user" or "assistant"
	Content   string
	Timestamp time.Time
}

// Store is a SQLite-backed history log.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the history database at the given path.
// Creates parent directories if needed and enables WAL mode.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records a new run in the running state.
func (s *Store) StartRun(ctx context.Context, runID, request string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, request, status) VALUES (?, ?, ?)`,
		runID, request, RunStatusRunning)
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

// FinishRun records a run's terminal state. runErr may be nil.
func (s *Store) FinishRun(ctx context.Context, runID, status, output string, runErr error) error {
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, output = ?, error = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, output, errText, runID)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	return nil
}

// SaveTaskOutcome records a task's terminal state for a run.
func (s *Store) SaveTaskOutcome(ctx context.Context, runID string, task *scheduler.Task) error {
	errText := ""
	if task.Err != nil {
		errText = task.Err.Error()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_outcomes (run_id, task_id, description, status, result, error)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, task_id) DO UPDATE SET status = excluded.status,
		 result = excluded.result, error = excluded.error`,
		runID, task.ID, task.Description, task.Status.String(), task.Result, errText)
	if err != nil {
		return fmt.Errorf("recording task outcome: %w", err)
	}
	return nil
}

// SaveTurn appends one conversation turn for a task.
func (s *Store) SaveTurn(ctx context.Context, runID, taskID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (run_id, task_id, role, content) VALUES (?, ?, ?, ?)`,
		runID, taskID, role, content)
	if err != nil {
		return fmt.Errorf("recording conversation turn: %w", err)
	}
	return nil
}

// GetRun returns a recorded run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, request, status, COALESCE(output, ''), COALESCE(error, ''),
		        started_at, COALESCE(finished_at, started_at)
		 FROM runs WHERE id = ?`, runID)

	var r Run
	if err := row.Scan(&r.ID, &r.Request, &r.Status, &r.Output, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %q not found", runID)
		}
		return nil, fmt.Errorf("loading run: %w", err)
	}
	return &r, nil
}

// ListRuns returns all recorded runs, most recent first.
func (s *Store) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request, status, COALESCE(output, ''), COALESCE(error, ''),
		        started_at, COALESCE(finished_at, started_at)
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Request, &r.Status, &r.Output, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// Turns returns the conversation history for one task within a run, oldest first.
func (s *Store) Turns(ctx context.Context, runID, taskID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, role, content, timestamp
		 FROM conversation_turns WHERE run_id = ? AND task_id = ?
		 ORDER BY timestamp ASC, id ASC`, runID, taskID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.TaskID, &t.Role, &t.Content, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
