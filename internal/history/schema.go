package history

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		request TEXT NOT NULL,
		status TEXT NOT NULL,
		output TEXT,
		error TEXT,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS task_outcomes (
		run_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL,
		result TEXT,
		error TEXT,
		PRIMARY KEY (run_id, task_id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_outcomes_run_id ON task_outcomes(run_id);

	CREATE TABLE IF NOT EXISTS conversation_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_conversation_turns_run_task
		ON conversation_turns(run_id, task_id, timestamp);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
