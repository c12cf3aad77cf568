package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/maestro-go/maestro/internal/scheduler"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.StartRun(ctx, "run-1", "summarize the report"); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != RunStatusRunning {
		t.Errorf("status = %q, want %q", run.Status, RunStatusRunning)
	}
	if run.Request != "summarize the report" {
		t.Errorf("request = %q", run.Request)
	}

	if err := store.FinishRun(ctx, "run-1", RunStatusCompleted, "the summary", nil); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	run, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun after finish failed: %v", err)
	}
	if run.Status != RunStatusCompleted {
		t.Errorf("status = %q, want %q", run.Status, RunStatusCompleted)
	}
	if run.Output != "the summary" || run.Error != "" {
		t.Errorf("run = %+v", run)
	}
}

func TestFinishRunRecordsError(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.StartRun(ctx, "run-2", "req"); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if err := store.FinishRun(ctx, "run-2", RunStatusFailed, "", errors.New("task analyze failed")); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	run, err := store.GetRun(ctx, "run-2")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != RunStatusFailed || run.Error != "task analyze failed" {
		t.Errorf("run = %+v", run)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetRun(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestListRuns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"run-a", "run-b", "run-c"} {
		if err := store.StartRun(ctx, id, "request "+id); err != nil {
			t.Fatalf("StartRun(%s) failed: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	seen := make(map[string]bool, len(runs))
	for _, r := range runs {
		seen[r.ID] = true
	}
	for _, id := range []string{"run-a", "run-b", "run-c"} {
		if !seen[id] {
			t.Errorf("run %q missing from listing", id)
		}
	}
}

func TestSaveTaskOutcomeUpsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.StartRun(ctx, "run-3", "req"); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	task := &scheduler.Task{ID: "gather", Description: "gather data", Status: scheduler.TaskInProgress}
	if err := store.SaveTaskOutcome(ctx, "run-3", task); err != nil {
		t.Fatalf("SaveTaskOutcome failed: %v", err)
	}

	// Saving the same task again updates in place rather than duplicating.
	task.Status = scheduler.TaskCompleted
	task.Result = "42 rows"
	if err := store.SaveTaskOutcome(ctx, "run-3", task); err != nil {
		t.Fatalf("SaveTaskOutcome upsert failed: %v", err)
	}

	var count int
	var status, result string
	row := store.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(status), MAX(result) FROM task_outcomes WHERE run_id = ? AND task_id = ?`,
		"run-3", "gather")
	if err := row.Scan(&count, &status, &result); err != nil {
		t.Fatalf("scanning outcome: %v", err)
	}
	if count != 1 {
		t.Errorf("outcome rows = %d, want 1", count)
	}
	if status != "completed" || result != "42 rows" {
		t.Errorf("outcome = %s / %q", status, result)
	}
}

func TestTurnsOrderedOldestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.StartRun(ctx, "run-4", "req"); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if err := store.SaveTurn(ctx, "run-4", "gather", "user", "do the thing"); err != nil {
		t.Fatalf("SaveTurn failed: %v", err)
	}
	if err := store.SaveTurn(ctx, "run-4", "gather", "assistant", "the thing is done"); err != nil {
		t.Fatalf("SaveTurn failed: %v", err)
	}
	// Turns for another task stay out of this task's history.
	if err := store.SaveTurn(ctx, "run-4", "other", "user", "unrelated"); err != nil {
		t.Fatalf("SaveTurn failed: %v", err)
	}

	turns, err := store.Turns(ctx, "run-4", "gather")
	if err != nil {
		t.Fatalf("Turns failed: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Role != "user" || turns[0].Content != "do the thing" {
		t.Errorf("first turn = %+v", turns[0])
	}
	if turns[1].Role != "assistant" || turns[1].Content != "the thing is done" {
		t.Errorf("second turn = %+v", turns[1])
	}
}

func TestSaveTurnRequiresExistingRun(t *testing.T) {
	store := openTestStore(t)
	if err := store.SaveTurn(context.Background(), "no-such-run", "t", "user", "x"); err == nil {
		t.Error("expected foreign key violation for unknown run")
	}
}
