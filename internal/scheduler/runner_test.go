package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordingExecutor records dispatch order and the dependency views it saw.
type recordingExecutor struct {
	mu       sync.Mutex
	started  []string
	depViews map[string]map[string]string
	delay    time.Duration
	failOn   map[string]error
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{
		depViews: make(map[string]map[string]string),
		failOn:   make(map[string]error),
	}
}

func (e *recordingExecutor) Execute(ctx context.Context, task *Task, deps map[string]string) (string, error) {
	e.mu.Lock()
	e.started = append(e.started, task.ID)
	e.depViews[task.ID] = deps
	err := e.failOn[task.ID]
	e.mu.Unlock()

	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if err != nil {
		return "", err
	}
	return "result-" + task.ID, nil
}

func (e *recordingExecutor) startedIndex(taskID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, id := range e.started {
		if id == taskID {
			return i
		}
	}
	return -1
}

func buildDAG(t *testing.T, tasks ...*Task) *DAG {
	t.Helper()
	dag := NewDAG()
	for _, task := range tasks {
		if err := dag.AddTask(task); err != nil {
			t.Fatalf("AddTask(%s): %v", task.ID, err)
		}
	}
	return dag
}

func TestRunnerDiamond(t *testing.T) {
	// A and B are independent; C depends on both.
	dag := buildDAG(t,
		&Task{ID: "A", Description: "first"},
		&Task{ID: "B", Description: "second"},
		&Task{ID: "C", Description: "third", DependsOn: []string{"A", "B"}},
	)
	exec := newRecordingExecutor()

	results, err := NewRunner(dag, exec).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
	for _, id := range []string{"A", "B", "C"} {
		if results[id] != "result-"+id {
			t.Errorf("results[%s] = %q", id, results[id])
		}
	}

	// C must have been dispatched after both A and B.
	if exec.startedIndex("C") < exec.startedIndex("A") || exec.startedIndex("C") < exec.startedIndex("B") {
		t.Errorf("C dispatched before its dependencies: order %v", exec.started)
	}

	// C's dependency view carries both results.
	deps := exec.depViews["C"]
	if deps["A"] != "result-A" || deps["B"] != "result-B" {
		t.Errorf("C's dependency view = %v", deps)
	}

	// Every task ended COMPLETED with a result.
	for _, task := range dag.Tasks() {
		if task.Status != TaskCompleted || task.Result == "" {
			t.Errorf("task %s: status=%s result=%q", task.ID, task.Status, task.Result)
		}
	}
}

func TestRunnerCycleFails(t *testing.T) {
	dag := buildDAG(t,
		&Task{ID: "A", DependsOn: []string{"B"}},
		&Task{ID: "B", DependsOn: []string{"A"}},
	)
	exec := newRecordingExecutor()

	done := make(chan error, 1)
	go func() {
		_, err := NewRunner(dag, exec).Run(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		var cycleErr *CycleError
		if !errors.As(err, &cycleErr) {
			t.Fatalf("expected *CycleError, got %T: %v", err, err)
		}
		if fmt.Sprint(cycleErr.PendingIDs) != "[A B]" {
			t.Errorf("pending IDs = %v, want [A B]", cycleErr.PendingIDs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runner hung on a cyclic graph")
	}

	if len(exec.started) != 0 {
		t.Errorf("tasks were dispatched despite the cycle: %v", exec.started)
	}
}

func TestRunnerSelfDependencyFails(t *testing.T) {
	dag := buildDAG(t, &Task{ID: "A", DependsOn: []string{"A"}})

	_, err := NewRunner(dag, newRecordingExecutor()).Run(context.Background())
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected *CycleError, got %T: %v", err, err)
	}
}

func TestRunnerDanglingDependencyFails(t *testing.T) {
	dag := buildDAG(t, &Task{ID: "A", DependsOn: []string{"ghost"}})
	exec := newRecordingExecutor()

	_, err := NewRunner(dag, exec).Run(context.Background())
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigurationError, got %T: %v", err, err)
	}
	if len(exec.started) != 0 {
		t.Error("tasks were dispatched despite a dangling dependency")
	}
}

func TestRunnerFirstFailureIsFatal(t *testing.T) {
	dag := buildDAG(t,
		&Task{ID: "A"},
		&Task{ID: "B", DependsOn: []string{"A"}},
	)
	exec := newRecordingExecutor()
	boom := errors.New("boom")
	exec.failOn["A"] = boom

	_, err := NewRunner(dag, exec).Run(context.Background())

	var taskErr *TaskFailureError
	if !errors.As(err, &taskErr) {
		t.Fatalf("expected *TaskFailureError, got %T: %v", err, err)
	}
	if taskErr.TaskID != "A" {
		t.Errorf("failing task = %q, want A", taskErr.TaskID)
	}
	if !errors.Is(err, boom) {
		t.Error("underlying cause not preserved through Unwrap")
	}

	// B never left PENDING and was never dispatched.
	b, _ := dag.Get("B")
	if b.Status != TaskPending {
		t.Errorf("B status = %s, want pending", b.Status)
	}
	if exec.startedIndex("B") != -1 {
		t.Error("B was dispatched after A failed")
	}
}

func TestRunnerSiblingsFinish(t *testing.T) {
	// A fails while B (same batch) succeeds; the run still fails and B's
	// result is not part of any returned mapping.
	dag := buildDAG(t,
		&Task{ID: "A"},
		&Task{ID: "B"},
	)
	exec := newRecordingExecutor()
	exec.failOn["A"] = errors.New("boom")

	results, err := NewRunner(dag, exec).Run(context.Background())
	if err == nil {
		t.Fatal("expected run to fail")
	}
	if results != nil {
		t.Errorf("failed run returned results: %v", results)
	}

	// B was allowed to finish naturally.
	b, _ := dag.Get("B")
	if b.Status != TaskCompleted {
		t.Errorf("sibling B status = %s, want completed", b.Status)
	}
}

func TestRunnerConcurrencyLimit(t *testing.T) {
	// Ten independent tasks with a limit of 3: all complete, and at most 3
	// are ever simultaneously in flight.
	dag := NewDAG()
	for i := 0; i < 10; i++ {
		dag.AddTask(&Task{ID: fmt.Sprintf("task-%02d", i)})
	}

	var inFlight, peak int64
	exec := ExecutorFunc(func(ctx context.Context, task *Task, deps map[string]string) (string, error) {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return "ok", nil
	})

	results, err := NewRunner(dag, exec, WithConcurrency(3)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 10 {
		t.Errorf("got %d results, want 10", len(results))
	}
	if p := atomic.LoadInt64(&peak); p > 3 {
		t.Errorf("peak concurrency %d exceeds limit 3", p)
	}
}

func TestRunnerNoDispatchBeforeDepsComplete(t *testing.T) {
	// A long chain with slow tasks: each task must observe its dependency
	// COMPLETED at dispatch time.
	dag := buildDAG(t,
		&Task{ID: "A"},
		&Task{ID: "B", DependsOn: []string{"A"}},
		&Task{ID: "C", DependsOn: []string{"B"}},
	)

	exec := ExecutorFunc(func(ctx context.Context, task *Task, deps map[string]string) (string, error) {
		for _, depID := range task.DependsOn {
			dep, ok := dag.Get(depID)
			if !ok || dep.Status != TaskCompleted {
				return "", fmt.Errorf("task %s dispatched before dependency %s completed", task.ID, depID)
			}
		}
		time.Sleep(10 * time.Millisecond)
		return "ok", nil
	})

	if _, err := NewRunner(dag, exec).Run(context.Background()); err != nil {
		t.Fatalf("dependency order violated: %v", err)
	}
}

func TestRunnerContextCancellation(t *testing.T) {
	dag := buildDAG(t,
		&Task{ID: "A"},
		&Task{ID: "B", DependsOn: []string{"A"}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	exec := ExecutorFunc(func(ctx context.Context, task *Task, deps map[string]string) (string, error) {
		cancel() // cancel mid-batch
		return "ok", nil
	})

	_, err := NewRunner(dag, exec).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// B was never dispatched after cancellation.
	b, _ := dag.Get("B")
	if b.Status != TaskPending {
		t.Errorf("B status = %s, want pending", b.Status)
	}
}

func TestRunnerEmptyDAG(t *testing.T) {
	results, err := NewRunner(NewDAG(), newRecordingExecutor()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed on empty DAG: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %v", results)
	}
}
