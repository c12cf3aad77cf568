package scheduler

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maestro-go/maestro/internal/events"
)

// DefaultConcurrency bounds a round's batch when the caller does not set a limit.
const DefaultConcurrency = 4

// Executor performs the actual work of a single task. The scheduler never
// constructs one; it is supplied by the caller. deps maps dependency ID to
// that dependency's result and is fully resolved by the time Execute runs.
type Executor interface {
	Execute(ctx context.Context, task *Task, deps map[string]string) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *Task, deps map[string]string) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, task *Task, deps map[string]string) (string, error) {
	return f(ctx, task, deps)
}

// Runner drives a DAG to completion in rounds: compute the ready set,
// dispatch it concurrently, wait for the whole batch to resolve, repeat.
// The per-round barrier is deliberate: later rounds' readiness depends on
// this round's outcomes.
type Runner struct {
	dag         *DAG
	executor    Executor
	concurrency int
	bus         *events.EventBus // optional; nil disables publishing
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithConcurrency bounds the number of tasks in flight at once.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithEventBus publishes task lifecycle and progress events on bus.
func WithEventBus(bus *events.EventBus) RunnerOption {
	return func(r *Runner) { r.bus = bus }
}

// NewRunner creates a Runner over the given DAG and Executor.
func NewRunner(dag *DAG, executor Executor, opts ...RunnerOption) *Runner {
	r := &Runner{
		dag:         dag,
		executor:    executor,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every task in the DAG exactly once, after its dependencies.
// It returns the full ID -> result mapping on success, or the first terminal
// error: *ConfigurationError, *CycleError, *TaskFailureError, or the
// context's error on cancellation. The run is all-or-nothing.
func (r *Runner) Run(ctx context.Context) (map[string]string, error) {
	// Referential integrity and cycle check before any dispatch.
	if _, err := r.dag.Validate(); err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ready := r.dag.Ready()
		if len(ready) == 0 {
			// No ready tasks and nothing in flight (the round barrier below
			// guarantees that). Remaining PENDING tasks are unsatisfiable.
			if pending := r.dag.PendingIDs(); len(pending) > 0 {
				return nil, &CycleError{PendingIDs: pending}
			}
			break
		}

		// Mark the whole batch IN_PROGRESS before dispatch so a later round
		// cannot select the same task twice.
		for _, task := range ready {
			if err := r.dag.MarkInProgress(task.ID); err != nil {
				return nil, err
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)

		for _, task := range ready {
			t := task
			g.Go(func() error {
				r.execute(gctx, t)
				return nil // task errors live in the DAG, not the group
			})
		}

		// Round barrier: every dispatched task resolves before the next
		// readiness computation reads the map.
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r.publishProgress()

		// First failure is fatal. Siblings in the batch were allowed to
		// finish naturally; their results are simply not used.
		if failed := r.dag.Failed(); len(failed) > 0 {
			t := failed[0]
			return nil, &TaskFailureError{TaskID: t.ID, Cause: t.Err}
		}
	}

	return r.dag.Results(), nil
}

// execute runs a single task and records the outcome in its own DAG slot.
func (r *Runner) execute(ctx context.Context, task *Task) {
	started := time.Now()

	deps, err := r.dag.DependencyResults(task.ID)
	if err != nil {
		log.Printf("ERROR: resolving dependencies for task %q: %v", task.ID, err)
		_ = r.dag.MarkFailed(task.ID, err)
		return
	}

	r.publish(events.TopicTask, events.TaskStartedEvent{ID: task.ID, Timestamp: started})

	result, err := r.executor.Execute(ctx, task, deps)
	if err != nil {
		_ = r.dag.MarkFailed(task.ID, err)
		r.publish(events.TopicTask, events.TaskFailedEvent{
			ID:        task.ID,
			Err:       err,
			Duration:  time.Since(started),
			Timestamp: time.Now(),
		})
		return
	}

	if err := r.dag.MarkCompleted(task.ID, result); err != nil {
		log.Printf("ERROR: failed to mark task %q completed: %v", task.ID, err)
		return
	}
	r.publish(events.TopicTask, events.TaskCompletedEvent{
		ID:        task.ID,
		Result:    result,
		Duration:  time.Since(started),
		Timestamp: time.Now(),
	})
}

func (r *Runner) publish(topic string, event events.Event) {
	if r.bus != nil {
		r.bus.Publish(topic, event)
	}
}

func (r *Runner) publishProgress() {
	if r.bus == nil {
		return
	}
	c := r.dag.StatusCounts()
	r.bus.Publish(events.TopicRun, events.RunProgressEvent{
		Total:      c.Total,
		Pending:    c.Pending,
		InProgress: c.InProgress,
		Completed:  c.Completed,
		Failed:     c.Failed,
		Timestamp:  time.Now(),
	})
}
