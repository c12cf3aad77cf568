// Package orchestrator composes the full pipeline: decompose a request into
// subtasks, schedule them through the dependency-graph runner, and combine
// the results with an aggregator.
package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/maestro-go/maestro/internal/aggregate"
	"github.com/maestro-go/maestro/internal/events"
	"github.com/maestro-go/maestro/internal/history"
	"github.com/maestro-go/maestro/internal/llm"
	"github.com/maestro-go/maestro/internal/planner"
	"github.com/maestro-go/maestro/internal/scheduler"
)

// Options configures an Orchestrator.
type Options struct {
	Concurrency int                  // max tasks in flight (default scheduler.DefaultConcurrency)
	Aggregator  aggregate.Aggregator // defaults to LLM synthesis
	Bus         *events.EventBus     // optional lifecycle events
	Store       *history.Store       // optional run history
}

// Orchestrator plans, schedules, and aggregates one run at a time.
// Each run owns a fresh task collection; nothing is shared between runs.
type Orchestrator struct {
	client llm.Client
	opts   Options
}

// RunReport is the outcome of a successful run.
type RunReport struct {
	RunID   string
	Request string
	Results map[string]string // task ID -> result
	Output  string            // aggregated final output
}

// New creates an Orchestrator around the given model client.
func New(client llm.Client, opts Options) *Orchestrator {
	if opts.Aggregator == nil {
		opts.Aggregator = aggregate.Synthesizer{Client: client}
	}
	return &Orchestrator{client: client, opts: opts}
}

// Run decomposes the request with the planner and executes the plan.
func (o *Orchestrator) Run(ctx context.Context, request string) (*RunReport, error) {
	tasks, err := planner.Plan(ctx, o.client, request)
	if err != nil {
		return nil, err
	}
	return o.RunTasks(ctx, request, tasks)
}

// RunTasks executes a pre-built task collection: build the DAG, drive it to
// completion, and aggregate the results. The run is all-or-nothing; on any
// failure the aggregator is never invoked.
func (o *Orchestrator) RunTasks(ctx context.Context, request string, tasks []*scheduler.Task) (*RunReport, error) {
	runID := uuid.NewString()
	o.recordStart(ctx, runID, request)

	dag := scheduler.NewDAG()
	for _, task := range tasks {
		if err := dag.AddTask(task); err != nil {
			o.recordFinish(ctx, runID, history.RunStatusFailed, "", err)
			return nil, err
		}
	}

	executor := &llmExecutor{client: o.client, store: o.opts.Store, runID: runID}

	runnerOpts := []scheduler.RunnerOption{}
	if o.opts.Concurrency > 0 {
		runnerOpts = append(runnerOpts, scheduler.WithConcurrency(o.opts.Concurrency))
	}
	if o.opts.Bus != nil {
		runnerOpts = append(runnerOpts, scheduler.WithEventBus(o.opts.Bus))
	}
	runner := scheduler.NewRunner(dag, executor, runnerOpts...)

	results, err := runner.Run(ctx)
	o.recordOutcomes(ctx, runID, dag)
	if err != nil {
		o.recordFinish(ctx, runID, history.RunStatusFailed, "", err)
		o.publishFinished(runID, "", err)
		return nil, err
	}

	output, err := o.opts.Aggregator.Combine(ctx, results)
	if err != nil {
		aggErr := &aggregate.Error{Cause: err}
		o.recordFinish(ctx, runID, history.RunStatusFailed, "", aggErr)
		o.publishFinished(runID, "", aggErr)
		return nil, aggErr
	}

	o.recordFinish(ctx, runID, history.RunStatusCompleted, output, nil)
	o.publishFinished(runID, output, nil)

	return &RunReport{
		RunID:   runID,
		Request: request,
		Results: results,
		Output:  output,
	}, nil
}

func (o *Orchestrator) publishFinished(runID, output string, err error) {
	if o.opts.Bus == nil {
		return
	}
	o.opts.Bus.Publish(events.TopicRun, events.RunFinishedEvent{
		RunID:     runID,
		Output:    output,
		Err:       err,
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) recordStart(ctx context.Context, runID, request string) {
	if o.opts.Store == nil {
		return
	}
	if err := o.opts.Store.StartRun(ctx, runID, request); err != nil {
		log.Printf("WARNING: failed to record run start: %v", err)
	}
}

func (o *Orchestrator) recordFinish(ctx context.Context, runID, status, output string, runErr error) {
	if o.opts.Store == nil {
		return
	}
	if err := o.opts.Store.FinishRun(ctx, runID, status, output, runErr); err != nil {
		log.Printf("WARNING: failed to record run finish: %v", err)
	}
}

func (o *Orchestrator) recordOutcomes(ctx context.Context, runID string, dag *scheduler.DAG) {
	if o.opts.Store == nil {
		return
	}
	for _, task := range dag.Tasks() {
		if err := o.opts.Store.SaveTaskOutcome(ctx, runID, task); err != nil {
			log.Printf("WARNING: failed to record outcome for task %q: %v", task.ID, err)
		}
	}
}
