package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/maestro-go/maestro/internal/history"
	"github.com/maestro-go/maestro/internal/llm"
	"github.com/maestro-go/maestro/internal/scheduler"
)

// llmExecutor runs each subtask through a worker model call. It implements
// scheduler.Executor; the scheduler never sees prompts or dependency
// formatting, only the opaque description and the resolved results.
type llmExecutor struct {
	client llm.Client
	store  *history.Store // optional
	runID  string
}

const executionPromptFormat = `Execute the following task:
%s

If this task depends on other tasks, here are their results:
%s`

func (e *llmExecutor) Execute(ctx context.Context, task *scheduler.Task, deps map[string]string) (string, error) {
	prompt := fmt.Sprintf(executionPromptFormat, task.Description, formatDependencyResults(deps))

	e.recordTurn(ctx, task.ID, "user", prompt)

	result, err := e.client.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to execute task %s: %w", task.ID, err)
	}

	e.recordTurn(ctx, task.ID, "assistant", result)
	return result, nil
}

func (e *llmExecutor) recordTurn(ctx context.Context, taskID, role, content string) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveTurn(ctx, e.runID, taskID, role, content); err != nil {
		log.Printf("WARNING: failed to record conversation turn for task %q: %v", taskID, err)
	}
}

// formatDependencyResults renders the resolved dependency view as
// "id: result" lines in ID order.
func formatDependencyResults(deps map[string]string) string {
	if len(deps) == 0 {
		return ""
	}

	ids := make([]string, 0, len(deps))
	for id := range deps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, fmt.Sprintf("%s: %s", id, deps[id]))
	}
	return strings.Join(lines, "\n")
}
