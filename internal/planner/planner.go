// Package planner turns a high-level request into a collection of subtasks
// with named dependencies, either by prompting a model to decompose it or by
// loading a pre-authored plan file. The scheduler treats the output as
// opaque input data.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/maestro-go/maestro/internal/llm"
	"github.com/maestro-go/maestro/internal/scheduler"
)

// Subtask is the wire format of one planned task.
type Subtask struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies"`
}

type planDocument struct {
	Subtasks []Subtask `json:"subtasks"`
}

const planningPromptFormat = `Break down the following task into smaller subtasks:
%s

Return the subtasks in JSON format with the following structure:
{
    "subtasks": [
        {
            "id": "unique_id",
            "description": "subtask description",
            "dependencies": ["dependent_task_ids"]
        }
    ]
}

Ensure tasks are properly ordered with dependencies.`

// Plan asks the model to decompose request into subtasks and parses the
// response. Dependency referential integrity is NOT checked here; the DAG
// validates it before the first round.
func Plan(ctx context.Context, client llm.Client, request string) ([]*scheduler.Task, error) {
	response, err := client.Complete(ctx, fmt.Sprintf(planningPromptFormat, request))
	if err != nil {
		return nil, fmt.Errorf("planning request: %w", err)
	}

	tasks, err := parsePlan([]byte(stripFences(response)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse planning response: %w", err)
	}
	return tasks, nil
}

// LoadFile reads a plan document from disk. Same JSON shape as Plan.
func LoadFile(path string) ([]*scheduler.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	tasks, err := parsePlan(data)
	if err != nil {
		return nil, fmt.Errorf("parsing plan file %s: %w", path, err)
	}
	return tasks, nil
}

func parsePlan(data []byte) ([]*scheduler.Task, error) {
	var doc planDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	if len(doc.Subtasks) == 0 {
		return nil, fmt.Errorf("plan contains no subtasks")
	}

	seen := make(map[string]bool, len(doc.Subtasks))
	tasks := make([]*scheduler.Task, 0, len(doc.Subtasks))
	for i, st := range doc.Subtasks {
		if st.ID == "" {
			return nil, fmt.Errorf("subtask %d has empty id", i)
		}
		if seen[st.ID] {
			return nil, fmt.Errorf("duplicate subtask id %q", st.ID)
		}
		seen[st.ID] = true

		tasks = append(tasks, &scheduler.Task{
			ID:          st.ID,
			Description: st.Description,
			DependsOn:   st.Dependencies,
			Status:      scheduler.TaskPending,
		})
	}
	return tasks, nil
}

// stripFences unwraps a fenced code block, which models commonly emit around
// JSON even when asked not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:] // drop the language tag line
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
