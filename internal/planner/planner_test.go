package planner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// staticClient returns a fixed response to every prompt.
type staticClient struct {
	response string
	err      error
	prompts  []string
}

func (c *staticClient) Complete(_ context.Context, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	return c.response, c.err
}

const validPlan = `{
	"subtasks": [
		{"id": "gather", "description": "Gather information", "dependencies": []},
		{"id": "analyze", "description": "Analyze trends", "dependencies": ["gather"]},
		{"id": "report", "description": "Write the report", "dependencies": ["gather", "analyze"]}
	]
}`

func TestPlan(t *testing.T) {
	client := &staticClient{response: validPlan}

	tasks, err := Plan(context.Background(), client, "research AI in healthcare")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	if tasks[1].ID != "analyze" || tasks[1].Description != "Analyze trends" {
		t.Errorf("unexpected task: %+v", tasks[1])
	}
	if len(tasks[2].DependsOn) != 2 {
		t.Errorf("report dependencies = %v", tasks[2].DependsOn)
	}

	if len(client.prompts) != 1 || !strings.Contains(client.prompts[0], "research AI in healthcare") {
		t.Errorf("planning prompt missing the request: %v", client.prompts)
	}
}

func TestPlanStripsCodeFences(t *testing.T) {
	client := &staticClient{response: "```json\n" + validPlan + "\n```"}

	tasks, err := Plan(context.Background(), client, "anything")
	if err != nil {
		t.Fatalf("Plan failed on fenced response: %v", err)
	}
	if len(tasks) != 3 {
		t.Errorf("got %d tasks, want 3", len(tasks))
	}
}

func TestPlanParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"not json", "Sure! Here are the subtasks you asked for."},
		{"empty plan", `{"subtasks": []}`},
		{"empty id", `{"subtasks": [{"id": "", "description": "x"}]}`},
		{"duplicate id", `{"subtasks": [{"id": "a"}, {"id": "a"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &staticClient{response: tt.response}
			if _, err := Plan(context.Background(), client, "req"); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestPlanModelError(t *testing.T) {
	client := &staticClient{err: errors.New("api down")}
	_, err := Plan(context.Background(), client, "req")
	if err == nil || !strings.Contains(err.Error(), "api down") {
		t.Errorf("expected wrapped model error, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	if err := os.WriteFile(path, []byte(validPlan), 0644); err != nil {
		t.Fatal(err)
	}

	tasks, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(tasks) != 3 {
		t.Errorf("got %d tasks, want 3", len(tasks))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
