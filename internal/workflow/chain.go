// Package workflow provides the straight-line orchestration patterns that
// need no dependency scheduling: sequential prompt chains, parallel
// fan-out/fan-in, and classification-based routing.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/maestro-go/maestro/internal/llm"
)

// ChainStep is one step in a sequential prompt chain. The PromptTemplate's
// "{input}" placeholder is replaced with the previous step's output.
type ChainStep struct {
	Name     string
	Template string
	Validate func(output string) bool // optional; false aborts the chain
}

// StepResult records one executed chain step.
type StepResult struct {
	Step   string
	Input  string
	Output string
}

// Chain runs steps sequentially, feeding each step's output into the next.
type Chain struct {
	client llm.Client
	steps  []ChainStep
}

// NewChain creates an empty chain over the given client.
func NewChain(client llm.Client) *Chain {
	return &Chain{client: client}
}

// AddStep appends a step to the chain.
func (c *Chain) AddStep(step ChainStep) {
	c.steps = append(c.steps, step)
}

// Execute runs the full chain from the initial input. It fails fast on the
// first model error or validation failure.
func (c *Chain) Execute(ctx context.Context, initialInput string) ([]StepResult, error) {
	if len(c.steps) == 0 {
		return nil, fmt.Errorf("chain has no steps")
	}

	results := make([]StepResult, 0, len(c.steps))
	current := initialInput

	for _, step := range c.steps {
		prompt := strings.ReplaceAll(step.Template, "{input}", current)

		output, err := c.client.Complete(ctx, prompt)
		if err != nil {
			return results, fmt.Errorf("step %q: %w", step.Name, err)
		}

		if step.Validate != nil && !step.Validate(output) {
			return results, fmt.Errorf("validation failed for step %q", step.Name)
		}

		results = append(results, StepResult{Step: step.Name, Input: current, Output: output})
		current = output
	}

	return results, nil
}
