// Package aggregate reduces a completed run's task results into one final
// output. Aggregators are pluggable; the scheduler is indifferent to their
// semantics and they are only ever invoked on a fully successful run.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/maestro-go/maestro/internal/llm"
)

// Aggregator combines the task ID -> result mapping into one final output.
type Aggregator interface {
	Combine(ctx context.Context, results map[string]string) (string, error)
}

// AggregatorFunc adapts a plain function to the Aggregator interface.
type AggregatorFunc func(ctx context.Context, results map[string]string) (string, error)

func (f AggregatorFunc) Combine(ctx context.Context, results map[string]string) (string, error) {
	return f(ctx, results)
}

// Error reports an aggregator failure on an otherwise-complete result set.
type Error struct {
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("aggregation failed: %v", e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// sortedIDs returns the result keys in stable order; aggregation keys by
// task ID, never by position.
func sortedIDs(results map[string]string) []string {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Concat joins results as "id: result" lines in ID order.
type Concat struct {
	Separator string // defaults to "\n"
}

func (c Concat) Combine(_ context.Context, results map[string]string) (string, error) {
	sep := c.Separator
	if sep == "" {
		sep = "\n"
	}

	lines := make([]string, 0, len(results))
	for _, id := range sortedIDs(results) {
		lines = append(lines, fmt.Sprintf("%s: %s", id, results[id]))
	}
	return strings.Join(lines, sep), nil
}

// MajorityVote returns the most frequent result value. Ties break toward the
// lexicographically smaller value so the output is deterministic.
type MajorityVote struct{}

func (MajorityVote) Combine(_ context.Context, results map[string]string) (string, error) {
	if len(results) == 0 {
		return "", fmt.Errorf("no results to vote on")
	}

	counts := make(map[string]int, len(results))
	for _, v := range results {
		counts[v]++
	}

	var winner string
	best := -1
	for _, id := range sortedIDs(results) {
		v := results[id]
		if counts[v] > best || (counts[v] == best && v < winner) {
			winner = v
			best = counts[v]
		}
	}
	return winner, nil
}

// NumericStats parses every result as a float and reports average, min, and
// max. A non-numeric result is an error.
type NumericStats struct{}

func (NumericStats) Combine(_ context.Context, results map[string]string) (string, error) {
	if len(results) == 0 {
		return "", fmt.Errorf("no results to summarize")
	}

	var sum, minV, maxV float64
	first := true
	for _, id := range sortedIDs(results) {
		v, err := strconv.ParseFloat(strings.TrimSpace(results[id]), 64)
		if err != nil {
			return "", fmt.Errorf("result of task %q is not numeric: %w", id, err)
		}
		sum += v
		if first || v < minV {
			minV = v
		}
		if first || v > maxV {
			maxV = v
		}
		first = false
	}

	avg := sum / float64(len(results))
	return fmt.Sprintf("average=%g min=%g max=%g", avg, minV, maxV), nil
}

const synthesisPromptFormat = `Synthesize the results of all subtasks into a coherent final output:

Results:
%s`

// Synthesizer asks a model to combine all results into a coherent output.
type Synthesizer struct {
	Client llm.Client
}

func (s Synthesizer) Combine(ctx context.Context, results map[string]string) (string, error) {
	encoded, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding results: %w", err)
	}

	out, err := s.Client.Complete(ctx, fmt.Sprintf(synthesisPromptFormat, encoded))
	if err != nil {
		return "", fmt.Errorf("synthesis call: %w", err)
	}
	return out, nil
}
