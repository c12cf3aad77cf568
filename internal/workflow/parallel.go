package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/maestro-go/maestro/internal/llm"
)

// Mode selects how the parallel processor treats its tasks.
type Mode int

const (
	// Sectioning runs each task's prompt once, in parallel.
	Sectioning Mode = iota
	// Voting runs every task's prompt several times and aggregates the votes.
	Voting
)

// ParallelTask is an independent prompt with an optional custom aggregation
// over its responses (one response under Sectioning, Votes under Voting).
type ParallelTask struct {
	Name      string
	Prompt    string
	Aggregate func(responses []string) (string, error) // optional
}

// Processor fans prompts out to the model with bounded concurrency.
type Processor struct {
	client  llm.Client
	mode    Mode
	workers int // max concurrent calls (default 5)
	votes   int // calls per task under Voting (default 3)
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithWorkers bounds concurrent model calls.
func WithWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithVotes sets the number of votes per task under Voting.
func WithVotes(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.votes = n
		}
	}
}

// NewProcessor creates a parallel processor in the given mode.
func NewProcessor(client llm.Client, mode Mode, opts ...ProcessorOption) *Processor {
	p := &Processor{
		client:  client,
		mode:    mode,
		workers: 5,
		votes:   3,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs all tasks and returns task name -> aggregated output.
// Aggregation keys by name; no ordering is guaranteed among calls.
func (p *Processor) Process(ctx context.Context, tasks []ParallelTask) (map[string]string, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no tasks to process")
	}

	calls := 1
	if p.mode == Voting {
		calls = p.votes
	}

	responses := make(map[string][]string, len(tasks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, task := range tasks {
		t := task
		for i := 0; i < calls; i++ {
			g.Go(func() error {
				out, err := p.client.Complete(gctx, t.Prompt)
				if err != nil {
					return fmt.Errorf("task %q: %w", t.Name, err)
				}
				mu.Lock()
				responses[t.Name] = append(responses[t.Name], out)
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make(map[string]string, len(tasks))
	for _, task := range tasks {
		votes := responses[task.Name]
		if task.Aggregate != nil {
			out, err := task.Aggregate(votes)
			if err != nil {
				return nil, fmt.Errorf("aggregating task %q: %w", task.Name, err)
			}
			results[task.Name] = out
			continue
		}

		if p.mode == Voting {
			results[task.Name] = majority(votes)
		} else {
			results[task.Name] = votes[0]
		}
	}

	return results, nil
}

// majority returns the most frequent response; ties break toward the
// lexicographically smaller value.
func majority(votes []string) string {
	counts := make(map[string]int, len(votes))
	for _, v := range votes {
		counts[v]++
	}

	distinct := make([]string, 0, len(counts))
	for v := range counts {
		distinct = append(distinct, v)
	}
	sort.Strings(distinct)

	winner := ""
	best := -1
	for _, v := range distinct {
		if counts[v] > best {
			winner = v
			best = counts[v]
		}
	}
	return winner
}
