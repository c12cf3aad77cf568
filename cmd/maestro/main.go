package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/maestro-go/maestro/internal/aggregate"
	"github.com/maestro-go/maestro/internal/config"
	"github.com/maestro-go/maestro/internal/events"
	"github.com/maestro-go/maestro/internal/history"
	"github.com/maestro-go/maestro/internal/llm"
	"github.com/maestro-go/maestro/internal/orchestrator"
	"github.com/maestro-go/maestro/internal/planner"
	"github.com/maestro-go/maestro/internal/scheduler"
	"github.com/maestro-go/maestro/internal/tui"
	"github.com/maestro-go/maestro/internal/workflow"
)

func main() {
	var (
		request     = flag.String("request", "", "high-level request to decompose and execute")
		planPath    = flag.String("plan", "", "path to a pre-authored plan file (skips LLM planning)")
		chainName   = flag.String("chain", "", "run a configured prompt chain with -request as input")
		concurrency = flag.Int("concurrency", 0, "override the configured worker limit")
		aggName     = flag.String("aggregator", "", "override the configured aggregator")
		useTUI      = flag.Bool("tui", false, "show live progress display")
	)
	flag.Parse()

	if *request == "" && *planPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: maestro -request \"...\" | -plan plan.json [-chain name] [-tui]")
		os.Exit(2)
	}

	// Signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	client := buildClient(cfg)

	if *chainName != "" {
		if err := runChain(ctx, client, cfg, *chainName, *request); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *aggName == "" {
		*aggName = cfg.Aggregator
	}
	agg, err := chooseAggregator(*aggName, client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	bus := events.NewEventBus()
	defer bus.Close()

	var store *history.Store
	if cfg.HistoryPath != "" {
		store, err = history.Open(ctx, cfg.HistoryPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening history store: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	limit := cfg.Runner.Concurrency
	if *concurrency > 0 {
		limit = *concurrency
	}

	orch := orchestrator.New(client, orchestrator.Options{
		Concurrency: limit,
		Aggregator:  agg,
		Bus:         bus,
		Store:       store,
	})

	if *useTUI {
		runWithTUI(ctx, bus, func() (*orchestrator.RunReport, error) {
			return execute(ctx, orch, *request, *planPath)
		})
		return
	}

	report, err := execute(ctx, orch, *request, *planPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
	fmt.Println(report.Output)
}

// execute runs either a pre-authored plan or LLM-planned decomposition.
func execute(ctx context.Context, orch *orchestrator.Orchestrator, request, planPath string) (*orchestrator.RunReport, error) {
	if planPath != "" {
		tasks, err := planner.LoadFile(planPath)
		if err != nil {
			return nil, err
		}
		return orch.RunTasks(ctx, request, tasks)
	}
	return orch.Run(ctx, request)
}

// runWithTUI drives the run in a goroutine while Bubble Tea owns the terminal.
func runWithTUI(ctx context.Context, bus *events.EventBus, run func() (*orchestrator.RunReport, error)) {
	p := tea.NewProgram(tui.New(bus))

	errChan := make(chan error, 1)
	go func() {
		_, err := run()
		errChan <- err
	}()

	model, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// The run goroutine finishes before RunFinishedEvent quits the program,
	// but guard against the user quitting early.
	select {
	case err = <-errChan:
	case <-time.After(2 * time.Second):
		err = ctx.Err()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}

	if m, ok := model.(tui.Model); ok && m.Output() != "" {
		fmt.Println(m.Output())
	}
}

// runChain executes a configured sequential prompt chain.
func runChain(ctx context.Context, client llm.Client, cfg *config.Config, name, input string) error {
	chainCfg, ok := cfg.Chains[name]
	if !ok {
		return fmt.Errorf("no chain named %q in config", name)
	}

	chain := workflow.NewChain(client)
	for _, step := range chainCfg.Steps {
		chain.AddStep(workflow.ChainStep{Name: step.Name, Template: step.Prompt})
	}

	results, err := chain.Execute(ctx, input)
	if err != nil {
		return err
	}
	fmt.Println(results[len(results)-1].Output)
	return nil
}

// buildClient assembles the model client, wrapped with retry and circuit
// breaker protection when enabled.
func buildClient(cfg *config.Config) llm.Client {
	var client llm.Client = llm.NewAugmentedClient(llm.Config{
		BaseURL:   cfg.Model.BaseURL,
		APIKey:    os.Getenv(cfg.Model.APIKeyEnv),
		Model:     cfg.Model.Model,
		MaxTokens: cfg.Model.MaxTokens,
	})

	if cfg.Retry.Enabled {
		registry := llm.NewBreakerRegistry()
		client = llm.NewResilient(client, registry.Get(cfg.Model.Model), retryFromConfig(cfg.Retry))
	}
	return client
}

// retryFromConfig converts config durations to a llm.RetryConfig,
// falling back to defaults for unset fields.
func retryFromConfig(rc config.RetryConfig) llm.RetryConfig {
	out := llm.DefaultRetryConfig()
	if rc.InitialIntervalMS > 0 {
		out.InitialInterval = time.Duration(rc.InitialIntervalMS) * time.Millisecond
	}
	if rc.MaxIntervalMS > 0 {
		out.MaxInterval = time.Duration(rc.MaxIntervalMS) * time.Millisecond
	}
	if rc.MaxElapsedMS > 0 {
		out.MaxElapsedTime = time.Duration(rc.MaxElapsedMS) * time.Millisecond
	}
	if rc.Multiplier > 0 {
		out.Multiplier = rc.Multiplier
	}
	return out
}

// chooseAggregator maps a config name to an aggregator implementation.
func chooseAggregator(name string, client llm.Client) (aggregate.Aggregator, error) {
	switch name {
	case "", "synthesize":
		return aggregate.Synthesizer{Client: client}, nil
	case "concat":
		return aggregate.Concat{}, nil
	case "vote":
		return aggregate.MajorityVote{}, nil
	case "stats":
		return aggregate.NumericStats{}, nil
	default:
		return nil, fmt.Errorf("unknown aggregator %q", name)
	}
}

// exitCode distinguishes failure kinds so scripts can tell a bad plan from
// a failed task.
func exitCode(err error) int {
	var cfgErr *scheduler.ConfigurationError
	var cycleErr *scheduler.CycleError
	var taskErr *scheduler.TaskFailureError
	var aggErr *aggregate.Error

	switch {
	case errors.As(err, &cfgErr), errors.As(err, &cycleErr):
		return 3
	case errors.As(err, &taskErr):
		return 4
	case errors.As(err, &aggErr):
		return 5
	default:
		return 1
	}
}
