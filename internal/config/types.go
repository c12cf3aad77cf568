package config

// ModelConfig defines how to reach the text-generation service.
type ModelConfig struct {
	BaseURL   string `json:"base_url"`
	APIKeyEnv string `json:"api_key_env,omitempty"` // env var holding the API key
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// RunnerConfig tunes the dependency-graph scheduler.
type RunnerConfig struct {
	Concurrency int `json:"concurrency"` // max tasks in flight per run
}

// RetryConfig tunes model-call retry behavior. Durations are milliseconds.
// This applies to individual model calls only; the scheduler never retries
// a failed task.
type RetryConfig struct {
	Enabled           bool    `json:"enabled"`
	InitialIntervalMS int     `json:"initial_interval_ms,omitempty"`
	MaxIntervalMS     int     `json:"max_interval_ms,omitempty"`
	MaxElapsedMS      int     `json:"max_elapsed_ms,omitempty"`
	Multiplier        float64 `json:"multiplier,omitempty"`
}

// ChainStepConfig defines one step of a configured prompt chain.
// The prompt's {input} placeholder receives the previous step's output.
type ChainStepConfig struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// ChainConfig defines a named sequential prompt chain.
type ChainConfig struct {
	Steps []ChainStepConfig `json:"steps"`
}

// Config is the top-level configuration.
type Config struct {
	Model       ModelConfig            `json:"model"`
	Runner      RunnerConfig           `json:"runner"`
	Retry       RetryConfig            `json:"retry"`
	Aggregator  string                 `json:"aggregator"`             // "synthesize", "concat", "vote", "stats"
	HistoryPath string                 `json:"history_path,omitempty"` // empty disables run history
	Chains      map[string]ChainConfig `json:"chains,omitempty"`
}
