package config

// DefaultConfig returns the default configuration with a built-in model
// endpoint and an example review chain.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			BaseURL:   "https://api.anthropic.com",
			APIKeyEnv: "ANTHROPIC_API_KEY",
			Model:     "claude-3-sonnet-20240229",
			MaxTokens: 1000,
		},
		Runner: RunnerConfig{
			Concurrency: 4,
		},
		Retry: RetryConfig{
			Enabled:           true,
			InitialIntervalMS: 100,
			MaxIntervalMS:     10000,
			MaxElapsedMS:      120000,
			Multiplier:        2.0,
		},
		Aggregator: "synthesize",
		Chains: map[string]ChainConfig{
			"marketing": {
				Steps: []ChainStepConfig{
					{Name: "generate_marketing", Prompt: "Create marketing copy for the following product: {input}"},
					{Name: "translate", Prompt: "Translate the following marketing copy to Spanish: {input}"},
				},
			},
		},
	}
}
