package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Client is the narrow interface the rest of the system depends on: one
// prompt in, one completion out.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Tool describes a capability advertised to the model in the prompt context.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]string
}

// Config configures an AugmentedClient.
type Config struct {
	BaseURL      string        // API base URL, e.g. https://api.anthropic.com
	APIKey       string
	Model        string
	MaxTokens    int           // defaults to 1000
	MemoryWindow int           // recent exchanges included as context (defaults to 5)
	Timeout      time.Duration // per-request timeout (defaults to 60s)
	HTTPClient   *http.Client  // optional; overrides Timeout when set
}

// AugmentedClient talks to an Anthropic-style messages API, prepending
// registered tool descriptions and a rolling window of recent exchanges to
// every prompt. Memory is scoped to the instance, never process-wide.
type AugmentedClient struct {
	cfg    Config
	client *http.Client

	mu     sync.Mutex
	tools  []Tool
	memory []exchange
}

type exchange struct {
	Prompt   string
	Response string
}

// NewAugmentedClient creates a client for the given config.
func NewAugmentedClient(cfg Config) *AugmentedClient {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.MemoryWindow <= 0 {
		cfg.MemoryWindow = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &AugmentedClient{
		cfg:    cfg,
		client: httpClient,
	}
}

// AddTool registers a tool whose description is included in every prompt.
func (c *AugmentedClient) AddTool(tool Tool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = append(c.tools, tool)
}

// messagesRequest is the wire format of the messages endpoint.
type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete makes an augmented call: tool descriptions and recent memory are
// prepended to the prompt, and the exchange is stored back into memory.
func (c *AugmentedClient) Complete(ctx context.Context, prompt string) (string, error) {
	fullPrompt := c.buildContext() + prompt

	body, err := json.Marshal(messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		Messages:  []message{{Role: "user", Content: fullPrompt}},
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.cfg.APIKey)
	req.Header.Set("Anthropic-Version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling model API: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parsing response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("model API error (status %d, %s): %s", resp.StatusCode, parsed.Error.Type, parsed.Error.Message)
		}
		return "", fmt.Errorf("model API error (status %d)", resp.StatusCode)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("model API returned no text content")
	}

	c.remember(prompt, text.String())
	return text.String(), nil
}

// buildContext formats tool descriptions and the last MemoryWindow exchanges.
func (c *AugmentedClient) buildContext() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder

	if len(c.tools) > 0 {
		b.WriteString("Available tools:\n")
		for _, tool := range c.tools {
			fmt.Fprintf(&b, "Tool: %s\nDescription: %s\n", tool.Name, tool.Description)
			if len(tool.Parameters) > 0 {
				fmt.Fprintf(&b, "Parameters: %v\n", tool.Parameters)
			}
			b.WriteString("\n")
		}
	}

	if len(c.memory) > 0 {
		b.WriteString("Previous context:\n")
		start := 0
		if len(c.memory) > c.cfg.MemoryWindow {
			start = len(c.memory) - c.cfg.MemoryWindow
		}
		for _, ex := range c.memory[start:] {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", ex.Prompt, ex.Response)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func (c *AugmentedClient) remember(prompt, response string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory = append(c.memory, exchange{Prompt: prompt, Response: response})
}
