// Package llm streams chat completions from an OpenAI-compatible endpoint
// (Ollama, vLLM, llama.cpp server or the hosted API).
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/foliolabs/foliod/internal/config"
)

var (
	// ErrProviderUnavailable indicates the model endpoint failed.
	ErrProviderUnavailable = errors.New("model provider unavailable")

	// ErrTimeout indicates the generation exceeded its deadline.
	ErrTimeout = errors.New("model request timed out")
)

// Streamer generates a completion for a prompt, delivering output
// incrementally through onChunk. Returning an error from onChunk aborts the
// stream.
type Streamer interface {
	Stream(ctx context.Context, prompt string, onChunk func(chunk string) error) error
}

// Client implements Streamer over langchaingo's OpenAI-compatible driver.
type Client struct {
	model   llms.Model
	timeout time.Duration
}

// NewClient creates a streaming model client from config.
func NewClient(cfg config.LLMConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("llm base_url is required")
	}

	// Local OpenAI-compatible servers ignore the token but the driver
	// requires one.
	token := cfg.APIKey.Value()
	if token == "" {
		token = "unused"
	}

	model, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(token),
	)
	if err != nil {
		return nil, fmt.Errorf("creating model client: %w", err)
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{model: model, timeout: timeout}, nil
}

// Stream generates a completion for prompt, forwarding chunks as they
// arrive.
func (c *Client) Stream(ctx context.Context, prompt string, onChunk func(chunk string) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}

	_, err := c.model.GenerateContent(ctx, messages,
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return onChunk(string(chunk))
		}),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return nil
}

// Ensure Client implements Streamer.
var _ Streamer = (*Client)(nil)
