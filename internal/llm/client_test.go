package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/foliolabs/foliod/internal/config"
)

// fakeModel streams fixed chunks through the caller's streaming func, then
// returns err.
type fakeModel struct {
	chunks   []string
	err      error
	messages []llms.MessageContent
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}
	for _, chunk := range m.chunks {
		if opts.StreamingFunc != nil {
			if err := opts.StreamingFunc(ctx, []byte(chunk)); err != nil {
				return nil, err
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(config.LLMConfig{})
	require.Error(t, err)
}

func TestStreamForwardsChunks(t *testing.T) {
	model := &fakeModel{chunks: []string{"Hello ", "world"}}
	c := &Client{model: model, timeout: time.Second}

	var got []string
	err := c.Stream(context.Background(), "prompt", func(chunk string) error {
		got = append(got, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello ", "world"}, got)

	require.Len(t, model.messages, 1)
	assert.Equal(t, schema.ChatMessageTypeHuman, model.messages[0].Role)
}

func TestStreamMapsProviderError(t *testing.T) {
	c := &Client{model: &fakeModel{err: errors.New("connection refused")}, timeout: time.Second}

	err := c.Stream(context.Background(), "prompt", func(string) error { return nil })
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestStreamMapsDeadline(t *testing.T) {
	c := &Client{model: &fakeModel{err: context.DeadlineExceeded}, timeout: time.Second}

	err := c.Stream(context.Background(), "prompt", func(string) error { return nil })
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestStreamPassesThroughCancellation(t *testing.T) {
	c := &Client{model: &fakeModel{err: context.Canceled}, timeout: time.Second}

	err := c.Stream(context.Background(), "prompt", func(string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrProviderUnavailable)
}

func TestStreamOnChunkErrorAborts(t *testing.T) {
	c := &Client{model: &fakeModel{chunks: []string{"a", "b"}}, timeout: time.Second}

	sentinel := errors.New("client gone")
	calls := 0
	err := c.Stream(context.Background(), "prompt", func(string) error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
