package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// ErrNoChoices is returned when the endpoint answers without any completion.
var ErrNoChoices = errors.New("no choices returned")

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Prompt is a single system + user exchange.
type Prompt struct {
	System    string
	User      string
	MaxTokens int64
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, p Prompt) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// OpenAIGenerator works with any OpenAI-compatible chat completion API.
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	logger  *zap.SugaredLogger
	backoff time.Duration
}

// NewOpenAIGenerator creates a generator for baseURL. Rate-limited calls are
// retried twice, waiting 2s then 4s.
func NewOpenAIGenerator(baseURL, apiKey, model string, logger *zap.SugaredLogger) *OpenAIGenerator {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIGenerator{
		client:  &client,
		model:   model,
		logger:  logger,
		backoff: 2 * time.Second,
	}
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System),
			openai.UserMessage(p.User),
		},
	}
	if p.MaxTokens > 0 {
		params.MaxTokens = openai.Int(p.MaxTokens)
	}

	var completion *openai.ChatCompletion
	var err error
	for attempt := range 3 {
		completion, err = g.client.Chat.Completions.New(ctx, params)
		if err == nil {
			break
		}
		if !rateLimited(err) || attempt == 2 {
			return "", fmt.Errorf("chat completion: %w", err)
		}
		wait := g.backoff << attempt
		g.logger.Warnw("rate limited, retrying", "model", g.model, "wait", wait.String())
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", fmt.Errorf("chat completion: %w", ctx.Err())
		}
	}

	if len(completion.Choices) == 0 {
		return "", ErrNoChoices
	}
	return completion.Choices[0].Message.Content, nil
}

func rateLimited(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
