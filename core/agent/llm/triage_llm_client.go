// Package llm talks to the generative text model used for triage: it builds
// prompts, calls the provider and recovers structured results from free text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"google.golang.org/genai"

	"triage_server/core/port/out"
)

// ErrEmptyResponse is returned when the provider answers without any text.
var ErrEmptyResponse = errors.New("llm: empty model response")

const (
	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultTimeout     = 20 * time.Second
)

// =============================================================================
// Providers
// =============================================================================

// GeminiGenerator calls the Gemini generateContent endpoint.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Name() string { return "gemini" }

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// OpenAIGenerator calls the OpenAI chat completions endpoint.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIGenerator{client: openai.NewClient(apiKey), model: model}
}

func (g *OpenAIGenerator) Name() string { return "openai" }

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// =============================================================================
// Client
// =============================================================================

// Client wraps a TextGenerator with a timeout and a circuit breaker.
type Client struct {
	gen     out.TextGenerator
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	log     zerolog.Logger
}

type ClientConfig struct {
	Timeout time.Duration
	Logger  zerolog.Logger
}

func NewClient(gen out.TextGenerator, cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	log := cfg.Logger.With().Str("component", "llm").Str("provider", gen.Name()).Logger()

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-" + gen.Name(),
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 || (counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &Client{gen: gen, cb: cb, timeout: cfg.Timeout, log: log}
}

// Provider returns the name of the underlying provider.
func (c *Client) Provider() string {
	return c.gen.Name()
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.gen.Generate(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("llm call timed out after %s: %w", c.timeout, err)
		}
		c.log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("llm call failed")
		return "", err
	}
	c.log.Debug().Dur("elapsed", time.Since(start)).Msg("llm call completed")
	return result.(string), nil
}
