// Package generation produces answers from a query and retrieved
// context through an OpenAI-compatible chat API.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/citeguard/internal/observability"
)

// Sentinel errors for generation.
var (
	// ErrInvalidConfig indicates invalid generator parameters.
	ErrInvalidConfig = errors.New("invalid generation configuration")

	// ErrGenerationFailed indicates the provider call failed.
	ErrGenerationFailed = errors.New("generation failed")
)

// systemPrompt constrains the model to the supplied context.
const systemPrompt = `You are a helpful assistant that answers questions using only the provided context. If the context does not contain the answer, say so plainly instead of guessing. Do not invent facts, names, dates, or figures.`

// Result is one generation outcome with its token accounting.
type Result struct {
	// Text is the generated answer.
	Text string

	// InputTokens and OutputTokens come from the provider when
	// reported, otherwise from a length-based estimate.
	InputTokens  int
	OutputTokens int
}

// Generator produces an answer for a query given supporting context.
type Generator interface {
	Generate(ctx context.Context, query string, contextTexts []string) (*Result, error)

	// Model returns the model name used for accounting.
	Model() string
}

// Config holds generator parameters.
type Config struct {
	// Model is the chat model. Default: gpt-4o-mini.
	Model string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// APIKey authenticates requests.
	APIKey string

	// MaxTokens caps the completion length. Default: 1024.
	MaxTokens int

	// RequestsPerSecond throttles provider calls. Default: 2.
	RequestsPerSecond float64
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 2
	}
}

// OpenAIGenerator calls an OpenAI-compatible chat API through
// langchaingo, throttled by a client-side rate limiter.
type OpenAIGenerator struct {
	llm     *openai.LLM
	config  Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewOpenAIGenerator creates a generator.
func NewOpenAIGenerator(cfg Config, logger *zap.Logger) (*OpenAIGenerator, error) {
	cfg.applyDefaults()
	if cfg.MaxTokens < 1 {
		return nil, fmt.Errorf("%w: max tokens must be positive", ErrInvalidConfig)
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("%w: rate limit cannot be negative", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	return &OpenAIGenerator{
		llm:     llm,
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
	}, nil
}

// Generate builds the grounded prompt and calls the chat API. Blocks on
// the rate limiter, honoring context cancellation.
func (g *OpenAIGenerator) Generate(ctx context.Context, query string, contextTexts []string) (*Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	prompt := buildPrompt(query, contextTexts)
	resp, err := g.llm.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
			llms.TextParts(llms.ChatMessageTypeHuman, prompt),
		},
		llms.WithMaxTokens(g.config.MaxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: provider returned no choices", ErrGenerationFailed)
	}

	choice := resp.Choices[0]
	result := &Result{
		Text:         choice.Content,
		InputTokens:  tokenCount(choice.GenerationInfo, "PromptTokens", prompt+systemPrompt),
		OutputTokens: tokenCount(choice.GenerationInfo, "CompletionTokens", choice.Content),
	}

	g.logger.Debug("generation complete",
		zap.String("model", g.config.Model),
		zap.Int("input_tokens", result.InputTokens),
		zap.Int("output_tokens", result.OutputTokens),
	)
	return result, nil
}

// Model returns the configured chat model.
func (g *OpenAIGenerator) Model() string {
	return g.config.Model
}

// buildPrompt lays out the numbered context passages above the question.
func buildPrompt(query string, contextTexts []string) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	for i, text := range contextTexts {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, text)
	}
	sb.WriteString("Question: ")
	sb.WriteString(query)
	return sb.String()
}

// tokenCount reads a token count from GenerationInfo, falling back to a
// length-based estimate when the provider omits it.
func tokenCount(info map[string]any, key, fallbackText string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return observability.EstimateTokens(fallbackText)
	}
}
