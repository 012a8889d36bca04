// Package embeddings provides embedding generation for retrieval.
//
// Two provider families are supported: local ONNX models via FastEmbed
// (requires CGO) and OpenAI-compatible HTTP APIs via langchaingo, which
// covers both api.openai.com and self-hosted TEI servers.
package embeddings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/citeguard/internal/vectorstore"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid embeddings configuration")

	// ErrEmbeddingFailed indicates the underlying model or API failed.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// Provider is the interface for embedding providers.
type Provider interface {
	vectorstore.Embedder

	// Model returns the configured model name.
	Model() string

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// Config selects and configures an embedding provider.
type Config struct {
	// Provider is "fastembed" (default) or "openai".
	// "openai" also covers TEI and other OpenAI-compatible servers.
	Provider string

	// Model is the embedding model name.
	Model string

	// BaseURL overrides the API endpoint for the openai provider.
	BaseURL string

	// APIKey authenticates against the openai provider.
	APIKey string

	// CacheDir is the local model cache directory for fastembed.
	CacheDir string
}

// NewProvider creates an embedding provider from the configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "fastembed", "":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "openai", "tei":
		return NewOpenAIProvider(OpenAIConfig{
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// modelDimension guesses the embedding dimension from the model name.
// Used where the API does not report it.
func modelDimension(model string) int {
	known := map[string]int{
		"text-embedding-3-small":                 1536,
		"text-embedding-3-large":                 3072,
		"text-embedding-ada-002":                 1536,
		"BAAI/bge-small-en-v1.5":                 384,
		"BAAI/bge-base-en-v1.5":                  768,
		"sentence-transformers/all-MiniLM-L6-v2": 384,
	}
	if dim, ok := known[model]; ok {
		return dim
	}
	switch {
	case strings.Contains(model, "large"):
		return 1024
	case strings.Contains(model, "base"):
		return 768
	default:
		return 384
	}
}
