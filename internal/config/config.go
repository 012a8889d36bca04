// Package config provides configuration loading for citeguardd.
//
// Configuration is loaded from a YAML file, then overridden by
// environment variables, with hardcoded defaults below both.
package config

import (
	"fmt"
	"time"
)

// Config is the complete citeguardd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Guardrails  GuardrailsConfig  `koanf:"guardrails"`
	Attribution AttributionConfig `koanf:"attribution"`
	Cache       CacheConfig       `koanf:"cache"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Generation  GenerationConfig  `koanf:"generation"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds zap logger settings.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `koanf:"level"`

	// Format is "json" (production) or "console".
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`

	// Endpoint is the OTLP collector address, host:port.
	Endpoint string `koanf:"endpoint"`

	// Protocol is "grpc" (default) or "http".
	Protocol string `koanf:"protocol"`

	// SampleRate is the trace sampling ratio in [0,1].
	SampleRate float64 `koanf:"sample_rate"`
}

// ChunkingConfig holds document chunking settings, in words.
type ChunkingConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// RetrievalConfig holds retriever settings.
type RetrievalConfig struct {
	TopK          int    `koanf:"top_k"`
	PerCorpusK    int    `koanf:"per_corpus_k"`
	MergeStrategy string `koanf:"merge_strategy"`
}

// GuardrailsConfig holds guardrail evaluator settings.
type GuardrailsConfig struct {
	InjectionPolicy    string  `koanf:"injection_policy"`
	GroundingThreshold float64 `koanf:"grounding_threshold"`
	Aggregation        string  `koanf:"aggregation"`
	AggregationTopK    int     `koanf:"aggregation_top_k"`
	ScanSecrets        bool    `koanf:"scan_secrets"`
}

// AttributionConfig holds attribution engine settings.
type AttributionConfig struct {
	CitationThreshold float64 `koanf:"citation_threshold"`
	MaxCitations      int     `koanf:"max_citations"`
	MinCitations      int     `koanf:"min_citations"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Size int      `koanf:"size"`
	TTL  Duration `koanf:"ttl"`
}

// EmbeddingsConfig holds embedding provider settings.
type EmbeddingsConfig struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	CacheDir string `koanf:"cache_dir"`
}

// GenerationConfig holds chat generation settings.
type GenerationConfig struct {
	Model             string  `koanf:"model"`
	BaseURL           string  `koanf:"base_url"`
	APIKey            Secret  `koanf:"api_key"`
	MaxTokens         int     `koanf:"max_tokens"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string `koanf:"provider"`

	// Path is the chromem persistence directory; empty means in-memory.
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`

	// Qdrant connection settings.
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	VectorSize int    `koanf:"vector_size"`
	UseTLS     bool   `koanf:"use_tls"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8520,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "citeguardd",
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			SampleRate:  1.0,
		},
		Chunking: ChunkingConfig{
			Size:    512,
			Overlap: 50,
		},
		Retrieval: RetrievalConfig{
			TopK:          5,
			MergeStrategy: "roundrobin",
		},
		Guardrails: GuardrailsConfig{
			InjectionPolicy:    "refuse",
			GroundingThreshold: 0.62,
			Aggregation:        "max",
			AggregationTopK:    3,
			ScanSecrets:        true,
		},
		Attribution: AttributionConfig{
			CitationThreshold: 0.65,
			MaxCitations:      3,
			MinCitations:      1,
		},
		Cache: CacheConfig{
			Size: 256,
			TTL:  Duration(15 * time.Minute),
		},
		Embeddings: EmbeddingsConfig{
			Provider: "fastembed",
			Model:    "BAAI/bge-small-en-v1.5",
		},
		Generation: GenerationConfig{
			Model:             "gpt-4o-mini",
			MaxTokens:         1024,
			RequestsPerSecond: 2,
		},
		VectorStore: VectorStoreConfig{
			Provider:   "chromem",
			VectorSize: 384,
		},
	}
}

// Validate rejects configurations the pipeline cannot run with. Stage
// constructors re-validate their own sections; this catches the
// cross-cutting basics before any stage is built.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return fmt.Errorf("service name required when telemetry is enabled")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry sample rate %v not in [0,1]", c.Telemetry.SampleRate)
	}
	if c.Chunking.Size <= 0 || c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("invalid chunking: size %d, overlap %d", c.Chunking.Size, c.Chunking.Overlap)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval top_k must be positive")
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	return nil
}
