package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/citeguard/internal/attribution"
	"github.com/fyrsmithlabs/citeguard/internal/chunker"
	"github.com/fyrsmithlabs/citeguard/internal/config"
	"github.com/fyrsmithlabs/citeguard/internal/embeddings"
	"github.com/fyrsmithlabs/citeguard/internal/generation"
	"github.com/fyrsmithlabs/citeguard/internal/guardrail"
	"github.com/fyrsmithlabs/citeguard/internal/httpapi"
	"github.com/fyrsmithlabs/citeguard/internal/logging"
	"github.com/fyrsmithlabs/citeguard/internal/observability"
	"github.com/fyrsmithlabs/citeguard/internal/pipeline"
	"github.com/fyrsmithlabs/citeguard/internal/retrieval"
	"github.com/fyrsmithlabs/citeguard/internal/telemetry"
	"github.com/fyrsmithlabs/citeguard/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the citeguardd HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Protocol:    cfg.Telemetry.Protocol,
		SampleRate:  cfg.Telemetry.SampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	p, store, err := buildPipeline(cfg, tel, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("store close failed", zap.Error(err))
		}
	}()

	server, err := httpapi.NewServer(p, httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// buildPipeline constructs every stage from config and wires them.
func buildPipeline(cfg *config.Config, tel *telemetry.Telemetry, logger *zap.Logger) (*pipeline.Pipeline, vectorstore.Store, error) {
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	tracker := observability.NewUsageTracker(nil, metrics)

	embedder, err := embeddings.NewProvider(embeddings.Config{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		APIKey:   cfg.Embeddings.APIKey.Value(),
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	tracked := embeddings.NewTrackedProvider(embedder, tracker)

	store, err := vectorstore.NewStore(vectorstore.Config{
		Provider: cfg.VectorStore.Provider,
		Chromem: vectorstore.ChromemConfig{
			Path:     cfg.VectorStore.Path,
			Compress: cfg.VectorStore.Compress,
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:       cfg.VectorStore.Host,
			Port:       cfg.VectorStore.Port,
			VectorSize: cfg.VectorStore.VectorSize,
			UseTLS:     cfg.VectorStore.UseTLS,
		},
	}, tracked, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating vector store: %w", err)
	}

	ck, err := chunker.New(chunker.Config{
		Size:    cfg.Chunking.Size,
		Overlap: cfg.Chunking.Overlap,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating chunker: %w", err)
	}

	retriever, err := retrieval.New(store, retrieval.Config{
		TopK:          cfg.Retrieval.TopK,
		PerCorpusK:    cfg.Retrieval.PerCorpusK,
		MergeStrategy: cfg.Retrieval.MergeStrategy,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating retriever: %w", err)
	}

	guard, err := guardrail.New(guardrail.Config{
		InjectionPolicy:    cfg.Guardrails.InjectionPolicy,
		GroundingThreshold: cfg.Guardrails.GroundingThreshold,
		Aggregation:        cfg.Guardrails.Aggregation,
		AggregationTopK:    cfg.Guardrails.AggregationTopK,
		ScanSecrets:        cfg.Guardrails.ScanSecrets,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating guardrail evaluator: %w", err)
	}

	attrib, err := attribution.New(attribution.Config{
		CitationThreshold: cfg.Attribution.CitationThreshold,
		MaxCitations:      cfg.Attribution.MaxCitations,
		MinCitations:      cfg.Attribution.MinCitations,
	}, nil, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating attribution engine: %w", err)
	}

	generator, err := generation.NewOpenAIGenerator(generation.Config{
		Model:             cfg.Generation.Model,
		BaseURL:           cfg.Generation.BaseURL,
		APIKey:            cfg.Generation.APIKey.Value(),
		MaxTokens:         cfg.Generation.MaxTokens,
		RequestsPerSecond: cfg.Generation.RequestsPerSecond,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating generator: %w", err)
	}

	p, err := pipeline.New(pipeline.Config{
		CacheSize: cfg.Cache.Size,
		CacheTTL:  cfg.Cache.TTL.Duration(),
	}, pipeline.Deps{
		Chunker:   ck,
		Store:     store,
		Retriever: retriever,
		Guard:     guard,
		Attrib:    attrib,
		Generator: generator,
		Tracker:   tracker,
		Metrics:   metrics,
		Tracer:    tel.Tracer("citeguard/pipeline"),
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating pipeline: %w", err)
	}
	return p, store, nil
}
