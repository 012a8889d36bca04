// Package pipeline orchestrates the full query path: guardrail
// screening, retrieval, grounding, generation, attribution, and usage
// accounting, with response caching across identical queries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/citeguard/internal/attribution"
	"github.com/fyrsmithlabs/citeguard/internal/chunker"
	"github.com/fyrsmithlabs/citeguard/internal/generation"
	"github.com/fyrsmithlabs/citeguard/internal/guardrail"
	"github.com/fyrsmithlabs/citeguard/internal/observability"
	"github.com/fyrsmithlabs/citeguard/internal/retrieval"
	"github.com/fyrsmithlabs/citeguard/internal/vectorstore"
)

// Sentinel errors for pipeline operations.
var (
	// ErrInvalidInput indicates a malformed request.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProvider wraps failures of external providers (store,
	// embeddings, generation). Distinct from refusals, which are
	// successful outcomes.
	ErrProvider = errors.New("provider failure")
)

// Refusal reasons recorded in envelopes and metrics.
const (
	RefusalInjection = "injection"
	RefusalGrounding = "grounding"
)

// Envelope is the full outcome of one query.
type Envelope struct {
	RequestID string `json:"request_id"`
	Query     string `json:"query"`

	// Answer is empty when Refused is true.
	Answer string `json:"answer,omitempty"`

	// Refused marks guardrail refusals; RefusalReason is RefusalInjection
	// or RefusalGrounding and Answer carries the user-facing message
	// via RefusalMessage.
	Refused        bool   `json:"refused"`
	RefusalReason  string `json:"refusal_reason,omitempty"`
	RefusalMessage string `json:"refusal_message,omitempty"`

	// GroundingScore is the aggregated retrieval support for the query.
	GroundingScore float64 `json:"grounding_score"`

	// Attribution maps answer sentences to supporting chunks. Nil for
	// refusals.
	Attribution *attribution.Result `json:"attribution,omitempty"`

	// GuardrailCategories lists detection categories that fired on the
	// query or the response.
	GuardrailCategories []string `json:"guardrail_categories,omitempty"`

	// Usage is the cumulated token cost of this request's provider calls.
	Usage []observability.UsageRecord `json:"usage,omitempty"`

	// CacheHit is true when the envelope was served from cache. The
	// RequestID is still fresh per request.
	CacheHit bool `json:"cache_hit"`

	// Corpora are the collections consulted.
	Corpora []string `json:"corpora"`

	// Duration is the end-to-end processing time.
	Duration time.Duration `json:"duration"`
}

// Config holds pipeline-level parameters.
type Config struct {
	// CacheSize and CacheTTL bound the response cache. Defaults: 256
	// entries, 15 minutes.
	CacheSize int
	CacheTTL  time.Duration
}

func (c *Config) applyDefaults() {
	if c.CacheSize == 0 {
		c.CacheSize = 256
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 15 * time.Minute
	}
}

// cachedAnswer is what the response cache stores: the generated answer
// and its attribution, not the whole envelope, so per-request fields
// stay fresh.
type cachedAnswer struct {
	answer      string
	grounding   float64
	attribution attribution.Result
	categories  []string
}

// Pipeline wires the stages together. Safe for concurrent use: the
// only mutable state is the corpus registry and the cache, both
// internally synchronized. No lock is held across provider calls.
type Pipeline struct {
	chunker   *chunker.Chunker
	store     vectorstore.Store
	retriever *retrieval.Retriever
	guard     *guardrail.Evaluator
	attrib    *attribution.Engine
	generator generation.Generator
	tracker   *observability.UsageTracker
	cache     *observability.ResponseCache[cachedAnswer]
	metrics   *observability.Metrics
	tracer    oteltrace.Tracer
	logger    *zap.Logger

	// corpora tracks document ids per corpus for cache fingerprinting.
	mu      sync.RWMutex
	corpora map[string]map[string]bool
}

// Deps are the constructed stages the pipeline composes.
type Deps struct {
	Chunker   *chunker.Chunker
	Store     vectorstore.Store
	Retriever *retrieval.Retriever
	Guard     *guardrail.Evaluator
	Attrib    *attribution.Engine
	Generator generation.Generator
	Tracker   *observability.UsageTracker
	Metrics   *observability.Metrics
	Tracer    oteltrace.Tracer
	Logger    *zap.Logger
}

// New creates a Pipeline from its stages.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	cfg.applyDefaults()

	switch {
	case deps.Chunker == nil, deps.Store == nil, deps.Retriever == nil,
		deps.Guard == nil, deps.Attrib == nil, deps.Generator == nil,
		deps.Tracker == nil:
		return nil, fmt.Errorf("%w: all pipeline stages are required", ErrInvalidInput)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("citeguard/pipeline")
	}

	return &Pipeline{
		chunker:   deps.Chunker,
		store:     deps.Store,
		retriever: deps.Retriever,
		guard:     deps.Guard,
		attrib:    deps.Attrib,
		generator: deps.Generator,
		tracker:   deps.Tracker,
		cache:     observability.NewResponseCache[cachedAnswer](cfg.CacheSize, cfg.CacheTTL),
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		logger:    deps.Logger,
		corpora:   make(map[string]map[string]bool),
	}, nil
}

// IngestResult reports one document ingestion.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Corpus     string `json:"corpus"`
	Chunks     int    `json:"chunks"`
}

// Ingest chunks a document and stores it in the corpus. Re-ingesting
// identical content is idempotent at the store level; any ingestion
// changes the corpus fingerprint and thereby invalidates cached answers.
func (p *Pipeline) Ingest(ctx context.Context, corpus, filename, text string, metadata map[string]any) (*IngestResult, error) {
	if corpus == "" {
		return nil, fmt.Errorf("%w: corpus is required", ErrInvalidInput)
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.ingest",
		oteltrace.WithAttributes(attribute.String("corpus", corpus)))
	defer span.End()

	chunks := p.chunker.Chunk(text, filename, metadata)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document is empty", ErrInvalidInput)
	}
	span.SetAttributes(attribute.Int("chunks", len(chunks)))

	docs := make([]vectorstore.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chunk.ToDocument()
	}
	if _, err := p.store.AddDocuments(ctx, corpus, docs); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	p.mu.Lock()
	if p.corpora[corpus] == nil {
		p.corpora[corpus] = make(map[string]bool)
	}
	p.corpora[corpus][chunks[0].DocumentID] = true
	p.mu.Unlock()

	p.logger.Info("document ingested",
		zap.String("corpus", corpus),
		zap.String("document_id", chunks[0].DocumentID),
		zap.Int("chunks", len(chunks)),
	)
	return &IngestResult{
		DocumentID: chunks[0].DocumentID,
		Corpus:     corpus,
		Chunks:     len(chunks),
	}, nil
}

// Answer runs the full query path. Refusals are successful outcomes
// with Refused set; only provider failures return an error.
func (p *Pipeline) Answer(ctx context.Context, query string, corpora []string) (*Envelope, error) {
	start := time.Now()
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if len(corpora) == 0 {
		return nil, fmt.Errorf("%w: at least one corpus is required", ErrInvalidInput)
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.answer",
		oteltrace.WithAttributes(attribute.Int("corpora", len(corpora))))
	defer span.End()

	env := &Envelope{
		RequestID: uuid.NewString(),
		Query:     query,
		Corpora:   corpora,
	}

	// Query guardrail. A refusal here short-circuits everything: no
	// retrieval, no generation, no cache write.
	_, guardSpan := p.tracer.Start(ctx, "pipeline.guardrail.query")
	queryVerdict := p.guard.EvaluateQuery(query)
	guardSpan.End()
	env.GuardrailCategories = queryVerdict.Categories
	if !queryVerdict.Allowed {
		env.Refused = true
		env.RefusalReason = RefusalInjection
		env.RefusalMessage = queryVerdict.Reason
		env.Duration = time.Since(start)
		span.SetAttributes(attribute.String("outcome", "refused"))
		p.countQuery("refused", RefusalInjection, env.Duration)
		return env, nil
	}
	sanitized := queryVerdict.Sanitized

	// Cache lookup against the current corpus fingerprint.
	key := observability.CacheKey(sanitized, p.fingerprint(corpora))
	if hit, ok := p.cache.Get(key); ok {
		p.tracker.CacheHit()
		env.Answer = hit.answer
		env.GroundingScore = hit.grounding
		attrib := hit.attribution
		env.Attribution = &attrib
		env.GuardrailCategories = mergeCategories(env.GuardrailCategories, hit.categories)
		env.CacheHit = true
		env.Duration = time.Since(start)
		span.SetAttributes(attribute.Bool("cache_hit", true))
		p.countQuery("cached", "", env.Duration)
		return env, nil
	}
	p.tracker.CacheMiss()

	retrieveCtx, retrieveSpan := p.tracer.Start(ctx, "pipeline.retrieve")
	candidates, err := p.retriever.Retrieve(retrieveCtx, sanitized, corpora)
	if err != nil {
		retrieveSpan.RecordError(err)
		retrieveSpan.End()
		p.countQuery("error", "", time.Since(start))
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	retrieveSpan.SetAttributes(attribute.Int("candidates", len(candidates)))
	retrieveSpan.End()

	grounding := p.guard.EvaluateGrounding(candidates)
	env.GroundingScore = grounding.Score
	span.SetAttributes(attribute.Float64("grounding_score", grounding.Score))
	if p.metrics != nil {
		p.metrics.GroundingScore.Observe(grounding.Score)
	}
	if !grounding.Grounded {
		env.Refused = true
		env.RefusalReason = RefusalGrounding
		env.RefusalMessage = grounding.Reason
		env.Duration = time.Since(start)
		span.SetAttributes(attribute.String("outcome", "refused"))
		p.countQuery("refused", RefusalGrounding, env.Duration)
		return env, nil
	}

	contextTexts := make([]string, len(candidates))
	for i, c := range candidates {
		contextTexts[i] = c.Text
	}
	generateCtx, generateSpan := p.tracer.Start(ctx, "pipeline.generate")
	generated, err := p.generator.Generate(generateCtx, sanitized, contextTexts)
	if err != nil {
		generateSpan.RecordError(err)
		generateSpan.End()
		p.countQuery("error", "", time.Since(start))
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	generateSpan.SetAttributes(
		attribute.Int("input_tokens", generated.InputTokens),
		attribute.Int("output_tokens", generated.OutputTokens),
	)
	generateSpan.End()
	usage := p.tracker.Record(p.generator.Model(), "generation",
		generated.InputTokens, generated.OutputTokens)
	env.Usage = append(env.Usage, usage)

	_, responseSpan := p.tracer.Start(ctx, "pipeline.guardrail.response")
	responseVerdict := p.guard.EvaluateResponse(generated.Text)
	responseSpan.End()
	answer := responseVerdict.Sanitized
	env.GuardrailCategories = mergeCategories(env.GuardrailCategories, responseVerdict.Categories)

	_, attribSpan := p.tracer.Start(ctx, "pipeline.attribute")
	attrib := p.attrib.Attribute(answer, candidates)
	attribSpan.SetAttributes(attribute.Float64("hallucination_rate", attrib.HallucinationRate))
	attribSpan.End()
	env.Answer = answer
	env.Attribution = &attrib
	if p.metrics != nil {
		p.metrics.HallucinationRate.Observe(attrib.HallucinationRate)
	}

	p.cache.Put(key, cachedAnswer{
		answer:      answer,
		grounding:   grounding.Score,
		attribution: attrib,
		categories:  responseVerdict.Categories,
	})

	env.Duration = time.Since(start)
	span.SetAttributes(attribute.String("outcome", "answered"))
	p.countQuery("answered", "", env.Duration)
	p.logger.Info("query answered",
		zap.String("request_id", env.RequestID),
		zap.Float64("grounding_score", grounding.Score),
		zap.Float64("hallucination_rate", attrib.HallucinationRate),
		zap.Duration("duration", env.Duration),
	)
	return env, nil
}

// Usage returns the session's accumulated usage statistics.
func (p *Pipeline) Usage() observability.SessionStats {
	return p.tracker.Stats()
}

// DeleteCorpus removes a corpus and forgets its fingerprint state.
func (p *Pipeline) DeleteCorpus(ctx context.Context, corpus string) error {
	if err := p.store.DeleteCollection(ctx, corpus); err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	p.mu.Lock()
	delete(p.corpora, corpus)
	p.mu.Unlock()
	return nil
}

// fingerprint hashes the document sets of the consulted corpora.
func (p *Pipeline) fingerprint(corpora []string) string {
	p.mu.RLock()
	var ids []string
	for _, corpus := range corpora {
		for id := range p.corpora[corpus] {
			ids = append(ids, corpus+"/"+id)
		}
	}
	p.mu.RUnlock()

	sort.Strings(ids)
	return observability.CorpusFingerprint(ids)
}

// countQuery updates outcome and latency metrics when metrics are wired.
func (p *Pipeline) countQuery(outcome, refusalReason string, elapsed time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.QueriesTotal.WithLabelValues(outcome).Inc()
	p.metrics.QueryDuration.Observe(elapsed.Seconds())
	if refusalReason != "" {
		p.metrics.RefusalsTotal.WithLabelValues(refusalReason).Inc()
	}
}

func mergeCategories(a, b []string) []string {
	out := a
	for _, v := range b {
		found := false
		for _, existing := range out {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			out = append(out, v)
		}
	}
	return out
}
