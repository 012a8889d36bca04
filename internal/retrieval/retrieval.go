// Package retrieval performs multi-corpus similarity search and merges
// the per-corpus result streams into a single candidate list.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/citeguard/internal/vectorstore"
)

// Sentinel errors for retrieval operations.
var (
	// ErrInvalidConfig indicates invalid retriever parameters.
	ErrInvalidConfig = errors.New("invalid retrieval configuration")

	// ErrNoCorpora indicates retrieval was requested with no corpora.
	ErrNoCorpora = errors.New("no corpora specified")
)

// Merge strategies for combining per-corpus result streams.
const (
	// MergeRoundRobin interleaves corpora so each contributes results
	// even when one corpus dominates on raw similarity.
	MergeRoundRobin = "roundrobin"

	// MergeScore globally orders all candidates by similarity.
	MergeScore = "score"
)

// Candidate is a retrieved chunk scored against a query. It carries the
// citation fields downstream guardrail and attribution stages need.
type Candidate struct {
	ChunkID    string         `json:"chunk_id"`
	DocumentID string         `json:"document_id"`
	Corpus     string         `json:"corpus"`
	Text       string         `json:"text"`
	Similarity float64        `json:"similarity"`
	LineStart  int            `json:"line_start"`
	LineEnd    int            `json:"line_end"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Config holds retriever parameters.
type Config struct {
	// TopK is the maximum number of candidates returned per query.
	TopK int

	// PerCorpusK is how many results to fetch from each corpus before
	// merging. Defaults to TopK.
	PerCorpusK int

	// MergeStrategy is MergeRoundRobin (default) or MergeScore.
	MergeStrategy string
}

// Retriever searches one or more corpora and merges the results.
type Retriever struct {
	store  vectorstore.Store
	config Config
	logger *zap.Logger
}

// New creates a Retriever.
func New(store vectorstore.Store, cfg Config, logger *zap.Logger) (*Retriever, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if cfg.TopK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, cfg.TopK)
	}
	if cfg.PerCorpusK == 0 {
		cfg.PerCorpusK = cfg.TopK
	}
	if cfg.PerCorpusK < 0 {
		return nil, fmt.Errorf("%w: per_corpus_k cannot be negative", ErrInvalidConfig)
	}
	switch cfg.MergeStrategy {
	case "", MergeRoundRobin:
		cfg.MergeStrategy = MergeRoundRobin
	case MergeScore:
	default:
		return nil, fmt.Errorf("%w: unknown merge strategy %q", ErrInvalidConfig, cfg.MergeStrategy)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{store: store, config: cfg, logger: logger}, nil
}

// Retrieve searches each corpus in order and returns up to TopK merged,
// deduplicated candidates. A corpus with no matching collection simply
// contributes nothing; a store error aborts the whole retrieval.
func (r *Retriever) Retrieve(ctx context.Context, query string, corpora []string) ([]Candidate, error) {
	if len(corpora) == 0 {
		return nil, ErrNoCorpora
	}

	streams := make([][]Candidate, 0, len(corpora))
	for _, corpus := range corpora {
		hits, err := r.store.Search(ctx, corpus, query, r.config.PerCorpusK)
		if err != nil {
			return nil, fmt.Errorf("searching corpus %s: %w", corpus, err)
		}
		candidates := make([]Candidate, 0, len(hits))
		for _, hit := range hits {
			candidates = append(candidates, fromSearchResult(hit, corpus))
		}
		streams = append(streams, candidates)
	}

	var merged []Candidate
	switch r.config.MergeStrategy {
	case MergeScore:
		merged = mergeByScore(streams)
	default:
		merged = mergeRoundRobin(streams)
	}

	merged = dedupe(merged)
	if len(merged) > r.config.TopK {
		merged = merged[:r.config.TopK]
	}

	r.logger.Debug("retrieval complete",
		zap.Int("corpora", len(corpora)),
		zap.Int("candidates", len(merged)),
	)
	return merged, nil
}

// fromSearchResult converts a store hit to a Candidate, pulling citation
// fields out of metadata.
func fromSearchResult(hit vectorstore.SearchResult, corpus string) Candidate {
	c := Candidate{
		ChunkID:    hit.ID,
		Corpus:     corpus,
		Text:       hit.Content,
		Similarity: float64(hit.Score),
		Metadata:   hit.Metadata,
	}
	if v, ok := hit.Metadata["document_id"].(string); ok {
		c.DocumentID = v
	}
	c.LineStart = metaInt(hit.Metadata, "line_start")
	c.LineEnd = metaInt(hit.Metadata, "line_end")
	return c
}

// metaInt reads an integer metadata field regardless of how the store
// round-tripped it.
func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// mergeRoundRobin interleaves the streams: first hit of each corpus,
// then second of each, and so on.
func mergeRoundRobin(streams [][]Candidate) []Candidate {
	var merged []Candidate
	for i := 0; ; i++ {
		advanced := false
		for _, stream := range streams {
			if i < len(stream) {
				merged = append(merged, stream[i])
				advanced = true
			}
		}
		if !advanced {
			return merged
		}
	}
}

// mergeByScore concatenates the streams and sorts by similarity,
// descending. Ties keep stream order for determinism.
func mergeByScore(streams [][]Candidate) []Candidate {
	var merged []Candidate
	for _, stream := range streams {
		merged = append(merged, stream...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	return merged
}

// dedupe drops later occurrences of a chunk id, preserving order. The
// same chunk can surface from multiple corpora sharing a document.
func dedupe(candidates []Candidate) []Candidate {
	seen := make(map[string]bool, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		if seen[c.ChunkID] {
			continue
		}
		seen[c.ChunkID] = true
		out = append(out, c)
	}
	return out
}
