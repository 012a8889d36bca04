package embeddings

import (
	"context"

	"github.com/fyrsmithlabs/citeguard/internal/observability"
)

// TrackedProvider wraps a Provider and accounts for every embedding
// call in a UsageTracker. Embedding APIs do not report token counts, so
// tokens are estimated from input length. Failed calls record nothing.
type TrackedProvider struct {
	Provider
	tracker *observability.UsageTracker
}

// NewTrackedProvider wraps provider so its embedding calls are recorded
// against tracker.
func NewTrackedProvider(provider Provider, tracker *observability.UsageTracker) *TrackedProvider {
	return &TrackedProvider{Provider: provider, tracker: tracker}
}

// EmbedDocuments embeds texts and records one usage entry for the batch.
func (t *TrackedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := t.Provider.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}

	tokens := 0
	for _, text := range texts {
		tokens += observability.EstimateTokens(text)
	}
	t.tracker.Record(t.Model(), "embedding", tokens, 0)
	return vectors, nil
}

// EmbedQuery embeds a single query and records its usage.
func (t *TrackedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := t.Provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	t.tracker.Record(t.Model(), "embedding", observability.EstimateTokens(text), 0)
	return vector, nil
}
