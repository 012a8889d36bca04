package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/citeguard/internal/vectorstore"
)

// fakeStore returns canned results per collection name.
type fakeStore struct {
	results map[string][]vectorstore.SearchResult
	err     error
	queries []string
}

func (f *fakeStore) AddDocuments(_ context.Context, _ string, docs []vectorstore.Document) ([]string, error) {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

func (f *fakeStore) Search(_ context.Context, collection, query string, k int) ([]vectorstore.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.queries = append(f.queries, collection+":"+query)
	hits := f.results[collection]
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (f *fakeStore) DeleteCollection(_ context.Context, _ string) error { return nil }
func (f *fakeStore) Close() error                                       { return nil }

func hit(id string, score float32, docID string, lineStart, lineEnd int) vectorstore.SearchResult {
	return vectorstore.SearchResult{
		ID:      id,
		Content: "content of " + id,
		Score:   score,
		Metadata: map[string]any{
			"document_id": docID,
			"line_start":  int64(lineStart),
			"line_end":    int64(lineEnd),
		},
	}
}

func TestNew_Validation(t *testing.T) {
	store := &fakeStore{}

	_, err := New(nil, Config{TopK: 5}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(store, Config{TopK: 0}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(store, Config{TopK: 5, MergeStrategy: "best"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	r, err := New(store, Config{TopK: 5}, nil)
	require.NoError(t, err)
	require.NotNil(t, r)
}

func TestRetrieve_NoCorpora(t *testing.T) {
	r, err := New(&fakeStore{}, Config{TopK: 5}, nil)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "query", nil)
	assert.ErrorIs(t, err, ErrNoCorpora)
}

func TestRetrieve_SingleCorpus(t *testing.T) {
	store := &fakeStore{results: map[string][]vectorstore.SearchResult{
		"docs": {
			hit("doc_a:0", 0.9, "doc_a", 1, 5),
			hit("doc_a:1", 0.7, "doc_a", 4, 9),
		},
	}}
	r, err := New(store, Config{TopK: 5}, nil)
	require.NoError(t, err)

	candidates, err := r.Retrieve(context.Background(), "query", []string{"docs"})
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "doc_a:0", candidates[0].ChunkID)
	assert.Equal(t, "doc_a", candidates[0].DocumentID)
	assert.Equal(t, "docs", candidates[0].Corpus)
	assert.InDelta(t, 0.9, candidates[0].Similarity, 1e-6)
	assert.Equal(t, 1, candidates[0].LineStart)
	assert.Equal(t, 5, candidates[0].LineEnd)
}

func TestRetrieve_RoundRobinMerge(t *testing.T) {
	store := &fakeStore{results: map[string][]vectorstore.SearchResult{
		"a": {hit("a:0", 0.9, "a", 1, 1), hit("a:1", 0.8, "a", 2, 2)},
		"b": {hit("b:0", 0.5, "b", 1, 1), hit("b:1", 0.4, "b", 2, 2)},
	}}
	r, err := New(store, Config{TopK: 10, MergeStrategy: MergeRoundRobin}, nil)
	require.NoError(t, err)

	candidates, err := r.Retrieve(context.Background(), "q", []string{"a", "b"})
	require.NoError(t, err)

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
	}
	assert.Equal(t, []string{"a:0", "b:0", "a:1", "b:1"}, ids)
}

func TestRetrieve_ScoreMerge(t *testing.T) {
	store := &fakeStore{results: map[string][]vectorstore.SearchResult{
		"a": {hit("a:0", 0.6, "a", 1, 1)},
		"b": {hit("b:0", 0.9, "b", 1, 1), hit("b:1", 0.3, "b", 2, 2)},
	}}
	r, err := New(store, Config{TopK: 10, MergeStrategy: MergeScore}, nil)
	require.NoError(t, err)

	candidates, err := r.Retrieve(context.Background(), "q", []string{"a", "b"})
	require.NoError(t, err)

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
	}
	assert.Equal(t, []string{"b:0", "a:0", "b:1"}, ids)
}

func TestRetrieve_DedupeAndTruncate(t *testing.T) {
	shared := hit("shared:0", 0.8, "shared", 1, 1)
	store := &fakeStore{results: map[string][]vectorstore.SearchResult{
		"a": {shared, hit("a:1", 0.7, "a", 1, 1)},
		"b": {shared, hit("b:1", 0.6, "b", 1, 1)},
	}}
	r, err := New(store, Config{TopK: 2}, nil)
	require.NoError(t, err)

	candidates, err := r.Retrieve(context.Background(), "q", []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "shared:0", candidates[0].ChunkID)
	assert.NotEqual(t, candidates[0].ChunkID, candidates[1].ChunkID)
}

func TestRetrieve_EmptyCorpus(t *testing.T) {
	store := &fakeStore{results: map[string][]vectorstore.SearchResult{}}
	r, err := New(store, Config{TopK: 5}, nil)
	require.NoError(t, err)

	candidates, err := r.Retrieve(context.Background(), "q", []string{"missing"})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestRetrieve_StoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	r, err := New(&fakeStore{err: storeErr}, Config{TopK: 5}, nil)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "q", []string{"docs"})
	assert.ErrorIs(t, err, storeErr)
}
