// Package vectorstore defines the interface for vector storage operations.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrConnectionFailed indicates the external store is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// Embedder generates vector embeddings from text.
//
// Embeddings are dense numerical representations that capture semantic
// meaning, enabling similarity search. Implementations can use local ONNX
// models (FastEmbed) or OpenAI-compatible APIs.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns a slice of embeddings (one per input text) or an error.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Document represents a chunk record to be stored in the vector store.
type Document struct {
	// ID is the unique identifier for the document (chunk id).
	ID string

	// Content is the text content of the chunk.
	Content string

	// Metadata contains additional key-value pairs preserved verbatim.
	// Common fields: document_id, filename, line_start, line_end.
	Metadata map[string]any
}

// SearchResult represents a similarity search hit.
type SearchResult struct {
	// ID is the document identifier.
	ID string

	// Content is the document text content.
	Content string

	// Score is the similarity score in [0,1] (higher = more similar).
	Score float32

	// Metadata contains the stored document metadata.
	Metadata map[string]any
}

// Store is the interface for vector storage operations.
//
// The interface is transport-agnostic: the embedded chromem implementation
// keeps everything in-process, the Qdrant implementation talks gRPC. Each
// corpus maps to one named collection.
//
// Implementations:
//   - ChromemStore: embedded chromem-go (default)
//   - QdrantStore: external Qdrant gRPC client
type Store interface {
	// AddDocuments embeds and stores documents in the named collection,
	// creating the collection if needed. Returns the stored ids.
	AddDocuments(ctx context.Context, collection string, docs []Document) ([]string, error)

	// Search performs similarity search in the named collection and returns
	// up to k results ordered by similarity score (highest first).
	// A missing or empty collection yields zero results, not an error.
	Search(ctx context.Context, collection string, query string, k int) ([]SearchResult, error)

	// DeleteCollection deletes a collection and all its documents.
	DeleteCollection(ctx context.Context, collection string) error

	// Close releases resources held by the store.
	Close() error
}
