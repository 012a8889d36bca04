package observability

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ResponseCache is a TTL'd LRU keyed by normalized query and corpus
// fingerprint. Eviction happens on capacity; expiry is checked on read
// and swept in the background by the underlying cache.
type ResponseCache[V any] struct {
	lru *expirable.LRU[string, V]
}

// NewResponseCache creates a cache holding up to size entries, each
// valid for ttl. A zero ttl means entries never expire.
func NewResponseCache[V any](size int, ttl time.Duration) *ResponseCache[V] {
	return &ResponseCache[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

// Get returns the cached value for key, if present and unexpired.
func (c *ResponseCache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

// Put stores a value under key.
func (c *ResponseCache[V]) Put(key string, value V) {
	c.lru.Add(key, value)
}

// Purge drops all entries.
func (c *ResponseCache[V]) Purge() {
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *ResponseCache[V]) Len() int {
	return c.lru.Len()
}

// CacheKey derives the cache key for a query against a corpus state.
// The query is lowercased and whitespace-collapsed so trivially
// rephrased whitespace does not defeat the cache; the fingerprint ties
// the entry to the exact document set, so any ingestion invalidates it.
func CacheKey(query, corpusFingerprint string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(normalized + ":" + corpusFingerprint))
	return hex.EncodeToString(sum[:])
}

// CorpusFingerprint hashes a sorted set of document ids into a stable
// corpus identity. Order of the input does not matter.
func CorpusFingerprint(documentIDs []string) string {
	sorted := make([]string, len(documentIDs))
	copy(sorted, documentIDs)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}
