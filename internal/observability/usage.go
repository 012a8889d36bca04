// Package observability tracks token usage and cost per model and
// caches responses keyed by normalized query and corpus state.
package observability

import (
	"sync"
	"time"
)

// defaultPriceModel is the pricing fallback for unknown models.
const defaultPriceModel = "gpt-4o-mini"

// ModelPrice is the cost per one million tokens, in USD.
type ModelPrice struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// DefaultPrices is the built-in price table. Prices are USD per 1M
// tokens. Embedding models only consume input tokens.
var DefaultPrices = map[string]ModelPrice{
	"gpt-4o-mini":            {InputPerMillion: 0.150, OutputPerMillion: 0.600},
	"gpt-4o":                 {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4":                  {InputPerMillion: 30.00, OutputPerMillion: 60.00},
	"text-embedding-3-small": {InputPerMillion: 0.020},
	"text-embedding-3-large": {InputPerMillion: 0.130},
	"text-embedding-ada-002": {InputPerMillion: 0.100},
}

// UsageRecord is one provider call's accounting entry.
type UsageRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Model        string    `json:"model"`
	Operation    string    `json:"operation"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
}

// SessionStats summarizes accumulated usage.
type SessionStats struct {
	Requests     int                `json:"requests"`
	InputTokens  int                `json:"input_tokens"`
	OutputTokens int                `json:"output_tokens"`
	CostUSD      float64            `json:"cost_usd"`
	CostByModel  map[string]float64 `json:"cost_by_model"`
	CacheHits    int                `json:"cache_hits"`
	CacheMisses  int                `json:"cache_misses"`
}

// CacheHitRate is hits / (hits + misses), 0 with no lookups.
func (s SessionStats) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// UsageTracker accumulates token usage and cost across a session.
// Safe for concurrent use.
type UsageTracker struct {
	mu      sync.Mutex
	prices  map[string]ModelPrice
	records []UsageRecord
	stats   SessionStats
	metrics *Metrics
}

// NewUsageTracker creates a tracker. A nil price table uses
// DefaultPrices; a nil metrics handle disables Prometheus updates.
func NewUsageTracker(prices map[string]ModelPrice, metrics *Metrics) *UsageTracker {
	if prices == nil {
		prices = DefaultPrices
	}
	return &UsageTracker{
		prices:  prices,
		metrics: metrics,
		stats:   SessionStats{CostByModel: make(map[string]float64)},
	}
}

// Record accounts for one provider call and returns the computed record.
// Unknown models price as gpt-4o-mini rather than silently costing zero.
func (t *UsageTracker) Record(model, operation string, inputTokens, outputTokens int) UsageRecord {
	price, ok := t.prices[model]
	if !ok {
		price = t.prices[defaultPriceModel]
	}
	cost := float64(inputTokens)/1e6*price.InputPerMillion +
		float64(outputTokens)/1e6*price.OutputPerMillion

	record := UsageRecord{
		Timestamp:    time.Now().UTC(),
		Model:        model,
		Operation:    operation,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
	}

	t.mu.Lock()
	t.records = append(t.records, record)
	t.stats.Requests++
	t.stats.InputTokens += inputTokens
	t.stats.OutputTokens += outputTokens
	t.stats.CostUSD += cost
	t.stats.CostByModel[model] += cost
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordUsage(model, operation, inputTokens, outputTokens, cost)
	}
	return record
}

// CacheHit counts a served-from-cache lookup.
func (t *UsageTracker) CacheHit() {
	t.mu.Lock()
	t.stats.CacheHits++
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.CacheHits.Inc()
	}
}

// CacheMiss counts a lookup that fell through to the provider.
func (t *UsageTracker) CacheMiss() {
	t.mu.Lock()
	t.stats.CacheMisses++
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.CacheMisses.Inc()
	}
}

// Stats returns a copy of the accumulated session statistics.
func (t *UsageTracker) Stats() SessionStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.stats
	stats.CostByModel = make(map[string]float64, len(t.stats.CostByModel))
	for k, v := range t.stats.CostByModel {
		stats.CostByModel[k] = v
	}
	return stats
}

// Records returns a copy of all usage records in insertion order.
func (t *UsageTracker) Records() []UsageRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]UsageRecord, len(t.records))
	copy(out, t.records)
	return out
}

// EstimateTokens approximates the token count of a text when the
// provider does not report one. Four characters per token is the usual
// rough cut for English.
func EstimateTokens(text string) int {
	return len(text) / 4
}
