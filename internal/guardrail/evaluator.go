// Package guardrail screens queries and responses for prompt injection,
// PII, and leaked secrets, and decides whether retrieval results ground
// a query well enough to answer it.
package guardrail

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/citeguard/internal/retrieval"
)

// Sentinel errors for guardrail configuration.
var (
	// ErrInvalidConfig indicates invalid guardrail parameters.
	ErrInvalidConfig = errors.New("invalid guardrail configuration")
)

// Injection handling policies.
const (
	// PolicyRefuse rejects the query outright (default).
	PolicyRefuse = "refuse"

	// PolicyNeutralize strips the injected instruction and continues.
	PolicyNeutralize = "neutralize"
)

// Grounding score aggregation strategies.
const (
	AggregationMax      = "max"
	AggregationMean     = "mean"
	AggregationTopKMean = "topk_mean"
)

// Refusal messages returned verbatim to callers.
const (
	injectionRefusal = "I detected an attempt to alter my instructions. Please ask your question normally."
	groundingRefusal = "I don't have enough relevant information in my knowledge base to answer this question confidently (grounding score: %.2f, threshold: %.2f). Please try rephrasing your question or asking about a different topic."
)

// Verdict is the outcome of screening a piece of text. Categories and
// Patterns name what fired; the matched text itself is never recorded.
type Verdict struct {
	// Allowed is false when the text must be refused.
	Allowed bool `json:"allowed"`

	// Sanitized is the text with PII redacted and, under the neutralize
	// policy, injected instructions removed.
	Sanitized string `json:"sanitized"`

	// Categories lists the detection categories that fired.
	Categories []string `json:"categories,omitempty"`

	// Patterns lists the individual pattern names that fired.
	Patterns []string `json:"patterns,omitempty"`

	// Reason is the user-facing refusal message when Allowed is false.
	Reason string `json:"reason,omitempty"`

	// CatalogVersions identifies the pattern catalogs consulted.
	CatalogVersions []string `json:"catalog_versions,omitempty"`
}

// GroundingResult reports how well retrieved candidates support a query.
type GroundingResult struct {
	// Score is the aggregated similarity across candidates.
	Score float64 `json:"score"`

	// Threshold is the configured minimum.
	Threshold float64 `json:"threshold"`

	// Grounded is true when Score >= Threshold.
	Grounded bool `json:"grounded"`

	// Reason is the user-facing refusal message when not grounded.
	Reason string `json:"reason,omitempty"`
}

// Config holds guardrail parameters.
type Config struct {
	// InjectionPolicy is PolicyRefuse (default) or PolicyNeutralize.
	InjectionPolicy string

	// GroundingThreshold is the minimum aggregated similarity required
	// to attempt generation. Default: 0.62.
	GroundingThreshold float64

	// Aggregation is how per-candidate similarities combine into one
	// grounding score: max (default), mean, or topk_mean.
	Aggregation string

	// AggregationTopK is the K for topk_mean. Default: 3.
	AggregationTopK int

	// ScanSecrets enables gitleaks-based secret detection on responses.
	ScanSecrets bool
}

// applyDefaults fills in unset fields.
func (c *Config) applyDefaults() {
	if c.InjectionPolicy == "" {
		c.InjectionPolicy = PolicyRefuse
	}
	if c.GroundingThreshold == 0 {
		c.GroundingThreshold = 0.62
	}
	if c.Aggregation == "" {
		c.Aggregation = AggregationMax
	}
	if c.AggregationTopK == 0 {
		c.AggregationTopK = 3
	}
}

// validate rejects unusable configurations.
func (c *Config) validate() error {
	switch c.InjectionPolicy {
	case PolicyRefuse, PolicyNeutralize:
	default:
		return fmt.Errorf("%w: unknown injection policy %q", ErrInvalidConfig, c.InjectionPolicy)
	}
	if c.GroundingThreshold < 0 || c.GroundingThreshold > 1 {
		return fmt.Errorf("%w: grounding threshold %v not in [0,1]", ErrInvalidConfig, c.GroundingThreshold)
	}
	switch c.Aggregation {
	case AggregationMax, AggregationMean, AggregationTopKMean:
	default:
		return fmt.Errorf("%w: unknown aggregation %q", ErrInvalidConfig, c.Aggregation)
	}
	if c.AggregationTopK <= 0 {
		return fmt.Errorf("%w: aggregation top_k must be positive", ErrInvalidConfig)
	}
	return nil
}

// Evaluator screens text against immutable pattern catalogs. Safe for
// concurrent use; evaluation holds no mutable state.
type Evaluator struct {
	config  Config
	scanner *secretScanner
	logger  *zap.Logger
}

// New creates an Evaluator. The gitleaks ruleset is compiled here, once,
// when secret scanning is enabled.
func New(cfg Config, logger *zap.Logger) (*Evaluator, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Evaluator{config: cfg, logger: logger}
	if cfg.ScanSecrets {
		scanner, err := newSecretScanner()
		if err != nil {
			return nil, fmt.Errorf("initializing secret scanner: %w", err)
		}
		e.scanner = scanner
	}
	return e, nil
}

// EvaluateQuery screens an inbound query. PII is always redacted; an
// injection match either refuses the query or neutralizes it depending
// on policy.
func (e *Evaluator) EvaluateQuery(query string) Verdict {
	verdict := Verdict{
		Allowed:         true,
		Sanitized:       query,
		CatalogVersions: []string{injectionCatalog.version, piiCatalog.version},
	}

	// PII redaction first so refusal logs never carry raw PII.
	verdict.Sanitized = e.redactPII(verdict.Sanitized, &verdict)

	fired := matchedPatterns(injectionCatalog, verdict.Sanitized)
	if len(fired) == 0 {
		return verdict
	}

	verdict.Categories = appendUnique(verdict.Categories, CategoryInjection)
	verdict.Patterns = append(verdict.Patterns, fired...)

	switch e.config.InjectionPolicy {
	case PolicyNeutralize:
		for _, p := range injectionCatalog.patterns {
			verdict.Sanitized = p.re.ReplaceAllString(verdict.Sanitized, PlaceholderInstruction)
		}
		e.logger.Warn("injection neutralized", zap.Strings("patterns", fired))
	default:
		verdict.Allowed = false
		verdict.Reason = injectionRefusal
		e.logger.Warn("query refused", zap.Strings("patterns", fired))
	}
	return verdict
}

// EvaluateResponse screens generated text before it reaches the caller.
// PII is redacted and, when enabled, leaked secrets are scrubbed. The
// response is never refused, only sanitized.
func (e *Evaluator) EvaluateResponse(response string) Verdict {
	verdict := Verdict{
		Allowed:         true,
		Sanitized:       response,
		CatalogVersions: []string{piiCatalog.version},
	}

	verdict.Sanitized = e.redactPII(verdict.Sanitized, &verdict)

	if e.scanner != nil {
		scrubbed, findings := e.scanner.scrub(verdict.Sanitized)
		if len(findings) > 0 {
			verdict.Sanitized = scrubbed
			verdict.Categories = appendUnique(verdict.Categories, CategorySecret)
			verdict.Patterns = append(verdict.Patterns, findings...)
			e.logger.Warn("secrets scrubbed from response", zap.Strings("rules", findings))
		}
	}
	return verdict
}

// EvaluateGrounding aggregates candidate similarities and compares the
// result against the threshold. No candidates means a score of zero.
func (e *Evaluator) EvaluateGrounding(candidates []retrieval.Candidate) GroundingResult {
	score := e.aggregate(candidates)
	result := GroundingResult{
		Score:     score,
		Threshold: e.config.GroundingThreshold,
		Grounded:  score >= e.config.GroundingThreshold,
	}
	if !result.Grounded {
		result.Reason = fmt.Sprintf(groundingRefusal, score, e.config.GroundingThreshold)
	}
	return result
}

// aggregate combines per-candidate similarities per the configured
// strategy.
func (e *Evaluator) aggregate(candidates []retrieval.Candidate) float64 {
	if len(candidates) == 0 {
		return 0
	}

	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = c.Similarity
	}

	switch e.config.Aggregation {
	case AggregationMean:
		return mean(scores)
	case AggregationTopKMean:
		sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
		k := e.config.AggregationTopK
		if k > len(scores) {
			k = len(scores)
		}
		return mean(scores[:k])
	default:
		best := scores[0]
		for _, s := range scores[1:] {
			if s > best {
				best = s
			}
		}
		return best
	}
}

func mean(scores []float64) float64 {
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// redactPII replaces PII matches with their placeholders and records the
// category. Placeholders contain no digits or '@', so redaction is
// idempotent.
func (e *Evaluator) redactPII(text string, verdict *Verdict) string {
	for _, p := range piiCatalog.patterns {
		if !p.re.MatchString(text) {
			continue
		}
		text = p.re.ReplaceAllString(text, piiPlaceholder(p.name))
		verdict.Categories = appendUnique(verdict.Categories, CategoryPII)
		verdict.Patterns = append(verdict.Patterns, p.name)
	}
	return text
}

// matchedPatterns returns the names of catalog patterns matching text.
func matchedPatterns(cat catalog, text string) []string {
	var fired []string
	for _, p := range cat.patterns {
		if p.re.MatchString(text) {
			fired = append(fired, p.name)
		}
	}
	return fired
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
