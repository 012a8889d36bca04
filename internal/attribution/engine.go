// Package attribution maps each sentence of a generated answer back to
// the retrieved chunks that support it and flags the unsupported ones.
package attribution

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/citeguard/internal/retrieval"
)

// Sentinel errors for attribution configuration.
var (
	// ErrInvalidConfig indicates invalid attribution parameters.
	ErrInvalidConfig = errors.New("invalid attribution configuration")
)

// previewLen is the number of characters of chunk text kept in a
// citation preview.
const previewLen = 120

// Citation points a sentence at a supporting chunk.
type Citation struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Corpus     string  `json:"corpus,omitempty"`
	LineStart  int     `json:"line_start"`
	LineEnd    int     `json:"line_end"`
	Similarity float64 `json:"similarity"`
	Preview    string  `json:"preview,omitempty"`
}

// SentenceAttribution is the verdict for one sentence of the answer.
type SentenceAttribution struct {
	// Sentence is the sentence text as split from the answer.
	Sentence string `json:"sentence"`

	// Index is the sentence's position in the answer, zero-based.
	Index int `json:"index"`

	// Supported is true when at least one chunk scores at or above the
	// citation threshold.
	Supported bool `json:"supported"`

	// Confidence is the best supporting score, or 0 when unsupported.
	Confidence float64 `json:"confidence"`

	// Citations lists supporting chunks, best first, capped at
	// MaxCitations.
	Citations []Citation `json:"citations,omitempty"`
}

// Result is the attribution report for a whole answer.
type Result struct {
	Sentences []SentenceAttribution `json:"sentences"`

	// SupportedCount and TotalCount summarize sentence verdicts.
	SupportedCount int `json:"supported_count"`
	TotalCount     int `json:"total_count"`

	// HallucinationRate is the fraction of unsupported sentences,
	// 0 for an empty answer.
	HallucinationRate float64 `json:"hallucination_rate"`
}

// Config holds attribution parameters.
type Config struct {
	// CitationThreshold is the minimum score for a chunk to count as
	// supporting a sentence. Default: 0.65.
	CitationThreshold float64

	// MaxCitations caps citations per sentence. Default: 3.
	MaxCitations int

	// MinCitations is the number of supporting chunks a sentence needs
	// to count as supported. Default: 1.
	MinCitations int
}

func (c *Config) applyDefaults() {
	if c.CitationThreshold == 0 {
		c.CitationThreshold = 0.65
	}
	if c.MaxCitations == 0 {
		c.MaxCitations = 3
	}
	if c.MinCitations == 0 {
		c.MinCitations = 1
	}
}

func (c *Config) validate() error {
	if c.CitationThreshold < 0 || c.CitationThreshold > 1 {
		return fmt.Errorf("%w: citation threshold %v not in [0,1]", ErrInvalidConfig, c.CitationThreshold)
	}
	if c.MaxCitations < 1 {
		return fmt.Errorf("%w: max citations must be at least 1", ErrInvalidConfig)
	}
	if c.MinCitations < 1 || c.MinCitations > c.MaxCitations {
		return fmt.Errorf("%w: min citations %d not in [1,%d]", ErrInvalidConfig, c.MinCitations, c.MaxCitations)
	}
	return nil
}

// Engine attributes answer sentences to retrieved chunks. Safe for
// concurrent use; the scorer must be stateless.
type Engine struct {
	config Config
	scorer Scorer
	logger *zap.Logger
}

// New creates an Engine. A nil scorer gets the lexical default.
func New(cfg Config, scorer Scorer, logger *zap.Logger) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if scorer == nil {
		scorer = LexicalScorer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{config: cfg, scorer: scorer, logger: logger}, nil
}

// Attribute scores every sentence of the answer against every candidate
// chunk. With no candidates, every sentence is unsupported.
func (e *Engine) Attribute(answer string, candidates []retrieval.Candidate) Result {
	sentences := SplitSentences(answer)
	result := Result{
		Sentences:  make([]SentenceAttribution, 0, len(sentences)),
		TotalCount: len(sentences),
	}

	for i, sentence := range sentences {
		attr := e.attributeSentence(sentence, i, candidates)
		if attr.Supported {
			result.SupportedCount++
		}
		result.Sentences = append(result.Sentences, attr)
	}

	if result.TotalCount > 0 {
		result.HallucinationRate = float64(result.TotalCount-result.SupportedCount) / float64(result.TotalCount)
	}

	e.logger.Debug("attribution complete",
		zap.Int("sentences", result.TotalCount),
		zap.Int("supported", result.SupportedCount),
		zap.Float64("hallucination_rate", result.HallucinationRate),
	)
	return result
}

// attributeSentence scores one sentence against all candidates.
func (e *Engine) attributeSentence(sentence string, index int, candidates []retrieval.Candidate) SentenceAttribution {
	attr := SentenceAttribution{Sentence: sentence, Index: index}

	var supporting []Citation
	for _, candidate := range candidates {
		score := e.scorer.Score(sentence, candidate.Text)
		if score < e.config.CitationThreshold {
			continue
		}
		supporting = append(supporting, Citation{
			ChunkID:    candidate.ChunkID,
			DocumentID: candidate.DocumentID,
			Corpus:     candidate.Corpus,
			LineStart:  candidate.LineStart,
			LineEnd:    candidate.LineEnd,
			Similarity: score,
			Preview:    preview(candidate.Text),
		})
	}

	sort.SliceStable(supporting, func(i, j int) bool {
		return supporting[i].Similarity > supporting[j].Similarity
	})
	if len(supporting) > e.config.MaxCitations {
		supporting = supporting[:e.config.MaxCitations]
	}

	if len(supporting) >= e.config.MinCitations {
		attr.Supported = true
		attr.Confidence = supporting[0].Similarity
		attr.Citations = supporting
	}
	return attr
}

// preview truncates chunk text for inclusion in citations.
func preview(text string) string {
	if len(text) <= previewLen {
		return text
	}
	return text[:previewLen] + "..."
}
