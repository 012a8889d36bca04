package attribution

import (
	"strings"
	"unicode"
)

// Scorer measures how well a source chunk supports a sentence. Scores
// are in [0,1], higher meaning stronger support.
//
// The default LexicalScorer needs no model; an embedding-backed scorer
// can be swapped in where semantic overlap matters more than wording.
type Scorer interface {
	Score(sentence, chunk string) float64
}

// LexicalScorer scores by token overlap: the fraction of the sentence's
// content tokens that also appear in the chunk. Deterministic and cheap.
type LexicalScorer struct{}

// stopwords excluded from overlap so function words do not inflate
// support scores.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"has": true, "he": true, "in": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "to": true, "was": true, "were": true, "will": true,
	"with": true,
}

// Score returns |sentence_tokens ∩ chunk_tokens| / |sentence_tokens|.
// A sentence with no content tokens scores zero.
func (LexicalScorer) Score(sentence, chunk string) float64 {
	sentenceTokens := contentTokens(sentence)
	if len(sentenceTokens) == 0 {
		return 0
	}

	chunkTokens := make(map[string]bool)
	for _, tok := range tokenize(chunk) {
		chunkTokens[tok] = true
	}

	matched := 0
	for tok := range sentenceTokens {
		if chunkTokens[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(sentenceTokens))
}

// contentTokens returns the deduplicated non-stopword tokens.
func contentTokens(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range tokenize(text) {
		if !stopwords[tok] {
			tokens[tok] = true
		}
	}
	return tokens
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
