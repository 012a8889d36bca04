package attribution

import (
	"strings"
	"unicode"
)

// abbreviations that end with a period but do not end a sentence.
// Compared lowercase against the trailing token.
var abbreviations = map[string]bool{
	"e.g.":    true,
	"i.e.":    true,
	"etc.":    true,
	"dr.":     true,
	"mr.":     true,
	"mrs.":    true,
	"ms.":     true,
	"prof.":   true,
	"vs.":     true,
	"st.":     true,
	"no.":     true,
	"fig.":    true,
	"approx.": true,
}

// SplitSentences breaks text into sentences on '.', '!' and '?'
// boundaries followed by whitespace or end of text. Decimal numbers,
// common abbreviations, and single-letter initials do not split.
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			// Mid-token punctuation: decimals, URLs, "e.g." internals.
			continue
		}
		if r == '.' && isAbbreviation(runes, start, i) {
			continue
		}

		sentence := strings.TrimSpace(string(runes[start : i+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = i + 1
	}

	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// isAbbreviation reports whether the period at end position closes an
// abbreviation or an initial rather than a sentence.
func isAbbreviation(runes []rune, start, end int) bool {
	// Walk back to the start of the token containing the period.
	tokenStart := end
	for tokenStart > start && !unicode.IsSpace(runes[tokenStart-1]) {
		tokenStart--
	}
	token := strings.ToLower(string(runes[tokenStart : end+1]))

	if abbreviations[token] {
		return true
	}
	// Single uppercase initial, as in "J. Smith".
	if end-tokenStart == 1 && unicode.IsUpper(runes[tokenStart]) {
		return true
	}
	return false
}
