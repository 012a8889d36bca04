package attribution

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/citeguard/internal/retrieval"
)

// stubScorer returns fixed scores keyed by "sentence|chunk".
type stubScorer struct {
	scores map[string]float64
}

func (s stubScorer) Score(sentence, chunk string) float64 {
	return s.scores[sentence+"|"+chunk]
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{CitationThreshold: 1.5}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{MaxCitations: -1}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{MinCitations: 5, MaxCitations: 3}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	e, err := New(Config{}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, e)
}

func TestAttribute_SupportedAndUnsupported(t *testing.T) {
	supported := "Term starts in September."
	invented := "The school has a rooftop pool."
	chunk := retrieval.Candidate{
		ChunkID:    "handbook_ab12cd34:0",
		DocumentID: "handbook_ab12cd34",
		Corpus:     "policies",
		Text:       "school calendar text",
		LineStart:  3,
		LineEnd:    9,
	}

	engine, err := New(Config{CitationThreshold: 0.65}, stubScorer{scores: map[string]float64{
		supported + "|" + chunk.Text: 0.80,
		invented + "|" + chunk.Text:  0.10,
	}}, nil)
	require.NoError(t, err)

	result := engine.Attribute(supported+" "+invented, []retrieval.Candidate{chunk})
	require.Len(t, result.Sentences, 2)

	first := result.Sentences[0]
	assert.True(t, first.Supported)
	assert.InDelta(t, 0.80, first.Confidence, 1e-9)
	require.Len(t, first.Citations, 1)
	assert.Equal(t, "handbook_ab12cd34:0", first.Citations[0].ChunkID)
	assert.Equal(t, 3, first.Citations[0].LineStart)
	assert.Equal(t, 9, first.Citations[0].LineEnd)

	second := result.Sentences[1]
	assert.False(t, second.Supported)
	assert.Zero(t, second.Confidence)
	assert.Empty(t, second.Citations)

	assert.Equal(t, 1, result.SupportedCount)
	assert.Equal(t, 2, result.TotalCount)
	assert.InDelta(t, 0.5, result.HallucinationRate, 1e-9)
}

func TestAttribute_CitationsOrderedAndCapped(t *testing.T) {
	sentence := "Fees are due in August."
	candidates := []retrieval.Candidate{
		{ChunkID: "a:0", Text: "chunk-a"},
		{ChunkID: "b:0", Text: "chunk-b"},
		{ChunkID: "c:0", Text: "chunk-c"},
		{ChunkID: "d:0", Text: "chunk-d"},
	}

	engine, err := New(Config{CitationThreshold: 0.65, MaxCitations: 2}, stubScorer{scores: map[string]float64{
		sentence + "|chunk-a": 0.70,
		sentence + "|chunk-b": 0.95,
		sentence + "|chunk-c": 0.80,
		sentence + "|chunk-d": 0.30,
	}}, nil)
	require.NoError(t, err)

	result := engine.Attribute(sentence, candidates)
	require.Len(t, result.Sentences, 1)

	citations := result.Sentences[0].Citations
	require.Len(t, citations, 2)
	assert.Equal(t, "b:0", citations[0].ChunkID)
	assert.Equal(t, "c:0", citations[1].ChunkID)
	assert.InDelta(t, 0.95, result.Sentences[0].Confidence, 1e-9)
}

func TestAttribute_NoCandidates(t *testing.T) {
	engine, err := New(Config{}, nil, nil)
	require.NoError(t, err)

	result := engine.Attribute("First claim. Second claim.", nil)
	assert.Equal(t, 2, result.TotalCount)
	assert.Zero(t, result.SupportedCount)
	assert.InDelta(t, 1.0, result.HallucinationRate, 1e-9)
	for _, s := range result.Sentences {
		assert.False(t, s.Supported)
	}
}

func TestAttribute_EmptyAnswer(t *testing.T) {
	engine, err := New(Config{}, nil, nil)
	require.NoError(t, err)

	result := engine.Attribute("", []retrieval.Candidate{{ChunkID: "a:0", Text: "x"}})
	assert.Zero(t, result.TotalCount)
	assert.Zero(t, result.HallucinationRate)
}

func TestAttribute_PreviewTruncated(t *testing.T) {
	sentence := "Claim."
	long := strings.Repeat("word ", 100)
	engine, err := New(Config{CitationThreshold: 0.5}, stubScorer{scores: map[string]float64{
		sentence + "|" + long: 0.9,
	}}, nil)
	require.NoError(t, err)

	result := engine.Attribute(sentence, []retrieval.Candidate{{ChunkID: "a:0", Text: long}})
	require.Len(t, result.Sentences[0].Citations, 1)
	p := result.Sentences[0].Citations[0].Preview
	assert.LessOrEqual(t, len(p), previewLen+3)
	assert.True(t, strings.HasSuffix(p, "..."))
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "simple sentences",
			text: "First sentence. Second one! Third?",
			want: []string{"First sentence.", "Second one!", "Third?"},
		},
		{
			name: "abbreviations",
			text: "Contact Dr. Smith for details. Bring forms, e.g. the consent slip.",
			want: []string{"Contact Dr. Smith for details.", "Bring forms, e.g. the consent slip."},
		},
		{
			name: "decimals",
			text: "The fee is 3.5 percent. Pay by Friday.",
			want: []string{"The fee is 3.5 percent.", "Pay by Friday."},
		},
		{
			name: "initials",
			text: "Ask J. Smith about uniforms. He knows.",
			want: []string{"Ask J. Smith about uniforms.", "He knows."},
		},
		{
			name: "no trailing punctuation",
			text: "First part. trailing fragment",
			want: []string{"First part.", "trailing fragment"},
		},
		{
			name: "empty",
			text: "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSentences(tt.text))
		})
	}
}

func TestLexicalScorer(t *testing.T) {
	scorer := LexicalScorer{}

	t.Run("full overlap", func(t *testing.T) {
		score := scorer.Score("term starts September", "The term starts in September every year.")
		assert.InDelta(t, 1.0, score, 1e-9)
	})

	t.Run("no overlap", func(t *testing.T) {
		score := scorer.Score("rooftop pool hours", "The term starts in September.")
		assert.Zero(t, score)
	})

	t.Run("partial overlap", func(t *testing.T) {
		score := scorer.Score("term fees due", "The term starts in September.")
		assert.Greater(t, score, 0.0)
		assert.Less(t, score, 1.0)
	})

	t.Run("stopwords ignored", func(t *testing.T) {
		score := scorer.Score("the of and", "completely unrelated chunk")
		assert.Zero(t, score)
	})
}
