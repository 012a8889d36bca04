package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIGenerator_Defaults(t *testing.T) {
	g, err := NewOpenAIGenerator(Config{APIKey: "test-key"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", g.Model())
}

func TestNewOpenAIGenerator_Validation(t *testing.T) {
	_, err := NewOpenAIGenerator(Config{APIKey: "k", MaxTokens: -1}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewOpenAIGenerator(Config{APIKey: "k", RequestsPerSecond: -1}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt("What are the fees?", []string{"passage one", "passage two"})

	assert.Contains(t, prompt, "[1] passage one")
	assert.Contains(t, prompt, "[2] passage two")
	assert.Contains(t, prompt, "Question: What are the fees?")
}

func TestTokenCount(t *testing.T) {
	t.Run("int from provider", func(t *testing.T) {
		assert.Equal(t, 42, tokenCount(map[string]any{"PromptTokens": 42}, "PromptTokens", "x"))
	})

	t.Run("float from provider", func(t *testing.T) {
		assert.Equal(t, 7, tokenCount(map[string]any{"CompletionTokens": 7.0}, "CompletionTokens", "x"))
	})

	t.Run("fallback estimate", func(t *testing.T) {
		assert.Equal(t, 3, tokenCount(nil, "PromptTokens", "twelve chars"))
	})
}
