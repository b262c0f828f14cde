package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatorCountTokens(t *testing.T) {
	est := EstimatorTokenizer{}

	count, err := est.CountTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = est.CountTokens("hello world this is a test")
	require.NoError(t, err)
	assert.Greater(t, count, 0)
	assert.Less(t, count, 26)

	// Short non-empty text still counts as at least one token.
	count, err = est.CountTokens("a")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEstimatorCJK(t *testing.T) {
	est := EstimatorTokenizer{}

	ascii, err := est.CountTokens("abcdefgh")
	require.NoError(t, err)
	cjk, err2 := est.CountTokens("研究工作流编排引擎")
	require.NoError(t, err2)

	// CJK text of similar length yields more tokens than ASCII.
	assert.Greater(t, cjk, ascii)
}

func TestTokenizerFor(t *testing.T) {
	assert.Equal(t, "tiktoken/cl100k_base", TokenizerFor("gpt-4-turbo-preview").Name())
	assert.Equal(t, "estimator", TokenizerFor("claude-3-5-sonnet-20241022").Name())
	assert.Equal(t, "estimator", TokenizerFor("mistral-large-latest").Name())
}

func TestBindingFor(t *testing.T) {
	analyst := BindingFor(AgentAnalyst)
	assert.Equal(t, "gpt-4-turbo-preview", analyst.Model)
	assert.Equal(t, "OpenAI", analyst.Provider)

	summarizer := BindingFor(AgentSummarizer)
	assert.Equal(t, "claude-3-5-sonnet-20241022", summarizer.Model)

	// Unknown kinds fall back to the synthesizer.
	unknown := BindingFor(AgentKind("mystery"))
	assert.Equal(t, BindingFor(AgentSynthesizer), unknown)
}
