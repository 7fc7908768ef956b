package analyze

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_Basic(t *testing.T) {
	t.Parallel()

	a := Analyze("fix the failing unit tests")

	assert.Equal(t, []string{"fix", "failing", "unit", "tests"}, a.Keywords)
	assert.Contains(t, a.Intents, IntentFix)
	assert.Contains(t, a.Intents, IntentTest)
	assert.Empty(t, a.Technologies)
	assert.False(t, a.Empty())
}

func TestAnalyze_EmptyPrompt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prompt string
	}{
		{"empty string", ""},
		{"whitespace only", "   \t\n"},
		{"pure punctuation", "!!! ??? ..."},
		{"digits only", "123 456"},
		{"stopwords only", "please help me with this"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := Analyze(tt.prompt)
			assert.True(t, a.Empty(), "expected empty analysis for %q", tt.prompt)
			assert.Empty(t, a.Keywords)
		})
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	t.Parallel()

	prompt := "deploy the go service to kubernetes and fix the dockerfile"
	first := Analyze(prompt)
	second := Analyze(prompt)
	assert.Equal(t, first, second)
}

func TestAnalyze_Technologies(t *testing.T) {
	t.Parallel()

	a := Analyze("migrate the golang backend from mysql to postgresql")

	assert.Equal(t, []string{"go", "mysql", "postgres"}, a.Technologies)
	assert.Contains(t, a.Intents, IntentRefactor)
}

func TestAnalyze_TechnologyAliases(t *testing.T) {
	t.Parallel()

	a := Analyze("deploy to k8s with kubernetes manifests")

	// Alias and canonical name collapse to one entry.
	assert.Equal(t, []string{"kubernetes"}, a.Technologies)
}

func TestAnalyze_DedupesKeywordsPreservingOrder(t *testing.T) {
	t.Parallel()

	a := Analyze("test test build test build")
	assert.Equal(t, []string{"test", "build"}, a.Keywords)
	assert.Equal(t, []Intent{IntentTest, IntentBuild}, a.Intents)
}

func TestAnalyze_QuotedPhrase(t *testing.T) {
	t.Parallel()

	a := Analyze(`run the "unit tests" again`)
	assert.True(t, a.HasKeyword("unit tests"))
}

func TestAnalyze_UnbalancedQuoteFallsBack(t *testing.T) {
	t.Parallel()

	a := Analyze(`fix the "broken build`)
	require.False(t, a.Empty())
	assert.True(t, a.HasKeyword("fix"))
	assert.True(t, a.HasKeyword("broken"))
	assert.True(t, a.HasKeyword("build"))
}

func TestAnalyze_StripsPunctuation(t *testing.T) {
	t.Parallel()

	a := Analyze("fix: the build, (again)")
	assert.Equal(t, []string{"fix", "build", "again"}, a.Keywords)
}

func TestAnalyze_CompoundTokens(t *testing.T) {
	t.Parallel()

	a := Analyze("update go.mod and the ci/cd pipeline")
	assert.True(t, a.HasKeyword("go.mod"))
	assert.True(t, a.HasKeyword("ci/cd"))
}
