// Package analyze extracts structured signal from free-text user prompts.
// The output drives candidate matching in the scoring engines: keywords for
// catalog term matching, intent tags for task classification, and detected
// technologies for stack-aware boosts.
package analyze

import (
	"strings"

	"github.com/google/shlex"
)

// Intent classifies what the user is trying to accomplish.
type Intent string

const (
	IntentBuild    Intent = "build"
	IntentFix      Intent = "fix"
	IntentTest     Intent = "test"
	IntentDeploy   Intent = "deploy"
	IntentDocument Intent = "document"
	IntentRefactor Intent = "refactor"
	IntentReview   Intent = "review"
)

// Analysis is the structured result of analyzing a prompt. It is produced
// fresh per call and never cached; analysis is cheap relative to the rest
// of the pipeline.
type Analysis struct {
	// Keywords are the significant prompt tokens, lowercased, in first-seen
	// order with duplicates removed.
	Keywords []string

	// Intents are the detected intent tags, in first-seen order.
	Intents []Intent

	// Technologies are the recognized technology names found in the prompt.
	Technologies []string
}

// Empty reports whether the analysis carries no extractable signal.
// The orchestrator short-circuits the whole pipeline on an empty analysis.
func (a Analysis) Empty() bool {
	return len(a.Keywords) == 0
}

// HasKeyword reports whether kw is among the extracted keywords.
func (a Analysis) HasKeyword(kw string) bool {
	for _, k := range a.Keywords {
		if k == kw {
			return true
		}
	}
	return false
}

// stopwords are tokens that carry no matching signal on their own.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "this": true, "that": true,
	"my": true, "our": true, "your": true, "me": true, "i": true,
	"is": true, "are": true, "was": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "for": true,
	"with": true, "and": true, "or": true, "not": true, "no": true,
	"it": true, "its": true, "do": true, "does": true, "can": true,
	"could": true, "should": true, "would": true, "will": true,
	"please": true, "help": true, "want": true, "need": true,
	"how": true, "what": true, "why": true, "when": true, "where": true,
	"some": true, "all": true, "at": true, "by": true, "from": true,
	"into": true, "about": true, "up": true, "out": true, "as": true,
	"make": true, "get": true, "like": true, "new": true, "using": true,
	"use": true,
}

// intentTriggers maps trigger keywords to intent tags. A prompt keyword
// matching a trigger contributes its intent once.
var intentTriggers = map[string]Intent{
	"build":     IntentBuild,
	"compile":   IntentBuild,
	"create":    IntentBuild,
	"implement": IntentBuild,
	"add":       IntentBuild,
	"scaffold":  IntentBuild,
	"generate":  IntentBuild,

	"fix":     IntentFix,
	"repair":  IntentFix,
	"debug":   IntentFix,
	"broken":  IntentFix,
	"failing": IntentFix,
	"error":   IntentFix,
	"bug":     IntentFix,
	"crash":   IntentFix,

	"test":     IntentTest,
	"tests":    IntentTest,
	"coverage": IntentTest,
	"spec":     IntentTest,
	"verify":   IntentTest,

	"deploy":     IntentDeploy,
	"release":    IntentDeploy,
	"ship":       IntentDeploy,
	"publish":    IntentDeploy,
	"rollout":    IntentDeploy,
	"kubernetes": IntentDeploy,

	"document":  IntentDocument,
	"docs":      IntentDocument,
	"readme":    IntentDocument,
	"changelog": IntentDocument,
	"comment":   IntentDocument,

	"refactor": IntentRefactor,
	"cleanup":  IntentRefactor,
	"rename":   IntentRefactor,
	"simplify": IntentRefactor,
	"migrate":  IntentRefactor,

	"review":   IntentReview,
	"audit":    IntentReview,
	"lint":     IntentReview,
	"security": IntentReview,
}

// technologies is the set of recognized technology tokens. Aliases map to
// a canonical name so "golang" and "go" detect the same stack.
var technologies = map[string]string{
	"go":         "go",
	"golang":     "go",
	"rust":       "rust",
	"python":     "python",
	"node":       "node",
	"nodejs":     "node",
	"javascript": "javascript",
	"typescript": "typescript",
	"react":      "react",
	"vue":        "vue",
	"svelte":     "svelte",
	"java":       "java",
	"kotlin":     "kotlin",
	"ruby":       "ruby",
	"rails":      "rails",
	"django":     "django",
	"flask":      "flask",
	"docker":     "docker",
	"kubernetes": "kubernetes",
	"k8s":        "kubernetes",
	"terraform":  "terraform",
	"postgres":   "postgres",
	"postgresql": "postgres",
	"mysql":      "mysql",
	"sqlite":     "sqlite",
	"redis":      "redis",
	"graphql":    "graphql",
	"grpc":       "grpc",
	"aws":        "aws",
	"gcp":        "gcp",
}

// Analyze produces a structured analysis of a free-text prompt.
// It is pure and deterministic: the same prompt always yields the same
// analysis. It never fails; unrecognizable input degrades to an empty
// analysis, which callers treat as "no signal".
func Analyze(prompt string) Analysis {
	var a Analysis

	tokens := tokenize(prompt)
	if len(tokens) == 0 {
		return a
	}

	seenKw := make(map[string]bool)
	seenIntent := make(map[Intent]bool)
	seenTech := make(map[string]bool)

	for _, tok := range tokens {
		word := normalizeToken(tok)
		if word == "" || stopwords[word] {
			continue
		}

		if !seenKw[word] {
			seenKw[word] = true
			a.Keywords = append(a.Keywords, word)
		}
		if intent, ok := intentTriggers[word]; ok && !seenIntent[intent] {
			seenIntent[intent] = true
			a.Intents = append(a.Intents, intent)
		}
		if tech, ok := technologies[word]; ok && !seenTech[tech] {
			seenTech[tech] = true
			a.Technologies = append(a.Technologies, tech)
		}
	}

	return a
}

// tokenize splits a prompt into tokens. Shell-style splitting keeps quoted
// phrases together ("unit tests" stays one keyword); prompts with unbalanced
// quoting fall back to plain whitespace splitting.
func tokenize(prompt string) []string {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return nil
	}
	tokens, err := shlex.Split(trimmed)
	if err != nil {
		return strings.Fields(trimmed)
	}
	return tokens
}

// normalizeToken lowercases a token and strips surrounding punctuation.
// Tokens that are pure punctuation or digits normalize to "".
func normalizeToken(tok string) string {
	word := strings.ToLower(tok)
	word = strings.TrimFunc(word, func(r rune) bool {
		return !isWordRune(r)
	})
	if word == "" {
		return ""
	}
	hasLetter := false
	for _, r := range word {
		if r >= 'a' && r <= 'z' {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return ""
	}
	return word
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == '.' || r == '/':
		// Keep compound tokens like "go.mod" or "ci/cd" intact.
		return true
	}
	return false
}
