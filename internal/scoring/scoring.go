// Package scoring ranks catalog candidates against a prompt analysis,
// an optional project context, and historical success rates. One Engine
// instance exists per capability type (agents, skills); both share the
// same algorithm and run independently.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/runger/capmatch/internal/analyze"
	"github.com/runger/capmatch/internal/catalog"
	"github.com/runger/capmatch/internal/projctx"
)

// Boosts maps "{type}:{itemId}" to a success rate in [0,1]. It is rebuilt
// once per pipeline run from the latest feedback, never cached across runs.
type Boosts map[string]float64

// BoostKey builds the lookup key for an item's historical boost.
func BoostKey(typ catalog.Type, itemID string) string {
	return fmt.Sprintf("%s:%s", typ, itemID)
}

// Weights are the score-adjustment weights applied on top of the
// catalog's base relevance.
type Weights struct {
	// ProjectContext scales the context-match fraction added to the base
	// score, in [0,1].
	ProjectContext float64

	// HistoricalBoost scales the success-rate addition, in [0,1].
	HistoricalBoost float64
}

// Candidate is a scored, not-yet-persisted recommendation.
type Candidate struct {
	ItemID string
	Type   catalog.Type
	Slug   string
	Name   string

	// Confidence is the final clamped [0,1] score combining base
	// relevance, project-context adjustment, and historical boost.
	Confidence float64

	// base is the catalog-provided relevance, kept for tie-breaking.
	base float64

	// Source names where the candidate came from ("catalog").
	Source string

	// MatchedKeywords are the prompt keywords that contributed to the
	// base match, in keyword order.
	MatchedKeywords []string
}

// BaseScore exposes the catalog base relevance for ordering and tests.
func (c Candidate) BaseScore() float64 { return c.base }

// Engine scores candidates of a single capability type.
type Engine struct {
	typ     catalog.Type
	catalog catalog.Searcher
	logger  *slog.Logger
}

// NewEngine creates a scoring engine for typ over the given catalog.
func NewEngine(typ catalog.Type, searcher catalog.Searcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{typ: typ, catalog: searcher, logger: logger}
}

// Type returns the capability type this engine scores.
func (e *Engine) Type() catalog.Type { return e.typ }

// Search queries the catalog and produces ranked candidates. Catalog
// failures propagate; the caller isolates them so one type's failure
// does not discard the other type's candidates.
func (e *Engine) Search(ctx context.Context, a analyze.Analysis, pctx *projctx.Context, boosts Boosts, w Weights) ([]Candidate, error) {
	results, err := e.catalog.Search(ctx, e.typ, a, pctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		score := r.BaseScore

		if pctx != nil {
			if frac := contextMatchFraction(r.ApplicabilityTags, pctx); frac > 0 {
				score += frac * w.ProjectContext
			}
		}

		if rate, ok := boosts[BoostKey(e.typ, r.ItemID)]; ok {
			score += rate * w.HistoricalBoost
		}

		candidates = append(candidates, Candidate{
			ItemID:          r.ItemID,
			Type:            e.typ,
			Slug:            r.Slug,
			Name:            r.Name,
			Confidence:      clamp01(score),
			base:            r.BaseScore,
			Source:          "catalog",
			MatchedKeywords: r.MatchedTerms,
		})
	}

	SortCandidates(candidates)
	return candidates, nil
}

// SortCandidates orders candidates by confidence descending, breaking
// ties by base score descending then name ascending. The sort is stable
// so identical inputs always produce identical output.
func SortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		if candidates[i].base != candidates[j].base {
			return candidates[i].base > candidates[j].base
		}
		return candidates[i].Name < candidates[j].Name
	})
}

// contextMatchFraction returns the fraction of the candidate's
// applicability tags present in the detected project stack. No declared
// tags means no adjustment either way.
func contextMatchFraction(tags []string, pctx *projctx.Context) float64 {
	if len(tags) == 0 {
		return 0
	}
	matched := 0
	for _, tag := range tags {
		if pctx.HasTech(tag) {
			matched++
		}
	}
	return float64(matched) / float64(len(tags))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
