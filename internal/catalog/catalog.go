// Package catalog defines the capability catalog boundary. The catalog
// holds the reusable capabilities (agents and skills) that the scoring
// engines draw candidates from; the engine only depends on the Searcher
// interface, with a SQLite-backed reference implementation in this package.
package catalog

import (
	"context"
	"fmt"

	"github.com/runger/capmatch/internal/analyze"
	"github.com/runger/capmatch/internal/projctx"
)

// Type identifies the kind of capability.
type Type string

const (
	TypeAgent Type = "agent"
	TypeSkill Type = "skill"
)

// ValidType reports whether t is a known capability type.
func ValidType(t Type) bool {
	return t == TypeAgent || t == TypeSkill
}

// SearchError reports a failed catalog search. Unlike the degraded reads
// elsewhere in the pipeline, a search failure propagates: there is no
// meaningful candidate list to fall back to for that capability type.
type SearchError struct {
	Type Type
	Err  error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("catalog search failed for type %s: %v", e.Type, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// Result is one catalog match. BaseScore is the catalog's own relevance
// judgment in [0,1]; the scoring engine layers context and historical
// adjustments on top of it.
type Result struct {
	ItemID string

	// Slug is the stable, URL-safe identifier of the capability.
	Slug string

	// Name is the human-readable display name.
	Name string

	// BaseScore is the catalog-computed relevance in [0,1].
	BaseScore float64

	// MatchedTerms are the analysis keywords that matched the
	// capability's indexed terms, in keyword order.
	MatchedTerms []string

	// ApplicabilityTags declare which technology stacks the capability
	// applies to ("go", "node", "docker", ...).
	ApplicabilityTags []string
}

// Searcher is the catalog query boundary consumed by the scoring engines.
// Implementations must return results ordered by BaseScore descending and
// never return results with no matched signal.
type Searcher interface {
	Search(ctx context.Context, typ Type, a analyze.Analysis, pctx *projctx.Context) ([]Result, error)
}
