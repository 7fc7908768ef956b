package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/runger/capmatch/internal/analyze"
	"github.com/runger/capmatch/internal/projctx"
)

// Entry is a capability record as stored in the catalog.
type Entry struct {
	ItemID            string   `yaml:"item_id"`
	Type              Type     `yaml:"type"`
	Slug              string   `yaml:"slug"`
	Name              string   `yaml:"name"`
	Terms             []string `yaml:"terms"`
	ApplicabilityTags []string `yaml:"tags"`
}

const catalogSchema = `
CREATE TABLE IF NOT EXISTS capability (
  item_id   TEXT NOT NULL,
  type      TEXT NOT NULL,
  slug      TEXT NOT NULL,
  name      TEXT NOT NULL,
  terms     TEXT NOT NULL,           -- pipe-separated indexed terms
  tags      TEXT NOT NULL DEFAULT '', -- pipe-separated applicability tags
  PRIMARY KEY(type, item_id)
);

CREATE INDEX IF NOT EXISTS idx_capability_type ON capability(type);
`

// SQLiteCatalog is the reference Searcher backed by a SQLite capability
// table. Matching is term-overlap based: the base score is the fraction of
// analysis keywords (plus intent and technology tags) present in the
// capability's indexed terms.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog creates the capability table if needed and returns a
// catalog over db.
func NewSQLiteCatalog(ctx context.Context, db *sql.DB) (*SQLiteCatalog, error) {
	if _, err := db.ExecContext(ctx, catalogSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize capability table: %w", err)
	}
	return &SQLiteCatalog{db: db}, nil
}

// Upsert inserts or replaces a capability entry.
func (c *SQLiteCatalog) Upsert(ctx context.Context, e Entry) error {
	if e.ItemID == "" || !ValidType(e.Type) {
		return fmt.Errorf("invalid capability entry: item_id=%q type=%q", e.ItemID, e.Type)
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO capability (item_id, type, slug, name, terms, tags)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(type, item_id) DO UPDATE SET
		  slug = excluded.slug,
		  name = excluded.name,
		  terms = excluded.terms,
		  tags = excluded.tags
	`, e.ItemID, string(e.Type), e.Slug, e.Name,
		strings.Join(normalizeTerms(e.Terms), "|"),
		strings.Join(normalizeTerms(e.ApplicabilityTags), "|"))
	if err != nil {
		return fmt.Errorf("failed to upsert capability %s: %w", e.ItemID, err)
	}
	return nil
}

// Count returns the number of stored capabilities of the given type.
func (c *SQLiteCatalog) Count(ctx context.Context, typ Type) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM capability WHERE type = ?", string(typ)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count capabilities: %w", err)
	}
	return n, nil
}

// Search implements Searcher. Candidates are loaded per type and matched
// in memory; catalogs are small (tens to hundreds of entries) so the
// term-overlap scoring stays cheap.
func (c *SQLiteCatalog) Search(ctx context.Context, typ Type, a analyze.Analysis, pctx *projctx.Context) ([]Result, error) {
	queryTerms := buildQueryTerms(a, pctx)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	rows, err := c.db.QueryContext(ctx,
		"SELECT item_id, slug, name, terms, tags FROM capability WHERE type = ?", string(typ))
	if err != nil {
		return nil, &SearchError{Type: typ, Err: err}
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var itemID, slug, name, terms, tags string
		if err := rows.Scan(&itemID, &slug, &name, &terms, &tags); err != nil {
			return nil, &SearchError{Type: typ, Err: err}
		}

		indexed := make(map[string]bool)
		for _, t := range strings.Split(terms, "|") {
			if t != "" {
				indexed[t] = true
			}
		}

		var matchedKeywords []string
		matched := 0
		for _, q := range queryTerms {
			if indexed[q.term] {
				matched++
				if q.keyword {
					matchedKeywords = append(matchedKeywords, q.term)
				}
			}
		}
		if matched == 0 {
			continue
		}

		results = append(results, Result{
			ItemID:            itemID,
			Slug:              slug,
			Name:              name,
			BaseScore:         float64(matched) / float64(len(queryTerms)),
			MatchedTerms:      matchedKeywords,
			ApplicabilityTags: splitTags(tags),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &SearchError{Type: typ, Err: err}
	}

	// BaseScore descending, name ascending for equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].BaseScore != results[j].BaseScore {
			return results[i].BaseScore > results[j].BaseScore
		}
		return results[i].Name < results[j].Name
	})

	return results, nil
}

// queryTerm is one matchable term; keyword marks terms that originate from
// prompt keywords (only those surface as MatchedTerms).
type queryTerm struct {
	term    string
	keyword bool
}

func buildQueryTerms(a analyze.Analysis, pctx *projctx.Context) []queryTerm {
	seen := make(map[string]bool)
	var out []queryTerm

	add := func(term string, keyword bool) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || seen[term] {
			return
		}
		seen[term] = true
		out = append(out, queryTerm{term: term, keyword: keyword})
	}

	for _, kw := range a.Keywords {
		add(kw, true)
	}
	for _, in := range a.Intents {
		add(string(in), false)
	}
	for _, tech := range a.Technologies {
		add(tech, false)
	}
	if pctx != nil {
		for _, s := range pctx.Stack {
			add(s, false)
		}
	}
	return out
}

func normalizeTerms(terms []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func splitTags(tags string) []string {
	if tags == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(tags, "|") {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
