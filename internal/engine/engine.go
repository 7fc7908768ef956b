// Package engine composes the recommendation pipeline: prompt analysis,
// project context, historical boosts, per-type scoring, dedup against
// recent history, persistence, and notification fan-out. One Engine is
// constructed at startup and shared by all callers; there is no hidden
// process-global instance.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/runger/capmatch/internal/analyze"
	"github.com/runger/capmatch/internal/catalog"
	"github.com/runger/capmatch/internal/projctx"
	"github.com/runger/capmatch/internal/scoring"
	"github.com/runger/capmatch/internal/store"
)

// Persistence is the external store consumed by the pipeline. The SQLite
// implementation lives in internal/store; tests substitute fakes.
type Persistence interface {
	RecordRecommendation(ctx context.Context, rec store.Recommendation) (store.Recommendation, error)
	RecordRecommendationAction(ctx context.Context, recommendationID string, action store.Action) error
	GetRecommendationStats(ctx context.Context) (store.Stats, error)
	GetTopPerformingItems(ctx context.Context, typ catalog.Type, minSamples, limit int) ([]store.TopPerformer, error)
	WasRecentlyRecommended(ctx context.Context, itemID string, typ catalog.Type, sessionID string, windowSize int) (bool, error)
}

// Request is one recommendation request.
type Request struct {
	Prompt      string
	SessionID   string
	ProjectPath string
}

// Deps are the collaborators an Engine is built from.
type Deps struct {
	Persistence Persistence
	Catalog     catalog.Searcher

	// UI receives fire-and-forget pushes of new recommendations.
	// Optional.
	UI UISurface

	Logger *slog.Logger
}

// Engine is the recommendation pipeline controller. It owns the session
// cache, the project-context cache (via the analyzer), and the current
// configuration; everything else is a stateless collaborator.
type Engine struct {
	persistence Persistence
	agents      *scoring.Engine
	skills      *scoring.Engine
	projects    *projctx.Analyzer
	sessions    *sessionCache
	events      *bus
	ui          UISurface
	logger      *slog.Logger

	cfgMu sync.RWMutex
	cfg   Config
}

// New constructs an engine. A nil config section falls back to defaults;
// Persistence and Catalog are required.
func New(deps Deps, cfg Config) (*Engine, error) {
	if deps.Persistence == nil {
		return nil, fmt.Errorf("persistence is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.sanitize()

	return &Engine{
		persistence: deps.Persistence,
		agents:      scoring.NewEngine(catalog.TypeAgent, deps.Catalog, logger),
		skills:      scoring.NewEngine(catalog.TypeSkill, deps.Catalog, logger),
		projects:    projctx.NewAnalyzer(cfg.CacheTimeout()),
		sessions:    newSessionCache(),
		events:      newBus(logger),
		ui:          deps.UI,
		logger:      logger,
		cfg:         cfg,
	}, nil
}

// Config returns a snapshot of the current configuration.
func (e *Engine) Config() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// Configure merges the overrides into the current configuration and
// replaces it atomically. In-flight requests keep the snapshot they took;
// later requests see the new one.
func (e *Engine) Configure(o Overrides) Config {
	e.cfgMu.Lock()
	e.cfg = o.Apply(e.cfg)
	cfg := e.cfg
	e.cfgMu.Unlock()

	e.projects.SetTTL(cfg.CacheTimeout())
	e.logger.Info("engine configuration updated",
		"max_recommendations", cfg.MaxRecommendations,
		"min_confidence_score", cfg.MinConfidenceScore,
		"historical_boost_weight", cfg.HistoricalBoostWeight,
		"project_context_weight", cfg.ProjectContextWeight,
		"cache_timeout_ms", cfg.CacheTimeoutMs)
	return cfg
}

// Subscribe registers an event subscriber.
func (e *Engine) Subscribe(s Subscriber) {
	e.events.subscribe(s)
}

// GetRecommendationsForPrompt runs the full pipeline for a prompt.
// A prompt with no extractable signal returns an empty result with no
// side effects. Degraded inputs (failed context scan, failed historical
// read, per-item persistence failures) shrink the result instead of
// failing the request.
func (e *Engine) GetRecommendationsForPrompt(ctx context.Context, req Request) ([]store.Recommendation, error) {
	cfg := e.Config()

	a := analyze.Analyze(req.Prompt)
	if a.Empty() {
		return nil, nil
	}

	pctx := e.projectContext(req.ProjectPath)
	boosts := e.historicalBoosts(ctx)

	candidates, err := e.searchBothTypes(ctx, a, pctx, boosts, cfg)
	if err != nil {
		return nil, err
	}

	scoring.SortCandidates(candidates)
	candidates = filterCandidates(candidates, cfg)

	persisted := e.persistCandidates(ctx, req, candidates)

	e.sessions.set(req.SessionID, persisted, hashPrompt(req.Prompt))
	e.notify(req, persisted)

	return persisted, nil
}

// ProjectSuggestions is the prompt-less entry point: it scores the
// catalog against the project context alone (e.g. on project open).
// Results are not deduplicated, persisted, or announced.
func (e *Engine) ProjectSuggestions(ctx context.Context, projectPath string) ([]scoring.Candidate, error) {
	cfg := e.Config()

	pctx, err := e.projects.Analyze(projectPath)
	if err != nil {
		return nil, err
	}

	boosts := e.historicalBoosts(ctx)

	candidates, err := e.searchBothTypes(ctx, analyze.Analysis{}, pctx, boosts, cfg)
	if err != nil {
		return nil, err
	}

	scoring.SortCandidates(candidates)
	return filterCandidates(candidates, cfg), nil
}

// RecordAction records a user action against a previously issued
// recommendation and publishes a feedback event. Persistence failures
// propagate; there is no degraded behavior for a lost feedback write.
func (e *Engine) RecordAction(ctx context.Context, recommendationID string, action store.Action) error {
	if err := e.persistence.RecordRecommendationAction(ctx, recommendationID, action); err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}
	e.events.publishFeedback(FeedbackEvent{
		RecommendationID: recommendationID,
		Action:           action,
	})
	return nil
}

// Stats passes through the aggregate recommendation stats.
func (e *Engine) Stats(ctx context.Context) (store.Stats, error) {
	return e.persistence.GetRecommendationStats(ctx)
}

// ClearCaches empties the session and project-context caches.
func (e *Engine) ClearCaches() {
	e.sessions.clear()
	e.projects.Clear()
}

// ClearSessionCache drops the cached entry for one session.
func (e *Engine) ClearSessionCache(sessionID string) {
	e.sessions.invalidate(sessionID)
}

// SessionCacheEntry returns the cached entry for a session, honoring the
// configured TTL.
func (e *Engine) SessionCacheEntry(sessionID string) (SessionEntry, bool) {
	return e.sessions.get(sessionID, e.Config().CacheTimeout())
}

// CacheSizes reports the number of resident session and project-context
// cache entries, expired ones included until the next sweep.
func (e *Engine) CacheSizes() (sessions, projects int) {
	return e.sessions.size(), e.projects.Size()
}

// CleanupCaches sweeps expired entries from both caches and returns the
// total dropped. Lazy expiry already treats stale entries as absent; the
// sweep just reclaims memory.
func (e *Engine) CleanupCaches() int {
	return e.sessions.cleanup(e.Config().CacheTimeout()) + e.projects.Cleanup()
}

// projectContext resolves the project context, degrading to nil on any
// scan failure.
func (e *Engine) projectContext(projectPath string) *projctx.Context {
	if projectPath == "" {
		return nil
	}
	pctx, err := e.projects.Analyze(projectPath)
	if err != nil {
		e.logger.Warn("project context unavailable", "path", projectPath, "error", err)
		return nil
	}
	return pctx
}

// historicalBoosts builds the success-rate map for this run. It is
// rebuilt every run so fresh feedback takes effect immediately; a failed
// read degrades to an empty map.
func (e *Engine) historicalBoosts(ctx context.Context) scoring.Boosts {
	boosts := make(scoring.Boosts)
	for _, typ := range []catalog.Type{catalog.TypeAgent, catalog.TypeSkill} {
		performers, err := e.persistence.GetTopPerformingItems(ctx, typ, minBoostSamples, topPerformerLimit)
		if err != nil {
			e.logger.Warn("historical performance read failed", "type", typ, "error", err)
			continue
		}
		for _, p := range performers {
			boosts[scoring.BoostKey(p.Type, p.ItemID)] = p.SuccessRate
		}
	}
	return boosts
}

// searchBothTypes runs the agent and skill scoring engines concurrently.
// The two calls are isolated: one type failing does not discard the
// other's candidates. Only when both fail does the request fail.
func (e *Engine) searchBothTypes(ctx context.Context, a analyze.Analysis, pctx *projctx.Context, boosts scoring.Boosts, cfg Config) ([]scoring.Candidate, error) {
	weights := scoring.Weights{
		ProjectContext:  cfg.ProjectContextWeight,
		HistoricalBoost: cfg.HistoricalBoostWeight,
	}

	engines := []*scoring.Engine{e.agents, e.skills}
	results := make([][]scoring.Candidate, len(engines))
	errs := make([]error, len(engines))

	var wg sync.WaitGroup
	for i, eng := range engines {
		wg.Add(1)
		go func(i int, eng *scoring.Engine) {
			defer wg.Done()
			results[i], errs[i] = eng.Search(ctx, a, pctx, boosts, weights)
		}(i, eng)
	}
	wg.Wait()

	var merged []scoring.Candidate
	failures := 0
	for i, eng := range engines {
		if errs[i] != nil {
			failures++
			e.logger.Error("catalog search failed", "type", eng.Type(), "error", errs[i])
			continue
		}
		merged = append(merged, results[i]...)
	}

	if failures == len(engines) {
		return nil, errors.Join(errs...)
	}
	return merged, nil
}

// filterCandidates applies the confidence threshold and the result cap.
func filterCandidates(candidates []scoring.Candidate, cfg Config) []scoring.Candidate {
	filtered := candidates[:0:len(candidates)]
	for _, c := range candidates {
		if c.Confidence < cfg.MinConfidenceScore {
			continue
		}
		filtered = append(filtered, c)
	}
	if len(filtered) > cfg.MaxRecommendations {
		filtered = filtered[:cfg.MaxRecommendations]
	}
	return filtered
}

// persistCandidates dedups against the session's recent history and
// persists the survivors. Dedup runs after truncation, so a deduped slot
// is not backfilled from lower-ranked candidates. Per-item persistence
// failures drop that item only.
func (e *Engine) persistCandidates(ctx context.Context, req Request, candidates []scoring.Candidate) []store.Recommendation {
	persisted := make([]store.Recommendation, 0, len(candidates))

	for _, c := range candidates {
		recent, err := e.persistence.WasRecentlyRecommended(ctx, c.ItemID, c.Type, req.SessionID, DedupWindowSize)
		if err != nil {
			// Prefer serving over suppressing when the dedup read fails.
			e.logger.Warn("dedup check failed", "item_id", c.ItemID, "type", c.Type, "error", err)
		} else if recent {
			continue
		}

		rec, err := e.persistence.RecordRecommendation(ctx, store.Recommendation{
			SessionID:       req.SessionID,
			ItemID:          c.ItemID,
			Type:            c.Type,
			Slug:            c.Slug,
			Name:            c.Name,
			Confidence:      c.Confidence,
			Source:          c.Source,
			MatchedKeywords: c.MatchedKeywords,
			ProjectPath:     req.ProjectPath,
		})
		if err != nil {
			e.logger.Warn("failed to persist recommendation",
				"item_id", c.ItemID, "type", c.Type, "error", err)
			continue
		}
		persisted = append(persisted, rec)
	}

	return persisted
}

// notify publishes the generated event and pushes to the UI surface.
// Both are best-effort; neither can fail the pipeline.
func (e *Engine) notify(req Request, recs []store.Recommendation) {
	e.events.publishGenerated(GeneratedEvent{
		SessionID:       req.SessionID,
		ProjectPath:     req.ProjectPath,
		Count:           len(recs),
		Recommendations: recs,
	})

	if e.ui == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Warn("UI push panicked", "panic", r)
			}
		}()
		e.ui.PushRecommendations(req.SessionID, recs)
	}()
}
