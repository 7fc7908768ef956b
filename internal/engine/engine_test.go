package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/capmatch/internal/analyze"
	"github.com/runger/capmatch/internal/catalog"
	"github.com/runger/capmatch/internal/projctx"
	"github.com/runger/capmatch/internal/store"
)

// fakeCatalog returns canned results per type, with per-type failure
// injection.
type fakeCatalog struct {
	mu      sync.Mutex
	results map[catalog.Type][]catalog.Result
	fail    map[catalog.Type]error
}

func (f *fakeCatalog) Search(_ context.Context, typ catalog.Type, a analyze.Analysis, _ *projctx.Context) ([]catalog.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[typ]; err != nil {
		return nil, &catalog.SearchError{Type: typ, Err: err}
	}
	return f.results[typ], nil
}

// fakePersistence is an in-memory Persistence with failure injection and
// call accounting.
type fakePersistence struct {
	mu         sync.Mutex
	records    []store.Recommendation
	actions    map[string][]store.Action
	performers map[catalog.Type][]store.TopPerformer

	nextID         int
	failWrites     map[string]error // keyed by item id
	failHistorical error
	failDedup      error
	writeCalls     int
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{
		actions:    make(map[string][]store.Action),
		performers: make(map[catalog.Type][]store.TopPerformer),
		failWrites: make(map[string]error),
	}
}

func (f *fakePersistence) RecordRecommendation(_ context.Context, rec store.Recommendation) (store.Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCalls++
	if err := f.failWrites[rec.ItemID]; err != nil {
		return rec, err
	}
	f.nextID++
	rec.ID = fmt.Sprintf("rec-%d", f.nextID)
	if rec.CreatedMs == 0 {
		rec.CreatedMs = time.Now().UnixMilli()
	}
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakePersistence) RecordRecommendationAction(_ context.Context, id string, action store.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := false
	for _, r := range f.records {
		if r.ID == id {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("unknown recommendation id: %s", id)
	}
	f.actions[id] = append(f.actions[id], action)
	return nil
}

func (f *fakePersistence) GetRecommendationStats(_ context.Context) (store.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := store.Stats{
		TotalRecommendations: int64(len(f.records)),
		ActionCounts:         make(map[store.Action]int64),
	}
	for _, as := range f.actions {
		for _, a := range as {
			stats.ActionCounts[a]++
		}
	}
	return stats, nil
}

func (f *fakePersistence) GetTopPerformingItems(_ context.Context, typ catalog.Type, _, _ int) ([]store.TopPerformer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHistorical != nil {
		return nil, f.failHistorical
	}
	return f.performers[typ], nil
}

func (f *fakePersistence) WasRecentlyRecommended(_ context.Context, itemID string, typ catalog.Type, sessionID string, windowSize int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDedup != nil {
		return false, f.failDedup
	}
	var recent []store.Recommendation
	for _, r := range f.records {
		if r.SessionID == sessionID {
			recent = append(recent, r)
		}
	}
	if len(recent) > windowSize {
		recent = recent[len(recent)-windowSize:]
	}
	for _, r := range recent {
		if r.ItemID == itemID && r.Type == typ {
			return true, nil
		}
	}
	return false, nil
}

// captureSubscriber records published events.
type captureSubscriber struct {
	mu        sync.Mutex
	generated []GeneratedEvent
	feedback  []FeedbackEvent
}

func (c *captureSubscriber) RecommendationsGenerated(ev GeneratedEvent) {
	c.mu.Lock()
	c.generated = append(c.generated, ev)
	c.mu.Unlock()
}

func (c *captureSubscriber) FeedbackRecorded(ev FeedbackEvent) {
	c.mu.Lock()
	c.feedback = append(c.feedback, ev)
	c.mu.Unlock()
}

func (c *captureSubscriber) generatedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.generated)
}

// channelUI signals pushes on a channel so tests can wait for the
// fire-and-forget goroutine.
type channelUI struct {
	pushed chan []store.Recommendation
}

func (u *channelUI) PushRecommendations(_ string, recs []store.Recommendation) {
	u.pushed <- recs
}

func defaultFixture() (*fakeCatalog, *fakePersistence) {
	cat := &fakeCatalog{
		results: map[catalog.Type][]catalog.Result{
			catalog.TypeSkill: {
				{ItemID: "test-runner", Slug: "test-runner", Name: "Test Runner",
					BaseScore: 0.6, MatchedTerms: []string{"tests"}},
			},
			catalog.TypeAgent: {
				{ItemID: "general-helper", Slug: "general-helper", Name: "General Helper",
					BaseScore: 0.2},
			},
		},
		fail: make(map[catalog.Type]error),
	}
	return cat, newFakePersistence()
}

func newTestEngine(t *testing.T, cat catalog.Searcher, p Persistence, cfg Config) *Engine {
	t.Helper()
	eng, err := New(Deps{Persistence: p, Catalog: cat}, cfg)
	require.NoError(t, err)
	return eng
}

func TestEmptyPrompt_NoSideEffects(t *testing.T) {
	t.Parallel()

	cat, p := defaultFixture()
	eng := newTestEngine(t, cat, p, DefaultConfig())
	sub := &captureSubscriber{}
	eng.Subscribe(sub)

	for _, prompt := range []string{"", "   ", "!!! ???", "the a an of"} {
		recs, err := eng.GetRecommendationsForPrompt(context.Background(), Request{
			Prompt:    prompt,
			SessionID: "sess1",
		})
		require.NoError(t, err)
		assert.Empty(t, recs)
	}

	p.mu.Lock()
	writes := p.writeCalls
	p.mu.Unlock()
	assert.Zero(t, writes, "empty prompts must not reach persistence")
	assert.Zero(t, sub.generatedCount(), "empty prompts must not emit events")
}

func TestScenarioA_ThresholdFiltersWeakAgent(t *testing.T) {
	t.Parallel()

	cat, p := defaultFixture()
	eng := newTestEngine(t, cat, p, DefaultConfig())

	recs, err := eng.GetRecommendationsForPrompt(context.Background(), Request{
		Prompt:    "fix the failing unit tests",
		SessionID: "sess1",
	})
	require.NoError(t, err)

	require.Len(t, recs, 1)
	assert.Equal(t, "test-runner", recs[0].ItemID)
	assert.Equal(t, catalog.TypeSkill, recs[0].Type)
	assert.InDelta(t, 0.6, recs[0].Confidence, 1e-9)
}

func TestScenarioB_HistoricalBoostClearsThreshold(t *testing.T) {
	t.Parallel()

	cat, p := defaultFixture()
	p.performers[catalog.TypeAgent] = []store.TopPerformer{
		{Type: catalog.TypeAgent, ItemID: "general-helper", SuccessRate: 0.9, Samples: 10},
	}

	cfg := DefaultConfig()
	cfg.HistoricalBoostWeight = 0.2
	eng := newTestEngine(t, cat, p, cfg)

	recs, err := eng.GetRecommendationsForPrompt(context.Background(), Request{
		Prompt:    "fix the failing unit tests",
		SessionID: "sess1",
	})
	require.NoError(t, err)

	require.Len(t, recs, 2)
	assert.Equal(t, "test-runner", recs[0].ItemID)
	assert.Equal(t, "general-helper", recs[1].ItemID)
	// 0.2 + 0.9*0.2 = 0.38, now above the 0.3 floor and below the skill.
	assert.InDelta(t, 0.38, recs[1].Confidence, 1e-9)
}

func TestScenarioC_DedupAcrossRuns(t *testing.T) {
	t.Parallel()

	cat, p := defaultFixture()
	eng := newTestEngine(t, cat, p, DefaultConfig())
	req := Request{Prompt: "fix the failing unit tests", SessionID: "sess1"}

	first, err := eng.GetRecommendationsForPrompt(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := eng.GetRecommendationsForPrompt(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, second, "already-issued item is suppressed, not replaced")

	// A different session is unaffected.
	other, err := eng.GetRecommendationsForPrompt(context.Background(), Request{
		Prompt:    req.Prompt,
		SessionID: "sess2",
	})
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestScenarioD_ContextScanFailureDegrades(t *testing.T) {
	t.Parallel()

	cat, p := defaultFixture()
	eng := newTestEngine(t, cat, p, DefaultConfig())

	recs, err := eng.GetRecommendationsForPrompt(context.Background(), Request{
		Prompt:      "fix the failing unit tests",
		SessionID:   "sess1",
		ProjectPath: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	require.NoError(t, err, "a failed context scan must not fail the request")
	assert.Len(t, recs, 1)
}

func TestInvariants_ThresholdCapAndUniqueness(t *testing.T) {
	t.Parallel()

	var results []catalog.Result
	for i := 0; i < 20; i++ {
		results = append(results, catalog.Result{
			ItemID:    fmt.Sprintf("skill-%02d", i),
			Slug:      fmt.Sprintf("skill-%02d", i),
			Name:      fmt.Sprintf("Skill %02d", i),
			BaseScore: float64(i) * 0.05,
		})
	}
	cat := &fakeCatalog{
		results: map[catalog.Type][]catalog.Result{catalog.TypeSkill: results},
		fail:    make(map[catalog.Type]error),
	}
	p := newFakePersistence()

	cfg := DefaultConfig()
	cfg.MaxRecommendations = 4
	cfg.MinConfidenceScore = 0.4
	eng := newTestEngine(t, cat, p, cfg)

	recs, err := eng.GetRecommendationsForPrompt(context.Background(), Request{
		Prompt:    "do the needful with tests",
		SessionID: "sess1",
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(recs), cfg.MaxRecommendations)
	seen := make(map[string]bool)
	for _, r := range recs {
		assert.GreaterOrEqual(t, r.Confidence, cfg.MinConfidenceScore)
		key := string(r.Type) + ":" + r.ItemID
		assert.False(t, seen[key], "duplicate (type,item) in one result: %s", key)
		seen[key] = true
	}
}

func TestHistoricalReadFailureDegrades(t *testing.T) {
	t.Parallel()

	cat, p := defaultFixture()
	p.failHistorical = errors.New("stats table locked")
	eng := newTestEngine(t, cat, p, DefaultConfig())

	recs, err := eng.GetRecommendationsForPrompt(context.Background(), Request{
		Prompt:    "fix the failing unit tests",
		SessionID: "sess1",
	})
	require.NoError(t, err)
	assert.Len(t, recs, 1, "scoring proceeds with zero boosts")
}

func TestOneCatalogFailureKeepsOtherType(t *testing.T) {
	t.Parallel()

	cat, p := defaultFixture()
	cat.fail[catalog.TypeAgent] = errors.New("agent index offline")
	eng := newTestEngine(t, cat, p, DefaultConfig())

	recs, err := eng.GetRecommendationsForPrompt(context.Background(), Request{
		Prompt:    "fix the failing unit tests",
		SessionID: "sess1",
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, catalog.TypeSkill, recs[0].Type)
}

func TestBothCatalogsFailingFailsRequest(t *testing.T) {
	t.Parallel()

	cat, p := defaultFixture()
	cat.fail[catalog.TypeAgent] = errors.New("agent index offline")
	cat.fail[catalog.TypeSkill] = errors.New("skill index offline")
	eng := newTestEngine(t, cat, p, DefaultConfig())

	_, err := eng.GetRecommendationsForPrompt(context.Background(), Request{
		Prompt:    "fix the failing unit tests",
		SessionID: "sess1",
	})
	require.Error(t, err)

	var searchErr *catalog.SearchError
	assert.True(t, errors.As(err, &searchErr))
}

func TestPerItemPersistenceIsolation(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{
		results: map[catalog.Type][]catalog.Result{
			catalog.TypeSkill: {
				{ItemID: "ok-1", Slug: "ok-1", Name: "OK One", BaseScore: 0.9},
				{ItemID: "doomed", Slug: "doomed", Name: "Doomed", BaseScore: 0.8},
				{ItemID: "ok-2", Slug: "ok-2", Name: "OK Two", BaseScore: 0.7},
			},
		},
		fail: make(map[catalog.Type]error),
	}
	p := newFakePersistence()
	p.failWrites["doomed"] = errors.New("disk full")
	eng := newTestEngine(t, cat, p, DefaultConfig())

	recs, err := eng.GetRecommendationsForPrompt(context.Background(), Request{
		Prompt:    "run the tests",
		SessionID: "sess1",
	})
	require.NoError(t, err)

	require.Len(t, recs, 2)
	assert.Equal(t, "ok-1", recs[0].ItemID)
	assert.Equal(t, "ok-2", recs[1].ItemID)
}

func TestEventsAndUIPush(t *testing.T) {
	t.Parallel()

	cat, p := defaultFixture()
	ui := &channelUI{pushed: make(chan []store.Recommendation, 1)}
	eng, err := New(Deps{Persistence: p, Catalog: cat, UI: ui}, DefaultConfig())
	require.NoError(t, err)

	sub := &captureSubscriber{}
	eng.Subscribe(sub)

	recs, err := eng.GetRecommendationsForPrompt(context.Background(), Request{
		Prompt:      "fix the failing unit tests",
		SessionID:   "sess1",
		ProjectPath: "",
	})
	require.NoError(t, err)

	require.Equal(t, 1, sub.generatedCount())
	sub.mu.Lock()
	ev := sub.generated[0]
	sub.mu.Unlock()
	assert.Equal(t, "sess1", ev.SessionID)
	assert.Equal(t, len(recs), ev.Count)
	assert.Equal(t, recs, ev.Recommendations)

	select {
	case pushed := <-ui.pushed:
		assert.Equal(t, recs, pushed)
	case <-time.After(2 * time.Second):
		t.Fatal("UI surface never received the push")
	}
}

func TestPanickingSubscriberDoesNotFailPipeline(t *testing.T) {
	t.Parallel()

	cat, p := defaultFixture()
	eng := newTestEngine(t, cat, p, DefaultConfig())
	eng.Subscribe(panicSubscriber{})
	sub := &captureSubscriber{}
	eng.Subscribe(sub)

	recs, err := eng.GetRecommendationsForPrompt(context.Background(), Request{
		Prompt:    "fix the failing unit tests",
		SessionID: "sess1",
	})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 1, sub.generatedCount(), "later subscribers still run")
}

type panicSubscriber struct{}

func (panicSubscriber) RecommendationsGenerated(GeneratedEvent) { panic("boom") }
func (panicSubscriber) FeedbackRecorded(FeedbackEvent)          { panic("boom") }

func TestRecordAction(t *testing.T) {
	t.Parallel()

	cat, p := defaultFixture()
	eng := newTestEngine(t, cat, p, DefaultConfig())
	sub := &captureSubscriber{}
	eng.Subscribe(sub)

	recs, err := eng.GetRecommendationsForPrompt(context.Background(), Request{
		Prompt:    "fix the failing unit tests",
		SessionID: "sess1",
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	require.NoError(t, eng.RecordAction(context.Background(), recs[0].ID, store.ActionAccepted))

	sub.mu.Lock()
	require.Len(t, sub.feedback, 1)
	assert.Equal(t, recs[0].ID, sub.feedback[0].RecommendationID)
	assert.Equal(t, store.ActionAccepted, sub.feedback[0].Action)
	sub.mu.Unlock()

	err = eng.RecordAction(context.Background(), "nope", store.ActionAccepted)
	require.Error(t, err, "feedback write failures propagate")
	sub.mu.Lock()
	assert.Len(t, sub.feedback, 1, "no event for a failed write")
	sub.mu.Unlock()
}

func TestConfigure_WholeObjectReplace(t *testing.T) {
	t.Parallel()

	cat, p := defaultFixture()
	eng := newTestEngine(t, cat, p, DefaultConfig())

	max := 7
	boost := 2.5 // out of range, clamped
	got := eng.Configure(Overrides{
		MaxRecommendations:    &max,
		HistoricalBoostWeight: &boost,
	})

	assert.Equal(t, 7, got.MaxRecommendations)
	assert.Equal(t, 1.0, got.HistoricalBoostWeight)
	// Untouched fields keep their previous values.
	assert.Equal(t, DefaultMinConfidenceScore, got.MinConfidenceScore)
	assert.Equal(t, got, eng.Config())
}

func TestSessionCache_RoundTripAndClear(t *testing.T) {
	t.Parallel()

	cat, p := defaultFixture()
	eng := newTestEngine(t, cat, p, DefaultConfig())

	recs, err := eng.GetRecommendationsForPrompt(context.Background(), Request{
		Prompt:    "fix the failing unit tests",
		SessionID: "sess1",
	})
	require.NoError(t, err)

	entry, ok := eng.SessionCacheEntry("sess1")
	require.True(t, ok)
	assert.Equal(t, recs, entry.Recommendations)
	assert.NotEmpty(t, entry.PromptHash)

	sessions, projects := eng.CacheSizes()
	assert.Equal(t, 1, sessions)
	assert.Zero(t, projects, "no project path was supplied")

	eng.ClearSessionCache("sess1")
	_, ok = eng.SessionCacheEntry("sess1")
	assert.False(t, ok)
	sessions, _ = eng.CacheSizes()
	assert.Zero(t, sessions)

	_, err = eng.GetRecommendationsForPrompt(context.Background(), Request{
		Prompt:    "fix the failing unit tests",
		SessionID: "sess3",
	})
	require.NoError(t, err)
	eng.ClearCaches()
	_, ok = eng.SessionCacheEntry("sess3")
	assert.False(t, ok)
}

func TestConfigure_ZeroCacheTimeoutDisablesCaching(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{
		results: map[catalog.Type][]catalog.Result{
			catalog.TypeSkill: {
				{ItemID: "go-tools", Slug: "go-tools", Name: "Go Tools",
					BaseScore: 0.5, MatchedTerms: []string{"tests"},
					ApplicabilityTags: []string{"go"}},
			},
		},
		fail: make(map[catalog.Type]error),
	}
	p := newFakePersistence()
	eng := newTestEngine(t, cat, p, DefaultConfig())

	zero := 0
	got := eng.Configure(Overrides{CacheTimeoutMs: &zero})
	assert.Equal(t, 0, got.CacheTimeoutMs)

	_, err := eng.GetRecommendationsForPrompt(context.Background(), Request{
		Prompt:    "fix the failing unit tests",
		SessionID: "sess1",
	})
	require.NoError(t, err)

	_, ok := eng.SessionCacheEntry("sess1")
	assert.False(t, ok, "a zero timeout means no entry is ever fresh")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/app\n"), 0o644))
	first, err := eng.ProjectSuggestions(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, first, 1)
	// Full tag match against the go stack: 0.5 + 1.0*0.2.
	assert.InDelta(t, 0.7, first[0].Confidence, 1e-9)

	// The project scan is not cached either: a changed project shows
	// through on the very next call.
	require.NoError(t, os.Remove(filepath.Join(dir, "go.mod")))
	second, err := eng.ProjectSuggestions(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.InDelta(t, 0.5, second[0].Confidence, 1e-9)
}

func TestProjectSuggestions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/app\n"), 0o644))

	cat := &fakeCatalog{
		results: map[catalog.Type][]catalog.Result{
			catalog.TypeSkill: {
				{ItemID: "go-tools", Slug: "go-tools", Name: "Go Tools",
					BaseScore: 0.5, ApplicabilityTags: []string{"go"}},
			},
		},
		fail: make(map[catalog.Type]error),
	}
	p := newFakePersistence()
	eng := newTestEngine(t, cat, p, DefaultConfig())

	got, err := eng.ProjectSuggestions(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "go-tools", got[0].ItemID)
	// Context-only suggestions are not persisted.
	p.mu.Lock()
	assert.Zero(t, p.writeCalls)
	p.mu.Unlock()

	_, err = eng.ProjectSuggestions(context.Background(), filepath.Join(dir, "missing"))
	require.Error(t, err, "project-only entry point surfaces scan errors")
}

func TestConcurrentRequestsAreSafe(t *testing.T) {
	t.Parallel()

	cat, p := defaultFixture()
	eng := newTestEngine(t, cat, p, DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := eng.GetRecommendationsForPrompt(context.Background(), Request{
				Prompt:    "fix the failing unit tests",
				SessionID: fmt.Sprintf("sess-%d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			max := 3 + i
			eng.Configure(Overrides{MaxRecommendations: &max})
		}(i)
	}
	wg.Wait()
}

func TestDedupReadFailurePrefersServing(t *testing.T) {
	t.Parallel()

	cat, p := defaultFixture()
	p.failDedup = errors.New("history unavailable")
	eng := newTestEngine(t, cat, p, DefaultConfig())

	recs, err := eng.GetRecommendationsForPrompt(context.Background(), Request{
		Prompt:    "fix the failing unit tests",
		SessionID: "sess1",
	})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
