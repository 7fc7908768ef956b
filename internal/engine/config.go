package engine

import "time"

// Default configuration values.
const (
	DefaultMaxRecommendations    = 5
	DefaultMinConfidenceScore    = 0.3
	DefaultHistoricalBoostWeight = 0.1
	DefaultProjectContextWeight  = 0.2
	DefaultCacheTimeoutMs        = 30_000

	// DedupWindowSize is the fixed dedup window: the N most recent
	// recommendations issued to a session, regardless of elapsed time.
	DedupWindowSize = 10

	// minBoostSamples is how many recorded actions an item needs before
	// its success rate influences scoring.
	minBoostSamples = 3

	// topPerformerLimit bounds the historical read per capability type.
	topPerformerLimit = 50
)

// Config is the engine configuration. It is replaced as a whole on every
// update so in-flight requests observe a consistent snapshot, never a
// partially-applied mix.
type Config struct {
	// MaxRecommendations caps the results of one pipeline run.
	MaxRecommendations int

	// MinConfidenceScore drops candidates scoring below it, in [0,1].
	MinConfidenceScore float64

	// HistoricalBoostWeight scales the success-rate boost, in [0,1].
	HistoricalBoostWeight float64

	// ProjectContextWeight scales the context-match boost, in [0,1].
	ProjectContextWeight float64

	// CacheTimeoutMs is the TTL for the session and project-context
	// caches, in milliseconds.
	CacheTimeoutMs int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxRecommendations:    DefaultMaxRecommendations,
		MinConfidenceScore:    DefaultMinConfidenceScore,
		HistoricalBoostWeight: DefaultHistoricalBoostWeight,
		ProjectContextWeight:  DefaultProjectContextWeight,
		CacheTimeoutMs:        DefaultCacheTimeoutMs,
	}
}

// CacheTimeout returns the cache TTL as a duration.
func (c Config) CacheTimeout() time.Duration {
	return time.Duration(c.CacheTimeoutMs) * time.Millisecond
}

// sanitize clamps out-of-range values.
func (c Config) sanitize() Config {
	if c.MaxRecommendations < 0 {
		c.MaxRecommendations = 0
	}
	c.MinConfidenceScore = clampUnit(c.MinConfidenceScore)
	c.HistoricalBoostWeight = clampUnit(c.HistoricalBoostWeight)
	c.ProjectContextWeight = clampUnit(c.ProjectContextWeight)
	if c.CacheTimeoutMs < 0 {
		c.CacheTimeoutMs = 0
	}
	return c
}

// Overrides holds a partial configuration update. Nil fields keep their
// current value; the merge builds a fresh Config rather than mutating the
// live one.
type Overrides struct {
	MaxRecommendations    *int     `yaml:"max_recommendations"`
	MinConfidenceScore    *float64 `yaml:"min_confidence_score"`
	HistoricalBoostWeight *float64 `yaml:"historical_boost_weight"`
	ProjectContextWeight  *float64 `yaml:"project_context_weight"`
	CacheTimeoutMs        *int     `yaml:"cache_timeout_ms"`
}

// Apply returns a copy of base with the non-nil overrides applied and
// out-of-range values clamped.
func (o Overrides) Apply(base Config) Config {
	if o.MaxRecommendations != nil {
		base.MaxRecommendations = *o.MaxRecommendations
	}
	if o.MinConfidenceScore != nil {
		base.MinConfidenceScore = *o.MinConfidenceScore
	}
	if o.HistoricalBoostWeight != nil {
		base.HistoricalBoostWeight = *o.HistoricalBoostWeight
	}
	if o.ProjectContextWeight != nil {
		base.ProjectContextWeight = *o.ProjectContextWeight
	}
	if o.CacheTimeoutMs != nil {
		base.CacheTimeoutMs = *o.CacheTimeoutMs
	}
	return base.sanitize()
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
