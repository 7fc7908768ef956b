package engine

import (
	"log/slog"
	"sync"

	"github.com/runger/capmatch/internal/store"
)

// GeneratedEvent is published after a pipeline run persists its results.
type GeneratedEvent struct {
	SessionID       string
	ProjectPath     string
	Count           int
	Recommendations []store.Recommendation
}

// FeedbackEvent is published after a user action is recorded.
type FeedbackEvent struct {
	RecommendationID string
	Action           store.Action
}

// Subscriber receives engine events. Handlers run synchronously on the
// publishing goroutine; slow consumers should hand off internally.
type Subscriber interface {
	RecommendationsGenerated(GeneratedEvent)
	FeedbackRecorded(FeedbackEvent)
}

// UISurface receives fire-and-forget pushes of freshly issued
// recommendations. Pushes run on their own goroutine and must never be
// able to fail the pipeline.
type UISurface interface {
	PushRecommendations(sessionID string, recs []store.Recommendation)
}

// bus fans events out to subscribers. A panicking subscriber is logged
// and does not affect other subscribers or the pipeline.
type bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	logger      *slog.Logger
}

func newBus(logger *slog.Logger) *bus {
	return &bus{logger: logger}
}

func (b *bus) subscribe(s Subscriber) {
	b.mu.Lock()
	b.subscribers = append(b.subscribers, s)
	b.mu.Unlock()
}

func (b *bus) publishGenerated(ev GeneratedEvent) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(func() { s.RecommendationsGenerated(ev) })
	}
}

func (b *bus) publishFeedback(ev FeedbackEvent) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(func() { s.FeedbackRecorded(ev) })
	}
}

func (b *bus) deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("event subscriber panicked", "panic", r)
		}
	}()
	fn()
}
