package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/runger/capmatch/internal/catalog"
)

// Action is an outcome a user applied to an issued recommendation.
type Action string

const (
	ActionAccepted  Action = "accepted"
	ActionDismissed Action = "dismissed"
	ActionUsed      Action = "used"
)

// ValidAction reports whether a is a known action.
func ValidAction(a Action) bool {
	switch a {
	case ActionAccepted, ActionDismissed, ActionUsed:
		return true
	}
	return false
}

// successAction reports whether a counts toward an item's success rate.
func successAction(a Action) bool {
	return a == ActionAccepted || a == ActionUsed
}

// Recommendation is a persisted recommendation record.
type Recommendation struct {
	ID              string
	SessionID       string
	ItemID          string
	Type            catalog.Type
	Slug            string
	Name            string
	Confidence      float64
	Source          string
	MatchedKeywords []string
	ProjectPath     string
	CreatedMs       int64
}

// TopPerformer is one entry of the historical success-rate read.
type TopPerformer struct {
	Type        catalog.Type
	ItemID      string
	SuccessRate float64
	Samples     int64
}

// Stats aggregates recommendation outcomes across the store.
type Stats struct {
	TotalRecommendations int64
	ActionCounts         map[Action]int64
	AcceptanceRate       float64
}

// Store persists recommendations and their feedback.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a store over an already-migrated database.
func New(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// RecordRecommendation persists rec and returns it with an assigned id.
// Each call fails independently; callers isolate per-item failures.
func (s *Store) RecordRecommendation(ctx context.Context, rec Recommendation) (Recommendation, error) {
	if rec.SessionID == "" {
		return rec, fmt.Errorf("session_id is required")
	}
	if rec.ItemID == "" {
		return rec, fmt.Errorf("item_id is required")
	}
	if !catalog.ValidType(rec.Type) {
		return rec, fmt.Errorf("invalid capability type: %q", rec.Type)
	}
	if rec.CreatedMs == 0 {
		rec.CreatedMs = time.Now().UnixMilli()
	}
	rec.ID = uuid.NewString()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recommendation
		  (id, session_id, item_id, type, slug, name, confidence, source, matched_keywords, project_path, created_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.SessionID, rec.ItemID, string(rec.Type), rec.Slug, rec.Name,
		rec.Confidence, rec.Source, strings.Join(rec.MatchedKeywords, "|"),
		nullStr(rec.ProjectPath), rec.CreatedMs)
	if err != nil {
		return rec, fmt.Errorf("failed to insert recommendation: %w", err)
	}

	s.logger.Debug("recorded recommendation",
		"id", rec.ID, "session_id", rec.SessionID, "item_id", rec.ItemID, "type", rec.Type)
	return rec, nil
}

// RecordRecommendationAction records a user action against a previously
// issued recommendation. An unknown recommendation id is an error.
func (s *Store) RecordRecommendationAction(ctx context.Context, recommendationID string, action Action) error {
	if recommendationID == "" {
		return fmt.Errorf("recommendation id is required")
	}
	if !ValidAction(action) {
		return fmt.Errorf("invalid recommendation action: %q", action)
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM recommendation WHERE id = ?", recommendationID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up recommendation: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("unknown recommendation id: %s", recommendationID)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recommendation_action (recommendation_id, action, created_ms)
		VALUES (?, ?, ?)
	`, recommendationID, string(action), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert recommendation action: %w", err)
	}

	s.logger.Debug("recorded recommendation action",
		"recommendation_id", recommendationID, "action", action)
	return nil
}

// GetTopPerformingItems returns the best-performing items of a type by
// success rate, considering only items with at least minSamples recorded
// actions. Ordered by success rate descending, then item id for
// determinism.
func (s *Store) GetTopPerformingItems(ctx context.Context, typ catalog.Type, minSamples, limit int) ([]TopPerformer, error) {
	if limit <= 0 {
		limit = 50
	}
	if minSamples < 1 {
		minSamples = 1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.item_id,
		       COUNT(*) AS samples,
		       AVG(CASE WHEN a.action IN ('accepted', 'used') THEN 1.0 ELSE 0.0 END) AS success_rate
		FROM recommendation_action a
		JOIN recommendation r ON r.id = a.recommendation_id
		WHERE r.type = ?
		GROUP BY r.item_id
		HAVING samples >= ?
		ORDER BY success_rate DESC, r.item_id ASC
		LIMIT ?
	`, string(typ), minSamples, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top performing items: %w", err)
	}
	defer rows.Close()

	var out []TopPerformer
	for rows.Next() {
		p := TopPerformer{Type: typ}
		if err := rows.Scan(&p.ItemID, &p.Samples, &p.SuccessRate); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// WasRecentlyRecommended reports whether (itemID, typ) appears among the
// windowSize most recent recommendations issued to sessionID. The window
// is a fixed count, not a time span.
func (s *Store) WasRecentlyRecommended(ctx context.Context, itemID string, typ catalog.Type, sessionID string, windowSize int) (bool, error) {
	if windowSize <= 0 {
		return false, nil
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT item_id, type FROM recommendation
			WHERE session_id = ?
			ORDER BY created_ms DESC, rowid DESC
			LIMIT ?
		)
		WHERE item_id = ? AND type = ?
	`, sessionID, windowSize, itemID, string(typ)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent recommendations: %w", err)
	}
	return count > 0, nil
}

// GetRecommendationStats returns aggregate counts and the acceptance rate
// across all recorded feedback.
func (s *Store) GetRecommendationStats(ctx context.Context) (Stats, error) {
	stats := Stats{ActionCounts: make(map[Action]int64)}

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM recommendation").Scan(&stats.TotalRecommendations)
	if err != nil {
		return stats, fmt.Errorf("failed to count recommendations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT action, COUNT(*) FROM recommendation_action GROUP BY action")
	if err != nil {
		return stats, fmt.Errorf("failed to count actions: %w", err)
	}
	defer rows.Close()

	var total, success int64
	for rows.Next() {
		var a string
		var c int64
		if err := rows.Scan(&a, &c); err != nil {
			return stats, err
		}
		stats.ActionCounts[Action(a)] = c
		total += c
		if successAction(Action(a)) {
			success += c
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	if total > 0 {
		stats.AcceptanceRate = float64(success) / float64(total)
	}
	return stats, nil
}

// RecentForSession returns the most recent recommendations for a session,
// newest first. Used by the CLI to show what was issued.
func (s *Store) RecentForSession(ctx context.Context, sessionID string, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, item_id, type, slug, name, confidence, source, matched_keywords, project_path, created_ms
		FROM recommendation
		WHERE session_id = ?
		ORDER BY created_ms DESC, rowid DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent recommendations: %w", err)
	}
	defer rows.Close()

	var out []Recommendation
	for rows.Next() {
		var rec Recommendation
		var typ, matched string
		var projectPath sql.NullString
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.ItemID, &typ, &rec.Slug, &rec.Name,
			&rec.Confidence, &rec.Source, &matched, &projectPath, &rec.CreatedMs); err != nil {
			return nil, err
		}
		rec.Type = catalog.Type(typ)
		if matched != "" {
			rec.MatchedKeywords = strings.Split(matched, "|")
		}
		if projectPath.Valid {
			rec.ProjectPath = projectPath.String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
