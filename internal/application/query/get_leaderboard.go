// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pagefeed/engagement-engine/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Returns the top-N users ranked by current or total streak.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery contains the leaderboard request parameters.
type GetLeaderboardQuery struct {
	// Metric - "current" (default) or "total".
	Metric leaderboard.Metric

	// Limit - number of entries (default 20, max 100).
	Limit int
}

// Validate checks and normalizes the query parameters.
func (q *GetLeaderboardQuery) Validate() error {
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	switch q.Metric {
	case "":
		q.Metric = leaderboard.MetricCurrent
	case leaderboard.MetricCurrent, leaderboard.MetricTotal:
	default:
		return fmt.Errorf("unknown metric: %s", q.Metric)
	}
	return nil
}

// LeaderboardEntryDTO is one ranked row.
type LeaderboardEntryDTO struct {
	// Rank - 1-based position.
	Rank int `json:"rank"`

	// UserID - internal user ID.
	UserID string `json:"user_id"`

	// Value - the ranked streak counter.
	Value int `json:"value"`
}

// GetLeaderboardResult contains the leaderboard response.
type GetLeaderboardResult struct {
	Metric      leaderboard.Metric    `json:"metric"`
	Entries     []LeaderboardEntryDTO `json:"entries"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// GetLeaderboardHandler handles the GetLeaderboardQuery.
type GetLeaderboardHandler struct {
	reader leaderboard.Reader
}

// NewGetLeaderboardHandler creates a new GetLeaderboardHandler.
func NewGetLeaderboardHandler(reader leaderboard.Reader) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{reader: reader}
}

// Handle executes the leaderboard query.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_leaderboard: %w", err)
	}

	entries, err := h.reader.Top(ctx, q.Metric, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: failed to read ranking: %w", err)
	}

	result := &GetLeaderboardResult{
		Metric:      q.Metric,
		Entries:     make([]LeaderboardEntryDTO, 0, len(entries)),
		GeneratedAt: time.Now().UTC(),
	}
	for _, e := range entries {
		result.Entries = append(result.Entries, LeaderboardEntryDTO{
			Rank:   e.Rank,
			UserID: e.UserID,
			Value:  e.Value,
		})
	}
	return result, nil
}
