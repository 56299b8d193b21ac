package postgres

import (
	"context"
	"fmt"

	"github.com/pagefeed/engagement-engine/internal/domain/leaderboard"
	"github.com/pagefeed/engagement-engine/internal/domain/shared"
)

// LeaderboardReader implements leaderboard.Reader by ranking user_streaks
// directly. The composite (value DESC, user_id ASC) indexes make the top-N
// scan an index walk, so no materialized ranking table is kept.
type LeaderboardReader struct {
	conn *Connection
}

// NewLeaderboardReader creates a new LeaderboardReader.
func NewLeaderboardReader(conn *Connection) *LeaderboardReader {
	return &LeaderboardReader{conn: conn}
}

// Top returns the first limit entries for the metric, value descending with
// userID ascending on ties.
func (r *LeaderboardReader) Top(ctx context.Context, metric leaderboard.Metric, limit int) ([]leaderboard.Entry, error) {
	var column string
	switch metric {
	case leaderboard.MetricCurrent:
		column = "current_streak"
	case leaderboard.MetricTotal:
		column = "total_streak"
	default:
		return nil, shared.NewDomainError("leaderboard", "Top", shared.ErrInvalidInput, "unknown leaderboard metric")
	}

	query := `
		SELECT user_id, ` + column + `
		FROM user_streaks
		WHERE ` + column + ` > 0
		ORDER BY ` + column + ` DESC, user_id ASC
		LIMIT $1
	`

	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, shared.WrapError("leaderboard", "Top", shared.ErrUnavailable, "failed to query leaderboard", err)
	}
	defer rows.Close()

	var out []leaderboard.Entry
	for rows.Next() {
		entry := leaderboard.Entry{Rank: len(out) + 1}
		if err := rows.Scan(&entry.UserID, &entry.Value); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
