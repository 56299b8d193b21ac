package memory

import (
	"context"
	"sort"

	"github.com/pagefeed/engagement-engine/internal/domain/leaderboard"
)

// LeaderboardReader ranks directly over the in-memory streak repository.
type LeaderboardReader struct {
	streaks *StreakRepository
}

// NewLeaderboardReader creates a reader over the given streak repository.
func NewLeaderboardReader(streaks *StreakRepository) *LeaderboardReader {
	return &LeaderboardReader{streaks: streaks}
}

// Top returns the first limit entries, value descending with userID
// ascending on ties.
func (r *LeaderboardReader) Top(ctx context.Context, metric leaderboard.Metric, limit int) ([]leaderboard.Entry, error) {
	r.streaks.mu.RLock()
	entries := make([]leaderboard.Entry, 0, len(r.streaks.states))
	for userID, st := range r.streaks.states {
		value := st.CurrentStreak
		if metric == leaderboard.MetricTotal {
			value = st.TotalStreak
		}
		entries = append(entries, leaderboard.Entry{UserID: userID, Value: value})
	}
	r.streaks.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].UserID < entries[j].UserID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
