// Package leaderboard defines the read-only ranking views over streak state.
package leaderboard

import "context"

// Metric selects which streak counter a ranking is built on.
type Metric string

const (
	// MetricCurrent ranks by the live consecutive-day count.
	MetricCurrent Metric = "current"

	// MetricTotal ranks by the lifetime qualifying-day count.
	MetricTotal Metric = "total"
)

// Entry is one ranked row. Rank is 1-based and dense within a page.
type Entry struct {
	Rank   int
	UserID string
	Value  int
}

// Reader serves ranked pages. Ordering is value descending with userID
// ascending as the tie-break, so equal scores always list in a stable order.
type Reader interface {
	// Top returns the first limit entries for the metric.
	Top(ctx context.Context, metric Metric, limit int) ([]Entry, error)
}
