package streak

import (
	"context"
	"time"
)

// Repository persists streak state. Save performs an optimistic write: for
// an existing row the caller's Version must match the stored one, otherwise
// shared.ErrOptimisticLock is returned and the caller reloads and retries.
type Repository interface {
	// Get loads the state for a user. Returns shared.ErrStreakNotFound when
	// the user has no streak yet.
	Get(ctx context.Context, userID string) (*State, error)

	// Save inserts a new state or updates an existing one under version
	// check, bumping Version on success.
	Save(ctx context.Context, state *State) error

	// ListExpiredAtRisk returns states whose recovery deadline is before the
	// given instant, up to limit rows. Used by the deadline sweeper.
	ListExpiredAtRisk(ctx context.Context, before time.Time, limit int) ([]*State, error)
}

// RecoveryLog is the append-only audit log of recoveries. Entries are never
// modified after insertion.
type RecoveryLog interface {
	// Append inserts a recovery record.
	Append(ctx context.Context, record *RecoveryRecord) error

	// CountSince returns how many recoveries the user performed at or after
	// the given instant. Drives the one-per-window eligibility rule.
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)

	// ListByUser returns the user's recovery history, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*RecoveryRecord, error)
}
