// Package memory provides in-memory implementations of the persistence
// interfaces. Used by tests and by the dev-mode wiring; safe for concurrent
// use but not durable.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pagefeed/engagement-engine/internal/domain/shared"
	"github.com/pagefeed/engagement-engine/internal/domain/streak"
)

// StreakRepository is an in-memory streak.Repository with the same
// optimistic-locking contract as the postgres implementation.
type StreakRepository struct {
	mu     sync.RWMutex
	states map[string]streak.State
}

// NewStreakRepository creates an empty in-memory streak repository.
func NewStreakRepository() *StreakRepository {
	return &StreakRepository{states: make(map[string]streak.State)}
}

// Get loads the state for a user.
func (r *StreakRepository) Get(ctx context.Context, userID string) (*streak.State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.states[userID]
	if !ok {
		return nil, shared.ErrStreakNotFound
	}
	copied := st
	if st.RecoveryDeadline != nil {
		deadline := *st.RecoveryDeadline
		copied.RecoveryDeadline = &deadline
	}
	return &copied, nil
}

// Save inserts or updates under version check.
func (r *StreakRepository) Save(ctx context.Context, state *streak.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.states[state.UserID]
	if exists && stored.Version != state.Version {
		return shared.ErrOptimisticLock
	}

	state.Version++
	copied := *state
	if state.RecoveryDeadline != nil {
		deadline := *state.RecoveryDeadline
		copied.RecoveryDeadline = &deadline
	}
	r.states[state.UserID] = copied
	return nil
}

// ListExpiredAtRisk returns at-risk states whose deadline is before the
// given instant.
func (r *StreakRepository) ListExpiredAtRisk(ctx context.Context, before time.Time, limit int) ([]*streak.State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*streak.State
	for _, st := range r.states {
		if st.Phase != streak.PhaseAtRisk || st.RecoveryDeadline == nil {
			continue
		}
		if !st.RecoveryDeadline.Before(before) {
			continue
		}
		copied := st
		deadline := *st.RecoveryDeadline
		copied.RecoveryDeadline = &deadline
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecoveryLog is an in-memory streak.RecoveryLog.
type RecoveryLog struct {
	mu      sync.RWMutex
	records []streak.RecoveryRecord
}

// NewRecoveryLog creates an empty in-memory recovery log.
func NewRecoveryLog() *RecoveryLog {
	return &RecoveryLog{}
}

// Append inserts a record.
func (l *RecoveryLog) Append(ctx context.Context, record *streak.RecoveryRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, *record)
	return nil
}

// CountSince counts a user's recoveries at or after the given instant.
func (l *RecoveryLog) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := 0
	for _, rec := range l.records {
		if rec.UserID == userID && !rec.PerformedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// ListByUser returns a user's records, newest first.
func (l *RecoveryLog) ListByUser(ctx context.Context, userID string, limit int) ([]*streak.RecoveryRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*streak.RecoveryRecord
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].UserID != userID {
			continue
		}
		rec := l.records[i]
		out = append(out, &rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
