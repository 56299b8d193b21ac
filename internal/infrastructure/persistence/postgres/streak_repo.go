package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/pagefeed/engagement-engine/internal/domain/shared"
	"github.com/pagefeed/engagement-engine/internal/domain/streak"
)

// StreakRepository implements streak.Repository over user_streaks.
//
// Concurrency control is a version column: updates carry the version the
// caller loaded, and a zero-row update means someone else won the race. No
// row locks are held between the read and the write.
type StreakRepository struct {
	conn *Connection
}

// NewStreakRepository creates a new StreakRepository.
func NewStreakRepository(conn *Connection) *StreakRepository {
	return &StreakRepository{conn: conn}
}

const streakColumns = `
	user_id, current_streak, total_streak, max_streak,
	last_activity_at, last_activity_day, timezone,
	phase, recovery_deadline, version, created_at, updated_at
`

// Get loads the state for a user.
func (r *StreakRepository) Get(ctx context.Context, userID string) (*streak.State, error) {
	query := `SELECT ` + streakColumns + ` FROM user_streaks WHERE user_id = $1`

	st, err := scanStreak(r.conn.QueryRow(ctx, query, userID))
	if IsNoRows(err) {
		return nil, shared.ErrStreakNotFound
	}
	if err != nil {
		return nil, shared.WrapError("streak", "Get", shared.ErrUnavailable, "failed to load streak", err)
	}
	return st, nil
}

// Save inserts a new state or updates an existing one under version check.
func (r *StreakRepository) Save(ctx context.Context, state *streak.State) error {
	if state.Version == 0 {
		return r.insert(ctx, state)
	}
	return r.update(ctx, state)
}

func (r *StreakRepository) insert(ctx context.Context, state *streak.State) error {
	query := `
		INSERT INTO user_streaks (
			user_id, current_streak, total_streak, max_streak,
			last_activity_at, last_activity_day, timezone,
			phase, recovery_deadline, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $11)
	`

	var lastActivityAt *time.Time
	if !state.LastActivityAt.IsZero() {
		lastActivityAt = &state.LastActivityAt
	}

	_, err := r.conn.Exec(ctx, query,
		state.UserID, state.CurrentStreak, state.TotalStreak, state.MaxStreak,
		lastActivityAt, state.LastActivityDay, state.Timezone,
		string(state.Phase), state.RecoveryDeadline, state.CreatedAt, state.UpdatedAt,
	)
	if IsUniqueViolation(err) {
		// A concurrent first activity created the row; the caller reloads
		// and replays.
		return shared.ErrOptimisticLock
	}
	if err != nil {
		return shared.WrapError("streak", "Save", shared.ErrUnavailable, "failed to insert streak", err)
	}

	state.Version = 1
	return nil
}

func (r *StreakRepository) update(ctx context.Context, state *streak.State) error {
	query := `
		UPDATE user_streaks SET
			current_streak = $2, total_streak = $3, max_streak = $4,
			last_activity_at = $5, last_activity_day = $6, timezone = $7,
			phase = $8, recovery_deadline = $9,
			version = version + 1, updated_at = $10
		WHERE user_id = $1 AND version = $11
	`

	var lastActivityAt *time.Time
	if !state.LastActivityAt.IsZero() {
		lastActivityAt = &state.LastActivityAt
	}

	tag, err := r.conn.Exec(ctx, query,
		state.UserID, state.CurrentStreak, state.TotalStreak, state.MaxStreak,
		lastActivityAt, state.LastActivityDay, state.Timezone,
		string(state.Phase), state.RecoveryDeadline, state.UpdatedAt,
		state.Version,
	)
	if err != nil {
		return shared.WrapError("streak", "Save", shared.ErrUnavailable, "failed to update streak", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrOptimisticLock
	}

	state.Version++
	return nil
}

// ListExpiredAtRisk returns at-risk states whose deadline is before the
// given instant, oldest deadline first.
func (r *StreakRepository) ListExpiredAtRisk(ctx context.Context, before time.Time, limit int) ([]*streak.State, error) {
	query := `
		SELECT ` + streakColumns + `
		FROM user_streaks
		WHERE phase = 'at_risk' AND recovery_deadline < $1
		ORDER BY recovery_deadline ASC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, before, limit)
	if err != nil {
		return nil, shared.WrapError("streak", "ListExpiredAtRisk", shared.ErrUnavailable, "failed to list expired streaks", err)
	}
	defer rows.Close()

	var out []*streak.State
	for rows.Next() {
		st, err := scanStreak(rows)
		if err != nil {
			return nil, fmt.Errorf("scan streak row: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStreak(row rowScanner) (*streak.State, error) {
	var (
		st             streak.State
		lastActivityAt *time.Time
		phase          string
	)
	err := row.Scan(
		&st.UserID, &st.CurrentStreak, &st.TotalStreak, &st.MaxStreak,
		&lastActivityAt, &st.LastActivityDay, &st.Timezone,
		&phase, &st.RecoveryDeadline, &st.Version, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastActivityAt != nil {
		st.LastActivityAt = *lastActivityAt
	}
	st.Phase = streak.Phase(phase)
	return &st, nil
}

// RecoveryLog implements streak.RecoveryLog over streak_recoveries.
type RecoveryLog struct {
	conn *Connection
}

// NewRecoveryLog creates a new RecoveryLog.
func NewRecoveryLog(conn *Connection) *RecoveryLog {
	return &RecoveryLog{conn: conn}
}

// Append inserts a recovery record.
func (l *RecoveryLog) Append(ctx context.Context, record *streak.RecoveryRecord) error {
	query := `
		INSERT INTO streak_recoveries (id, user_id, action, performed_at, restored_streak)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := l.conn.Exec(ctx, query,
		record.ID, record.UserID, string(record.Action), record.PerformedAt, record.RestoredStreak,
	)
	if err != nil {
		return shared.WrapError("streak", "AppendRecovery", shared.ErrUnavailable, "failed to append recovery", err)
	}
	return nil
}

// CountSince counts a user's recoveries at or after the given instant.
func (l *RecoveryLog) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM streak_recoveries WHERE user_id = $1 AND performed_at >= $2`

	var count int
	if err := l.conn.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, shared.WrapError("streak", "CountRecoveries", shared.ErrUnavailable, "failed to count recoveries", err)
	}
	return count, nil
}

// ListByUser returns a user's recovery records, newest first.
func (l *RecoveryLog) ListByUser(ctx context.Context, userID string, limit int) ([]*streak.RecoveryRecord, error) {
	query := `
		SELECT id, user_id, action, performed_at, restored_streak
		FROM streak_recoveries
		WHERE user_id = $1
		ORDER BY performed_at DESC
		LIMIT $2
	`

	rows, err := l.conn.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, shared.WrapError("streak", "ListRecoveries", shared.ErrUnavailable, "failed to list recoveries", err)
	}
	defer rows.Close()

	var out []*streak.RecoveryRecord
	for rows.Next() {
		var (
			rec    streak.RecoveryRecord
			action string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &action, &rec.PerformedAt, &rec.RestoredStreak); err != nil {
			return nil, fmt.Errorf("scan recovery row: %w", err)
		}
		rec.Action = streak.RecoveryAction(action)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
