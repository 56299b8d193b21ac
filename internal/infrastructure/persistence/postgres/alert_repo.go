package postgres

import (
	"context"
	"time"

	"github.com/pagefeed/engagement-engine/internal/domain/alert"
	"github.com/pagefeed/engagement-engine/internal/domain/shared"
)

// AlertRepository implements alert.Repository over alert_flags. Every write
// is a single upsert statement, so projections replayed out of order still
// converge on last-write-wins without row locks.
type AlertRepository struct {
	conn *Connection
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(conn *Connection) *AlertRepository {
	return &AlertRepository{conn: conn}
}

// Get loads the flags for a user. A missing row reads as all-clear.
func (r *AlertRepository) Get(ctx context.Context, userID string) (*alert.Flags, error) {
	query := `
		SELECT user_id, show_recover_streak, show_reset_streak, streak_milestone,
			pending_achievements, updated_at
		FROM alert_flags
		WHERE user_id = $1
	`

	var flags alert.Flags
	err := r.conn.QueryRow(ctx, query, userID).Scan(
		&flags.UserID, &flags.ShowRecoverStreak, &flags.ShowResetStreak,
		&flags.StreakMilestone, &flags.PendingAchievements, &flags.UpdatedAt,
	)
	if IsNoRows(err) {
		return &alert.Flags{UserID: userID}, nil
	}
	if err != nil {
		return nil, shared.WrapError("alert", "Get", shared.ErrUnavailable, "failed to load alert flags", err)
	}
	return &flags, nil
}

// SetFlag sets or clears one boolean flag.
func (r *AlertRepository) SetFlag(ctx context.Context, userID string, kind alert.Kind, value bool, at time.Time) error {
	column, err := flagColumn(kind)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO alert_flags (user_id, ` + column + `, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
			SET ` + column + ` = $2, updated_at = $3
	`
	if _, err := r.conn.Exec(ctx, query, userID, value, at); err != nil {
		return shared.WrapError("alert", "SetFlag", shared.ErrUnavailable, "failed to set alert flag", err)
	}
	return nil
}

// SetMilestone stores the milestone value to surface; zero clears it.
func (r *AlertRepository) SetMilestone(ctx context.Context, userID string, milestone int, at time.Time) error {
	query := `
		INSERT INTO alert_flags (user_id, streak_milestone, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
			SET streak_milestone = $2, updated_at = $3
	`
	if _, err := r.conn.Exec(ctx, query, userID, milestone, at); err != nil {
		return shared.WrapError("alert", "SetMilestone", shared.ErrUnavailable, "failed to set streak milestone", err)
	}
	return nil
}

// AddPendingAchievement appends an achievement ID to the pending list if not
// already present.
func (r *AlertRepository) AddPendingAchievement(ctx context.Context, userID, achievementID string, at time.Time) error {
	query := `
		INSERT INTO alert_flags (user_id, pending_achievements, updated_at)
		VALUES ($1, ARRAY[$2::text], $3)
		ON CONFLICT (user_id) DO UPDATE
			SET pending_achievements = CASE
					WHEN $2 = ANY(alert_flags.pending_achievements)
						THEN alert_flags.pending_achievements
					ELSE array_append(alert_flags.pending_achievements, $2)
				END,
				updated_at = $3
	`
	if _, err := r.conn.Exec(ctx, query, userID, achievementID, at); err != nil {
		return shared.WrapError("alert", "AddPendingAchievement", shared.ErrUnavailable, "failed to add pending achievement", err)
	}
	return nil
}

// Acknowledge clears one boolean flag or removes one pending achievement.
func (r *AlertRepository) Acknowledge(ctx context.Context, userID string, kind alert.Kind, achievementID string, at time.Time) error {
	if achievementID != "" {
		query := `
			UPDATE alert_flags
			SET pending_achievements = array_remove(pending_achievements, $2), updated_at = $3
			WHERE user_id = $1
		`
		if _, err := r.conn.Exec(ctx, query, userID, achievementID, at); err != nil {
			return shared.WrapError("alert", "Acknowledge", shared.ErrUnavailable, "failed to acknowledge achievement", err)
		}
		return nil
	}

	if kind == alert.KindStreakMilestone {
		return r.SetMilestone(ctx, userID, 0, at)
	}
	return r.SetFlag(ctx, userID, kind, false, at)
}

func flagColumn(kind alert.Kind) (string, error) {
	// Column names come from this switch, never from caller input.
	switch kind {
	case alert.KindRecoverStreak:
		return "show_recover_streak", nil
	case alert.KindResetStreak:
		return "show_reset_streak", nil
	default:
		return "", shared.NewDomainError("alert", "SetFlag", shared.ErrInvalidInput, "unknown alert kind")
	}
}
