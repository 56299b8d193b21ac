package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pagefeed/engagement-engine/internal/domain/achievement"
	"github.com/pagefeed/engagement-engine/internal/domain/shared"
)

// DefinitionRepository implements achievement.DefinitionRepository over
// achievement_definitions.
type DefinitionRepository struct {
	conn *Connection
}

// NewDefinitionRepository creates a new DefinitionRepository.
func NewDefinitionRepository(conn *Connection) *DefinitionRepository {
	return &DefinitionRepository{conn: conn}
}

const definitionColumns = `id, name, description, points, rarity, unit, criteria_kind, event_type, target_count, created_at`

// GetByID loads one definition.
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*achievement.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM achievement_definitions WHERE id = $1`

	def, err := scanDefinition(r.conn.QueryRow(ctx, query, id))
	if IsNoRows(err) {
		return nil, shared.ErrDefinitionNotFound
	}
	if err != nil {
		return nil, shared.WrapError("achievement", "GetByID", shared.ErrUnavailable, "failed to load definition", err)
	}
	return def, nil
}

// ListByEventType returns all definitions counting the given event type.
func (r *DefinitionRepository) ListByEventType(ctx context.Context, eventType string) ([]*achievement.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM achievement_definitions WHERE event_type = $1 ORDER BY id`
	return r.queryDefinitions(ctx, query, eventType)
}

// List returns the whole catalog.
func (r *DefinitionRepository) List(ctx context.Context) ([]*achievement.Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM achievement_definitions ORDER BY id`
	return r.queryDefinitions(ctx, query)
}

// Seed inserts definitions that do not exist yet. Existing rows keep their
// stored values so a redeploy never rewrites live catalog entries.
func (r *DefinitionRepository) Seed(ctx context.Context, defs []*achievement.Definition) error {
	query := `
		INSERT INTO achievement_definitions
			(id, name, description, points, rarity, unit, criteria_kind, event_type, target_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, def := range defs {
			if err := def.Validate(); err != nil {
				return err
			}
			rarity := def.Rarity
			if rarity == "" {
				rarity = achievement.RarityCommon
			}
			_, err := tx.Exec(ctx, query,
				def.ID, def.Name, def.Description, def.Points, rarity, def.Unit,
				string(def.Criteria.Kind), def.Criteria.EventType, def.Criteria.TargetCount,
				def.CreatedAt,
			)
			if err != nil {
				return shared.WrapError("achievement", "Seed", shared.ErrUnavailable, "failed to seed definition", err)
			}
		}
		return nil
	})
}

func (r *DefinitionRepository) queryDefinitions(ctx context.Context, query string, args ...interface{}) ([]*achievement.Definition, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.WrapError("achievement", "List", shared.ErrUnavailable, "failed to list definitions", err)
	}
	defer rows.Close()

	var out []*achievement.Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan definition row: %w", err)
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func scanDefinition(row rowScanner) (*achievement.Definition, error) {
	var (
		def  achievement.Definition
		kind string
	)
	err := row.Scan(
		&def.ID, &def.Name, &def.Description, &def.Points, &def.Rarity, &def.Unit,
		&kind, &def.Criteria.EventType, &def.Criteria.TargetCount, &def.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	def.Criteria.Kind = achievement.CriteriaKind(kind)
	return &def, nil
}

// ProgressRepository implements achievement.ProgressRepository over
// user_achievement_progress.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

// Increment atomically bumps the user's counter and returns the resulting
// row. The upsert runs as a single statement, so for a target of N exactly
// one of any set of concurrent callers sees the counter land on N.
func (r *ProgressRepository) Increment(ctx context.Context, userID, achievementID string, at time.Time) (*achievement.Progress, error) {
	query := `
		INSERT INTO user_achievement_progress (user_id, achievement_id, count, updated_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (user_id, achievement_id) DO UPDATE
			SET count = user_achievement_progress.count + 1, updated_at = $3
		RETURNING count, unlocked_at
	`

	progress := &achievement.Progress{
		UserID:        userID,
		AchievementID: achievementID,
		UpdatedAt:     at,
	}
	err := r.conn.QueryRow(ctx, query, userID, achievementID, at).
		Scan(&progress.Count, &progress.UnlockedAt)
	if err != nil {
		return nil, shared.WrapError("achievement", "Increment", shared.ErrUnavailable, "failed to increment progress", err)
	}
	return progress, nil
}

// MarkUnlocked records the unlock instant. A no-op when already set.
func (r *ProgressRepository) MarkUnlocked(ctx context.Context, userID, achievementID string, at time.Time) error {
	query := `
		UPDATE user_achievement_progress
		SET unlocked_at = COALESCE(unlocked_at, $3), updated_at = $3
		WHERE user_id = $1 AND achievement_id = $2
	`
	_, err := r.conn.Exec(ctx, query, userID, achievementID, at)
	if err != nil {
		return shared.WrapError("achievement", "MarkUnlocked", shared.ErrUnavailable, "failed to mark unlock", err)
	}
	return nil
}

// Get loads one progress row.
func (r *ProgressRepository) Get(ctx context.Context, userID, achievementID string) (*achievement.Progress, error) {
	query := `
		SELECT user_id, achievement_id, count, unlocked_at, updated_at
		FROM user_achievement_progress
		WHERE user_id = $1 AND achievement_id = $2
	`

	var progress achievement.Progress
	err := r.conn.QueryRow(ctx, query, userID, achievementID).Scan(
		&progress.UserID, &progress.AchievementID, &progress.Count,
		&progress.UnlockedAt, &progress.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, shared.WrapError("achievement", "Get", shared.ErrUnavailable, "failed to load progress", err)
	}
	return &progress, nil
}

// ListByUser returns all of the user's progress rows.
func (r *ProgressRepository) ListByUser(ctx context.Context, userID string) ([]*achievement.Progress, error) {
	query := `
		SELECT user_id, achievement_id, count, unlocked_at, updated_at
		FROM user_achievement_progress
		WHERE user_id = $1
		ORDER BY achievement_id
	`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, shared.WrapError("achievement", "ListByUser", shared.ErrUnavailable, "failed to list progress", err)
	}
	defer rows.Close()

	var out []*achievement.Progress
	for rows.Next() {
		var progress achievement.Progress
		if err := rows.Scan(
			&progress.UserID, &progress.AchievementID, &progress.Count,
			&progress.UnlockedAt, &progress.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan progress row: %w", err)
		}
		out = append(out, &progress)
	}
	return out, rows.Err()
}
