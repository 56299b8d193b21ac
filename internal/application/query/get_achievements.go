package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pagefeed/engagement-engine/internal/domain/achievement"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENTS QUERY
// Returns the full catalog joined with a user's progress: locked entries
// show their counter, unlocked ones their unlock instant.
// ══════════════════════════════════════════════════════════════════════════════

// GetAchievementsQuery contains the request parameters.
type GetAchievementsQuery struct {
	// UserID - internal user ID.
	UserID string

	// OnlyUnlocked filters the response to earned achievements.
	OnlyUnlocked bool
}

// Validate checks the query parameters.
func (q *GetAchievementsQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	return nil
}

// AchievementDTO is one catalog entry with the user's progress.
type AchievementDTO struct {
	AchievementID string     `json:"achievement_id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Points        int        `json:"points"`
	Rarity        string     `json:"rarity,omitempty"`
	Unit          string     `json:"unit,omitempty"`
	TargetCount   int        `json:"target_count"`
	Count         int        `json:"count"`
	UnlockedAt    *time.Time `json:"unlocked_at,omitempty"`
}

// GetAchievementsResult contains the achievements response.
type GetAchievementsResult struct {
	UserID       string           `json:"user_id"`
	Achievements []AchievementDTO `json:"achievements"`
	TotalPoints  int              `json:"total_points"`
}

// GetAchievementsHandler handles the GetAchievementsQuery.
type GetAchievementsHandler struct {
	definitionRepo achievement.DefinitionRepository
	progressRepo   achievement.ProgressRepository
}

// NewGetAchievementsHandler creates a new GetAchievementsHandler.
func NewGetAchievementsHandler(
	definitionRepo achievement.DefinitionRepository,
	progressRepo achievement.ProgressRepository,
) *GetAchievementsHandler {
	return &GetAchievementsHandler{
		definitionRepo: definitionRepo,
		progressRepo:   progressRepo,
	}
}

// Handle executes the achievements query.
func (h *GetAchievementsHandler) Handle(ctx context.Context, q GetAchievementsQuery) (*GetAchievementsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_achievements: %w", err)
	}

	defs, err := h.definitionRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_achievements: failed to list catalog: %w", err)
	}

	progress, err := h.progressRepo.ListByUser(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_achievements: failed to list progress: %w", err)
	}
	byID := make(map[string]*achievement.Progress, len(progress))
	for _, p := range progress {
		byID[p.AchievementID] = p
	}

	result := &GetAchievementsResult{
		UserID:       q.UserID,
		Achievements: make([]AchievementDTO, 0, len(defs)),
	}
	for _, def := range defs {
		dto := AchievementDTO{
			AchievementID: def.ID,
			Name:          def.Name,
			Description:   def.Description,
			Points:        def.Points,
			Rarity:        def.Rarity,
			Unit:          def.Unit,
			TargetCount:   def.Criteria.TargetCount,
		}
		if p, ok := byID[def.ID]; ok {
			dto.Count = p.Count
			if p.UnlockedAt != nil {
				unlockedAt := *p.UnlockedAt
				dto.UnlockedAt = &unlockedAt
				result.TotalPoints += def.Points
			}
		}
		if q.OnlyUnlocked && dto.UnlockedAt == nil {
			continue
		}
		result.Achievements = append(result.Achievements, dto)
	}
	return result, nil
}
