package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pagefeed/engagement-engine/internal/domain/achievement"
	"github.com/pagefeed/engagement-engine/internal/domain/shared"
)

// DefinitionRepository is an in-memory achievement catalog.
type DefinitionRepository struct {
	mu   sync.RWMutex
	defs map[string]achievement.Definition
}

// NewDefinitionRepository creates an empty in-memory catalog.
func NewDefinitionRepository() *DefinitionRepository {
	return &DefinitionRepository{defs: make(map[string]achievement.Definition)}
}

// GetByID loads one definition.
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*achievement.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[id]
	if !ok {
		return nil, shared.ErrDefinitionNotFound
	}
	return &def, nil
}

// ListByEventType returns definitions counting the given event type.
func (r *DefinitionRepository) ListByEventType(ctx context.Context, eventType string) ([]*achievement.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*achievement.Definition
	for _, def := range r.defs {
		if def.Criteria.EventType == eventType {
			d := def
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// List returns the whole catalog.
func (r *DefinitionRepository) List(ctx context.Context) ([]*achievement.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*achievement.Definition, 0, len(r.defs))
	for _, def := range r.defs {
		d := def
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Seed inserts definitions that do not exist yet.
func (r *DefinitionRepository) Seed(ctx context.Context, defs []*achievement.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return err
		}
		if _, exists := r.defs[def.ID]; exists {
			continue
		}
		r.defs[def.ID] = *def
	}
	return nil
}

type progressKey struct {
	userID        string
	achievementID string
}

// ProgressRepository is an in-memory achievement.ProgressRepository.
// Increment runs under the repository lock, which gives it the same
// linearization guarantee as the single-statement postgres upsert.
type ProgressRepository struct {
	mu       sync.Mutex
	progress map[progressKey]achievement.Progress
}

// NewProgressRepository creates an empty in-memory progress store.
func NewProgressRepository() *ProgressRepository {
	return &ProgressRepository{progress: make(map[progressKey]achievement.Progress)}
}

// Increment atomically bumps the counter and returns the result.
func (r *ProgressRepository) Increment(ctx context.Context, userID, achievementID string, at time.Time) (*achievement.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := progressKey{userID, achievementID}
	p, ok := r.progress[key]
	if !ok {
		p = achievement.Progress{UserID: userID, AchievementID: achievementID}
	}
	p.Count++
	p.UpdatedAt = at
	r.progress[key] = p

	copied := p
	if p.UnlockedAt != nil {
		unlockedAt := *p.UnlockedAt
		copied.UnlockedAt = &unlockedAt
	}
	return &copied, nil
}

// MarkUnlocked records the unlock instant once.
func (r *ProgressRepository) MarkUnlocked(ctx context.Context, userID, achievementID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := progressKey{userID, achievementID}
	p, ok := r.progress[key]
	if !ok {
		return shared.ErrNotFound
	}
	if p.UnlockedAt == nil {
		unlockedAt := at
		p.UnlockedAt = &unlockedAt
		p.UpdatedAt = at
		r.progress[key] = p
	}
	return nil
}

// Get loads one progress row.
func (r *ProgressRepository) Get(ctx context.Context, userID, achievementID string) (*achievement.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.progress[progressKey{userID, achievementID}]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := p
	if p.UnlockedAt != nil {
		unlockedAt := *p.UnlockedAt
		copied.UnlockedAt = &unlockedAt
	}
	return &copied, nil
}

// ListByUser returns all progress rows for a user.
func (r *ProgressRepository) ListByUser(ctx context.Context, userID string) ([]*achievement.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*achievement.Progress
	for key, p := range r.progress {
		if key.userID != userID {
			continue
		}
		copied := p
		if p.UnlockedAt != nil {
			unlockedAt := *p.UnlockedAt
			copied.UnlockedAt = &unlockedAt
		}
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AchievementID < out[j].AchievementID })
	return out, nil
}
