package memory

import (
	"context"
	"sync"
	"time"
)

// DedupStore is an in-memory command.DedupStore. Expired keys are reclaimed
// lazily on access, so the map stays bounded by the live-key set under
// steady traffic.
type DedupStore struct {
	mu   sync.Mutex
	seen map[string]time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewDedupStore creates an empty in-memory dedup store.
func NewDedupStore() *DedupStore {
	return &DedupStore{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// MarkSeen records the key with the TTL; returns false on duplicates.
func (s *DedupStore) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiry, ok := s.seen[key]; ok && now.Before(expiry) {
		return false, nil
	}
	s.seen[key] = now.Add(ttl)

	if len(s.seen) > 10_000 {
		s.evict(now)
	}
	return true, nil
}

// Unmark releases a key. Absent keys are a no-op.
func (s *DedupStore) Unmark(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.seen, key)
	return nil
}

func (s *DedupStore) evict(now time.Time) {
	for key, expiry := range s.seen {
		if !now.Before(expiry) {
			delete(s.seen, key)
		}
	}
}
