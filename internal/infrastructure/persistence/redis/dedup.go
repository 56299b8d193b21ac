package redis

import (
	"context"
	"fmt"
	"time"
)

// DedupStore is the Redis-backed duplicate filter for the ingestion gateway.
// SET NX with a TTL is the whole trick: the first writer of a key wins, and
// the key evaporates once the dedup window passes.
type DedupStore struct {
	client *Client
}

// NewDedupStore creates a DedupStore on the given client.
func NewDedupStore(client *Client) *DedupStore {
	return &DedupStore{client: client}
}

// MarkSeen records the key and reports whether it was fresh. A false return
// means some earlier ingest already claimed the key within the TTL.
func (s *DedupStore) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrCacheKeyEmpty
	}
	if ttl <= 0 {
		return false, ErrCacheInvalidTTL
	}

	fresh, err := s.client.rdb.SetNX(ctx, DedupKey(key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup mark seen: %w", err)
	}
	return fresh, nil
}

// Unmark releases a claimed key so a redelivery of the same event is not
// dropped as a duplicate. Absent keys are a no-op.
func (s *DedupStore) Unmark(ctx context.Context, key string) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	if err := s.client.rdb.Del(ctx, DedupKey(key)).Err(); err != nil {
		return fmt.Errorf("dedup unmark: %w", err)
	}
	return nil
}
