package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pagefeed/engagement-engine/internal/domain/leaderboard"
)

// TTLLeaderboardCache is how long a cached ranking page stays fresh.
const TTLLeaderboardCache = 5 * time.Minute

// LeaderboardCache is a read-through cache in front of a leaderboard.Reader.
// Each metric's ranking lives in a sorted set scored by rank, so the stored
// order is exactly the order the backing reader produced, tie-breaks
// included.
type LeaderboardCache struct {
	client *Client
	inner  leaderboard.Reader
	ttl    time.Duration
}

// NewLeaderboardCache creates a cache over the given reader.
func NewLeaderboardCache(client *Client, inner leaderboard.Reader) *LeaderboardCache {
	return &LeaderboardCache{
		client: client,
		inner:  inner,
		ttl:    TTLLeaderboardCache,
	}
}

// Top serves from the cached sorted set when it holds enough entries,
// otherwise reads through and repopulates.
func (c *LeaderboardCache) Top(ctx context.Context, metric leaderboard.Metric, limit int) ([]leaderboard.Entry, error) {
	key := LeaderboardCacheKey(string(metric))

	cached, err := c.client.rdb.ZRangeWithScores(ctx, key, 0, int64(limit)-1).Result()
	if err == nil && len(cached) >= limit {
		return decodeEntries(cached), nil
	}

	entries, err := c.inner.Top(ctx, metric, limit)
	if err != nil {
		return nil, err
	}

	// A failed repopulation only costs the next caller a cache miss.
	_ = c.store(ctx, key, entries)

	return entries, nil
}

// Invalidate drops the cached ranking for a metric.
func (c *LeaderboardCache) Invalidate(ctx context.Context, metric leaderboard.Metric) error {
	return c.client.rdb.Del(ctx, LeaderboardCacheKey(string(metric))).Err()
}

func (c *LeaderboardCache) store(ctx context.Context, key string, entries []leaderboard.Entry) error {
	if len(entries) == 0 {
		return c.client.rdb.Del(ctx, key).Err()
	}

	members := make([]redis.Z, len(entries))
	for i, e := range entries {
		members[i] = redis.Z{
			Score:  float64(e.Rank),
			Member: e.UserID + ":" + strconv.Itoa(e.Value),
		}
	}

	pipe := c.client.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.ZAdd(ctx, key, members...)
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("store leaderboard cache: %w", err)
	}
	return nil
}

func decodeEntries(members []redis.Z) []leaderboard.Entry {
	out := make([]leaderboard.Entry, 0, len(members))
	for _, m := range members {
		member, ok := m.Member.(string)
		if !ok {
			continue
		}
		idx := strings.LastIndexByte(member, ':')
		if idx < 0 {
			continue
		}
		value, err := strconv.Atoi(member[idx+1:])
		if err != nil {
			continue
		}
		out = append(out, leaderboard.Entry{
			Rank:   int(m.Score),
			UserID: member[:idx],
			Value:  value,
		})
	}
	return out
}
