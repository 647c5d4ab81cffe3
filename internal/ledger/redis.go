package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	globalSet = "fraud:ledger:entries"
	keyPrefix = "fraud:ledger:key:"
)

// RedisStore persists the ledger in Redis sorted sets scored by timestamp,
// which gives the required append, range-scan-by-time and retention
// semantics without a relational schema.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisStore creates a Redis-backed ledger store.
func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, retention: retention}
}

// Append serializes the entry and adds it to the global and per-key sets.
func (s *RedisStore) Append(ctx context.Context, entry *Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	score := float64(entry.Timestamp.UnixNano())
	member := redis.Z{Score: score, Member: payload}
	keySet := keyPrefix + entry.Key()

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, globalSet, member)
	pipe.ZAdd(ctx, keySet, member)
	pipe.Expire(ctx, keySet, s.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// RangeByTime scans the global set for from <= Timestamp < to.
func (s *RedisStore) RangeByTime(ctx context.Context, from, to time.Time) ([]*Entry, error) {
	raw, err := s.client.ZRangeByScore(ctx, globalSet, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", from.UnixNano()),
		Max: fmt.Sprintf("(%d", to.UnixNano()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to range ledger by time: %w", err)
	}
	return decodeAll(raw)
}

// RangeByKey returns the per-key entries in timestamp order.
func (s *RedisStore) RangeByKey(ctx context.Context, key string) ([]*Entry, error) {
	raw, err := s.client.ZRange(ctx, keyPrefix+key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to range ledger by key: %w", err)
	}
	return decodeAll(raw)
}

// Prune removes entries older than the retention horizon from the global
// set; per-key sets expire via TTL.
func (s *RedisStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	removed, err := s.client.ZRemRangeByScore(ctx, globalSet,
		"-inf", fmt.Sprintf("(%d", olderThan.UnixNano())).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune ledger: %w", err)
	}
	return int(removed), nil
}

func decodeAll(raw []string) ([]*Entry, error) {
	out := make([]*Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("failed to decode ledger entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, nil
}
