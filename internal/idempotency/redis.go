package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "cooking-mcp:idem"

// Redis is the shared-instance backend. Each record is a JSON string at
// {prefix}:rec:{operation}:{key}; a sorted set scored by an insertion
// counter drives the same oldest-first eviction as the memory backend.
type Redis struct {
	rdb *redis.Client
}

var _ Cache = (*Redis)(nil)

func NewRedis(opts *redis.Options) *Redis {
	return &Redis{rdb: redis.NewClient(opts)}
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

// Ping verifies connectivity. Used by readiness checks.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Check(ctx context.Context, operation, key, fingerprint string) (json.RawMessage, bool, error) {
	data, err := r.rdb.Get(ctx, r.recKey(operation, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: redis get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("idempotency: decode record: %w", err)
	}
	if rec.Fingerprint != fingerprint {
		return nil, false, conflictErr(operation, key)
	}
	return rec.Response, true, nil
}

func (r *Redis) Store(ctx context.Context, operation, key, fingerprint string, response json.RawMessage) error {
	rec := Record{
		Operation:   operation,
		Key:         key,
		Fingerprint: fingerprint,
		Response:    response,
		CreatedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}

	rk := recordKey(operation, key)
	if err := r.rdb.Set(ctx, r.recKey(operation, key), data, 0).Err(); err != nil {
		return fmt.Errorf("idempotency: redis set: %w", err)
	}
	// NX keeps the first insertion position on re-store, matching the
	// memory backend.
	seq, err := r.rdb.Incr(ctx, keyPrefix+":seq").Result()
	if err != nil {
		return fmt.Errorf("idempotency: redis incr: %w", err)
	}
	if err := r.rdb.ZAddNX(ctx, keyPrefix+":index", redis.Z{Score: float64(seq), Member: rk}).Err(); err != nil {
		return fmt.Errorf("idempotency: redis zadd: %w", err)
	}
	return r.evict(ctx)
}

func (r *Redis) evict(ctx context.Context) error {
	n, err := r.rdb.ZCard(ctx, keyPrefix+":index").Result()
	if err != nil {
		return fmt.Errorf("idempotency: redis zcard: %w", err)
	}
	if n <= maxRecords {
		return nil
	}

	oldest, err := r.rdb.ZRange(ctx, keyPrefix+":index", 0, evictBatch-1).Result()
	if err != nil {
		return fmt.Errorf("idempotency: redis zrange: %w", err)
	}
	if len(oldest) == 0 {
		return nil
	}

	recKeys := make([]string, len(oldest))
	members := make([]any, len(oldest))
	for i, member := range oldest {
		recKeys[i] = keyPrefix + ":rec:" + member
		members[i] = member
	}
	if err := r.rdb.Del(ctx, recKeys...).Err(); err != nil {
		return fmt.Errorf("idempotency: redis del: %w", err)
	}
	if err := r.rdb.ZRem(ctx, keyPrefix+":index", members...).Err(); err != nil {
		return fmt.Errorf("idempotency: redis zrem: %w", err)
	}
	return nil
}

func (r *Redis) recKey(operation, key string) string {
	return keyPrefix + ":rec:" + recordKey(operation, key)
}
