package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "innexbot:ratelimit:"

// RedisWindow is a sliding window limiter shared by every collector replica.
// Each key is a sorted set of request ids scored by arrival time in
// milliseconds.
type RedisWindow struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisWindow(client *redis.Client) *RedisWindow {
	return &RedisWindow{client: client, prefix: defaultRedisPrefix, now: time.Now}
}

func (s *RedisWindow) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := s.now()
	nowMs := now.UnixMilli()
	k := s.prefix + key
	cutoff := strconv.FormatInt(nowMs-window.Milliseconds(), 10)

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", "("+cutoff)
	card := pipe.ZCard(ctx, k)
	oldest := pipe.ZRangeWithScores(ctx, k, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis rate limit check %s: %w", key, err)
	}

	count := int(card.Val())
	resetAt := now.Add(window)
	if z := oldest.Val(); len(z) > 0 {
		resetAt = time.UnixMilli(int64(z[0].Score)).Add(window)
	}

	if count >= limit {
		return &Result{
			Allowed:    false,
			Limit:      limit,
			ResetAt:    resetAt,
			RetryAfter: retryAfter(now, resetAt),
		}, nil
	}

	pipe = s.client.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(nowMs), Member: uuid.NewString()})
	pipe.PExpire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis rate limit record %s: %w", key, err)
	}

	if count == 0 {
		resetAt = now.Add(window)
	}
	return &Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - count - 1,
		ResetAt:   resetAt,
	}, nil
}

func (s *RedisWindow) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis rate limit reset %s: %w", key, err)
	}
	return nil
}
