package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix      = "ezinfo:ratelimit:"
	redisConnectTimeout = 5 * time.Second
)

// RedisLimiter shares window counters across server instances through Redis.
type RedisLimiter struct {
	client            *redis.Client
	window            time.Duration
	requestsPerWindow int
	now               func() time.Time
}

// NewRedisLimiter connects to redisURL and verifies the connection.
func NewRedisLimiter(redisURL string, requestsPerWindow int, window time.Duration) (*RedisLimiter, error) {
	options, parseErr := redis.ParseURL(redisURL)
	if parseErr != nil {
		return nil, fmt.Errorf("parse redis url: %w", parseErr)
	}
	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if pingErr := client.Ping(ctx).Err(); pingErr != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", pingErr)
	}

	limiter, limiterErr := NewRedisLimiterWithClient(client, requestsPerWindow, window)
	if limiterErr != nil {
		_ = client.Close()
		return nil, limiterErr
	}
	return limiter, nil
}

// NewRedisLimiterWithClient builds a limiter from an existing client.
func NewRedisLimiterWithClient(client *redis.Client, requestsPerWindow int, window time.Duration) (*RedisLimiter, error) {
	if requestsPerWindow <= 0 || window < time.Second {
		return nil, fmt.Errorf("%w: %d per %s", ErrInvalidLimit, requestsPerWindow, window)
	}
	return &RedisLimiter{
		client:            client,
		window:            window,
		requestsPerWindow: requestsPerWindow,
		now:               time.Now,
	}, nil
}

// Allow increments the window counter for key. Counters expire with their window.
func (limiter *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	counterKey := fmt.Sprintf("%s%s:%d", redisKeyPrefix, key, windowBucket(limiter.now(), limiter.window))

	var increment *redis.IntCmd
	_, pipelineErr := limiter.client.TxPipelined(ctx, func(pipeliner redis.Pipeliner) error {
		increment = pipeliner.Incr(ctx, counterKey)
		pipeliner.Expire(ctx, counterKey, limiter.window)
		return nil
	})
	if pipelineErr != nil {
		return false, fmt.Errorf("increment rate counter: %w", pipelineErr)
	}
	return increment.Val() <= int64(limiter.requestsPerWindow), nil
}

func (limiter *RedisLimiter) Close() error {
	return limiter.client.Close()
}
