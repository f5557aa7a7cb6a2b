package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type steppingClock struct {
	current time.Time
}

func (clock *steppingClock) now() time.Time {
	return clock.current
}

func TestMemoryLimiterCountsPerKeyAndWindow(testingT *testing.T) {
	clock := &steppingClock{current: time.Date(2026, 5, 1, 12, 0, 5, 0, time.UTC)}
	limiter, limiterErr := newMemoryLimiter(2, time.Minute, clock.now)
	require.NoError(testingT, limiterErr)

	ctx := context.Background()
	for attempt, expected := range []bool{true, true, false} {
		allowed, allowErr := limiter.Allow(ctx, "203.0.113.7")
		require.NoError(testingT, allowErr)
		require.Equal(testingT, expected, allowed, "attempt %d", attempt)
	}

	otherAllowed, otherErr := limiter.Allow(ctx, "198.51.100.2")
	require.NoError(testingT, otherErr)
	require.True(testingT, otherAllowed)

	clock.current = clock.current.Add(time.Minute)
	nextWindowAllowed, nextErr := limiter.Allow(ctx, "203.0.113.7")
	require.NoError(testingT, nextErr)
	require.True(testingT, nextWindowAllowed)
	require.Len(testingT, limiter.countersByKey, 1)
}

func TestLimiterConstructorsRejectInvalidLimits(testingT *testing.T) {
	testCases := []struct {
		name              string
		requestsPerWindow int
		window            time.Duration
	}{
		{name: "zero requests", requestsPerWindow: 0, window: time.Minute},
		{name: "sub-second window", requestsPerWindow: 5, window: time.Millisecond},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(testCase.name, func(testingT *testing.T) {
			_, memoryErr := NewMemoryLimiter(testCase.requestsPerWindow, testCase.window)
			require.ErrorIs(testingT, memoryErr, ErrInvalidLimit)

			_, redisErr := NewRedisLimiterWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), testCase.requestsPerWindow, testCase.window)
			require.ErrorIs(testingT, redisErr, ErrInvalidLimit)
		})
	}
}

func TestRedisLimiterSharesCountersAndExpires(testingT *testing.T) {
	server := miniredis.RunT(testingT)
	clock := &steppingClock{current: time.Date(2026, 5, 1, 12, 0, 5, 0, time.UTC)}

	firstInstance, firstErr := NewRedisLimiter("redis://"+server.Addr(), 2, time.Minute)
	require.NoError(testingT, firstErr)
	testingT.Cleanup(func() { _ = firstInstance.Close() })
	firstInstance.now = clock.now

	secondInstance, secondErr := NewRedisLimiter("redis://"+server.Addr(), 2, time.Minute)
	require.NoError(testingT, secondErr)
	testingT.Cleanup(func() { _ = secondInstance.Close() })
	secondInstance.now = clock.now

	ctx := context.Background()
	allowed, allowErr := firstInstance.Allow(ctx, "203.0.113.7")
	require.NoError(testingT, allowErr)
	require.True(testingT, allowed)

	allowed, allowErr = secondInstance.Allow(ctx, "203.0.113.7")
	require.NoError(testingT, allowErr)
	require.True(testingT, allowed)

	allowed, allowErr = firstInstance.Allow(ctx, "203.0.113.7")
	require.NoError(testingT, allowErr)
	require.False(testingT, allowed)

	counterKey := fmt.Sprintf("%s203.0.113.7:%d", redisKeyPrefix, windowBucket(clock.current, time.Minute))
	require.True(testingT, server.Exists(counterKey))
	require.Equal(testingT, time.Minute, server.TTL(counterKey))

	server.FastForward(time.Minute)
	require.False(testingT, server.Exists(counterKey))
}

func TestRedisLimiterReportsUnreachableServer(testingT *testing.T) {
	server := miniredis.RunT(testingT)
	limiter, limiterErr := NewRedisLimiter("redis://"+server.Addr(), 1, time.Minute)
	require.NoError(testingT, limiterErr)
	testingT.Cleanup(func() { _ = limiter.Close() })

	server.Close()
	_, allowErr := limiter.Allow(context.Background(), "203.0.113.7")
	require.Error(testingT, allowErr)

	_, connectErr := NewRedisLimiter("redis://"+server.Addr(), 1, time.Minute)
	require.Error(testingT, connectErr)
}
