// Package ratelimit counts requests per client in fixed windows.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultWindow            = time.Minute
	DefaultRequestsPerWindow = 30
)

var ErrInvalidLimit = errors.New("invalid_rate_limit")

// Limiter decides whether one more request from key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter keeps per-window counters in process memory.
type MemoryLimiter struct {
	window            time.Duration
	requestsPerWindow int
	now               func() time.Time

	mutex         sync.Mutex
	currentBucket int64
	countersByKey map[string]int
}

// NewMemoryLimiter allows requestsPerWindow requests per key in each window.
func NewMemoryLimiter(requestsPerWindow int, window time.Duration) (*MemoryLimiter, error) {
	return newMemoryLimiter(requestsPerWindow, window, time.Now)
}

func newMemoryLimiter(requestsPerWindow int, window time.Duration, now func() time.Time) (*MemoryLimiter, error) {
	if requestsPerWindow <= 0 || window < time.Second {
		return nil, fmt.Errorf("%w: %d per %s", ErrInvalidLimit, requestsPerWindow, window)
	}
	return &MemoryLimiter{
		window:            window,
		requestsPerWindow: requestsPerWindow,
		now:               now,
		countersByKey:     make(map[string]int),
	}, nil
}

func (limiter *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	bucket := windowBucket(limiter.now(), limiter.window)

	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	if bucket != limiter.currentBucket {
		limiter.currentBucket = bucket
		limiter.countersByKey = make(map[string]int)
	}
	limiter.countersByKey[key]++
	return limiter.countersByKey[key] <= limiter.requestsPerWindow, nil
}

func windowBucket(moment time.Time, window time.Duration) int64 {
	return moment.Unix() / int64(window.Seconds())
}
