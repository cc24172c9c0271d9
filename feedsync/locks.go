package feedsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"bitbucket.org/brokerlink/customs_backend/config"
	"github.com/bsm/redislock"
)

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// lockManager serializes writers. Two layers: a per-source semaphore caps how
// many keys of one feed source are processed at once, and a per-key lock makes
// sure two deliveries for the same entry never interleave. Both layers run on
// Redis when it is connected and fall back to in-process primitives when not,
// so a single-instance deployment works without Redis.
type lockManager struct {
	mu        sync.Mutex
	localKeys map[string]chan struct{}
	localSems map[string]chan struct{}
}

func newLockManager() *lockManager {
	return &lockManager{
		localKeys: map[string]chan struct{}{},
		localSems: map[string]chan struct{}{},
	}
}

func sourceSemaphoreKey(sourceSystem string) string {
	return "feedsync:semaphore:" + sourceSystem
}

func entryLockKey(sourceSystem, naturalKey string) string {
	return "feedsync:entry:" + sourceSystem + ":" + naturalKey
}

// acquireSourceSlot takes a processing slot for the source, polling with a
// bounded retry count. Exhausting the retries returns ErrLockNotAcquired so a
// saturated source surfaces as a retryable failure instead of a hung worker.
// The returned release must be called exactly once.
func (lm *lockManager) acquireSourceSlot(ctx context.Context, sourceSystem string) (func(), error) {
	limit := envInt("FEED_SOURCE_CONCURRENCY", 4)
	backoff := time.Duration(envInt("FEED_SOURCE_BACKOFF_MS", 250)) * time.Millisecond
	retries := envInt("FEED_SOURCE_RETRIES", 40)

	if config.GetRedisDB() == nil {
		return lm.acquireLocalSlot(ctx, sourceSystem, limit, backoff, retries)
	}

	key := sourceSemaphoreKey(sourceSystem)
	ticker := time.NewTicker(backoff)
	defer ticker.Stop()
	for attempt := 0; ; attempt++ {
		count, err := config.GetRedisCounter(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("source semaphore: %w", err)
		}
		if count <= int64(limit) {
			// The TTL belongs to the holder: a slot leaked by a crashed
			// worker expires instead of starving the source. Waiters must
			// not refresh it.
			_ = config.ExpireRedisKey(ctx, key, 10*time.Minute)
			return func() { _ = config.DecrRedisCounter(context.Background(), key) }, nil
		}
		_ = config.DecrRedisCounter(ctx, key)
		if attempt >= retries {
			return nil, ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (lm *lockManager) acquireLocalSlot(ctx context.Context, sourceSystem string, limit int, backoff time.Duration, retries int) (func(), error) {
	lm.mu.Lock()
	sem, ok := lm.localSems[sourceSystem]
	if !ok {
		sem = make(chan struct{}, limit)
		lm.localSems[sourceSystem] = sem
	}
	lm.mu.Unlock()

	timer := time.NewTimer(backoff * time.Duration(retries+1))
	defer timer.Stop()
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-timer.C:
		return nil, ErrLockNotAcquired
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// acquireEntryLock takes the per-key mutex with bounded retries. Exhausting the
// retries returns ErrLockNotAcquired so the delivery can be rescheduled instead
// of waiting forever behind a hot key.
func (lm *lockManager) acquireEntryLock(ctx context.Context, sourceSystem, naturalKey string) (func(), error) {
	ttl := time.Duration(envInt("FEED_LOCK_TTL_SECONDS", 60)) * time.Second
	backoff := time.Duration(envInt("FEED_LOCK_BACKOFF_MS", 250)) * time.Millisecond
	retries := envInt("FEED_LOCK_RETRIES", 40)
	key := entryLockKey(sourceSystem, naturalKey)

	locker := config.GetRedisLock()
	if locker == nil {
		return lm.acquireLocalKey(ctx, key, backoff, retries)
	}

	lock, err := locker.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(backoff), retries),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrLockNotAcquired
		}
		return nil, fmt.Errorf("entry lock: %w", err)
	}
	return func() { _ = lock.Release(context.Background()) }, nil
}

func (lm *lockManager) acquireLocalKey(ctx context.Context, key string, backoff time.Duration, retries int) (func(), error) {
	lm.mu.Lock()
	ch, ok := lm.localKeys[key]
	if !ok {
		ch = make(chan struct{}, 1)
		lm.localKeys[key] = ch
	}
	lm.mu.Unlock()

	timer := time.NewTimer(backoff * time.Duration(retries+1))
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, ErrLockNotAcquired
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
