package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/strikelab/strikebot/internal/domain"
)

// unlockLua deletes a lock key only if its value matches the caller's unique
// token, so one holder cannot release another holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// InstanceLock is a Redis-backed single-instance guard. Only one live process
// may hold a given key; a second instance starting against the same Redis
// gets domain.ErrLockHeld instead of duplicating order flow.
type InstanceLock struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewInstanceLock creates an InstanceLock backed by the given Client.
func NewInstanceLock(c *Client) *InstanceLock {
	return &InstanceLock{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Hold acquires the lock with the given TTL and keeps refreshing it every
// ttl/3 until ctx is cancelled, at which point the lock is released. The
// returned release function is safe to call multiple times; it also stops
// the refresh loop.
//
// Returns domain.ErrLockHeld if another party already holds the lock.
func (il *InstanceLock) Hold(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := lockKey(key)

	ok, err := il.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	go il.refresh(refreshCtx, lk, ttl)

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		stopRefresh()

		// Background context so release succeeds even when the caller's
		// context is already cancelled.
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = il.unlockSc.Run(relCtx, il.rdb, []string{lk}, token).Err()
	}

	return release, nil
}

func (il *InstanceLock) refresh(ctx context.Context, lk string, ttl time.Duration) {
	interval := ttl / 3
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = il.rdb.PExpire(ctx, lk, ttl).Err()
		}
	}
}
