package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock is still held by someone else
// after the caller's wait window expires.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker provides per-key mutual exclusion for lifecycle operations.
// Acquire blocks until the lock is held, the wait window expires, or the
// context is cancelled. The returned release function is safe to call once.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (func(), error)
}

const keyPrefix = "lock:doc:"

// RedisLocker serialises operations across API instances using a Redis lease.
type RedisLocker struct {
	client       *redis.Client
	pollInterval time.Duration
}

// NewRedisLocker constructs a Redis-backed locker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, pollInterval: 50 * time.Millisecond}
}

// releaseScript deletes the lease only when still owned by this holder, so an
// expired lease taken over by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (func(), error) {
	token := randomToken()
	fullKey := keyPrefix + key

	deadline := time.Now().Add(wait)
	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			var once sync.Once
			release := func() {
				once.Do(func() {
					releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = releaseScript.Run(releaseCtx, l.client, []string{fullKey}, token).Err()
				})
			}
			return release, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

func randomToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// MemoryLocker is an in-process Locker used in tests and single-instance setups.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*memoryEntry
}

type memoryEntry struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker constructs an in-memory locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*memoryEntry)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &memoryEntry{ch: make(chan struct{}, 1)}
		entry.ch <- struct{}{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-entry.ch:
		var once sync.Once
		release := func() {
			once.Do(func() {
				entry.ch <- struct{}{}
				l.mu.Lock()
				entry.refs--
				if entry.refs == 0 {
					delete(l.locks, key)
				}
				l.mu.Unlock()
			})
		}
		return release, nil
	case <-timer.C:
		l.drop(key, entry)
		return nil, ErrNotAcquired
	case <-ctx.Done():
		l.drop(key, entry)
		return nil, ctx.Err()
	}
}

func (l *MemoryLocker) drop(key string, entry *memoryEntry) {
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
