// Package lock serializes work on a key, either within the process or across
// processes through Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL        = 30 * time.Second
	DefaultRetryDelay = 50 * time.Millisecond
)

// ErrNotHeld is returned when releasing a lock whose token no longer matches.
var ErrNotHeld = errors.New("lock not held")

// Locker acquires a lock on key. The returned release func is safe to call once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// KeyedMutex is an in-process Locker holding one mutex per active key.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		k.drop(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.drop(key, s)
		})
	}, nil
}

func (k *KeyedMutex) drop(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// Len reports the number of keys currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisLocker holds locks as SET NX keys with a per-acquisition token, so a
// holder whose TTL lapsed cannot release someone else's lock.
type RedisLocker struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewRedisLocker creates a locker storing keys under prefix.
func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{
		client:     client,
		prefix:     prefix,
		ttl:        ttl,
		retryDelay: DefaultRetryDelay,
		logger:     logger.With("component", "lock"),
	}
}

// TryLock makes one acquisition attempt and returns the token on success.
func (r *RedisLocker) TryLock(ctx context.Context, key string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, r.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return token, ok, nil
}

// Unlock deletes key only if it still carries token.
func (r *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, r.client, []string{r.prefix + key}, token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Lock retries TryLock until it succeeds or ctx is done.
func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	for {
		token, ok, err := r.TryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					if err := r.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
						r.logger.Warn("release lock", "key", key, "error", err)
					}
				})
			}, nil
		}

		t := time.NewTimer(r.retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}
