package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// PersonLocker serializes attendance work per key (a person, or an event and person pair).
// The returned unlock func is safe to call more than once.
type PersonLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedMutex is an in-process PersonLocker. Entries are dropped once nobody holds or waits
// on them, so the map only grows with concurrent keys.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx is done
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			m.release(key, l)
		})
	}, nil
}

func (m *KeyedMutex) release(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

// held reports how many keys currently have holders or waiters
func (m *KeyedMutex) held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

const redisLockPrefix = "pob:lock:"

// compare-and-delete so an expired lock re-acquired by someone else is left alone
var redisUnlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisPersonLocker extends a KeyedMutex across server instances with a SET NX PX lease.
// If redis cannot be reached it logs and continues with the in-process lock only; the
// attendance transaction still takes its own per-person database lock.
type RedisPersonLocker struct {
	local  *KeyedMutex
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger *logrus.Logger
}

// NewRedisPersonLocker creates a RedisPersonLocker
func NewRedisPersonLocker(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisPersonLocker {
	return &RedisPersonLocker{
		local:  NewKeyedMutex(),
		client: client,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		logger: logger,
	}
}

// Lock acquires the in-process lock, then the redis lease
func (l *RedisPersonLocker) Lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	redisKey := redisLockPrefix + key
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				unlockLocal()
				return nil, ctx.Err()
			}
			l.logger.WithError(err).WithField("key", key).Warn("Redis lock unavailable, using local lock only")
			return unlockLocal, nil
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			unlockLocal()
			return nil, fmt.Errorf("waiting for lock %s: %w", key, ctx.Err())
		case <-time.After(l.retry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := redisUnlockScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.logger.WithError(err).WithField("key", key).Warn("Failed to release redis lock")
			}
			unlockLocal()
		})
	}, nil
}
