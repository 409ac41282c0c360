// Package lock serialises work on shared keys, either within one process or
// across processes through Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrNotObtained is returned when a key stays locked past the caller's
// deadline or the retry budget.
var ErrNotObtained = errors.New("lock not obtained")

// Locker acquires every key or none. The returned func releases them.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

// normalise sorts and dedupes keys so that two callers locking overlapping
// sets always acquire in the same order.
func normalise(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Local locks keys inside the current process.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) acquire(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Lock blocks until every key is held or ctx is done.
func (l *Local) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalise(keys)
	held := make([]string, 0, len(keys))
	slots := make([]*slot, 0, len(keys))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-slots[i].ch
			l.drop(held[i], slots[i])
		}
	}

	for _, k := range keys {
		s := l.acquire(k)
		select {
		case s.ch <- struct{}{}:
			held = append(held, k)
			slots = append(slots, s)
		case <-ctx.Done():
			l.drop(k, s)
			release()
			return nil, fmt.Errorf("locking %s: %w", k, errors.Join(ErrNotObtained, ctx.Err()))
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// Redis locks keys across processes with redislock.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
	logger *logrus.Logger
}

// NewRedis builds a Redis-backed locker. Locks expire after ttl so a crashed
// holder cannot block a key forever.
func NewRedis(rdb redis.Cmdable, ttl time.Duration, logger *logrus.Logger) *Redis {
	return &Redis{
		client: redislock.New(rdb),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 100),
		logger: logger,
	}
}

// Lock obtains every key in order, giving back the ones already held when a
// later key cannot be obtained.
func (r *Redis) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalise(keys)
	held := make([]*redislock.Lock, 0, len(keys))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			// A fresh context: the request context may already be cancelled.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := held[i].Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				r.logger.WithFields(logrus.Fields{
					"module":   "lock",
					"funcName": "Lock",
					"key":      held[i].Key(),
				}).Warn("failed to release redis lock: " + err.Error())
			}
			cancel()
		}
	}

	for _, k := range keys {
		l, err := r.client.Obtain(ctx, "lock:"+k, r.ttl, &redislock.Options{RetryStrategy: r.retry})
		if errors.Is(err, redislock.ErrNotObtained) {
			release()
			return nil, fmt.Errorf("locking %s: %w", k, ErrNotObtained)
		}
		if err != nil {
			release()
			return nil, fmt.Errorf("locking %s: %w", k, err)
		}
		held = append(held, l)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}
