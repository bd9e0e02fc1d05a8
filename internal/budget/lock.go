package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockTimeout is returned when a scope lock cannot be taken in time.
	ErrLockTimeout = errors.New("budget: scope lock timeout")
	// ErrLockLost is returned on release when the lock expired while held.
	ErrLockLost = errors.New("budget: scope lock lost")
)

// Locker serialises submissions against the same budget scope.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// RedisLocker holds scope locks as expiring redis keys through redsync.
type RedisLocker struct {
	sync  *redsync.Redsync
	ttl   time.Duration
	tries int
	poll  time.Duration
}

// NewRedisLocker constructs a locker. Locks expire after ttl and acquisition
// gives up after wait.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = ttl
	}
	l := &RedisLocker{ttl: ttl, poll: 25 * time.Millisecond}
	l.tries = int(wait/l.poll) + 1
	if client != nil {
		l.sync = redsync.New(goredis.NewPool(client))
	}
	return l
}

// Acquire blocks until key is held or the wait elapses.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	if l == nil || l.sync == nil {
		return nil, errors.New("budget locker not initialised")
	}
	mutex := l.sync.NewMutex(key,
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(l.tries),
		redsync.WithRetryDelay(l.poll),
	)
	if err := mutex.LockContext(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, key, err)
	}
	return func(ctx context.Context) error {
		if ok, err := mutex.UnlockContext(ctx); !ok {
			return errors.Join(fmt.Errorf("%w: %s", ErrLockLost, key), err)
		}
		return nil
	}, nil
}
