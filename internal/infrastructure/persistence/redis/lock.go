package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out SETNX based locks.
type Locker struct {
	client redis.Cmdable
	prefix string
}

// NewLocker creates a Locker.
func NewLocker(client redis.Cmdable, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix}
}

// Lock is a held lock.
type Lock struct {
	client redis.Cmdable
	key    string
	token  string
}

// Acquire takes the named lock for ttl. It returns ErrLockHeld when someone
// else holds it.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	if name == "" {
		return nil, ErrCacheKeyEmpty
	}
	if ttl <= 0 {
		return nil, ErrCacheInvalidTTL
	}

	key := l.prefix + PrefixLock + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{client: l.client, key: key, token: token}, nil
}

// TryLock is Acquire for callers that only care whether they got the lock.
// ok is false when someone else holds it.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error) {
	lock, err := l.Acquire(ctx, name, ttl)
	switch {
	case errors.Is(err, ErrLockHeld):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return lock.Release, true, nil
}

// Release frees the lock if it has not expired and been taken over.
func (k *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, k.client, []string{k.key}, k.token).Err(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
