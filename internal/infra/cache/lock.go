package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockLost: the key expired or is held by someone else.
	ErrLockLost = errors.New("lock lost")
)

// releaseScript deletes the key only if it still holds our token, so a lock
// that expired and was taken by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the TTL only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Lock is a single-holder lease on a redis key.
type Lock struct {
	rdb   *redis.Client
	key   string
	token string
}

// AcquireLock polls SET NX PX until it owns key or ctx is done.
func AcquireLock(ctx context.Context, rdb *redis.Client, key string, ttl, retry time.Duration) (*Lock, error) {
	token := uuid.NewString()
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}

	for {
		ok, err := rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lock{rdb: rdb, key: key, token: token}, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockNotAcquired, ctx.Err())
		case <-time.After(retry):
		}
	}
}

// Release gives the lock back. Releasing an expired or foreign lock is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}

// Extend resets the lock TTL. It returns ErrLockLost when the lock expired
// or was taken over in the meantime.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.rdb, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

func (l *Lock) Key() string { return l.key }
