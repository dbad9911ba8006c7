package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/portfoliocms/assetsync/internal/infra/cache"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/portfoliocms/assetsync/internal/modules/repo"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	AllocatorLocal = "local"
	AllocatorRedis = "redis"
)

// OrderAllocator hands out ordering values for new assets of a category.
type OrderAllocator interface {
	Reserve(ctx context.Context, category model.Category) (*OrderLease, error)
}

// OrderLease counts up from the category maximum observed at Reserve time.
// Values are max+1, max+2, ... in the order Next is called.
type OrderLease struct {
	category model.Category
	base     int64
	last     atomic.Int64
	lost     atomic.Bool
	once     sync.Once
	release  func()
}

func newOrderLease(category model.Category, base int64, release func()) *OrderLease {
	l := &OrderLease{category: category, base: base, release: release}
	l.last.Store(base)
	return l
}

func (l *OrderLease) Category() model.Category { return l.category }

// Base is the maximum ordering seen when the lease was taken.
func (l *OrderLease) Base() int64 { return l.base }

func (l *OrderLease) Next() int64 { return l.last.Add(1) }

// Issued is how many values Next has handed out.
func (l *OrderLease) Issued() int64 { return l.last.Load() - l.base }

// Lost reports whether the lease stopped being exclusive before Release,
// so values it handed out may collide with another process.
func (l *OrderLease) Lost() bool { return l.lost.Load() }

// Release ends the lease. Safe to call more than once.
func (l *OrderLease) Release() {
	l.once.Do(func() {
		if l.release != nil {
			l.release()
		}
	})
}

// localAllocator reads the current maximum and counts up in memory. Two
// processes allocating for the same category at the same time can read the
// same maximum and hand out duplicate values; CompactCategory repairs that
// after the fact.
type localAllocator struct {
	r repo.AssetRepo
}

func NewLocalAllocator(r repo.AssetRepo) OrderAllocator {
	return &localAllocator{r: r}
}

func (a *localAllocator) Reserve(ctx context.Context, category model.Category) (*OrderLease, error) {
	max, err := a.r.MaxOrdering(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("%w: read max ordering of %s: %w", ErrOrderAllocation, category, err)
	}
	return newOrderLease(category, max, nil), nil
}

// redisAllocator serializes leases per category through a redis lock held
// until Release, so processes sharing the redis never read a stale maximum.
// The lock is renewed every renewEvery while the lease is open.
type redisAllocator struct {
	r          repo.AssetRepo
	rdb        *redis.Client
	ttl        time.Duration
	renewEvery time.Duration
	log        *zap.Logger
}

func NewRedisAllocator(r repo.AssetRepo, rdb *redis.Client, ttl time.Duration, log *zap.Logger) OrderAllocator {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisAllocator{r: r, rdb: rdb, ttl: ttl, renewEvery: ttl / 3, log: log}
}

func lockKey(category model.Category) string {
	return "assets:ordering:lock:" + string(category)
}

func (a *redisAllocator) Reserve(ctx context.Context, category model.Category) (*OrderLease, error) {
	lock, err := cache.AcquireLock(ctx, a.rdb, lockKey(category), a.ttl, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("%w: lock %s: %w", ErrOrderAllocation, category, err)
	}

	unlock := func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			a.log.Warn("release ordering lock", zap.String("key", lock.Key()), zap.Error(err))
		}
	}

	max, err := a.r.MaxOrdering(ctx, category)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("%w: read max ordering of %s: %w", ErrOrderAllocation, category, err)
	}

	renewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	lease := newOrderLease(category, max, func() {
		stop()
		<-done
		unlock()
	})
	go a.keepAlive(renewCtx, lock, lease, done)
	return lease, nil
}

// keepAlive extends the lock until ctx ends. A failed extension marks the
// lease lost and stops renewing.
func (a *redisAllocator) keepAlive(ctx context.Context, lock *cache.Lock, lease *OrderLease, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(a.renewEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			err := lock.Extend(ctx, a.ttl)
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			lease.lost.Store(true)
			a.log.Error("ordering lock lost, orderings may collide",
				zap.String("key", lock.Key()),
				zap.String("category", string(lease.Category())),
				zap.Error(err))
			return
		}
	}
}

// NewOrderAllocator picks the allocator named by kind. rdb may be nil for the local allocator.
func NewOrderAllocator(kind string, r repo.AssetRepo, rdb *redis.Client, ttl time.Duration, log *zap.Logger) (OrderAllocator, error) {
	switch kind {
	case "", AllocatorLocal:
		return NewLocalAllocator(r), nil
	case AllocatorRedis:
		if rdb == nil {
			return nil, fmt.Errorf("allocator %q needs a redis client", kind)
		}
		return NewRedisAllocator(r, rdb, ttl, log), nil
	default:
		return nil, fmt.Errorf("unknown allocator %q", kind)
	}
}
