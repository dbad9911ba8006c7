package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalAllocator_StartsAfterMax(t *testing.T) {
	tests := []struct {
		name string
		max  int64
		want []int64
	}{
		{name: "empty category", max: 0, want: []int64{1, 2}},
		{name: "existing max", max: 7, want: []int64{8, 9, 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &MockAssetRepo{}
			r.On("MaxOrdering", mock.Anything, model.CategoryFile).Return(tt.max, nil).Once()

			lease, err := NewLocalAllocator(r).Reserve(context.Background(), model.CategoryFile)
			require.NoError(t, err)
			defer lease.Release()

			var got []int64
			for range tt.want {
				got = append(got, lease.Next())
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.max, lease.Base())
			assert.Equal(t, int64(len(tt.want)), lease.Issued())
			r.AssertExpectations(t)
		})
	}
}

func TestLocalAllocator_ReadFailure(t *testing.T) {
	r := &MockAssetRepo{}
	cause := errors.New("timeout")
	r.On("MaxOrdering", mock.Anything, model.CategoryImage).Return(int64(0), cause)

	_, err := NewLocalAllocator(r).Reserve(context.Background(), model.CategoryImage)
	assert.ErrorIs(t, err, ErrOrderAllocation)
	assert.ErrorIs(t, err, cause)
}

func TestOrderLease_ConcurrentNextIsUnique(t *testing.T) {
	lease := newOrderLease(model.CategoryImage, 3, nil)
	const n = 50

	var (
		mu  sync.Mutex
		got = make(map[int64]bool)
		wg  sync.WaitGroup
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := lease.Next()
			mu.Lock()
			got[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, got, n)
	for v := int64(4); v <= 3+n; v++ {
		assert.True(t, got[v], "missing %d", v)
	}
}

func TestOrderLease_ReleaseOnce(t *testing.T) {
	calls := 0
	lease := newOrderLease(model.CategoryFile, 0, func() { calls++ })
	lease.Release()
	lease.Release()
	assert.Equal(t, 1, calls)
}

func TestRedisAllocator_SerializesLeases(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := &MockAssetRepo{}
	r.On("MaxOrdering", mock.Anything, model.CategoryImage).Return(int64(2), nil)

	alloc := NewRedisAllocator(r, rdb, time.Minute, zap.NewNop())
	ctx := context.Background()

	first, err := alloc.Reserve(ctx, model.CategoryImage)
	require.NoError(t, err)
	assert.True(t, mr.Exists(lockKey(model.CategoryImage)))
	assert.Equal(t, int64(3), first.Next())

	waitCtx, cancel := context.WithTimeout(ctx, 120*time.Millisecond)
	defer cancel()
	_, err = alloc.Reserve(waitCtx, model.CategoryImage)
	assert.ErrorIs(t, err, ErrOrderAllocation)

	first.Release()
	assert.False(t, mr.Exists(lockKey(model.CategoryImage)))

	second, err := alloc.Reserve(ctx, model.CategoryImage)
	require.NoError(t, err)
	second.Release()
	r.AssertNumberOfCalls(t, "MaxOrdering", 2)
}

func TestRedisAllocator_RenewsLockPastTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := &MockAssetRepo{}
	r.On("MaxOrdering", mock.Anything, model.CategoryImage).Return(int64(2), nil)

	alloc := NewRedisAllocator(r, rdb, 30*time.Second, zap.NewNop()).(*redisAllocator)
	alloc.renewEvery = 10 * time.Millisecond
	ctx := context.Background()
	key := lockKey(model.CategoryImage)

	first, err := alloc.Reserve(ctx, model.CategoryImage)
	require.NoError(t, err)
	assert.Equal(t, int64(3), first.Next())

	// Keep the lease open for twice the TTL.
	for range 3 {
		mr.FastForward(20 * time.Second)
		require.Eventually(t, func() bool { return mr.TTL(key) > 20*time.Second },
			time.Second, 5*time.Millisecond)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = alloc.Reserve(waitCtx, model.CategoryImage)
	assert.ErrorIs(t, err, ErrOrderAllocation)
	assert.False(t, first.Lost())

	first.Release()
	assert.False(t, mr.Exists(key))
	r.AssertNumberOfCalls(t, "MaxOrdering", 1)
}

func TestRedisAllocator_MarksLeaseLost(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := &MockAssetRepo{}
	r.On("MaxOrdering", mock.Anything, model.CategoryFile).Return(int64(0), nil)

	alloc := NewRedisAllocator(r, rdb, 30*time.Second, zap.NewNop()).(*redisAllocator)
	alloc.renewEvery = 10 * time.Millisecond
	ctx := context.Background()

	lease, err := alloc.Reserve(ctx, model.CategoryFile)
	require.NoError(t, err)

	// The key expires between renewals and another process takes it.
	mr.Del(lockKey(model.CategoryFile))
	require.NoError(t, mr.Set(lockKey(model.CategoryFile), "other-holder"))

	require.Eventually(t, lease.Lost, time.Second, 5*time.Millisecond)
	lease.Release()

	got, err := mr.Get(lockKey(model.CategoryFile))
	require.NoError(t, err)
	assert.Equal(t, "other-holder", got)
}

func TestRedisAllocator_ReleasesLockOnReadFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := &MockAssetRepo{}
	r.On("MaxOrdering", mock.Anything, model.CategoryFile).Return(int64(0), errors.New("db down"))

	_, err := NewRedisAllocator(r, rdb, time.Minute, zap.NewNop()).Reserve(context.Background(), model.CategoryFile)
	assert.ErrorIs(t, err, ErrOrderAllocation)
	assert.False(t, mr.Exists(lockKey(model.CategoryFile)))
}

func TestNewOrderAllocator(t *testing.T) {
	r := &MockAssetRepo{}

	a, err := NewOrderAllocator("", r, nil, 0, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &localAllocator{}, a)

	_, err = NewOrderAllocator(AllocatorRedis, r, nil, 0, zap.NewNop())
	assert.Error(t, err)

	_, err = NewOrderAllocator("zookeeper", r, nil, 0, zap.NewNop())
	assert.Error(t, err)
}
