package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockRepository_AcquireRelease(t *testing.T) {
	db := SetupTestDB(t)
	clock := newTestClock()
	repo := NewLockRepository(db, WithClock(clock.Now))
	ctx := context.Background()

	ok, err := repo.Acquire(ctx, "notification_worker", "run-a", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Acquire(ctx, "notification_worker", "run-b", 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquirer must see the lock as held")

	other, err := repo.Acquire(ctx, "another_lock", "run-b", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, other, "lock names are independent")

	holder, err := repo.Holder(ctx, "notification_worker")
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.Equal(t, "run-a", holder.LockedBy)
	assert.True(t, holder.LockedUntil.Equal(clock.Now().Add(10*time.Minute)))

	require.NoError(t, repo.Release(ctx, "notification_worker", "run-a"))

	holder, err = repo.Holder(ctx, "notification_worker")
	require.NoError(t, err)
	assert.Nil(t, holder)

	ok, err = repo.Acquire(ctx, "notification_worker", "run-b", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockRepository_StaleLockIsReaped(t *testing.T) {
	db := SetupTestDB(t)
	clock := newTestClock()
	repo := NewLockRepository(db, WithClock(clock.Now))
	ctx := context.Background()

	ok, err := repo.Acquire(ctx, "batch", "crashed-run", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(time.Minute + time.Second)

	ok, err = repo.Acquire(ctx, "batch", "next-run", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// the crashed run coming back late must not free its successor's lock
	require.NoError(t, repo.Release(ctx, "batch", "crashed-run"))
	holder, err := repo.Holder(ctx, "batch")
	require.NoError(t, err)
	require.NotNil(t, holder)
	assert.Equal(t, "next-run", holder.LockedBy)
}

func TestLockRepository_ConcurrentAcquire(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewLockRepository(db, WithClock(newTestClock().Now))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			ok, err := repo.Acquire(context.Background(), "batch", owner, time.Minute)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}
