package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreIncrementCreatesAndCounts(t *testing.T) {
	clock := newTestClock()
	store := NewMemoryStore(time.Minute, WithClock(clock.Now))
	defer store.Close()

	e, err := store.Increment(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Count)
	assert.Equal(t, clock.Now().Add(time.Minute), e.ResetAt)

	e, err = store.Increment(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Count)
}

func TestMemoryStoreWindowExpiryResetsToOne(t *testing.T) {
	clock := newTestClock()
	store := NewMemoryStore(time.Minute, WithClock(clock.Now))
	defer store.Close()

	for i := 0; i < 7; i++ {
		_, err := store.Increment(context.Background(), "k", time.Minute)
		require.NoError(t, err)
	}

	clock.Advance(time.Minute) // now == resetAt counts as expired

	e, err := store.Increment(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Count)
}

func TestMemoryStoreBlockedEntryFrozen(t *testing.T) {
	clock := newTestClock()
	store := NewMemoryStore(time.Minute, WithClock(clock.Now))
	defer store.Close()

	blocked := Entry{
		Count:      9,
		ResetAt:    clock.Now().Add(time.Minute),
		Blocked:    true,
		BlockUntil: clock.Now().Add(10 * time.Minute),
	}
	require.NoError(t, store.Set(context.Background(), "k", blocked, 0))

	// Increments while blocked do not advance the counter or the window.
	e, err := store.Increment(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, blocked, e)

	// After the block lapses the entry is treated as newly created.
	clock.Advance(10*time.Minute + time.Second)
	e, err = store.Increment(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Count)
	assert.False(t, e.Blocked)
}

func TestMemoryStoreGetPrunesExpired(t *testing.T) {
	clock := newTestClock()
	store := NewMemoryStore(time.Minute, WithClock(clock.Now))
	defer store.Close()

	_, err := store.Increment(context.Background(), "k", time.Minute)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	_, ok, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStorePrune(t *testing.T) {
	clock := newTestClock()
	store := NewMemoryStore(time.Hour, WithClock(clock.Now))
	defer store.Close()

	_, _ = store.Increment(context.Background(), "expired", time.Minute)
	require.NoError(t, store.Set(context.Background(), "blocked", Entry{
		Count:      3,
		ResetAt:    clock.Now().Add(time.Minute),
		Blocked:    true,
		BlockUntil: clock.Now().Add(time.Hour),
	}, 0))

	clock.Advance(5 * time.Minute)
	store.prune()

	assert.Equal(t, 1, store.Len(), "live block must survive pruning")
	_, ok, err := store.Get(context.Background(), "blocked")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreCloseIdempotent(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
