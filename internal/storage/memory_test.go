package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemoryStore_GetSetDelete(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "pool_key_info-abc", `{"id":"abc"}`, 0))
	value, err := s.Get(ctx, "pool_key_info-abc")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"abc"}`, value)

	require.NoError(t, s.Delete(ctx, "pool_key_info-abc"))
	_, err = s.Get(ctx, "pool_key_info-abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_TTL(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "reserves-a-b", "1", 50*time.Millisecond))
	_, err := s.Get(ctx, "reserves-a-b")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := s.Get(ctx, "reserves-a-b")
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMemoryStore_Lock(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	ok, err := s.Lock(ctx, "lock:pool", "owner-1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Lock(ctx, "lock:pool", "owner-2", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "lock is held")

	released, err := s.Unlock(ctx, "lock:pool", "owner-2")
	require.NoError(t, err)
	assert.False(t, released, "foreign owner must not release")

	// Истёкшая блокировка может быть перехвачена.
	now = now.Add(2 * time.Second)
	ok, err = s.Lock(ctx, "lock:pool", "owner-2", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	released, err = s.Unlock(ctx, "lock:pool", "owner-2")
	require.NoError(t, err)
	assert.True(t, released)
}

func TestMemoryStore_PubSub(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Subscribe(ctx, "raydium:pools:new")
	require.NoError(t, err)

	require.NoError(t, s.Publish(ctx, "other", "ignored"))
	require.NoError(t, s.Publish(ctx, "raydium:pools:new", "hello"))

	select {
	case msg := <-ch:
		assert.Equal(t, "hello", msg)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	select {
	case _, open := <-ch:
		assert.False(t, open, "channel must be closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}
