package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSessionStore_Lifecycle(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisSessionStore(client, time.Hour)
	ctx := context.Background()

	token, err := store.Create(ctx, SessionRecord{Role: "patient", Username: "alice"})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.True(t, mr.Exists("session:"+token))
	assert.Equal(t, time.Hour, mr.TTL("session:"+token))

	rec, err := store.Get(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, SessionRecord{Role: "patient", Username: "alice"}, rec)

	require.NoError(t, store.Delete(ctx, token))
	_, err = store.Get(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, store.Delete(ctx, token), ErrSessionNotFound)
}

func TestRedisSessionStore_Expires(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisSessionStore(client, time.Minute)
	ctx := context.Background()

	token, err := store.Create(ctx, SessionRecord{Role: "caregiver", Username: "bob"})
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Get(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemorySessionStore_ExpiryAndSliding(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemorySessionStore(10 * time.Minute).(*memorySessionStore)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	token, err := store.Create(ctx, SessionRecord{Role: "patient", Username: "carol"})
	require.NoError(t, err)

	now = now.Add(9 * time.Minute)
	_, err = store.Get(ctx, token)
	require.NoError(t, err)

	// the lookup above extended the expiry
	now = now.Add(9 * time.Minute)
	rec, err := store.Get(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "carol", rec.Username)

	now = now.Add(11 * time.Minute)
	_, err = store.Get(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemorySessionStore_Sweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore(10 * time.Minute).(*memorySessionStore)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	stale, err := store.Create(ctx, SessionRecord{Role: "patient", Username: "amy"})
	require.NoError(t, err)

	now = now.Add(8 * time.Minute)
	fresh, err := store.Create(ctx, SessionRecord{Role: "caregiver", Username: "bob"})
	require.NoError(t, err)

	now = now.Add(5 * time.Minute)
	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, stale)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	rec, err := store.Get(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, "bob", rec.Username)

	var _ Sweeper = store
}
