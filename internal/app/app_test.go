package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/config"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/logging"
	redisclient "github.com/hackgods/vaccine-reservation-scheduling/internal/redis"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduler"
)

func memoryConfig() config.Config {
	return config.Config{
		StoreBackend: config.StoreMemory,
		LockBackend:  config.LockLocal,
		LockTTL:      time.Second,
		LockRetries:  3,
		SessionTTL:   time.Minute,
	}
}

func TestOpen_MemoryAndLocal(t *testing.T) {
	ctx := context.Background()
	rt, err := Open(ctx, memoryConfig(), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, rt.Close()) })

	require.Len(t, rt.Dependencies, 1)
	assert.Equal(t, "memory", rt.Dependencies[0].Name)
	assert.NoError(t, rt.Dependencies[0].Ping(ctx))

	_, ok := rt.Sessions.(redisclient.Sweeper)
	assert.True(t, ok)

	require.NoError(t, rt.Service.CreateAccount(ctx, scheduler.RoleCaregiver, "bob", "Abcd123!"))
	sess := scheduler.NewSession()
	_, err = rt.Service.Login(ctx, sess, scheduler.RoleCaregiver, "bob", "Abcd123!")
	require.NoError(t, err)
}

func TestOpen_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := memoryConfig()
	cfg.LockBackend = config.LockRedis
	cfg.RedisAddr = mr.Addr()

	ctx := context.Background()
	rt, err := Open(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, rt.Close()) })

	require.Len(t, rt.Dependencies, 2)
	assert.Equal(t, "redis", rt.Dependencies[1].Name)
	assert.NoError(t, rt.Dependencies[1].Ping(ctx))

	token, err := rt.Sessions.Create(ctx, redisclient.SessionRecord{Role: "patient", Username: "amy"})
	require.NoError(t, err)
	assert.True(t, mr.Exists("session:"+token))

	mr.Close()
	assert.Error(t, rt.Dependencies[1].Ping(ctx))
}

func TestOpen_RedisUnreachable(t *testing.T) {
	cfg := memoryConfig()
	cfg.LockBackend = config.LockRedis
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := Open(context.Background(), cfg, logging.Discard())
	assert.ErrorContains(t, err, "redis connection")
}

func TestSweepSessions_StopsOnCancel(t *testing.T) {
	rt, err := Open(context.Background(), memoryConfig(), logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rt.SweepSessions(ctx, time.Millisecond, logging.Discard())
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
