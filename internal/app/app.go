// Package app wires configuration into a running scheduler: store, locker,
// session store and the readiness probes over them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/api"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/config"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/db"
	redisclient "github.com/hackgods/vaccine-reservation-scheduling/internal/redis"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduler"
)

type Runtime struct {
	Service      *scheduler.Service
	Sessions     redisclient.SessionStore
	Dependencies []api.Dependency

	closers []func() error
}

// Open connects the backends named in cfg. Callers must Close the runtime.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger) (*Runtime, error) {
	rt := &Runtime{}
	if err := rt.open(ctx, cfg, log); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) open(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	var repo scheduler.Repository
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			return fmt.Errorf("postgres connection: %w", err)
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })

		if err := db.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		log.Info("connected to Postgres")
		repo = scheduler.NewPgRepository(pool)
	default:
		log.Warn("using in-memory store, data is lost on exit")
		repo = scheduler.NewMemRepository()
	}
	rt.Dependencies = append(rt.Dependencies, api.Dependency{Name: cfg.StoreBackend, Critical: true, Ping: repo.Ping})

	var locker redisclient.Locker
	if cfg.UsesRedis() {
		rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("redis connection: %w", err)
		}
		rt.closers = append(rt.closers, rdb.Close)
		log.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))

		retry := redisclient.DefaultRetry
		retry.Attempts = cfg.LockRetries
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL, retry)
		rt.Sessions = redisclient.NewRedisSessionStore(rdb, cfg.SessionTTL)
		rt.Dependencies = append(rt.Dependencies, api.Dependency{Name: "redis", Critical: true, Ping: pingRedis(rdb)})
	} else {
		if cfg.StoreBackend == config.StorePostgres {
			log.Warn("local locks only serialize reservations within this process; run a single instance or set LOCK_BACKEND=redis")
		}
		locker = redisclient.NewLocalLocker()
		rt.Sessions = redisclient.NewMemorySessionStore(cfg.SessionTTL)
	}

	rt.Service = scheduler.NewService(repo, locker, log)
	return nil
}

func pingRedis(rdb *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

// Close releases connections in reverse order of opening.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// SweepSessions purges expired sessions every interval until ctx is done.
// Stores that expire entries on their own are left alone.
func (rt *Runtime) SweepSessions(ctx context.Context, interval time.Duration, log *slog.Logger) {
	sweeper, ok := rt.Sessions.(redisclient.Sweeper)
	if !ok || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweeper.Sweep(ctx)
			if err != nil {
				log.Warn("session sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				log.Debug("expired sessions purged", slog.Int("count", n))
			}
		}
	}
}
