// Package app builds the services shared by the binaries from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"clubhub/internal/attendance"
	"clubhub/internal/cache"
	"clubhub/internal/config"
	"clubhub/internal/dashboard"
	"clubhub/internal/logging"
	"clubhub/internal/queue"
	"clubhub/internal/session"
	"clubhub/internal/store"
	"clubhub/internal/store/memstore"
	"clubhub/internal/store/mongostore"
	"clubhub/internal/store/pgstore"
	"clubhub/internal/user"
)

// Backend is a storage implementation of every repository.
type Backend interface {
	user.Repository
	session.Repository
	attendance.Repository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// App holds the wired services.
type App struct {
	Config     config.App
	Store      Backend
	Redis      *redis.Client
	Queue      queue.Queue
	Users      *user.Service
	Sessions   *session.Service
	Attendance *attendance.Service
	Dashboard  *dashboard.Service
}

// Build opens the configured backends and wires the services. Close releases
// them.
func Build(ctx context.Context, cfg config.App) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("club timezone: %w", err)
	}
	backend, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Store: backend}

	if cfg.QueueBackend == "redis" || cfg.RateLimitBackend == "redis" {
		a.Redis = store.NewRedis(cfg.RedisAddr)
		if !store.RedisHealthy(ctx, a.Redis) {
			logging.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable at startup")
		}
	}
	if cfg.QueueBackend == "redis" {
		a.Queue = queue.NewRedisQueue(a.Redis, queue.DefaultKey)
	} else {
		a.Queue = queue.NewInMemory(256)
	}

	opts := attendance.Options{
		Location:    loc,
		Grace:       cfg.CheckInGrace,
		Concurrency: cfg.BulkConcurrency,
		Publisher:   a.Queue,
		CacheTTL:    cfg.AnalyticsCacheTTL,
	}
	if a.Redis != nil {
		opts.Cache = cache.NewRedis(a.Redis, cache.DefaultPrefix)
	}

	a.Users = user.NewService(backend)
	a.Sessions = session.NewService(backend, nil, loc)
	a.Attendance = attendance.NewService(backend, a.Sessions, a.Users, opts)
	a.Sessions.SetSeeder(a.Attendance)
	a.Dashboard = dashboard.NewService(a.Sessions, a.Attendance, a.Users)
	return a, nil
}

// OpenStore connects the backend named by STORE_BACKEND and prepares its
// indexes or schema.
func OpenStore(ctx context.Context, cfg config.App) (Backend, error) {
	switch cfg.StoreBackend {
	case "mongo":
		s, err := mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		logging.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongo")
		return s, nil
	case "postgres":
		db, err := store.OpenPostgres(ctx, cfg.DatabaseURL, store.DefaultPool)
		if err != nil {
			return nil, err
		}
		s := pgstore.New(db)
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		logging.Info().Msg("connected to postgres")
		return s, nil
	case "memory":
		logging.Warn().Msg("using in-memory store, data is lost on restart")
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Close releases the store and redis connections.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	if err := a.Store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RedisPing reports redis reachability for health checks.
func (a *App) RedisPing(ctx context.Context) error {
	if a.Redis == nil {
		return nil
	}
	return a.Redis.Ping(ctx).Err()
}
