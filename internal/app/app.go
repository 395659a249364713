// Package app assembles the store, event publisher, sweep lock and services from
// configuration. Both binaries start from here.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/mAmineChniti/Forklore/internal/clock"
	"github.com/mAmineChniti/Forklore/internal/config"
	"github.com/mAmineChniti/Forklore/internal/database"
	"github.com/mAmineChniti/Forklore/internal/events"
	"github.com/mAmineChniti/Forklore/internal/lock"
	"github.com/mAmineChniti/Forklore/internal/scheduler"
	"github.com/mAmineChniti/Forklore/internal/server"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        database.Service
	Events    events.Publisher
	Locker    lock.Locker
	Services  server.Services
	Scheduler *scheduler.Scheduler

	redis *redis.Client
}

// Open connects the configured backends. Without Kafka brokers events are dropped;
// without Redis the sweep lock is process-local.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, DB: db, Events: events.Nop{}, Locker: lock.Local{}}
	if len(cfg.KafkaBrokers) > 0 {
		a.Events = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("publishing events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.Locker = lock.NewRedisLocker(a.redis, "")
	}

	a.Services = server.NewServices(db, clock.Real{}, logger, a.Events)
	a.Scheduler = scheduler.New(a.Locker, cfg.SweepLockTTL, logger,
		scheduler.ChapterJob(a.Services.Chapters, cfg.ChapterSweepInterval),
		scheduler.SubscriptionJob(a.Services.Subscriptions, cfg.SubscriptionSweepInterval),
	)
	return a, nil
}

func openDB(ctx context.Context, cfg *config.Config) (database.Service, error) {
	switch cfg.DBDriver {
	case config.DriverMemory:
		return database.NewMemory(), nil
	case config.DriverMongo:
		m, err := database.NewMongo(ctx, cfg.ConnectionString, cfg.DBName)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := m.EnsureIndexes(ctx); err != nil {
			_ = m.Close(ctx)
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}

// Close releases every backend and reports all failures together.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Events != nil {
		errs = append(errs, a.Events.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.DB.Close(ctx))
	return errors.Join(errs...)
}
