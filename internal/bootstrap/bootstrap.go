// Package bootstrap builds the dependency graph shared by the server and the
// operator CLI.
package bootstrap

import (
	"context"
	"errors"
	"time"

	"disputedesk/internal/config"
	"disputedesk/internal/repositories"
	"disputedesk/internal/repositories/cache"
	"disputedesk/internal/services/audit"
	"disputedesk/internal/services/auth"
	"disputedesk/internal/services/dispute"
	"disputedesk/internal/services/ledger"
	"disputedesk/internal/services/notification"
	"disputedesk/internal/services/reconciler"
	"disputedesk/internal/services/resolution"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const userCacheTTL = 10 * time.Minute

type Container struct {
	Config     *config.Config
	Log        *logrus.Logger
	DB         *gorm.DB
	Redis      *redis.Client
	Cache      *cache.CacheService
	Store      repositories.Store
	Users      repositories.UserRepository
	Bus        notification.Bus
	Recorder   *audit.Recorder
	Ledger     ledger.Service
	Engine     *resolution.Engine
	Disputes   *dispute.Service
	Auth       auth.Service
	Reconciler *reconciler.Reconciler
}

// Build connects to Postgres and Redis and wires every service. Redis is
// optional unless it backs the event bus.
func Build(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*Container, error) {
	c := &Container{Config: cfg, Log: log}

	db, err := repositories.InitDB(cfg, log)
	if err != nil {
		return nil, err
	}
	c.DB = db

	c.Redis, err = cache.Connect(ctx, cache.ConnOptions{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	switch {
	case err == nil:
		c.Cache = cache.NewCacheService(c.Redis, userCacheTTL)
	case cfg.EventBusDriver == config.BusDriverRedis:
		c.Close()
		return nil, err
	default:
		log.WithError(err).Warn("redis unavailable, running without the user cache")
	}

	sqlDB, err := db.DB()
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Bus, err = notification.Open(ctx, cfg.EventBusDriver, notification.Options{
		Redis: c.Redis,
		DB:    sqlDB,
		DSN:   cfg.DSN(),
		Log:   log,
	})
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Store = repositories.NewStore(db)
	c.Users = repositories.NewUserRepository(db, c.Cache, log)
	c.Recorder = audit.NewRecorder(log)
	c.Ledger = ledger.NewService(c.Store, c.Recorder, log)
	c.Engine = resolution.NewEngine(c.Store, c.Ledger, c.Recorder, notification.NewService(c.Bus, log), log)
	c.Disputes = dispute.NewService(c.Store, c.Ledger, c.Recorder, log)
	c.Auth = auth.NewService(c.Users, auth.Secrets{Access: cfg.JWTSecret, Refresh: cfg.RefreshSecret}, log)
	c.Reconciler = reconciler.New(c.Store, c.Disputes, c.Engine, reconciler.OptionsFromConfig(cfg), log)
	return c, nil
}

// Close releases every connection Build opened.
func (c *Container) Close() error {
	var errs []error
	if c.Bus != nil {
		errs = append(errs, c.Bus.Close())
	}
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	} else if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
