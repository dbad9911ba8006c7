package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/portfoliocms/assetsync/internal/config"
	"github.com/portfoliocms/assetsync/internal/infra/blob"
	"github.com/portfoliocms/assetsync/internal/infra/cache"
	"github.com/portfoliocms/assetsync/internal/infra/changefeed"
	"github.com/portfoliocms/assetsync/internal/infra/db"
	"github.com/portfoliocms/assetsync/internal/infra/logger"
	mq "github.com/portfoliocms/assetsync/internal/infra/queue"
	"github.com/portfoliocms/assetsync/internal/modules/handler"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/portfoliocms/assetsync/internal/modules/repo"
	"github.com/portfoliocms/assetsync/internal/modules/service"
	"github.com/portfoliocms/assetsync/internal/telemetry"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	FeedRedis    = "redis"
	FeedRabbitMQ = "rabbitmq"
)

// closers collects the release funcs of resources providers opened, so Close
// never dials something only to close it.
type closers struct {
	mu  sync.Mutex
	fns []func() error
}

func (c *closers) add(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, fn)
}

// BuildContainer wires everything from config.Load.
func BuildContainer() *do.Injector {
	return BuildContainerWith(config.Load)
}

// BuildContainerWith wires everything from the config returned by load.
// Providers are lazy: redis and rabbitmq are only dialed when something
// that needs them is invoked.
func BuildContainerWith(load func() (*config.Config, error)) *do.Injector {
	inj := do.New()
	do.ProvideValue(inj, &closers{})

	// config
	do.Provide(inj, func(i *do.Injector) (*config.Config, error) {
		return load()
	})

	// logger
	do.Provide(inj, func(i *do.Injector) (*zap.Logger, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log, err := logger.New(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		do.MustInvoke[*closers](i).add(func() error {
			_ = log.Sync()
			return nil
		})
		return log, nil
	})

	// DB
	do.Provide(inj, func(i *do.Injector) (*gorm.DB, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.Logger](i)
		d, err := db.New(cfg)
		if err != nil {
			return nil, err
		}
		do.MustInvoke[*closers](i).add(func() error {
			sqlDB, err := d.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		if telemetry.Enabled(cfg) {
			if err := db.RegisterOpenTelemetryPlugin(d); err != nil {
				log.Warn("register gorm tracing", zap.Error(err))
			}
		}
		if cfg.Database.AutoMigrate {
			// gen_random_uuid is built in from postgres 13; older servers need pgcrypto
			_ = d.Exec("CREATE EXTENSION IF NOT EXISTS pgcrypto")
			if err := d.AutoMigrate(&model.Asset{}); err != nil {
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
		}
		return d, nil
	})

	// Redis
	do.Provide(inj, func(i *do.Injector) (*redis.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.Logger](i)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rdb, err := cache.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		do.MustInvoke[*closers](i).add(func() error { return cache.Close(rdb) })
		if telemetry.Enabled(cfg) {
			if err := cache.RegisterOpenTelemetryPlugin(rdb); err != nil {
				log.Warn("register redis tracing", zap.Error(err))
			}
		}
		return rdb, nil
	})

	// RabbitMQ DialFunc
	do.Provide(inj, func(i *do.Injector) (mq.DialFunc, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return mq.NewDialFunc(cfg.RabbitMQ), nil
	})

	// RabbitMQ Connection
	do.Provide(inj, func(i *do.Injector) (*amqp.Connection, error) {
		dialFn := do.MustInvoke[mq.DialFunc](i)
		conn, err := dialFn()
		if err != nil {
			return nil, err
		}
		do.MustInvoke[*closers](i).add(conn.Close)
		return conn, nil
	})

	// Change feed
	do.Provide(inj, func(i *do.Injector) (changefeed.Feed, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.Logger](i)
		switch cfg.Feed.Driver {
		case FeedRabbitMQ:
			conn, err := do.Invoke[*amqp.Connection](i)
			if err != nil {
				return nil, err
			}
			f, err := changefeed.NewAMQPFeed(conn, cfg.RabbitMQ.ExchangeName, cfg.App.Name, log)
			if err != nil {
				return nil, err
			}
			do.MustInvoke[*closers](i).add(f.Close)
			return f, nil
		case FeedRedis, "":
			rdb, err := do.Invoke[*redis.Client](i)
			if err != nil {
				return nil, err
			}
			return changefeed.NewRedisFeed(rdb, cfg.Feed.Channel, log), nil
		default:
			return nil, fmt.Errorf("unknown feed driver %q", cfg.Feed.Driver)
		}
	})

	// S3
	do.Provide(inj, func(i *do.Injector) (*blob.S3Deps, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return blob.NewS3(context.Background(), cfg)
	})

	// Repo
	do.Provide(inj, func(i *do.Injector) (repo.AssetRepo, error) {
		return repo.NewAssetRepo(
			do.MustInvoke[*gorm.DB](i),
			do.MustInvoke[*blob.S3Deps](i),
			do.MustInvoke[changefeed.Feed](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})

	// Service
	do.Provide(inj, func(i *do.Injector) (service.OrderAllocator, error) {
		cfg := do.MustInvoke[*config.Config](i)
		r := do.MustInvoke[repo.AssetRepo](i)
		log := do.MustInvoke[*zap.Logger](i)
		var rdb *redis.Client
		if cfg.Upload.Allocator == service.AllocatorRedis {
			var err error
			if rdb, err = do.Invoke[*redis.Client](i); err != nil {
				return nil, err
			}
		}
		ttl := time.Duration(cfg.Upload.LockTTLSec) * time.Second
		return service.NewOrderAllocator(cfg.Upload.Allocator, r, rdb, ttl, log)
	})
	do.Provide(inj, func(i *do.Injector) (service.UploadService, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return service.NewUploadService(
			do.MustInvoke[repo.AssetRepo](i),
			do.MustInvoke[service.OrderAllocator](i),
			service.UploadConfig{DefaultBucket: cfg.S3.Bucket, MaxConcurrency: cfg.Upload.MaxConcurrency},
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.ReorderService, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return service.NewReorderService(do.MustInvoke[repo.AssetRepo](i), cfg.Reorder.Mode, do.MustInvoke[*zap.Logger](i))
	})
	do.Provide(inj, func(i *do.Injector) (service.AssetService, error) {
		return service.NewAssetService(do.MustInvoke[repo.AssetRepo](i), do.MustInvoke[*zap.Logger](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.JanitorService, error) {
		cfg := do.MustInvoke[*config.Config](i)
		grace := time.Duration(cfg.Janitor.GraceSec) * time.Second
		return service.NewJanitorService(do.MustInvoke[repo.AssetRepo](i), grace, do.MustInvoke[*zap.Logger](i)), nil
	})

	// Handler
	do.Provide(inj, func(i *do.Injector) (*handler.AssetHandler, error) {
		return handler.NewAssetHandler(
			do.MustInvoke[service.AssetService](i),
			do.MustInvoke[service.UploadService](i),
			do.MustInvoke[service.ReorderService](i),
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (*handler.FeedHandler, error) {
		return handler.NewFeedHandler(do.MustInvoke[changefeed.Feed](i), do.MustInvoke[*zap.Logger](i)), nil
	})

	return inj
}

// Close releases what the container opened, newest first.
func Close(inj *do.Injector) error {
	c, err := do.Invoke[*closers](inj)
	if err != nil {
		return err
	}
	c.mu.Lock()
	fns := slices.Clone(c.fns)
	c.fns = nil
	c.mu.Unlock()

	var errs []error
	for _, fn := range slices.Backward(fns) {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
