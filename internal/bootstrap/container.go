package bootstrap

import (
	"crypto/tls"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/skatespot-io/skatespot/internal/config"
	"github.com/skatespot-io/skatespot/internal/infra/cache"
	"github.com/skatespot-io/skatespot/internal/infra/db"
	"github.com/skatespot-io/skatespot/internal/infra/logger"
	mq "github.com/skatespot-io/skatespot/internal/infra/queue"
	"github.com/skatespot-io/skatespot/internal/modules/handler"
	"github.com/skatespot-io/skatespot/internal/modules/model"
	"github.com/skatespot-io/skatespot/internal/modules/repo"
	"github.com/skatespot-io/skatespot/internal/modules/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func BuildContainer() *do.Injector {
	inj := do.New()

	// config
	do.Provide(inj, func(i *do.Injector) (*config.Config, error) {
		return config.Load()
	})

	// logger
	do.Provide(inj, func(i *do.Injector) (*zap.Logger, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return logger.New(cfg.Log.Level)
	})

	// DB
	do.Provide(inj, func(i *do.Injector) (*gorm.DB, error) {
		cfg := do.MustInvoke[*config.Config](i)
		d, err := db.New(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := d.AutoMigrate(
				&model.Spot{},
				&model.User{},
				&model.Session{},
				&model.SessionRSVP{},
				&model.Activity{},
			); err != nil {
				return nil, err
			}
		}
		return d, nil
	})

	// Redis
	do.Provide(inj, func(i *do.Injector) (*redis.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return cache.New(cfg)
	})
	do.Provide(inj, func(i *do.Injector) (*cache.SessionLocker, error) {
		rdb := do.MustInvoke[*redis.Client](i)
		return cache.NewSessionLocker(rdb), nil
	})

	// RabbitMQ DialFunc for connection and reconnection
	do.Provide(inj, func(i *do.Injector) (mq.DialFunc, error) {
		cfg := do.MustInvoke[*config.Config](i)

		dialFn := func() (*amqp.Connection, error) {
			useTLS := cfg.RabbitMQ.EnableTLS || strings.HasPrefix(cfg.RabbitMQ.URL, "amqps://")

			if useTLS {
				tlsConfig := &tls.Config{
					MinVersion: tls.VersionTLS12,
				}
				url := cfg.RabbitMQ.URL
				if strings.HasPrefix(url, "amqp://") {
					url = strings.Replace(url, "amqp://", "amqps://", 1)
				}
				return amqp.DialTLS(url, tlsConfig)
			}

			return amqp.Dial(cfg.RabbitMQ.URL)
		}

		return dialFn, nil
	})

	// RabbitMQ Connection
	do.Provide(inj, func(i *do.Injector) (*amqp.Connection, error) {
		dialFn := do.MustInvoke[mq.DialFunc](i)
		return dialFn()
	})

	// RabbitMQ Publisher
	do.Provide(inj, func(i *do.Injector) (*mq.Publisher, error) {
		cfg := do.MustInvoke[*config.Config](i)
		conn := do.MustInvoke[*amqp.Connection](i)
		log := do.MustInvoke[*zap.Logger](i)
		return mq.NewPublisher(conn, log, cfg)
	})

	// Repo
	do.Provide(inj, func(i *do.Injector) (repo.SessionRepo, error) {
		return repo.NewSessionRepo(do.MustInvoke[*gorm.DB](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (repo.SpotRepo, error) {
		return repo.NewSpotRepo(do.MustInvoke[*gorm.DB](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (repo.UserRepo, error) {
		return repo.NewUserRepo(do.MustInvoke[*gorm.DB](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (repo.ActivityRepo, error) {
		return repo.NewActivityRepo(do.MustInvoke[*gorm.DB](i)), nil
	})

	// Service
	do.Provide(inj, func(i *do.Injector) (service.ActivityRecorder, error) {
		return service.NewActivityRecorder(
			do.MustInvoke[*mq.Publisher](i),
			do.MustInvoke[*config.Config](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.SchedulerService, error) {
		return service.NewSchedulerService(
			do.MustInvoke[repo.SessionRepo](i),
			do.MustInvoke[repo.SpotRepo](i),
			do.MustInvoke[service.ActivityRecorder](i),
			do.MustInvoke[*cache.SessionLocker](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.ActivityIngestService, error) {
		return service.NewActivityIngestService(
			do.MustInvoke[repo.ActivityRepo](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.ActivityFeedService, error) {
		return service.NewActivityFeedService(do.MustInvoke[repo.ActivityRepo](i)), nil
	})

	// Handler
	do.Provide(inj, func(i *do.Injector) (*handler.SessionHandler, error) {
		return handler.NewSessionHandler(do.MustInvoke[service.SchedulerService](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (*handler.ActivityHandler, error) {
		return handler.NewActivityHandler(do.MustInvoke[service.ActivityFeedService](i)), nil
	})

	return inj
}
