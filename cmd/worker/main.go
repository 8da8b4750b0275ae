package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/do"
	"github.com/skatespot-io/skatespot/internal/bootstrap"
	"github.com/skatespot-io/skatespot/internal/config"
	mq "github.com/skatespot-io/skatespot/internal/infra/queue"
	"github.com/skatespot-io/skatespot/internal/modules/service"
	"go.uber.org/zap"
)

// The worker drains the activity exchange into the activities table.
func main() {
	inj := bootstrap.BuildContainer()

	cfg := do.MustInvoke[*config.Config](inj)
	log := do.MustInvoke[*zap.Logger](inj)
	defer func() { _ = log.Sync() }()

	conn := do.MustInvoke[*amqp.Connection](inj)
	ingest := do.MustInvoke[service.ActivityIngestService](inj)

	consumer, err := mq.NewConsumer(conn, cfg.RabbitMQ.ActivityQueue, cfg.RabbitMQ.Prefetch, log, cfg)
	if err != nil {
		log.Fatal("failed to create consumer", zap.Error(err))
	}
	defer func() { _ = consumer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("activity worker consuming", zap.String("queue", cfg.RabbitMQ.ActivityQueue))
	err = consumer.Handle(ctx, func(body []byte) error {
		return ingest.HandleEvent(ctx, body)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("consumer stopped", zap.Error(err))
	}
	log.Info("activity worker stopped")
	_ = inj.Shutdown()
}
