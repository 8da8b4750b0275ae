package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/skatespot-io/skatespot/internal/bootstrap"
	"github.com/skatespot-io/skatespot/internal/config"
	"github.com/skatespot-io/skatespot/internal/infra/cache"
	"github.com/skatespot-io/skatespot/internal/infra/db"
	"github.com/skatespot-io/skatespot/internal/modules/handler"
	"github.com/skatespot-io/skatespot/internal/modules/repo"
	"github.com/skatespot-io/skatespot/internal/router"
	"github.com/skatespot-io/skatespot/internal/telemetry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	inj := bootstrap.BuildContainer()

	cfg := do.MustInvoke[*config.Config](inj)
	log := do.MustInvoke[*zap.Logger](inj)
	defer func() { _ = log.Sync() }()

	if _, err := telemetry.SetupTracing(cfg); err != nil {
		log.Fatal("failed to set up tracing", zap.Error(err))
	}
	if _, err := telemetry.SetupMetrics(cfg); err != nil {
		log.Fatal("failed to set up metrics", zap.Error(err))
	}
	if err := telemetry.InitSchedulerMetrics(); err != nil {
		log.Fatal("failed to init scheduler metrics", zap.Error(err))
	}

	gdb := do.MustInvoke[*gorm.DB](inj)
	rdb := do.MustInvoke[*redis.Client](inj)
	if cfg.Telemetry.Enabled && cfg.Telemetry.OtlpEndpoint != "" {
		if err := db.RegisterOpenTelemetryPlugin(gdb); err != nil {
			log.Warn("failed to register gorm otel plugin", zap.Error(err))
		}
		if err := cache.RegisterOpenTelemetryPlugin(rdb); err != nil {
			log.Warn("failed to register redis otel plugin", zap.Error(err))
		}
	}

	r := router.NewRouter(router.RouterDeps{
		Config:          cfg,
		Log:             log,
		UserRepo:        do.MustInvoke[repo.UserRepo](inj),
		SessionHandler:  do.MustInvoke[*handler.SessionHandler](inj),
		ActivityHandler: do.MustInvoke[*handler.ActivityHandler](inj),
	})

	srv := &http.Server{
		Addr:              cfg.App.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("addr", cfg.App.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	if err := telemetry.Shutdown(ctx); err != nil {
		log.Error("tracing shutdown", zap.Error(err))
	}
	if err := telemetry.ShutdownMetrics(ctx); err != nil {
		log.Error("metrics shutdown", zap.Error(err))
	}
	_ = cache.Close(rdb)
	_ = inj.Shutdown()
}
