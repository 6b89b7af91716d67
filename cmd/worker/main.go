package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/stonemart/internal/alerts"
	"github.com/sudo-init-do/stonemart/internal/config"
	"github.com/sudo-init-do/stonemart/internal/db"
	"github.com/sudo-init-do/stonemart/internal/events"
	"github.com/sudo-init-do/stonemart/internal/logging"
	"github.com/sudo-init-do/stonemart/internal/store/pgstore"
)

// The worker delivers queued notifications and archives lifecycle events.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN())
	if err != nil {
		log.WithError(err).Fatal("database unavailable")
	}
	defer pool.Close()
	st := pgstore.New(pool)

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	processor := alerts.NewProcessor(st, alerts.NewGateway(cfg.Push.GatewayURL, cfg.Push.Token, log), log)
	server := alerts.NewServer(redisOpt, log)
	if err := server.Start(processor.Mux()); err != nil {
		log.WithError(err).Fatal("asynq server failed to start")
	}
	defer server.Shutdown()
	log.WithField("addr", cfg.Redis.Addr).Info("notification worker started")

	if cfg.Nats.URL == "" {
		log.Info("NATS_URL not set, event archiver disabled")
		<-ctx.Done()
		return
	}
	js, err := events.Connect(ctx, cfg.Nats.URL, log)
	if err != nil {
		log.WithError(err).Fatal("nats unavailable")
	}
	defer js.Close()

	archiver := events.NewArchiver(js.JetStream(), st, log)
	if err := archiver.Run(ctx); err != nil {
		log.WithError(err).Error("event archiver stopped")
	}
	log.Info("worker stopped")
}
