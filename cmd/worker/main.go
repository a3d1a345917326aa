package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"classchat/internal/broker"
	"classchat/internal/config"
	"classchat/internal/db"
	clog "classchat/internal/log"
	"classchat/internal/worker"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()
	clog.Init(cfg.Env, "worker")
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bk, err := broker.Connect(ctx, cfg.BrokerURL)
	if err != nil {
		log.Fatal().Err(err).Msg("broker connect")
	}
	defer bk.Close()

	consumer, err := bk.Consumer(ctx, cfg.ConsumerGroup)
	if err != nil {
		log.Fatal().Err(err).Msg("broker consumer")
	}
	log.Info().Str("group", cfg.ConsumerGroup).Msg("worker started")

	if err := worker.New(gdb).Run(ctx, consumer); err != nil {
		log.Fatal().Err(err).Msg("worker run")
	}
	log.Info().Msg("worker stopped")
}
