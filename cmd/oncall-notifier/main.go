package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/oncall-sre/oncall/internal/config"
	"github.com/oncall-sre/oncall/internal/logging"
	"github.com/oncall-sre/oncall/internal/notifier"
	"github.com/oncall-sre/oncall/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.NewWithFile(cfg.LogLevel, os.Getenv("NOTIFIER_LOG_FILE"))

	store, err := postgres.New(cfg.DB.Conn.Str, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage init failed")
	}
	defer store.Close()

	messengers, err := notifier.NewRegistry(cfg.Messengers, cfg.Notifier.SkipSend, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("messenger init failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	notifier.New(store, messengers, cfg, logger).Run(ctx)
	logger.Info().Msg("bye")
}
