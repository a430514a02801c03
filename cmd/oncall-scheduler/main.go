package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oncall-sre/oncall/internal/config"
	"github.com/oncall-sre/oncall/internal/logging"
	"github.com/oncall-sre/oncall/internal/scheduler"
	"github.com/oncall-sre/oncall/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.NewWithFile(cfg.LogLevel, os.Getenv("SCHEDULER_LOG_FILE"))

	store, err := postgres.New(cfg.DB.Conn.Str, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage init failed")
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	engine := scheduler.New(store, cfg.GracePeriod, logger)
	engine.Loop(ctx, time.Duration(cfg.SchedulerCycle)*time.Second)
	logger.Info().Msg("bye")
}
