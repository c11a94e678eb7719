package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aquasense/internal/config"
	"aquasense/internal/logger"
	"aquasense/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(cfg.LogLevel)

	srv := server.New(cfg)

	go func() {
		if err := srv.Run(ctx); err != nil {
			logger.Logger.Error().Err(err).Msg("server exited")
			cancel()
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		logger.Logger.Info().Msg("shutting down")
		cancel()
	case <-ctx.Done():
	}

	// give graceful shutdown some time
	time.Sleep(500 * time.Millisecond)
}
