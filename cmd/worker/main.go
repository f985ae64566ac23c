package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"FileShare/config"
	"FileShare/internal/mq"
	"FileShare/internal/storage"
	"FileShare/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := config.SetupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store storage.BlobStore
	if cfg.Storage.Backend == config.StorageMinio {
		store, err = storage.NewMinioStore(ctx, cfg.Storage)
	} else {
		store, err = storage.NewLocalStore(cfg.Storage.Root)
	}
	if err != nil {
		logger.Error("open blob store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	client, err := mq.Dial(cfg.RabbitMQURL)
	if err != nil {
		logger.Error("rabbitmq connect", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer client.Close()

	logger.Info("cleanup worker started")
	if err := worker.NewCleanupWorker(cfg, store, logger).Run(ctx, client); err != nil {
		logger.Error("cleanup worker stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
