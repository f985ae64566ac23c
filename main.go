package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"FileShare/config"
	"FileShare/internal/handler"
	"FileShare/internal/mq"
	"FileShare/internal/repo"
	"FileShare/internal/service"
	"FileShare/internal/storage"
	"FileShare/internal/task"
	"FileShare/router"
	"FileShare/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// main initializes services and starts the HTTP server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := config.SetupLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, closeRegistry, err := openRegistry(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRegistry()

	var rdb *redis.Client
	if cfg.CacheBackend == config.CacheRedis {
		rdb, err = repo.NewRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}
	switch cfg.CacheBackend {
	case config.CacheRedis:
		registry = repo.NewCachedRegistry(registry, utils.NewRedisCache(rdb), cfg.CacheTTL, logger)
	case config.CacheMemory:
		// Revoke markers outlive snapshots, so the LRU cap is twice the snapshot TTL.
		lru := utils.NewLRUCache(cfg.CacheSize, 2*cfg.CacheTTL)
		registry = repo.NewCachedRegistry(registry, lru, cfg.CacheTTL, logger)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	var opts []service.Option
	if cfg.CleanupEnabled {
		publisher := mq.NewPublisher(cfg.RabbitMQURL)
		defer publisher.Close()
		opts = append(opts, service.WithCleanupQueue(task.NewCleanupQueue(publisher)))
	}
	if cfg.ReclaimExpired {
		opts = append(opts, service.WithExpiryScheduler(repo.NewRedisExpiryScheduler(rdb)))
	}
	shares := service.NewShareService(registry, store, logger, service.PolicyFromConfig(cfg), opts...)

	if cfg.ReclaimExpired {
		if err := startReclaim(ctx, rdb, cfg.RedisDB, shares, logger); err != nil {
			logger.Warn("expired share reclaim disabled", slog.String("error", err.Error()))
		}
	}

	gin.SetMode(gin.ReleaseMode)
	engine := router.InitRouter(router.Deps{
		Shares:      handler.NewShareHandler(shares, logger, cfg.MaxUploadBytes),
		Logger:      logger,
		CORSOrigins: cfg.CORSAllowOrigins,
	})
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}

func openRegistry(cfg *config.Config, logger *slog.Logger) (repo.ShareRegistry, func(), error) {
	if cfg.DBDriver == config.DriverBolt {
		registry, err := repo.NewBoltRegistry(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return registry, func() { _ = registry.Close() }, nil
	}
	db, err := repo.OpenDatabase(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return repo.NewGormRegistry(db), closeDB, nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	if cfg.Storage.Backend == config.StorageMinio {
		return storage.NewMinioStore(ctx, cfg.Storage)
	}
	return storage.NewLocalStore(cfg.Storage.Root)
}

// startReclaim turns on keyspace notifications and waits until the expiry
// listener is subscribed or has failed to subscribe.
func startReclaim(ctx context.Context, rdb *redis.Client, db int, shares *service.ShareService, logger *slog.Logger) error {
	if err := repo.EnableKeyspaceNotifications(ctx, rdb); err != nil {
		return err
	}
	listener := repo.NewExpiryListener(rdb, db, shares.ReclaimExpired, logger)
	return runListener(ctx, listener.Listen, logger)
}

// runListener starts listen in the background and returns once it reports
// ready, fails before becoming ready, or ctx ends.
func runListener(ctx context.Context, listen func(context.Context, chan<- struct{}) error, logger *slog.Logger) error {
	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		err := listen(ctx, ready)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("expiry listener stopped", slog.String("error", err.Error()))
		}
		errCh <- err
	}()
	select {
	case <-ready:
		return nil
	case err := <-errCh:
		if err == nil {
			err = errors.New("expiry listener exited before subscribing")
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
