package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/lumina/internal/config"
	"github.com/hszk-dev/lumina/internal/domain/repository"
	"github.com/hszk-dev/lumina/internal/imaging/pipeline"
	"github.com/hszk-dev/lumina/internal/imaging/watermark"
	"github.com/hszk-dev/lumina/internal/infrastructure/cache"
	"github.com/hszk-dev/lumina/internal/infrastructure/postgres"
	"github.com/hszk-dev/lumina/internal/infrastructure/queue"
	"github.com/hszk-dev/lumina/internal/infrastructure/storage"
	"github.com/hszk-dev/lumina/internal/netguard"
	"github.com/hszk-dev/lumina/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Initialize infrastructure clients
	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	logger.Info("connected to PostgreSQL")
	prometheus.MustRegister(postgres.NewPoolCollector(pgClient.Stats))

	// The facade builds its adapter lazily; resolve it now so a bad
	// STORAGE_TYPE fails at startup rather than on the first task.
	store := storage.NewFacade(storage.LoadConfig, storage.WithLogger(logger))
	if _, err := store.Adapter(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	logger.Info("storage ready", slog.String("backend", store.Backend()))

	queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	// Initialize Redis client for the logo cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis")

	// Logo fetches are guarded on every hop and cached by URL.
	guard := netguard.New(cfg.Logo.MediaCDNHost)
	logger.Info("logo hosts allowed", slog.Any("hosts", guard.Allowed()))
	fetcher := watermark.NewHTTPFetcher(guard,
		watermark.WithFetchTimeout(cfg.Logo.FetchTimeout),
		watermark.WithMaxBytes(cfg.Logo.MaxBytes),
	)
	logos := watermark.NewCachedLogoSource(fetcher, cache.NewRedisLogoCache(redisClient), guard, cfg.Logo.CacheTTL)

	compositor := watermark.NewCompositor(
		watermark.WithGuard(guard),
		watermark.WithLogoSource(logos),
		watermark.WithLogger(logger),
	)
	pipe := pipeline.New(
		pipeline.WithConfig(pipeline.Config{
			ThumbMaxSize:   cfg.Imaging.ThumbMaxSize,
			PreviewMaxSize: cfg.Imaging.PreviewMaxSize,
			ThumbQuality:   cfg.Imaging.ThumbQuality,
			PreviewQuality: cfg.Imaging.PreviewQuality,
			MaxPixels:      cfg.Imaging.MaxPixels,
		}),
		pipeline.WithWatermarker(compositor),
		pipeline.WithLogger(logger),
	)

	// Initialize repository and service
	photoRepo := postgres.NewPhotoRepository(pgClient.Pool())
	processSvc := usecase.NewProcessService(
		photoRepo,
		store,
		pipe,
		usecase.ProcessServiceConfig{
			MaxRetries: cfg.Worker.MaxRetries,
		},
	)

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Setup signal handling for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// WaitGroup to track in-flight tasks
	var wg sync.WaitGroup

	errCh := make(chan error, 2)
	go func() {
		logger.Info("serving metrics", slog.Int("port", cfg.Worker.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	// Start consuming messages in a goroutine
	go func() {
		logger.Info("starting worker, consuming process tasks")
		err := queueClient.ConsumeProcessTasks(ctx, func(task repository.ProcessTask) error {
			wg.Add(1)
			defer wg.Done()

			logger.Info("processing task",
				slog.String("photo_id", task.PhotoID.String()),
				slog.Int("retry_count", task.RetryCount),
			)

			if err := processSvc.ProcessTask(ctx, task); err != nil {
				logger.Error("task processing failed",
					slog.String("photo_id", task.PhotoID.String()),
					slog.Int("retry_count", task.RetryCount),
					slog.String("error", err.Error()),
				)
				return err
			}

			logger.Info("task completed",
				slog.String("photo_id", task.PhotoID.String()),
			)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Cancel the main context to stop consuming new messages
	cancel()

	// Wait for in-flight tasks and detached storage cleanup (or timeout)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		store.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all in-flight tasks completed")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, some tasks may not have completed")
	}

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("worker stopped")
	return nil
}
