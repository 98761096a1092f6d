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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hszk-dev/lumina/internal/api/handler"
	"github.com/hszk-dev/lumina/internal/api/middleware"
	"github.com/hszk-dev/lumina/internal/config"
	"github.com/hszk-dev/lumina/internal/infrastructure/postgres"
	"github.com/hszk-dev/lumina/internal/infrastructure/queue"
	"github.com/hszk-dev/lumina/internal/infrastructure/storage"
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

	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	logger.Info("connected to PostgreSQL")
	prometheus.MustRegister(postgres.NewPoolCollector(pgClient.Stats))

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

	uploadSvc := usecase.NewUploadService(
		postgres.NewPhotoRepository(pgClient.Pool()),
		store,
		queueClient,
		usecase.UploadServiceConfig{
			PresignTTL:         cfg.Upload.PresignTTL,
			MultipartThreshold: cfg.Upload.MultipartThreshold,
			MultipartPartSize:  cfg.Upload.MultipartPartSize,
		},
	)

	r := setupRouter(logger,
		handler.NewPhotoHandler(uploadSvc, cfg.Upload.MaxUploadBytes),
		map[string]handler.Pinger{"postgres": pgClient},
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	// Let detached multipart aborts finish before the process exits.
	store.Wait()

	logger.Info("server stopped")
	return nil
}

func setupRouter(logger *slog.Logger, photos *handler.PhotoHandler, deps map[string]handler.Pinger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.Recoverer(logger))

	r.Get("/health", handler.Health)
	r.Get("/ready", handler.Ready(deps))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", photos.Routes)

	return r
}
