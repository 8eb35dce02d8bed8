package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/threadline/api/internal/di"
	"github.com/threadline/api/internal/handlers"
	"github.com/threadline/api/internal/platform/config"
	"github.com/threadline/api/internal/platform/idempotency"
	"github.com/threadline/api/internal/platform/observability"
	"github.com/threadline/api/internal/platform/secrets"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := loadConfig(ctx, logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build dependency container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	idempotencyMiddleware := idempotency.Middleware(
		idempotency.NewMemoryStore(),
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	routerOpts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(container.ReadinessCheck())),
		handlers.WithUserRoutes(handlers.NewUserHandlers(container.Authenticator, container.Services.Users).Routes),
		handlers.WithProductRoutes(handlers.NewProductHandlers(container.Authenticator, container.Services.Catalog).Routes),
		handlers.WithCartRoutes(handlers.NewCartHandlers(container.Authenticator, container.Services.Cart).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(container.Authenticator, container.Services.Orders).Routes, idempotencyMiddleware),
	}
	if cfg.Storage.Bucket == "" {
		routerOpts = append(routerOpts, handlers.WithStaticImages(
			cfg.Storage.ImagePathPrefix,
			http.FileServer(http.Dir(cfg.Storage.UploadDir)),
		))
	}

	router := handlers.NewRouter(routerOpts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("threadline api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// loadConfig assembles configuration, resolving secret:// references through
// Secret Manager when a client can be built. Local runs without credentials
// fall back to plain environment values.
func loadConfig(ctx context.Context, logger *zap.Logger) (config.Config, error) {
	opts := []config.Option{}

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithDefaultProject(os.Getenv("API_FIRESTORE_PROJECT_ID")),
	)
	if err != nil {
		logger.Warn("secret manager unavailable, secret references will not resolve", zap.Error(err))
	} else {
		defer func() {
			if err := fetcher.Close(); err != nil {
				logger.Warn("secret fetcher close error", zap.Error(err))
			}
		}()
		opts = append(opts, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	}

	return config.Load(ctx, opts...)
}
