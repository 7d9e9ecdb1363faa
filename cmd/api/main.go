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

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hdshop/api/internal/di"
	"github.com/hdshop/api/internal/handlers"
	"github.com/hdshop/api/internal/platform/config"
	pfirestore "github.com/hdshop/api/internal/platform/firestore"
	"github.com/hdshop/api/internal/platform/jobs"
	"github.com/hdshop/api/internal/platform/observability"
	"github.com/hdshop/api/internal/platform/secrets"
	"github.com/hdshop/api/internal/services"
	firestoreRepo "github.com/hdshop/api/internal/repositories/firestore"
)

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

	fetcher, err := secrets.NewFetcher(ctx, secrets.WithLogger(logger.Named("secrets")))
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	var events services.OrderEventPublisher
	var pubsubClient *pubsub.Client
	if cfg.Events.OrderEventTopic != "" {
		projectID := cfg.Events.ProjectID
		if projectID == "" {
			projectID = cfg.Firestore.ProjectID
		}
		pubsubClient, err = pubsub.NewClient(ctx, projectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		publisher, err := jobs.NewPubSubOrderEventPublisher(pubsubClient.Topic(cfg.Events.OrderEventTopic))
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		events = publisher
	}
	defer func() {
		if pubsubClient != nil {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}
	}()

	container, err := di.NewContainer(ctx, cfg, registry, di.Options{
		Events: events,
		Logger: logger.Named("orders"),
	})
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}

	orderHandlers := handlers.NewOrderHandlers(container.Authenticator, container.Services.Orders)
	voucherHandlers := handlers.NewVoucherHandlers(container.Authenticator, container.Services.Vouchers)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithReadinessCheck(registry.Health().Check),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RequestLoggerMiddleware(),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithVoucherRoutes(voucherHandlers.Routes),
		handlers.WithAdminMiddlewares(container.Authenticator.RequireAdmin()),
		handlers.WithAdminRoutes(func(r chi.Router) {
			r.Route("/vouchers", voucherHandlers.AdminRoutes)
			r.Route("/orders", orderHandlers.AdminRoutes)
		}),
	)

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
		serverLogger.Info("hdshop api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
