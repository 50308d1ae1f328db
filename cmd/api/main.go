package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/storyforge/image-api/internal/handlers"
	"github.com/storyforge/image-api/internal/platform/blob"
	"github.com/storyforge/image-api/internal/platform/config"
	"github.com/storyforge/image-api/internal/platform/dedup"
	"github.com/storyforge/image-api/internal/platform/gemini"
	"github.com/storyforge/image-api/internal/platform/observability"
	"github.com/storyforge/image-api/internal/platform/secrets"
	"github.com/storyforge/image-api/internal/services"
	"github.com/storyforge/image-api/internal/styles"
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

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	var storageOpts []option.ClientOption
	if cfg.Storage.CredentialsFile != "" {
		storageOpts = append(storageOpts, option.WithCredentialsFile(cfg.Storage.CredentialsFile))
	}
	storageClient, err := cloudstorage.NewClient(ctx, storageOpts...)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()

	transfer, err := blob.NewTransfer(blob.Deps{
		Storage:       storageClient,
		DefaultBucket: cfg.Storage.DefaultBucket,
	})
	if err != nil {
		logger.Fatal("failed to initialise blob transfer", zap.Error(err))
	}

	models, err := gemini.NewVertexClient(ctx, cfg.GCP.ProjectID, cfg.GCP.Location, cfg.GCP.APIKey)
	if err != nil {
		logger.Fatal("failed to dial vertex ai", zap.Error(err))
	}
	gateway, err := gemini.NewClient(gemini.Deps{
		Models:      models,
		GeminiModel: cfg.GCP.GeminiModel,
		ImagenModel: cfg.GCP.ImagenModel,
		ImageWidth:  cfg.Image.Width,
		ImageHeight: cfg.Image.Height,
		Logger:      logger.Named("gemini"),
	})
	if err != nil {
		logger.Fatal("failed to initialise model gateway", zap.Error(err))
	}

	store, err := styles.NewStore(cfg.Styles.Dir, styles.WithLogger(logger.Named("styles")))
	if err != nil {
		logger.Fatal("failed to initialise style store", zap.Error(err))
	}

	tracker := dedup.NewTracker(dedup.WithTTL(cfg.Dedup.TTL))

	styleService, err := services.NewStyleService(services.StyleServiceDeps{
		Store:   store,
		Gateway: gateway,
		Blob:    transfer,
		Tracker: tracker,
		Logger:  logger.Named("styles"),
	})
	if err != nil {
		logger.Fatal("failed to initialise style service", zap.Error(err))
	}
	imageService, err := services.NewImageService(services.ImageServiceDeps{
		Store:   store,
		Gateway: gateway,
		Blob:    transfer,
		Tracker: tracker,
		Logger:  logger.Named("images"),
	})
	if err != nil {
		logger.Fatal("failed to initialise image service", zap.Error(err))
	}

	projectID := cfg.GCP.ProjectID
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	styleHandlers := handlers.NewStyleHandlers(styleService)
	imageHandlers := handlers.NewImageHandlers(imageService)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers()),
		handlers.WithStyleRoutes(styleHandlers.Routes),
		handlers.WithImageRoutes(imageHandlers.Routes),
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
		serverLogger.Info("story-image-api listening")
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

// newSecretFetcher builds the Secret Manager fetcher used to resolve
// secret:// references in configuration. The default project comes from the
// environment because configuration itself may depend on the fetcher.
func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	opts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	if project := strings.TrimSpace(os.Getenv("API_GCP_PROJECT_ID")); project != "" {
		opts = append(opts, secrets.WithDefaultProject(project))
	}
	return secrets.NewFetcher(ctx, opts...)
}
