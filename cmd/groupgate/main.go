package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/groupgate/groupgate/internal/access"
	"github.com/groupgate/groupgate/internal/app"
	"github.com/groupgate/groupgate/internal/capabilities"
	"github.com/groupgate/groupgate/internal/closure"
	"github.com/groupgate/groupgate/internal/events"
	"github.com/groupgate/groupgate/internal/groups"
	"github.com/groupgate/groupgate/internal/identity"
	"github.com/groupgate/groupgate/internal/observability"
	"github.com/groupgate/groupgate/internal/platform/cache"
	"github.com/groupgate/groupgate/internal/platform/db"
	"github.com/groupgate/groupgate/internal/relations"
	"github.com/groupgate/groupgate/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	// The fanout is built empty and services publish through it; invalidators
	// and sinks are registered below, before the server accepts traffic.
	fanout := events.NewFanout()

	groupsRepo := groups.NewRepository(pool)
	groupsService := groups.NewService(groupsRepo, fanout, logger)

	capabilitiesRepo := capabilities.NewRepository(pool)
	capabilitiesService := capabilities.NewService(capabilitiesRepo, fanout, logger)

	relationsRepo := relations.NewRepository(pool)
	relationsService := relations.NewService(relationsRepo, fanout, logger)

	closureStore := closure.NewStore(pool)
	closureCache := closure.NewCache(redisClient, metrics)
	closureService := closure.NewService(closureStore, closureCache, capabilitiesService, logger)

	resolver := identity.NewStaticResolver(cfg.PrivilegedUserIDs)
	accessRepo := access.NewRepository(pool)
	accessService := access.NewService(accessRepo, closureService, resolver, closureCache, fanout, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobsClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	// Cache invalidators run first so coherence is restored before the audit
	// sink observes the mutation.
	fanout.Register(closureService)
	fanout.Register(accessService)
	fanout.Register(jobs.NewAuditPublisher(jobsClient, logger))

	if err := groupsService.EnsureSeed(ctx); err != nil {
		logger.Error("seed reserved group", slog.Any("error", err))
		os.Exit(1)
	}
	if err := capabilitiesService.EnsureSeed(ctx); err != nil {
		logger.Error("seed reserved capability", slog.Any("error", err))
		os.Exit(1)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		GroupsHandler:       groups.NewHandler(logger, groupsService),
		CapabilitiesHandler: capabilities.NewHandler(logger, capabilitiesService),
		RelationsHandler:    relations.NewHandler(logger, relationsService),
		ClosureHandler:      closure.NewHandler(logger, closureService),
		AccessHandler:       access.NewHandler(logger, accessService),
		JobHandler:          jobs.NewHandler(asynq.NewInspector(redisOpts), logger),
		Pool:                pool,
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
