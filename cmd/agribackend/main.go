package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/guilhermemayrinkal/agribackend/internal/adjustment"
	"github.com/guilhermemayrinkal/agribackend/internal/app"
	"github.com/guilhermemayrinkal/agribackend/internal/auth"
	"github.com/guilhermemayrinkal/agribackend/internal/notification"
	"github.com/guilhermemayrinkal/agribackend/internal/observability"
	"github.com/guilhermemayrinkal/agribackend/internal/platform/cache"
	"github.com/guilhermemayrinkal/agribackend/internal/platform/db"
	"github.com/guilhermemayrinkal/agribackend/internal/realtime"
	"github.com/guilhermemayrinkal/agribackend/internal/shared"
	"github.com/guilhermemayrinkal/agribackend/internal/subscription"
	"github.com/guilhermemayrinkal/agribackend/jobs"
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

	dbpool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns, ApplicationName: "agribackend"})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
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
	auditLogger := shared.NewAuditLogger(dbpool)
	sessions := auth.NewSessionStore(redisClient, cfg.SessionTTL)
	publisher := realtime.NewPublisher(redisClient, cfg.RealtimeChannelPrefix)
	permissions := subscription.NewResolver(subscription.NewRepository(dbpool), logger)

	notificationService := notification.NewService(notification.NewRepository(dbpool), permissions, publisher, notification.ServiceConfig{
		PageSize:    cfg.NotificationPageSize,
		MaxPageSize: cfg.NotificationMaxPageSize,
		Logger:      logger,
		Metrics:     metrics,
	})

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	adjustmentCfg := adjustment.ServiceConfig{
		Logger:      logger,
		Metrics:     metrics,
		Audit:       auditLogger,
		Idempotency: shared.NewIdempotencyStore(dbpool),
	}
	if cfg.LowStockAlerts {
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		adjustmentCfg.LowStock = jobClient
	}
	adjustmentService := adjustment.NewService(adjustment.NewRepository(dbpool), adjustmentCfg)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		Sessions:            sessions,
		NotificationHandler: notification.NewHandler(logger, notificationService),
		AdjustmentHandler:   adjustment.NewHandler(logger, adjustmentService),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
}
