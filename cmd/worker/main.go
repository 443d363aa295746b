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

	"github.com/guilhermemayrinkal/agribackend/internal/app"
	"github.com/guilhermemayrinkal/agribackend/internal/inventory"
	jobmetrics "github.com/guilhermemayrinkal/agribackend/internal/jobs"
	"github.com/guilhermemayrinkal/agribackend/internal/notification"
	"github.com/guilhermemayrinkal/agribackend/internal/observability"
	"github.com/guilhermemayrinkal/agribackend/internal/platform/cache"
	"github.com/guilhermemayrinkal/agribackend/internal/platform/db"
	"github.com/guilhermemayrinkal/agribackend/internal/realtime"
	"github.com/guilhermemayrinkal/agribackend/internal/subscription"
	"github.com/guilhermemayrinkal/agribackend/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns, ApplicationName: "agribackend-worker"})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	notificationService := notification.NewService(
		notification.NewRepository(pool),
		subscription.NewResolver(subscription.NewRepository(pool), logger),
		realtime.NewPublisher(redisClient, cfg.RealtimeChannelPrefix),
		notification.ServiceConfig{Logger: logger, Metrics: metrics},
	)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	alertJob := jobs.NewLowStockAlertJob(notificationService, logger, jobMetrics, cfg.Locale())
	scanJob := jobs.NewLowStockScanJob(inventory.NewRepository(pool), client, logger, jobMetrics)

	var cron []jobs.CronRegistration
	if cfg.LowStockAlerts && cfg.LowStockScanCron != "" {
		scanTask, err := jobs.NewLowStockScanTask(time.Now().UTC(), "")
		if err != nil {
			logger.Error("build low stock scan task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.LowStockScanCron, Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInventoryLowStock, Handler: alertJob.Handle},
			{Type: jobs.TaskInventoryLowStockScan, Handler: scanJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
	}
}
