package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/contracthub/contracthub/internal/app"
	"github.com/contracthub/contracthub/internal/contracts"
	jobmetrics "github.com/contracthub/contracthub/internal/jobs"
	"github.com/contracthub/contracthub/internal/platform/cache"
	"github.com/contracthub/contracthub/internal/platform/db"
	"github.com/contracthub/contracthub/internal/rbac"
	"github.com/contracthub/contracthub/jobs"
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

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)

	// Refreshing here publishes a bump so every API process reloads its snapshot.
	rbacStore := rbac.NewPGStore(pool)
	view := rbac.NewMaterializedView(rbacStore, logger,
		rbac.WithBus(rbac.NewRedisBus(redisClient, cfg.RBACInvalidationChannel, logger)),
		rbac.WithMaxStaleness(cfg.RBACViewMaxStaleness),
	)
	refreshJob := jobs.NewPermissionsRefreshJob(view, logger, metrics)

	var renderer contracts.Renderer
	if cfg.ContractWebhookURL != "" {
		renderer = contracts.NewWebhookClient(cfg.ContractWebhookURL, cfg.ContractWebhookSecret, cfg.WebhookTimeout)
	} else {
		logger.Warn("contract webhook not configured, generation tasks will fail")
	}
	contractsService := contracts.NewService(contracts.NewRepository(pool), nil, renderer, nil, logger)
	generateJob := jobs.NewContractGenerateJob(contractsService, logger, metrics)

	refreshTask, err := jobs.NewPermissionsRefreshTask("cron")
	if err != nil {
		logger.Error("build refresh task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cfg.Redis().QueueOpt(),
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPermissionsRefresh, Handler: refreshJob.Handle},
			{Type: jobs.TaskContractGenerate, Handler: generateJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RBACRefreshCron, Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
