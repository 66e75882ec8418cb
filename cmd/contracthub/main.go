package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/contracthub/contracthub/internal/app"
	"github.com/contracthub/contracthub/internal/attendance"
	"github.com/contracthub/contracthub/internal/auth"
	"github.com/contracthub/contracthub/internal/contracts"
	"github.com/contracthub/contracthub/internal/observability"
	"github.com/contracthub/contracthub/internal/platform/cache"
	"github.com/contracthub/contracthub/internal/platform/db"
	"github.com/contracthub/contracthub/internal/platform/objectstore"
	"github.com/contracthub/contracthub/internal/parties"
	"github.com/contracthub/contracthub/internal/permits"
	"github.com/contracthub/contracthub/internal/promoters"
	"github.com/contracthub/contracthub/internal/rbac"
	"github.com/contracthub/contracthub/internal/roles"
	"github.com/contracthub/contracthub/internal/shared"
	"github.com/contracthub/contracthub/internal/users"
	"github.com/contracthub/contracthub/jobs"
)

const sessionCookie = "contracthub_session"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	logger := app.NewLogger(cfg)

	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve":
		return serve(ctx, cfg, logger)
	case "migrate":
		return runMigrate(ctx, cfg, logger)
	case "rbac":
		return runRBAC(ctx, cfg, logger, args)
	case "jobs":
		return runJobs(ctx, cfg, args)
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command %q (serve, migrate, rbac, jobs)\n", command)
		return 2
	}
}

// permissionStack is the RBAC wiring shared by the server and the CLI.
type permissionStack struct {
	store     *rbac.PGStore
	view      *rbac.MaterializedView
	refresher rbac.Refresher
	service   *rbac.Service
	loader    *rbac.Loader
	metrics   *rbac.Metrics
}

func newPermissionStack(cfg *app.Config, logger *slog.Logger, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics, refresher rbac.Refresher) permissionStack {
	store := rbac.NewPGStore(pool)
	rbacMetrics := rbac.NewMetrics(metrics.Registerer())
	bus := rbac.NewRedisBus(redisClient, cfg.RBACInvalidationChannel, logger)
	view := rbac.NewMaterializedView(store, logger,
		rbac.WithBus(bus),
		rbac.WithMaxStaleness(cfg.RBACViewMaxStaleness),
		rbac.WithViewMetrics(rbacMetrics),
	)
	if refresher == nil {
		refresher = view
	}
	return permissionStack{
		store:     store,
		view:      view,
		refresher: refresher,
		service:   rbac.NewService(store, refresher, logger),
		loader:    rbac.NewLoader(view, store, logger, rbacMetrics),
		metrics:   rbacMetrics,
	}
}

func connect(ctx context.Context, cfg *app.Config) (*pgxpool.Pool, *redis.Client, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, nil, err
	}
	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, redisClient, nil
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	pool, redisClient, err := connect(ctx, cfg)
	if err != nil {
		logger.Error("connect backends", slog.Any("error", err))
		return 1
	}
	defer pool.Close()
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := cfg.Redis().QueueOpt()
	jobsClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	var refresher rbac.Refresher
	if cfg.RBACRefreshMode == app.RefreshQueue {
		refresher = rbac.RefresherFunc(jobsClient.EnqueuePermissionsRefresh)
	}
	perms := newPermissionStack(cfg, logger, pool, redisClient, metrics, refresher)
	if err := perms.view.Reload(ctx); err != nil {
		// The loader falls back to the live join until the first reload succeeds.
		logger.Warn("initial permission view load", slog.Any("error", err))
	}
	go func() {
		if err := perms.view.Watch(ctx); err != nil && ctx.Err() == nil {
			logger.Error("permission view watch", slog.Any("error", err))
		}
	}()
	guard := rbac.Guard{Source: perms.loader, Logger: logger, Metrics: perms.metrics}

	sessionManager := shared.NewSessionManager(redisClient, sessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	authService := auth.NewService(auth.NewRepository(pool))
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, perms.loader)

	usersService := users.NewService(users.NewRepository(pool), perms.service, perms.refresher, auditLogger, logger)
	rolesService := roles.NewService(perms.service, roles.NewRepository(pool), auditLogger, logger)

	var renderer contracts.Renderer
	if cfg.ContractWebhookURL != "" {
		renderer = contracts.NewWebhookClient(cfg.ContractWebhookURL, cfg.ContractWebhookSecret, cfg.WebhookTimeout)
	}
	contractsService := contracts.NewService(contracts.NewRepository(pool), jobsClient, renderer, idempotencyStore, logger)

	var files objectstore.Store
	if cfg.ObjectStoreEnabled() {
		s3Store, err := objectstore.NewS3Store(ctx, objectstore.Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
			MaxBytes:     promoters.MaxUploadBytes,
		})
		if err != nil {
			logger.Error("init object store", slog.Any("error", err))
			return 1
		}
		files = s3Store
	} else {
		logger.Warn("object store not configured, document uploads disabled")
	}
	promoterRepo := promoters.NewRepository(pool)
	promotersService := promoters.NewService(promoterRepo, files, logger)
	partiesService := parties.NewService(parties.NewRepository(pool), logger)
	permitsService := permits.NewService(permits.NewRepository(pool), promoterRepo, logger)
	attendanceService := attendance.NewService(attendance.NewRepository(pool), logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Metrics:        metrics,
		Readiness: map[string]app.ReadinessCheck{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
		AuthHandler:        authHandler,
		UsersHandler:       users.NewHandler(logger, usersService, guard),
		RolesHandler:       roles.NewHandler(logger, rolesService, guard),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, perms.service, perms.view, guard),
		ContractsHandler:   contracts.NewHandler(logger, contractsService, guard),
		PromotersHandler:   promoters.NewHandler(logger, promotersService, guard),
		PartiesHandler:     parties.NewHandler(logger, partiesService, guard),
		PermitsHandler:     permits.NewHandler(logger, permitsService, guard),
		AttendanceHandler:  attendance.NewHandler(logger, attendanceService, guard),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("rbac_refresh_mode", cfg.RBACRefreshMode))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	code := 0
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logger.Error("http server", slog.Any("error", err))
		code = 1
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		code = 1
	}
	return code
}
