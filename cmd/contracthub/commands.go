package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/contracthub/contracthub/cmd/contracthub/cli"
	"github.com/contracthub/contracthub/internal/app"
	"github.com/contracthub/contracthub/internal/observability"
	"github.com/contracthub/contracthub/internal/platform/db"
	"github.com/contracthub/contracthub/internal/platform/migrate"
	"github.com/contracthub/contracthub/internal/rbac"
)

func runMigrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()
	return cli.MigrateCommand(ctx, func(ctx context.Context) ([]int, error) {
		return migrate.Up(ctx, pool, logger)
	}, cli.MigrateOptions{})
}

func runRBAC(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "usage: contracthub rbac seed|refresh|check [flags]")
		return 2
	}
	sub, args := args[0], args[1:]

	var (
		seedOpts  cli.SeedOptions
		checkOpts cli.CheckOptions
	)
	fs := pflag.NewFlagSet("rbac "+sub, pflag.ContinueOnError)
	switch sub {
	case "seed":
		fs.StringVar(&seedOpts.CatalogPath, "catalog", "", "catalog YAML path (embedded catalog when empty)")
		fs.BoolVar(&seedOpts.JSONOutput, "json", false, "print the seed report as JSON")
	case "refresh":
	case "check":
		fs.Int64Var(&checkOpts.UserID, "user", 0, "user id to evaluate")
		fs.StringSliceVar(&checkOpts.Permissions, "permission", nil, "required permission, repeatable")
		fs.BoolVar(&checkOpts.All, "all", false, "require every permission instead of any")
		fs.BoolVar(&checkOpts.JSONOutput, "json", false, "print the result as JSON")
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown rbac command %q\n", sub)
		return 2
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pool, redisClient, err := connect(ctx, cfg)
	if err != nil {
		logger.Error("connect backends", slog.Any("error", err))
		return 1
	}
	defer pool.Close()
	defer func() { _ = redisClient.Close() }()

	// The CLI always refreshes inline so the command returns after the rebuild.
	perms := newPermissionStack(cfg, logger, pool, redisClient, observability.NewMetrics(), nil)
	live := rbac.PermissionSourceFunc(perms.service.LivePermissions)
	helper := cli.NewRBACCLI(rbac.NewSeeder(perms.store, perms.view, logger), perms.view, live)

	switch sub {
	case "seed":
		return helper.SeedCommand(ctx, seedOpts)
	case "refresh":
		return helper.RefreshCommand(ctx, cli.RefreshOptions{})
	default:
		return helper.CheckCommand(ctx, checkOpts)
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	var opts cli.JobsOptions
	fs := pflag.NewFlagSet("jobs", pflag.ContinueOnError)
	fs.StringVar(&opts.Trigger, "trigger", "", "enqueue a job by task type before printing queue depth")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	helper := cli.NewJobsCLI(cfg.Redis().QueueOpt())
	defer func() { _ = helper.Close() }()
	return helper.JobsCommand(ctx, opts)
}
