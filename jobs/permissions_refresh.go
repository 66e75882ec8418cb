package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/contracthub/contracthub/internal/jobs"
)

// ViewRefresher rebuilds the effective permission view.
type ViewRefresher interface {
	Refresh(ctx context.Context) error
}

// PermissionsRefreshJob handles TaskPermissionsRefresh.
type PermissionsRefreshJob struct {
	View    ViewRefresher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPermissionsRefreshJob constructs the job handler.
func NewPermissionsRefreshJob(view ViewRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *PermissionsRefreshJob {
	return &PermissionsRefreshJob{View: view, Logger: logger, Metrics: metrics}
}

// Handle refreshes the view once per task.
func (j *PermissionsRefreshJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.View == nil {
		return errors.New("jobs: permissions refresh not configured")
	}
	var payload PermissionsRefreshPayload
	if err := decodePayload(task, &payload); err != nil {
		return err
	}
	tracker := j.Metrics.Track(TaskPermissionsRefresh)
	start := time.Now()
	err := j.View.Refresh(ctx)
	if j.Logger != nil {
		if err != nil {
			j.Logger.Error("refresh permission view", slog.String("reason", payload.Reason), slog.Any("error", err))
		} else {
			j.Logger.Info("refreshed permission view",
				slog.String("reason", payload.Reason),
				slog.Duration("took", time.Since(start)))
		}
	}
	return tracker.End(err)
}
