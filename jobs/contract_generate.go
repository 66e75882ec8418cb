package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/contracthub/contracthub/internal/jobs"
)

// ErrPermanent marks generation failures that retrying cannot fix.
var ErrPermanent = errors.New("jobs: permanent failure")

// ContractGenerator renders a contract document and returns its URL.
type ContractGenerator interface {
	GenerateDocument(ctx context.Context, contractID int64) (string, error)
}

// ContractGenerateJob handles TaskContractGenerate.
type ContractGenerateJob struct {
	Generator ContractGenerator
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewContractGenerateJob constructs the job handler.
func NewContractGenerateJob(generator ContractGenerator, logger *slog.Logger, metrics *jobmetrics.Metrics) *ContractGenerateJob {
	return &ContractGenerateJob{Generator: generator, Logger: logger, Metrics: metrics}
}

// Handle executes one generation request.
func (j *ContractGenerateJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Generator == nil {
		return errors.New("jobs: contract generation not configured")
	}
	var payload ContractGeneratePayload
	if err := decodePayload(task, &payload); err != nil {
		return err
	}
	if payload.ContractID <= 0 {
		return fmt.Errorf("jobs: contract id missing: %w", asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskContractGenerate)
	url, err := j.Generator.GenerateDocument(ctx, payload.ContractID)
	if err != nil {
		if j.Logger != nil {
			j.Logger.Error("generate contract document",
				slog.Int64("contract_id", payload.ContractID),
				slog.Int64("requested_by", payload.RequestedBy),
				slog.Any("error", err))
		}
		if errors.Is(err, ErrPermanent) {
			err = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return tracker.End(err)
	}
	if j.Logger != nil {
		j.Logger.Info("generated contract document",
			slog.Int64("contract_id", payload.ContractID),
			slog.String("document_url", url))
	}
	return tracker.End(nil)
}
