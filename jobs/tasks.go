package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries permission refreshes so they are not starved by
	// document generation.
	QueueCritical = "critical"

	// TaskPermissionsRefresh rebuilds the materialized permission view.
	TaskPermissionsRefresh = "rbac:permissions:refresh"
	// TaskContractGenerate renders a contract document through the automation webhook.
	TaskContractGenerate = "contract:generate"
)

// PermissionsRefreshPayload records why a refresh was requested.
type PermissionsRefreshPayload struct {
	Reason string `json:"reason"`
}

// NewPermissionsRefreshTask constructs a refresh task. Tasks are never
// deduplicated: a refresh already running may predate the mutation that
// enqueued the next one.
func NewPermissionsRefreshTask(reason string) (*asynq.Task, error) {
	if reason == "" {
		reason = "mutation"
	}
	body, err := json.Marshal(PermissionsRefreshPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionsRefresh, body,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(5),
		asynq.Timeout(2*time.Minute),
	), nil
}

// ContractGeneratePayload identifies the contract to render.
type ContractGeneratePayload struct {
	ContractID  int64 `json:"contract_id"`
	RequestedBy int64 `json:"requested_by"`
}

// NewContractGenerateTask constructs a document generation task.
func NewContractGenerateTask(contractID, requestedBy int64) (*asynq.Task, error) {
	if contractID <= 0 {
		return nil, errors.New("jobs: contract id required")
	}
	body, err := json.Marshal(ContractGeneratePayload{ContractID: contractID, RequestedBy: requestedBy})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskContractGenerate, body,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
	), nil
}

func decodePayload(task *asynq.Task, target any) error {
	if len(task.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(task.Payload(), target); err != nil {
		return fmt.Errorf("jobs: decode %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	return nil
}
