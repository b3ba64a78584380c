package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCostRefresh re-fetches unit costs of recently sold variants.
	TaskCostRefresh = "costs:refresh"
	// TaskReportWarmup precomputes the current and previous month reports.
	TaskReportWarmup = "reports:warmup"
)

// CostRefreshPayload configures a cost refresh run. Zero fields fall back to the job defaults.
type CostRefreshPayload struct {
	LookbackHours int     `json:"lookback_hours,omitempty"`
	VariantIDs    []int64 `json:"variant_ids,omitempty"`
}

// ReportWarmupPayload configures a report warmup run.
type ReportWarmupPayload struct {
	RepKey string `json:"rep_key,omitempty"`
	// SkipPrevious warms only the month to date.
	SkipPrevious bool `json:"skip_previous,omitempty"`
}

// NewCostRefreshTask constructs a cost refresh task.
func NewCostRefreshTask(payload CostRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal cost refresh payload: %w", err)
	}
	return asynq.NewTask(TaskCostRefresh, data), nil
}

// NewReportWarmupTask constructs a report warmup task.
func NewReportWarmupTask(payload ReportWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal report warmup payload: %w", err)
	}
	return asynq.NewTask(TaskReportWarmup, data), nil
}

// NewTaskByName builds a task with the default payload for a task type.
func NewTaskByName(name string) (*asynq.Task, error) {
	switch name {
	case TaskCostRefresh:
		return NewCostRefreshTask(CostRefreshPayload{})
	case TaskReportWarmup:
		return NewReportWarmupTask(ReportWarmupPayload{})
	default:
		return nil, fmt.Errorf("jobs: unsupported task %q", name)
	}
}

func decodePayload(t *asynq.Task, dest any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), dest); err != nil {
		return fmt.Errorf("jobs: decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}
