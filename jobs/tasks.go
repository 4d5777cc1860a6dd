package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditPrune removes audit entries older than the retention window.
	TaskAuditPrune = "audit:prune"
)

// AuditPrunePayload carries an optional retention override. Zero means the
// worker's configured retention applies.
type AuditPrunePayload struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

// NewAuditPruneTask constructs an Asynq task.
func NewAuditPruneTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(AuditPrunePayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPrune, data), nil
}
