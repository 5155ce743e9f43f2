package resolution

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/setu-health/terminology/pkg/common/models"
	"gorm.io/datatypes"
)

// Job lifecycle. Transitions only move forward:
// pending -> processing -> completed | failed.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// IsTerminal reports whether a job in this status can never change again.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// JobModel is the persisted form of a resolution job.
type JobModel struct {
	ID           uint           `gorm:"primaryKey"`
	JobID        uuid.UUID      `gorm:"type:uuid;uniqueIndex;not null"`
	Status       string         `gorm:"index;not null"`
	InputText    string         `gorm:"type:text;not null"`
	Result       datatypes.JSON `gorm:"type:jsonb"`
	DroppedCount int            `gorm:"default:0"`
	ErrorMessage string         `gorm:"type:text"`
	CreatedBy    string         `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

func (JobModel) TableName() string {
	return "resolution_jobs"
}

func (m *JobModel) toDomain() models.ResolutionJob {
	job := models.ResolutionJob{
		JobID:        m.JobID,
		Status:       m.Status,
		InputText:    m.InputText,
		DroppedCount: m.DroppedCount,
		Error:        m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
		CompletedAt:  m.CompletedAt,
	}

	if len(m.Result) > 0 {
		var results []models.ValidatedResult
		if err := json.Unmarshal(m.Result, &results); err == nil {
			job.Result = results
		}
	}
	return job
}
