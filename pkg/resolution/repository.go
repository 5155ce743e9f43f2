package resolution

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/setu-health/terminology/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition means the job was not in the expected status,
	// usually because another worker claimed it first or it already
	// reached a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store persists resolution jobs.
type Store interface {
	Create(job *JobModel) error
	Get(jobID uuid.UUID) (models.ResolutionJob, error)
	List(limit, offset int) ([]models.ResolutionJob, error)
	Transition(jobID uuid.UUID, from, to string) error
	Complete(jobID uuid.UUID, result datatypes.JSON, dropped int) error
	Fail(jobID uuid.UUID, message string) error
}

// Repository is the gorm-backed Store.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(&JobModel{})
}

func (r *Repository) Create(job *JobModel) error {
	return r.db.Create(job).Error
}

func (r *Repository) Get(jobID uuid.UUID) (models.ResolutionJob, error) {
	var m JobModel
	err := r.db.Where("job_id = ?", jobID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ResolutionJob{}, ErrJobNotFound
	}
	if err != nil {
		return models.ResolutionJob{}, err
	}
	return m.toDomain(), nil
}

func (r *Repository) List(limit, offset int) ([]models.ResolutionJob, error) {
	var rows []JobModel
	err := r.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	jobs := make([]models.ResolutionJob, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, rows[i].toDomain())
	}
	return jobs, nil
}

// Transition moves a job from one status to another with a compare-and-swap
// on the current status. A second worker racing on the same job loses the
// swap and gets ErrInvalidTransition.
func (r *Repository) Transition(jobID uuid.UUID, from, to string) error {
	res := r.db.Model(&JobModel{}).
		Where("job_id = ? AND status = ?", jobID, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(jobID); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// Complete finishes a processing job with its validated results.
func (r *Repository) Complete(jobID uuid.UUID, result datatypes.JSON, dropped int) error {
	now := time.Now().UTC()
	res := r.db.Model(&JobModel{}).
		Where("job_id = ? AND status = ?", jobID, StatusProcessing).
		Updates(map[string]interface{}{
			"status":        StatusCompleted,
			"result":        result,
			"dropped_count": dropped,
			"completed_at":  &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(jobID); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// Fail marks a processing job as failed with an operator-readable message.
func (r *Repository) Fail(jobID uuid.UUID, message string) error {
	now := time.Now().UTC()
	res := r.db.Model(&JobModel{}).
		Where("job_id = ? AND status = ?", jobID, StatusProcessing).
		Updates(map[string]interface{}{
			"status":        StatusFailed,
			"error_message": message,
			"completed_at":  &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(jobID); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}
