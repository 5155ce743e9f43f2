package condition

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/setu-health/terminology/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type conditionModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	PatientID      string    `gorm:"index;not null"`
	NamasteCode    string    `gorm:"index"`
	NamasteDisplay string
	ICDCode        string `gorm:"index"`
	ICDDisplay     string
	Source         string `gorm:"index"`
	CreatedBy      string
	RawFHIR        datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time
}

func (conditionModel) TableName() string {
	return "conditions"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(&conditionModel{})
}

func (r *Repository) Insert(ctx context.Context, condition models.Condition) error {
	row := conditionModel{
		ID:             condition.ID,
		PatientID:      condition.PatientID,
		NamasteCode:    condition.NamasteCode,
		NamasteDisplay: condition.NamasteDisplay,
		ICDCode:        condition.ICDCode,
		ICDDisplay:     condition.ICDDisplay,
		Source:         condition.Source,
		CreatedBy:      condition.CreatedBy,
		CreatedAt:      condition.CreatedAt,
	}
	if condition.RawFHIR != nil {
		if payload, err := json.Marshal(condition.RawFHIR); err == nil {
			row.RawFHIR = datatypes.JSON(payload)
		}
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *Repository) List(ctx context.Context, patientID string, limit, offset int) ([]models.Condition, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Offset(offset)
	if patientID != "" {
		query = query.Where("patient_id = ?", patientID)
	}

	var rows []conditionModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	conditions := make([]models.Condition, 0, len(rows))
	for _, row := range rows {
		conditions = append(conditions, mapConditionModel(row))
	}
	return conditions, nil
}

func mapConditionModel(row conditionModel) models.Condition {
	condition := models.Condition{
		ID:             row.ID,
		PatientID:      row.PatientID,
		NamasteCode:    row.NamasteCode,
		NamasteDisplay: row.NamasteDisplay,
		ICDCode:        row.ICDCode,
		ICDDisplay:     row.ICDDisplay,
		Source:         row.Source,
		CreatedBy:      row.CreatedBy,
		CreatedAt:      row.CreatedAt,
	}
	if len(row.RawFHIR) > 0 {
		var raw map[string]interface{}
		if err := json.Unmarshal(row.RawFHIR, &raw); err == nil {
			condition.RawFHIR = raw
		}
	}
	return condition
}
