package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/setu-health/terminology/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type entryModel struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Actor     string            `gorm:"index;not null"`
	Action    string            `gorm:"index;not null"`
	Resource  string            `gorm:"index"`
	Details   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"index"`
}

func (entryModel) TableName() string {
	return "audit_logs"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(&entryModel{})
}

func (r *Repository) Insert(ctx context.Context, entry models.AuditEntry) error {
	row := entryModel{
		ID:        entry.ID,
		Actor:     entry.Actor,
		Action:    entry.Action,
		Resource:  entry.Resource,
		Details:   datatypes.JSONMap(entry.Details),
		CreatedAt: entry.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *Repository) List(ctx context.Context, limit, offset int) ([]models.AuditEntry, error) {
	var rows []entryModel
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]models.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, models.AuditEntry{
			ID:        row.ID,
			Actor:     row.Actor,
			Action:    row.Action,
			Resource:  row.Resource,
			Details:   map[string]interface{}(row.Details),
			CreatedAt: row.CreatedAt,
		})
	}
	return entries, nil
}
