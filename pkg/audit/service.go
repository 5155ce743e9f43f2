package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/setu-health/terminology/pkg/common/kafka"
	"github.com/setu-health/terminology/pkg/common/logger"
	"github.com/setu-health/terminology/pkg/common/models"
	"github.com/setu-health/terminology/pkg/observability/metrics"
)

// Service writes audit entries to Postgres and, when configured, fans them
// out to Kafka. Publishing is best effort: a broker outage never blocks or
// fails the operation being audited.
type Service struct {
	repo     *Repository
	producer *kafka.Producer
}

func NewService(repo *Repository, producer *kafka.Producer) *Service {
	return &Service{repo: repo, producer: producer}
}

// Record stores one audit entry. Persistence failures are logged, not
// returned; auditing must never take down the caller.
func (s *Service) Record(ctx context.Context, actor, action, resource string, details map[string]interface{}) {
	entry := models.AuditEntry{
		ID:        uuid.New(),
		Actor:     actor,
		Action:    action,
		Resource:  resource,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		logger.WithError(err).WithField("action", action).Error("Failed to persist audit entry")
		return
	}
	metrics.AuditEvent()

	if s.producer != nil {
		data := map[string]interface{}{
			"actor":    actor,
			"action":   action,
			"resource": resource,
		}
		if err := s.producer.PublishEvent(ctx, "audit."+action, data); err != nil {
			logger.WithError(err).Warn("Audit fan-out failed")
		}
	}
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]models.AuditEntry, error) {
	return s.repo.List(ctx, limit, offset)
}
