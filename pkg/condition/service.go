package condition

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/setu-health/terminology/pkg/common/models"
)

// Auditor records audit entries for condition writes.
type Auditor interface {
	Record(ctx context.Context, actor, action, resource string, details map[string]interface{})
}

type Service struct {
	repo  *Repository
	audit Auditor
}

func NewService(repo *Repository, audit Auditor) *Service {
	return &Service{repo: repo, audit: audit}
}

// Generate builds a dual-coded FHIR Condition, stores it, and returns the
// resource.
func (s *Service) Generate(ctx context.Context, actor string, req models.ConditionCreateRequest) (map[string]interface{}, error) {
	if strings.TrimSpace(req.PatientID) == "" {
		return nil, fmt.Errorf("patient_id required")
	}
	if req.NamasteCode == "" && req.ICDCode == "" {
		return nil, fmt.Errorf("at least one of namaste_code or icd_code required")
	}

	id := uuid.New()
	resource := BuildCondition(id, CodedCondition{
		PatientID:      req.PatientID,
		NamasteCode:    req.NamasteCode,
		NamasteDisplay: req.NamasteDisplay,
		ICDCode:        req.ICDCode,
		ICDDisplay:     req.ICDDisplay,
	})

	err := s.repo.Insert(ctx, models.Condition{
		ID:             id,
		PatientID:      req.PatientID,
		NamasteCode:    req.NamasteCode,
		NamasteDisplay: req.NamasteDisplay,
		ICDCode:        req.ICDCode,
		ICDDisplay:     req.ICDDisplay,
		Source:         "generated",
		CreatedBy:      actor,
		RawFHIR:        resource,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("store condition: %w", err)
	}

	if s.audit != nil {
		s.audit.Record(ctx, actor, "condition-generated", id.String(), map[string]interface{}{
			"patient_id":   req.PatientID,
			"namaste_code": req.NamasteCode,
			"icd_code":     req.ICDCode,
		})
	}

	return resource, nil
}

// StoreBundle ingests the dual-coded Conditions from a FHIR Bundle and
// returns how many were stored.
func (s *Service) StoreBundle(ctx context.Context, actor string, body io.Reader) (int, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return 0, fmt.Errorf("read bundle: %w", err)
	}

	coded, err := ExtractConditions(raw)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, c := range coded {
		id := uuid.New()
		err := s.repo.Insert(ctx, models.Condition{
			ID:             id,
			PatientID:      c.PatientID,
			NamasteCode:    c.NamasteCode,
			NamasteDisplay: c.NamasteDisplay,
			ICDCode:        c.ICDCode,
			ICDDisplay:     c.ICDDisplay,
			Source:         "bundle",
			CreatedBy:      actor,
			RawFHIR:        c.Raw,
			CreatedAt:      time.Now().UTC(),
		})
		if err != nil {
			return stored, fmt.Errorf("store bundle condition: %w", err)
		}
		stored++

		if s.audit != nil {
			s.audit.Record(ctx, actor, "bundle-condition-store", id.String(), map[string]interface{}{
				"patient_id":   c.PatientID,
				"namaste_code": c.NamasteCode,
				"icd_code":     c.ICDCode,
			})
		}
	}

	return stored, nil
}

func (s *Service) List(ctx context.Context, patientID string, limit, offset int) ([]models.Condition, error) {
	return s.repo.List(ctx, patientID, limit, offset)
}
