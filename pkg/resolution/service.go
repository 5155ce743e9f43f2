package resolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/setu-health/terminology/pkg/common/logger"
	"github.com/setu-health/terminology/pkg/common/models"
	"github.com/setu-health/terminology/pkg/icd"
	"github.com/setu-health/terminology/pkg/llm"
	"github.com/setu-health/terminology/pkg/observability/metrics"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Suggester proposes candidate diagnoses for free-text symptoms.
type Suggester interface {
	Suggest(ctx context.Context, prompt string) ([]llm.Suggestion, error)
}

// Searcher finds ICD-11 candidates for a biomedical term.
type Searcher interface {
	Search(ctx context.Context, term string, limit int) ([]models.ICD11Candidate, error)
}

// Vocabulary is the read side of the NAMASTE index.
type Vocabulary interface {
	Loaded() bool
	Lookup(term string) (models.VocabularyEntry, bool, error)
	Entries() []models.VocabularyEntry
}

// Auditor records audit entries; failures are the auditor's problem.
type Auditor interface {
	Record(ctx context.Context, actor, action, resource string, details map[string]interface{})
}

// Service owns the asynchronous resolution pipeline.
type Service struct {
	store     Store
	vocab     Vocabulary
	suggester Suggester
	searcher  Searcher
	audit     Auditor

	workerSem  chan struct{}
	llmTimeout time.Duration
	whoLimit   int
}

func NewService(store Store, vocab Vocabulary, suggester Suggester, searcher Searcher, audit Auditor, maxWorkers int, llmTimeout time.Duration, whoLimit int) *Service {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if whoLimit <= 0 {
		whoLimit = 5
	}
	return &Service{
		store:      store,
		vocab:      vocab,
		suggester:  suggester,
		searcher:   searcher,
		audit:      audit,
		workerSem:  make(chan struct{}, maxWorkers),
		llmTimeout: llmTimeout,
		whoLimit:   whoLimit,
	}
}

// Create persists a pending job and kicks off background processing. The
// returned job is the pending snapshot; callers poll Get for the outcome.
func (s *Service) Create(ctx context.Context, actor, symptoms string) (models.ResolutionJob, error) {
	symptoms = strings.TrimSpace(symptoms)
	if symptoms == "" {
		return models.ResolutionJob{}, errors.New("symptoms must not be empty")
	}

	job := &JobModel{
		JobID:     uuid.New(),
		Status:    StatusPending,
		InputText: symptoms,
		CreatedBy: actor,
	}
	if err := s.store.Create(job); err != nil {
		return models.ResolutionJob{}, fmt.Errorf("create job: %w", err)
	}

	if s.audit != nil {
		s.audit.Record(ctx, actor, "resolution-job-created", job.JobID.String(), map[string]interface{}{
			"input_length": len(symptoms),
		})
	}

	go s.run(job.JobID, symptoms)

	return job.toDomain(), nil
}

func (s *Service) Get(jobID uuid.UUID) (models.ResolutionJob, error) {
	return s.store.Get(jobID)
}

func (s *Service) List(limit, offset int) ([]models.ResolutionJob, error) {
	return s.store.List(limit, offset)
}

func (s *Service) run(jobID uuid.UUID, symptoms string) {
	s.workerSem <- struct{}{}
	defer func() { <-s.workerSem }()

	log := logger.WithField("job_id", jobID.String())

	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Error("Resolution worker panicked")
			s.fail(jobID, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	if err := s.store.Transition(jobID, StatusPending, StatusProcessing); err != nil {
		log.WithError(err).Warn("Could not claim job")
		return
	}

	ctx := context.Background()
	results, dropped, err := s.resolve(ctx, symptoms)
	if err != nil {
		log.WithError(err).Error("Resolution failed")
		s.fail(jobID, err.Error())
		return
	}

	payload, err := json.Marshal(results)
	if err != nil {
		s.fail(jobID, fmt.Sprintf("encode results: %v", err))
		return
	}

	if err := s.store.Complete(jobID, datatypes.JSON(payload), dropped); err != nil {
		log.WithError(err).Error("Could not complete job")
		return
	}
	metrics.JobCompleted()

	log.WithFields(logrus.Fields{
		"results": len(results),
		"dropped": dropped,
	}).Info("Resolution job completed")
}

func (s *Service) fail(jobID uuid.UUID, message string) {
	if err := s.store.Fail(jobID, message); err != nil {
		logger.WithError(err).WithField("job_id", jobID.String()).Error("Could not fail job")
		return
	}
	metrics.JobFailed()
}

// resolve runs the full pipeline: suggest, validate against the vocabulary,
// enrich survivors with WHO candidates. The returned error fails the job;
// unparsable model output does not.
func (s *Service) resolve(ctx context.Context, symptoms string) ([]models.ValidatedResult, int, error) {
	if s.vocab == nil || !s.vocab.Loaded() {
		return nil, 0, errors.New("vocabulary not loaded")
	}

	suggestions, err := s.suggest(ctx, symptoms)
	if errors.Is(err, llm.ErrModelOutput) {
		logger.Log.Warn("Discarding unparsable model output")
		return []models.ValidatedResult{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("suggest diagnoses: %w", err)
	}

	results := make([]models.ValidatedResult, 0, len(suggestions))
	dropped := 0

	for _, suggestion := range suggestions {
		entry, ok, err := s.vocab.Lookup(suggestion.Diagnosis)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			// The model invented a term outside the vocabulary. Drop it
			// rather than surface an unverifiable diagnosis.
			dropped++
			metrics.ValidationDropped()
			logger.WithField("diagnosis", suggestion.Diagnosis).Info("Dropped unvalidated diagnosis")
			continue
		}

		result := models.ValidatedResult{
			Diagnosis:         entry.TraditionalTerm,
			NamasteCode:       entry.Code,
			ICDMapping:        entry.TraditionalTerm,
			BiomedicalMapping: entry.BiomedicalTerm,
			Reasoning:         suggestion.Reasoning,
		}

		if s.searcher != nil {
			candidates, err := s.enrich(ctx, entry)
			if err != nil {
				return nil, 0, err
			}
			result.Candidates = candidates
		}

		results = append(results, result)
	}

	return results, dropped, nil
}

// enrich searches WHO for ICD-11 candidates. Auth failures abort the job;
// ordinary service failures degrade to an empty candidate list.
func (s *Service) enrich(ctx context.Context, entry models.VocabularyEntry) ([]models.ICD11Candidate, error) {
	term := entry.BiomedicalTerm
	if term == "" {
		term = entry.TraditionalTerm
	}

	candidates, err := s.searcher.Search(ctx, term, s.whoLimit)
	if err != nil {
		var authErr *icd.AuthError
		if errors.As(err, &authErr) {
			return nil, fmt.Errorf("who credentials rejected: %w", err)
		}
		logger.WithError(err).WithField("term", term).Warn("WHO enrichment degraded")
		return nil, nil
	}
	return candidates, nil
}

// suggest asks the model, or falls back to direct term matching when no
// model is configured.
func (s *Service) suggest(ctx context.Context, symptoms string) ([]llm.Suggestion, error) {
	if s.suggester == nil {
		return s.directMatch(symptoms), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.llmTimeout)
	defer cancel()

	return s.suggester.Suggest(ctx, BuildPrompt(s.vocab.Entries(), symptoms))
}

// directMatch scans the symptom text for vocabulary terms. Crude, but it
// keeps the pipeline useful without model credentials.
func (s *Service) directMatch(symptoms string) []llm.Suggestion {
	text := strings.ToLower(symptoms)

	var suggestions []llm.Suggestion
	for _, entry := range s.vocab.Entries() {
		term := strings.ToLower(entry.TraditionalTerm)
		bio := strings.ToLower(entry.BiomedicalTerm)
		if strings.Contains(text, term) || (bio != "" && strings.Contains(text, bio)) {
			suggestions = append(suggestions, llm.Suggestion{
				Diagnosis: entry.TraditionalTerm,
				Reasoning: "matched directly in symptom text",
			})
		}
	}
	return suggestions
}
