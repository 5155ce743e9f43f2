package resolution

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/setu-health/terminology/pkg/common/models"
	"github.com/setu-health/terminology/pkg/icd"
	"github.com/setu-health/terminology/pkg/llm"
	"gorm.io/datatypes"
)

// memStore is an in-memory Store with the same compare-and-swap semantics
// as the gorm repository.
type memStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*JobModel
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[uuid.UUID]*JobModel)}
}

func (s *memStore) Create(job *JobModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.CreatedAt = time.Now().UTC()
	copied := *job
	s.jobs[job.JobID] = &copied
	return nil
}

func (s *memStore) Get(jobID uuid.UUID) (models.ResolutionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return models.ResolutionJob{}, ErrJobNotFound
	}
	return job.toDomain(), nil
}

func (s *memStore) List(limit, offset int) ([]models.ResolutionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ResolutionJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.toDomain())
	}
	return out, nil
}

func (s *memStore) Transition(jobID uuid.UUID, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != from {
		return ErrInvalidTransition
	}
	job.Status = to
	return nil
}

func (s *memStore) Complete(jobID uuid.UUID, result datatypes.JSON, dropped int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusProcessing {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	job.Status = StatusCompleted
	job.Result = result
	job.DroppedCount = dropped
	job.CompletedAt = &now
	return nil
}

func (s *memStore) Fail(jobID uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusProcessing {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	job.Status = StatusFailed
	job.ErrorMessage = message
	job.CompletedAt = &now
	return nil
}

// fakeVocab is a tiny fixed vocabulary.
type fakeVocab struct {
	entries []models.VocabularyEntry
}

func newFakeVocab() *fakeVocab {
	return &fakeVocab{entries: []models.VocabularyEntry{
		{Code: "AY001", TraditionalTerm: "Jwara", BiomedicalTerm: "Fever", System: "Ayurveda"},
		{Code: "AY002", TraditionalTerm: "Atisara", BiomedicalTerm: "Diarrhoea", System: "Ayurveda"},
	}}
}

func (v *fakeVocab) Loaded() bool { return true }

func (v *fakeVocab) Lookup(term string) (models.VocabularyEntry, bool, error) {
	for _, e := range v.entries {
		if e.TraditionalTerm == term {
			return e, true, nil
		}
	}
	return models.VocabularyEntry{}, false, nil
}

func (v *fakeVocab) Entries() []models.VocabularyEntry { return v.entries }

type fakeSuggester struct {
	suggestions []llm.Suggestion
	err         error
}

func (f *fakeSuggester) Suggest(ctx context.Context, prompt string) ([]llm.Suggestion, error) {
	return f.suggestions, f.err
}

type fakeSearcher struct {
	candidates []models.ICD11Candidate
	err        error
	calls      int
}

func (f *fakeSearcher) Search(ctx context.Context, term string, limit int) ([]models.ICD11Candidate, error) {
	f.calls++
	return f.candidates, f.err
}

type fakeAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (f *fakeAuditor) Record(ctx context.Context, actor, action, resource string, details map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
}

func waitForTerminal(t *testing.T, store Store, jobID uuid.UUID) models.ResolutionJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.Get(jobID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if IsTerminal(job.Status) {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal status")
	return models.ResolutionJob{}
}

func TestResolutionValidatedSuggestion(t *testing.T) {
	store := newMemStore()
	suggester := &fakeSuggester{suggestions: []llm.Suggestion{
		{Diagnosis: "Jwara", Reasoning: "high fever with chills"},
	}}
	searcher := &fakeSearcher{candidates: []models.ICD11Candidate{
		{EntityID: "111", Title: "Fever of other or unknown origin", StemCode: "MG26", Score: 0.8},
	}}
	audit := &fakeAuditor{}
	svc := NewService(store, newFakeVocab(), suggester, searcher, audit, 2, time.Second, 5)

	created, err := svc.Create(context.Background(), "dr.rao", "high fever and chills since yesterday")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Status != StatusPending {
		t.Errorf("expected pending snapshot, got %q", created.Status)
	}

	job := waitForTerminal(t, store, created.JobID)
	if job.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (%s)", job.Status, job.Error)
	}
	if len(job.Result) != 1 {
		t.Fatalf("expected 1 result, got %d", len(job.Result))
	}

	result := job.Result[0]
	if result.NamasteCode != "AY001" || result.ICDMapping != "Jwara" || result.BiomedicalMapping != "Fever" {
		t.Errorf("unexpected result %+v", result)
	}
	if len(result.Candidates) != 1 || result.Candidates[0].StemCode != "MG26" {
		t.Errorf("expected WHO candidates attached, got %+v", result.Candidates)
	}
	if job.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.actions) == 0 || audit.actions[0] != "resolution-job-created" {
		t.Errorf("expected job creation audited, got %v", audit.actions)
	}
}

func TestResolutionDropsHallucinatedDiagnosis(t *testing.T) {
	store := newMemStore()
	suggester := &fakeSuggester{suggestions: []llm.Suggestion{
		{Diagnosis: "Scurvy", Reasoning: "not in the vocabulary"},
	}}
	svc := NewService(store, newFakeVocab(), suggester, &fakeSearcher{}, nil, 2, time.Second, 5)

	created, err := svc.Create(context.Background(), "system", "bleeding gums and fatigue")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	job := waitForTerminal(t, store, created.JobID)
	if job.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", job.Status)
	}
	if len(job.Result) != 0 {
		t.Errorf("expected no validated results, got %+v", job.Result)
	}
	if job.DroppedCount != 1 {
		t.Errorf("expected dropped_count 1, got %d", job.DroppedCount)
	}
}

func TestResolutionUnparsableModelOutputCompletesEmpty(t *testing.T) {
	store := newMemStore()
	suggester := &fakeSuggester{err: llm.ErrModelOutput}
	svc := NewService(store, newFakeVocab(), suggester, &fakeSearcher{}, nil, 2, time.Second, 5)

	created, err := svc.Create(context.Background(), "system", "vague complaints")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	job := waitForTerminal(t, store, created.JobID)
	if job.Status != StatusCompleted {
		t.Fatalf("expected completed on unparsable output, got %q (%s)", job.Status, job.Error)
	}
	if len(job.Result) != 0 {
		t.Errorf("expected empty results, got %+v", job.Result)
	}
}

func TestResolutionSuggesterFailureFailsJob(t *testing.T) {
	store := newMemStore()
	suggester := &fakeSuggester{err: errors.New("model unavailable")}
	svc := NewService(store, newFakeVocab(), suggester, &fakeSearcher{}, nil, 2, time.Second, 5)

	created, err := svc.Create(context.Background(), "system", "fever")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	job := waitForTerminal(t, store, created.JobID)
	if job.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", job.Status)
	}
	if job.Error == "" {
		t.Error("expected an error message on the failed job")
	}
}

func TestResolutionAuthErrorFailsJob(t *testing.T) {
	store := newMemStore()
	suggester := &fakeSuggester{suggestions: []llm.Suggestion{{Diagnosis: "Jwara"}}}
	searcher := &fakeSearcher{err: &icd.AuthError{Err: errors.New("invalid_client")}}
	svc := NewService(store, newFakeVocab(), suggester, searcher, nil, 2, time.Second, 5)

	created, err := svc.Create(context.Background(), "system", "fever")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	job := waitForTerminal(t, store, created.JobID)
	if job.Status != StatusFailed {
		t.Fatalf("expected failed on auth error, got %q", job.Status)
	}
}

func TestResolutionServiceErrorDegrades(t *testing.T) {
	store := newMemStore()
	suggester := &fakeSuggester{suggestions: []llm.Suggestion{{Diagnosis: "Jwara"}}}
	searcher := &fakeSearcher{err: &icd.ServiceError{StatusCode: 503, Body: "unavailable"}}
	svc := NewService(store, newFakeVocab(), suggester, searcher, nil, 2, time.Second, 5)

	created, err := svc.Create(context.Background(), "system", "fever")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	job := waitForTerminal(t, store, created.JobID)
	if job.Status != StatusCompleted {
		t.Fatalf("expected completed despite WHO outage, got %q", job.Status)
	}
	if len(job.Result) != 1 {
		t.Fatalf("expected 1 result, got %d", len(job.Result))
	}
	if len(job.Result[0].Candidates) != 0 {
		t.Errorf("expected empty candidates, got %+v", job.Result[0].Candidates)
	}
}

func TestResolutionDirectMatchWithoutSuggester(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, newFakeVocab(), nil, nil, nil, 2, time.Second, 5)

	created, err := svc.Create(context.Background(), "system", "patient reports Jwara-like fever")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	job := waitForTerminal(t, store, created.JobID)
	if job.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (%s)", job.Status, job.Error)
	}
	if len(job.Result) != 1 || job.Result[0].NamasteCode != "AY001" {
		t.Fatalf("expected direct match on Jwara, got %+v", job.Result)
	}
}

func TestCreateRejectsEmptySymptoms(t *testing.T) {
	svc := NewService(newMemStore(), newFakeVocab(), nil, nil, nil, 2, time.Second, 5)
	if _, err := svc.Create(context.Background(), "system", "   "); err == nil {
		t.Fatal("expected error for blank symptoms")
	}
}

func TestTransitionDoubleClaimRejected(t *testing.T) {
	store := newMemStore()
	job := &JobModel{JobID: uuid.New(), Status: StatusPending, InputText: "fever"}
	if err := store.Create(job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.Transition(job.JobID, StatusPending, StatusProcessing); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if err := store.Transition(job.JobID, StatusPending, StatusProcessing); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTerminalJobIsFrozen(t *testing.T) {
	store := newMemStore()
	job := &JobModel{JobID: uuid.New(), Status: StatusPending, InputText: "fever"}
	if err := store.Create(job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Transition(job.JobID, StatusPending, StatusProcessing); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	payload, _ := json.Marshal([]models.ValidatedResult{})
	if err := store.Complete(job.JobID, datatypes.JSON(payload), 0); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if err := store.Fail(job.JobID, "too late"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected terminal job to reject Fail, got %v", err)
	}
	if err := store.Complete(job.JobID, datatypes.JSON(payload), 0); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected terminal job to reject Complete, got %v", err)
	}
}
