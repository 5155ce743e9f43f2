package models

import (
	"time"

	"github.com/google/uuid"
)

// VocabularyEntry is one row of the NAMASTE controlled vocabulary. Entries
// are loaded once at startup and never mutated afterwards.
type VocabularyEntry struct {
	Code            string `json:"code"`
	TraditionalTerm string `json:"traditional_term"`
	BiomedicalTerm  string `json:"biomedical_term"`
	System          string `json:"system"`
}

// ICD11Candidate is a single WHO search hit with its extracted stem code.
// Candidates are transient: produced per search call, never persisted.
type ICD11Candidate struct {
	EntityID  string  `json:"entity_id"`
	Title     string  `json:"title"`
	StemCode  string  `json:"stem_code,omitempty"`
	Score     float64 `json:"score"`
	SourceURI string  `json:"source_uri"`
}

// ValidatedResult is a diagnosis that survived vocabulary validation,
// enriched with its NAMASTE codes. The diagnosis is always a traditional
// term present in the loaded vocabulary.
type ValidatedResult struct {
	Diagnosis         string           `json:"diagnosis"`
	NamasteCode       string           `json:"namaste_code"`
	ICDMapping        string           `json:"icd_mapping"`
	BiomedicalMapping string           `json:"biomedical_mapping"`
	Reasoning         string           `json:"reasoning,omitempty"`
	Candidates        []ICD11Candidate `json:"icd_candidates,omitempty"`
}

// ResolutionJob is the caller-facing view of an asynchronous resolution
// request. Result is null until the job completes; Error is set only on
// failure. Callers must check Status before trusting Result.
type ResolutionJob struct {
	JobID        uuid.UUID         `json:"job_id"`
	Status       string            `json:"status"`
	InputText    string            `json:"input_text"`
	Result       []ValidatedResult `json:"result"`
	DroppedCount int               `json:"dropped_count"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

type CreateJobRequest struct {
	Symptoms string `json:"symptoms"`
}

type TranslateRequest struct {
	NamasteCode    string `json:"namaste_code"`
	NamasteDisplay string `json:"namaste_display,omitempty"`
}

type TranslateResponse struct {
	NamasteCode string           `json:"namaste_code"`
	Candidates  []ICD11Candidate `json:"candidates"`
}

// Condition is a stored clinical Condition record carrying both codings.
type Condition struct {
	ID             uuid.UUID              `json:"id"`
	PatientID      string                 `json:"patient_id"`
	NamasteCode    string                 `json:"namaste_code,omitempty"`
	NamasteDisplay string                 `json:"namaste_display,omitempty"`
	ICDCode        string                 `json:"icd_code,omitempty"`
	ICDDisplay     string                 `json:"icd_display,omitempty"`
	Source         string                 `json:"source,omitempty"`
	CreatedBy      string                 `json:"created_by,omitempty"`
	RawFHIR        map[string]interface{} `json:"raw_fhir,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

type ConditionCreateRequest struct {
	PatientID      string `json:"patient_id"`
	NamasteCode    string `json:"namaste_code,omitempty"`
	NamasteDisplay string `json:"namaste_display,omitempty"`
	ICDCode        string `json:"icd_code,omitempty"`
	ICDDisplay     string `json:"icd_display,omitempty"`
}

// AuditEntry is one append-only audit record. Every lookup, translation,
// condition store, and job submission produces one.
type AuditEntry struct {
	ID        uuid.UUID              `json:"id"`
	Actor     string                 `json:"actor"`
	Action    string                 `json:"action"`
	Resource  string                 `json:"resource,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Event is the envelope published to Kafka for audit fan-out.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
