package terminology

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/setu-health/terminology/pkg/common/models"
	"github.com/setu-health/terminology/pkg/icd"
	"github.com/setu-health/terminology/pkg/vocabulary"
)

var ErrVocabularyUnavailable = errors.New("vocabulary unavailable")

// Searcher finds ICD-11 candidates for a term.
type Searcher interface {
	Search(ctx context.Context, term string, limit int) ([]models.ICD11Candidate, error)
}

// EntityFetcher retrieves one ICD-11 entity by ID or URI.
type EntityFetcher interface {
	FetchEntity(ctx context.Context, idOrURI string) (*icd.Entity, error)
}

// Auditor records terminology lookups.
type Auditor interface {
	Record(ctx context.Context, actor, action, resource string, details map[string]interface{})
}

// Service answers synchronous terminology queries: local autocomplete,
// NAMASTE-to-ICD translation, and entity detail lookups.
type Service struct {
	vocab    *vocabulary.Index
	searcher Searcher
	fetcher  EntityFetcher
	audit    Auditor
	limit    int
}

func NewService(vocab *vocabulary.Index, searcher Searcher, fetcher EntityFetcher, audit Auditor, candidateLimit int) *Service {
	if candidateLimit <= 0 {
		candidateLimit = 5
	}
	return &Service{
		vocab:    vocab,
		searcher: searcher,
		fetcher:  fetcher,
		audit:    audit,
		limit:    candidateLimit,
	}
}

// Autocomplete matches the query against the local vocabulary only. No
// network calls; this endpoint backs per-keystroke UI lookups.
func (s *Service) Autocomplete(query string, limit int) ([]models.VocabularyEntry, error) {
	if s.vocab == nil || !s.vocab.Loaded() {
		return nil, ErrVocabularyUnavailable
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	matches, err := s.vocab.SearchSubstring(query, limit)
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// Translate maps a NAMASTE code to ICD-11 candidates via WHO search,
// preferring the display term over the code as the search query.
func (s *Service) Translate(ctx context.Context, actor string, req models.TranslateRequest) (models.TranslateResponse, error) {
	if strings.TrimSpace(req.NamasteCode) == "" {
		return models.TranslateResponse{}, fmt.Errorf("namaste_code required")
	}

	term := strings.TrimSpace(req.NamasteDisplay)
	if term == "" {
		// Fall back to resolving the display term from the vocabulary.
		if s.vocab != nil && s.vocab.Loaded() {
			for _, entry := range s.vocab.Entries() {
				if strings.EqualFold(entry.Code, req.NamasteCode) {
					term = entry.BiomedicalTerm
					if term == "" {
						term = entry.TraditionalTerm
					}
					break
				}
			}
		}
	}
	if term == "" {
		term = req.NamasteCode
	}

	candidates, err := s.searcher.Search(ctx, term, s.limit)
	if err != nil {
		return models.TranslateResponse{}, err
	}

	if s.audit != nil {
		s.audit.Record(ctx, actor, "translate", req.NamasteCode, map[string]interface{}{
			"term":       term,
			"candidates": len(candidates),
		})
	}

	return models.TranslateResponse{
		NamasteCode: req.NamasteCode,
		Candidates:  candidates,
	}, nil
}

// EntityDetail fetches one ICD-11 entity with its extracted stem code.
func (s *Service) EntityDetail(ctx context.Context, actor, idOrURI string) (*icd.Entity, string, error) {
	entity, err := s.fetcher.FetchEntity(ctx, idOrURI)
	if err != nil {
		return nil, "", err
	}

	stemCode := entity.StemCode
	if stemCode == "" {
		stemCode = icd.ExtractStemCode(entity.Code, entity.Title, idOrURI)
	}

	if s.audit != nil {
		s.audit.Record(ctx, actor, "entity-lookup", entity.ID, map[string]interface{}{
			"stem_code": stemCode,
		})
	}

	return entity, stemCode, nil
}
