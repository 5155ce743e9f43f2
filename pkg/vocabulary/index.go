package vocabulary

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/setu-health/terminology/pkg/common/logger"
	"github.com/setu-health/terminology/pkg/common/models"
	"github.com/sirupsen/logrus"
)

// ErrNotLoaded is returned by lookups before a successful Load.
var ErrNotLoaded = errors.New("vocabulary not loaded")

var expectedColumns = []string{"NAMASTE_Code", "Traditional_Term", "Biomedical_Term", "System"}

// Index is the in-memory NAMASTE vocabulary, keyed by normalized
// traditional term. Load runs once; all reads afterwards are lock-free.
type Index struct {
	path    string
	once    sync.Once
	loadErr error
	entries []models.VocabularyEntry
	byTerm  map[string]models.VocabularyEntry
}

func NewIndex(path string) *Index {
	return &Index{path: path}
}

// Load parses the CSV file. It is idempotent: repeated calls return the
// outcome of the first attempt.
func (idx *Index) Load() error {
	idx.once.Do(func() {
		idx.loadErr = idx.load()
	})
	return idx.loadErr
}

func (idx *Index) load() error {
	f, err := os.Open(idx.path)
	if err != nil {
		return fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read vocabulary header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, want := range expectedColumns {
		if _, ok := cols[want]; !ok {
			return fmt.Errorf("vocabulary missing column %q", want)
		}
	}

	entries := make([]models.VocabularyEntry, 0, 256)
	byTerm := make(map[string]models.VocabularyEntry, 256)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read vocabulary row: %w", err)
		}

		entry := models.VocabularyEntry{
			Code:            strings.TrimSpace(record[cols["NAMASTE_Code"]]),
			TraditionalTerm: strings.TrimSpace(record[cols["Traditional_Term"]]),
			BiomedicalTerm:  strings.TrimSpace(record[cols["Biomedical_Term"]]),
			System:          strings.TrimSpace(record[cols["System"]]),
		}
		if entry.TraditionalTerm == "" {
			continue
		}

		entries = append(entries, entry)
		// Later rows with the same term overwrite earlier ones.
		byTerm[Normalize(entry.TraditionalTerm)] = entry
	}

	idx.entries = entries
	idx.byTerm = byTerm

	logger.WithFields(logrus.Fields{
		"path":    idx.path,
		"entries": len(entries),
	}).Info("Loaded NAMASTE vocabulary")

	return nil
}

// Normalize folds a term for lookup: lowercased, surrounding whitespace
// removed.
func Normalize(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// Loaded reports whether the index holds a usable vocabulary.
func (idx *Index) Loaded() bool {
	return idx.byTerm != nil && idx.loadErr == nil
}

// Lookup finds the entry for a traditional term, matching after
// normalization.
func (idx *Index) Lookup(term string) (models.VocabularyEntry, bool, error) {
	if !idx.Loaded() {
		return models.VocabularyEntry{}, false, ErrNotLoaded
	}
	entry, ok := idx.byTerm[Normalize(term)]
	return entry, ok, nil
}

// Contains reports whether the term exists in the vocabulary.
func (idx *Index) Contains(term string) bool {
	if !idx.Loaded() {
		return false
	}
	_, ok := idx.byTerm[Normalize(term)]
	return ok
}

// SearchSubstring returns up to limit entries whose traditional term,
// biomedical term, system, or code contains the query, preserving file order.
func (idx *Index) SearchSubstring(query string, limit int) ([]models.VocabularyEntry, error) {
	if !idx.Loaded() {
		return nil, ErrNotLoaded
	}

	query = Normalize(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	matches := make([]models.VocabularyEntry, 0, limit)
	for _, entry := range idx.entries {
		if strings.Contains(strings.ToLower(entry.TraditionalTerm), query) ||
			strings.Contains(strings.ToLower(entry.BiomedicalTerm), query) ||
			strings.Contains(strings.ToLower(entry.System), query) ||
			strings.Contains(strings.ToLower(entry.Code), query) {
			matches = append(matches, entry)
			if len(matches) == limit {
				break
			}
		}
	}
	return matches, nil
}

// Entries returns the full vocabulary in file order. Callers must not
// mutate the returned slice.
func (idx *Index) Entries() []models.VocabularyEntry {
	return idx.entries
}

func (idx *Index) Len() int {
	return len(idx.entries)
}
