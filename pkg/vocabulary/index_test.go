package vocabulary

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleCSV = `NAMASTE_Code,Traditional_Term,Biomedical_Term,System
AY001,Jwara,Pyrexia,Ayurveda
AY002,Atisara,Diarrhoea,Ayurveda
SI001,Suram,Fever,Siddha
UN001,Humma,Fever,Unani
AY003,Kasa,Cough,Ayurveda
`

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "namaste.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func loadedIndex(t *testing.T, content string) *Index {
	t.Helper()
	idx := NewIndex(writeCSV(t, content))
	if err := idx.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return idx
}

func TestLoadAndLookup(t *testing.T) {
	idx := loadedIndex(t, sampleCSV)

	if idx.Len() != 5 {
		t.Fatalf("expected 5 entries, got %d", idx.Len())
	}

	entry, ok, err := idx.Lookup("Jwara")
	if err != nil || !ok {
		t.Fatalf("Lookup failed: ok=%v err=%v", ok, err)
	}
	if entry.Code != "AY001" || entry.BiomedicalTerm != "Pyrexia" {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestLookupNormalizesCaseAndWhitespace(t *testing.T) {
	idx := loadedIndex(t, sampleCSV)

	for _, term := range []string{"jwara", "JWARA", "  Jwara  ", "jWaRa"} {
		if !idx.Contains(term) {
			t.Errorf("expected Contains(%q) to be true", term)
		}
	}
	if idx.Contains("malaria") {
		t.Error("expected unknown term to be absent")
	}
}

func TestDuplicateTermsLastWins(t *testing.T) {
	csv := `NAMASTE_Code,Traditional_Term,Biomedical_Term,System
AY001,Jwara,Pyrexia,Ayurveda
AY099,Jwara,Fever,Ayurveda
`
	idx := loadedIndex(t, csv)

	entry, ok, err := idx.Lookup("jwara")
	if err != nil || !ok {
		t.Fatalf("Lookup failed: ok=%v err=%v", ok, err)
	}
	if entry.Code != "AY099" {
		t.Errorf("expected later row to win, got %+v", entry)
	}
	// Both rows still appear in the entry list.
	if idx.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", idx.Len())
	}
}

func TestLoadRejectsMissingColumns(t *testing.T) {
	idx := NewIndex(writeCSV(t, "NAMASTE_Code,Traditional_Term\nAY001,Jwara\n"))
	if err := idx.Load(); err == nil {
		t.Fatal("expected error for missing columns")
	}
	if idx.Loaded() {
		t.Error("expected Loaded to be false after failed load")
	}
}

func TestLoadMissingFile(t *testing.T) {
	idx := NewIndex(filepath.Join(t.TempDir(), "absent.csv"))
	if err := idx.Load(); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, _, err := idx.Lookup("jwara"); err != ErrNotLoaded {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	idx := NewIndex(filepath.Join(t.TempDir(), "absent.csv"))
	first := idx.Load()
	second := idx.Load()
	if first == nil || second == nil {
		t.Fatal("expected both loads to fail")
	}
	if first != second {
		t.Errorf("expected identical error from repeated Load, got %v and %v", first, second)
	}
}

func TestSearchSubstring(t *testing.T) {
	idx := loadedIndex(t, sampleCSV)

	matches, err := idx.SearchSubstring("fever", 10)
	if err != nil {
		t.Fatalf("SearchSubstring failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches on biomedical term, got %d", len(matches))
	}
	// File order preserved.
	if matches[0].Code != "SI001" || matches[1].Code != "UN001" {
		t.Errorf("unexpected match order %+v", matches)
	}

	matches, err = idx.SearchSubstring("ay00", 2)
	if err != nil {
		t.Fatalf("SearchSubstring failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected limit to cap matches, got %d", len(matches))
	}

	matches, err = idx.SearchSubstring("siddha", 10)
	if err != nil {
		t.Fatalf("SearchSubstring failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Code != "SI001" {
		t.Fatalf("expected match on system field, got %+v", matches)
	}

	matches, err = idx.SearchSubstring("   ", 10)
	if err != nil || matches != nil {
		t.Errorf("expected blank query to return nothing, got %v err=%v", matches, err)
	}
}

func TestSkipsRowsWithoutTraditionalTerm(t *testing.T) {
	csv := `NAMASTE_Code,Traditional_Term,Biomedical_Term,System
AY001,Jwara,Pyrexia,Ayurveda
AY002,,Diarrhoea,Ayurveda
`
	idx := loadedIndex(t, csv)
	if idx.Len() != 1 {
		t.Errorf("expected blank-term row to be skipped, got %d entries", idx.Len())
	}
}
