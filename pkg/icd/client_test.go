package icd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakeWHO stands in for both the token endpoint and the API.
type fakeWHO struct {
	server       *httptest.Server
	tokenStatus  int
	searchStatus int
	tokenCalls   int
	searchBody   string
}

func newFakeWHO(t *testing.T) *fakeWHO {
	t.Helper()

	f := &fakeWHO{
		tokenStatus:  http.StatusOK,
		searchStatus: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls++
		if f.tokenStatus != http.StatusOK {
			w.WriteHeader(f.tokenStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/icd/release/11/mms/search", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		if got := r.Header.Get("API-Version"); got != "v2" {
			t.Errorf("unexpected API-Version header %q", got)
		}
		if f.searchStatus != http.StatusOK {
			w.WriteHeader(f.searchStatus)
			fmt.Fprint(w, `{"error":"upstream"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, f.searchBody)
	})
	mux.HandleFunc("/icd/release/11/mms/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"@id": "http://id.who.int/icd/release/11/mms/1A00",
			"code": "1A00",
			"title": {"@language": "en", "@value": "Cholera"},
			"definition": {"@language": "en", "@value": "An <em>acute</em> infection."},
			"parent": "http://id.who.int/icd/release/11/mms/999"
		}`)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeWHO) client() *Client {
	return NewClient(Config{
		TokenURL:      f.server.URL + "/connect/token",
		ClientID:      "cid",
		ClientSecret:  "secret",
		Scope:         "icdapi_access",
		APIBase:       f.server.URL + "/icd",
		Release:       "11",
		Linearization: "mms",
		Timeout:       5 * time.Second,
	}, nil)
}

func TestSearchReturnsSortedCandidates(t *testing.T) {
	fake := newFakeWHO(t)
	fake.searchBody = `{"destinationEntities": [
		{"id": "http://id.who.int/icd/entity/111", "theCode": "CA40", "title": "<em>Pneumonia</em>", "score": 0.4},
		{"id": "http://id.who.int/icd/entity/222", "theCode": "1A00", "title": "Cholera", "score": 0.9},
		{"id": "http://id.who.int/icd/entity/333", "theCode": "", "title": "Fever (MG26.0)", "score": 0.6}
	]}`

	candidates, err := fake.client().Search(context.Background(), "fever", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}

	if candidates[0].StemCode != "1A00" || candidates[0].Score != 0.9 {
		t.Errorf("expected highest-scored candidate first, got %+v", candidates[0])
	}
	if candidates[1].StemCode != "MG26.0" {
		t.Errorf("expected title-extracted stem code, got %+v", candidates[1])
	}
	if candidates[2].Title != "Pneumonia" {
		t.Errorf("expected HTML stripped from title, got %q", candidates[2].Title)
	}
	if candidates[0].EntityID != "222" {
		t.Errorf("expected bare entity id, got %q", candidates[0].EntityID)
	}
}

func TestSearchTruncatesToLimit(t *testing.T) {
	fake := newFakeWHO(t)
	entities := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		entities = append(entities, fmt.Sprintf(
			`{"id": "http://id.who.int/icd/entity/%d", "theCode": "1A0%d", "title": "E%d", "score": %0.2f}`,
			i, i, i, float64(i)/10))
	}
	fake.searchBody = fmt.Sprintf(`{"destinationEntities": [%s]}`, joinComma(entities))

	candidates, err := fake.client().Search(context.Background(), "fever", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func TestSearchEmptyResults(t *testing.T) {
	fake := newFakeWHO(t)
	fake.searchBody = `{}`

	candidates, err := fake.client().Search(context.Background(), "no such disease", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(candidates))
	}
}

func TestSearchRejectsEmptyTerm(t *testing.T) {
	fake := newFakeWHO(t)
	if _, err := fake.client().Search(context.Background(), "   ", 5); err == nil {
		t.Fatal("expected error for blank term")
	}
}

func TestTokenFailureIsAuthError(t *testing.T) {
	fake := newFakeWHO(t)
	fake.tokenStatus = http.StatusUnauthorized

	_, err := fake.client().Search(context.Background(), "fever", 5)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestSearchUnauthorizedIsAuthError(t *testing.T) {
	fake := newFakeWHO(t)
	fake.searchStatus = http.StatusUnauthorized

	_, err := fake.client().Search(context.Background(), "fever", 5)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestSearchServerErrorIsServiceError(t *testing.T) {
	fake := newFakeWHO(t)
	fake.searchStatus = http.StatusInternalServerError

	_, err := fake.client().Search(context.Background(), "fever", 5)
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if svcErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", svcErr.StatusCode)
	}
	if !svcErr.Retriable() {
		t.Error("expected 500 to be retriable")
	}
}

func TestFetchEntityNormalizesFields(t *testing.T) {
	fake := newFakeWHO(t)

	entity, err := fake.client().FetchEntity(context.Background(), "1A00")
	if err != nil {
		t.Fatalf("FetchEntity failed: %v", err)
	}
	if entity.Title != "Cholera" {
		t.Errorf("unexpected title %q", entity.Title)
	}
	if entity.Definition != "An acute infection." {
		t.Errorf("expected HTML stripped from definition, got %q", entity.Definition)
	}
	if entity.Code != "1A00" {
		t.Errorf("unexpected code %q", entity.Code)
	}
	if entity.StemCode != "1A00" {
		t.Errorf("unexpected stem code %q", entity.StemCode)
	}
	if len(entity.Parents) != 1 || entity.Parents[0] != "http://id.who.int/icd/release/11/mms/999" {
		t.Errorf("unexpected parents %v", entity.Parents)
	}
}

func TestTokenReuseAcrossRequests(t *testing.T) {
	fake := newFakeWHO(t)
	fake.searchBody = `{"destinationEntities": []}`
	client := fake.client()

	for i := 0; i < 3; i++ {
		if _, err := client.Search(context.Background(), "fever", 5); err != nil {
			t.Fatalf("Search %d failed: %v", i, err)
		}
	}
	if fake.tokenCalls != 1 {
		t.Errorf("expected a single token fetch, got %d", fake.tokenCalls)
	}
}

func TestLocalizedTextBothShapes(t *testing.T) {
	var raw rawEntity
	payload := `{"title": "plain string", "definition": {"@language": "en", "@value": "object form"}}`
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if raw.Title.Value != "plain string" {
		t.Errorf("unexpected title %q", raw.Title.Value)
	}
	if raw.Definition.Value != "object form" {
		t.Errorf("unexpected definition %q", raw.Definition.Value)
	}
}

func TestParseParentsList(t *testing.T) {
	var raw rawEntity
	payload := `{"parent": ["http://a", "http://b"]}`
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	entity := raw.toEntity()
	if len(entity.Parents) != 2 {
		t.Fatalf("expected 2 parents, got %v", entity.Parents)
	}
}
