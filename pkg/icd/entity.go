package icd

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Entity is the normalized view of a WHO ICD-11 entity. The upstream API
// returns several shapes for the same logical fields; rawEntity absorbs
// them all.
type Entity struct {
	ID         string   `json:"id"`
	Code       string   `json:"code,omitempty"`
	StemCode   string   `json:"stem_code,omitempty"`
	Title      string   `json:"title"`
	Definition string   `json:"definition,omitempty"`
	Score      float64  `json:"score,omitempty"`
	Parents    []string `json:"parents,omitempty"`
	Children   []string `json:"children,omitempty"`
}

// localizedText handles WHO fields that arrive either as a plain string or
// as {"@language": "en", "@value": "..."}.
type localizedText struct {
	Value string
}

func (t *localizedText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Value = s
		return nil
	}

	var obj struct {
		Value string `json:"@value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Value = obj.Value
	return nil
}

type rawEntity struct {
	AtID       string          `json:"@id"`
	ID         string          `json:"id"`
	Code       string          `json:"code"`
	TheCode    string          `json:"theCode"`
	Title      localizedText   `json:"title"`
	Definition localizedText   `json:"definition"`
	Score      float64         `json:"score"`
	Parent     json.RawMessage `json:"parent"`
	Child      []string        `json:"child"`
}

func (r *rawEntity) toEntity() Entity {
	uri := r.AtID
	if uri == "" {
		uri = r.ID
	}
	code := r.Code
	if code == "" {
		code = r.TheCode
	}

	return Entity{
		ID:         entityIDFromURI(uri),
		Code:       code,
		Title:      StripHTML(r.Title.Value),
		Definition: StripHTML(r.Definition.Value),
		Score:      r.Score,
		Parents:    parseParents(r.Parent),
		Children:   r.Child,
	}
}

// parseParents accepts both a single URI string and a list of them.
func parseParents(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one == "" {
			return nil
		}
		return []string{one}
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes the markup WHO embeds in titles, e.g. the <em> wrappers
// around matched search terms.
func StripHTML(s string) string {
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(s, ""))
}

// entityIDFromURI reduces a full entity URI to its numeric identifier;
// values that are already bare IDs pass through unchanged.
func entityIDFromURI(uri string) string {
	uri = strings.TrimRight(uri, "/")
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
