package icd

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/setu-health/terminology/pkg/common/logger"
)

var (
	// Stem codes look like "1A00", "CA40.0", "MG26". One or two leading
	// alphanumerics, at least two digits, optional dotted suffix. Pure
	// numbers ("2025") are release years, not codes, hence the letter
	// requirement below.
	stemCodePattern = regexp.MustCompile(`^[A-Z0-9]{1,2}[0-9]{2,}(\.[0-9]+)?$`)

	// Titles occasionally carry the code in parentheses: "Cholera (1A00.0)".
	titleCodePattern = regexp.MustCompile(`\(([A-Z0-9]{2,}\.[0-9]+)\)`)
)

// IsStemCode reports whether s is a plausible ICD-11 stem code.
func IsStemCode(s string) bool {
	if !stemCodePattern.MatchString(s) {
		return false
	}
	return strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
}

// ExtractStemCode pulls a stem code out of a search hit, trying the explicit
// code field, the code embedded in the title, the title itself, and finally
// the trailing path segment of the entity URI. Returns "" when nothing
// matches.
func ExtractStemCode(code, title, uri string) string {
	if code = strings.TrimSpace(code); IsStemCode(code) {
		return code
	}

	if m := titleCodePattern.FindStringSubmatch(title); m != nil && IsStemCode(m[1]) {
		return m[1]
	}

	if t := strings.TrimSpace(title); IsStemCode(t) {
		return t
	}

	if uri != "" {
		segments := strings.Split(strings.TrimRight(uri, "/"), "/")
		last := segments[len(segments)-1]
		if IsStemCode(last) {
			return last
		}
	}

	logger.WithField("title", title).Debug("No stem code extracted from entity")
	return ""
}

// ExtractEntityStemCode walks a full entity payload through the fallback
// chain: the entity's own code, then child codes, then parent codes, then
// the title. Children and parents may be bare URIs, single objects, or
// lists; absent fields are simply skipped.
func ExtractEntityStemCode(raw []byte) string {
	var payload struct {
		Code    string            `json:"code"`
		TheCode string            `json:"theCode"`
		Title   localizedText     `json:"title"`
		Child   []json.RawMessage `json:"child"`
		Parent  json.RawMessage   `json:"parent"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}

	for _, code := range []string{payload.Code, payload.TheCode} {
		if code = strings.TrimSpace(code); IsStemCode(code) {
			return code
		}
	}

	for _, child := range payload.Child {
		if code := nodeStemCode(child); code != "" {
			return code
		}
	}

	for _, parent := range nodeList(payload.Parent) {
		if code := nodeStemCode(parent); code != "" {
			return code
		}
	}

	title := StripHTML(payload.Title.Value)
	if m := titleCodePattern.FindStringSubmatch(title); m != nil && IsStemCode(m[1]) {
		return m[1]
	}
	if IsStemCode(title) {
		return title
	}

	logger.WithField("title", title).Debug("No stem code extracted from entity")
	return ""
}

// nodeList treats a JSON value as a list of nodes, accepting both a single
// node and an array of them.
func nodeList(raw json.RawMessage) []json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var many []json.RawMessage
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return []json.RawMessage{raw}
}

// nodeStemCode pulls a stem code from one child/parent node, which may be a
// URI string or an embedded entity object.
func nodeStemCode(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if IsStemCode(s) {
			return s
		}
		segments := strings.Split(strings.TrimRight(s, "/"), "/")
		if last := segments[len(segments)-1]; IsStemCode(last) {
			return last
		}
		return ""
	}

	var node struct {
		Code    string `json:"code"`
		TheCode string `json:"theCode"`
	}
	if err := json.Unmarshal(raw, &node); err != nil {
		return ""
	}
	for _, code := range []string{node.Code, node.TheCode} {
		if code = strings.TrimSpace(code); IsStemCode(code) {
			return code
		}
	}
	return ""
}
