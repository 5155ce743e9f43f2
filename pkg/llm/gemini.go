package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/setu-health/terminology/pkg/common/logger"
	"github.com/setu-health/terminology/pkg/gateway/httpclient"
	genai "google.golang.org/genai"
)

// ErrModelOutput marks responses that came back but could not be parsed as
// suggestions. Callers treat it differently from transport failures: the
// job still completes, just with nothing to validate.
var ErrModelOutput = errors.New("unparsable model output")

// Suggestion is one candidate diagnosis proposed by the model.
type Suggestion struct {
	Diagnosis string `json:"diagnosis"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Client wraps the Gemini API for structured diagnosis suggestions.
type Client struct {
	cli   *genai.Client
	model string
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &Client{cli: cli, model: model}, nil
}

// Suggest sends the prompt and parses the JSON reply. Transport failures are
// retried; a well-formed reply that is not valid suggestion JSON is not.
func (c *Client) Suggest(ctx context.Context, prompt string) ([]Suggestion, error) {
	var text string
	err := httpclient.Retry(ctx, 3, 300*time.Millisecond, func() error {
		resp, err := c.cli.Models.GenerateContent(ctx, c.model,
			[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
			&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
		)
		if err != nil {
			return err
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
			len(resp.Candidates[0].Content.Parts) == 0 {
			return errors.New("empty model response")
		}
		text = resp.Candidates[0].Content.Parts[0].Text
		return nil
	})
	if err != nil {
		return nil, err
	}

	suggestions, err := ParseSuggestions(text)
	if err != nil {
		logger.WithField("model", c.model).Warn("Model returned unparsable output")
		return nil, err
	}
	return suggestions, nil
}

// ParseSuggestions accepts either a bare JSON array of suggestions or an
// object wrapping one under "diagnoses". Anything else is ErrModelOutput.
func ParseSuggestions(text string) ([]Suggestion, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrModelOutput
	}

	var list []Suggestion
	if err := json.Unmarshal([]byte(text), &list); err == nil {
		return filterEmpty(list), nil
	}

	var wrapper struct {
		Diagnoses []Suggestion `json:"diagnoses"`
	}
	if err := json.Unmarshal([]byte(text), &wrapper); err == nil && wrapper.Diagnoses != nil {
		return filterEmpty(wrapper.Diagnoses), nil
	}

	return nil, ErrModelOutput
}

func filterEmpty(list []Suggestion) []Suggestion {
	out := list[:0]
	for _, s := range list {
		if strings.TrimSpace(s.Diagnosis) != "" {
			out = append(out, s)
		}
	}
	return out
}
