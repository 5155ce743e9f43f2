package icd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/setu-health/terminology/pkg/common/logger"
	"github.com/setu-health/terminology/pkg/common/models"
	"github.com/setu-health/terminology/pkg/gateway/httpclient"
	"github.com/setu-health/terminology/pkg/observability/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Config carries the WHO API settings the client needs.
type Config struct {
	TokenURL      string
	ClientID      string
	ClientSecret  string
	Scope         string
	APIBase       string
	Release       string
	Linearization string
	Timeout       time.Duration
	CacheTTL      time.Duration
}

// Client talks to the WHO ICD-11 API with client-credential tokens. Search
// results can be cached in Redis when CacheTTL is non-zero.
type Client struct {
	cfg         Config
	tokenSource oauth2.TokenSource
	httpClient  *http.Client
	cache       *redis.Client
	cacheTTL    time.Duration
}

func NewClient(cfg Config, cache *redis.Client) *Client {
	base := httpclient.New(cfg.Timeout)

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       []string{cfg.Scope},
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	return &Client{
		cfg:         cfg,
		tokenSource: creds.TokenSource(tokenCtx),
		httpClient:  base,
		cache:       cache,
		cacheTTL:    cfg.CacheTTL,
	}
}

// Token returns a valid access token, refreshing when needed. Failures are
// wrapped as AuthError since they mean the credentials are bad or the token
// endpoint is unreachable.
func (c *Client) Token(ctx context.Context) (string, error) {
	tok, err := c.tokenSource.Token()
	if err != nil {
		return "", &AuthError{Err: err}
	}
	return tok.AccessToken, nil
}

func (c *Client) do(ctx context.Context, rawURL string, out interface{}) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en")
	req.Header.Set("API-Version", "v2")

	metrics.WHORequest()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.WHOFailure()
		return &ServiceError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		metrics.WHOFailure()
		return &AuthError{Err: fmt.Errorf("status %d from %s", resp.StatusCode, rawURL)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.WHOFailure()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ServiceError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.WHOFailure()
		return &ServiceError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

type searchResponse struct {
	DestinationEntities []rawEntity `json:"destinationEntities"`
}

// Search queries the MMS linearization and returns up to limit candidates
// ordered by descending score, each with its extracted stem code.
func (c *Client) Search(ctx context.Context, term string, limit int) ([]models.ICD11Candidate, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("empty search term")
	}
	if limit <= 0 {
		limit = 5
	}

	cacheKey := fmt.Sprintf("icd:search:%s:%d", strings.ToLower(term), limit)
	if c.cache != nil && c.cacheTTL > 0 {
		if cached, err := c.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var candidates []models.ICD11Candidate
			if json.Unmarshal(cached, &candidates) == nil {
				return candidates, nil
			}
		}
	}

	query := url.Values{}
	query.Set("q", term)
	query.Set("flatResults", "true")
	query.Set("useFlexisearch", "true")

	searchURL := fmt.Sprintf("%s/release/%s/%s/search?%s",
		c.cfg.APIBase, c.cfg.Release, c.cfg.Linearization, query.Encode())

	var resp searchResponse
	if err := c.do(ctx, searchURL, &resp); err != nil {
		return nil, err
	}

	candidates := make([]models.ICD11Candidate, 0, len(resp.DestinationEntities))
	for _, raw := range resp.DestinationEntities {
		entity := raw.toEntity()
		uri := raw.AtID
		if uri == "" {
			uri = raw.ID
		}
		candidates = append(candidates, models.ICD11Candidate{
			EntityID:  entity.ID,
			Title:     entity.Title,
			StemCode:  ExtractStemCode(entity.Code, entity.Title, uri),
			Score:     entity.Score,
			SourceURI: uri,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	if c.cache != nil && c.cacheTTL > 0 {
		if payload, err := json.Marshal(candidates); err == nil {
			if err := c.cache.Set(ctx, cacheKey, payload, c.cacheTTL).Err(); err != nil {
				logger.WithError(err).Debug("Failed to cache search result")
			}
		}
	}

	logger.WithFields(logrus.Fields{
		"term":       term,
		"candidates": len(candidates),
	}).Debug("WHO search completed")

	return candidates, nil
}

// FetchEntity retrieves one entity by bare ID or full URI.
func (c *Client) FetchEntity(ctx context.Context, idOrURI string) (*Entity, error) {
	idOrURI = strings.TrimSpace(idOrURI)
	if idOrURI == "" {
		return nil, fmt.Errorf("empty entity id")
	}

	var entityURL string
	if strings.HasPrefix(idOrURI, "http://") || strings.HasPrefix(idOrURI, "https://") {
		// Entity URIs in API payloads use the http scheme; the API itself
		// is only served over https.
		entityURL = strings.Replace(idOrURI, "http://", "https://", 1)
	} else {
		entityURL = fmt.Sprintf("%s/release/%s/%s/%s",
			c.cfg.APIBase, c.cfg.Release, c.cfg.Linearization, url.PathEscape(idOrURI))
	}

	var body json.RawMessage
	if err := c.do(ctx, entityURL, &body); err != nil {
		return nil, err
	}

	var raw rawEntity
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ServiceError{Err: fmt.Errorf("decode entity: %w", err)}
	}

	entity := raw.toEntity()
	entity.StemCode = ExtractEntityStemCode(body)
	if entity.StemCode == "" {
		entity.StemCode = ExtractStemCode(entity.Code, entity.Title, idOrURI)
	}
	return &entity, nil
}
