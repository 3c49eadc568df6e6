package semanticscholar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paper-atlas/config"
	"paper-atlas/models"
	"paper-atlas/providers"
)

const (
	// rateLimit: 1 Request pro Sekunde ohne API-Key laut S2-Dokumentation;
	// mit Key deutlich mehr, wir bleiben konservativ.
	rateLimit = 1.0

	// edgePageSize ist die Seitengröße beim Kanten-Listing.
	edgePageSize = 100

	// maxEdges begrenzt die Gesamtzahl geladener Kanten pro Paper.
	maxEdges = 500
)

// Client ist der rate-limitierte HTTP-Client für die Semantic Scholar
// Graph API. Implementiert providers.MetadataProvider.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

// Option konfiguriert einen Client.
type Option func(*Client)

// WithHTTPClient setzt einen eigenen HTTP-Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL setzt eine abweichende Basis-URL (für Tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithRateLimit setzt ein abweichendes Request-Limit (für Tests).
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// NewClient erstellt einen neuen Graph-API-Client.
func NewClient(cfg *config.Config, logger *zap.Logger, opts ...Option) *Client {
	rps := rateLimit
	if cfg.SemanticScholarAPIKey != "" {
		rps = 10.0
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		baseURL:    cfg.SemanticScholarBaseURL,
		apiKey:     cfg.SemanticScholarAPIKey,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name gibt den Namen des Providers zurück.
func (c *Client) Name() string {
	return "semanticscholar"
}

// SearchPapers führt eine Volltext-Suche auf der Graph API aus.
func (c *Client) SearchPapers(ctx context.Context, query string, limit int) ([]*models.Paper, error) {
	if limit <= 0 {
		limit = 20
	}
	endpoint := fmt.Sprintf("/paper/search?query=%s&limit=%d&fields=%s",
		url.QueryEscape(query), limit, url.QueryEscape(DefaultPaperFields))

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if sr.Data == nil {
		return nil, &ParseError{Endpoint: "/paper/search", Missing: "data"}
	}

	papers := make([]*models.Paper, 0, len(*sr.Data))
	for i := range *sr.Data {
		papers = append(papers, mapS2ToModel(&(*sr.Data)[i]))
	}
	c.logger.Debug("Suche auf Semantic Scholar abgeschlossen",
		zap.String("query", query), zap.Int("found", len(papers)))
	return papers, nil
}

// GetPapers löst Paper-IDs in einem Batch-Request auf.
func (c *Client) GetPapers(ctx context.Context, paperIDs []string) ([]*models.Paper, error) {
	if len(paperIDs) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(map[string][]string{"ids": paperIDs})
	if err != nil {
		return nil, err
	}
	endpoint := "/paper/batch?fields=" + url.QueryEscape(DefaultPaperFields)

	body, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, err
	}

	// Die Batch-Antwort ist ein Array; unbekannte IDs kommen als null.
	var raw []*S2Paper
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode batch response: %w", err)
	}

	papers := make([]*models.Paper, 0, len(raw))
	for _, p := range raw {
		if p == nil || p.PaperID == "" {
			continue
		}
		papers = append(papers, mapS2ToModel(p))
	}
	return papers, nil
}

// References liefert die Papers, die das gegebene Paper zitiert.
func (c *Client) References(ctx context.Context, paperID string) ([]providers.Edge, error) {
	return c.listEdges(ctx, paperID, "references")
}

// Citations liefert die Papers, die das gegebene Paper zitieren.
func (c *Client) Citations(ctx context.Context, paperID string) ([]providers.Edge, error) {
	return c.listEdges(ctx, paperID, "citations")
}

// listEdges lädt alle Seiten einer Kanten-Liste bis maxEdges.
func (c *Client) listEdges(ctx context.Context, paperID, relation string) ([]providers.Edge, error) {
	var edges []providers.Edge
	offset := 0

	for {
		endpoint := fmt.Sprintf("/paper/%s/%s?fields=%s&limit=%d&offset=%d",
			url.PathEscape(paperID), relation,
			url.QueryEscape(DefaultPaperFields+",isInfluential"), edgePageSize, offset)

		body, err := c.get(ctx, endpoint)
		if err != nil {
			return nil, err
		}

		var er edgeResponse
		if err := json.Unmarshal(body, &er); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", relation, err)
		}
		if er.Data == nil {
			return nil, &ParseError{Endpoint: "/paper/{id}/" + relation, Missing: "data"}
		}

		for i := range *er.Data {
			e := (*er.Data)[i]
			target := e.CitedPaper
			if relation == "citations" {
				target = e.CitingPaper
			}
			if target == nil || target.PaperID == "" {
				continue
			}
			edges = append(edges, providers.Edge{
				Paper:         mapS2ToModel(target),
				IsInfluential: e.IsInfluential,
			})
		}

		if er.Next == nil || len(edges) >= maxEdges {
			break
		}
		offset = *er.Next
	}

	return edges, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

// do führt einen Request gegen die Graph API aus, inklusive Rate-Limiting.
func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    "request " + endpoint + " failed: " + strconv.Quote(string(truncate(data, 200))),
		}
	}
	return data, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
