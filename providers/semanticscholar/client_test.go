package semanticscholar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paper-atlas/config"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{SemanticScholarBaseURL: srv.URL}
	return NewClient(cfg, zap.NewNop(),
		WithBaseURL(srv.URL),
		WithRateLimit(1000),
	)
}

func TestSearchPapersMapsFields(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/paper/search", r.URL.Path)
		assert.Equal(t, "deep learning", r.URL.Query().Get("query"))
		fmt.Fprint(w, `{
			"total": 1,
			"offset": 0,
			"data": [{
				"paperId": "abc123",
				"title": "Attention Is All You Need",
				"abstract": "We propose the Transformer.",
				"year": 2017,
				"citationCount": 90000,
				"venue": "NeurIPS",
				"authors": [{"authorId": "1", "name": "A. Vaswani"}, {"authorId": "2", "name": "N. Shazeer"}],
				"externalIds": {"DOI": "10.5555/3295222", "ArXiv": "1706.03762"},
				"openAccessPdf": {"url": "https://arxiv.org/pdf/1706.03762"}
			}]
		}`)
	}))

	papers, err := c.SearchPapers(context.Background(), "deep learning", 10)
	require.NoError(t, err)
	require.Len(t, papers, 1)

	p := papers[0]
	assert.Equal(t, "abc123", p.PaperID)
	assert.Equal(t, "Attention Is All You Need", p.Title)
	assert.Equal(t, 2017, p.Year)
	assert.Equal(t, 90000, p.CitationCount)
	assert.Equal(t, "A. Vaswani, N. Shazeer", p.Authors)
	assert.Equal(t, "10.5555/3295222", p.DOI)
	assert.Equal(t, "1706.03762", p.ArxivID)
	assert.Equal(t, "https://arxiv.org/pdf/1706.03762", p.OpenAccessURL)
}

func TestSearchPapersMissingDataField(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Die API antwortet bei manchen Queries mit {"total": 0} ohne data.
		fmt.Fprint(w, `{"total": 0}`)
	}))

	_, err := c.SearchPapers(context.Background(), "nichts", 10)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "data", pe.Missing)
}

func TestSearchPapersHTTPError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))

	_, err := c.SearchPapers(context.Background(), "x", 10)
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusTooManyRequests, ae.StatusCode)
}

func TestGetPapersSkipsUnresolvedIDs(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/paper/batch", r.URL.Path)
		// Unbekannte IDs kommen als null zurück.
		fmt.Fprint(w, `[{"paperId": "p1", "title": "First"}, null, {"paperId": "p2", "title": "Second"}]`)
	}))

	papers, err := c.GetPapers(context.Background(), []string{"p1", "missing", "p2"})
	require.NoError(t, err)
	require.Len(t, papers, 2)
	assert.Equal(t, "p1", papers[0].PaperID)
	assert.Equal(t, "p2", papers[1].PaperID)
}

func TestReferencesPaginatesAndTagsInfluential(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/paper/seed/references", r.URL.Path)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		if offset == 0 {
			fmt.Fprint(w, `{
				"offset": 0,
				"next": 100,
				"data": [{"isInfluential": true, "citedPaper": {"paperId": "r1", "title": "Ref One"}}]
			}`)
			return
		}
		fmt.Fprint(w, `{
			"offset": 100,
			"data": [
				{"isInfluential": false, "citedPaper": {"paperId": "r2", "title": "Ref Two"}},
				{"citedPaper": null}
			]
		}`)
	}))

	edges, err := c.References(context.Background(), "seed")
	require.NoError(t, err)

	// Kanten ohne auflösbares Ziel-Paper werden verworfen.
	require.Len(t, edges, 2)
	assert.Equal(t, "r1", edges[0].Paper.PaperID)
	assert.True(t, edges[0].IsInfluential)
	assert.Equal(t, "r2", edges[1].Paper.PaperID)
	assert.False(t, edges[1].IsInfluential)
}

func TestCitationsUseCitingPaper(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/paper/seed/citations", r.URL.Path)
		fmt.Fprint(w, `{"offset": 0, "data": [{"citingPaper": {"paperId": "c1", "title": "Citing"}}]}`)
	}))

	edges, err := c.Citations(context.Background(), "seed")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "c1", edges[0].Paper.PaperID)
}

func TestClientSendsAPIKeyHeader(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		fmt.Fprint(w, `{"total": 0, "data": []}`)
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{SemanticScholarBaseURL: srv.URL, SemanticScholarAPIKey: "secret"}
	c := NewClient(cfg, zap.NewNop(), WithRateLimit(1000))

	_, err := c.SearchPapers(context.Background(), "x", 5)
	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
}

func TestParseErrorIsNotAPIError(t *testing.T) {
	err := error(&ParseError{Endpoint: "/paper/search", Missing: "data"})
	var ae *APIError
	assert.False(t, errors.As(err, &ae))
}
