package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paper-atlas/models"
	"paper-atlas/providers"
)

type fakeMetadata struct {
	refs map[string][]providers.Edge
	cits map[string][]providers.Edge
}

func (f *fakeMetadata) SearchPapers(ctx context.Context, query string, limit int) ([]*models.Paper, error) {
	return nil, nil
}
func (f *fakeMetadata) GetPapers(ctx context.Context, ids []string) ([]*models.Paper, error) {
	return nil, nil
}
func (f *fakeMetadata) References(ctx context.Context, paperID string) ([]providers.Edge, error) {
	return f.refs[paperID], nil
}
func (f *fakeMetadata) Citations(ctx context.Context, paperID string) ([]providers.Edge, error) {
	return f.cits[paperID], nil
}
func (f *fakeMetadata) Name() string { return "fake" }

// fakeEmbedder liefert pro Titel ein festes 2D-Embedding.
type fakeEmbedder struct {
	query   []float32
	byTitle map[string][]float32
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.query, nil
}
func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := f.byTitle[text]
		if !ok {
			vec = []float32{0, 1}
		}
		out[i] = vec
	}
	return out, nil
}

func testPaper(id string, citations int) *models.Paper {
	return &models.Paper{PaperID: id, Title: id, CitationCount: citations}
}

func newTestEngine(meta providers.MetadataProvider, embedder QueryEmbedder) *ExpansionEngine {
	return &ExpansionEngine{
		Provider:         meta,
		Embedder:         embedder,
		Logger:           zap.NewNop(),
		MaxPapersPerNode: 10,
		PreviewCap:       200,
	}
}

func TestPreviewDedupsBothDirections(t *testing.T) {
	meta := &fakeMetadata{
		refs: map[string][]providers.Edge{
			"seed": {{Paper: testPaper("x", 100)}},
		},
		cits: map[string][]providers.Edge{
			"seed": {
				{Paper: testPaper("x", 100), IsInfluential: true},
				{Paper: testPaper("y", 30)},
			},
		},
	}
	e := newTestEngine(meta, nil)

	result, err := e.Preview(context.Background(), PreviewRequest{
		SourcePaperID: "seed",
		Direction:     DirectionBoth,
	})
	require.NoError(t, err)

	require.Len(t, result.Candidates, 2)
	assert.Equal(t, 3, result.Stats.Fetched)
	assert.Equal(t, 1, result.Stats.Deduped)

	// x kam als Referenz UND Zitation: einmal gemeldet, beide Flags gesetzt,
	// Influential-Flag aus dem späteren Treffer gemerged.
	x := result.Candidates[0]
	assert.Equal(t, "x", x.Paper.PaperID)
	assert.True(t, x.IsReference)
	assert.True(t, x.IsCitation)
	assert.True(t, x.IsInfluential)
	assert.Equal(t, models.RelationReference, x.Relationship(), "zuerst entdeckte Richtung gewinnt")
}

func TestPreviewInfluentialOnly(t *testing.T) {
	meta := &fakeMetadata{
		refs: map[string][]providers.Edge{
			"seed": {
				{Paper: testPaper("a", 10), IsInfluential: true},
				{Paper: testPaper("b", 500)},
			},
		},
	}
	e := newTestEngine(meta, nil)

	result, err := e.Preview(context.Background(), PreviewRequest{
		SourcePaperID:   "seed",
		Direction:       DirectionReferences,
		InfluentialOnly: true,
	})
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "a", result.Candidates[0].Paper.PaperID)
	assert.Equal(t, 1, result.Stats.Fetched, "Filter greift vor allem anderen")
}

func TestPreviewRanksByCitationCountWithoutEmbedder(t *testing.T) {
	meta := &fakeMetadata{
		refs: map[string][]providers.Edge{
			"seed": {
				{Paper: testPaper("low", 5)},
				{Paper: testPaper("high", 900)},
				{Paper: testPaper("mid", 40)},
			},
		},
	}
	e := newTestEngine(meta, nil)

	result, err := e.Preview(context.Background(), PreviewRequest{
		SourcePaperID: "seed",
		Direction:     DirectionReferences,
		MaxPapers:     2,
	})
	require.NoError(t, err)

	assert.False(t, result.Stats.RerankingApplied)
	// Kappen passiert nach dem Ranking.
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "high", result.Candidates[0].Paper.PaperID)
	assert.Equal(t, "mid", result.Candidates[1].Paper.PaperID)
}

func TestPreviewRerankBySimilarity(t *testing.T) {
	meta := &fakeMetadata{
		refs: map[string][]providers.Edge{
			"seed": {
				{Paper: testPaper("popular-but-off-topic", 900)},
				{Paper: testPaper("on-topic", 3)},
			},
		},
	}
	embedder := &fakeEmbedder{
		query: []float32{1, 0},
		byTitle: map[string][]float32{
			"popular-but-off-topic": {0, 1},
			"on-topic":              {1, 0},
		},
	}
	e := newTestEngine(meta, embedder)

	result, err := e.Preview(context.Background(), PreviewRequest{
		SourcePaperID: "seed",
		Direction:     DirectionReferences,
		Query:         "what is the topic",
	})
	require.NoError(t, err)

	assert.True(t, result.Stats.RerankingApplied)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "on-topic", result.Candidates[0].Paper.PaperID)
	require.NotNil(t, result.Candidates[0].SimilarityScore)
	assert.InDelta(t, 1.0, *result.Candidates[0].SimilarityScore, 1e-6)
}

// Dedup-first-wins: x ist sowohl direkte Referenz des Seeds (Degree 1)
// als auch Referenz-einer-Referenz (Degree 2). x wird genau einmal
// erfasst, auf Degree 1, mit der zuerst entdeckten Relationship.
func TestExpandToDepthFirstDiscoveryWins(t *testing.T) {
	meta := &fakeMetadata{
		refs: map[string][]providers.Edge{
			"seed": {
				{Paper: testPaper("x", 100)},
				{Paper: testPaper("a", 50)},
			},
			"a": {
				{Paper: testPaper("x", 100)},
				{Paper: testPaper("b", 10)},
			},
		},
	}
	e := newTestEngine(meta, nil)

	result, err := e.ExpandToDepth(context.Background(), ExpandRequest{
		SeedPaperIDs: []string{"seed"},
		Depth:        2,
		Direction:    DirectionReferences,
	})
	require.NoError(t, err)

	byID := map[string]*ExpandCandidate{}
	for _, c := range result.Candidates {
		require.NotContains(t, byID, c.Paper.PaperID, "kein Paper doppelt")
		byID[c.Paper.PaperID] = c
	}

	require.Contains(t, byID, "x")
	assert.Equal(t, 1, byID["x"].Degree)
	assert.Equal(t, "seed", byID["x"].SourcePaperID)

	require.Contains(t, byID, "b")
	assert.Equal(t, 2, byID["b"].Degree)
	assert.Equal(t, "a", byID["b"].SourcePaperID)

	assert.Equal(t, 1, result.Stats.Deduped, "die zweite Entdeckung von x zählt als Dedup")
}

func TestExpandToDepthMaxPapersPerNode(t *testing.T) {
	meta := &fakeMetadata{
		refs: map[string][]providers.Edge{
			"seed": {
				{Paper: testPaper("a", 500)},
				{Paper: testPaper("b", 400)},
				{Paper: testPaper("c", 300)},
				{Paper: testPaper("d", 200)},
			},
		},
	}
	e := newTestEngine(meta, nil)
	e.MaxPapersPerNode = 2

	result, err := e.ExpandToDepth(context.Background(), ExpandRequest{
		SeedPaperIDs: []string{"seed"},
		Depth:        1,
		Direction:    DirectionReferences,
	})
	require.NoError(t, err)

	// Fan-out pro Quelle gekappt; die zitationsstärksten zuerst.
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "a", result.Candidates[0].Paper.PaperID)
	assert.Equal(t, "b", result.Candidates[1].Paper.PaperID)
}

func TestExpandToDepthClampsDepth(t *testing.T) {
	meta := &fakeMetadata{refs: map[string][]providers.Edge{}}
	e := newTestEngine(meta, nil)

	// Tiefe > 3 wird auf 3 gekappt, < 1 auf 1; beides läuft fehlerfrei
	// gegen einen leeren Graphen.
	for _, depth := range []int{-1, 0, 5} {
		result, err := e.ExpandToDepth(context.Background(), ExpandRequest{
			SeedPaperIDs: []string{"seed"},
			Depth:        depth,
			Direction:    DirectionReferences,
		})
		require.NoError(t, err)
		assert.Empty(t, result.Candidates)
	}
}

func TestExpandToDepthSeedsNeverRediscovered(t *testing.T) {
	meta := &fakeMetadata{
		refs: map[string][]providers.Edge{
			"seed": {{Paper: testPaper("a", 10)}},
			// Zyklus: a referenziert den Seed zurück.
			"a": {{Paper: testPaper("seed", 99)}},
		},
	}
	e := newTestEngine(meta, nil)

	result, err := e.ExpandToDepth(context.Background(), ExpandRequest{
		SeedPaperIDs: []string{"seed"},
		Depth:        3,
		Direction:    DirectionReferences,
	})
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "a", result.Candidates[0].Paper.PaperID)
	assert.Equal(t, 1, result.Stats.Deduped, "Zyklus zurück zum Seed wird über das Visited-Set geschluckt")
}
