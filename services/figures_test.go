package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paper-atlas/models"
	"paper-atlas/providers/pdffigures"
	"paper-atlas/storage"
)

type fakeSidecar struct {
	figures []pdffigures.Figure
	err     error
}

func (f *fakeSidecar) Extract(ctx context.Context, pdfData []byte) ([]pdffigures.Figure, error) {
	return f.figures, f.err
}

type fakeAnalyzer struct {
	failFor map[string]bool
}

func (f *fakeAnalyzer) AnalyzeFigure(ctx context.Context, figureName, caption, paperTitle string) (string, error) {
	if f.failFor[figureName] {
		return "", errors.New("model unavailable")
	}
	return "analysis of " + figureName, nil
}

type fakeChunkStore struct {
	chunks []*storage.Chunk
	err    error
}

func (f *fakeChunkStore) UpsertChunks(ctx context.Context, chunks []*storage.Chunk) error {
	f.chunks = append(f.chunks, chunks...)
	return f.err
}

func sidecarFig(name string, page int) pdffigures.Figure {
	return pdffigures.Figure{Name: name, FigType: "Figure", Page: page, Caption: "Caption for " + name}
}

func newFigurePipeline(sidecar *fakeSidecar, analyzer *fakeAnalyzer, store *fakeChunkStore) *FigurePipeline {
	return &FigurePipeline{
		Sidecar:  sidecar,
		Analyzer: analyzer,
		Embedder: &fakeEmbedder{},
		Store:    store,
		Strategy: StrategyPDFFigures,
		Logger:   zap.NewNop(),
	}
}

func TestFigureProcessAnalyzesAndIndexes(t *testing.T) {
	store := &fakeChunkStore{}
	fp := newFigurePipeline(
		&fakeSidecar{figures: []pdffigures.Figure{sidecarFig("Figure 1", 2), sidecarFig("Table 1", 4)}},
		&fakeAnalyzer{},
		store,
	)
	paper := &models.Paper{PaperID: "p1", Title: "Some Paper"}

	var phases []string
	figures, err := fp.Process(context.Background(), paper, 1, []byte("pdf"), false, func(p FigureProgress) {
		phases = append(phases, p.Phase)
	})
	require.NoError(t, err)
	require.Len(t, figures, 2)

	assert.Equal(t, "p1", figures[0].PaperID)
	assert.Equal(t, "analysis of Figure 1", figures[0].Analysis)

	require.Len(t, store.chunks, 2)
	assert.Equal(t, "figure", store.chunks[0].Kind)
	assert.Equal(t, "p1", store.chunks[0].PaperID)
	assert.Equal(t, uint(1), store.chunks[0].CollectionID)
	assert.Contains(t, store.chunks[0].Content, "Figure 1: analysis of Figure 1")

	assert.Contains(t, phases, "detection")
	assert.Contains(t, phases, "analysis")
	assert.Contains(t, phases, "done")
}

func TestFigureProcessNoFiguresIsNotAnError(t *testing.T) {
	fp := newFigurePipeline(&fakeSidecar{}, &fakeAnalyzer{}, &fakeChunkStore{})

	figures, err := fp.Process(context.Background(), &models.Paper{PaperID: "p1"}, 1, []byte("pdf"), false, nil)
	require.NoError(t, err)
	assert.Nil(t, figures)
}

func TestFigureProcessDetectOnlySkipsAnalysis(t *testing.T) {
	store := &fakeChunkStore{}
	fp := newFigurePipeline(
		&fakeSidecar{figures: []pdffigures.Figure{sidecarFig("Figure 1", 1)}},
		&fakeAnalyzer{failFor: map[string]bool{"Figure 1": true}},
		store,
	)

	figures, err := fp.Process(context.Background(), &models.Paper{PaperID: "p1"}, 1, []byte("pdf"), true, nil)
	require.NoError(t, err)
	require.Len(t, figures, 1)
	assert.Empty(t, figures[0].Analysis)
	assert.Empty(t, store.chunks)
}

func TestFigureProcessToleratesPartialAnalysisFailures(t *testing.T) {
	store := &fakeChunkStore{}
	fp := newFigurePipeline(
		&fakeSidecar{figures: []pdffigures.Figure{sidecarFig("Figure 1", 1), sidecarFig("Figure 2", 2)}},
		&fakeAnalyzer{failFor: map[string]bool{"Figure 1": true}},
		store,
	)

	figures, err := fp.Process(context.Background(), &models.Paper{PaperID: "p1", Title: "T"}, 1, []byte("pdf"), false, nil)
	require.NoError(t, err)
	require.Len(t, figures, 2)

	assert.Empty(t, figures[0].Analysis)
	assert.Equal(t, "analysis of Figure 2", figures[1].Analysis)
	// Nur die gelungene Analyse landet im Vektor-Store.
	require.Len(t, store.chunks, 1)
	assert.Contains(t, store.chunks[0].Content, "Figure 2")
}

func TestFigureProcessFailsWhenAllAnalysesFail(t *testing.T) {
	fp := newFigurePipeline(
		&fakeSidecar{figures: []pdffigures.Figure{sidecarFig("Figure 1", 1)}},
		&fakeAnalyzer{failFor: map[string]bool{"Figure 1": true}},
		&fakeChunkStore{},
	)

	_, err := fp.Process(context.Background(), &models.Paper{PaperID: "p1"}, 1, []byte("pdf"), false, nil)
	assert.ErrorIs(t, err, ErrFigureAnalysis)
}

func TestFigureProcessDetectionError(t *testing.T) {
	fp := newFigurePipeline(&fakeSidecar{err: errors.New("sidecar down")}, &fakeAnalyzer{}, &fakeChunkStore{})

	_, err := fp.Process(context.Background(), &models.Paper{PaperID: "p1"}, 1, []byte("pdf"), false, nil)
	assert.ErrorIs(t, err, ErrFigureDetection)
}

func TestFigureProcessVectorStoreError(t *testing.T) {
	fp := newFigurePipeline(
		&fakeSidecar{figures: []pdffigures.Figure{sidecarFig("Figure 1", 1)}},
		&fakeAnalyzer{},
		&fakeChunkStore{err: errors.New("qdrant unreachable")},
	)

	_, err := fp.Process(context.Background(), &models.Paper{PaperID: "p1"}, 1, []byte("pdf"), false, nil)
	assert.ErrorIs(t, err, ErrVectorStoreUpload)
}
