package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	oa "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"paper-atlas/config"
)

const (
	// EmbeddingDimension ist die Vektor-Dimension von text-embedding-3-small.
	// Muss zu storage.VectorDimension passen.
	EmbeddingDimension = 1536

	// defaultBatchSize balanciert Requests-pro-Minute gegen Token-Limits.
	defaultBatchSize = 500
)

// Embedder erzeugt Embeddings über die OpenAI-API. Requests werden
// gebatcht und bei Rate-Limit-Fehlern mit exponentiellem Backoff wiederholt.
type Embedder struct {
	client    oa.Client
	model     string
	batchSize int
	logger    *zap.Logger
}

// NewEmbedder erstellt einen neuen Embedder.
func NewEmbedder(cfg *config.Config, logger *zap.Logger) *Embedder {
	return &Embedder{
		client:    oa.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey)),
		model:     cfg.EmbeddingModel,
		batchSize: defaultBatchSize,
		logger:    logger,
	}
}

// EmbedTexts erzeugt Embeddings für die gegebenen Texte, in Batches.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	var all [][]float32

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch, err := e.embedBatchWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		all = append(all, batch...)
	}

	return all, nil
}

// EmbedQuery erzeugt das Embedding für einen einzelnen Query-Text.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
	}
	return vecs[0], nil
}

// embedBatchWithRetry bettet einen Batch ein. Nur 429er werden mit
// Backoff wiederholt; alle anderen Fehler sind permanent.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		resp, err := e.client.Embeddings.New(ctx, oa.EmbeddingNewParams{
			Input: oa.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: oa.EmbeddingModel(e.model),
		})
		if err != nil {
			if isRateLimitError(err) {
				e.logger.Warn("OpenAI rate limit, retrying with backoff")
				return err
			}
			return backoff.Permanent(err)
		}

		embeddings = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			embeddings[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	return embeddings, err
}

// isRateLimitError prüft auf HTTP 429.
func isRateLimitError(err error) bool {
	var apiErr *oa.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 konvertiert die float64-Antwort der API in float32 für den Store.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
