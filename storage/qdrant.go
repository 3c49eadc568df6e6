package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"paper-atlas/config"
)

const (
	// VectorCollection ist die Qdrant-Collection für alle Paper-Chunks.
	VectorCollection = "paper_chunks"

	// VectorDimension muss zur Embedding-Dimension passen (text-embedding-3-small).
	VectorDimension = 1536
)

// Chunk ist ein eingebetteter Textabschnitt eines Papers.
type Chunk struct {
	ID           string
	PaperID      string
	CollectionID uint
	ChunkIndex   int
	// Kind unterscheidet Text-Chunks von Figure-Analysen ("text" / "figure").
	Kind      string
	Content   string
	Embedding []float32
}

// ScoredChunk ist ein Suchtreffer mit Similarity-Score.
type ScoredChunk struct {
	Chunk *Chunk
	Score float64
}

// VectorStore kapselt den Qdrant-Client für Chunk-Upserts und Suche.
type VectorStore struct {
	client *qdrant.Client
}

// NewVectorStore erstellt einen Qdrant-Client und prüft die Erreichbarkeit
// mit exponentiellem Backoff. Schlägt schnell fehl, wenn Qdrant nicht läuft.
func NewVectorStore(cfg *config.Config) (*VectorStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.QdrantHost,
		Port: cfg.QdrantPort,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	vs := &VectorStore{client: client}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(func() error {
		return vs.Health(context.Background())
	}, b); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant unreachable: %w", err)
	}

	return vs, nil
}

// Health prüft den Qdrant-Status.
func (vs *VectorStore) Health(ctx context.Context) error {
	result, err := vs.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection legt die Chunk-Collection samt Payload-Indexen an,
// falls sie noch nicht existiert. Idempotent.
func (vs *VectorStore) EnsureCollection(ctx context.Context) error {
	collections, err := vs.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == VectorCollection {
			return nil
		}
	}

	err = vs.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: VectorCollection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     VectorDimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// Ohne diese Indexe wird das Filtern nach Paper/Collection sehr langsam.
	for _, field := range []string{"paper_id", "collection_id", "kind"} {
		_, err := vs.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: VectorCollection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	return nil
}

// UpsertChunks schreibt Chunks in Batches von 100 in den Store.
func (vs *VectorStore) UpsertChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for i, chunk := range chunks {
		if len(chunk.Embedding) != VectorDimension {
			return fmt.Errorf("chunk %d has %d dimensions, expected %d",
				i, len(chunk.Embedding), VectorDimension)
		}
	}

	batchSize := 100
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))
		batch := chunks[i:end]

		points := make([]*qdrant.PointStruct, len(batch))
		for j, chunk := range batch {
			points[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(chunk.ID),
				Vectors: qdrant.NewVectors(chunk.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					"paper_id":      chunk.PaperID,
					"collection_id": fmt.Sprintf("%d", chunk.CollectionID),
					"chunk_index":   chunk.ChunkIndex,
					"kind":          chunk.Kind,
					"content":       chunk.Content,
				}),
			}
		}

		if err := vs.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// upsertWithRetry wiederholt den Upsert mit exponentiellem Backoff.
func (vs *VectorStore) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		_, err := vs.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: VectorCollection,
			Points:         points,
		})
		return err
	}, backoff.WithContext(b, ctx))
}

// SearchChunks sucht die ähnlichsten Chunks einer Collection.
func (vs *VectorStore) SearchChunks(ctx context.Context, embedding []float32, collectionID uint, limit int) ([]*ScoredChunk, error) {
	if len(embedding) != VectorDimension {
		return nil, fmt.Errorf("query has %d dimensions, expected %d", len(embedding), VectorDimension)
	}

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("collection_id", fmt.Sprintf("%d", collectionID)),
		},
	}

	results, err := vs.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: VectorCollection,
		Query:          qdrant.NewQuery(embedding...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	scored := make([]*ScoredChunk, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		scored = append(scored, &ScoredChunk{
			Chunk: &Chunk{
				ID:         result.Id.GetUuid(),
				PaperID:    payload["paper_id"].GetStringValue(),
				ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
				Kind:       payload["kind"].GetStringValue(),
				Content:    payload["content"].GetStringValue(),
			},
			Score: float64(result.Score),
		})
	}
	return scored, nil
}

// DeletePaperChunks entfernt alle Chunks eines Papers in einer Collection.
// Wird beim Entfernen eines Papers best-effort aufgerufen.
func (vs *VectorStore) DeletePaperChunks(ctx context.Context, collectionID uint, paperID string) error {
	_, err := vs.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: VectorCollection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("collection_id", fmt.Sprintf("%d", collectionID)),
				qdrant.NewMatch("paper_id", paperID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunks for paper %s: %w", paperID, err)
	}
	return nil
}

// DeleteCollectionChunks entfernt alle Chunks einer Collection.
func (vs *VectorStore) DeleteCollectionChunks(ctx context.Context, collectionID uint) error {
	_, err := vs.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: VectorCollection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("collection_id", fmt.Sprintf("%d", collectionID)),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunks for collection %d: %w", collectionID, err)
	}
	return nil
}

// Close schließt die Qdrant-Verbindung.
func (vs *VectorStore) Close() error {
	if vs.client != nil {
		return vs.client.Close()
	}
	return nil
}
