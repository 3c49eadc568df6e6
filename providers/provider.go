package providers

import (
	"context"

	"paper-atlas/models"
)

// Edge ist eine Referenz- oder Zitations-Kante des Metadaten-Service.
type Edge struct {
	Paper *models.Paper
	// IsInfluential markiert Kanten, die der Service als substanziell
	// einflussreich einstuft (nicht bloß beiläufig zitiert).
	IsInfluential bool
}

// MetadataProvider ist das Interface für den akademischen Metadaten-Service
// (Suche, Batch-Lookup, Kanten-Listing).
type MetadataProvider interface {
	// SearchPapers führt eine Volltext-Suche aus und liefert standardisierte
	// Paper-Modelle zurück.
	SearchPapers(ctx context.Context, query string, limit int) ([]*models.Paper, error)

	// GetPapers löst eine Liste von Paper-IDs in einem Batch auf.
	GetPapers(ctx context.Context, paperIDs []string) ([]*models.Paper, error)

	// References liefert die Papers, die das gegebene Paper zitiert.
	References(ctx context.Context, paperID string) ([]Edge, error)

	// Citations liefert die Papers, die das gegebene Paper zitieren.
	Citations(ctx context.Context, paperID string) ([]Edge, error)

	// Name gibt den eindeutigen Namen des Providers zurück.
	Name() string
}
