package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"paper-atlas/config"
	"paper-atlas/models"
	"paper-atlas/providers"
)

// Direction bestimmt, welche Kanten des Zitationsgraphen gelaufen werden.
type Direction string

const (
	DirectionReferences Direction = "references"
	DirectionCitations  Direction = "citations"
	DirectionBoth       Direction = "both"
)

// MaxExpandDepth ist die harte Obergrenze der BFS-Tiefe.
const MaxExpandDepth = 3

// ExpandCandidate ist ein durch Expansion entdecktes Paper samt
// Herkunfts-Metadaten. Taucht ein Paper sowohl als Referenz als auch als
// Zitation auf, sind beide Flags gesetzt.
type ExpandCandidate struct {
	Paper           *models.Paper `json:"paper"`
	SourcePaperID   string        `json:"source_paper_id"`
	IsReference     bool          `json:"is_reference"`
	IsCitation      bool          `json:"is_citation"`
	IsInfluential   bool          `json:"is_influential"`
	Degree          int           `json:"degree"`
	SimilarityScore *float64      `json:"similarity_score,omitempty"`
}

// Relationship gibt den persistierten Relationship-Typ zurück. Bei
// beidseitigen Treffern gewinnt die zuerst entdeckte Richtung; Referenzen
// werden vor Zitationen gelistet.
func (c *ExpandCandidate) Relationship() models.RelationshipType {
	if c.IsReference {
		return models.RelationReference
	}
	return models.RelationCitation
}

// ExpandStats beschreibt, was bei einer Expansion passiert ist.
type ExpandStats struct {
	Fetched             int  `json:"fetched"`
	Deduped             int  `json:"deduped"`
	AlreadyInCollection int  `json:"already_in_collection"`
	RerankingApplied    bool `json:"reranking_applied"`
}

// PreviewRequest beschreibt eine einstufige Expansions-Vorschau.
type PreviewRequest struct {
	SourcePaperID string
	// CollectionID 0 bedeutet: keine Link-Exklusion (z. B. freie Exploration).
	CollectionID    uint
	Direction       Direction
	InfluentialOnly bool
	MaxPapers       int
	// Query ist die Forschungsfrage der Collection; steuert das Reranking.
	Query string
}

// ExpandRequest beschreibt eine tiefenbegrenzte BFS-Expansion.
type ExpandRequest struct {
	CollectionID    uint
	SeedPaperIDs    []string
	Depth           int
	Direction       Direction
	InfluentialOnly bool
	Query           string
}

// PreviewResult ist das Ergebnis einer Vorschau oder BFS-Expansion.
type PreviewResult struct {
	Candidates []*ExpandCandidate `json:"candidates"`
	Stats      ExpandStats        `json:"stats"`
}

// AcceptResult ist das Ergebnis der Übernahme von Kandidaten.
type AcceptResult struct {
	AddedCount      int `json:"added_count"`
	QueuedDownloads int `json:"queued_downloads"`
}

// QueryEmbedder ist die Embedding-Abhängigkeit der Engine; in Tests durch
// einen Fake ersetzbar.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// DownloadQueuer reiht für ein akzeptiertes Paper den Download-Job ein.
type DownloadQueuer interface {
	EnqueueDownload(ctx context.Context, paper *models.Paper, collectionID uint) (string, error)
}

// ExpansionEngine läuft den Zitationsgraphen tiefenbegrenzt ab,
// dedupliziert Kandidaten und rankt sie semantisch oder nach Zitationszahl.
type ExpansionEngine struct {
	DB       *gorm.DB
	Provider providers.MetadataProvider
	// Embedder darf nil sein; dann wird nach Zitationszahl gerankt.
	Embedder QueryEmbedder
	// Queuer darf nil sein; dann werden keine Downloads eingereiht.
	Queuer DownloadQueuer
	Logger *zap.Logger

	MaxPapersPerNode int
	PreviewCap       int
}

// NewExpansionEngine erstellt eine neue Engine.
func NewExpansionEngine(db *gorm.DB, provider providers.MetadataProvider, embedder QueryEmbedder, queuer DownloadQueuer, cfg *config.Config, logger *zap.Logger) *ExpansionEngine {
	return &ExpansionEngine{
		DB:               db,
		Provider:         provider,
		Embedder:         embedder,
		Queuer:           queuer,
		Logger:           logger,
		MaxPapersPerNode: cfg.MaxPapersPerNode,
		PreviewCap:       cfg.PreviewCap,
	}
}

// Preview expandiert ein einzelnes Paper um eine Stufe: Kanten laden,
// deduplizieren, bereits verlinkte Papers ausschließen, ranken, kappen.
// InfluentialOnly filtert die Kantenliste vor allem anderen.
func (e *ExpansionEngine) Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	result := &PreviewResult{}

	edges, err := e.fetchEdges(ctx, req.SourcePaperID, req.Direction, req.InfluentialOnly)
	if err != nil {
		return nil, err
	}
	result.Stats.Fetched = len(edges)

	linked, err := e.linkedPaperIDs(req.CollectionID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]*ExpandCandidate)
	for _, edge := range edges {
		id := edge.paper.PaperID
		if _, ok := linked[id]; ok {
			result.Stats.AlreadyInCollection++
			continue
		}
		if existing, ok := seen[id]; ok {
			// Beide Richtungen getroffen: nur Flags mergen, die zuerst
			// erfasste Relationship bleibt maßgeblich.
			result.Stats.Deduped++
			existing.IsReference = existing.IsReference || edge.relation == models.RelationReference
			existing.IsCitation = existing.IsCitation || edge.relation == models.RelationCitation
			existing.IsInfluential = existing.IsInfluential || edge.influential
			continue
		}
		cand := &ExpandCandidate{
			Paper:         edge.paper,
			SourcePaperID: req.SourcePaperID,
			IsReference:   edge.relation == models.RelationReference,
			IsCitation:    edge.relation == models.RelationCitation,
			IsInfluential: edge.influential,
			Degree:        1,
		}
		seen[id] = cand
		result.Candidates = append(result.Candidates, cand)
	}

	if err := e.rank(ctx, result, req.Query); err != nil {
		return nil, err
	}

	limit := req.MaxPapers
	if limit <= 0 || limit > e.PreviewCap {
		limit = e.PreviewCap
	}
	if len(result.Candidates) > limit {
		result.Candidates = result.Candidates[:limit]
	}

	if e.Logger != nil {
		e.Logger.Info("Expansion-Preview berechnet",
			zap.String("source", req.SourcePaperID),
			zap.Int("fetched", result.Stats.Fetched),
			zap.Int("candidates", len(result.Candidates)),
			zap.Bool("reranked", result.Stats.RerankingApplied))
	}
	return result, nil
}

// ExpandToDepth läuft den Graphen breadth-first bis zur gewünschten Tiefe.
// Level k wird ausschließlich aus den Kandidaten von Level k-1 entdeckt;
// das Visited-Set stellt sicher, dass die erste Entdeckung gewinnt und
// ein Paper nie auf tieferem Level neu erfasst wird. MaxPapersPerNode
// begrenzt den Fan-out pro Quell-Paper auf jedem Level.
func (e *ExpansionEngine) ExpandToDepth(ctx context.Context, req ExpandRequest) (*PreviewResult, error) {
	depth := req.Depth
	if depth < 1 {
		depth = 1
	}
	if depth > MaxExpandDepth {
		depth = MaxExpandDepth
	}

	result := &PreviewResult{}

	linked, err := e.linkedPaperIDs(req.CollectionID)
	if err != nil {
		return nil, err
	}

	visited := make(map[string]bool, len(req.SeedPaperIDs))
	for _, id := range req.SeedPaperIDs {
		visited[id] = true
	}

	frontier := req.SeedPaperIDs
	for level := 1; level <= depth && len(frontier) > 0; level++ {
		var nextFrontier []string

		for _, sourceID := range frontier {
			edges, err := e.fetchEdges(ctx, sourceID, req.Direction, req.InfluentialOnly)
			if err != nil {
				return nil, err
			}
			result.Stats.Fetched += len(edges)

			// Fan-out-Kappung pro Quelle: die zitationsstärksten Kanten zuerst.
			sort.SliceStable(edges, func(i, j int) bool {
				return edges[i].paper.CitationCount > edges[j].paper.CitationCount
			})

			taken := 0
			for _, edge := range edges {
				if taken >= e.MaxPapersPerNode {
					break
				}
				id := edge.paper.PaperID
				if _, ok := linked[id]; ok {
					result.Stats.AlreadyInCollection++
					continue
				}
				if visited[id] {
					result.Stats.Deduped++
					continue
				}
				visited[id] = true
				result.Candidates = append(result.Candidates, &ExpandCandidate{
					Paper:         edge.paper,
					SourcePaperID: sourceID,
					IsReference:   edge.relation == models.RelationReference,
					IsCitation:    edge.relation == models.RelationCitation,
					IsInfluential: edge.influential,
					Degree:        level,
				})
				nextFrontier = append(nextFrontier, id)
				taken++

				if len(result.Candidates) >= e.PreviewCap {
					break
				}
			}
			if len(result.Candidates) >= e.PreviewCap {
				break
			}
		}
		if len(result.Candidates) >= e.PreviewCap {
			break
		}
		frontier = nextFrontier
	}

	if err := e.rank(ctx, result, req.Query); err != nil {
		return nil, err
	}

	if e.Logger != nil {
		e.Logger.Info("BFS-Expansion abgeschlossen",
			zap.Uint("collectionId", req.CollectionID),
			zap.Int("depth", depth),
			zap.Int("candidates", len(result.Candidates)))
	}
	return result, nil
}

// Accept übernimmt ausgewählte Kandidaten in die Collection. Paper-Zeilen
// und Links werden mit ON CONFLICT DO NOTHING geschrieben; die Unique-
// Constraint auf (collection_id, paper_id) erzwingt first-wins. Für neu
// verlinkte Papers mit Download-Quelle wird der Download-Job eingereiht.
func (e *ExpansionEngine) Accept(ctx context.Context, collectionID uint, selections []*ExpandCandidate) (*AcceptResult, error) {
	result := &AcceptResult{}

	for _, sel := range selections {
		if sel.Paper == nil || sel.Paper.PaperID == "" {
			continue
		}

		if err := e.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "paper_id"}},
			DoNothing: true,
		}).Create(sel.Paper).Error; err != nil {
			return nil, fmt.Errorf("upsert paper %s: %w", sel.Paper.PaperID, err)
		}

		link := models.CollectionPaper{
			CollectionID:     collectionID,
			PaperID:          sel.Paper.PaperID,
			SourcePaperID:    sel.SourcePaperID,
			RelationshipType: sel.Relationship(),
			SimilarityScore:  sel.SimilarityScore,
			Degree:           sel.Degree,
		}
		tx := e.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&link)
		if tx.Error != nil {
			return nil, fmt.Errorf("link paper %s: %w", sel.Paper.PaperID, tx.Error)
		}
		if tx.RowsAffected == 0 {
			continue
		}
		result.AddedCount++

		if e.Queuer == nil || !sel.Paper.HasDownloadSource() {
			continue
		}
		jobID, err := e.Queuer.EnqueueDownload(ctx, sel.Paper, collectionID)
		if err != nil {
			// Das Paper ist verlinkt; der Reconciliation-Sweep holt den
			// Download später nach.
			if e.Logger != nil {
				e.Logger.Warn("Download-Job nicht einreihbar",
					zap.String("paperId", sel.Paper.PaperID), zap.Error(err))
			}
			continue
		}
		if jobID != "" {
			result.QueuedDownloads++
		}
	}

	if e.Logger != nil {
		e.Logger.Info("Expansions-Kandidaten übernommen",
			zap.Uint("collectionId", collectionID),
			zap.Int("added", result.AddedCount),
			zap.Int("queuedDownloads", result.QueuedDownloads))
	}
	return result, nil
}

// taggedEdge ist eine Kante samt Richtung, aus der sie stammt.
type taggedEdge struct {
	paper       *models.Paper
	relation    models.RelationshipType
	influential bool
}

// fetchEdges lädt die Kanten eines Papers in der gewünschten Richtung.
// Bei DirectionBoth kommen erst die Referenzen, dann die Zitationen —
// die Reihenfolge bestimmt bei Dedup, welche Relationship gewinnt.
func (e *ExpansionEngine) fetchEdges(ctx context.Context, paperID string, dir Direction, influentialOnly bool) ([]taggedEdge, error) {
	var out []taggedEdge

	appendEdges := func(edges []providers.Edge, rel models.RelationshipType) {
		for _, edge := range edges {
			if influentialOnly && !edge.IsInfluential {
				continue
			}
			if edge.Paper == nil || edge.Paper.PaperID == "" {
				continue
			}
			out = append(out, taggedEdge{paper: edge.Paper, relation: rel, influential: edge.IsInfluential})
		}
	}

	if dir == DirectionReferences || dir == DirectionBoth {
		refs, err := e.Provider.References(ctx, paperID)
		if err != nil {
			return nil, fmt.Errorf("fetch references of %s: %w", paperID, err)
		}
		appendEdges(refs, models.RelationReference)
	}
	if dir == DirectionCitations || dir == DirectionBoth {
		cits, err := e.Provider.Citations(ctx, paperID)
		if err != nil {
			return nil, fmt.Errorf("fetch citations of %s: %w", paperID, err)
		}
		appendEdges(cits, models.RelationCitation)
	}

	return out, nil
}

// linkedPaperIDs lädt die Paper-IDs, die bereits in der Collection sind.
func (e *ExpansionEngine) linkedPaperIDs(collectionID uint) (map[string]struct{}, error) {
	linked := make(map[string]struct{})
	if collectionID == 0 || e.DB == nil {
		return linked, nil
	}

	var ids []string
	if err := e.DB.Model(&models.CollectionPaper{}).
		Where("collection_id = ?", collectionID).
		Pluck("paper_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("load collection links: %w", err)
	}
	for _, id := range ids {
		linked[id] = struct{}{}
	}
	return linked, nil
}

// rank sortiert die Kandidaten: semantisch absteigend, wenn ein Query-
// Embedding verfügbar ist, sonst nach Zitationszahl. Embedding-Fehler
// werden als typisierter Fehler durchgereicht, kein stilles Degradieren.
func (e *ExpansionEngine) rank(ctx context.Context, result *PreviewResult, query string) error {
	if e.Embedder == nil || query == "" || len(result.Candidates) == 0 {
		sort.SliceStable(result.Candidates, func(i, j int) bool {
			return result.Candidates[i].Paper.CitationCount > result.Candidates[j].Paper.CitationCount
		})
		return nil
	}

	queryVec, err := e.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: embed query: %v", ErrEmbeddingService, err)
	}

	texts := make([]string, len(result.Candidates))
	for i, c := range result.Candidates {
		texts[i] = c.Paper.Title
		if c.Paper.Abstract != "" {
			texts[i] += ". " + c.Paper.Abstract
		}
	}
	vecs, err := e.Embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: embed candidates: %v", ErrEmbeddingService, err)
	}
	if len(vecs) != len(result.Candidates) {
		return fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbeddingService, len(result.Candidates), len(vecs))
	}

	for i, c := range result.Candidates {
		score := CosineSimilarity(queryVec, vecs[i])
		c.SimilarityScore = &score
	}
	sort.SliceStable(result.Candidates, func(i, j int) bool {
		return *result.Candidates[i].SimilarityScore > *result.Candidates[j].SimilarityScore
	})
	result.Stats.RerankingApplied = true
	return nil
}
