package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"paper-atlas/models"
	"paper-atlas/providers/openai"
	"paper-atlas/providers/pdffigures"
	"paper-atlas/storage"
)

// Detection-Strategien für die Figure-Stufe.
const (
	StrategyPDFFigures = "pdffigures"
	StrategyVision     = "vision"
)

// FigureProgress ist ein Fortschritts-Ereignis der Figure-Stufe, damit
// ein langlaufender Aufrufer Status streamen kann.
type FigureProgress struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
}

// ProgressFunc empfängt Fortschritts-Ereignisse; darf nil sein.
type ProgressFunc func(FigureProgress)

// SidecarDetector ist die Layout-Analyse-Abhängigkeit (pdffigures2).
type SidecarDetector interface {
	Extract(ctx context.Context, pdfData []byte) ([]pdffigures.Figure, error)
}

// TextDetector ist die modellbasierte Detection-Alternative.
type TextDetector interface {
	DetectFigures(ctx context.Context, text string) ([]openai.DetectedFigure, error)
}

// FigureAnalyzer schickt eine Figur an den Captioning-Service.
type FigureAnalyzer interface {
	AnalyzeFigure(ctx context.Context, figureName, caption, paperTitle string) (string, error)
}

// ChunkUpserter schreibt Analyse-Chunks in den Vektor-Store.
type ChunkUpserter interface {
	UpsertChunks(ctx context.Context, chunks []*storage.Chunk) error
}

// FigurePipeline erkennt Figuren in einer PDF und analysiert sie optional.
// Die Detection-Strategie ist konfigurierbar: Layout-Analyse-Sidecar oder
// Caption-Mining über das Chat-Modell.
type FigurePipeline struct {
	DB        *gorm.DB
	Sidecar   SidecarDetector
	Vision    TextDetector
	Analyzer  FigureAnalyzer
	Embedder  QueryEmbedder
	Store     ChunkUpserter
	Extractor *Extractor
	Strategy  string
	Logger    *zap.Logger
}

// Process läuft die Figure-Stufe für ein Paper: Regionen erkennen,
// persistieren und — sofern nicht detectOnly — jede Figur analysieren und
// die Analysen als Chunks in den Vektor-Store schreiben. Keine erkannten
// Figuren sind kein Fehler; der Aufrufer setzt dann skipped.
func (fp *FigurePipeline) Process(ctx context.Context, paper *models.Paper, collectionID uint, pdfData []byte, detectOnly bool, progress ProgressFunc) ([]models.Figure, error) {
	report := func(phase, message string) {
		if progress != nil {
			progress(FigureProgress{Phase: phase, Message: message})
		}
	}

	report("detection", fmt.Sprintf("detecting figures via %s", fp.Strategy))
	figures, err := fp.detect(ctx, pdfData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFigureDetection, err)
	}
	if len(figures) == 0 {
		report("detection", "no figures detected")
		return nil, nil
	}
	report("detection", fmt.Sprintf("detected %d figures", len(figures)))

	for i := range figures {
		figures[i].PaperID = paper.PaperID
	}
	if fp.DB != nil {
		// Alte Detection-Ergebnisse verwerfen; Re-Runs sollen keinen
		// doppelten Figurensatz hinterlassen.
		if err := fp.DB.Where("paper_id = ?", paper.PaperID).Delete(&models.Figure{}).Error; err != nil {
			return nil, fmt.Errorf("clear previous figures: %w", err)
		}
		if err := fp.DB.Create(&figures).Error; err != nil {
			return nil, fmt.Errorf("persist figures: %w", err)
		}
	}

	if detectOnly {
		report("done", "detection-only run completed")
		return figures, nil
	}

	analyzed := 0
	for i := range figures {
		report("analysis", fmt.Sprintf("analyzing %s (%d/%d)", figures[i].Name, i+1, len(figures)))
		analysis, err := fp.Analyzer.AnalyzeFigure(ctx, figures[i].Name, figures[i].Caption, paper.Title)
		if err != nil {
			// Einzelne Ausfälle tolerieren; erst wenn keine einzige
			// Analyse gelingt, ist die Stufe gescheitert.
			fp.Logger.Warn("Figure-Analyse fehlgeschlagen",
				zap.String("paperId", paper.PaperID),
				zap.String("figure", figures[i].Name),
				zap.Error(err))
			continue
		}
		figures[i].Analysis = analysis
		analyzed++

		if fp.DB != nil {
			if err := fp.DB.Model(&figures[i]).Update("analysis", analysis).Error; err != nil {
				return nil, fmt.Errorf("persist analysis: %w", err)
			}
		}
	}
	if analyzed == 0 {
		return figures, fmt.Errorf("%w: all %d figures failed", ErrFigureAnalysis, len(figures))
	}

	report("indexing", fmt.Sprintf("embedding %d analyses", analyzed))
	if err := fp.indexAnalyses(ctx, paper, collectionID, figures); err != nil {
		return figures, err
	}

	report("done", fmt.Sprintf("analyzed %d/%d figures", analyzed, len(figures)))
	return figures, nil
}

// detect wählt die konfigurierte Detection-Strategie.
func (fp *FigurePipeline) detect(ctx context.Context, pdfData []byte) ([]models.Figure, error) {
	switch fp.Strategy {
	case StrategyVision:
		text, err := fp.Extractor.ExtractText(pdfData)
		if err != nil {
			return nil, err
		}
		detected, err := fp.Vision.DetectFigures(ctx, text)
		if err != nil {
			return nil, err
		}
		figures := make([]models.Figure, 0, len(detected))
		for _, d := range detected {
			figures = append(figures, models.Figure{
				Name:    d.Name,
				FigType: d.FigType,
				Page:    d.Page,
				Caption: d.Caption,
			})
		}
		return figures, nil

	default:
		detected, err := fp.Sidecar.Extract(ctx, pdfData)
		if err != nil {
			return nil, err
		}
		figures := make([]models.Figure, 0, len(detected))
		for _, d := range detected {
			figures = append(figures, models.Figure{
				Name:    d.Name,
				FigType: d.FigType,
				Page:    d.Page,
				Caption: d.Caption,
				X1:      d.RegionBoundary.X1,
				Y1:      d.RegionBoundary.Y1,
				X2:      d.RegionBoundary.X2,
				Y2:      d.RegionBoundary.Y2,
			})
		}
		return figures, nil
	}
}

// indexAnalyses bettet die Analyse-Texte ein und schreibt sie als
// Figure-Chunks in den Vektor-Store.
func (fp *FigurePipeline) indexAnalyses(ctx context.Context, paper *models.Paper, collectionID uint, figures []models.Figure) error {
	var texts []string
	var withAnalysis []*models.Figure
	for i := range figures {
		if figures[i].Analysis == "" {
			continue
		}
		texts = append(texts, figures[i].Name+": "+figures[i].Analysis)
		withAnalysis = append(withAnalysis, &figures[i])
	}
	if len(texts) == 0 {
		return nil
	}

	vecs, err := fp.Embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbeddingService, err)
	}
	if len(vecs) != len(texts) {
		return fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbeddingService, len(texts), len(vecs))
	}

	chunks := make([]*storage.Chunk, len(texts))
	for i := range texts {
		chunks[i] = &storage.Chunk{
			ID:           uuid.NewString(),
			PaperID:      paper.PaperID,
			CollectionID: collectionID,
			ChunkIndex:   i,
			Kind:         "figure",
			Content:      texts[i],
			Embedding:    vecs[i],
		}
	}
	if err := fp.Store.UpsertChunks(ctx, chunks); err != nil {
		return fmt.Errorf("%w: %v", ErrVectorStoreUpload, err)
	}
	return nil
}
