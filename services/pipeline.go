package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"paper-atlas/models"
	"paper-atlas/queue"
	"paper-atlas/storage"
)

// Job-Timeouts pro Stufe. Ein Timeout ist ein Stufen-Fehler, kein Hänger.
const (
	downloadJobTimeout = 2 * time.Minute
	indexingJobTimeout = 5 * time.Minute
	figureJobTimeout   = 10 * time.Minute
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// JobBroker ist die Broker-Abhängigkeit der Pipeline.
type JobBroker interface {
	Enqueue(taskType, queueName, jobID string, p queue.Payload, timeout time.Duration) (string, error)
	Dequeue(queueName, jobID string) error
}

// BlobStore ist der PDF-Blob-Store der Pipeline.
type BlobStore interface {
	UploadPDF(ctx context.Context, key string, data []byte) (string, error)
	DownloadPDF(ctx context.Context, key string) ([]byte, error)
	DeletePDF(ctx context.Context, key string) error
}

// OpenAccessResolver löst eine DOI in eine freie PDF-URL auf.
type OpenAccessResolver interface {
	GetPDFLink(ctx context.Context, doi string) (string, error)
}

// VectorIndex ist der Vektor-Store aus Pipeline-Sicht.
type VectorIndex interface {
	UpsertChunks(ctx context.Context, chunks []*storage.Chunk) error
	DeletePaperChunks(ctx context.Context, collectionID uint, paperID string) error
	DeleteCollectionChunks(ctx context.Context, collectionID uint) error
}

// Pipeline orchestriert die drei Ingestion-Stufen download -> indexing ->
// figure-analysis und hält die Status-Maschine der Papers aktuell. Die
// Status-Felder werden ausschließlich von der jeweils zuständigen Stufe
// geschrieben: Download/Indexing besitzen text_vector_status, die
// Figure-Stufe image_vector_status.
type Pipeline struct {
	DB             *gorm.DB
	Broker         JobBroker
	Blobs          BlobStore
	Vectors        VectorIndex
	Unpaywall      OpenAccessResolver
	Embedder       QueryEmbedder
	Extractor      *Extractor
	Figures        *FigurePipeline
	FiguresEnabled bool
	Logger         *zap.Logger
}

// EnqueueDownload reiht den Download-Job eines Papers ein. Ohne
// Download-Quelle schlägt der Aufruf mit ErrSourceUnresolvable fehl.
// Eine leere Job-ID bedeutet: derselbe Job ist bereits queued oder aktiv.
func (p *Pipeline) EnqueueDownload(ctx context.Context, paper *models.Paper, collectionID uint) (string, error) {
	if !paper.HasDownloadSource() {
		return "", fmt.Errorf("%w: paper %s", ErrSourceUnresolvable, paper.PaperID)
	}
	return p.Broker.Enqueue(queue.TypeDownload, queue.QueueDownload,
		queue.DownloadJobID(paper.PaperID),
		queue.Payload{PaperID: paper.PaperID, CollectionID: collectionID},
		downloadJobTimeout)
}

// EnqueueIndexing reiht den Indexing-Job für eine bereits persistierte
// PDF ein (Download-Erfolg oder manueller Upload).
func (p *Pipeline) EnqueueIndexing(ctx context.Context, paperID string, collectionID uint, storageKey string) (string, error) {
	return p.Broker.Enqueue(queue.TypeIndexing, queue.QueueIndexing,
		queue.IndexingJobID(paperID),
		queue.Payload{PaperID: paperID, CollectionID: collectionID, StorageKey: storageKey},
		indexingJobTimeout)
}

// EnqueueFigureAnalysis reiht den Figure-Job eines Papers ein.
func (p *Pipeline) EnqueueFigureAnalysis(ctx context.Context, paperID string, collectionID uint, storageKey string, detectOnly bool) (string, error) {
	return p.Broker.Enqueue(queue.TypeFigureAnalysis, queue.QueueFigureAnalysis,
		queue.FigureJobID(paperID),
		queue.Payload{PaperID: paperID, CollectionID: collectionID, StorageKey: storageKey, DetectOnly: detectOnly},
		figureJobTimeout)
}

// Reindex setzt beide Status auf pending zurück und reiht das Paper neu
// ein: mit vorhandener PDF direkt in die Indexing-Stufe, sonst in die
// Download-Stufe. Die Job-ID "reindex-{paperId}" dedupliziert manuelle
// Re-Index-Anfragen untereinander.
func (p *Pipeline) Reindex(ctx context.Context, paperID string, collectionID uint) (string, error) {
	var paper models.Paper
	if err := p.DB.Where("paper_id = ?", paperID).First(&paper).Error; err != nil {
		return "", fmt.Errorf("load paper %s: %w", paperID, err)
	}

	if err := p.DB.Model(&paper).Updates(map[string]any{
		"text_vector_status":  models.StatusPending,
		"image_vector_status": models.StatusPending,
	}).Error; err != nil {
		return "", fmt.Errorf("reset status: %w", err)
	}

	if paper.StoragePath != "" {
		return p.Broker.Enqueue(queue.TypeIndexing, queue.QueueIndexing,
			queue.ReindexJobID(paperID),
			queue.Payload{PaperID: paperID, CollectionID: collectionID, StorageKey: paper.StoragePath},
			indexingJobTimeout)
	}
	if !paper.HasDownloadSource() {
		return "", fmt.Errorf("%w: paper %s", ErrSourceUnresolvable, paperID)
	}
	return p.Broker.Enqueue(queue.TypeDownload, queue.QueueDownload,
		queue.ReindexJobID(paperID),
		queue.Payload{PaperID: paperID, CollectionID: collectionID},
		downloadJobTimeout)
}

// HandleDownload ist der Worker der Download-Stufe: Quelle auflösen, PDF
// laden, validieren, nach S3 persistieren und die Indexing-Stufe anstoßen.
// Terminales Scheitern setzt text=failed und image=skipped.
func (p *Pipeline) HandleDownload(ctx context.Context, t *asynq.Task) error {
	pl, paper, err := p.loadJobPaper(t)
	if err != nil || paper == nil {
		return err
	}
	log := p.Logger.With(zap.String("paperId", paper.PaperID), zap.String("stage", "download"))

	p.setTextStatus(paper.PaperID, models.StatusProcessing)

	data, err := p.fetchPDF(ctx, paper)
	if err == nil {
		err = p.Extractor.ValidatePDF(data)
	}
	if err != nil {
		return p.failStage(ctx, "download", paper, log, err)
	}

	key := storage.PDFKey(pl.CollectionID, paper.PaperID)
	if _, err := p.Blobs.UploadPDF(ctx, key, data); err != nil {
		return p.failStage(ctx, "download", paper, log, fmt.Errorf("%w: upload: %v", ErrFetchFailed, err))
	}

	now := time.Now()
	if err := p.DB.Model(paper).Updates(map[string]any{
		"storage_path":  key,
		"download_date": &now,
	}).Error; err != nil {
		return p.failStage(ctx, "download", paper, log, err)
	}

	if _, err := p.EnqueueIndexing(ctx, paper.PaperID, pl.CollectionID, key); err != nil {
		return p.failStage(ctx, "download", paper, log, err)
	}

	jobsProcessedTotal.WithLabelValues("download", "success").Inc()
	log.Info("PDF heruntergeladen und persistiert", zap.String("storageKey", key), zap.Int("bytes", len(data)))
	return nil
}

// HandleIndexing ist der Worker der Indexing-Stufe: Text extrahieren,
// Literaturverzeichnis entfernen, chunken, einbetten, in den Vektor-Store
// schreiben. Erfolg setzt text=completed und stößt — falls aktiviert —
// die Figure-Stufe an, sonst image=skipped.
func (p *Pipeline) HandleIndexing(ctx context.Context, t *asynq.Task) error {
	pl, paper, err := p.loadJobPaper(t)
	if err != nil || paper == nil {
		return err
	}
	log := p.Logger.With(zap.String("paperId", paper.PaperID), zap.String("stage", "indexing"))

	p.setTextStatus(paper.PaperID, models.StatusProcessing)

	storageKey := pl.StorageKey
	if storageKey == "" {
		storageKey = paper.StoragePath
	}
	data, err := p.Blobs.DownloadPDF(ctx, storageKey)
	if err != nil {
		return p.failStage(ctx, "indexing", paper, log, fmt.Errorf("%w: download from blob store: %v", ErrFetchFailed, err))
	}

	text, err := p.Extractor.ExtractText(data)
	if err != nil {
		return p.failStage(ctx, "indexing", paper, log, err)
	}
	text = p.Extractor.StripReferences(text)

	pieces := p.Extractor.ChunkText(text)
	if len(pieces) == 0 {
		return p.failStage(ctx, "indexing", paper, log, fmt.Errorf("%w: no chunks after stripping", ErrExtractionFailed))
	}

	vecs, err := p.Embedder.EmbedTexts(ctx, pieces)
	if err != nil {
		return p.failStage(ctx, "indexing", paper, log, fmt.Errorf("%w: %v", ErrEmbeddingService, err))
	}
	if len(vecs) != len(pieces) {
		return p.failStage(ctx, "indexing", paper, log,
			fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbeddingService, len(pieces), len(vecs)))
	}

	chunks := make([]*storage.Chunk, len(pieces))
	for i := range pieces {
		chunks[i] = &storage.Chunk{
			ID:           uuid.NewString(),
			PaperID:      paper.PaperID,
			CollectionID: pl.CollectionID,
			ChunkIndex:   i,
			Kind:         "text",
			Content:      pieces[i],
			Embedding:    vecs[i],
		}
	}
	if err := p.Vectors.UpsertChunks(ctx, chunks); err != nil {
		return p.failStage(ctx, "indexing", paper, log, fmt.Errorf("%w: %v", ErrVectorStoreUpload, err))
	}

	p.setTextStatus(paper.PaperID, models.StatusCompleted)
	papersIndexedTotal.Inc()
	jobsProcessedTotal.WithLabelValues("indexing", "success").Inc()

	if p.FiguresEnabled {
		p.setImageStatus(paper.PaperID, models.StatusPending)
		if _, err := p.EnqueueFigureAnalysis(ctx, paper.PaperID, pl.CollectionID, storageKey, false); err != nil {
			// Text-Indexierung ist fertig; ein nicht einreihbarer
			// Figure-Job darf das nicht rückgängig machen.
			log.Warn("Figure-Job nicht einreihbar", zap.Error(err))
			p.setImageStatus(paper.PaperID, models.StatusFailed)
		}
	} else {
		p.setImageStatus(paper.PaperID, models.StatusSkipped)
	}

	log.Info("Paper indexiert", zap.Int("chunks", len(chunks)))
	return nil
}

// HandleFigureAnalysis ist der Worker der Figure-Stufe. Scheitern setzt
// ausschließlich image=failed; der Text-Status bleibt unberührt.
func (p *Pipeline) HandleFigureAnalysis(ctx context.Context, t *asynq.Task) error {
	pl, paper, err := p.loadJobPaper(t)
	if err != nil || paper == nil {
		return err
	}
	log := p.Logger.With(zap.String("paperId", paper.PaperID), zap.String("stage", "figure-analysis"))

	p.setImageStatus(paper.PaperID, models.StatusProcessing)

	storageKey := pl.StorageKey
	if storageKey == "" {
		storageKey = paper.StoragePath
	}
	data, err := p.Blobs.DownloadPDF(ctx, storageKey)
	if err != nil {
		return p.failStage(ctx, "figure-analysis", paper, log, fmt.Errorf("%w: download from blob store: %v", ErrFigureDetection, err))
	}

	progress := func(ev FigureProgress) {
		log.Debug("Figure-Fortschritt", zap.String("phase", ev.Phase), zap.String("message", ev.Message))
	}
	figures, err := p.Figures.Process(ctx, paper, pl.CollectionID, data, pl.DetectOnly, progress)
	if err != nil {
		return p.failStage(ctx, "figure-analysis", paper, log, err)
	}

	if len(figures) == 0 {
		p.setImageStatus(paper.PaperID, models.StatusSkipped)
	} else {
		p.setImageStatus(paper.PaperID, models.StatusCompleted)
	}
	jobsProcessedTotal.WithLabelValues("figure-analysis", "success").Inc()
	log.Info("Figure-Stufe abgeschlossen", zap.Int("figures", len(figures)))
	return nil
}

// RemovalResult ist das Einzel-Ergebnis einer Batch-Entfernung.
type RemovalResult struct {
	PaperID string `json:"paper_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RemovePaper entfernt ein Paper aus einer Collection: queued Jobs,
// Chunks und PDF werden best-effort aufgeräumt (Fehler geloggt, nie
// fatal); nur das Entfernen des Links selbst kann den Aufruf scheitern
// lassen. Die Paper-Zeile bleibt für andere Collections erhalten.
func (p *Pipeline) RemovePaper(ctx context.Context, collectionID uint, paperID string) error {
	log := p.Logger.With(zap.Uint("collectionId", collectionID), zap.String("paperId", paperID))

	for queueName, jobID := range map[string]string{
		queue.QueueDownload:       queue.DownloadJobID(paperID),
		queue.QueueIndexing:       queue.IndexingJobID(paperID),
		queue.QueueFigureAnalysis: queue.FigureJobID(paperID),
	} {
		if err := p.Broker.Dequeue(queueName, jobID); err != nil {
			log.Warn("Job nicht entfernbar", zap.String("queue", queueName), zap.Error(err))
		}
	}

	if err := p.Vectors.DeletePaperChunks(ctx, collectionID, paperID); err != nil {
		log.Warn("Chunks nicht entfernbar", zap.Error(err))
	}
	if err := p.Blobs.DeletePDF(ctx, storage.PDFKey(collectionID, paperID)); err != nil {
		log.Warn("PDF nicht entfernbar", zap.Error(err))
	}

	tx := p.DB.Where("collection_id = ? AND paper_id = ?", collectionID, paperID).
		Delete(&models.CollectionPaper{})
	if tx.Error != nil {
		return fmt.Errorf("remove link: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("paper %s is not in collection %d", paperID, collectionID)
	}

	log.Info("Paper aus Collection entfernt")
	return nil
}

// RemovePapers entfernt mehrere Papers und liefert pro Paper ein
// Ergebnis; Teilerfolg ist ein regulärer, berichtbarer Ausgang.
func (p *Pipeline) RemovePapers(ctx context.Context, collectionID uint, paperIDs []string) []RemovalResult {
	results := make([]RemovalResult, 0, len(paperIDs))
	for _, id := range paperIDs {
		r := RemovalResult{PaperID: id, Success: true}
		if err := p.RemovePaper(ctx, collectionID, id); err != nil {
			r.Success = false
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results
}

// RemoveCollection löscht eine Collection kaskadiert: Links, Chunks und
// PDFs. Storage-Aufräumfehler blockieren die Löschung nicht.
func (p *Pipeline) RemoveCollection(ctx context.Context, collectionID uint) error {
	log := p.Logger.With(zap.Uint("collectionId", collectionID))

	var links []models.CollectionPaper
	if err := p.DB.Where("collection_id = ?", collectionID).Find(&links).Error; err != nil {
		return fmt.Errorf("load links: %w", err)
	}
	for _, link := range links {
		if err := p.Blobs.DeletePDF(ctx, storage.PDFKey(collectionID, link.PaperID)); err != nil {
			log.Warn("PDF nicht entfernbar", zap.String("paperId", link.PaperID), zap.Error(err))
		}
	}
	if err := p.Vectors.DeleteCollectionChunks(ctx, collectionID); err != nil {
		log.Warn("Chunks nicht entfernbar", zap.Error(err))
	}

	if err := p.DB.Where("collection_id = ?", collectionID).Delete(&models.CollectionPaper{}).Error; err != nil {
		return fmt.Errorf("remove links: %w", err)
	}
	if err := p.DB.Delete(&models.Collection{}, collectionID).Error; err != nil {
		return fmt.Errorf("remove collection: %w", err)
	}

	log.Info("Collection gelöscht", zap.Int("papers", len(links)))
	return nil
}

// RequeueStuckDownloads reiht Papers neu ein, die mit Download-Quelle in
// pending hängen (z. B. weil das Einreihen beim Accept scheiterte). Läuft
// periodisch über den Cron-Sweep; die deterministischen Job-IDs machen
// den Sweep gefahrlos wiederholbar.
func (p *Pipeline) RequeueStuckDownloads(ctx context.Context) (int, error) {
	var rows []struct {
		PaperID      string
		CollectionID uint
	}
	err := p.DB.Table("collection_papers").
		Select("collection_papers.paper_id, collection_papers.collection_id").
		Joins("JOIN papers ON papers.paper_id = collection_papers.paper_id").
		Where("papers.text_vector_status = ?", models.StatusPending).
		Where("papers.open_access_url <> '' OR papers.arxiv_id <> '' OR papers.doi <> ''").
		Scan(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("query stuck downloads: %w", err)
	}

	requeued := 0
	for _, row := range rows {
		jobID, err := p.Broker.Enqueue(queue.TypeDownload, queue.QueueDownload,
			queue.DownloadJobID(row.PaperID),
			queue.Payload{PaperID: row.PaperID, CollectionID: row.CollectionID},
			downloadJobTimeout)
		if err != nil {
			p.Logger.Warn("Requeue fehlgeschlagen", zap.String("paperId", row.PaperID), zap.Error(err))
			continue
		}
		if jobID != "" {
			requeued++
		}
	}

	if requeued > 0 {
		p.Logger.Info("Hängende Downloads neu eingereiht",
			zap.Int("candidates", len(rows)), zap.Int("requeued", requeued))
	}
	return requeued, nil
}

// loadJobPaper dekodiert die Payload und lädt das Paper. Ein nicht mehr
// existierendes Paper ist ein harmloser No-Op (z. B. nach Entfernung
// während der Job lief).
func (p *Pipeline) loadJobPaper(t *asynq.Task) (queue.Payload, *models.Paper, error) {
	var pl queue.Payload
	if err := json.Unmarshal(t.Payload(), &pl); err != nil {
		return pl, nil, fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	var paper models.Paper
	if err := p.DB.Where("paper_id = ?", pl.PaperID).First(&paper).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p.Logger.Warn("Job für unbekanntes Paper, wird verworfen", zap.String("paperId", pl.PaperID))
			return pl, nil, nil
		}
		return pl, nil, err
	}
	return pl, &paper, nil
}

// failStage behandelt einen Stufen-Fehler an der Worker-Grenze: loggen,
// Zähler erhöhen und entscheiden, ob der Broker erneut zustellt. Erst
// beim terminalen Scheitern (permanenter Fehler oder letzter Versuch)
// werden die Status-Felder auf failed geschrieben; ein einzelnes Paper
// crasht nie den Prozess.
func (p *Pipeline) failStage(ctx context.Context, stage string, paper *models.Paper, log *zap.Logger, cause error) error {
	permanent := errors.Is(cause, ErrSourceUnresolvable) ||
		errors.Is(cause, ErrCorruptDocument) ||
		errors.Is(cause, ErrExtractionFailed) ||
		errors.Is(cause, ErrFigureAnalysis)

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	lastAttempt := retried >= maxRetry

	if !permanent && !lastAttempt {
		log.Warn("Stufe fehlgeschlagen, Broker stellt erneut zu",
			zap.Int("attempt", retried+1), zap.Error(cause))
		return cause
	}

	switch stage {
	case "download":
		p.setTextStatus(paper.PaperID, models.StatusFailed)
		p.setImageStatus(paper.PaperID, models.StatusSkipped)
	case "indexing":
		p.setTextStatus(paper.PaperID, models.StatusFailed)
	case "figure-analysis":
		p.setImageStatus(paper.PaperID, models.StatusFailed)
	}

	jobsProcessedTotal.WithLabelValues(stage, "failed").Inc()
	log.Error("Stufe terminal fehlgeschlagen", zap.Error(cause))

	if permanent {
		return fmt.Errorf("%s %s: %v: %w", stage, paper.PaperID, cause, asynq.SkipRetry)
	}
	return cause
}

func (p *Pipeline) setTextStatus(paperID string, status models.VectorStatus) {
	if err := p.DB.Model(&models.Paper{}).Where("paper_id = ?", paperID).
		Update("text_vector_status", status).Error; err != nil {
		p.Logger.Error("Status-Update fehlgeschlagen",
			zap.String("paperId", paperID), zap.String("status", string(status)), zap.Error(err))
	}
}

func (p *Pipeline) setImageStatus(paperID string, status models.VectorStatus) {
	if err := p.DB.Model(&models.Paper{}).Where("paper_id = ?", paperID).
		Update("image_vector_status", status).Error; err != nil {
		p.Logger.Error("Status-Update fehlgeschlagen",
			zap.String("paperId", paperID), zap.String("status", string(status)), zap.Error(err))
	}
}

// fetchPDF löst die beste Download-Quelle auf und lädt die PDF.
// Reihenfolge: direkte Open-Access-URL, arXiv, Unpaywall via DOI.
func (p *Pipeline) fetchPDF(ctx context.Context, paper *models.Paper) ([]byte, error) {
	url, err := p.resolvePDFURL(ctx, paper)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d from %s", ErrFetchFailed, resp.StatusCode, url)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return data, nil
}

func (p *Pipeline) resolvePDFURL(ctx context.Context, paper *models.Paper) (string, error) {
	if paper.OpenAccessURL != "" {
		return paper.OpenAccessURL, nil
	}
	if paper.ArxivID != "" {
		return "https://arxiv.org/pdf/" + paper.ArxivID, nil
	}
	if paper.DOI != "" {
		url, err := p.Unpaywall.GetPDFLink(ctx, paper.DOI)
		if err != nil {
			return "", fmt.Errorf("%w: unpaywall: %v", ErrFetchFailed, err)
		}
		if url != "" {
			return url, nil
		}
	}
	return "", fmt.Errorf("%w: paper %s", ErrSourceUnresolvable, paper.PaperID)
}
