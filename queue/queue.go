package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"paper-atlas/config"
)

// Queue-Namen; der Broker verwaltet die Worker-Concurrency pro Queue.
const (
	QueueDownload       = "download"
	QueueIndexing       = "indexing"
	QueueFigureAnalysis = "figure-analysis"
)

// Task-Typen für das Routing im Worker.
const (
	TypeDownload       = "paper:download"
	TypeIndexing       = "paper:indexing"
	TypeFigureAnalysis = "paper:figure-analysis"
)

// Payload ist die gemeinsame Job-Payload aller Stufen.
type Payload struct {
	PaperID      string `json:"paperId"`
	CollectionID uint   `json:"collectionId,omitempty"`
	StorageKey   string `json:"storageKey,omitempty"`
	// DetectOnly überspringt das Captioning in der Figure-Stufe.
	DetectOnly bool `json:"detectOnly,omitempty"`
}

// DownloadJobID bildet die deterministische Job-ID der Download-Stufe.
// Gleiche (Stage, Paper)-Kombinationen kollabieren im Broker auf einen Job.
func DownloadJobID(paperID string) string { return QueueDownload + "-" + paperID }

// IndexingJobID bildet die deterministische Job-ID der Indexing-Stufe.
func IndexingJobID(paperID string) string { return QueueIndexing + "-" + paperID }

// FigureJobID bildet die deterministische Job-ID der Figure-Stufe.
func FigureJobID(paperID string) string { return QueueFigureAnalysis + "-" + paperID }

// ReindexJobID bildet die Job-ID eines manuellen Re-Index.
func ReindexJobID(paperID string) string { return "reindex-" + paperID }

// Counts sind die Broker-Zähler einer Queue.
type Counts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

// Broker kapselt asynq-Client und -Inspector. Eine Instanz pro Prozess,
// explizit in die Services injiziert (keine globalen Singletons).
type Broker struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// RedisOpt baut die Redis-Verbindungsoptionen aus der Konfiguration.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
}

// NewBroker erstellt einen neuen Broker.
func NewBroker(cfg *config.Config) *Broker {
	opt := RedisOpt(cfg)
	return &Broker{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

// Enqueue reiht einen Task mit deterministischer ID ein. Ist bereits ein
// Job mit dieser ID queued oder aktiv, ist der Aufruf ein No-Op und gibt
// eine leere Job-ID zurück.
func (b *Broker) Enqueue(taskType, queueName, jobID string, p Payload, timeout time.Duration) (string, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(taskType, payload)
	info, err := b.client.Enqueue(task,
		asynq.Queue(queueName),
		asynq.TaskID(jobID),
		asynq.MaxRetry(3),
		asynq.Timeout(timeout),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			// Idempotenz: derselbe logische Job existiert schon.
			return "", nil
		}
		return "", fmt.Errorf("enqueue %s: %w", jobID, err)
	}
	return info.ID, nil
}

// Dequeue entfernt einen noch nicht gestarteten Job aus dem Broker.
// Aktive Jobs laufen bis zum Ende bzw. Timeout weiter.
func (b *Broker) Dequeue(queueName, jobID string) error {
	err := b.inspector.DeleteTask(queueName, jobID)
	if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return err
	}
	return nil
}

// QueueCounts liefert die Job-Zähler einer Queue.
func (b *Broker) QueueCounts(queueName string) (*Counts, error) {
	info, err := b.inspector.GetQueueInfo(queueName)
	if err != nil {
		return nil, err
	}
	return &Counts{
		Waiting:   info.Pending,
		Active:    info.Active,
		Completed: info.Completed,
		Failed:    info.Failed,
		Delayed:   info.Scheduled + info.Retry,
	}, nil
}

// AllCounts liefert die Zähler aller drei Pipeline-Queues.
func (b *Broker) AllCounts() (map[string]*Counts, error) {
	out := make(map[string]*Counts, 3)
	for _, q := range []string{QueueDownload, QueueIndexing, QueueFigureAnalysis} {
		counts, err := b.QueueCounts(q)
		if err != nil {
			return nil, err
		}
		out[q] = counts
	}
	return out, nil
}

// Close schließt die Broker-Verbindungen.
func (b *Broker) Close() error {
	return b.client.Close()
}
