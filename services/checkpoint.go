package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// EvalResult ist ein einzelnes Frage-Ergebnis eines Evaluations-Laufs.
type EvalResult struct {
	PaperID    string    `json:"paperId"`
	QuestionID string    `json:"questionId"`
	Answer     string    `json:"answer,omitempty"`
	Score      float64   `json:"score"`
	AnsweredAt time.Time `json:"answeredAt"`
}

// Checkpoint ist der Snapshot eines Evaluations-Laufs. Pro Collection
// existiert höchstens ein Live-Checkpoint; jeder Save überschreibt ihn.
type Checkpoint struct {
	CollectionID       uint         `json:"collectionId"`
	Timestamp          time.Time    `json:"timestamp"`
	LastPaperID        string       `json:"lastPaperId"`
	LastQuestionID     string       `json:"lastQuestionId"`
	CompletedQuestions int          `json:"completedQuestions"`
	Results            []EvalResult `json:"results"`
}

// CheckpointManager persistiert Evaluations-Fortschritt als eine
// JSON-Datei pro Collection unterhalb eines konfigurierten Verzeichnisses.
type CheckpointManager struct {
	Dir    string
	Logger *zap.Logger
}

// NewCheckpointManager erstellt einen Manager und legt das Verzeichnis an.
func NewCheckpointManager(dir string, logger *zap.Logger) (*CheckpointManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	return &CheckpointManager{Dir: dir, Logger: logger}, nil
}

func (m *CheckpointManager) path(collectionID uint) string {
	return filepath.Join(m.Dir, fmt.Sprintf("collection-%d.json", collectionID))
}

// Save überschreibt den Checkpoint der Collection. Geschrieben wird über
// eine Temp-Datei plus Rename, damit ein Crash während des Schreibens nie
// eine halb geschriebene Datei hinterlässt.
func (m *CheckpointManager) Save(collectionID uint, lastPaperID, lastQuestionID string, results []EvalResult) error {
	cp := Checkpoint{
		CollectionID:       collectionID,
		Timestamp:          time.Now().UTC(),
		LastPaperID:        lastPaperID,
		LastQuestionID:     lastQuestionID,
		CompletedQuestions: len(results),
		Results:            results,
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tmp := m.path(collectionID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, m.path(collectionID)); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}

	if m.Logger != nil {
		m.Logger.Debug("Checkpoint gespeichert",
			zap.Uint("collectionId", collectionID),
			zap.Int("completedQuestions", len(results)))
	}
	return nil
}

// Load liest den Checkpoint der Collection. Gibt (nil, nil) zurück, wenn
// keine Datei existiert, die Datei unlesbar ist oder deren collectionId
// nicht passt — ein korrupter oder fremder Checkpoint wird mit Warnung wie
// "kein Checkpoint" behandelt und nie an den Aufrufer durchgereicht.
func (m *CheckpointManager) Load(collectionID uint) (*Checkpoint, error) {
	data, err := os.ReadFile(m.path(collectionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		if m.Logger != nil {
			m.Logger.Warn("Checkpoint unlesbar, wird ignoriert",
				zap.Uint("collectionId", collectionID),
				zap.Error(fmt.Errorf("%w: %v", ErrCheckpointCorrupt, err)))
		}
		return nil, nil
	}

	if cp.CollectionID != collectionID {
		// Veraltete oder kopierte Datei einer anderen Collection.
		if m.Logger != nil {
			m.Logger.Warn("Checkpoint gehört zu anderer Collection, wird ignoriert",
				zap.Uint("requested", collectionID),
				zap.Uint("found", cp.CollectionID))
		}
		return nil, nil
	}

	return &cp, nil
}

// ShouldSkip meldet, ob das exakte (paperId, questionId)-Paar bereits im
// Checkpoint enthalten ist. Das ist der Resume-Vertrag: ein Treiber, der
// nach Unterbrechung neu startet, überspringt jede bereits beantwortete
// Frage und hängt nie ein Duplikat an.
func (m *CheckpointManager) ShouldSkip(cp *Checkpoint, paperID, questionID string) bool {
	if cp == nil {
		return false
	}
	for _, r := range cp.Results {
		if r.PaperID == paperID && r.QuestionID == questionID {
			return true
		}
	}
	return false
}

// Delete entfernt den Checkpoint. Nur nach vollständig abgeschlossenem
// Lauf aufrufen; ein teilweise gelaufener Run behält seinen Checkpoint.
func (m *CheckpointManager) Delete(collectionID uint) error {
	err := os.Remove(m.path(collectionID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
