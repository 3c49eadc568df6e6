package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	oa "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"paper-atlas/config"
)

// DetectedFigure ist eine vom Modell aus dem Volltext identifizierte
// Abbildung oder Tabelle. Regionen liefert dieser Pfad nicht; er ist die
// Fallback-Strategie, wenn kein Layout-Analyse-Sidecar läuft.
type DetectedFigure struct {
	Name    string `json:"name"`
	FigType string `json:"figType"`
	Page    int    `json:"page"`
	Caption string `json:"caption"`
}

// maxDetectionChars begrenzt den an das Modell geschickten Text.
const maxDetectionChars = 48000

// VisionDetector findet Figuren-Captions im extrahierten Volltext über
// das Chat-Modell.
type VisionDetector struct {
	client oa.Client
	model  string
	logger *zap.Logger
}

// NewVisionDetector erstellt einen neuen Detector.
func NewVisionDetector(cfg *config.Config, logger *zap.Logger) *VisionDetector {
	return &VisionDetector{
		client: oa.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey)),
		model:  cfg.CaptionModel,
		logger: logger,
	}
}

// DetectFigures lässt das Modell alle Figuren und Tabellen samt Caption
// aus dem Paper-Text auflisten. Eine leere Liste ist kein Fehler.
func (d *VisionDetector) DetectFigures(ctx context.Context, text string) ([]DetectedFigure, error) {
	if len(text) > maxDetectionChars {
		text = text[:maxDetectionChars]
	}

	prompt := "Below is the extracted text of a research paper. List every figure and table " +
		"that has a caption in the text. Respond with a JSON array only, no prose, where each " +
		"element has the keys: name (e.g. \"Figure 1\"), figType (\"Figure\" or \"Table\"), " +
		"page (integer, 0 if unknown) and caption (the full caption text).\n\n" + text

	var raw string
	operation := func() error {
		resp, err := d.client.Chat.Completions.New(ctx, oa.ChatCompletionNewParams{
			Model: oa.ChatModel(d.model),
			Messages: []oa.ChatCompletionMessageParamUnion{
				oa.UserMessage(prompt),
			},
		})
		if err != nil {
			if isRateLimitError(err) {
				d.logger.Warn("OpenAI rate limit bei Figure-Detection, retrying")
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("empty completion response"))
		}
		raw = resp.Choices[0].Message.Content
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = 45 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	var figures []DetectedFigure
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &figures); err != nil {
		return nil, fmt.Errorf("decode figure list: %w", err)
	}
	return figures, nil
}

// stripCodeFence entfernt einen eventuellen ```json-Zaun um die Antwort.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
