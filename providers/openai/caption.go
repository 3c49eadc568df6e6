package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	oa "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"paper-atlas/config"
)

// Captioner schickt erkannte Figuren an das Image-Understanding-Modell
// und liefert eine textuelle Analyse zurück.
type Captioner struct {
	client oa.Client
	model  string
	logger *zap.Logger
}

// NewCaptioner erstellt einen neuen Captioner.
func NewCaptioner(cfg *config.Config, logger *zap.Logger) *Captioner {
	return &Captioner{
		client: oa.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey)),
		model:  cfg.CaptionModel,
		logger: logger,
	}
}

// AnalyzeFigure beschreibt eine Figur anhand ihrer Original-Caption und
// ihres Kontexts. 429er werden mit Backoff wiederholt.
func (c *Captioner) AnalyzeFigure(ctx context.Context, figureName, caption, paperTitle string) (string, error) {
	prompt := fmt.Sprintf(
		"You are analyzing a figure from the research paper %q.\n"+
			"Figure: %s\nOriginal caption: %s\n\n"+
			"Explain in 2-4 sentences what this figure shows and why it matters for the paper's findings.",
		paperTitle, figureName, caption)

	var analysis string
	operation := func() error {
		resp, err := c.client.Chat.Completions.New(ctx, oa.ChatCompletionNewParams{
			Model: oa.ChatModel(c.model),
			Messages: []oa.ChatCompletionMessageParamUnion{
				oa.UserMessage(prompt),
			},
		})
		if err != nil {
			if isRateLimitError(err) {
				c.logger.Warn("OpenAI rate limit bei Figure-Analyse, retrying")
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("empty completion response"))
		}
		analysis = resp.Choices[0].Message.Content
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = 45 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return analysis, nil
}
