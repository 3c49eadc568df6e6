package pdffigures

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"paper-atlas/config"
)

// Figure ist eine vom pdffigures2-Sidecar erkannte Abbildung oder Tabelle.
type Figure struct {
	Name           string `json:"name"`
	FigType        string `json:"figType"`
	Page           int    `json:"page"`
	Caption        string `json:"caption"`
	RegionBoundary struct {
		X1 float64 `json:"x1"`
		Y1 float64 `json:"y1"`
		X2 float64 `json:"x2"`
		Y2 float64 `json:"y2"`
	} `json:"regionBoundary"`
}

type extractResponse struct {
	Figures []Figure `json:"figures"`
	Error   string   `json:"error"`
}

// Client spricht den pdffigures2-HTTP-Sidecar an.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

// NewClient erstellt einen neuen pdffigures2-Client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		// Die Extraktion selbst läuft mit 60s-Timeout im Sidecar;
		// wir geben etwas Puffer für Upload und Queueing.
		httpClient: &http.Client{Timeout: 90 * time.Second},
		baseURL:    cfg.PDFFiguresBaseURL,
		logger:     logger,
	}
}

// Extract lädt eine PDF zum Sidecar hoch und gibt die erkannten
// Figure-Regionen zurück. Eine leere Liste ist kein Fehler.
func (c *Client) Extract(ctx context.Context, pdfData []byte) ([]Figure, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("pdf", "input.pdf")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(pdfData); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var er extractResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, fmt.Errorf("decode pdffigures response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pdffigures extraction failed (HTTP %d): %s", resp.StatusCode, er.Error)
	}

	c.logger.Debug("Figure-Detection abgeschlossen", zap.Int("figures", len(er.Figures)))
	return er.Figures, nil
}

// Health prüft den Sidecar-Status.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pdffigures health check failed with status: %d", resp.StatusCode)
	}
	return nil
}
