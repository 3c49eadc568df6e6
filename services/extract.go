package services

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// Chunking-Parameter. Überlappung erhält Kontext über Chunk-Grenzen hinweg,
// damit Retrieval-Treffer nicht mitten im Satz abreißen.
const (
	chunkSizeRunes    = 3200
	chunkOverlapRunes = 400
	minChunkRunes     = 50
)

// refSectionPattern matcht eine Literaturverzeichnis-Überschrift auf einer
// eigenen Zeile. Alles ab der letzten solchen Überschrift wird verworfen.
var refSectionPattern = regexp.MustCompile(
	`(?mi)^\s*(?:\d+\.?\s*)?(references|bibliography|works cited|literature cited|literaturverzeichnis|literatur)\s*$`)

var whitespacePattern = regexp.MustCompile(`[ \t]+`)

// Extractor validiert PDFs, extrahiert Text und zerlegt ihn in Chunks.
type Extractor struct {
	Logger *zap.Logger
}

// NewExtractor erstellt einen neuen Extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{Logger: logger}
}

// ValidatePDF prüft die PDF-Struktur, ohne Text zu extrahieren. Schlägt
// mit ErrCorruptDocument fehl, wenn die Datei keine lesbare PDF ist.
func (e *Extractor) ValidatePDF(data []byte) error {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return fmt.Errorf("%w: missing pdf header", ErrCorruptDocument)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	if reader.NumPage() == 0 {
		return fmt.Errorf("%w: document has no pages", ErrCorruptDocument)
	}
	return nil
}

// ExtractText extrahiert den Volltext aller Seiten. Einzelne unlesbare
// Seiten werden übersprungen; liefert die PDF insgesamt keinen nutzbaren
// Text, schlägt die Extraktion mit ErrExtractionFailed fehl.
func (e *Extractor) ExtractText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	totalPages := reader.NumPage()
	var sb strings.Builder
	for pageIndex := 1; pageIndex <= totalPages; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			if e.Logger != nil {
				e.Logger.Warn("Seite nicht extrahierbar, wird übersprungen",
					zap.Int("page", pageIndex), zap.Error(err))
			}
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	fullText := normalizeWhitespace(sb.String())
	if len(strings.TrimSpace(fullText)) < minChunkRunes {
		return "", fmt.Errorf("%w: %d pages yielded no text", ErrExtractionFailed, totalPages)
	}

	if e.Logger != nil {
		e.Logger.Debug("Text extrahiert",
			zap.Int("pages", totalPages),
			zap.Int("text_length", len(fullText)))
	}
	return fullText, nil
}

// StripReferences entfernt das Literaturverzeichnis am Dokumentende.
// Gesucht wird die letzte Referenz-Überschrift in der hinteren Hälfte des
// Texts; eine Überschrift früh im Dokument ist fast immer ein Inhalts-
// verzeichnis-Eintrag und bleibt stehen.
func (e *Extractor) StripReferences(text string) string {
	matches := refSectionPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	last := matches[len(matches)-1]
	if last[0] < len(text)/2 {
		return text
	}
	return strings.TrimSpace(text[:last[0]])
}

// ChunkText zerlegt den Text in überlappende Chunks fester Größe, mit
// Bruch an Satz- bzw. Wortgrenzen wo möglich. Chunks unterhalb der
// Mindestgröße werden verworfen.
func (e *Extractor) ChunkText(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSizeRunes
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if len([]rune(chunk)) >= minChunkRunes {
			chunks = append(chunks, chunk)
		}

		if end == len(runes) {
			break
		}
		start = end - chunkOverlapRunes
		if start < 0 {
			start = 0
		}
	}
	return chunks
}

// breakPoint sucht rückwärts vom harten Limit nach einem Satzende, dann
// nach einem Leerzeichen. Findet sich in den letzten 200 Runen keins,
// wird hart geschnitten.
func breakPoint(runes []rune, start, end int) int {
	searchFrom := end - 200
	if searchFrom < start {
		searchFrom = start
	}
	for i := end - 1; i >= searchFrom; i-- {
		if runes[i] == '.' || runes[i] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i >= searchFrom; i-- {
		if runes[i] == ' ' {
			return i + 1
		}
	}
	return end
}

func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return text
}
