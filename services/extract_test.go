package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidatePDFRejectsGarbage(t *testing.T) {
	e := NewExtractor(zap.NewNop())

	assert.ErrorIs(t, e.ValidatePDF(nil), ErrCorruptDocument)
	assert.ErrorIs(t, e.ValidatePDF([]byte("hello world")), ErrCorruptDocument)
	// Header allein reicht nicht, die Struktur muss lesbar sein.
	assert.ErrorIs(t, e.ValidatePDF([]byte("%PDF-1.7\nnot actually a pdf")), ErrCorruptDocument)
}

func TestStripReferences(t *testing.T) {
	e := NewExtractor(zap.NewNop())

	body := strings.Repeat("This sentence is part of the paper body. ", 100)
	refs := "[1] A. Author, Some cited work, 2019.\n[2] B. Author, Another work, 2020."

	t.Run("entfernt Literaturverzeichnis am Ende", func(t *testing.T) {
		text := body + "\nReferences\n" + refs
		stripped := e.StripReferences(text)
		assert.NotContains(t, stripped, "cited work")
		assert.Contains(t, stripped, "part of the paper body")
	})

	t.Run("akzeptiert nummerierte Überschrift", func(t *testing.T) {
		text := body + "\n7. Bibliography\n" + refs
		stripped := e.StripReferences(text)
		assert.NotContains(t, stripped, "cited work")
	})

	t.Run("Überschrift in der ersten Hälfte bleibt stehen", func(t *testing.T) {
		text := "References\n" + body
		assert.Equal(t, text, e.StripReferences(text))
	})

	t.Run("ohne Überschrift unverändert", func(t *testing.T) {
		assert.Equal(t, body, e.StripReferences(body))
	})

	t.Run("Erwähnung mitten im Satz zählt nicht", func(t *testing.T) {
		text := body + "see the references below for details. " + body
		assert.Equal(t, text, e.StripReferences(text))
	})
}

func TestChunkText(t *testing.T) {
	e := NewExtractor(zap.NewNop())

	t.Run("kurzer Text ergibt einen Chunk", func(t *testing.T) {
		text := strings.Repeat("A reasonably long sentence for the chunker. ", 10)
		chunks := e.ChunkText(text)
		require.Len(t, chunks, 1)
		assert.Equal(t, strings.TrimSpace(text), chunks[0])
	})

	t.Run("zu kurzer Text wird verworfen", func(t *testing.T) {
		assert.Nil(t, e.ChunkText("too short"))
		assert.Nil(t, e.ChunkText(""))
	})

	t.Run("langer Text wird mit Überlappung geteilt", func(t *testing.T) {
		text := strings.Repeat("Each of these sentences carries a bit of content. ", 300)
		chunks := e.ChunkText(text)
		require.Greater(t, len(chunks), 1)

		for i, chunk := range chunks {
			assert.LessOrEqual(t, len([]rune(chunk)), chunkSizeRunes, "chunk %d über dem Limit", i)
			assert.GreaterOrEqual(t, len([]rune(chunk)), minChunkRunes, "chunk %d unter dem Minimum", i)
		}

		// Überlappung: der Anfang von Chunk n+1 stammt aus dem Ende von Chunk n.
		head := chunks[1][:50]
		assert.Contains(t, chunks[0], head)
	})

	t.Run("bricht an Satzgrenzen", func(t *testing.T) {
		text := strings.Repeat("A complete sentence ends here. ", 300)
		chunks := e.ChunkText(text)
		require.Greater(t, len(chunks), 1)
		assert.True(t, strings.HasSuffix(chunks[0], "."), "Chunk endet am Satzende: %q", chunks[0][len(chunks[0])-20:])
	})
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b\nc d", normalizeWhitespace("a \t b\r\nc  d"))
}
