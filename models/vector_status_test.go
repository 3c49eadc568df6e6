package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveOverallStatus(t *testing.T) {
	tests := []struct {
		name  string
		text  VectorStatus
		image VectorStatus
		want  OverallStatus
	}{
		{"beide pending", StatusPending, StatusPending, OverallPending},
		{"text processing", StatusProcessing, StatusPending, OverallProcessing},
		{"image processing", StatusPending, StatusProcessing, OverallProcessing},
		{"beide processing", StatusProcessing, StatusProcessing, OverallProcessing},
		{"text completed, image pending", StatusCompleted, StatusPending, OverallCompleted},
		{"text completed, image completed", StatusCompleted, StatusCompleted, OverallCompleted},
		{"text completed, image skipped", StatusCompleted, StatusSkipped, OverallCompleted},
		{"text failed", StatusFailed, StatusSkipped, OverallFailed},
		{"text failed, image completed", StatusFailed, StatusCompleted, OverallFailed},
		{"text pending, image skipped", StatusPending, StatusSkipped, OverallFailed},
		// Auch eine noch laufende Bild-Stufe blockiert completed nicht.
		{"text completed, image processing", StatusCompleted, StatusProcessing, OverallCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveOverallStatus(tt.text, tt.image))
		})
	}
}

// Die Bild-Stufe darf die Text-Readiness nie blockieren, egal in welchem
// Zustand sie ist.
func TestDeriveOverallStatusImageNeverVetoes(t *testing.T) {
	for _, image := range []VectorStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusSkipped} {
		assert.Equal(t, OverallCompleted, DeriveOverallStatus(StatusCompleted, image),
			"image=%s darf completed nicht blockieren", image)
	}
}

func TestIsReadyForRetrieval(t *testing.T) {
	assert.True(t, IsReadyForRetrieval(StatusCompleted))
	for _, st := range []VectorStatus{StatusPending, StatusProcessing, StatusFailed, StatusSkipped} {
		assert.False(t, IsReadyForRetrieval(st))
	}
}

func TestPaperHasDownloadSource(t *testing.T) {
	assert.False(t, (&Paper{}).HasDownloadSource())
	assert.True(t, (&Paper{OpenAccessURL: "https://example.org/x.pdf"}).HasDownloadSource())
	assert.True(t, (&Paper{ArxivID: "2101.00001"}).HasDownloadSource())
	assert.True(t, (&Paper{DOI: "10.1/x"}).HasDownloadSource())
}
