package models

import (
	"time"
)

// Figure ist eine in einem Paper erkannte Abbildung oder Tabelle.
type Figure struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	PaperID string `json:"paper_id" gorm:"index;not null"`

	Name    string `json:"name"`
	FigType string `json:"fig_type"`
	Page    int    `json:"page"`
	Caption string `json:"caption,omitempty" gorm:"type:text"`

	// Crop-Grenzen auf der Seite (Pixelkoordinaten der Detection)
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`

	// Ergebnis des Captioning/Analyse-Service; leer im Detection-Only-Modus.
	Analysis string `json:"analysis,omitempty" gorm:"type:text"`
}
