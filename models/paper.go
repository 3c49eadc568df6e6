package models

import (
	"time"
)

// Paper repräsentiert eine wissenschaftliche Studie und deren Metadaten.
// Papers gehören keiner einzelnen Collection; mehrere Collections können
// dasselbe Paper über CollectionPaper referenzieren.
type Paper struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Stabile externe ID (Semantic Scholar Paper-ID)
	PaperID string `json:"paper_id" gorm:"column:paper_id;uniqueIndex;not null"`

	Title         string `json:"title"`
	Abstract      string `json:"abstract,omitempty" gorm:"type:text"`
	Year          int    `json:"year,omitempty"`
	CitationCount int    `json:"citation_count"`
	Venue         string `json:"venue,omitempty"`
	Authors       string `json:"authors,omitempty"`

	// Download-Kandidaten: mindestens eine Quelle muss vorhanden sein,
	// damit ein Download-Job sinnvoll ist.
	OpenAccessURL string `json:"open_access_url,omitempty"`
	ArxivID       string `json:"arxiv_id,omitempty"`
	DOI           string `json:"doi,omitempty" gorm:"column:doi;index"`

	// S3-Key, sobald eine PDF persistiert wurde ({collectionID}/{paperID}.pdf)
	StoragePath  string     `json:"storage_path,omitempty"`
	DownloadDate *time.Time `json:"download_date,omitempty"`

	// Unabhängige Status-Felder für Text- und Bild-Indexierung.
	// Download/Indexing schreiben text_vector_status, die Figure-Stufe
	// schreibt image_vector_status.
	TextVectorStatus  VectorStatus `json:"text_vector_status" gorm:"default:pending;index"`
	ImageVectorStatus VectorStatus `json:"image_vector_status" gorm:"default:pending"`
}

// HasDownloadSource meldet, ob mindestens eine Download-Quelle existiert.
func (p *Paper) HasDownloadSource() bool {
	return p.OpenAccessURL != "" || p.ArxivID != "" || p.DOI != ""
}

// OverallStatus leitet den Gesamtstatus aus beiden Stufen ab.
func (p *Paper) OverallStatus() OverallStatus {
	return DeriveOverallStatus(p.TextVectorStatus, p.ImageVectorStatus)
}
