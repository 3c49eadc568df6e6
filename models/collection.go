package models

import (
	"time"
)

// Collection ist eine benutzereigene Sammlung von Papers.
type Collection struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint   `json:"user_id" gorm:"index;not null"`
	Name   string `json:"name" gorm:"not null"`

	// Forschungsfrage bzw. Keyword-Query der Collection; deren Embedding
	// steuert das Reranking der Graph-Expansion.
	ResearchQuestion string `json:"research_question,omitempty" gorm:"type:text"`
}

// RelationshipType beschreibt, wie ein Paper in eine Collection gelangt ist.
type RelationshipType string

const (
	RelationSearch    RelationshipType = "search"
	RelationReference RelationshipType = "reference"
	RelationCitation  RelationshipType = "citation"
)

// CollectionPaper verknüpft eine Collection mit einem Paper und trägt die
// Expansions-Metadaten. Das Paar (collection_id, paper_id) ist eindeutig:
// ein über mehrere Pfade entdecktes Paper behält die zuerst erfasste
// Relationship samt Degree und Source.
type CollectionPaper struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	CollectionID uint   `json:"collection_id" gorm:"uniqueIndex:idx_collection_paper;not null"`
	PaperID      string `json:"paper_id" gorm:"uniqueIndex:idx_collection_paper;not null"`

	// Paper, über das dieses entdeckt wurde; leer bei Seed-Papers.
	SourcePaperID    string           `json:"source_paper_id,omitempty"`
	RelationshipType RelationshipType `json:"relationship_type" gorm:"default:search"`
	SimilarityScore  *float64         `json:"similarity_score,omitempty"`
	// 0 für Seed-/Such-Papers, 1-3 für Expansions-Level.
	Degree int `json:"degree" gorm:"default:0"`
}
