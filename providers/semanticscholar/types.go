package semanticscholar

import (
	"fmt"
	"strings"

	"paper-atlas/models"
)

// DefaultPaperFields sind die Felder, die bei Paper-Lookups angefordert werden.
const DefaultPaperFields = "paperId,title,abstract,year,citationCount,venue,authors,externalIds,openAccessPdf"

// S2Paper ist das Paper-Objekt der Semantic Scholar Graph API.
type S2Paper struct {
	PaperID       string     `json:"paperId"`
	Title         string     `json:"title"`
	Abstract      string     `json:"abstract"`
	Year          int        `json:"year"`
	CitationCount int        `json:"citationCount"`
	Venue         string     `json:"venue"`
	Authors       []S2Author `json:"authors"`
	ExternalIDs   struct {
		DOI   string `json:"DOI"`
		ArXiv string `json:"ArXiv"`
	} `json:"externalIds"`
	OpenAccessPDF struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
}

// S2Author ist ein Autor-Eintrag der Graph API.
type S2Author struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

// searchResponse ist die Antwort von GET /paper/search.
// Das Schema ist explizit; fehlt das data-Feld, schlägt das Parsen mit
// einem typisierten Fehler fehl statt stillschweigend leer zu bleiben.
type searchResponse struct {
	Total  int        `json:"total"`
	Offset int        `json:"offset"`
	Next   *int       `json:"next"`
	Data   *[]S2Paper `json:"data"`
}

// edgeResponse ist die Antwort von GET /paper/{id}/references bzw. /citations.
type edgeResponse struct {
	Offset int        `json:"offset"`
	Next   *int       `json:"next"`
	Data   *[]S2Edge  `json:"data"`
}

// S2Edge ist ein Eintrag der Referenz-/Zitationsliste. Je nach Richtung ist
// citedPaper oder citingPaper gesetzt.
type S2Edge struct {
	IsInfluential bool     `json:"isInfluential"`
	CitedPaper    *S2Paper `json:"citedPaper"`
	CitingPaper   *S2Paper `json:"citingPaper"`
}

// ParseError meldet eine Antwort, die nicht dem erwarteten Schema entspricht.
type ParseError struct {
	Endpoint string
	Missing  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("semanticscholar: unexpected response from %s: missing field %q", e.Endpoint, e.Missing)
}

// APIError ist ein HTTP-Fehler der Graph API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("semanticscholar: HTTP %d: %s", e.StatusCode, e.Message)
}

// mapS2ToModel konvertiert ein S2Paper in unser internes Paper-Modell.
func mapS2ToModel(p *S2Paper) *models.Paper {
	names := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}

	return &models.Paper{
		PaperID:       p.PaperID,
		Title:         p.Title,
		Abstract:      p.Abstract,
		Year:          p.Year,
		CitationCount: p.CitationCount,
		Venue:         p.Venue,
		Authors:       strings.Join(names, ", "),
		OpenAccessURL: p.OpenAccessPDF.URL,
		ArxivID:       p.ExternalIDs.ArXiv,
		DOI:           p.ExternalIDs.DOI,
	}
}
