package models

// GraphNode ist eine abgeleitete, nicht persistierte Projektion von
// Paper + CollectionPaper für die Graph-Visualisierung.
type GraphNode struct {
	PaperID       string        `json:"paper_id"`
	Title         string        `json:"title"`
	Year          int           `json:"year,omitempty"`
	CitationCount int           `json:"citation_count"`
	Degree        int           `json:"degree"`
	Status        OverallStatus `json:"status"`
}

// GraphEdge verbindet ein Paper mit dem Paper, über das es entdeckt wurde.
type GraphEdge struct {
	SourcePaperID string           `json:"source_paper_id"`
	TargetPaperID string           `json:"target_paper_id"`
	Relationship  RelationshipType `json:"relationship"`
	Similarity    *float64         `json:"similarity,omitempty"`
}

// CollectionGraph fasst Knoten und Kanten einer Collection zusammen.
type CollectionGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// BuildCollectionGraph projiziert die Link-Zeilen einer Collection auf
// Knoten und Kanten. Seed-Papers (ohne Source) erzeugen keine Kante.
func BuildCollectionGraph(papers []Paper, links []CollectionPaper) CollectionGraph {
	byID := make(map[string]*Paper, len(papers))
	for i := range papers {
		byID[papers[i].PaperID] = &papers[i]
	}

	graph := CollectionGraph{}
	for _, link := range links {
		node := GraphNode{
			PaperID: link.PaperID,
			Degree:  link.Degree,
		}
		if p, ok := byID[link.PaperID]; ok {
			node.Title = p.Title
			node.Year = p.Year
			node.CitationCount = p.CitationCount
			node.Status = p.OverallStatus()
		}
		graph.Nodes = append(graph.Nodes, node)

		if link.SourcePaperID != "" {
			graph.Edges = append(graph.Edges, GraphEdge{
				SourcePaperID: link.SourcePaperID,
				TargetPaperID: link.PaperID,
				Relationship:  link.RelationshipType,
				Similarity:    link.SimilarityScore,
			})
		}
	}
	return graph
}
