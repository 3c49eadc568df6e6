package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCollectionGraph(t *testing.T) {
	score := 0.92
	papers := []Paper{
		{PaperID: "seed", Title: "Seed Paper", Year: 2020, CitationCount: 50, TextVectorStatus: StatusCompleted, ImageVectorStatus: StatusSkipped},
		{PaperID: "ref1", Title: "Referenced Paper", Year: 2018, CitationCount: 120, TextVectorStatus: StatusPending, ImageVectorStatus: StatusPending},
	}
	links := []CollectionPaper{
		{CollectionID: 1, PaperID: "seed", Degree: 0, RelationshipType: RelationSearch},
		{CollectionID: 1, PaperID: "ref1", Degree: 1, SourcePaperID: "seed", RelationshipType: RelationReference, SimilarityScore: &score},
	}

	graph := BuildCollectionGraph(papers, links)

	require.Len(t, graph.Nodes, 2)
	assert.Equal(t, OverallCompleted, graph.Nodes[0].Status)
	assert.Equal(t, OverallPending, graph.Nodes[1].Status)

	// Seed-Papers erzeugen keine Kante.
	require.Len(t, graph.Edges, 1)
	assert.Equal(t, "seed", graph.Edges[0].SourcePaperID)
	assert.Equal(t, "ref1", graph.Edges[0].TargetPaperID)
	assert.Equal(t, RelationReference, graph.Edges[0].Relationship)
	require.NotNil(t, graph.Edges[0].Similarity)
	assert.Equal(t, score, *graph.Edges[0].Similarity)
}
