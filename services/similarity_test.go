package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// unitVec baut einen 2D-Einheitsvektor, dessen Cosine-Similarity zur
// Query [1,0] exakt sim beträgt.
func unitVec(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func TestAnalyzePercentiles(t *testing.T) {
	a := NewSimilarityAnalyzer(zap.NewNop())
	query := []float32{1, 0}
	candidates := map[string][]float32{
		"p1": unitVec(0.1),
		"p2": unitVec(0.3),
		"p3": unitVec(0.5),
		"p4": unitVec(0.7),
		"p5": unitVec(0.9),
	}

	result, err := a.Analyze(query, candidates, 0)
	require.NoError(t, err)

	// n=5 liefert ganzzahlige Indizes bei 25/50/75: exakte Order-Statistiken.
	assert.InDelta(t, 0.3, result.Statistics.P25, 1e-6)
	assert.InDelta(t, 0.5, result.Statistics.Median, 1e-6)
	assert.InDelta(t, 0.7, result.Statistics.P75, 1e-6)
	assert.InDelta(t, 0.1, result.Statistics.Min, 1e-6)
	assert.InDelta(t, 0.9, result.Statistics.Max, 1e-6)
	assert.InDelta(t, 0.5, result.Statistics.Mean, 1e-6)

	// p90: index 3.6 -> Interpolation zwischen 0.7 und 0.9.
	assert.InDelta(t, 0.82, result.Statistics.P90, 1e-6)
	assert.InDelta(t, 0.86, result.Statistics.P95, 1e-6)

	// Scores absteigend sortiert.
	require.Len(t, result.Scores, 5)
	assert.Equal(t, "p5", result.Scores[0].ID)
	assert.Equal(t, "p1", result.Scores[4].ID)
}

func TestAnalyzeThresholdFloors(t *testing.T) {
	a := NewSimilarityAnalyzer(zap.NewNop())
	// p75 = 0.5: alle rohen Perzentile liegen unter den Floors.
	candidates := map[string][]float32{
		"a": unitVec(0.40),
		"b": unitVec(0.45),
		"c": unitVec(0.50),
		"d": unitVec(0.50),
		"e": unitVec(0.55),
	}

	result, err := a.Analyze([]float32{1, 0}, candidates, 0)
	require.NoError(t, err)
	require.InDelta(t, 0.5, result.Statistics.P75, 1e-6)

	assert.Equal(t, 0.8, result.Recommendations.Conservative)
	assert.Equal(t, 0.7, result.Recommendations.Balanced)
	assert.Equal(t, 0.6, result.Recommendations.Inclusive)
}

func TestAnalyzeThresholdAbovesFloor(t *testing.T) {
	a := NewSimilarityAnalyzer(zap.NewNop())
	candidates := map[string][]float32{
		"a": unitVec(0.85),
		"b": unitVec(0.90),
		"c": unitVec(0.95),
	}

	result, err := a.Analyze([]float32{1, 0}, candidates, 0)
	require.NoError(t, err)

	assert.InDelta(t, result.Statistics.P75, result.Recommendations.Conservative, 1e-6)
	assert.InDelta(t, result.Statistics.Median, result.Recommendations.Balanced, 1e-6)
	assert.Greater(t, result.Recommendations.Conservative, 0.8)
}

func TestAnalyzeHistogramCompleteness(t *testing.T) {
	a := NewSimilarityAnalyzer(zap.NewNop())
	candidates := map[string][]float32{}
	sims := []float64{0.12, 0.25, 0.33, 0.48, 0.51, 0.67, 0.74, 0.88, 0.91, 0.99}
	for i, s := range sims {
		candidates[string(rune('a'+i))] = unitVec(s)
	}

	result, err := a.Analyze([]float32{1, 0}, candidates, 0)
	require.NoError(t, err)
	require.Len(t, result.Histogram, DefaultBucketCount)

	total := 0
	for _, b := range result.Histogram {
		total += b.Count
	}
	assert.Equal(t, len(sims), total, "jede Similarity fällt in genau einen Bucket")

	// Das Maximum landet im letzten, beidseitig geschlossenen Bucket.
	assert.GreaterOrEqual(t, result.Histogram[DefaultBucketCount-1].Count, 1)
}

func TestAnalyzeHistogramSingleValue(t *testing.T) {
	a := NewSimilarityAnalyzer(zap.NewNop())
	candidates := map[string][]float32{
		"a": unitVec(0.5),
		"b": unitVec(0.5),
	}

	result, err := a.Analyze([]float32{1, 0}, candidates, 4)
	require.NoError(t, err)
	require.Len(t, result.Histogram, 4)

	// min == max: Bucket-Breite 0, alle Werte im letzten Bucket.
	total := 0
	for _, b := range result.Histogram {
		total += b.Count
	}
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, result.Histogram[3].Count)
}

func TestAnalyzeExcludesMissingEmbeddings(t *testing.T) {
	a := NewSimilarityAnalyzer(zap.NewNop())
	candidates := map[string][]float32{
		"good":    unitVec(0.8),
		"missing": nil,
		"short":   {0.5},
	}

	result, err := a.Analyze([]float32{1, 0}, candidates, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"missing", "short"}, result.Excluded)
	require.Len(t, result.Scores, 1)
	assert.Equal(t, 1, result.Statistics.Count, "ausgeschlossene Kandidaten zählen nicht in die Statistik")
}

func TestAnalyzeFailsWithoutUsableCandidates(t *testing.T) {
	a := NewSimilarityAnalyzer(zap.NewNop())

	_, err := a.Analyze([]float32{1, 0}, map[string][]float32{"x": nil}, 0)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)

	_, err = a.Analyze(nil, map[string][]float32{"x": unitVec(0.5)}, 0)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{1}), "dimension mismatch")
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}), "zero vector")
}
