package services

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
)

// DefaultBucketCount ist die Standard-Anzahl der Histogramm-Buckets.
const DefaultBucketCount = 20

// CandidateScore ist die Cosine-Similarity eines Kandidaten zur Query.
type CandidateScore struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

// SimilarityStatistics fasst die Verteilung der Similarities zusammen.
type SimilarityStatistics struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	P25    float64 `json:"p25"`
	Median float64 `json:"median"`
	P75    float64 `json:"p75"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`
}

// HistogramBucket zählt Kandidaten in [Min, Max); der letzte Bucket ist
// beidseitig geschlossen.
type HistogramBucket struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// ThresholdRecommendations sind Schwellenwert-Empfehlungen mit Floors:
// rohe Perzentile können bei kleinen oder schiefen Kandidaten-Mengen unter
// jede sinnvolle Similarity fallen, der Floor garantiert ein Minimum.
type ThresholdRecommendations struct {
	Conservative float64 `json:"conservative"`
	Balanced     float64 `json:"balanced"`
	Inclusive    float64 `json:"inclusive"`
}

// SimilarityAnalysis ist das Gesamtergebnis des Analyzers.
type SimilarityAnalysis struct {
	Scores          []CandidateScore         `json:"scores"`
	Excluded        []string                 `json:"excluded,omitempty"`
	Statistics      SimilarityStatistics     `json:"statistics"`
	Histogram       []HistogramBucket        `json:"histogram"`
	Recommendations ThresholdRecommendations `json:"recommendations"`
}

// SimilarityAnalyzer berechnet Cosine-Similarities, Perzentile und
// Schwellenwert-Empfehlungen für Kandidaten-Embeddings.
type SimilarityAnalyzer struct {
	Logger *zap.Logger
}

// NewSimilarityAnalyzer erstellt einen neuen Analyzer.
func NewSimilarityAnalyzer(logger *zap.Logger) *SimilarityAnalyzer {
	return &SimilarityAnalyzer{Logger: logger}
}

// Analyze berechnet für jeden Kandidaten die Cosine-Similarity zur Query.
// Kandidaten ohne (oder mit dimensionsfremdem) Embedding landen in Excluded
// und fließen nicht in die Statistik ein. Gibt es keinen einzigen gültigen
// Kandidaten, schlägt die Analyse mit ErrEmbeddingUnavailable fehl.
func (a *SimilarityAnalyzer) Analyze(query []float32, candidates map[string][]float32, bucketCount int) (*SimilarityAnalysis, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: query embedding is empty", ErrEmbeddingUnavailable)
	}
	if bucketCount <= 0 {
		bucketCount = DefaultBucketCount
	}

	result := &SimilarityAnalysis{}
	for id, emb := range candidates {
		if len(emb) != len(query) {
			result.Excluded = append(result.Excluded, id)
			continue
		}
		result.Scores = append(result.Scores, CandidateScore{
			ID:         id,
			Similarity: CosineSimilarity(query, emb),
		})
	}
	sort.Strings(result.Excluded)

	if len(result.Scores) == 0 {
		return nil, fmt.Errorf("%w: no candidate with a usable embedding", ErrEmbeddingUnavailable)
	}

	sort.Slice(result.Scores, func(i, j int) bool {
		return result.Scores[i].Similarity > result.Scores[j].Similarity
	})

	sims := make([]float64, len(result.Scores))
	for i, s := range result.Scores {
		sims[i] = s.Similarity
	}
	sort.Float64s(sims)

	result.Statistics = computeStatistics(sims)
	result.Histogram = buildHistogram(sims, bucketCount)
	result.Recommendations = ThresholdRecommendations{
		Conservative: math.Max(0.8, result.Statistics.P75),
		Balanced:     math.Max(0.7, result.Statistics.Median),
		Inclusive:    math.Max(0.6, result.Statistics.P25),
	}

	if a.Logger != nil {
		a.Logger.Debug("Similarity-Analyse abgeschlossen",
			zap.Int("candidates", len(result.Scores)),
			zap.Int("excluded", len(result.Excluded)),
			zap.Float64("median", result.Statistics.Median))
	}
	return result, nil
}

// CosineSimilarity berechnet die Cosine-Similarity zweier Vektoren.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denominator := math.Sqrt(normA) * math.Sqrt(normB)
	if denominator == 0 {
		return 0
	}
	return dot / denominator
}

// computeStatistics erwartet eine aufsteigend sortierte Liste.
func computeStatistics(sorted []float64) SimilarityStatistics {
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return SimilarityStatistics{
		Count:  len(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   sum / float64(len(sorted)),
		P25:    percentile(sorted, 25),
		Median: percentile(sorted, 50),
		P75:    percentile(sorted, 75),
		P90:    percentile(sorted, 90),
		P95:    percentile(sorted, 95),
	}
}

// percentile interpoliert linear zwischen Order-Statistiken:
// index = p/100 * (n-1); bei gebrochenem Index wird zwischen den beiden
// umschließenden sortierten Werten interpoliert.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}

	idx := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper {
		return sorted[lower]
	}

	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// buildHistogram teilt [min, max] in bucketCount gleich breite Buckets.
// Jeder Bucket zählt Werte in [bucketMin, bucketMax), nur der letzte ist
// beidseitig geschlossen, damit das Maximum nicht herausfällt.
func buildHistogram(sorted []float64, bucketCount int) []HistogramBucket {
	minVal, maxVal := sorted[0], sorted[len(sorted)-1]

	buckets := make([]HistogramBucket, bucketCount)
	width := (maxVal - minVal) / float64(bucketCount)
	for i := range buckets {
		buckets[i].Min = minVal + float64(i)*width
		buckets[i].Max = minVal + float64(i+1)*width
	}
	buckets[bucketCount-1].Max = maxVal

	for _, v := range sorted {
		idx := bucketCount - 1
		if width > 0 {
			idx = int((v - minVal) / width)
			if idx >= bucketCount {
				// Maximum gehört in den letzten (geschlossenen) Bucket.
				idx = bucketCount - 1
			}
		}
		buckets[idx].Count++
	}

	return buckets
}
