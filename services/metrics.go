package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// jobsProcessedTotal zählt abgeschlossene Pipeline-Jobs pro Stufe
	// und Ausgang.
	jobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_jobs_processed_total",
		Help: "Abgeschlossene Pipeline-Jobs pro Stufe und Ausgang.",
	}, []string{"stage", "outcome"})

	// papersIndexedTotal zählt Papers, deren Text-Indexierung erfolgreich
	// abgeschlossen wurde.
	papersIndexedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papers_indexed_total",
		Help: "Erfolgreich text-indexierte Papers.",
	})
)
