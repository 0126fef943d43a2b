package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// documentsIngested counts uploads by outcome (committed, rejected, rolled_back).
	documentsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_documents_ingested_total",
			Help: "Document uploads by outcome.",
		},
		[]string{"outcome"},
	)

	chunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rag_chunks_indexed_total",
			Help: "Chunks embedded and stored in the vector index.",
		},
	)

	ingestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_ingest_duration_seconds",
			Help:    "Wall time of document uploads.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	answers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_answers_total",
			Help: "Answer requests by model and outcome.",
		},
		[]string{"model", "outcome"},
	)

	// consistencyErrors signals a broken relational/vector invariant that
	// needs an operator.
	consistencyErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_consistency_errors_total",
			Help: "Failed compensations leaving the stores out of sync.",
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(documentsIngested, chunksIndexed, ingestDuration, answers, consistencyErrors)
}
