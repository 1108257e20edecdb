package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// comparisonsTotal counts service operations.
	// Labels: operation (records, patients, similar), outcome (success, error)
	comparisonsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patient_similarity",
		Subsystem: "service",
		Name:      "comparisons_total",
		Help:      "Total similarity operations by outcome",
	}, []string{"operation", "outcome"})

	// matchDuration measures operation latency.
	// Labels: operation
	matchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "patient_similarity",
		Subsystem: "service",
		Name:      "duration_seconds",
		Help:      "Similarity operation latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation"})

	// matchesByTag counts emitted matches.
	// Labels: tag
	matchesByTag = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patient_similarity",
		Subsystem: "service",
		Name:      "matches_total",
		Help:      "Total emitted matches by similarity tag",
	}, []string{"tag"})

	// candidatesScanned counts cohort patients compared in searches.
	candidatesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "patient_similarity",
		Subsystem: "service",
		Name:      "candidates_scanned_total",
		Help:      "Total cohort candidates compared against a reference patient",
	})
)
