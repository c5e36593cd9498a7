// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PredictionsTotal counts served predictions by model version and
	// outcome class.
	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codguard",
		Name:      "predictions_total",
		Help:      "Number of predictions served.",
	}, []string{"model_version", "risk"})

	// PredictionErrors counts failed prediction requests by error kind.
	PredictionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codguard",
		Name:      "prediction_errors_total",
		Help:      "Number of failed prediction requests.",
	}, []string{"kind"})

	// PredictionLatency observes end-to-end prediction latency.
	PredictionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "codguard",
		Name:      "prediction_latency_seconds",
		Help:      "Prediction latency.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	})

	// DriftChecksTotal counts drift checks by verdict.
	DriftChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codguard",
		Name:      "drift_checks_total",
		Help:      "Number of drift checks run.",
	}, []string{"should_retrain"})

	// DriftedFeatures gauges the drifted-feature count of the latest
	// check.
	DriftedFeatures = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "codguard",
		Name:      "drifted_features",
		Help:      "Drifted features in the most recent drift check.",
	})

	// RetrainsTotal counts retrain runs by trigger and result.
	RetrainsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codguard",
		Name:      "retrains_total",
		Help:      "Number of retrain runs.",
	}, []string{"trigger", "result"})

	// RetrainDuration observes full retrain run duration.
	RetrainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "codguard",
		Name:      "retrain_duration_seconds",
		Help:      "Duration of retrain runs.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	// PromotionsTotal counts challenger promotions and rejections.
	PromotionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codguard",
		Name:      "model_promotions_total",
		Help:      "Challenger comparison outcomes.",
	}, []string{"outcome"})
)
