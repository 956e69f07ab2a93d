// Package metrics provides Prometheus metrics collection for predictor
// construction, prediction accuracy and configuration tuning.
//
// Metrics are registered on creation; tests use NewWithRegistry with a private
// registry so they do not collide with the default one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the simulator tools.
type Metrics struct {
	// Predictor metrics, labelled by predictor kind
	Predictions        *prometheus.CounterVec // Conditional branch predictions served
	Mispredictions     *prometheus.CounterVec // Updates whose outcome differed from the prediction
	Updates            *prometheus.CounterVec // Retired branches fed to predictors
	Constructions      *prometheus.CounterVec // Predictors built successfully
	ConstructionErrors *prometheus.CounterVec // Failed constructions, labelled by reason

	// Tuning metrics
	TuningEvaluations        prometheus.Counter   // Candidate configurations evaluated
	TuningFailures           prometheus.Counter   // Candidates penalised because evaluation failed
	TuningBestImprovement    prometheus.Gauge     // Best weighted MPKI improvement so far, in percent
	TuningEvaluationDuration prometheus.Histogram // Wall time per candidate evaluation
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics registered on registerer.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bp_predictions_total",
			Help: "Total number of conditional branch predictions",
		}, []string{"kind"}),
		Mispredictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bp_mispredictions_total",
			Help: "Total number of mispredicted conditional branches",
		}, []string{"kind"}),
		Updates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bp_updates_total",
			Help: "Total number of retired branches fed to predictors",
		}, []string{"kind"}),
		Constructions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bp_constructions_total",
			Help: "Total number of predictors constructed",
		}, []string{"kind"}),
		ConstructionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bp_construction_errors_total",
			Help: "Total number of failed predictor constructions",
		}, []string{"reason"}),
		TuningEvaluations: factory.NewCounter(prometheus.CounterOpts{
			Name: "tuning_evaluations_total",
			Help: "Total number of candidate configurations evaluated",
		}),
		TuningFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "tuning_failures_total",
			Help: "Total number of candidate evaluations that failed",
		}),
		TuningBestImprovement: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tuning_best_improvement_percent",
			Help: "Best weighted MPKI improvement over the baseline so far",
		}),
		TuningEvaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tuning_evaluation_duration_seconds",
			Help:    "Duration of candidate evaluations in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
	}
}
