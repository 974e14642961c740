package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/TanviPoddar/CodeGenie/internal/model"
)

var (
	buildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegenie_builds_total",
			Help: "Total number of finished builds by final status.",
		},
		[]string{"status"},
	)

	buildsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "codegenie_builds_in_flight",
			Help: "Number of builds currently running.",
		},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codegenie_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"stage", "status"},
	)
)

func init() {
	prometheus.MustRegister(buildsTotal)
	prometheus.MustRegister(buildsInFlight)
	prometheus.MustRegister(stageDuration)

	buildsTotal.WithLabelValues(model.StatusCompleted)
	buildsTotal.WithLabelValues(model.StatusFailed)
}

func observeStage(name, status string, d time.Duration) {
	stageDuration.WithLabelValues(name, status).Observe(d.Seconds())
}
