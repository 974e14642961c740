package sandbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/TanviPoddar/CodeGenie/internal/model"
)

// unsupportedLabel replaces unknown language tags in metric labels to keep
// cardinality bounded.
const unsupportedLabel = "unsupported"

var (
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegenie_executions_total",
			Help: "Total number of code executions by language and outcome.",
		},
		[]string{"language", "outcome"},
	)

	executionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codegenie_execution_duration_seconds",
			Help:    "Wall-clock duration of code executions, including compilation, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"language"},
	)
)

func init() {
	prometheus.MustRegister(executionsTotal)
	prometheus.MustRegister(executionDuration)

	outcomes := []string{
		model.KindSuccess,
		model.KindCompileError,
		model.KindRuntimeError,
		model.KindTimedOut,
		model.KindToolMissing,
	}
	for _, lang := range Languages() {
		for _, o := range outcomes {
			executionsTotal.WithLabelValues(lang, o)
		}
	}
	executionsTotal.WithLabelValues(unsupportedLabel, model.KindUnsupportedLanguage)
}

func observeExecution(language, kind string, d time.Duration) {
	if _, ok := LookupLanguage(language); !ok {
		language = unsupportedLabel
	}
	executionsTotal.WithLabelValues(language, kind).Inc()
	executionDuration.WithLabelValues(language).Observe(d.Seconds())
}
