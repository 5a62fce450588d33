package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(stepLatencyMs, stepFailuresTotal) }

var stepLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "breakdown_step_latency_ms",
		Help:    "Pipeline step latency distribution in milliseconds.",
		Buckets: []float64{50, 200, 500, 1000, 5000, 15000, 60000, 180000},
	},
	[]string{"step", "success"},
)

var stepFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "breakdown_step_failures_total",
		Help: "Pipeline step failures, fatal and best-effort alike.",
	},
	[]string{"step"},
)

func ObserveStep(step string, dur time.Duration, success bool) {
	stepLatencyMs.WithLabelValues(norm(step), strconv.FormatBool(success)).
		Observe(float64(dur / time.Millisecond))
	if !success {
		stepFailuresTotal.WithLabelValues(norm(step)).Inc()
	}
}
