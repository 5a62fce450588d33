package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(modelTokensIn, modelTokensOut, modelCallLatencyMs) }

var modelTokensIn = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "model_tokens_in",
		Help: "Sum of prompt (input) tokens per provider.",
	},
	[]string{"provider"},
)

var modelTokensOut = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "model_tokens_out",
		Help: "Sum of completion (output) tokens per provider.",
	},
	[]string{"provider"},
)

var modelCallLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "model_call_latency_ms",
		Help:    "Model call latency distribution in milliseconds.",
		Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 30000},
	},
	[]string{"provider", "success"},
)

func ObserveModelCall(provider string, tokensIn, tokensOut int, dur time.Duration, success bool) {
	modelTokensIn.WithLabelValues(norm(provider)).Add(float64(tokensIn))
	modelTokensOut.WithLabelValues(norm(provider)).Add(float64(tokensOut))
	modelCallLatencyMs.WithLabelValues(norm(provider), strconv.FormatBool(success)).
		Observe(float64(dur / time.Millisecond))
}
