package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(jobsFinishedTotal, jobDurationSeconds, jobsStaleReclaimedTotal, jobsCleanedTotal, recordsCreatedTotal)
}

var jobsFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "breakdown_jobs_finished_total",
		Help: "Total breakdown jobs finished, labeled by terminal status.",
	},
	[]string{"status"}, // 'completed', 'failed', 'cancelled'
)

var jobDurationSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "breakdown_job_duration_seconds",
		Help:    "Wall-clock duration of finished jobs.",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
	},
)

var jobsStaleReclaimedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "breakdown_jobs_stale_reclaimed_total",
		Help: "Jobs force-failed by the staleness sweep.",
	},
)

var jobsCleanedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "breakdown_jobs_cleaned_total",
		Help: "Terminal jobs deleted past the retention window.",
	},
)

var recordsCreatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "breakdown_records_created_total",
		Help: "Breakdown records written by the persisting step.",
	},
	[]string{"kind"}, // 'scene', 'element'
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncJobFinished(status string, dur time.Duration) {
	jobsFinishedTotal.WithLabelValues(norm(status)).Inc()
	jobDurationSeconds.Observe(dur.Seconds())
}

func IncStale(n int) {
	jobsStaleReclaimedTotal.Add(float64(n))
}

func IncCleaned(n int) {
	jobsCleanedTotal.Add(float64(n))
}

func AddRecords(scenes, elements int) {
	recordsCreatedTotal.WithLabelValues("scene").Add(float64(scenes))
	recordsCreatedTotal.WithLabelValues("element").Add(float64(elements))
}
