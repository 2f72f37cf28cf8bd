package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the orchestrator
type Metrics struct {
	// Submission metrics
	SubmissionsTotal  *prometheus.CounterVec
	SubmissionsFailed *prometheus.CounterVec
	MatchRetries      prometheus.Counter
	DatasetDegrades   prometheus.Counter

	// Polling metrics
	PollsTotal          prometheus.Counter
	PollTransientErrors prometheus.Counter
	PollTimeouts        prometheus.Counter
	UnknownRemoteStates prometheus.Counter
	PollDuration        prometheus.Histogram

	// Outcome metrics
	JobsCompleted *prometheus.CounterVec
	JobsFailed    prometheus.Counter
	ParseFallback prometheus.Counter
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// New creates and registers orchestrator metrics (singleton pattern)
func New() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			SubmissionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "teem",
					Subsystem: "orchestrator",
					Name:      "submissions_total",
					Help:      "Total submissions by provenance mode",
				},
				[]string{"mode"},
			),
			SubmissionsFailed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "teem",
					Subsystem: "orchestrator",
					Name:      "submissions_failed_total",
					Help:      "Total submissions aborted, by stage",
				},
				[]string{"stage"},
			),
			MatchRetries: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "teem",
					Subsystem: "orchestrator",
					Name:      "match_retries_total",
					Help:      "Total match attempts retried with re-fetched offers",
				},
			),
			DatasetDegrades: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "teem",
					Subsystem: "orchestrator",
					Name:      "dataset_degrades_total",
					Help:      "Total submissions that continued without their protected dataset",
				},
			),
			PollsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "teem",
					Subsystem: "poller",
					Name:      "polls_total",
					Help:      "Total job state polls issued",
				},
			),
			PollTransientErrors: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "teem",
					Subsystem: "poller",
					Name:      "poll_transient_errors_total",
					Help:      "Total polls that failed with a transient transport error",
				},
			),
			PollTimeouts: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "teem",
					Subsystem: "poller",
					Name:      "poll_timeouts_total",
					Help:      "Total watches that exhausted their poll budget",
				},
			),
			UnknownRemoteStates: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "teem",
					Subsystem: "poller",
					Name:      "unknown_remote_states_total",
					Help:      "Total polls that returned an unmappable remote state",
				},
			),
			PollDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "teem",
					Subsystem: "poller",
					Name:      "watch_duration_seconds",
					Help:      "Wall time from first poll to terminal state",
					Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
				},
			),
			JobsCompleted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "teem",
					Subsystem: "poller",
					Name:      "jobs_completed_total",
					Help:      "Total jobs that reached Completed, by outcome status",
				},
				[]string{"status"},
			),
			JobsFailed: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "teem",
					Subsystem: "poller",
					Name:      "jobs_failed_total",
					Help:      "Total jobs that reached Failed",
				},
			),
			ParseFallback: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "teem",
					Subsystem: "poller",
					Name:      "result_parse_fallback_total",
					Help:      "Total result payloads decoded through the numeric fallback or captured as parse errors",
				},
			),
		}
	})
	return metrics
}
