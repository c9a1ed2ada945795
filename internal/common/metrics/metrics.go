// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AgentJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_jobs_completed_total",
			Help: "Total number of jobs completed by agent",
		},
		[]string{"agent"},
	)

	AgentJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_jobs_failed_total",
			Help: "Total number of jobs failed by agent",
		},
		[]string{"agent", "error_code"},
	)

	AgentJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_job_duration_seconds",
			Help:    "Duration of job processing in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"agent"},
	)

	AgentJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agent_jobs_active",
			Help: "Number of active jobs per agent",
		},
		[]string{"agent"},
	)

	MessagesForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_messages_forwarded_total",
			Help: "Messages published to another agent",
		},
		[]string{"sender", "recipient", "outcome"},
	)

	UpstreamCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_upstream_calls_total",
			Help: "Calls to third-party APIs by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	SessionContexts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "filechat_session_contexts",
			Help: "Session contexts held by the in-memory store",
		},
		[]string{"backend"},
	)
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// ObserveUpstream records one upstream call.
func ObserveUpstream(service string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	UpstreamCalls.WithLabelValues(service, outcome).Inc()
}
