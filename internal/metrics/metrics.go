package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters for the relayer pipelines.
type Metrics struct {
	eventsObserved       prometheus.Counter
	submissionsSucceeded prometheus.Counter
	submissionRetries    prometheus.Counter
	eventsAbandoned      prometheus.Counter
	benignReplays        prometheus.Counter
	errors               prometheus.Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			eventsObserved: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "relayer_events_observed_total",
				Help: "Total number of source events observed across all streams",
			}),
			submissionsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "relayer_submissions_succeeded_total",
				Help: "Total number of destination transactions mined successfully",
			}),
			submissionRetries: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "relayer_submission_retries_total",
				Help: "Total number of submission attempts retried after an error",
			}),
			eventsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "relayer_events_abandoned_total",
				Help: "Total number of events abandoned after exhausting retries",
			}),
			benignReplays: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "relayer_benign_replays_total",
				Help: "Total number of submissions resolved by the destination replay map",
			}),
			errors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "relayer_errors_total",
				Help: "Total number of errors encountered",
			}),
		}
		prometheus.MustRegister(
			metrics.eventsObserved,
			metrics.submissionsSucceeded,
			metrics.submissionRetries,
			metrics.eventsAbandoned,
			metrics.benignReplays,
			metrics.errors,
		)
	})
	return metrics
}

// EventObserved increments the observed-events counter.
func (m *Metrics) EventObserved() {
	if m != nil {
		m.eventsObserved.Inc()
	}
}

// SubmissionSucceeded increments the mined-submissions counter.
func (m *Metrics) SubmissionSucceeded() {
	if m != nil {
		m.submissionsSucceeded.Inc()
	}
}

// SubmissionRetried increments the retried-attempts counter.
func (m *Metrics) SubmissionRetried() {
	if m != nil {
		m.submissionRetries.Inc()
	}
}

// EventAbandoned increments the abandoned-events counter.
func (m *Metrics) EventAbandoned() {
	if m != nil {
		m.eventsAbandoned.Inc()
	}
}

// BenignReplay increments the replay-map-resolved counter.
func (m *Metrics) BenignReplay() {
	if m != nil {
		m.benignReplays.Inc()
	}
}

// Errors increments the errors counter.
func (m *Metrics) Errors() {
	if m != nil {
		m.errors.Inc()
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
