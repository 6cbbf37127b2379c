package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	reminders *prometheus.CounterVec
	purged    prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddReminder counts an installment reminder by outcome ("sent", "skipped_paid", "skipped_gone").
func (m *Metrics) AddReminder(outcome string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(outcome).Inc()
}

// AddPurgedKeys counts idempotency keys removed by the cleanup job.
func (m *Metrics) AddPurgedKeys(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(float64(n))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "purchasing_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "purchasing_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "purchasing_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	reminders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "purchasing_emi_reminders_total",
		Help: "Installment due-date reminders processed, by outcome.",
	}, []string{"outcome"})
	purged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "purchasing_idempotency_keys_purged_total",
		Help: "Idempotency keys removed by the retention job.",
	})
	registerer.MustRegister(runs, failures, duration, reminders, purged)
	return &Metrics{runs: runs, failures: failures, duration: duration, reminders: reminders, purged: purged}
}
