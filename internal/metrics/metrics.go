// Package metrics exposes Prometheus collectors for the job queue,
// adapted from the teacher's internal/metrics package: same
// register-once-and-ignore-AlreadyRegistered idiom and no-op-until-
// registered helpers, repurposed from process supervision counters to
// job lifecycle counters.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	jobsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobq",
			Subsystem: "job",
			Name:      "published_total",
			Help:      "Number of jobs successfully published.",
		}, []string{"name"},
	)
	jobsSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobq",
			Subsystem: "job",
			Name:      "singleton_suppressed_total",
			Help:      "Number of publishes suppressed by singleton throttling.",
		}, []string{"name"},
	)
	jobsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobq",
			Subsystem: "job",
			Name:      "fetched_total",
			Help:      "Number of jobs claimed for processing.",
		}, []string{"name"},
	)
	jobsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jobq",
			Subsystem: "job",
			Name:      "completed_total",
			Help:      "Number of jobs marked completed.",
		},
	)
	jobsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jobq",
			Subsystem: "job",
			Name:      "cancelled_total",
			Help:      "Number of jobs marked cancelled.",
		},
	)
	jobsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jobq",
			Subsystem: "job",
			Name:      "expired_total",
			Help:      "Number of active jobs swept into the expired state across all job names.",
		},
	)
	fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jobq",
			Subsystem: "job",
			Name:      "fetch_duration_seconds",
			Help:      "Observed duration of a single fetch attempt.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"},
	)
	handlerPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobq",
			Subsystem: "job",
			Name:      "handler_panics_total",
			Help:      "Number of subscriber handler invocations that panicked.",
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer. It is
// safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		jobsPublished, jobsSuppressed, jobsFetched, jobsCompleted,
		jobsCancelled, jobsExpired, fetchDuration, handlerPanics,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the
// DefaultGatherer. The caller is responsible for starting an HTTP server
// and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal/manager to record
// metrics. They no-op if Register hasn't been called.

func IncPublished(name string) {
	if regOK.Load() {
		jobsPublished.WithLabelValues(name).Inc()
	}
}

func IncSuppressed(name string) {
	if regOK.Load() {
		jobsSuppressed.WithLabelValues(name).Inc()
	}
}

func IncFetched(name string) {
	if regOK.Load() {
		jobsFetched.WithLabelValues(name).Inc()
	}
}

func IncCompleted() {
	if regOK.Load() {
		jobsCompleted.Inc()
	}
}

func IncCancelled() {
	if regOK.Load() {
		jobsCancelled.Inc()
	}
}

func IncExpired(count int) {
	if regOK.Load() && count > 0 {
		jobsExpired.Add(float64(count))
	}
}

func ObserveFetchDuration(name string, seconds float64) {
	if regOK.Load() {
		fetchDuration.WithLabelValues(name).Observe(seconds)
	}
}

func IncHandlerPanic(name string) {
	if regOK.Load() {
		handlerPanics.WithLabelValues(name).Inc()
	}
}
