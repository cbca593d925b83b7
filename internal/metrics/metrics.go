// Package metrics exposes the engine's Prometheus collectors: job fires,
// conflict-policy outcomes, instance durations, and queue depth. Wired into
// every pcron daemon the way the teacher wires internal/metrics into every
// process-supervision daemon it builds.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regOK atomic.Bool

	jobFires = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pcron",
			Subsystem: "job",
			Name:      "fires_total",
			Help:      "Number of times a job's schedule evaluator produced a due fire.",
		}, []string{"job_id"},
	)
	conflictOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pcron",
			Subsystem: "job",
			Name:      "conflict_outcomes_total",
			Help:      "Queue admission outcomes per job and conflict policy.",
		}, []string{"job_id", "policy", "outcome"},
	)
	instanceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pcron",
			Subsystem: "instance",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a job instance from running to ended.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job_id"},
	)
	instanceExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pcron",
			Subsystem: "instance",
			Name:      "exits_total",
			Help:      "Number of instances that ended, by outcome.",
		}, []string{"job_id", "outcome"},
	)
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pcron",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of instances waiting behind the running one in a queue.",
		}, []string{"queue"},
	)
)

// Register registers all collectors with r. Safe to call multiple times.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{jobFires, conflictOutcomes, instanceDuration, instanceExits, queueDepth}
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

// Handler serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

func IncJobFire(jobID string) {
	if regOK.Load() {
		jobFires.WithLabelValues(jobID).Inc()
	}
}

func IncConflictOutcome(jobID, policy, outcome string) {
	if regOK.Load() {
		conflictOutcomes.WithLabelValues(jobID, policy, outcome).Inc()
	}
}

func ObserveInstanceDuration(jobID string, seconds float64) {
	if regOK.Load() {
		instanceDuration.WithLabelValues(jobID).Observe(seconds)
	}
}

func IncInstanceExit(jobID, outcome string) {
	if regOK.Load() {
		instanceExits.WithLabelValues(jobID, outcome).Inc()
	}
}

func SetQueueDepth(queue string, depth int) {
	if regOK.Load() {
		queueDepth.WithLabelValues(queue).Set(float64(depth))
	}
}
