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

	serviceActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "svcmon",
			Subsystem: "service",
			Name:      "actions_total",
			Help:      "Number of action-log entries by action label.",
		}, []string{"action"},
	)
	commandFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "svcmon",
			Subsystem: "systemctl",
			Name:      "command_failures_total",
			Help:      "Number of systemctl control commands that did not succeed.",
		}, []string{"verb"},
	)
	queueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "svcmon",
			Subsystem: "retry_queue",
			Name:      "size",
			Help:      "Current number of entries in the failed services queue.",
		},
	)
	queueRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "svcmon",
			Subsystem: "retry_queue",
			Name:      "rejections_total",
			Help:      "Number of enqueue attempts rejected because the queue was full.",
		},
	)
	services = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "svcmon",
			Name:      "services",
			Help:      "Number of known services per status.",
		}, []string{"status"},
	)
	monitorCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "svcmon",
			Subsystem: "monitor",
			Name:      "cycles_total",
			Help:      "Number of completed monitor cycles.",
		},
	)
	historyErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "svcmon",
			Subsystem: "history",
			Name:      "send_errors_total",
			Help:      "Number of history events that at least one sink failed to accept.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serviceActions, commandFailures, queueSize, queueRejections, services, monitorCycles, historyErrors}
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

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncAction(action string) {
	if regOK.Load() {
		serviceActions.WithLabelValues(action).Inc()
	}
}

func IncCommandFailure(verb string) {
	if regOK.Load() {
		commandFailures.WithLabelValues(verb).Inc()
	}
}

func SetQueueSize(n int) {
	if regOK.Load() {
		queueSize.Set(float64(n))
	}
}

func IncQueueRejection() {
	if regOK.Load() {
		queueRejections.Inc()
	}
}

// SetServiceCounts replaces the per-status gauge values. Statuses missing
// from counts are reported as zero when listed in all.
func SetServiceCounts(all []string, counts map[string]int) {
	if !regOK.Load() {
		return
	}
	for _, s := range all {
		services.WithLabelValues(s).Set(float64(counts[s]))
	}
}

func IncMonitorCycle() {
	if regOK.Load() {
		monitorCycles.Inc()
	}
}

func IncHistoryError() {
	if regOK.Load() {
		historyErrors.Inc()
	}
}
