// Package metrics exposes prometheus collectors for the wrapped service.
// Helpers are no-ops until Register succeeds.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "svcwrap"

var (
	regOK atomic.Bool

	spawns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "spawns_total",
			Help:      "Number of child spawn attempts by result.",
		}, []string{"service", "result"},
	)
	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "exits_total",
			Help:      "Number of child exits by outcome kind.",
		}, []string{"service", "outcome"},
	)
	restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "restarts_total",
			Help:      "Number of restarts scheduled by the restart policy.",
		}, []string{"service"},
	)
	forcedKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "forced_kills_total",
			Help:      "Number of times the stop deadline forced termination.",
		}, []string{"service"},
	)
	restartDelay = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "restart_delay_seconds",
			Help:      "Backoff delay chosen before each restart.",
			Buckets:   []float64{0, 0.5, 1, 2, 4, 8, 16, 32, 64, 128},
		}, []string{"service"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "state_transitions_total",
			Help:      "Number of service state transitions.",
		}, []string{"service", "from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "current_state",
			Help:      "1 for the service's current state, 0 otherwise.",
		}, []string{"service", "state"},
	)
)

// Register registers all collectors with r. Repeated calls are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{spawns, exits, restarts, forcedKills, restartDelay, stateTransitions, currentState}
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

// Handler serves the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func IncSpawn(service string, ok bool) {
	if regOK.Load() {
		result := "ok"
		if !ok {
			result = "failed"
		}
		spawns.WithLabelValues(service, result).Inc()
	}
}

func IncExit(service, outcome string) {
	if regOK.Load() {
		exits.WithLabelValues(service, outcome).Inc()
	}
}

func ObserveRestart(service string, delaySeconds float64) {
	if regOK.Load() {
		restarts.WithLabelValues(service).Inc()
		restartDelay.WithLabelValues(service).Observe(delaySeconds)
	}
}

func IncForcedKill(service string) {
	if regOK.Load() {
		forcedKills.WithLabelValues(service).Inc()
	}
}

// RecordTransition counts the edge and moves the current-state gauge.
func RecordTransition(service, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(service, from, to).Inc()
		currentState.WithLabelValues(service, from).Set(0)
		currentState.WithLabelValues(service, to).Set(1)
	}
}
