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

	botStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botherd",
			Subsystem: "bot",
			Name:      "starts_total",
			Help:      "Number of worker processes launched.",
		}, []string{"bot_id"},
	)
	botStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botherd",
			Subsystem: "bot",
			Name:      "stops_total",
			Help:      "Number of worker stops (graceful or kill).",
		}, []string{"bot_id"},
	)
	botKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botherd",
			Subsystem: "bot",
			Name:      "kills_total",
			Help:      "Number of forced kills after a stop deadline expired.",
		}, []string{"bot_id"},
	)
	runningBots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "botherd",
			Subsystem: "bot",
			Name:      "running",
			Help:      "Current number of live worker processes.",
		},
	)
	connectedWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "botherd",
			Subsystem: "control",
			Name:      "connected_workers",
			Help:      "Workers currently registered on the control channel.",
		},
	)
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botherd",
			Subsystem: "control",
			Name:      "messages_sent_total",
			Help:      "Control messages sent to workers, by kind.",
		}, []string{"kind"},
	)
	ackTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "botherd",
			Subsystem: "control",
			Name:      "ack_timeouts_total",
			Help:      "Sends that expired waiting for a transport ack.",
		},
	)
	registryConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "botherd",
			Subsystem: "control",
			Name:      "registry_conflicts_total",
			Help:      "Registrations rejected because the identity was taken.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		botStarts, botStops, botKills, runningBots,
		connectedWorkers, messagesSent, ackTimeouts, registryConflicts,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
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
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncBotStart(botID string) {
	if regOK.Load() {
		botStarts.WithLabelValues(botID).Inc()
	}
}

func IncBotStop(botID string) {
	if regOK.Load() {
		botStops.WithLabelValues(botID).Inc()
	}
}

func IncBotKill(botID string) {
	if regOK.Load() {
		botKills.WithLabelValues(botID).Inc()
	}
}

func SetRunningBots(n int) {
	if regOK.Load() {
		runningBots.Set(float64(n))
	}
}

func SetConnectedWorkers(n int) {
	if regOK.Load() {
		connectedWorkers.Set(float64(n))
	}
}

func IncMessageSent(kind string) {
	if regOK.Load() {
		messagesSent.WithLabelValues(kind).Inc()
	}
}

func IncAckTimeout() {
	if regOK.Load() {
		ackTimeouts.Inc()
	}
}

func IncRegistryConflict() {
	if regOK.Load() {
		registryConflicts.Inc()
	}
}
