// Package metrics exposes prometheus instruments for the coordination core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	switchResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usercoord_switch_results_total",
		Help: "Switch requests by final status.",
	}, []string{"status"})

	switchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "usercoord_switch_in_flight",
		Help: "1 while a switch transaction is tracked, 0 otherwise.",
	})

	coordinatorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "usercoord_coordinator_request_duration_seconds",
		Help:    "Round-trip latency of coordinator requests.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"op", "outcome"}) // outcome: ok, error, timeout

	userCreatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usercoord_user_creates_total",
		Help: "User creations by status.",
	}, []string{"status"})

	userRemovalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usercoord_user_removals_total",
		Help: "User removals by status.",
	}, []string{"status"})

	associationCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usercoord_association_calls_total",
		Help: "Identification association calls by operation and status.",
	}, []string{"op", "status"})

	eventsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usercoord_lifecycle_events_total",
		Help: "Lifecycle events dispatched by type.",
	}, []string{"type"})

	listenerFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usercoord_listener_failures_total",
		Help: "Listener delivery failures by kind (local, remote).",
	}, []string{"kind"})

	remoteListeners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "usercoord_remote_listeners",
		Help: "Registered cross-process lifecycle listeners.",
	})

	backgroundUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "usercoord_background_restart_users",
		Help: "Users in the background restart registry.",
	})

	backgroundStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usercoord_background_starts_total",
		Help: "Background user start attempts by outcome.",
	}, []string{"outcome"})

	configReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usercoord_config_reloads_total",
		Help: "Config file reloads by outcome.",
	}, []string{"outcome"})
)

// RecordSwitchResult counts a resolved switch request.
func RecordSwitchResult(status string) {
	switchResultsTotal.WithLabelValues(status).Inc()
}

// SetSwitchInFlight records whether a switch transaction is tracked.
func SetSwitchInFlight(inFlight bool) {
	if inFlight {
		switchInFlight.Set(1)
		return
	}
	switchInFlight.Set(0)
}

// ObserveCoordinator records a coordinator round trip.
func ObserveCoordinator(op, outcome string, d time.Duration) {
	if outcome == "" {
		outcome = "ok"
	}
	coordinatorDuration.WithLabelValues(op, outcome).Observe(d.Seconds())
}

// RecordCreate counts a user creation outcome.
func RecordCreate(status string) {
	userCreatesTotal.WithLabelValues(status).Inc()
}

// RecordRemove counts a user removal outcome.
func RecordRemove(status string) {
	userRemovalsTotal.WithLabelValues(status).Inc()
}

// RecordAssociation counts an association get or set.
func RecordAssociation(op, status string) {
	associationCallsTotal.WithLabelValues(op, status).Inc()
}

// RecordEvent counts a dispatched lifecycle event.
func RecordEvent(eventType string) {
	eventsDispatchedTotal.WithLabelValues(eventType).Inc()
}

// RecordListenerFailure counts a failed delivery.
func RecordListenerFailure(kind string) {
	listenerFailuresTotal.WithLabelValues(kind).Inc()
}

// SetRemoteListeners records the number of remote listeners.
func SetRemoteListeners(n int) {
	remoteListeners.Set(float64(n))
}

// SetBackgroundUsers records the registry size.
func SetBackgroundUsers(n int) {
	backgroundUsers.Set(float64(n))
}

// RecordBackgroundStart counts a background start attempt.
func RecordBackgroundStart(outcome string) {
	backgroundStartsTotal.WithLabelValues(outcome).Inc()
}

// RecordConfigReload counts a config file reload.
func RecordConfigReload(outcome string) {
	configReloadsTotal.WithLabelValues(outcome).Inc()
}
