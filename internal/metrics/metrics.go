// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scheduling metrics
	scheduleEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schedy_schedule_evaluations_total",
		Help: "Schedule evaluations per room by outcome",
	}, []string{"room", "outcome"}) // outcome=value|no_match|abort|error

	reschedulesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schedy_reschedules_total",
		Help: "Re-schedule triggers per room by reason",
	}, []string{"room", "reason"}) // reason=timer|event|api|startup|reload

	overlaysActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "schedy_overlays_active",
		Help: "Whether a manual overlay is active per room (1) or not (0)",
	}, []string{"room"})

	// Actor metrics
	actorSendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schedy_actor_sends_total",
		Help: "Values sent to actors by actor type and outcome",
	}, []string{"type", "outcome"}) // outcome=success|failure

	// Home Assistant client metrics
	serviceCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schedy_service_calls_total",
		Help: "Home Assistant service calls by domain and outcome",
	}, []string{"domain", "outcome"}) // outcome=success|failure|rate_limited

	serviceCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedy_service_call_duration_seconds",
		Help:    "Duration of Home Assistant service calls",
		Buckets: prometheus.DefBuckets,
	})

	wsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "schedy_ws_connected",
		Help: "Whether the Home Assistant event stream is connected (1) or not (0)",
	})

	wsReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schedy_ws_reconnects_total",
		Help: "Total number of event stream reconnect attempts",
	})

	eventsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schedy_events_received_total",
		Help: "Total number of state_changed events received",
	})

	// Operational metrics
	configValidationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "schedy_config_validation_errors_total",
		Help: "Total number of configuration validation errors",
	})

	storeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schedy_store_errors_total",
		Help: "Persistence errors by operation",
	}, []string{"op"}) // op=get|put|delete

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "schedy_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schedy_circuit_breaker_trips_total",
		Help: "Circuit breaker trips by cause",
	}, []string{"name", "cause"})
)

func IncScheduleEvaluation(room, outcome string) {
	scheduleEvaluations.WithLabelValues(room, outcome).Inc()
}

func IncReschedule(room, reason string) {
	reschedulesTotal.WithLabelValues(room, reason).Inc()
}

func SetOverlayActive(room string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	overlaysActive.WithLabelValues(room).Set(v)
}

func IncActorSend(actorType, outcome string) {
	actorSendsTotal.WithLabelValues(actorType, outcome).Inc()
}

func IncServiceCall(domain, outcome string) {
	serviceCallsTotal.WithLabelValues(domain, outcome).Inc()
}

func ObserveServiceCallDuration(seconds float64) {
	serviceCallDuration.Observe(seconds)
}

func SetWSConnected(connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	wsConnected.Set(v)
}

func IncWSReconnect()      { wsReconnectsTotal.Inc() }
func IncEventReceived()    { eventsReceivedTotal.Inc() }
func IncConfigValidation() { configValidationErrors.Inc() }

func IncStoreError(op string) { storeErrorsTotal.WithLabelValues(op).Inc() }

// SetCircuitBreakerState records the breaker state as a numeric gauge.
func SetCircuitBreakerState(name, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	circuitBreakerState.WithLabelValues(name).Set(v)
}

// RecordCircuitBreakerTrip counts a breaker trip with its cause.
func RecordCircuitBreakerTrip(name, cause string) {
	circuitBreakerTrips.WithLabelValues(name, cause).Inc()
}
