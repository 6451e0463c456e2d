// Package metrics exposes Prometheus counters for HTTP traffic and the triage
// pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Triage metrics
	inboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_inbound_messages_total",
			Help: "Inbound channel messages by sender role",
		},
		[]string{"role"},
	)

	duplicateMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_duplicate_messages_total",
			Help: "Re-delivered inbound messages ignored as duplicates",
		},
	)

	stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_state_transitions_total",
			Help: "Conversation state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	escalationsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_escalations_raised_total",
			Help: "Escalation alerts raised by severity",
		},
		[]string{"severity"},
	)

	generatorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_generator_failures_total",
			Help: "Text-generation or transcription failures by operation",
		},
		[]string{"operation"},
	)

	generatorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "triage_generator_duration_seconds",
			Help:    "Text-generation call duration in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"operation"},
	)

	validations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_validations_total",
			Help: "Modification validations by recommendation",
		},
		[]string{"recommendation"},
	)

	dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_assessments_dispatched_total",
			Help: "Assessments sent to patients by authorization path",
		},
		[]string{"path"},
	)

	paymentsSettled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_payments_settled_total",
			Help: "Payment confirmations that settled a transaction",
		},
	)

	panicsRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_handler_panics_total",
			Help: "Panics recovered at a handler boundary",
		},
	)
)

// Handler returns the Prometheus scrape handler wrapped for echo.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

// Middleware records request counts and latency per route template.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			httpRequestsTotal.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// --- Triage metric helpers ---

// RecordInbound counts an inbound message from a patient or clinician.
func RecordInbound(role string) {
	inboundMessages.WithLabelValues(role).Inc()
}

// RecordDuplicate counts a re-delivered message that was ignored.
func RecordDuplicate() {
	duplicateMessages.Inc()
}

// RecordTransition counts a conversation state change.
func RecordTransition(from, to string) {
	if from == to {
		return
	}
	stateTransitions.WithLabelValues(from, to).Inc()
}

// RecordEscalation counts a raised alert.
func RecordEscalation(severity string) {
	escalationsRaised.WithLabelValues(severity).Inc()
}

// RecordGeneratorCall observes a generator call and counts failures.
func RecordGeneratorCall(operation string, duration time.Duration, err error) {
	generatorDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		generatorFailures.WithLabelValues(operation).Inc()
	}
}

// RecordValidation counts a validator run by its recommendation.
func RecordValidation(recommendation string) {
	validations.WithLabelValues(recommendation).Inc()
}

// RecordDispatch counts an assessment sent to a patient; path is "confirm" or "override".
func RecordDispatch(path string) {
	dispatches.WithLabelValues(path).Inc()
}

// RecordPaymentSettled counts a settled payment.
func RecordPaymentSettled() {
	paymentsSettled.Inc()
}

// RecordPanic counts a recovered panic.
func RecordPanic() {
	panicsRecovered.Inc()
}
