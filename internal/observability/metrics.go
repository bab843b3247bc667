package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce            sync.Once
	httpRequestsTotal       *prometheus.CounterVec
	httpLatencySeconds      *prometheus.HistogramVec
	httpErrorsTotal         *prometheus.CounterVec
	gradingOutcomesTotal    *prometheus.CounterVec
	composeDurationSeconds  prometheus.Histogram
	streakTransitionsTotal  *prometheus.CounterVec
	streakConflictsTotal    prometheus.Counter
	notificationsPublished  *prometheus.CounterVec
	notificationFailures    *prometheus.CounterVec
	placementLevelsAssigned *prometheus.CounterVec
	sseClientsActive        prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the grading API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grading_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_http_errors_total",
			Help: "Total number of error responses.",
		}, []string{"method", "route", "status"})

		gradingOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_outcomes_total",
			Help: "Graded items by kind (assignment, quiz, placement) and result.",
		}, []string{"kind", "result"})

		composeDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grading_compose_duration_seconds",
			Help:    "Time spent grading and composing a submission score.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		})

		streakTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streak_transitions_total",
			Help: "Streak updates by outcome.",
		}, []string{"outcome"})

		streakConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streak_conflicts_total",
			Help: "Streak writes retried because of a concurrent update.",
		})

		notificationsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notifications persisted and fanned out, by type.",
		}, []string{"type"})

		notificationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Notification side effects that failed, by stage.",
		}, []string{"stage"})

		placementLevelsAssigned = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "placement_levels_assigned_total",
			Help: "Placement results by assigned level.",
		}, []string{"level"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_sse_clients_active",
			Help: "Open notification event streams.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			gradingOutcomesTotal,
			composeDurationSeconds,
			streakTransitionsTotal,
			streakConflictsTotal,
			notificationsPublished,
			notificationFailures,
			placementLevelsAssigned,
			sseClientsActive,
		)
	})
}

// MetricsHandler serves the grading collectors for Prometheus scrapes.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.Handler())
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// GradingOutcomes counts graded submissions, quizzes and placement tests.
func GradingOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingOutcomesTotal
}

// ComposeDuration observes grading plus composition time.
func ComposeDuration() prometheus.Histogram {
	RegisterMetrics()
	return composeDurationSeconds
}

// StreakTransitions counts streak updates by outcome.
func StreakTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return streakTransitionsTotal
}

// StreakConflicts counts optimistic-lock retries.
func StreakConflicts() prometheus.Counter {
	RegisterMetrics()
	return streakConflictsTotal
}

// NotificationsPublishedTotal counts delivered notifications by type.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublished
}

// NotificationFailures counts failed notification side effects.
func NotificationFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationFailures
}

// PlacementLevels counts placement results by level.
func PlacementLevels() *prometheus.CounterVec {
	RegisterMetrics()
	return placementLevelsAssigned
}

// SSEClientsActive tracks open notification streams.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}

// PassLabel renders a pass/fail outcome label.
func PassLabel(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}
