// Package metrics exposes Prometheus collectors for the pose-feedback relay.
//
// Every Record method is safe on a nil *Metrics, so callers that run without
// metrics need no guards.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-go/posecoach/internal/history"
	"github.com/vango-go/posecoach/pkg/game"
)

const DefaultNamespace = "posecoach"

type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Live sessions
	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	RejectedFrames  prometheus.Counter

	// Game turns
	TurnsTotal        *prometheus.CounterVec
	AchievementsTotal *prometheus.CounterVec
	LevelUpsTotal     prometheus.Counter

	// Feedback generation
	FeedbackTotal    *prometheus.CounterVec
	FeedbackDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with all collectors registered on a private
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds; websocket routes measure the whole session",
			Buckets:   []float64{0.005, 0.05, 0.25, 1, 5, 30, 300, 3600},
		},
		[]string{"method", "route"},
	)

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions_active",
			Help:      "Number of open pose-feedback sessions",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_sessions_total",
			Help:      "Total number of finished pose-feedback sessions",
		},
		[]string{"end_reason"},
	)

	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_session_duration_seconds",
			Help:      "Pose-feedback session duration in seconds",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		},
	)

	rejectedFrames := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_frames_total",
			Help:      "Inbound frames rejected as malformed or invalid",
		},
	)

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Scored pose samples by accuracy rating",
		},
		[]string{"rating"},
	)

	achievementsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "achievements_unlocked_total",
			Help:      "Achievements unlocked across all sessions",
		},
		[]string{"achievement"},
	)

	levelUpsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_ups_total",
			Help:      "Levels gained across all sessions",
		},
	)

	feedbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_requests_total",
			Help:      "Feedback generation attempts by outcome",
		},
		[]string{"provider", "outcome"},
	)

	feedbackDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feedback_duration_seconds",
			Help:      "Feedback generation latency in seconds, retries included",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		rejectedFrames,
		turnsTotal,
		achievementsTotal,
		levelUpsTotal,
		feedbackTotal,
		feedbackDuration,
	)

	return &Metrics{
		registry:          registry,
		RequestsTotal:     requestsTotal,
		RequestDuration:   requestDuration,
		SessionsActive:    sessionsActive,
		SessionsTotal:     sessionsTotal,
		SessionDuration:   sessionDuration,
		RejectedFrames:    rejectedFrames,
		TurnsTotal:        turnsTotal,
		AchievementsTotal: achievementsTotal,
		LevelUpsTotal:     levelUpsTotal,
		FeedbackTotal:     feedbackTotal,
		FeedbackDuration:  feedbackDuration,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest records a completed HTTP request. route should be the matched
// route pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordSessionStart records a new pose-feedback session starting.
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a finished session from its summary.
func (m *Metrics) RecordSessionEnd(sum history.Summary) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	reason := sum.EndReason
	if reason == "" {
		reason = "unknown"
	}
	m.SessionsTotal.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(sum.Duration().Seconds())
	if sum.RejectedFrames > 0 {
		m.RejectedFrames.Add(float64(sum.RejectedFrames))
	}
}

// RecordTurn records the outcome of one scored sample.
func (m *Metrics) RecordTurn(turn game.TurnResult) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(turn.Rating).Inc()
	for _, a := range turn.NewAchievements {
		m.AchievementsTotal.WithLabelValues(a).Inc()
	}
	if turn.LevelsGained > 0 {
		m.LevelUpsTotal.Add(float64(turn.LevelsGained))
	}
}

// Feedback outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

// RecordFeedback records one feedback generation attempt.
func (m *Metrics) RecordFeedback(provider string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		outcome = OutcomeCanceled
	default:
		outcome = OutcomeError
	}
	m.FeedbackTotal.WithLabelValues(provider, outcome).Inc()
	m.FeedbackDuration.WithLabelValues(provider).Observe(duration.Seconds())
}
