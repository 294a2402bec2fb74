package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lexiqai/avatar-gateway/internal/avatar"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "avatar_gateway_active_sessions",
		Help: "Number of open avatar sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avatar_gateway_sessions_total",
		Help: "Total number of avatar sessions opened",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "avatar_gateway_session_duration_seconds",
		Help:    "Duration of avatar sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Pipeline metrics
	sequencesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avatar_gateway_sequences_total",
		Help: "Lip-sync sequences generated",
	}, []string{"source"})

	sequencePhonemes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "avatar_gateway_sequence_phonemes",
		Help:    "Phonemes per generated lip-sync sequence",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
	})

	expressionsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avatar_gateway_expressions_total",
		Help: "Expressions detected, by expression",
	}, []string{"expression"})

	// Animation metrics
	framesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avatar_gateway_frames_total",
		Help: "Avatar frames emitted, by mouth shape",
	}, []string{"mouth_shape"})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avatar_gateway_frames_dropped_total",
		Help: "Frames dropped because the client queue was full",
	})

	assetFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avatar_gateway_asset_fallbacks_total",
		Help: "Frames resolved through the asset fallback chain",
	})

	blinks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avatar_gateway_blinks_total",
		Help: "Blinks started by the animator",
	})

	// Backend metrics
	backendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avatar_gateway_backend_requests_total",
		Help: "Total number of generation requests to the text backend",
	}, []string{"status"})

	backendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "avatar_gateway_backend_first_chunk_seconds",
		Help:    "Time from request to first streamed chunk",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avatar_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "avatar_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avatar_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// SessionMetrics tracks metrics for a single avatar session
type SessionMetrics struct {
	sessionID    string
	startTime    time.Time
	requestStart time.Time
	firstChunk   bool
	mu           sync.Mutex
}

// NewSessionMetrics creates a metrics tracker for a session
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *SessionMetrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session
func (m *SessionMetrics) RecordSessionEnd() {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordRequestStart marks the start of a backend generation request
func (m *SessionMetrics) RecordRequestStart() {
	m.mu.Lock()
	m.requestStart = time.Now()
	m.firstChunk = false
	m.mu.Unlock()
}

// RecordChunk observes time-to-first-chunk once per request
func (m *SessionMetrics) RecordChunk() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.firstChunk || m.requestStart.IsZero() {
		return
	}
	m.firstChunk = true
	backendLatency.Observe(time.Since(m.requestStart).Seconds())
}

// RecordError records an error for this session
func (m *SessionMetrics) RecordError(errorType, component string) {
	RecordError(errorType, component)
}

// RecordBackendRequest counts a backend request outcome
func RecordBackendRequest(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	backendRequests.WithLabelValues(status).Inc()
}

// RecordSequence records a generated lip-sync sequence
func RecordSequence(source string, phonemes int, expr avatar.Expression) {
	sequencesGenerated.WithLabelValues(source).Inc()
	sequencePhonemes.Observe(float64(phonemes))
	expressionsDetected.WithLabelValues(string(expr)).Inc()
}

// RecordFrame records an emitted frame
func RecordFrame(shape avatar.MouthShape) {
	framesEmitted.WithLabelValues(string(shape)).Inc()
}

// RecordFrameDropped records a frame that could not be delivered
func RecordFrameDropped() {
	framesDropped.Inc()
}

// RecordAssetFallback records a frame that needed the fallback chain
func RecordAssetFallback() {
	assetFallbacks.Inc()
}

// RecordBlink records a blink
func RecordBlink() {
	blinks.Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
