// Package server exposes the avatar pipeline over HTTP: a streaming chat
// proxy, one-shot lip-sync analysis, asset resolution and the avatar
// WebSocket.
package server

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/avatar-gateway/internal/asset"
	"github.com/lexiqai/avatar-gateway/internal/avatar"
	"github.com/lexiqai/avatar-gateway/internal/config"
	"github.com/lexiqai/avatar-gateway/internal/llm"
	"github.com/lexiqai/avatar-gateway/internal/observability"
	"github.com/lexiqai/avatar-gateway/internal/pipeline"
	"github.com/lexiqai/avatar-gateway/internal/session"
)

// BackendFailure is the error body returned when the backend cannot be reached
const BackendFailure = "Failed to get response from Ollama"

// Server holds the dependencies of the HTTP handlers
type Server struct {
	config   *config.Config
	streamer llm.Streamer
	analyzer *pipeline.Analyzer
	resolver *asset.Resolver
	logger   zerolog.Logger
}

// New creates a server
func New(cfg *config.Config, streamer llm.Streamer, analyzer *pipeline.Analyzer) *Server {
	return &Server{
		config:   cfg,
		streamer: streamer,
		analyzer: analyzer,
		resolver: asset.NewResolver(cfg.AssetBasePath),
		logger:   observability.Component("http"),
	}
}

// Routes builds the HTTP handler. checks feed the readiness endpoint.
func (s *Server) Routes(checks ...observability.DependencyCheck) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/lipsync", s.handleLipSync)
	mux.HandleFunc("/api/asset", s.handleAsset)
	mux.HandleFunc("/ws/avatar", session.Handler(s.config, s.streamer, s.analyzer))

	if s.config.AssetDir != "" {
		prefix := s.resolver.Base + "/"
		mux.Handle(prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(s.config.AssetDir))))
	}

	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks...))

	if s.config.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	return mux
}

type chatRequest struct {
	Message string `json:"message"`
}

// handleChat streams backend text for a message as chunked text/plain
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	correlationID := r.Header.Get("X-Correlation-ID")
	if correlationID == "" {
		correlationID = observability.NewCorrelationID()
	}
	logger := s.logger.With().Str("correlation_id", correlationID).Logger()

	ctx := r.Context()
	chunks, err := s.streamer.Generate(ctx, req.Message)
	if err != nil {
		logger.Error().Err(err).Msg("Backend request failed")
		observability.RecordError("backend_connect", "http")
		writeError(w, http.StatusInternalServerError, BackendFailure)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for chunk := range chunks {
		if chunk.Err != nil {
			// Headers are gone; the client sees a truncated body
			logger.Error().Err(chunk.Err).Msg("Backend stream failed")
			observability.RecordError("backend_stream", "http")
			return
		}
		if chunk.Text == "" {
			continue
		}
		if _, err := w.Write([]byte(chunk.Text)); err != nil {
			logger.Debug().Err(err).Msg("Client went away")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

type lipSyncRequest struct {
	Text       string   `json:"text"`
	DurationMs *float64 `json:"duration_ms,omitempty"`
}

// handleLipSync returns the full analysis of a text: expression, duration
// and timed sequence. duration_ms overrides the estimate.
func (s *Server) handleLipSync(w http.ResponseWriter, r *http.Request) {
	var req lipSyncRequest

	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req.Text = q.Get("text")
		if raw := q.Get("duration_ms"); raw != "" {
			d, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "duration_ms must be a number")
				return
			}
			req.DurationMs = &d
		}

	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if req.DurationMs != nil && !finite(*req.DurationMs) {
		writeError(w, http.StatusBadRequest, "duration_ms must be a number")
		return
	}

	var analysis pipeline.Analysis
	if req.DurationMs != nil {
		analysis = s.analyzer.AnalyzeFor(req.Text, *req.DurationMs)
	} else {
		analysis = s.analyzer.Analyze(req.Text)
	}
	observability.RecordSequence("http", len(analysis.Sequence), analysis.Expression)

	writeJSON(w, http.StatusOK, analysis)
}

// AssetResponse is the body of /api/asset. LastResort is the image to show
// when loading the resolved one fails.
type AssetResponse struct {
	Path       string `json:"path"`
	Fallback   string `json:"fallback"`
	LastResort string `json:"lastResort"`
	Valid      bool   `json:"valid"`
}

// handleAsset resolves an expression, eye state and mouth shape to image paths
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	expr, eye, mouth, err := asset.ParseState(q.Get("expression"), q.Get("eye"), q.Get("mouth"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fallback, usedFallback := s.resolver.Resolve(avatar.Frame{Expression: expr, EyeState: eye, MouthShape: mouth})
	if usedFallback {
		observability.RecordAssetFallback()
	}

	writeJSON(w, http.StatusOK, AssetResponse{
		Path:       s.resolver.Path(expr, eye, mouth),
		Fallback:   fallback,
		LastResort: s.resolver.LastResort(),
		Valid:      asset.IsValid(expr, eye, mouth),
	})
}

// finite rejects the Inf and NaN that strconv.ParseFloat accepts
func finite(d float64) bool {
	return !math.IsNaN(d) && !math.IsInf(d, 0)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
