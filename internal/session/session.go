package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/avatar-gateway/internal/animator"
	"github.com/lexiqai/avatar-gateway/internal/avatar"
	"github.com/lexiqai/avatar-gateway/internal/config"
	"github.com/lexiqai/avatar-gateway/internal/llm"
	"github.com/lexiqai/avatar-gateway/internal/observability"
	"github.com/lexiqai/avatar-gateway/internal/pipeline"
)

const (
	writeWait     = 10 * time.Second
	outboundQueue = 64

	// ErrorReply is shown to the user when a generation fails
	ErrorReply = "Sorry, I encountered an error. Please try again."
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Avatar clients are served from arbitrary origins during development
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Message types exchanged over the avatar socket
const (
	TypeMessage = "message" // client: user text to answer
	TypeCancel  = "cancel"  // client: abandon the current response
	TypeChunk   = "chunk"   // server: newly streamed response text
	TypeFrame   = "frame"   // server: avatar frame to display
	TypeDone    = "done"    // server: response complete
	TypeError   = "error"   // server: request failed
)

// ClientMessage is a message received from the avatar client
type ClientMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ServerMessage is a message sent to the avatar client
type ServerMessage struct {
	Type       string            `json:"type"`
	Text       string            `json:"text,omitempty"`
	Expression avatar.Expression `json:"expression,omitempty"`
	Frame      *avatar.Frame     `json:"frame,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Session holds the state of one connected avatar client
type Session struct {
	conn     *websocket.Conn
	config   *config.Config
	streamer llm.Streamer
	analyzer *pipeline.Analyzer
	animator *animator.Animator

	// Outbound messages, drained by a single writer
	outbound chan ServerMessage

	// State management
	mu        sync.Mutex
	streaming bool
	cancelGen context.CancelFunc

	// Observability
	correlationID string
	metrics       *observability.SessionMetrics
	logger        zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewSession creates a session for an upgraded connection
func NewSession(conn *websocket.Conn, cfg *config.Config, streamer llm.Streamer, analyzer *pipeline.Analyzer) *Session {
	correlationID := observability.NewCorrelationID()
	logger := observability.WithCorrelationID(correlationID).
		With().
		Str("component", "session").
		Logger()

	metrics := observability.NewSessionMetrics(correlationID)
	metrics.RecordSessionStart()

	s := &Session{
		conn:          conn,
		config:        cfg,
		streamer:      streamer,
		analyzer:      analyzer,
		outbound:      make(chan ServerMessage, outboundQueue),
		correlationID: correlationID,
		metrics:       metrics,
		logger:        logger,
		done:          make(chan struct{}),
	}

	opts := animator.OptionsFromConfig(cfg)
	opts.Logger = &logger
	s.animator = animator.New(opts, s.sendFrame)

	return s
}

// Handler is the entry point for avatar WebSocket connections
func Handler(cfg *config.Config, streamer llm.Streamer, analyzer *pipeline.Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Upgrade writes its own error response on failure
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger := observability.Component("session")
			logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}
		defer conn.Close()

		session := NewSession(conn, cfg, streamer, analyzer)
		session.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Avatar session opened")

		session.Run()
	}
}

// Run serves the connection until the client goes away
func (s *Session) Run() {
	defer s.close()

	go s.writeLoop()
	s.readLoop()
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.cancelGeneration()
		s.animator.Close()
		close(s.done)
		s.metrics.RecordSessionEnd()
		s.logger.Info().Msg("Avatar session closed")
	})
}

// readLoop handles all incoming WebSocket messages
func (s *Session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Error().Err(err).Msg("Failed to parse client message")
			s.metrics.RecordError("bad_message", "session")
			s.send(ServerMessage{Type: TypeError, Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case TypeMessage:
			s.handleUserMessage(msg.Text)

		case TypeCancel:
			s.cancelGeneration()

		default:
			s.logger.Warn().Str("type", msg.Type).Msg("Unknown client message type")
		}
	}
}

// handleUserMessage starts a streamed response to text. Only one response
// runs at a time; messages arriving meanwhile are rejected.
func (s *Session) handleUserMessage(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		s.send(ServerMessage{Type: TypeError, Error: "a response is already in progress"})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.config.BackendTimeoutDuration())
	s.streaming = true
	s.cancelGen = cancel
	s.mu.Unlock()

	// The avatar mirrors the mood of what the user said
	expr := s.analyzer.Classify(text)

	s.logger.Info().
		Str("expression", string(expr)).
		Int("message_chars", len(text)).
		Msg("Generating response")

	go s.stream(ctx, text, expr)
}

// stream relays backend chunks to the client and drives the animator from
// the accumulated response text
func (s *Session) stream(ctx context.Context, prompt string, expr avatar.Expression) {
	defer s.finishGeneration()

	s.metrics.RecordRequestStart()
	chunks, err := s.streamer.Generate(ctx, prompt)
	if err != nil {
		s.fail(err, "backend_connect")
		return
	}

	var full strings.Builder
	for chunk := range chunks {
		if ctx.Err() != nil {
			break
		}
		if chunk.Err != nil {
			s.fail(chunk.Err, "backend_stream")
			return
		}
		if chunk.Text != "" {
			s.metrics.RecordChunk()
			full.WriteString(chunk.Text)
			s.send(ServerMessage{Type: TypeChunk, Text: chunk.Text})
			s.animator.Feed(full.String(), expr)
		}
		if chunk.Done {
			break
		}
	}

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		s.animator.Stop()
		s.logger.Info().Msg("Response cancelled")
		return
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		s.fail(ctx.Err(), "backend_timeout")
		return
	}

	s.animator.Stop()
	s.send(ServerMessage{Type: TypeDone, Text: full.String(), Expression: expr})
	s.logger.Info().Int("response_chars", full.Len()).Msg("Response complete")
}

func (s *Session) fail(err error, errorType string) {
	s.logger.Error().Err(err).Str("error_type", errorType).Msg("Response failed")
	s.metrics.RecordError(errorType, "session")
	s.animator.Stop()
	s.send(ServerMessage{Type: TypeError, Text: ErrorReply, Expression: avatar.ExpressionHappy, Error: err.Error()})
}

func (s *Session) cancelGeneration() {
	s.mu.Lock()
	if s.cancelGen != nil {
		s.cancelGen()
	}
	s.mu.Unlock()
}

func (s *Session) finishGeneration() {
	s.mu.Lock()
	if s.cancelGen != nil {
		s.cancelGen()
		s.cancelGen = nil
	}
	s.streaming = false
	s.mu.Unlock()
}

// send queues msg, waiting for room unless the session has closed
func (s *Session) send(msg ServerMessage) {
	select {
	case s.outbound <- msg:
	case <-s.done:
	}
}

// sendFrame queues a frame without blocking the animator; frames are
// superseded every tick so a full queue drops them
func (s *Session) sendFrame(f avatar.Frame) {
	select {
	case s.outbound <- ServerMessage{Type: TypeFrame, Frame: &f}:
	case <-s.done:
	default:
		observability.RecordFrameDropped()
	}
}

// writeLoop is the only writer on the connection
func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.outbound:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to write to client")
				s.metrics.RecordError("write", "session")
				// Unblock the reader so the session tears down
				s.conn.Close()
				return
			}
		}
	}
}
