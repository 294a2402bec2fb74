package observability

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	globalLogger zerolog.Logger
	loggerOnce   sync.Once
	loggerMu     sync.RWMutex
)

// InitLogger initializes the global structured logger on stdout.
// Only the first call takes effect.
func InitLogger(level string, pretty bool) {
	loggerOnce.Do(func() {
		setLogger(os.Stdout, level, pretty)
	})
}

// SetLoggerOutput replaces the global logger, writing to w. Used by tests
// and by commands that log to stderr.
func SetLoggerOutput(w io.Writer, level string, pretty bool) {
	loggerOnce.Do(func() {})
	setLogger(w, level, pretty)
}

func setLogger(w io.Writer, level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).With().Timestamp().Str("service", ServiceName).Logger()

	loggerMu.Lock()
	globalLogger = logger
	loggerMu.Unlock()

	log.Logger = logger
}

// GetLogger returns the global logger, initializing it with defaults if needed
func GetLogger() zerolog.Logger {
	InitLogger("info", false)

	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return globalLogger
}

// Component returns a logger tagged with a component name
func Component(name string) zerolog.Logger {
	return GetLogger().With().Str("component", name).Logger()
}

// WithCorrelationID creates a logger carrying a correlation ID, generating
// one when empty
func WithCorrelationID(correlationID string) zerolog.Logger {
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}
	return GetLogger().With().Str("correlation_id", correlationID).Logger()
}

// NewCorrelationID generates a new correlation ID
func NewCorrelationID() string {
	return uuid.New().String()
}
