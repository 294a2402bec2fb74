package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the avatar gateway service
type Config struct {
	// Server configuration
	Port     string `envconfig:"PORT" default:"8080"`
	GRPCPort string `envconfig:"GRPC_PORT" default:"9090"` // Empty disables the gRPC listener

	// Text generation backend (Ollama)
	OllamaURL      string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	OllamaModel    string `envconfig:"OLLAMA_MODEL" default:"llama3.2:1b"`
	BackendTimeout int    `envconfig:"BACKEND_TIMEOUT" default:"120"` // seconds, whole streamed response

	// Assets
	AssetBasePath string `envconfig:"ASSET_BASE_PATH" default:"/assets"` // URL prefix in resolved paths
	AssetDir      string `envconfig:"ASSET_DIR" default:""`              // Serve and verify images from here when set

	// Expression lexicon override (YAML); empty uses the built-in list
	LexiconPath string `envconfig:"LEXICON_PATH" default:""`

	// Animation
	TickIntervalMs   int     `envconfig:"TICK_INTERVAL_MS" default:"50"`    // Sampling cadence
	BlinkProbability float64 `envconfig:"BLINK_PROBABILITY" default:"0.15"` // Per-tick blink chance
	BlinkDurationMs  int     `envconfig:"BLINK_DURATION_MS" default:"80"`   // How long eyes stay closed
	ResyncIntervalMs int     `envconfig:"RESYNC_INTERVAL_MS" default:"200"` // Min gap between stream resyncs
	ResyncMinChars   int     `envconfig:"RESYNC_MIN_CHARS" default:"10"`    // Always resync below this length

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Startup backend probe attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Probe backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks value ranges that envconfig cannot express
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.OllamaURL == "" {
		return fmt.Errorf("OLLAMA_URL is required")
	}
	if c.TickIntervalMs <= 0 {
		return fmt.Errorf("TICK_INTERVAL_MS must be positive, got %d", c.TickIntervalMs)
	}
	if c.BlinkProbability < 0 || c.BlinkProbability > 1 {
		return fmt.Errorf("BLINK_PROBABILITY must be within [0, 1], got %v", c.BlinkProbability)
	}
	if c.BlinkDurationMs < 0 || c.ResyncIntervalMs < 0 || c.ResyncMinChars < 0 {
		return fmt.Errorf("animation timings must not be negative")
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive, got %d", c.BackendTimeout)
	}
	return nil
}

// TickInterval is the animator sampling cadence
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// BlinkDuration is how long a blink keeps the eyes closed
func (c *Config) BlinkDuration() time.Duration {
	return time.Duration(c.BlinkDurationMs) * time.Millisecond
}

// ResyncInterval is the minimum gap between stream-driven restarts
func (c *Config) ResyncInterval() time.Duration {
	return time.Duration(c.ResyncIntervalMs) * time.Millisecond
}

// BackendTimeoutDuration bounds one streamed generation
func (c *Config) BackendTimeoutDuration() time.Duration {
	return time.Duration(c.BackendTimeout) * time.Second
}
