package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/avatar-gateway/internal/config"
	"github.com/lexiqai/avatar-gateway/internal/observability"
	"github.com/lexiqai/avatar-gateway/internal/resilience"
)

const (
	// BreakerName labels the backend circuit breaker in metrics
	BreakerName = "ollama"

	maxLineBytes = 1 << 20
)

// OllamaClient implements Streamer against Ollama's /api/generate endpoint
type OllamaClient struct {
	baseURL     string
	model       string
	httpClient  *http.Client
	breaker     *resilience.CircuitBreaker
	retryConfig *resilience.RetryConfig
	logger      zerolog.Logger
}

// generateRequest is the /api/generate request body
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse is one NDJSON line of a streamed /api/generate response
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// NewOllamaClient creates a client using the backend and resilience settings in cfg
func NewOllamaClient(cfg *config.Config) *OllamaClient {
	breaker := resilience.NewCircuitBreaker(
		BreakerName,
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	breaker.OnStateChange(func(name string, from, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
		if to == resilience.StateOpen {
			observability.IncrementCircuitBreakerFailures(name)
		}
	})

	retryConfig := resilience.DefaultRetryConfig()
	if cfg.RetryMaxAttempts > 0 {
		retryConfig.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryInitialBackoff > 0 {
		retryConfig.InitialBackoff = time.Duration(cfg.RetryInitialBackoff) * time.Millisecond
	}

	return &OllamaClient{
		baseURL: strings.TrimRight(cfg.OllamaURL, "/"),
		model:   cfg.OllamaModel,
		// Timeout bounds the whole streamed body, not just the headers
		httpClient:  &http.Client{Timeout: cfg.BackendTimeoutDuration()},
		breaker:     breaker,
		retryConfig: retryConfig,
		logger:      observability.Component("llm"),
	}
}

// Breaker exposes the backend circuit breaker
func (c *OllamaClient) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// Generate posts prompt to the backend and streams the response text
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (<-chan Chunk, error) {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp *http.Response
	err = c.breaker.Call(func() error {
		return resilience.RetryContext(ctx, func() error {
			r, err := c.post(ctx, body)
			if err != nil {
				return err
			}
			resp = r
			return nil
		}, c.retryConfig, resilience.IsRetryableNetworkError)
	})
	if err != nil {
		observability.RecordBackendRequest(false)
		observability.RecordError("backend_connect", "llm")
		return nil, fmt.Errorf("ollama generate: %w", err)
	}

	chunks := make(chan Chunk, 16)
	go c.readStream(ctx, resp, chunks)
	return chunks, nil
}

func (c *OllamaClient) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		statusErr := fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 {
			return nil, resilience.NewRetryableError(statusErr)
		}
		return nil, statusErr
	}

	return resp, nil
}

// readStream decodes NDJSON lines into chunks. Lines that fail to parse are
// logged and skipped.
func (c *OllamaClient) readStream(ctx context.Context, resp *http.Response, chunks chan<- Chunk) {
	defer close(chunks)
	defer resp.Body.Close()

	send := func(ch Chunk) bool {
		select {
		case chunks <- ch:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var data generateResponse
		if err := json.Unmarshal(line, &data); err != nil {
			c.logger.Warn().Err(err).Str("line", string(line)).Msg("Skipping unparseable stream line")
			continue
		}

		if data.Error != "" {
			observability.RecordBackendRequest(false)
			send(Chunk{Err: fmt.Errorf("ollama stream error: %s", data.Error)})
			return
		}

		if data.Response != "" {
			if !send(Chunk{Text: data.Response}) {
				return
			}
		}

		if data.Done {
			observability.RecordBackendRequest(true)
			send(Chunk{Done: true})
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		observability.RecordBackendRequest(false)
		c.logger.Error().Err(err).Msg("Backend stream read failed")
		send(Chunk{Err: fmt.Errorf("failed to read stream: %w", err)})
		return
	}

	// Body ended without a done marker; treat what arrived as the full response
	observability.RecordBackendRequest(true)
	send(Chunk{Done: true})
}

// Healthy checks that the backend answers its model listing endpoint
func (c *OllamaClient) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}
