package llm

import "context"

// Chunk is one piece of a streamed generation
type Chunk struct {
	Text string // Newly generated text, may be empty on the final chunk
	Done bool   // Backend reported the end of the response
	Err  error  // Stream failed; no further chunks follow
}

// Streamer defines the interface for a streaming text generation backend
type Streamer interface {
	// Generate starts a generation and streams its text.
	// The channel is closed when the stream ends, fails or ctx is cancelled.
	Generate(ctx context.Context, prompt string) (<-chan Chunk, error)

	// Healthy reports whether the backend is reachable
	Healthy(ctx context.Context) error
}
