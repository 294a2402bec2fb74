package lipsync

import "strings"

const (
	// WordsPerSecond is the assumed speaking rate
	WordsPerSecond = 2.5

	MinDurationMs = 1000.0
	MaxDurationMs = 10000.0
)

// EstimateSpeakingDuration estimates how long text takes to say, in
// milliseconds, clamped to [MinDurationMs, MaxDurationMs].
//
// Empty and whitespace-only text count as one word, so they land on the
// floor rather than a distinct zero.
func EstimateSpeakingDuration(text string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}

	duration := float64(words) / WordsPerSecond * 1000
	if duration < MinDurationMs {
		return MinDurationMs
	}
	if duration > MaxDurationMs {
		return MaxDurationMs
	}
	return duration
}
