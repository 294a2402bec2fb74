// Package pipeline composes the expression classifier, duration estimator
// and lip-sync sequencer into a single analysis of a piece of text.
package pipeline

import (
	"github.com/lexiqai/avatar-gateway/internal/avatar"
	"github.com/lexiqai/avatar-gateway/internal/expression"
	"github.com/lexiqai/avatar-gateway/internal/lipsync"
)

// Analysis is everything the renderer needs to animate one utterance
type Analysis struct {
	Text       string            `json:"text"`
	Expression avatar.Expression `json:"expression"`
	EyeState   avatar.EyeState   `json:"eyeState"`
	DurationMs float64           `json:"durationMs"`
	Sequence   lipsync.Sequence  `json:"sequence"`
}

// Classifier picks an expression for text
type Classifier interface {
	Detect(text string) avatar.Expression
}

// Analyzer runs the pipeline with a configurable lexicon
type Analyzer struct {
	classifier Classifier
}

// NewAnalyzer creates an analyzer; a nil classifier uses the built-in lexicon
func NewAnalyzer(classifier Classifier) *Analyzer {
	if classifier == nil {
		classifier = expression.DefaultLexicon()
	}
	return &Analyzer{classifier: classifier}
}

// Classify returns the expression for text
func (a *Analyzer) Classify(text string) avatar.Expression {
	return a.classifier.Detect(text)
}

// Analyze classifies text, estimates its speaking duration and builds the
// lip-sync sequence over that duration. It is recomputed from scratch on
// every call, so streaming callers pass the whole accumulated text.
func (a *Analyzer) Analyze(text string) Analysis {
	return a.AnalyzeFor(text, lipsync.EstimateSpeakingDuration(text))
}

// AnalyzeFor is Analyze with an explicit duration in milliseconds
func (a *Analyzer) AnalyzeFor(text string, durationMs float64) Analysis {
	return Analysis{
		Text:       text,
		Expression: a.classifier.Detect(text),
		EyeState:   expression.DetectEyeState(text),
		DurationMs: durationMs,
		Sequence:   lipsync.Generate(text, durationMs),
	}
}
