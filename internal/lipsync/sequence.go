// Package lipsync turns text into a timed sequence of mouth shapes.
//
// It is a heuristic keyed off ASCII vowels, not a phonetic aligner: every
// vowel and every space gets one equal slice of the speaking duration and
// consonants get none.
package lipsync

import (
	"unicode"

	"github.com/lexiqai/avatar-gateway/internal/avatar"
)

// Phoneme is one source character and the mouth shape it maps to
type Phoneme struct {
	Char  string            `json:"char"`
	Shape avatar.MouthShape `json:"mouthShape"`
}

// TimedPhoneme places a phoneme on the timeline, in milliseconds
type TimedPhoneme struct {
	Phoneme
	StartMs    float64 `json:"startTime"`
	DurationMs float64 `json:"duration"`
}

// EndMs is the exclusive end of the segment
func (p TimedPhoneme) EndMs() float64 {
	return p.StartMs + p.DurationMs
}

// Sequence is a contiguous partition of the speaking duration
type Sequence []TimedPhoneme

// MouthShapeFor maps a single character to a mouth shape, ignoring case
func MouthShapeFor(r rune) avatar.MouthShape {
	switch unicode.ToUpper(r) {
	case 'A':
		return avatar.MouthA
	case 'E':
		return avatar.MouthE
	case 'I', 'Y':
		return avatar.MouthI
	case 'O':
		return avatar.MouthO
	case 'U', 'W':
		return avatar.MouthU
	default:
		return avatar.MouthClose
	}
}

// keep reports whether r survives cleaning: ASCII word characters and
// any whitespace
func keep(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		return true
	}
	return unicode.IsSpace(r)
}

// ExtractPhonemes keeps vowels and literal spaces from text, in order.
// Consonants get no slot. The result is never empty: text without vowels
// or spaces yields a single closed-mouth placeholder.
func ExtractPhonemes(text string) []Phoneme {
	phonemes := make([]Phoneme, 0, len(text)/2+1)

	for _, r := range text {
		if !keep(r) {
			continue
		}
		if r == ' ' {
			phonemes = append(phonemes, Phoneme{Char: " ", Shape: avatar.MouthClose})
			continue
		}
		if shape := MouthShapeFor(r); shape.IsVowel() {
			phonemes = append(phonemes, Phoneme{Char: string(r), Shape: shape})
		}
	}

	if len(phonemes) == 0 {
		phonemes = append(phonemes, Phoneme{Char: "", Shape: avatar.MouthClose})
	}
	return phonemes
}

// Time spreads totalMs evenly over phonemes. Durations are not validated;
// zero or negative totals produce zero or negative slices.
func Time(phonemes []Phoneme, totalMs float64) Sequence {
	if len(phonemes) == 0 {
		return Sequence{}
	}

	slice := totalMs / float64(len(phonemes))
	seq := make(Sequence, len(phonemes))
	for i, p := range phonemes {
		seq[i] = TimedPhoneme{
			Phoneme:    p,
			StartMs:    float64(i) * slice,
			DurationMs: slice,
		}
	}
	return seq
}

// Generate builds the lip-sync sequence for text over totalMs
func Generate(text string, totalMs float64) Sequence {
	return Time(ExtractPhonemes(text), totalMs)
}

// ShapeAt returns the shape whose [start, start+duration) contains ms, or
// a closed mouth when none does. It keeps no cursor, so callers may sample
// in any order.
func (s Sequence) ShapeAt(ms float64) avatar.MouthShape {
	for _, p := range s {
		if ms >= p.StartMs && ms < p.EndMs() {
			return p.Shape
		}
	}
	return avatar.MouthClose
}

// ShapeAt samples seq at ms
func ShapeAt(seq Sequence, ms float64) avatar.MouthShape {
	return seq.ShapeAt(ms)
}

// TotalMs sums the segment durations
func (s Sequence) TotalMs() float64 {
	var total float64
	for _, p := range s {
		total += p.DurationMs
	}
	return total
}

// Shapes returns the mouth shapes in order
func (s Sequence) Shapes() []avatar.MouthShape {
	shapes := make([]avatar.MouthShape, len(s))
	for i, p := range s {
		shapes[i] = p.Shape
	}
	return shapes
}
