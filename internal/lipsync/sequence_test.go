package lipsync

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/avatar-gateway/internal/avatar"
)

func TestMouthShapeFor(t *testing.T) {
	tests := []struct {
		in   rune
		want avatar.MouthShape
	}{
		{'a', avatar.MouthA}, {'A', avatar.MouthA},
		{'e', avatar.MouthE}, {'E', avatar.MouthE},
		{'i', avatar.MouthI}, {'y', avatar.MouthI}, {'Y', avatar.MouthI},
		{'o', avatar.MouthO}, {'O', avatar.MouthO},
		{'u', avatar.MouthU}, {'w', avatar.MouthU}, {'W', avatar.MouthU},
		{'b', avatar.MouthClose}, {'z', avatar.MouthClose},
		{'7', avatar.MouthClose}, {' ', avatar.MouthClose}, {'あ', avatar.MouthClose},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, MouthShapeFor(tt.in))
		})
	}
}

func TestExtractPhonemes(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []avatar.MouthShape
	}{
		{"amazing", "amazing", []avatar.MouthShape{avatar.MouthA, avatar.MouthA, avatar.MouthI}},
		{"space is its own slot", "hi you", []avatar.MouthShape{avatar.MouthI, avatar.MouthClose, avatar.MouthI, avatar.MouthO, avatar.MouthU}},
		{"consonant dropped after vowel", "ab", []avatar.MouthShape{avatar.MouthA}},
		{"no vowels", "bcd", []avatar.MouthShape{avatar.MouthClose}},
		{"punctuation only", "?!...", []avatar.MouthShape{avatar.MouthClose}},
		{"empty", "", []avatar.MouthShape{avatar.MouthClose}},
		{"punctuation stripped around vowels", "o.k, a!", []avatar.MouthShape{avatar.MouthO, avatar.MouthClose, avatar.MouthA}},
		{"tabs and newlines dropped", "a\tb\ne", []avatar.MouthShape{avatar.MouthA, avatar.MouthE}},
		{"non ascii dropped", "こんにちは", []avatar.MouthShape{avatar.MouthClose}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractPhonemes(tt.text)
			shapes := make([]avatar.MouthShape, len(got))
			for i, p := range got {
				shapes[i] = p.Shape
			}
			assert.Equal(t, tt.want, shapes)
		})
	}
}

func TestExtractPhonemes_Placeholder(t *testing.T) {
	got := ExtractPhonemes("xyz")
	// y is a vowel shape
	require.Len(t, got, 1)
	assert.Equal(t, Phoneme{Char: "y", Shape: avatar.MouthI}, got[0])

	got = ExtractPhonemes("   ")
	assert.Len(t, got, 3)

	got = ExtractPhonemes("---")
	require.Len(t, got, 1)
	assert.Equal(t, Phoneme{Char: "", Shape: avatar.MouthClose}, got[0])
}

func TestGenerate_ConsonantsOnly(t *testing.T) {
	seq := Generate("bc", 1000)

	require.Len(t, seq, 1)
	assert.Equal(t, avatar.MouthClose, seq[0].Shape)
	assert.Equal(t, 0.0, seq[0].StartMs)
	assert.Equal(t, 1000.0, seq[0].DurationMs)
}

func TestGenerate_Amazing(t *testing.T) {
	seq := Generate("amazing", 900)

	require.Len(t, seq, 3)
	assert.Equal(t, []avatar.MouthShape{avatar.MouthA, avatar.MouthA, avatar.MouthI}, seq.Shapes())
	for i, p := range seq {
		assert.InDelta(t, 300.0, p.DurationMs, 1e-9)
		assert.InDelta(t, float64(i)*300, p.StartMs, 1e-9)
	}
}

func TestGenerate_Contiguous(t *testing.T) {
	texts := []string{
		"",
		"x",
		"Hello, how are you doing today?",
		"amazing wonderful beautiful",
		strings.Repeat("a e i o u ", 40),
	}
	durations := []float64{1000, 3333, 7, 10000}

	for _, text := range texts {
		for _, total := range durations {
			seq := Generate(text, total)
			require.NotEmpty(t, seq)

			assert.Equal(t, 0.0, seq[0].StartMs)
			for i := 1; i < len(seq); i++ {
				assert.InDelta(t, seq[i-1].EndMs(), seq[i].StartMs, 1e-6)
			}
			assert.InDelta(t, total, seq.TotalMs(), 1e-6)
			assert.InDelta(t, total, seq[len(seq)-1].EndMs(), 1e-6)
		}
	}
}

func TestGenerate_NonPositiveDuration(t *testing.T) {
	seq := Generate("aeiou", 0)
	require.Len(t, seq, 5)
	for _, p := range seq {
		assert.Equal(t, 0.0, p.DurationMs)
	}
	assert.Equal(t, avatar.MouthClose, seq.ShapeAt(0))

	seq = Generate("ae", -100)
	require.Len(t, seq, 2)
	assert.Equal(t, -50.0, seq[0].DurationMs)
}

func TestTime_Empty(t *testing.T) {
	assert.Empty(t, Time(nil, 1000))
}

func TestShapeAt(t *testing.T) {
	seq := Generate("a e", 300)
	// a | space | e, 100ms each

	tests := []struct {
		ms   float64
		want avatar.MouthShape
	}{
		{-1, avatar.MouthClose},
		{0, avatar.MouthA},
		{99.9, avatar.MouthA},
		{100, avatar.MouthClose},
		{200, avatar.MouthE},
		{299.99, avatar.MouthE},
		{300, avatar.MouthClose},
		{1e9, avatar.MouthClose},
		{math.NaN(), avatar.MouthClose},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, seq.ShapeAt(tt.ms), "at %v", tt.ms)
		assert.Equal(t, tt.want, ShapeAt(seq, tt.ms), "at %v", tt.ms)
	}
}

func TestShapeAt_OutOfOrder(t *testing.T) {
	seq := Generate("aeiou", 500)

	assert.Equal(t, avatar.MouthU, seq.ShapeAt(450))
	assert.Equal(t, avatar.MouthA, seq.ShapeAt(10))
	assert.Equal(t, avatar.MouthO, seq.ShapeAt(350))
	assert.Equal(t, avatar.MouthE, seq.ShapeAt(150))
}

func TestShapeAt_EmptySequence(t *testing.T) {
	var seq Sequence
	assert.Equal(t, avatar.MouthClose, seq.ShapeAt(0))
	assert.Equal(t, avatar.MouthClose, ShapeAt(nil, 10))
}

func TestEstimateSpeakingDuration(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"empty clamps to floor", "", 1000},
		{"whitespace only", "   \t\n", 1000},
		{"single word", "hello", 1000},
		{"two words", "hello there", 1000},
		{"three words", "one two three", 1200},
		{"padded", "  one   two three  ", 1200},
		{"ten words", strings.Repeat("word ", 10), 4000},
		{"fifty words clamps to ceiling", strings.Repeat("word ", 50), 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EstimateSpeakingDuration(tt.text), 1e-9)
		})
	}
}

func TestEstimateSpeakingDuration_Bounds(t *testing.T) {
	for n := 0; n < 100; n++ {
		d := EstimateSpeakingDuration(strings.Repeat("w ", n))
		assert.GreaterOrEqual(t, d, MinDurationMs)
		assert.LessOrEqual(t, d, MaxDurationMs)
	}
}
