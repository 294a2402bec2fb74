// Package avatar defines the discrete visual states shared by the
// classifier, the lip-sync sequencer and the asset resolver.
package avatar

// Expression is the coarse emotional state of the face
type Expression string

const (
	ExpressionHappy Expression = "happy"
	ExpressionAngry Expression = "angry"
)

// EyeState is the open/closed state of both eyes
type EyeState string

const (
	EyesOpen  EyeState = "open"
	EyesClose EyeState = "close"
)

// MouthShape is one of five vowel shapes or the resting closed mouth
type MouthShape string

const (
	MouthA     MouthShape = "A"
	MouthE     MouthShape = "E"
	MouthI     MouthShape = "I"
	MouthO     MouthShape = "O"
	MouthU     MouthShape = "U"
	MouthClose MouthShape = "close"
)

// Expressions lists every valid expression
var Expressions = []Expression{ExpressionHappy, ExpressionAngry}

// EyeStates lists every valid eye state
var EyeStates = []EyeState{EyesOpen, EyesClose}

// MouthShapes lists every valid mouth shape, resting shape first
var MouthShapes = []MouthShape{MouthClose, MouthA, MouthE, MouthI, MouthO, MouthU}

// Valid reports whether e is a known expression
func (e Expression) Valid() bool {
	return e == ExpressionHappy || e == ExpressionAngry
}

// Valid reports whether s is a known eye state
func (s EyeState) Valid() bool {
	return s == EyesOpen || s == EyesClose
}

// Valid reports whether m is a known mouth shape
func (m MouthShape) Valid() bool {
	switch m {
	case MouthA, MouthE, MouthI, MouthO, MouthU, MouthClose:
		return true
	}
	return false
}

// IsVowel reports whether m is an open (vowel) mouth shape
func (m MouthShape) IsVowel() bool {
	return m != MouthClose && m.Valid()
}

// Frame is one displayable avatar state
type Frame struct {
	Expression Expression `json:"expression"`
	EyeState   EyeState   `json:"eyeState"`
	MouthShape MouthShape `json:"mouthShape"`
	Asset      string     `json:"asset"`
	Speaking   bool       `json:"speaking"`
}

// Resting returns the idle frame for an expression: eyes open, mouth closed
func Resting(expr Expression) Frame {
	return Frame{
		Expression: expr,
		EyeState:   EyesOpen,
		MouthShape: MouthClose,
	}
}
