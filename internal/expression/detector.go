// Package expression classifies text into a coarse avatar expression by
// keyword containment.
package expression

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lexiqai/avatar-gateway/internal/avatar"
)

// defaultAngryWords are the built-in triggers, English then Japanese
var defaultAngryWords = []string{
	"stupid",
	"annoying",
	"dumb",
	"idiot",
	"fuck",
	"shit",
	"damn",
	"hell",
	"ass",
	"bitch",
	"bastard",
	"angry",
	"mad",
	"pissed",
	"furious",
	"rage",
	"ばか",
	"あほ",
	"くそ",
	"しね",
	"うざい",
	"むかつく",
	"ふざけるな",
	"やろう",
	"てめえ",
	"きさま",
	"くず",
	"かす",
	"だまれ",
	"まぬけ",
	"へたくそ",
	"ちくしょう",
}

// Lexicon holds the ordered list of substrings that mark text as angry
type Lexicon struct {
	Angry []string `yaml:"angry"`
}

// DefaultLexicon returns a copy of the built-in trigger list
func DefaultLexicon() *Lexicon {
	words := make([]string, len(defaultAngryWords))
	copy(words, defaultAngryWords)
	return &Lexicon{Angry: words}
}

// LoadLexicon reads a YAML lexicon file of the form:
//
//	angry:
//	  - stupid
//	  - ばか
//
// Entries are lower-cased and blank entries are dropped.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon: %w", err)
	}

	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon %s: %w", path, err)
	}

	words := make([]string, 0, len(lex.Angry))
	for _, w := range lex.Angry {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("lexicon %s has no angry triggers", path)
	}

	return &Lexicon{Angry: words}, nil
}

// Detect returns angry when any trigger is contained in the lower-cased
// text, happy otherwise. Empty text is happy.
func (l *Lexicon) Detect(text string) avatar.Expression {
	lower := strings.ToLower(text)
	for _, word := range l.Angry {
		if strings.Contains(lower, word) {
			return avatar.ExpressionAngry
		}
	}
	return avatar.ExpressionHappy
}

var builtin = DefaultLexicon()

// Detect classifies text with the built-in lexicon
func Detect(text string) avatar.Expression {
	return builtin.Detect(text)
}

// DetectEyeState always reports open eyes; blinks come from the animator
func DetectEyeState(string) avatar.EyeState {
	return avatar.EyesOpen
}
