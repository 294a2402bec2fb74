package expression

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/avatar-gateway/internal/avatar"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		want avatar.Expression
	}{
		{"upper case trigger", "You are STUPID", avatar.ExpressionAngry},
		{"neutral greeting", "good morning", avatar.ExpressionHappy},
		{"empty", "", avatar.ExpressionHappy},
		{"japanese trigger", "ほんとにばかだね", avatar.ExpressionAngry},
		{"mixed case japanese and english", "Tell me a short joke", avatar.ExpressionHappy},
		{"two triggers", "You are stupid and annoying", avatar.ExpressionAngry},
		// containment has no word boundaries
		{"trigger inside word", "hello there", avatar.ExpressionAngry},
		{"ass inside class", "first class", avatar.ExpressionAngry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.text))
		})
	}
}

func TestDetect_EveryTrigger(t *testing.T) {
	for _, word := range DefaultLexicon().Angry {
		assert.Equal(t, avatar.ExpressionAngry, Detect("xx "+word+" yy"), word)
	}
}

func TestDefaultLexicon_IsCopy(t *testing.T) {
	lex := DefaultLexicon()
	lex.Angry[0] = "zzz"
	assert.Equal(t, avatar.ExpressionAngry, Detect("stupid"))
}

func TestLoadLexicon(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("angry:\n  - Grumpy\n  - \"  \"\n  - ムカ\n"), 0o644))

	lex, err := LoadLexicon(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"grumpy", "ムカ"}, lex.Angry)

	assert.Equal(t, avatar.ExpressionAngry, lex.Detect("so GRUMPY today"))
	assert.Equal(t, avatar.ExpressionHappy, lex.Detect("you are stupid"))
}

func TestLoadLexicon_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadLexicon(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("angry: []\n"), 0o644))
	_, err = LoadLexicon(empty)
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("angry: [unterminated\n"), 0o644))
	_, err = LoadLexicon(broken)
	assert.Error(t, err)
}

func TestDetectEyeState(t *testing.T) {
	assert.Equal(t, avatar.EyesOpen, DetectEyeState("anything"))
	assert.Equal(t, avatar.EyesOpen, DetectEyeState(""))
}
