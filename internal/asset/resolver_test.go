package asset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/avatar-gateway/internal/avatar"
)

func TestPath(t *testing.T) {
	tests := []struct {
		expr  avatar.Expression
		eye   avatar.EyeState
		mouth avatar.MouthShape
		want  string
	}{
		{avatar.ExpressionHappy, avatar.EyesOpen, avatar.MouthA, "/assets/happy_open_eyes_A.png"},
		{avatar.ExpressionAngry, avatar.EyesClose, avatar.MouthE, "/assets/close_eyes_E.png"},
		{avatar.ExpressionHappy, avatar.EyesClose, avatar.MouthE, "/assets/close_eyes_E.png"},
		{avatar.ExpressionAngry, avatar.EyesOpen, avatar.MouthClose, "/assets/angry_open_eyes_close_mouth.png"},
		{avatar.ExpressionHappy, avatar.EyesClose, avatar.MouthClose, "/assets/close_eyes_close_mouth.png"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Path(tt.expr, tt.eye, tt.mouth))
		})
	}
}

func TestIsValid(t *testing.T) {
	count := 0
	for _, e := range avatar.Expressions {
		for _, eye := range avatar.EyeStates {
			for _, m := range avatar.MouthShapes {
				assert.True(t, IsValid(e, eye, m), "%s/%s/%s", e, eye, m)
				count++
			}
		}
	}
	assert.Equal(t, 24, count)

	assert.False(t, IsValid("sad", avatar.EyesOpen, avatar.MouthA))
	assert.False(t, IsValid(avatar.ExpressionHappy, "half", avatar.MouthA))
	assert.False(t, IsValid(avatar.ExpressionHappy, avatar.EyesOpen, "X"))
}

func TestFallbackPath(t *testing.T) {
	tests := []struct {
		name  string
		expr  avatar.Expression
		eye   avatar.EyeState
		mouth avatar.MouthShape
		want  string
	}{
		{"valid passes through", avatar.ExpressionAngry, avatar.EyesOpen, avatar.MouthO, "/assets/angry_open_eyes_O.png"},
		{"valid closed eyes", avatar.ExpressionAngry, avatar.EyesClose, avatar.MouthU, "/assets/close_eyes_U.png"},
		{"unknown expression", "sad", avatar.EyesOpen, avatar.MouthA, "/assets/happy_open_eyes_close_mouth.png"},
		{"unknown expression closed eyes", "sad", avatar.EyesClose, avatar.MouthA, "/assets/happy_open_eyes_close_mouth.png"},
		{"unknown eye state", avatar.ExpressionAngry, "wide", avatar.MouthA, "/assets/happy_open_eyes_close_mouth.png"},
		{"unknown mouth", avatar.ExpressionAngry, avatar.EyesClose, "Q", "/assets/happy_open_eyes_close_mouth.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FallbackPath(tt.expr, tt.eye, tt.mouth))
		})
	}
}

func TestFallbackPath_AlwaysInInventory(t *testing.T) {
	known := make(map[string]bool)
	for _, name := range Inventory() {
		known["/assets/"+name] = true
	}

	exprs := append([]avatar.Expression{"", "sad"}, avatar.Expressions...)
	eyes := append([]avatar.EyeState{"", "half"}, avatar.EyeStates...)
	mouths := append([]avatar.MouthShape{"", "closed", "a"}, avatar.MouthShapes...)

	for _, e := range exprs {
		for _, eye := range eyes {
			for _, m := range mouths {
				path := FallbackPath(e, eye, m)
				assert.True(t, known[path], "%q/%q/%q resolved outside inventory: %s", e, eye, m, path)
			}
		}
	}
}

func TestInventory(t *testing.T) {
	inv := Inventory()
	require.Len(t, inv, 18)

	seen := make(map[string]bool)
	for _, name := range inv {
		assert.False(t, seen[name], "duplicate %s", name)
		seen[name] = true
		assert.True(t, strings.HasSuffix(name, ".png"))
	}
	assert.True(t, seen[LastResortFile])

	// every valid combination lands on an inventory file
	for _, e := range avatar.Expressions {
		for _, eye := range avatar.EyeStates {
			for _, m := range avatar.MouthShapes {
				assert.True(t, seen[FileName(e, eye, m)])
			}
		}
	}

	inv[0] = "mutated"
	assert.NotEqual(t, "mutated", Inventory()[0])
}

func TestResolver(t *testing.T) {
	r := NewResolver("https://cdn.example.com/avatar/")
	assert.Equal(t, "https://cdn.example.com/avatar", r.Base)
	assert.Equal(t, "https://cdn.example.com/avatar/happy_open_eyes_I.png",
		r.Path(avatar.ExpressionHappy, avatar.EyesOpen, avatar.MouthI))
	assert.Equal(t, "https://cdn.example.com/avatar/close_eyes_close_mouth.png", r.LastResort())

	path, fellBack := r.Resolve(avatar.Frame{Expression: avatar.ExpressionAngry, EyeState: avatar.EyesClose, MouthShape: avatar.MouthA})
	assert.Equal(t, "https://cdn.example.com/avatar/close_eyes_A.png", path)
	assert.False(t, fellBack)

	path, fellBack = r.Resolve(avatar.Frame{Expression: "bored", EyeState: avatar.EyesOpen, MouthShape: avatar.MouthA})
	assert.Equal(t, "https://cdn.example.com/avatar/happy_open_eyes_close_mouth.png", path)
	assert.True(t, fellBack)

	assert.Equal(t, DefaultBase, NewResolver("").Base)
}

func TestVerifyDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range Inventory()[:17] {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("png"), 0o644))
	}

	missing, err := VerifyDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"happy_open_eyes_U.png"}, missing)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "happy_open_eyes_U.png"), []byte("png"), 0o644))
	missing, err = VerifyDir(dir)
	require.NoError(t, err)
	assert.Empty(t, missing)

	_, err = VerifyDir(filepath.Join(dir, "nope"))
	assert.Error(t, err)

	_, err = VerifyDir(filepath.Join(dir, "happy_open_eyes_U.png"))
	assert.Error(t, err)
}

func TestParseState(t *testing.T) {
	e, eye, m, err := ParseState("", "", "")
	require.NoError(t, err)
	assert.Equal(t, avatar.ExpressionHappy, e)
	assert.Equal(t, avatar.EyesOpen, eye)
	assert.Equal(t, avatar.MouthClose, m)

	e, eye, m, err = ParseState(" Angry ", "CLOSE", "u")
	require.NoError(t, err)
	assert.Equal(t, avatar.ExpressionAngry, e)
	assert.Equal(t, avatar.EyesClose, eye)
	assert.Equal(t, avatar.MouthU, m)

	_, _, m, err = ParseState("happy", "open", "Close")
	require.NoError(t, err)
	assert.Equal(t, avatar.MouthClose, m)

	for _, bad := range [][3]string{{"sad", "", ""}, {"", "half", ""}, {"", "", "x"}} {
		_, _, _, err := ParseState(bad[0], bad[1], bad[2])
		assert.Error(t, err, "input %v", bad)
	}
}
