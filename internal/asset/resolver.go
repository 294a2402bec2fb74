// Package asset maps avatar states onto the fixed inventory of
// prerendered images.
package asset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lexiqai/avatar-gateway/internal/avatar"
)

const (
	// DefaultBase is the URL prefix the images are served under
	DefaultBase = "/assets"

	// LastResortFile is what a renderer should show when a resolved image
	// fails to load
	LastResortFile = "close_eyes_close_mouth.png"
)

// inventory is the complete set of image files. Closed-eye images do not
// depend on expression, so 2*6 open-eye + 6 closed-eye = 18.
var inventory = []string{
	"angry_open_eyes_close_mouth.png",
	"angry_open_eyes_A.png",
	"angry_open_eyes_E.png",
	"angry_open_eyes_I.png",
	"angry_open_eyes_O.png",
	"angry_open_eyes_U.png",
	"close_eyes_close_mouth.png",
	"close_eyes_A.png",
	"close_eyes_E.png",
	"close_eyes_I.png",
	"close_eyes_O.png",
	"close_eyes_U.png",
	"happy_open_eyes_close_mouth.png",
	"happy_open_eyes_A.png",
	"happy_open_eyes_E.png",
	"happy_open_eyes_I.png",
	"happy_open_eyes_O.png",
	"happy_open_eyes_U.png",
}

// validMouths is the validity table keyed by expression and eye state
var validMouths = map[avatar.Expression]map[avatar.EyeState][]avatar.MouthShape{
	avatar.ExpressionAngry: {
		avatar.EyesOpen:  avatar.MouthShapes,
		avatar.EyesClose: avatar.MouthShapes,
	},
	avatar.ExpressionHappy: {
		avatar.EyesOpen:  avatar.MouthShapes,
		avatar.EyesClose: avatar.MouthShapes,
	},
}

// Inventory returns the file names of every image the resolver can produce
func Inventory() []string {
	out := make([]string, len(inventory))
	copy(out, inventory)
	return out
}

func mouthSuffix(m avatar.MouthShape) string {
	if m == avatar.MouthClose {
		return "close_mouth"
	}
	return string(m)
}

// FileName is the image file name for a state, without any prefix.
// Closed eyes ignore the expression.
func FileName(expr avatar.Expression, eye avatar.EyeState, mouth avatar.MouthShape) string {
	if eye == avatar.EyesClose {
		return fmt.Sprintf("close_eyes_%s.png", mouthSuffix(mouth))
	}
	return fmt.Sprintf("%s_open_eyes_%s.png", expr, mouthSuffix(mouth))
}

// IsValid reports whether the combination has an image
func IsValid(expr avatar.Expression, eye avatar.EyeState, mouth avatar.MouthShape) bool {
	for _, m := range validMouths[expr][eye] {
		if m == mouth {
			return true
		}
	}
	return false
}

// Resolver builds image paths under a base URL
type Resolver struct {
	Base string
}

// NewResolver creates a resolver; an empty base means DefaultBase
func NewResolver(base string) *Resolver {
	if base == "" {
		base = DefaultBase
	}
	return &Resolver{Base: strings.TrimRight(base, "/")}
}

// Path renders the template without checking validity
func (r *Resolver) Path(expr avatar.Expression, eye avatar.EyeState, mouth avatar.MouthShape) string {
	return r.Base + "/" + FileName(expr, eye, mouth)
}

// FallbackPath always returns a path inside the inventory. Invalid closed-eye
// requests first retry with open eyes, then everything falls back to a
// happy face with eyes open and mouth closed.
func (r *Resolver) FallbackPath(expr avatar.Expression, eye avatar.EyeState, mouth avatar.MouthShape) string {
	path, _ := r.resolve(expr, eye, mouth)
	return path
}

// Resolve returns the fallback path for a frame and whether a fallback was taken
func (r *Resolver) Resolve(f avatar.Frame) (string, bool) {
	return r.resolve(f.Expression, f.EyeState, f.MouthShape)
}

func (r *Resolver) resolve(expr avatar.Expression, eye avatar.EyeState, mouth avatar.MouthShape) (string, bool) {
	if IsValid(expr, eye, mouth) {
		return r.Path(expr, eye, mouth), false
	}
	if eye == avatar.EyesClose && IsValid(expr, avatar.EyesOpen, mouth) {
		return r.Path(expr, avatar.EyesOpen, mouth), true
	}
	return r.Path(avatar.ExpressionHappy, avatar.EyesOpen, avatar.MouthClose), true
}

// LastResort is the URL of the rendering safety-net image
func (r *Resolver) LastResort() string {
	return r.Base + "/" + LastResortFile
}

var defaultResolver = NewResolver(DefaultBase)

// Path renders the template under DefaultBase
func Path(expr avatar.Expression, eye avatar.EyeState, mouth avatar.MouthShape) string {
	return defaultResolver.Path(expr, eye, mouth)
}

// FallbackPath resolves under DefaultBase
func FallbackPath(expr avatar.Expression, eye avatar.EyeState, mouth avatar.MouthShape) string {
	return defaultResolver.FallbackPath(expr, eye, mouth)
}

// VerifyDir returns the inventory files missing from dir
func VerifyDir(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat asset dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset dir %s is not a directory", dir)
	}

	var missing []string
	for _, name := range inventory {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// ParseState normalises user-supplied state names. Empty values default to
// the resting happy face; mouth shapes are case-insensitive.
func ParseState(expr, eye, mouth string) (avatar.Expression, avatar.EyeState, avatar.MouthShape, error) {
	e := avatar.Expression(strings.ToLower(strings.TrimSpace(expr)))
	if e == "" {
		e = avatar.ExpressionHappy
	}
	if !e.Valid() {
		return "", "", "", fmt.Errorf("unknown expression %q", expr)
	}

	es := avatar.EyeState(strings.ToLower(strings.TrimSpace(eye)))
	if es == "" {
		es = avatar.EyesOpen
	}
	if !es.Valid() {
		return "", "", "", fmt.Errorf("unknown eye state %q", eye)
	}

	m := avatar.MouthShape(strings.ToUpper(strings.TrimSpace(mouth)))
	if m == "" || strings.EqualFold(string(m), string(avatar.MouthClose)) {
		m = avatar.MouthClose
	}
	if !m.Valid() {
		return "", "", "", fmt.Errorf("unknown mouth shape %q", mouth)
	}

	return e, es, m, nil
}
