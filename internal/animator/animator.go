// Package animator drives an avatar through a lip-sync sequence in real time.
// It samples the current sequence on a fixed tick, overlays random blinks and
// emits resolved frames to a handler.
package animator

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/lexiqai/avatar-gateway/internal/asset"
	"github.com/lexiqai/avatar-gateway/internal/avatar"
	"github.com/lexiqai/avatar-gateway/internal/config"
	"github.com/lexiqai/avatar-gateway/internal/lipsync"
	"github.com/lexiqai/avatar-gateway/internal/observability"
)

// FrameHandler receives every frame the animator produces. It is called
// sequentially and must not call back into the Animator.
type FrameHandler func(avatar.Frame)

// Options configures an Animator
type Options struct {
	TickInterval     time.Duration
	BlinkProbability float64
	BlinkDuration    time.Duration
	ResyncInterval   time.Duration
	ResyncMinChars   int
	Resolver         *asset.Resolver
	Logger           *zerolog.Logger

	// Rand returns values in [0, 1); Now is the clock. Both default to the real ones.
	Rand func() float64
	Now  func() time.Time
}

// OptionsFromConfig builds animator options from service configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TickInterval:     cfg.TickInterval(),
		BlinkProbability: cfg.BlinkProbability,
		BlinkDuration:    cfg.BlinkDuration(),
		ResyncInterval:   cfg.ResyncInterval(),
		ResyncMinChars:   cfg.ResyncMinChars,
		Resolver:         asset.NewResolver(cfg.AssetBasePath),
	}
}

// DefaultOptions mirrors the configuration defaults
func DefaultOptions() Options {
	return Options{
		TickInterval:     50 * time.Millisecond,
		BlinkProbability: 0.15,
		BlinkDuration:    80 * time.Millisecond,
		ResyncInterval:   200 * time.Millisecond,
		ResyncMinChars:   10,
	}
}

// Animator owns at most one running lip-sync task
type Animator struct {
	opts    Options
	handler FrameHandler
	logger  zerolog.Logger

	mu          sync.Mutex
	emitMu      sync.Mutex
	gen         uint64
	cancel      context.CancelFunc
	active      bool
	expr        avatar.Expression
	seq         lipsync.Sequence
	totalMs     float64
	started     time.Time
	lastRestart time.Time
	blinkUntil  time.Time
	last        avatar.Frame
}

// New creates an idle animator
func New(opts Options, handler FrameHandler) *Animator {
	def := DefaultOptions()
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	if opts.Resolver == nil {
		opts.Resolver = asset.NewResolver(asset.DefaultBase)
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if handler == nil {
		handler = func(avatar.Frame) {}
	}

	logger := observability.Component("animator")
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	a := &Animator{
		opts:    opts,
		handler: handler,
		logger:  logger,
		expr:    avatar.ExpressionHappy,
	}
	a.last = a.resolve(avatar.Resting(a.expr))
	return a
}

// Start cancels any running task and animates text from the beginning.
// Whitespace-only text only cancels.
func (a *Animator) Start(text string, expr avatar.Expression) {
	if strings.TrimSpace(text) == "" {
		a.mu.Lock()
		a.cancelLocked()
		a.mu.Unlock()
		return
	}

	totalMs := lipsync.EstimateSpeakingDuration(text)
	seq := lipsync.Generate(text, totalMs)
	observability.RecordSequence("animator", len(seq), expr)

	a.mu.Lock()
	a.cancelLocked()

	now := a.opts.Now()
	ctx, cancel := context.WithCancel(context.Background())
	a.gen++
	gen := a.gen
	a.cancel = cancel
	a.active = true
	a.expr = expr
	a.seq = seq
	a.totalMs = totalMs
	a.started = now
	a.lastRestart = now
	a.blinkUntil = time.Time{}
	a.mu.Unlock()

	a.logger.Debug().
		Str("expression", string(expr)).
		Int("phonemes", len(seq)).
		Float64("duration_ms", totalMs).
		Msg("Lip-sync started")

	go a.run(ctx, gen)
}

// Feed restarts the animation from the full accumulated text of a stream,
// throttled to once per resync interval except for short texts. It reports
// whether a restart happened.
func (a *Animator) Feed(accumulated string, expr avatar.Expression) bool {
	a.mu.Lock()
	due := !a.active ||
		a.opts.Now().Sub(a.lastRestart) > a.opts.ResyncInterval ||
		utf8.RuneCountInString(accumulated) < a.opts.ResyncMinChars
	a.mu.Unlock()

	if !due {
		return false
	}
	a.Start(accumulated, expr)
	return true
}

// Stop cancels any running task and emits the resting frame
func (a *Animator) Stop() {
	a.mu.Lock()
	a.cancelLocked()
	frame := a.resolve(avatar.Resting(a.expr))
	a.last = frame
	a.emitLocked(frame)
}

// Close cancels any running task without emitting
func (a *Animator) Close() {
	a.mu.Lock()
	a.cancelLocked()
	a.mu.Unlock()
}

// Active reports whether a lip-sync task is running
func (a *Animator) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Current returns the last emitted frame
func (a *Animator) Current() avatar.Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

func (a *Animator) cancelLocked() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.active = false
}

func (a *Animator) run(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(a.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.tick(gen) {
				return
			}
		}
	}
}

// tick advances the task identified by gen; false means the task is over
func (a *Animator) tick(gen uint64) bool {
	a.mu.Lock()
	if gen != a.gen || !a.active {
		a.mu.Unlock()
		return false
	}

	frame, done := a.step(a.opts.Now())
	if done {
		a.cancelLocked()
	}
	a.last = frame
	a.emitLocked(frame)
	return !done
}

// step computes the frame at now. When the sequence has run out it returns
// the resting frame and done. Callers hold mu.
func (a *Animator) step(now time.Time) (avatar.Frame, bool) {
	elapsed := float64(now.Sub(a.started)) / float64(time.Millisecond)
	if elapsed >= a.totalMs {
		return a.resolve(avatar.Resting(a.expr)), true
	}

	eye := avatar.EyesOpen
	if now.Before(a.blinkUntil) {
		eye = avatar.EyesClose
	} else if a.opts.Rand() < a.opts.BlinkProbability {
		a.blinkUntil = now.Add(a.opts.BlinkDuration)
		eye = avatar.EyesClose
		observability.RecordBlink()
	}

	frame := avatar.Frame{
		Expression: a.expr,
		EyeState:   eye,
		MouthShape: a.seq.ShapeAt(elapsed),
		Speaking:   true,
	}
	return a.resolve(frame), false
}

func (a *Animator) resolve(f avatar.Frame) avatar.Frame {
	path, fallback := a.opts.Resolver.Resolve(f)
	if fallback {
		observability.RecordAssetFallback()
	}
	f.Asset = path
	return f
}

// emitLocked hands frame to the handler after releasing mu, keeping frames in
// the order their state changes were made
func (a *Animator) emitLocked(frame avatar.Frame) {
	a.emitMu.Lock()
	a.mu.Unlock()
	defer a.emitMu.Unlock()

	observability.RecordFrame(frame.MouthShape)
	a.handler(frame)
}
