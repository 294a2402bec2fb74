package animator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/avatar-gateway/internal/avatar"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	frames []avatar.Frame
}

func (r *recorder) handle(f avatar.Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *recorder) all() []avatar.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]avatar.Frame(nil), r.frames...)
}

func (r *recorder) last() avatar.Frame {
	all := r.all()
	return all[len(all)-1]
}

// newManual returns an animator whose ticker never fires, so tests drive it
// with tick() and the fake clock
func newManual(randValue *float64) (*Animator, *fakeClock, *recorder) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	opts := DefaultOptions()
	opts.TickInterval = time.Hour
	opts.Now = clock.Now
	opts.Rand = func() float64 { return *randValue }
	return New(opts, rec.handle), clock, rec
}

func TestAnimator_SamplesSequence(t *testing.T) {
	r := 0.99
	a, clock, rec := newManual(&r)

	// "Amazing": vowels a, a, i over the 1000ms floor
	a.Start("Amazing", avatar.ExpressionHappy)
	require.True(t, a.Active())

	clock.Advance(10 * time.Millisecond)
	require.True(t, a.tick(a.gen))
	clock.Advance(690 * time.Millisecond)
	require.True(t, a.tick(a.gen))

	frames := rec.all()
	require.Len(t, frames, 2)
	assert.Equal(t, avatar.MouthA, frames[0].MouthShape)
	assert.Equal(t, avatar.MouthI, frames[1].MouthShape)
	for _, f := range frames {
		assert.True(t, f.Speaking)
		assert.Equal(t, avatar.EyesOpen, f.EyeState)
		assert.Equal(t, avatar.ExpressionHappy, f.Expression)
	}
	assert.Equal(t, "/assets/happy_open_eyes_A.png", frames[0].Asset)
}

func TestAnimator_StopsAtEnd(t *testing.T) {
	r := 0.99
	a, clock, rec := newManual(&r)

	a.Start("Amazing", avatar.ExpressionAngry)
	gen := a.gen

	clock.Advance(1000 * time.Millisecond)
	assert.False(t, a.tick(gen))
	assert.False(t, a.Active())

	last := rec.last()
	assert.Equal(t, avatar.MouthClose, last.MouthShape)
	assert.Equal(t, avatar.EyesOpen, last.EyeState)
	assert.False(t, last.Speaking)
	assert.Equal(t, avatar.ExpressionAngry, last.Expression)

	// A stale tick after completion emits nothing
	n := len(rec.all())
	assert.False(t, a.tick(gen))
	assert.Len(t, rec.all(), n)
}

func TestAnimator_Blink(t *testing.T) {
	r := 0.0
	a, clock, rec := newManual(&r)

	a.Start("hello world", avatar.ExpressionHappy)

	clock.Advance(50 * time.Millisecond)
	a.tick(a.gen)
	assert.Equal(t, avatar.EyesClose, rec.last().EyeState, "blink starts")

	r = 0.99
	clock.Advance(40 * time.Millisecond)
	a.tick(a.gen)
	assert.Equal(t, avatar.EyesClose, rec.last().EyeState, "blink held for its duration")

	clock.Advance(50 * time.Millisecond)
	a.tick(a.gen)
	assert.Equal(t, avatar.EyesOpen, rec.last().EyeState, "blink over")
}

func TestAnimator_BlinkAsset(t *testing.T) {
	r := 0.0
	a, clock, rec := newManual(&r)

	// Closed-eye images are shared by every expression
	a.Start("aaaa", avatar.ExpressionAngry)
	clock.Advance(10 * time.Millisecond)
	a.tick(a.gen)

	f := rec.last()
	assert.Equal(t, avatar.EyesClose, f.EyeState)
	assert.Equal(t, avatar.ExpressionAngry, f.Expression)
	assert.Equal(t, "/assets/close_eyes_A.png", f.Asset)
}

func TestAnimator_StartReplacesTask(t *testing.T) {
	r := 0.99
	a, _, _ := newManual(&r)

	a.Start("first text", avatar.ExpressionHappy)
	first := a.gen
	a.Start("second text", avatar.ExpressionAngry)

	assert.False(t, a.tick(first), "superseded task must not tick")
	assert.True(t, a.Active())
	assert.Equal(t, avatar.ExpressionAngry, a.expr)
}

func TestAnimator_WhitespaceCancels(t *testing.T) {
	r := 0.99
	a, _, rec := newManual(&r)

	a.Start("some words", avatar.ExpressionHappy)
	a.Start("   \n\t", avatar.ExpressionHappy)

	assert.False(t, a.Active())
	assert.Empty(t, rec.all(), "cancel alone emits no frame")
}

func TestAnimator_Stop(t *testing.T) {
	r := 0.99
	a, _, rec := newManual(&r)

	a.Start("some words", avatar.ExpressionAngry)
	a.Stop()

	assert.False(t, a.Active())
	f := rec.last()
	assert.Equal(t, avatar.MouthClose, f.MouthShape)
	assert.Equal(t, avatar.EyesOpen, f.EyeState)
	assert.False(t, f.Speaking)
	assert.Equal(t, f, a.Current())
}

func TestAnimator_FeedThrottle(t *testing.T) {
	r := 0.99
	a, clock, _ := newManual(&r)

	assert.True(t, a.Feed("Hi", avatar.ExpressionHappy), "idle animator always starts")
	assert.True(t, a.Feed("Hi the", avatar.ExpressionHappy), "short text always resyncs")

	clock.Advance(100 * time.Millisecond)
	assert.False(t, a.Feed("Hi there, how are", avatar.ExpressionHappy))

	clock.Advance(150 * time.Millisecond)
	assert.True(t, a.Feed("Hi there, how are you", avatar.ExpressionHappy))

	clock.Advance(10 * time.Millisecond)
	assert.False(t, a.Feed("Hi there, how are you today", avatar.ExpressionHappy))
}

func TestAnimator_RealTicker(t *testing.T) {
	rec := &recorder{}
	opts := DefaultOptions()
	opts.TickInterval = 5 * time.Millisecond
	a := New(opts, rec.handle)

	a.Start("a long sentence with many vowels in it", avatar.ExpressionHappy)
	require.Eventually(t, func() bool { return len(rec.all()) >= 3 }, time.Second, 5*time.Millisecond)

	a.Stop()
	assert.False(t, rec.last().Speaking)
	assert.False(t, a.Active())
}

func TestOptionsDefaults(t *testing.T) {
	a := New(Options{}, nil)
	assert.Equal(t, 50*time.Millisecond, a.opts.TickInterval)
	assert.NotNil(t, a.opts.Resolver)
	assert.Equal(t, "/assets/happy_open_eyes_close_mouth.png", a.Current().Asset)
}
