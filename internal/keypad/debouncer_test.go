package keypad

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/temoto/kiosk/internal/types"
	"github.com/temoto/kiosk/log2"
)

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	pending bool
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	was := t.pending
	t.pending = false
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f, pending: true}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	due := make([]func(), 0)
	for _, t := range c.timers {
		if t.pending && !t.at.After(c.now) {
			t.pending = false
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if t.pending {
			n++
		}
	}
	return n
}

type tenv struct {
	clock *fakeClock
	d     *Debouncer
}

func newTestEnv(t testing.TB, maxLen int) *tenv {
	clock := newFakeClock()
	return &tenv{
		clock: clock,
		d:     NewDebouncer(Config{}, maxLen, clock, log2.NewTest(t, log2.LDebug)),
	}
}

// key advances clock by gap, then feeds key stamped with current time
func (env *tenv) key(k rune, gap time.Duration) (string, bool) {
	env.clock.Advance(gap)
	return env.d.Feed(types.InputEvent{Source: "test", Key: types.InputKey(k), At: env.clock.Now()})
}

func TestGapStartsNewCode(t *testing.T) {
	t.Parallel()

	for _, gap := range []time.Duration{2000 * time.Millisecond, 2999 * time.Millisecond} {
		env := newTestEnv(t, 0)
		for _, k := range "73921" {
			buf, changed := env.key(k, gap)
			assert.True(t, changed)
			assert.Equal(t, string(k), buf, "gap=%v", gap)
		}
	}
}

func TestShortGapAccumulates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	expect := ""
	for _, k := range "0123456789" {
		buf, changed := env.key(k, 1999*time.Millisecond)
		expect += string(k)
		assert.True(t, changed)
		assert.Equal(t, expect, buf)
	}
}

func TestBurstKeepsEveryIntermediateValue(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	values := make([]string, 0, 4)
	for _, k := range "1234" {
		buf, _ := env.key(k, 0)
		values = append(values, buf)
	}
	assert.Equal(t, []string{"1", "12", "123", "1234"}, values)
}

func TestIdleWatchdog(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	idleCalls := 0
	env.d.OnIdle = func() { idleCalls++ }

	env.key('1', 0)
	env.key('2', 100*time.Millisecond)
	env.clock.Advance(2999 * time.Millisecond)
	assert.Equal(t, "12", env.d.Buffer())
	env.clock.Advance(time.Millisecond)
	assert.Equal(t, "", env.d.Buffer())
	assert.Equal(t, 1, idleCalls)
	assert.Equal(t, 0, env.clock.Pending())
}

func TestWatchdogRearm(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	env.key('4', 0)
	env.key('2', 1500*time.Millisecond)
	env.clock.Advance(1500 * time.Millisecond) // 3000 since first digit
	assert.Equal(t, "42", env.d.Buffer())
	env.clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, "", env.d.Buffer())
}

func TestWatchdogSingleTimer(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	for i := 0; i < 50; i++ {
		env.key('5', 10*time.Millisecond)
		assert.Equal(t, 1, env.clock.Pending())
	}
	env.d.Reset()
	assert.Equal(t, 0, env.clock.Pending())
	assert.Equal(t, "", env.d.Buffer())
}

func TestNonDigit(t *testing.T) {
	t.Parallel()

	t.Run("ignored-updates-last-key", func(t *testing.T) {
		env := newTestEnv(t, 0)
		env.key('1', 0)
		buf, changed := env.key('#', 1500*time.Millisecond)
		assert.False(t, changed)
		assert.Equal(t, "1", buf)
		// 2500ms since '1' but only 1000ms since '#'
		buf, changed = env.key('2', 1000*time.Millisecond)
		assert.True(t, changed)
		assert.Equal(t, "12", buf)
	})
	t.Run("gap-applies", func(t *testing.T) {
		env := newTestEnv(t, 0)
		env.key('1', 0)
		buf, changed := env.key('*', 2100*time.Millisecond)
		assert.False(t, changed)
		assert.Equal(t, "", buf)
	})
}

func TestMaxLen(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 4)
	var buf string
	var changed bool
	for i, k := range "123456" {
		buf, changed = env.key(k, 10*time.Millisecond)
		assert.Equal(t, i < 4, changed, "key=%c", k)
	}
	assert.Equal(t, "1234", buf)
	// refused digit still extends idle watchdog
	env.key('7', 1500*time.Millisecond)
	env.clock.Advance(1600 * time.Millisecond)
	assert.Equal(t, "1234", env.d.Buffer())
	env.clock.Advance(1400 * time.Millisecond)
	assert.Equal(t, "", env.d.Buffer())

	unbounded := newTestEnv(t, 0)
	for _, k := range "123456" {
		buf, _ = unbounded.key(k, 10*time.Millisecond)
	}
	assert.Equal(t, "123456", buf)
}

func TestStaleTimerIgnored(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, 0)
	env.key('1', 0)
	// timer callback from before Reset must not clear new input
	stale := env.clock.timers[0].f
	env.d.Reset()
	env.key('8', 10*time.Millisecond)
	stale()
	assert.Equal(t, "8", env.d.Buffer())
}
