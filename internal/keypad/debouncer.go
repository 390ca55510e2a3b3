// Package keypad turns raw key events into digit buffer values.
//
// Buffer is cleared when:
// - keypress gap since previous key (any key, digit or not) reaches Gap
// - no digit appended for Idle (watchdog)
// - owner calls Reset, e.g. after successful cartridge match
package keypad

import (
	"sync"
	"time"

	"github.com/temoto/kiosk/helpers"
	"github.com/temoto/kiosk/internal/types"
	"github.com/temoto/kiosk/log2"
)

const (
	DefaultGap  = 2000 * time.Millisecond
	DefaultIdle = 3000 * time.Millisecond
)

type Config struct {
	GapMs  int `hcl:"gap_ms"`
	IdleMs int `hcl:"idle_ms"`
}

type Debouncer struct {
	mu       sync.Mutex
	clock    Clock
	log      *log2.Log
	gap      time.Duration
	idle     time.Duration
	maxLen   int
	buf      []byte
	lastKey  time.Time
	watchdog Timer
	gen      uint64

	// OnIdle is called (outside of lock) after watchdog cleared non-empty buffer.
	OnIdle func()
}

// NewDebouncer maxLen<=0 means unbounded buffer.
// Digits past maxLen are refused and only rearm idle watchdog.
func NewDebouncer(config Config, maxLen int, clock Clock, log *log2.Log) *Debouncer {
	if clock == nil {
		clock = SystemClock()
	}
	return &Debouncer{
		clock:  clock,
		log:    log,
		gap:    helpers.IntMillisecondDefault(config.GapMs, DefaultGap),
		idle:   helpers.IntMillisecondDefault(config.IdleMs, DefaultIdle),
		maxLen: maxLen,
		buf:    make([]byte, 0, 16),
	}
}

// Feed processes one key event.
// Returns current buffer and changed=true if a digit was appended,
// so every intermediate value is a candidate match.
func (self *Debouncer) Feed(e types.InputEvent) (string, bool) {
	at := e.At
	if at.IsZero() {
		at = self.clock.Now()
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	if !self.lastKey.IsZero() && at.Sub(self.lastKey) >= self.gap && len(self.buf) != 0 {
		self.log.Debugf("keypad gap=%v drop buffer=%s", at.Sub(self.lastKey), self.buf)
		self.resetLocked()
	}
	self.lastKey = at

	if !e.IsDigit() {
		return string(self.buf), false
	}

	if self.maxLen > 0 && len(self.buf) >= self.maxLen {
		// longer buffer can not match any code, keep it unchanged until gap or idle clears it
		self.rearmLocked()
		return string(self.buf), false
	}
	self.buf = append(self.buf, byte(e.Key))
	self.rearmLocked()
	return string(self.buf), true
}

func (self *Debouncer) Buffer() string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return string(self.buf)
}

func (self *Debouncer) Reset() {
	self.mu.Lock()
	self.resetLocked()
	self.mu.Unlock()
}

// Stop cancels pending watchdog, debouncer remains usable.
func (self *Debouncer) Stop() { self.Reset() }

func (self *Debouncer) resetLocked() {
	self.buf = self.buf[:0]
	self.gen++
	if self.watchdog != nil {
		self.watchdog.Stop()
		self.watchdog = nil
	}
}

func (self *Debouncer) rearmLocked() {
	if self.watchdog != nil {
		self.watchdog.Stop()
	}
	self.gen++
	gen := self.gen
	self.watchdog = self.clock.AfterFunc(self.idle, func() { self.expire(gen) })
}

func (self *Debouncer) expire(gen uint64) {
	self.mu.Lock()
	if gen != self.gen {
		// rearmed or reset after this timer was scheduled
		self.mu.Unlock()
		return
	}
	cleared := len(self.buf) != 0
	if cleared {
		self.log.Debugf("keypad idle drop buffer=%s", self.buf)
	}
	self.buf = self.buf[:0]
	self.watchdog = nil
	self.gen++
	self.mu.Unlock()

	if cleared && self.OnIdle != nil {
		self.OnIdle()
	}
}
