// Package ui is kiosk loop: feeds keys to cartridge recognizer,
// mounts widget selected by selector, shows idle screen otherwise.
package ui

import (
	"context"
	"image"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/atomic_clock"
	"github.com/temoto/kiosk/hardware/display"
	"github.com/temoto/kiosk/helpers"
	"github.com/temoto/kiosk/internal/cartridge"
	"github.com/temoto/kiosk/internal/keypad"
	"github.com/temoto/kiosk/internal/selector"
	"github.com/temoto/kiosk/internal/state"
	"github.com/temoto/kiosk/internal/types"
	ui_config "github.com/temoto/kiosk/internal/ui/config"
	"github.com/temoto/kiosk/internal/widget"
)

const (
	DefaultErrorTimeout = 5 * time.Second
	DefaultMsgError     = "Something went wrong"
	DefaultMsgMissing   = "%s is not configured"

	unmountTimeout = 5 * time.Second
	idlePoll       = time.Minute
)

// headless canvas when no display is configured
var headlessSize = image.Point{X: 320, Y: 240}

type Screen interface {
	widget.Screen
	Idle(text, qrText string) error
}

type UI struct {
	// Screen defaults to g.Display()
	Screen Screen

	config       *ui_config.Config
	g            *state.Global
	state        State
	recognizer   *cartridge.Recognizer
	lastActivity *atomic_clock.Clock
	inputch      chan types.InputEvent
	statech      <-chan selector.State
	reloadch     chan string
	routed       selector.State
	mount        mount
	errorTimeout time.Duration

	XXX_testHook func(State)
}

type mount struct {
	id       string
	cancel   context.CancelFunc
	done     chan error
	finished chan struct{}
	err      error
}

func (self *UI) Init(ctx context.Context) error {
	self.g = state.GetGlobal(ctx)
	self.config = &self.g.Config.Kiosk
	self.setState(StateBoot)

	if self.config.MsgError == "" {
		self.config.MsgError = DefaultMsgError
	}
	if self.config.MsgMissing == "" {
		self.config.MsgMissing = DefaultMsgMissing
	}
	self.errorTimeout = helpers.IntSecondDefault(self.config.ErrorSec, DefaultErrorTimeout)

	if self.Screen == nil {
		d, err := self.g.Display()
		if err != nil {
			return errors.Annotate(err, "ui display")
		}
		if d == nil {
			self.g.Log.Infof("ui display is not configured, drawing headless size=%v", headlessSize)
			d = display.NewMock(headlessSize)
		}
		self.Screen = d
	}

	debouncer := keypad.NewDebouncer(self.g.Config.Keypad, self.g.Cartridges.MaxLen(), nil, self.g.Log)
	self.recognizer = cartridge.NewRecognizer(self.g.Cartridges, debouncer, self.g.Selector, self.g, self.g.Log)
	self.lastActivity = atomic_clock.Now()
	self.reloadch = make(chan string, 1)
	self.inputch = self.g.Hardware.Input.SubscribeChan("ui", self.g.Alive.StopChan())
	self.statech = self.g.Selector.Subscribe("ui")
	return nil
}

// Reload remounts current widget. Pending reloads are coalesced.
func (self *UI) Reload(reason string) error {
	select {
	case self.reloadch <- reason:
	default:
		self.g.Log.Debugf("ui reload already pending, skip reason=%s", reason)
	}
	return nil
}

func (self *UI) SinceActivity() time.Duration { return atomic_clock.Since(self.lastActivity) }

func (self *UI) wait(timeout time.Duration) types.Event {
	tmr := time.NewTimer(timeout)
	defer tmr.Stop()
again:
	select {
	case e, ok := <-self.inputch:
		if !ok {
			return types.Event{Kind: types.EventStop}
		}
		if e.Up {
			goto again
		}
		self.lastActivity.SetNow()
		return types.Event{Kind: types.EventInput, Input: e}

	case s, ok := <-self.statech:
		if !ok {
			self.statech = nil
			goto again
		}
		// already routed by current state
		if s.Seq <= self.routed.Seq {
			goto again
		}
		return types.Event{Kind: types.EventState}

	case reason := <-self.reloadch:
		self.g.Log.Infof("ui reload reason=%s", reason)
		return types.Event{Kind: types.EventReload}

	case err := <-self.mount.done:
		self.mount.done = nil
		self.mount.err = err
		return types.Event{Kind: types.EventWidget}

	case <-tmr.C:
		return types.Event{Kind: types.EventTime}

	case <-self.g.Alive.StopChan():
		return types.Event{Kind: types.EventStop}
	}
}

func (self *UI) feed(e types.InputEvent) {
	d := self.recognizer.Feed(e)
	if d.Kind != cartridge.DecisionNone {
		self.g.Log.Debugf("ui input=%s decision=%s", e.Char(), d.String())
	}
}
