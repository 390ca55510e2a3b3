package ui

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/kiosk/internal/preload"
	"github.com/temoto/kiosk/internal/selector"
	"github.com/temoto/kiosk/internal/types"
	"github.com/temoto/kiosk/internal/widget"
)

type State uint32

const (
	StateDefault State = iota

	StateBoot   // t=start +navigate(config start) ->route
	StateIdle   // t=input/state/reload +state=route
	StateWidget // t=input/state/reload/widget +state=route +reload=Widget +widgetError=Error
	StateError  // t=timeout/input/state +timeout=clear,Idle +state=route

	StateStop
)

func (s State) String() string {
	switch s {
	case StateDefault:
		return "Default"
	case StateBoot:
		return "Boot"
	case StateIdle:
		return "Idle"
	case StateWidget:
		return "Widget"
	case StateError:
		return "Error"
	case StateStop:
		return "Stop"
	}
	return fmt.Sprintf("State(%d)", uint32(s))
}

func (self *UI) State() State               { return State(atomic.LoadUint32((*uint32)(&self.state))) }
func (self *UI) setState(new State)         { atomic.StoreUint32((*uint32)(&self.state), uint32(new)) }
func (self *UI) XXX_testSetState(new State) { self.setState(new) }

func (self *UI) Loop(ctx context.Context) {
	if !self.g.Alive.Add(1) {
		return
	}
	defer self.g.Alive.Done()
	defer self.cleanup()
	next := StateDefault
	for next != StateStop && self.g.Alive.IsRunning() {
		current := self.State()
		next = self.enter(ctx, current)
		if next == StateDefault {
			self.g.Log.Fatalf("ui state=%s next=default", current.String())
		}
		self.exit(ctx, current, next)

		if !self.g.Alive.IsRunning() {
			self.g.Log.Debugf("ui Loop stopping because g.Alive")
			next = StateStop
		}

		self.setState(next)
		if self.XXX_testHook != nil {
			self.XXX_testHook(next)
		}
	}
	self.g.Log.Debugf("ui loop end")
}

func (self *UI) enter(ctx context.Context, s State) State {
	self.g.Log.Debugf("ui enter %s", s.String())
	switch s {
	case StateBoot:
		if self.config.Start != "" {
			st := self.g.Selector.Navigate(self.config.Start)
			self.g.Log.Infof("ui start=%q state=%s", self.config.Start, st.String())
		}
		return self.route()

	case StateIdle:
		self.routed = self.g.Selector.Current()
		self.g.Tele.State(self.routed)
		self.showIdle(self.routed)
		for {
			e := self.wait(idlePoll)
			switch e.Kind {
			case types.EventInput:
				self.feed(e.Input)
			case types.EventState:
				return self.route()
			case types.EventReload:
				self.showIdle(self.routed)
			case types.EventStop:
				return StateStop
			}
		}

	case StateWidget:
		self.routed = self.g.Selector.Current()
		r := self.resolve(self.routed)
		if !r.Ok() {
			return StateIdle
		}
		self.g.Tele.State(self.routed)
		self.mountWidget(ctx, r)
		for {
			e := self.wait(idlePoll)
			switch e.Kind {
			case types.EventInput:
				self.feed(e.Input)
			case types.EventState:
				return self.route()
			case types.EventReload:
				return StateWidget
			case types.EventWidget:
				if self.mount.err != nil {
					return StateError
				}
				// widget finished drawing, frame stays until next state
				self.g.Log.Debugf("ui widget=%s finished", self.mount.id)
			case types.EventStop:
				return StateStop
			}
		}

	case StateError:
		err := errors.Annotatef(self.mount.err, "widget=%s", self.mount.id)
		self.g.Error(err)
		if e := self.Screen.Text(self.config.MsgError, errorLine(self.mount.err)); e != nil {
			self.g.Log.Errorf("ui error screen err=%v", e)
		}
		for {
			e := self.wait(self.errorTimeout)
			switch e.Kind {
			case types.EventInput:
				self.feed(e.Input)
			case types.EventState, types.EventReload:
				return self.route()
			case types.EventTime:
				self.g.Selector.Clear()
				return StateIdle
			case types.EventStop:
				return StateStop
			}
		}

	case StateStop:
		return StateStop

	default:
		self.g.Log.Fatalf("unhandled ui state=%s", s.String())
		return StateDefault
	}
}

func (self *UI) exit(ctx context.Context, current, next State) {
	self.g.Log.Debugf("ui exit %s -> %s activity_ago=%v", current.String(), next.String(), self.SinceActivity())

	if current == StateWidget {
		self.unmount()
	}
	if next != StateError {
		self.mount.err = nil
	}
}

func (self *UI) resolve(s selector.State) selector.Resolution {
	return selector.Resolve(s, self.g.Widgets, self.g.WidgetDefaults())
}

func (self *UI) route() State {
	r := self.resolve(self.g.Selector.Current())
	if r.Ok() {
		return StateWidget
	}
	return StateIdle
}

func (self *UI) showIdle(s selector.State) {
	var err error
	if r := self.resolve(s); r.Widget != nil && len(r.Missing) != 0 {
		self.g.Log.Infof("ui widget=%s missing params=%v", r.Descriptor.ID, r.Missing)
		err = self.Screen.Text(fmt.Sprintf(self.config.MsgMissing, r.Descriptor.Name), strings.Join(r.Missing, ", "))
	} else {
		err = self.Screen.Idle(self.config.IdleText, self.config.IdleQR)
	}
	if err != nil {
		self.g.Log.Errorf("ui idle screen err=%v", err)
	}
}

func (self *UI) mountWidget(ctx context.Context, r selector.Resolution) {
	params := make(map[string]string)
	for k, v := range self.g.WidgetDefaults() {
		params[k] = v
	}
	for k, v := range self.routed.Params {
		params[k] = v
	}
	for k, v := range r.Params {
		params[k] = v
	}
	env := widget.Env{
		Log:       self.g.Log,
		Params:    params,
		Screen:    self.Screen,
		Images:    self.g.Prefetcher,
		Preloader: self.g.Prefetcher,
		Observer:  preload.Observers{self.g.Progress, self.g.Tele},
		Transport: self.g.Transport,
	}
	wctx, cancel := context.WithCancel(ctx)
	m := mount{
		id:       r.Descriptor.ID,
		cancel:   cancel,
		done:     make(chan error, 1),
		finished: make(chan struct{}),
	}
	self.mount = m
	self.g.Log.Infof("ui mount widget=%s state=%s", m.id, self.routed.String())
	go func() {
		defer close(m.finished)
		m.done <- r.Widget.Run(wctx, env)
	}()
}

// unmount cancels widget and waits, so two widgets never draw at once.
func (self *UI) unmount() {
	m := &self.mount
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.cancel = nil
	select {
	case <-m.finished:
	case <-time.After(unmountTimeout):
		self.g.Log.Errorf("ui widget=%s did not stop in %v", m.id, unmountTimeout)
	}
	m.done = nil
}

func (self *UI) cleanup() {
	self.unmount()
	self.recognizer.Stop()
	// input subscription is closed by g.Alive stop
	self.g.Selector.Unsubscribe("ui")
}

func errorLine(err error) string {
	if err == nil {
		return ""
	}
	s := errors.Cause(err).Error()
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
