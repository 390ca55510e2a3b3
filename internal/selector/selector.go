// Package selector owns active widget state.
// Cartridge matches and addressable state (navigate requests) both write it,
// whichever happened last wins.
package selector

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/kiosk/internal/widget"
	"github.com/temoto/kiosk/log2"
)

type Source uint8

const (
	SourceNone Source = iota
	SourceCartridge
	SourceAddress
)

func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceCartridge:
		return "cartridge"
	case SourceAddress:
		return "address"
	}
	return fmt.Sprintf("Source(%d)", s)
}

type State struct {
	Source Source            `json:"source"`
	Widget string            `json:"widget,omitempty"`
	Code   string            `json:"code,omitempty"`
	Params map[string]string `json:"-"` // from navigate request
	Seq    uint64            `json:"seq"`
	At     time.Time         `json:"at"`
}

func (s State) IsNone() bool { return s.Source == SourceNone }

func (s State) String() string {
	switch s.Source {
	case SourceCartridge:
		return fmt.Sprintf("cartridge(%s,%s)", s.Code, s.Widget)
	case SourceAddress:
		return fmt.Sprintf("address(%s)", s.Widget)
	}
	return "none"
}

// ParseRequest accepts url query `app=satellite&api_key=K`, `?app=...`,
// full URL or bare widget id. Returns app and remaining params.
func ParseRequest(request string) (string, map[string]string) {
	request = strings.TrimSpace(request)
	if request == "" {
		return "", nil
	}
	if !strings.ContainsAny(request, "=?&") {
		return request, nil
	}
	if i := strings.IndexByte(request, '?'); i >= 0 {
		request = request[i+1:]
	}
	q, err := url.ParseQuery(request)
	if err != nil {
		return "", nil
	}
	params := make(map[string]string, len(q))
	for k, vs := range q {
		if k == "app" || len(vs) == 0 {
			continue
		}
		params[k] = vs[0]
	}
	return q.Get("app"), params
}

type sub struct {
	ch chan State
}

type Selector struct {
	mu      sync.Mutex
	log     *log2.Log
	widgets *widget.Registry
	current State
	subs    map[string]*sub
	now     func() time.Time
}

func New(widgets *widget.Registry, log *log2.Log) *Selector {
	return &Selector{
		log:     log,
		widgets: widgets,
		subs:    make(map[string]*sub),
		now:     time.Now,
	}
}

func (self *Selector) Current() State {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.current
}

// Navigate always overrides current state. Unknown or missing app yields none.
func (self *Selector) Navigate(request string) State {
	app, params := ParseRequest(request)
	id := self.widgets.Canonical(app)
	next := State{Source: SourceAddress, Widget: id, Params: params}
	if id == "" {
		if app != "" {
			self.log.Infof("selector navigate unknown app=%q", app)
		}
		next = State{Params: params}
	}
	return self.set(next)
}

// Activate sets cartridge state. Unknown widget leaves state unchanged.
func (self *Selector) Activate(code, widgetID string) (State, bool) {
	id := self.widgets.Canonical(widgetID)
	self.mu.Lock()
	defer self.mu.Unlock()
	if id == "" {
		self.log.Errorf("selector activate unknown widget=%q code=%s", widgetID, code)
		return self.current, false
	}
	// keep navigate params, api_key usually comes from page address
	return self.setLocked(State{Source: SourceCartridge, Widget: id, Code: code, Params: self.current.Params}), true
}

// ActivateCartridge adapts Activate for cartridge.Recognizer.
func (self *Selector) ActivateCartridge(code, widgetID string) bool {
	_, ok := self.Activate(code, widgetID)
	return ok
}

// Clear returns to none, e.g. after widget failure.
func (self *Selector) Clear() State { return self.set(State{}) }

func (self *Selector) set(next State) State {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.setLocked(next)
}

func (self *Selector) setLocked(next State) State {
	next.Seq = self.current.Seq + 1
	next.At = self.now()
	self.current = next
	self.log.Debugf("selector state=%s seq=%d", next.String(), next.Seq)
	for _, s := range self.subs {
		offer(s.ch, next)
	}
	return next
}

// offer replaces stale pending value, subscriber always sees latest state.
func offer(ch chan State, s State) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe returns channel of state changes, latest wins, never blocks Selector.
// Channel is closed by Unsubscribe.
func (self *Selector) Subscribe(name string) <-chan State {
	self.mu.Lock()
	defer self.mu.Unlock()
	if _, ok := self.subs[name]; ok {
		panic("code error selector duplicate subscribe name=" + name)
	}
	s := &sub{ch: make(chan State, 1)}
	self.subs[name] = s
	return s.ch
}

func (self *Selector) Unsubscribe(name string) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if s, ok := self.subs[name]; ok {
		close(s.ch)
		delete(self.subs, name)
	}
}
