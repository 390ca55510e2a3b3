// Abstract input events
package input

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/kiosk/internal/types"
	"github.com/temoto/kiosk/log2"
)

// Non-character keys, outside of printable ASCII.
const (
	KeyEnter     types.InputKey = 13
	KeyEscape    types.InputKey = 27
	KeyBackspace types.InputKey = 8
	KeyF5        types.InputKey = 0x105
)

const EmulateSourceTag = "emulate"

func Drain(ch <-chan types.InputEvent) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

type Source interface {
	Read() (types.InputEvent, error)
	String() string
}

type EventFunc func(types.InputEvent)
type sub struct {
	name string
	ch   chan<- types.InputEvent
	fun  EventFunc
	stop <-chan struct{}
}

// Dispatch fans out events from all sources to subscribers.
// Delivery is synchronous: a slow subscriber slows down input, but never loses keys.
type Dispatch struct {
	Log      *log2.Log
	bus      chan types.InputEvent
	mu       sync.Mutex
	subs     map[string]*sub
	stop     <-chan struct{}
	disabled uint32
	now      func() time.Time
}

func NewDispatch(log *log2.Log, stop <-chan struct{}) *Dispatch {
	return &Dispatch{
		Log:  log,
		bus:  make(chan types.InputEvent),
		subs: make(map[string]*sub, 16),
		stop: stop,
		now:  time.Now,
	}
}

// Enable(false) drops events from all sources except Emit with source=emulate.
func (self *Dispatch) Enable(e bool) {
	var v uint32
	if !e {
		v = 1
	}
	atomic.StoreUint32(&self.disabled, v)
	self.Log.Infof("input enable=%t", e)
}

func (self *Dispatch) Enabled() bool { return atomic.LoadUint32(&self.disabled) == 0 }

func (self *Dispatch) SubscribeChan(name string, substop <-chan struct{}) chan types.InputEvent {
	target := make(chan types.InputEvent)
	sub := &sub{
		name: name,
		ch:   target,
		stop: substop,
	}
	self.safeSubscribe(sub)
	return target
}

func (self *Dispatch) SubscribeFunc(name string, fun EventFunc, substop <-chan struct{}) {
	sub := &sub{
		name: name,
		fun:  fun,
		stop: substop,
	}
	self.safeSubscribe(sub)
}

func (self *Dispatch) Unsubscribe(name string) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if sub, ok := self.subs[name]; ok {
		self.subClose(sub)
	} else {
		panic("code error input sub not found name=" + name)
	}
}

func (self *Dispatch) Run(sources []Source) {
	for _, source := range sources {
		go self.readSource(source)
	}

	for {
		select {
		case event := <-self.bus:
			handled := false
			self.mu.Lock()
			for _, sub := range self.subs {
				self.subFire(sub, event)
				handled = true
			}
			self.mu.Unlock()
			if !handled {
				self.Log.Debugf("input is not handled event=%#v", event)
			}

		case <-self.stop:
			Drain(self.bus)
			return
		}
	}
}

// Emit injects event as if it came from a source. Zero At is set to now.
func (self *Dispatch) Emit(event types.InputEvent) {
	if event.At.IsZero() {
		event.At = self.now()
	}
	select {
	case self.bus <- event:
		self.Log.Debugf("input emit=%s key=%q", event.Source, rune(event.Key))
	case <-self.stop:
		return
	}
}

func (self *Dispatch) subFire(sub *sub, event types.InputEvent) {
	select {
	case <-sub.stop:
		self.subClose(sub)
		return
	default:
	}

	if sub.ch == nil && sub.fun == nil {
		panic(fmt.Sprintf("input sub=%s ch=nil fun=nil", sub.name))
	}
	if sub.fun != nil {
		sub.fun(event)
	}
	if sub.ch != nil {
		select {
		case sub.ch <- event:
		case <-sub.stop:
			self.subClose(sub)
		}
	}
}

func (self *Dispatch) subClose(s *sub) {
	if s.ch != nil {
		close(s.ch)
	}
	delete(self.subs, s.name)
}

func (self *Dispatch) safeSubscribe(s *sub) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if existing, ok := self.subs[s.name]; ok {
		select {
		case <-s.stop:
			panic("code error input subscribe already closed name=" + s.name)
		case <-existing.stop:
			self.subClose(existing)
		default:
			panic("code error input duplicate subscribe name=" + s.name)
		}
	}
	self.subs[s.name] = s
}

// readSource stops on source error, other sources keep working.
func (self *Dispatch) readSource(source Source) {
	tag := source.String()
	for {
		event, err := source.Read()
		if err != nil {
			if errors.Cause(err) == io.EOF {
				self.Log.Infof("input source=%s closed", tag)
			} else {
				self.Log.Error(errors.Annotatef(err, "input source=%s", tag))
			}
			return
		}
		if self.Enabled() || event.Source == EmulateSourceTag {
			self.Emit(event)
		} else {
			self.Log.Debugf("input disabled, ignore source=%s key=%q", tag, rune(event.Key))
		}
	}
}
