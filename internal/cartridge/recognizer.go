package cartridge

import (
	"fmt"

	"github.com/temoto/kiosk/internal/keypad"
	"github.com/temoto/kiosk/internal/types"
	"github.com/temoto/kiosk/log2"
)

type DecisionKind uint8

const (
	DecisionNone DecisionKind = iota
	DecisionRefresh
	DecisionActivate
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionNone:
		return "none"
	case DecisionRefresh:
		return "refresh"
	case DecisionActivate:
		return "activate"
	}
	return fmt.Sprintf("DecisionKind(%d)", k)
}

type Decision struct {
	Kind   DecisionKind
	Code   string
	Widget string
}

func (d Decision) String() string {
	switch d.Kind {
	case DecisionActivate:
		return fmt.Sprintf("activate code=%s widget=%s", d.Code, d.Widget)
	case DecisionRefresh:
		return fmt.Sprintf("refresh code=%s", d.Code)
	}
	return d.Kind.String()
}

type Activator interface {
	ActivateCartridge(code, widgetID string) bool
}

type Reloader interface {
	Reload(reason string) error
}

// Recognizer is keystroke automaton: debouncer + registry + side effects.
// Not safe for concurrent Feed, call from single input goroutine.
type Recognizer struct {
	log       *log2.Log
	debouncer *keypad.Debouncer
	registry  *Registry
	activator Activator
	reloader  Reloader
}

func NewRecognizer(registry *Registry, debouncer *keypad.Debouncer, activator Activator, reloader Reloader, log *log2.Log) *Recognizer {
	return &Recognizer{
		log:       log,
		debouncer: debouncer,
		registry:  registry,
		activator: activator,
		reloader:  reloader,
	}
}

func (self *Recognizer) Buffer() string { return self.debouncer.Buffer() }

func (self *Recognizer) Reset() { self.debouncer.Reset() }

func (self *Recognizer) Stop() { self.debouncer.Stop() }

// Feed processes one key. Every digit append is resolved immediately,
// so fast bursts match exactly like slow typing.
func (self *Recognizer) Feed(e types.InputEvent) Decision {
	buf, changed := self.debouncer.Feed(e)
	var d Decision
	if e.IsDigit() {
		if !changed {
			return Decision{}
		}
		d = self.registry.Resolve(buf)
	} else {
		d = self.registry.ResolveTrigger(e.Key)
	}

	switch d.Kind {
	case DecisionNone:
		return d

	case DecisionActivate:
		self.debouncer.Reset()
		self.log.Infof("cartridge %s", d.String())
		if self.activator != nil && !self.activator.ActivateCartridge(d.Code, d.Widget) {
			self.log.Errorf("cartridge activate rejected code=%s widget=%s", d.Code, d.Widget)
		}

	case DecisionRefresh:
		self.log.Infof("cartridge %s", d.String())
		if self.reloader != nil {
			if err := self.reloader.Reload("cartridge " + d.Code); err != nil {
				self.log.Error(err)
			}
		}
	}
	return d
}
