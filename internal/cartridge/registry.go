// Package cartridge maps digit codes and trigger keys to kiosk actions.
package cartridge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/kiosk/hardware/input"
	"github.com/temoto/kiosk/internal/types"
	"github.com/temoto/kiosk/internal/widget"
)

type Action string

const (
	ActionOpenApp Action = "open_app"
	ActionRefresh Action = "refresh"
)

type Entry struct {
	Code   string `hcl:"code,key"`
	Action string `hcl:"action"` // default open_app
	App    string `hcl:"app"`
	Name   string `hcl:"name"`
}

type TriggerEntry struct {
	Key    string `hcl:"key,key"` // single character or f5, enter, escape, backspace
	Action string `hcl:"action"`
	App    string `hcl:"app"`
}

type Record struct {
	Code   string
	Action Action
	App    string // canonical widget id, empty for refresh
	Name   string
}

func (r Record) String() string {
	if r.Action == ActionOpenApp {
		return fmt.Sprintf("cartridge.%s %s app=%s", r.Code, r.Action, r.App)
	}
	return fmt.Sprintf("cartridge.%s %s", r.Code, r.Action)
}

// Registry is immutable after LoadRegistry.
type Registry struct {
	codes    map[string]Record
	triggers map[types.InputKey]Record
	maxLen   int
}

// LoadRegistry validates entries against widget registry.
// Invalid entries are dropped and reported, valid ones are still usable.
func LoadRegistry(entries []Entry, triggers []TriggerEntry, widgets *widget.Registry) (*Registry, []error) {
	self := &Registry{
		codes:    make(map[string]Record, len(entries)),
		triggers: make(map[types.InputKey]Record, len(triggers)),
	}
	errs := make([]error, 0)

	for _, e := range entries {
		if !isDigits(e.Code) {
			errs = append(errs, errors.NotValidf("cartridge=%q code must be digits", e.Code))
			continue
		}
		rec, err := makeRecord(e.Code, e.Action, e.App, widgets)
		if err != nil {
			errs = append(errs, errors.Annotatef(err, "cartridge=%s", e.Code))
			continue
		}
		if _, ok := self.codes[e.Code]; ok {
			errs = append(errs, errors.AlreadyExistsf("cartridge=%s", e.Code))
			continue
		}
		rec.Name = e.Name
		self.codes[e.Code] = rec
	}
	errs = append(errs, self.dropShadowed()...)
	for _, rec := range self.codes {
		if len(rec.Code) > self.maxLen {
			self.maxLen = len(rec.Code)
		}
	}

	for _, t := range triggers {
		key, err := ParseKey(t.Key)
		if err != nil {
			errs = append(errs, errors.Annotatef(err, "trigger=%s", t.Key))
			continue
		}
		rec, err := makeRecord(t.Key, t.Action, t.App, widgets)
		if err != nil {
			errs = append(errs, errors.Annotatef(err, "trigger=%s", t.Key))
			continue
		}
		if _, ok := self.triggers[key]; ok {
			errs = append(errs, errors.AlreadyExistsf("trigger=%s", t.Key))
			continue
		}
		self.triggers[key] = rec
	}
	return self, errs
}

func makeRecord(code, action, app string, widgets *widget.Registry) (Record, error) {
	rec := Record{Code: code, Action: Action(action)}
	if rec.Action == "" {
		rec.Action = ActionOpenApp
	}
	switch rec.Action {
	case ActionOpenApp:
		rec.App = widgets.Canonical(app)
		if rec.App == "" {
			return rec, errors.NotFoundf("app=%q", app)
		}
	case ActionRefresh:
	default:
		return rec, errors.NotValidf("action=%q", action)
	}
	return rec, nil
}

// dropShadowed removes codes that can never match because a shorter code
// is their prefix: typing prefix activates and clears buffer first.
func (self *Registry) dropShadowed() []error {
	codes := make([]string, 0, len(self.codes))
	for c := range self.codes {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	var errs []error
	for _, long := range codes {
		for _, short := range codes {
			if len(short) < len(long) && strings.HasPrefix(long, short) {
				errs = append(errs, errors.NotValidf("cartridge=%s unreachable, shadowed by %s", long, short))
				delete(self.codes, long)
				break
			}
		}
	}
	return errs
}

// MaxLen is longest registered code, digit buffer bound.
func (self *Registry) MaxLen() int { return self.maxLen }

func (self *Registry) Len() int { return len(self.codes) }

func (self *Registry) Records() []Record {
	rs := make([]Record, 0, len(self.codes))
	for _, r := range self.codes {
		rs = append(rs, r)
	}
	sort.Slice(rs, func(a, b int) bool { return rs[a].Code < rs[b].Code })
	return rs
}

// Resolve is exact lookup, prefixes never match.
func (self *Registry) Resolve(buffer string) Decision {
	rec, ok := self.codes[buffer]
	if !ok {
		return Decision{Kind: DecisionNone}
	}
	return rec.decision()
}

func (self *Registry) ResolveTrigger(key types.InputKey) Decision {
	rec, ok := self.triggers[key]
	if !ok {
		return Decision{Kind: DecisionNone}
	}
	return rec.decision()
}

func (r Record) decision() Decision {
	switch r.Action {
	case ActionOpenApp:
		return Decision{Kind: DecisionActivate, Code: r.Code, Widget: r.App}
	case ActionRefresh:
		return Decision{Kind: DecisionRefresh, Code: r.Code}
	}
	panic("code error cartridge record action=" + string(r.Action))
}

var keyNames = map[string]types.InputKey{
	"enter":     input.KeyEnter,
	"escape":    input.KeyEscape,
	"esc":       input.KeyEscape,
	"backspace": input.KeyBackspace,
	"f5":        input.KeyF5,
}

// ParseKey accepts single non-digit character or key name.
func ParseKey(s string) (types.InputKey, error) {
	if k, ok := keyNames[strings.ToLower(s)]; ok {
		return k, nil
	}
	rs := []rune(s)
	if len(rs) != 1 {
		return 0, errors.NotValidf("key=%q", s)
	}
	if rs[0] >= '0' && rs[0] <= '9' {
		return 0, errors.NotValidf("digit key=%q", s)
	}
	return types.InputKey(rs[0]), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
