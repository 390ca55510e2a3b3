package selector

import (
	"github.com/temoto/kiosk/internal/widget"
)

type Resolution struct {
	Widget     widget.Widget // nil = idle screen
	Descriptor widget.Descriptor
	Params     map[string]string // required parameter values
	Missing    []string
}

func (r *Resolution) Ok() bool { return r.Widget != nil && len(r.Missing) == 0 }

// Resolve is pure: same inputs give same output and nothing is mutated.
// State params take priority over defaults (configured parameters).
func Resolve(s State, widgets *widget.Registry, defaults map[string]string) Resolution {
	if s.IsNone() {
		return Resolution{}
	}
	w, ok := widgets.Resolve(s.Widget)
	if !ok {
		return Resolution{}
	}
	d := w.Descriptor()
	r := Resolution{
		Widget:     w,
		Descriptor: d,
		Params:     make(map[string]string, len(d.Requires)),
	}
	for _, name := range d.Requires {
		v := s.Params[name]
		if v == "" {
			v = defaults[name]
		}
		if v == "" {
			r.Missing = append(r.Missing, name)
			continue
		}
		r.Params[name] = v
	}
	return r
}
