// Package widget defines full-screen applications selected by cartridge or navigation.
// Set of widgets is closed and known at startup, see Builtin.
package widget

import (
	"context"
	"image"
	"image/color"
	"net/http"
	"sort"

	"github.com/juju/errors"
	"github.com/temoto/kiosk/internal/preload"
	"github.com/temoto/kiosk/log2"
)

const (
	IDSatellite = "satellite"
	IDWeather   = "weather"
	IDAircraft  = "aircraft"
	IDAmbient   = "ambient"

	ParamAPIKey = "api_key"
)

type Descriptor struct {
	ID       string
	Name     string
	Aliases  []string
	Requires []string // external parameter names, e.g. api_key
}

type Widget interface {
	Descriptor() Descriptor
	// Run draws until ctx is canceled. Returned error means widget gave up early.
	Run(ctx context.Context, env Env) error
}

// Screen is drawing surface owned by kiosk loop.
type Screen interface {
	Size() image.Point
	Show(img image.Image, caption string) error
	Fill(c color.Color) error
	Text(lines ...string) error
}

// Images is cache-through image access shared by all widgets.
type Images interface {
	Get(ctx context.Context, locator string) (image.Image, error)
}

type Preloader interface {
	Preload(ctx context.Context, providerKey string, opt preload.Options, obs preload.Observer) preload.Progress
}

// Env is everything widget may touch while mounted.
type Env struct {
	Log       *log2.Log
	Params    map[string]string
	Screen    Screen
	Images    Images
	Preloader Preloader
	Observer  preload.Observer // preload progress sink, may be nil
	Transport http.RoundTripper
}

func (env *Env) Param(name string) string { return env.Params[name] }

// draw logs screen error, widget keeps running.
func (env *Env) draw(err error) {
	if err != nil {
		env.Log.Debugf("widget draw err=%v", err)
	}
}

type Registry struct {
	byID map[string]Widget
	ids  []string
}

func NewRegistry(ws ...Widget) (*Registry, error) {
	self := &Registry{byID: make(map[string]Widget, len(ws)*2)}
	for _, w := range ws {
		d := w.Descriptor()
		if d.ID == "" {
			return nil, errors.NotValidf("widget with empty id")
		}
		for _, name := range append([]string{d.ID}, d.Aliases...) {
			if _, ok := self.byID[name]; ok {
				return nil, errors.AlreadyExistsf("widget id=%s", name)
			}
			self.byID[name] = w
		}
		self.ids = append(self.ids, d.ID)
	}
	sort.Strings(self.ids)
	return self, nil
}

// Resolve accepts canonical id or alias.
func (self *Registry) Resolve(id string) (Widget, bool) {
	if self == nil {
		return nil, false
	}
	w, ok := self.byID[id]
	return w, ok
}

func (self *Registry) Descriptor(id string) (Descriptor, bool) {
	if w, ok := self.Resolve(id); ok {
		return w.Descriptor(), true
	}
	return Descriptor{}, false
}

// Canonical maps alias to id, empty if unknown.
func (self *Registry) Canonical(id string) string {
	if d, ok := self.Descriptor(id); ok {
		return d.ID
	}
	return ""
}

func (self *Registry) IDs() []string { return append([]string(nil), self.ids...) }

type Config struct {
	Satellite SatelliteConfig `hcl:"satellite"`
	Weather   WeatherConfig   `hcl:"weather"`
	Aircraft  AircraftConfig  `hcl:"aircraft"`
	Ambient   AmbientConfig   `hcl:"ambient"`
}

func Builtin(config Config) []Widget {
	return []Widget{
		NewSatellite(config.Satellite),
		NewWeather(config.Weather),
		NewAircraft(config.Aircraft),
		NewAmbient(config.Ambient),
	}
}

func MustBuiltinRegistry(config Config) *Registry {
	r, err := NewRegistry(Builtin(config)...)
	if err != nil {
		panic("code error builtin widgets: " + err.Error())
	}
	return r
}
