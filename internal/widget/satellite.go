package widget

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/kiosk/helpers"
	"github.com/temoto/kiosk/internal/preload"
)

const DefaultSatelliteInterval = 2 * time.Second

type SatelliteConfig struct {
	IntervalMs int `hcl:"interval_ms"`
}

// Satellite preloads provider imagery and cycles through it.
type Satellite struct {
	interval time.Duration
}

func NewSatellite(config SatelliteConfig) *Satellite {
	return &Satellite{interval: helpers.IntMillisecondDefault(config.IntervalMs, DefaultSatelliteInterval)}
}

func (self *Satellite) Descriptor() Descriptor {
	return Descriptor{
		ID:       IDSatellite,
		Name:     "Whole Earth satellite image",
		Aliases:  []string{"WholeEarthSatelliteImage"},
		Requires: []string{ParamAPIKey},
	}
}

func (self *Satellite) Run(ctx context.Context, env Env) error {
	key := env.Param(ParamAPIKey)
	if key == "" {
		return errors.NotValidf("%s is required", ParamAPIKey)
	}
	env.draw(env.Screen.Text("Loading"))
	obs := preload.Observers{
		preload.ObserverFunc(func(p preload.Progress) {
			if p.IsLoading && p.Total != 0 {
				env.draw(env.Screen.Text(fmt.Sprintf("Loading %d%%", p.Loaded*100/p.Total)))
			}
		}),
		env.Observer,
	}
	final := env.Preloader.Preload(ctx, key, preload.Options{}, obs)
	if ctx.Err() != nil {
		return nil
	}
	frames := loadedLocators(final)
	if len(frames) == 0 {
		msg := "no images"
		if n := len(final.Events); n != 0 {
			msg = final.Events[n-1].Message
		}
		return errors.Errorf("satellite %s", msg)
	}
	env.Log.Debugf("satellite frames=%d interval=%v", len(frames), self.interval)

	i := 0
	self.show(ctx, env, frames[i])
	tick := time.NewTicker(self.interval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			i = (i + 1) % len(frames)
			self.show(ctx, env, frames[i])
		case <-ctx.Done():
			return nil
		}
	}
}

func (self *Satellite) show(ctx context.Context, env Env, locator string) {
	img, err := env.Images.Get(ctx, locator)
	if err != nil {
		env.Log.Debugf("satellite frame skip err=%v", err)
		return
	}
	caption := ""
	if t, ok := captureTime(locator); ok {
		caption = t.Format("January 2, 2006 15:04")
	}
	env.draw(env.Screen.Show(img, caption))
}

// loadedLocators keeps listing order, drops items with error event.
func loadedLocators(p preload.Progress) []string {
	failed := make(map[string]struct{})
	for _, e := range p.Events {
		if e.Status == preload.StatusError && e.Locator != "" {
			failed[e.Locator] = struct{}{}
		}
	}
	result := make([]string, 0, len(p.Locators))
	for _, l := range p.Locators {
		if _, ok := failed[l]; !ok {
			result = append(result, l)
		}
	}
	return result
}

var reCaptureTime = regexp.MustCompile(`(\d{8})(\d{6})(?:\.\w+)?$`)

// captureTime parses image identifiers like epic_1b_20250703000830.
func captureTime(locator string) (time.Time, bool) {
	path := locator
	if u, err := url.Parse(locator); err == nil {
		path = u.Path
	}
	m := reCaptureTime.FindStringSubmatch(path)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102150405", m[1]+m[2])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
