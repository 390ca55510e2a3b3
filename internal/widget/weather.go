package widget

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/temoto/kiosk/helpers"
)

const (
	DefaultWeatherURL     = "https://www.wpc.ncep.noaa.gov/noaa/noaad1.gif?{ts}"
	DefaultWeatherRefresh = 5 * time.Minute
)

type WeatherConfig struct {
	URL        string `hcl:"url"` // {ts} is replaced with refresh bucket start, unix seconds
	RefreshSec int    `hcl:"refresh_sec"`
}

// Weather shows remote map image, refreshed periodically.
type Weather struct {
	url     string
	refresh time.Duration
	now     func() time.Time
}

func NewWeather(config WeatherConfig) *Weather {
	self := &Weather{
		url:     config.URL,
		refresh: helpers.IntSecondDefault(config.RefreshSec, DefaultWeatherRefresh),
		now:     time.Now,
	}
	if self.url == "" {
		self.url = DefaultWeatherURL
	}
	return self
}

func (self *Weather) Descriptor() Descriptor {
	return Descriptor{
		ID:      IDWeather,
		Name:    "US weather map",
		Aliases: []string{"USWeatherMap"},
	}
}

// Locator is stable within one refresh interval, so remount uses cached image.
func (self *Weather) Locator(t time.Time) string {
	bucket := t.Truncate(self.refresh).Unix()
	return strings.Replace(self.url, "{ts}", strconv.FormatInt(bucket, 10), -1)
}

func (self *Weather) Run(ctx context.Context, env Env) error {
	tick := time.NewTicker(self.refresh)
	defer tick.Stop()
	for {
		now := self.now()
		img, err := env.Images.Get(ctx, self.Locator(now))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			env.Log.Errorf("weather err=%v", err)
			env.draw(env.Screen.Text("Failed to load weather image"))
		} else {
			next := now.Truncate(self.refresh).Add(self.refresh)
			env.draw(env.Screen.Show(img, fmt.Sprintf("next %s", next.Format("15:04"))))
		}

		select {
		case <-tick.C:
		case <-ctx.Done():
			return nil
		}
	}
}
