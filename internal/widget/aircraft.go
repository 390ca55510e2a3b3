package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/kiosk/helpers"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultAircraftPoll   = 5 * time.Second
	DefaultAircraftRadius = 30.0 // nautical miles, used for scale when provider omits radius
	nmPerDegree           = 60.0
)

var (
	aircraftColor = color.RGBA{47, 255, 54, 255}
	aircraftDim   = color.RGBA{47, 255, 54, 60}
)

type AircraftConfig struct {
	URL     string  `hcl:"url"` // {key} is replaced with api_key
	PollSec int     `hcl:"poll_sec"`
	Lat     float64 `hcl:"lat"` // fallback center
	Lon     float64 `hcl:"lon"`
}

// Aircraft plots nearby aircraft around provider supplied location.
type Aircraft struct {
	url    string
	poll   time.Duration
	center [2]float64
}

func NewAircraft(config AircraftConfig) *Aircraft {
	self := &Aircraft{
		url:    config.URL,
		poll:   helpers.IntSecondDefault(config.PollSec, DefaultAircraftPoll),
		center: [2]float64{config.Lat, config.Lon},
	}
	if self.center == [2]float64{} {
		self.center = [2]float64{40.7128, -74.006}
	}
	return self
}

func (self *Aircraft) Descriptor() Descriptor {
	return Descriptor{
		ID:       IDAircraft,
		Name:     "Aircraft overhead",
		Aliases:  []string{"AircraftOverhead"},
		Requires: []string{ParamAPIKey},
	}
}

type Plane struct {
	ID       string   `json:"id"`
	Flight   string   `json:"flight"`
	Type     string   `json:"type"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Altitude *float64 `json:"altitude"`
	Speed    *float64 `json:"speed"`
	Heading  float64  `json:"heading"`
}

type AircraftReport struct {
	Aircraft []Plane `json:"aircraft"`
	Metadata struct {
		Location *struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		Radius *struct {
			Value float64 `json:"value"`
		} `json:"radius"`
	} `json:"metadata"`
}

func (self *Aircraft) Run(ctx context.Context, env Env) error {
	key := env.Param(ParamAPIKey)
	if key == "" {
		return errors.NotValidf("%s is required", ParamAPIKey)
	}
	if self.url == "" {
		return errors.NotValidf("aircraft url is not configured")
	}
	u := strings.Replace(self.url, "{key}", url.QueryEscape(key), -1)
	client := &http.Client{Transport: env.Transport, Timeout: self.poll}
	env.draw(env.Screen.Text("Loading"))

	tick := time.NewTicker(self.poll)
	defer tick.Stop()
	for {
		report, err := fetchAircraft(ctx, client, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// keep last frame, try again next poll
			env.Log.Errorf("aircraft err=%v", err)
		} else {
			img := self.Render(env.Screen.Size(), report)
			env.draw(env.Screen.Show(img, fmt.Sprintf("%d aircraft", countPositioned(report.Aircraft))))
		}

		select {
		case <-tick.C:
		case <-ctx.Done():
			return nil
		}
	}
}

func fetchAircraft(ctx context.Context, client *http.Client, u string) (*AircraftReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("aircraft status=%d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.Trace(err)
	}
	report := &AircraftReport{}
	if err := json.Unmarshal(b, report); err != nil {
		return nil, errors.Annotate(err, "aircraft parse")
	}
	return report, nil
}

func countPositioned(ps []Plane) int {
	n := 0
	for _, p := range ps {
		if p.Lat != 0 && p.Lon != 0 {
			n++
		}
	}
	return n
}

// Render draws range ring and plane markers with labels on black background.
func (self *Aircraft) Render(size image.Point, report *AircraftReport) *image.RGBA {
	img := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(img, img.Bounds(), image.Black, image.Point{}, draw.Src)
	if size.X == 0 || size.Y == 0 {
		return img
	}

	clat, clon := self.center[0], self.center[1]
	if loc := report.Metadata.Location; loc != nil {
		clat, clon = loc.Lat, loc.Lng
	}
	radius := DefaultAircraftRadius
	hasRadius := false
	if r := report.Metadata.Radius; r != nil && r.Value > 0 {
		radius, hasRadius = r.Value, true
	}
	mid := image.Pt(size.X/2, size.Y/2)
	half := math.Min(float64(size.X), float64(size.Y)) / 2
	scale := half / (radius * 1.2) // pixels per nm

	if hasRadius {
		drawRing(img, mid, int(radius*scale), aircraftDim)
	}
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(aircraftColor), Face: face}
	for _, p := range report.Aircraft {
		if p.Lat == 0 || p.Lon == 0 {
			continue
		}
		dx := (p.Lon - clon) * nmPerDegree * math.Cos(clat*math.Pi/180)
		dy := (p.Lat - clat) * nmPerDegree
		pt := image.Pt(mid.X+int(dx*scale), mid.Y-int(dy*scale))
		if !pt.In(img.Bounds()) {
			continue
		}
		draw.Draw(img, image.Rect(pt.X-2, pt.Y-2, pt.X+3, pt.Y+3), image.NewUniform(aircraftColor), image.Point{}, draw.Src)
		label := strings.ToUpper(strings.TrimSpace(p.Flight))
		if p.Altitude != nil && *p.Altitude >= 0 {
			label += fmt.Sprintf(" %.0fft", *p.Altitude)
		}
		d.Dot = fixed.P(pt.X+6, pt.Y+4)
		d.DrawString(label)
	}
	return img
}

func drawRing(img *image.RGBA, c image.Point, r int, col color.Color) {
	if r <= 0 {
		return
	}
	steps := int(2*math.Pi*float64(r)) + 1
	for i := 0; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / float64(steps)
		img.Set(c.X+int(float64(r)*math.Cos(a)), c.Y+int(float64(r)*math.Sin(a)), col)
	}
}
