package widget

import (
	"context"
	"image/color"
	"math"
	"time"

	"github.com/temoto/kiosk/helpers"
)

const DefaultAmbientStep = 50 * time.Millisecond

type AmbientConfig struct {
	StepMs int `hcl:"step_ms"`
}

// Ambient fades screen through full hue circle, one degree per step.
type Ambient struct {
	step time.Duration
}

func NewAmbient(config AmbientConfig) *Ambient {
	return &Ambient{step: helpers.IntMillisecondDefault(config.StepMs, DefaultAmbientStep)}
}

func (self *Ambient) Descriptor() Descriptor {
	return Descriptor{
		ID:      IDAmbient,
		Name:    "Infinite color fade",
		Aliases: []string{"InfiniteColorFade", "ColorCycle"},
	}
}

func (self *Ambient) Run(ctx context.Context, env Env) error {
	tick := time.NewTicker(self.step)
	defer tick.Stop()
	hue := 0
	for {
		env.draw(env.Screen.Fill(HSL(float64(hue), 1, 0.5)))
		select {
		case <-tick.C:
			hue = (hue + 1) % 360
		case <-ctx.Done():
			return nil
		}
	}
}

// HSL converts hue in degrees, saturation and lightness in 0..1.
func HSL(h, s, l float64) color.RGBA {
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2
	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return color.RGBA{
		R: uint8(math.Round((r + m) * 255)),
		G: uint8(math.Round((g + m) * 255)),
		B: uint8(math.Round((b + m) * 255)),
		A: 255,
	}
}
