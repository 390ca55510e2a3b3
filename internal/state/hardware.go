package state

import (
	"image"
	"os"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/temoto/kiosk/hardware/display"
	"github.com/temoto/kiosk/hardware/input"
)

type hardware struct {
	Display struct {
		once
		d *display.Display
	}
	Input *input.Dispatch
}

// Display returns nil,nil when display is not configured.
func (g *Global) Display() (*display.Display, error) {
	x := &g.Hardware.Display // short alias
	_ = x.do(func() error {
		cfg := &g.Config.Display
		switch {
		case cfg.Framebuffer != "":
			x.d, x.err = display.NewFb(*cfg)
			return x.err

		case cfg.Width > 0 && cfg.Height > 0:
			g.Log.Infof("display headless size=%dx%d", cfg.Width, cfg.Height)
			x.d = display.NewMock(image.Point{X: cfg.Width, Y: cfg.Height})
			return nil

		default:
			g.Log.Infof("config: no display device (try framebuffer)")
			return nil
		}
	})
	return x.d, x.err
}

func (g *Global) initDisplay() error {
	d, err := g.Display()
	if d != nil {
		err = d.Clear()
	}
	return errors.Annotate(err, "display")
}

func (g *Global) initInput() error {
	g.Hardware.Input = input.NewDispatch(g.Log, g.Alive.StopChan())

	// support more input sources here
	sources := make([]input.Source, 0, 2)

	devConfig := &g.Config.Input.DevInputEvent
	if !devConfig.Enable {
		g.Log.Infof("input=%s disabled", input.DevInputEventTag)
	} else {
		src, err := input.NewDevInputEventSource(devConfig.Device, devConfig.Grab)
		if err != nil {
			return errors.Annotatef(err, "input=%s device=%s", input.DevInputEventTag, devConfig.Device)
		}
		sources = append(sources, src)
	}

	if g.Config.Input.Stdin.Enable {
		sources = append(sources, input.NewLineSource(os.Stdin, input.LineSourceTag))
	}

	go g.Hardware.Input.Run(sources)
	return nil
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool {
	return atomic.LoadUint32(&o.called) == 1
}

func (o *once) do(f func() error) error {
	if o.done() { // fast path
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}
