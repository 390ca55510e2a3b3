// One-shot image preload, prints progress. Useful to warm up provider
// or check api key without display.
package preload

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/kiosk/cmd/kiosk/subcmd"
	"github.com/temoto/kiosk/hardware/display"
	internal_preload "github.com/temoto/kiosk/internal/preload"
	"github.com/temoto/kiosk/internal/state"
	"github.com/temoto/kiosk/internal/widget"
)

var Mod = subcmd.Mod{Name: "preload", Main: Main}

func Main(ctx context.Context, config *state.Config, args []string) error {
	g := state.GetGlobal(ctx)
	config.Input.DevInputEvent.Enable = false
	config.Input.Stdin.Enable = false
	config.Display = display.Config{}
	config.Tele.Enabled = false
	g.MustInit(ctx, config)
	defer g.Stop()

	key := g.WidgetDefaults()[widget.ParamAPIKey]
	if len(args) != 0 {
		key = args[0]
	}
	if key == "" {
		return errors.NotValidf("%s is not set, pass as argument or kiosk.params", widget.ParamAPIKey)
	}

	var final internal_preload.Progress
	for p := range g.Prefetcher.Stream(ctx, key, g.Prefetcher.Defaults()) {
		final = p
		if n := len(p.Events); n != 0 {
			e := p.Events[n-1]
			fmt.Printf("%d/%d %s %s\n", p.Loaded, p.Total, e.Status, e.Message)
		}
	}
	fmt.Printf("run=%s loaded=%d/%d errors=%d\n", final.RunID, final.Loaded, final.Total, final.Errors())
	if n := final.Errors(); n != 0 {
		return errors.Errorf("preload errors=%d", n)
	}
	return nil
}
