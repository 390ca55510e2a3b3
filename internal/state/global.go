package state

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/kiosk/helpers"
	"github.com/temoto/kiosk/internal/cartridge"
	"github.com/temoto/kiosk/internal/imgcache"
	"github.com/temoto/kiosk/internal/preload"
	"github.com/temoto/kiosk/internal/selector"
	"github.com/temoto/kiosk/internal/widget"
	"github.com/temoto/kiosk/log2"
	tele_api "github.com/temoto/kiosk/tele"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Hardware     hardware // hardware.go
	Log          *log2.Log
	Tele         tele_api.Teler

	Cache      *imgcache.Cache
	Prefetcher *preload.Prefetcher
	Progress   *preload.Board
	Widgets    *widget.Registry
	Cartridges *cartridge.Registry
	Selector   *selector.Selector
	// Transport is used by provider and widgets, nil = http.DefaultTransport
	Transport http.RoundTripper

	XXX_reload atomic.Value // ReloadFunc, set by main

	_copy_guard sync.Mutex //nolint:unused
}

type ReloadFunc func(reason string) error

const ContextKey = "run/state-global"

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg

	g.Log.Infof("build version=%s", g.BuildVersion)

	// Since tele is remote error reporting mechanism, it must be inited before anything else
	g.Config.Tele.BuildVersion = g.BuildVersion
	// Tele.Init gets g.Log clone before SetErrorFunc, so Tele.Log.Error doesn't recurse on itself
	if err := g.Tele.Init(ctx, g.Log.Clone(log2.LInfo), g.Config.Tele); err != nil {
		g.Tele = tele_api.Noop{}
		return errors.Annotate(err, "tele init")
	}
	g.Log.SetErrorFunc(g.Tele.Error)

	if g.BuildVersion == "unknown" {
		g.Log.Infof("build version is not set, please use script/build")
	}

	errs := make([]error, 0, 4)
	widgets, err := widget.NewRegistry(widget.Builtin(g.Config.Widget)...)
	if err != nil {
		return errors.Annotate(err, "widgets")
	}
	g.Widgets = widgets

	// invalid cartridges are reported and skipped, kiosk works with the rest
	cartridges, cerrs := cartridge.LoadRegistry(g.Config.Cartridges, g.Config.Triggers, g.Widgets)
	for _, err := range cerrs {
		g.Error(err, "config")
	}
	g.Cartridges = cartridges
	g.Log.Infof("cartridges=%d triggers=%d max_len=%d", cartridges.Len(), len(g.Config.Triggers), cartridges.MaxLen())

	g.Cache = imgcache.New(g.Config.Cache, g.Log)
	g.Progress = preload.NewBoard()
	if err := g.initPrefetcher(); err != nil {
		errs = append(errs, err)
	}
	g.Selector = selector.New(g.Widgets, g.Log)
	if err := g.initDisplay(); err != nil {
		errs = append(errs, err)
	}
	if err := g.initInput(); err != nil {
		errs = append(errs, err)
	}
	return helpers.FoldErrors(errs)
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

func (g *Global) initPrefetcher() error {
	src, err := preload.NewHTTPSource(g.Config.Provider, g.Transport, g.Log)
	if err != nil {
		err = errors.Annotate(err, "config: provider")
		return err
	}
	var lister preload.Lister
	var urls preload.URLBuilder
	if src.Configured() {
		lister, urls = src, src
	} else {
		g.Log.Infof("config: provider is not configured, preload disabled")
	}
	g.Prefetcher = preload.New(g.Config.Preload, g.Cache, lister, src, urls, g.Log)
	return nil
}

// WidgetDefaults are configured parameters, see selector.Resolve.
func (g *Global) WidgetDefaults() map[string]string {
	return g.Config.Kiosk.Params
}

// PreloadAsync starts preload run in background.
// Run is tracked by Alive and canceled on stop.
func (g *Global) PreloadAsync(providerKey string, obs preload.Observer) error {
	if !g.Alive.Add(1) {
		return errors.Errorf("preload: stopping")
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-g.Alive.StopChan():
			cancel()
		case <-ctx.Done():
		}
	}()
	go func() {
		defer g.Alive.Done()
		defer cancel()
		g.Prefetcher.Preload(ctx, providerKey, g.Prefetcher.Defaults(), obs)
	}()
	return nil
}

func (g *Global) SetReloader(f ReloadFunc) { g.XXX_reload.Store(f) }

func (g *Global) Reload(reason string) error {
	f, _ := g.XXX_reload.Load().(ReloadFunc)
	if f == nil {
		return errors.NotSupportedf("reload")
	}
	g.Log.Infof("reload reason=%s", reason)
	return f(reason)
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}
