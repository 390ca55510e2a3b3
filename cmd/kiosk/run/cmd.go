// Main, user facing mode of operation.
package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/kiosk/cmd/kiosk/subcmd"
	"github.com/temoto/kiosk/internal/httpapi"
	"github.com/temoto/kiosk/internal/state"
	"github.com/temoto/kiosk/internal/ui"
	"golang.org/x/sys/unix"
)

const stopTimeout = 10 * time.Second

var Mod = subcmd.Mod{Name: "run", Main: Main}

func Main(ctx context.Context, config *state.Config, args []string) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)
	g.Log.Debugf("config=%+v", g.Config)

	kui := &ui.UI{}
	if err := kui.Init(ctx); err != nil {
		return errors.Annotate(err, "ui Init()")
	}
	g.SetReloader(func(reason string) error {
		if !g.Config.Kiosk.ReloadExec {
			return kui.Reload(reason)
		}
		return reexec(g, reason)
	})

	if listen := g.Config.HTTP.Listen; listen != "" {
		srv := httpapi.New(g)
		go func() {
			if err := srv.ListenAndServe(listen); err != nil {
				g.Error(err)
			}
		}()
	}

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range sigch {
			if s == syscall.SIGHUP {
				g.Error(g.Reload("signal"))
				continue
			}
			g.Log.Infof("signal=%s stopping", s.String())
			subcmd.SdNotify(daemon.SdNotifyStopping)
			g.Stop()
			return
		}
	}()

	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Debugf("kiosk init complete")

	kui.Loop(ctx)

	if !g.StopWait(stopTimeout) {
		g.Log.Errorf("stop timeout=%v, exiting anyway", stopTimeout)
	}
	if d, _ := g.Display(); d != nil {
		if err := d.Close(); err != nil {
			g.Log.Error(errors.Annotate(err, "display close"))
		}
	}
	g.Tele.Close()
	return nil
}

// reexec replaces process with fresh copy of itself, config is read again.
func reexec(g *state.Global, reason string) error {
	exe, err := os.Executable()
	if err != nil {
		return errors.Annotate(err, "reload exec")
	}
	g.Log.Infof("reload exec=%s reason=%s", exe, reason)
	subcmd.SdNotify(daemon.SdNotifyReloading)
	g.Tele.Close()
	err = unix.Exec(exe, os.Args, os.Environ())
	return errors.Annotatef(err, "reload exec=%s", exe)
}
