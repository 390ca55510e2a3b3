package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/kiosk/cmd/kiosk/preload"
	"github.com/temoto/kiosk/cmd/kiosk/run"
	"github.com/temoto/kiosk/cmd/kiosk/subcmd"
	"github.com/temoto/kiosk/internal/state"
	state_new "github.com/temoto/kiosk/internal/state/new"
	"github.com/temoto/kiosk/internal/tele"
	"github.com/temoto/kiosk/log2"
)

var log = log2.NewStderr(log2.LDebug)
var BuildVersion string = "unknown" // set by ldflags -X

var modules = []subcmd.Mod{
	run.Mod,
	preload.Mod,
}

func main() {
	flagset := flag.NewFlagSet("kiosk", flag.ContinueOnError)
	flagConfig := flagset.String("config", "kiosk.hcl", "")
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "Usage: %s [option...] [command]\n\nOptions:\n", flagset.Name())
		flagset.PrintDefaults()
		fmt.Fprintf(flagset.Output(), "\nCommands:\n")
		for _, m := range modules {
			fmt.Fprintf(flagset.Output(), "  %s\n", m.Name)
		}
	}
	if err := flagset.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(err)
	}

	command := flagset.Arg(0)
	if command == "" {
		command = run.Mod.Name
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		log.Fatal(err)
	}

	log.SetFlags(log2.LInteractiveFlags)
	if subcmd.SdNotify("start") {
		// under systemd assume systemd journal logging, no timestamp
		log.SetFlags(log2.LServiceFlags)
	}
	log.Debugf("kiosk version=%s starting command=%s", BuildVersion, mod.Name)

	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	ctx, g := state_new.NewContext(log, tele.New())
	g.BuildVersion = BuildVersion

	var args []string
	if flagset.NArg() > 1 {
		args = flagset.Args()[1:]
	}
	if err := mod.Main(ctx, config, args); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
