package main

import (
	"flag"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/kiosk/helpers/cli"
	"github.com/temoto/kiosk/log2"
)

const usage = `syntax: one command per line
(keys)
- DIGITS       type digits on keypad, e.g. 0008476736
- key X        press single key, e.g. key r
(addressable state)
- nav REQUEST  navigate, e.g. nav app=satellite&api_key=K
- state        show active widget
(images)
- preload [KEY]  start preload, default key from kiosk config
- progress       show latest preload runs
- cache          show image cache stats
(meta)
- reload       reload kiosk
- help
`

var log = log2.NewStderr(log2.LDebug)

type client struct {
	base string
	http *http.Client
}

func main() {
	cmdline := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	addr := cmdline.String("addr", "http://127.0.0.1:8080", "kiosk http listen address")
	timeout := cmdline.Duration("timeout", 5*time.Second, "")
	_ = cmdline.Parse(os.Args[1:])

	log.SetFlags(log2.LInteractiveFlags)
	c := &client{
		base: strings.TrimRight(*addr, "/"),
		http: &http.Client{Timeout: *timeout},
	}
	cli.MainLoop("kiosk-cli", c.execute, newCompleter(), nil)
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "key", Description: "press single key"},
		{Text: "nav", Description: "navigate to app"},
		{Text: "state", Description: "show active widget"},
		{Text: "preload", Description: "start image preload"},
		{Text: "progress", Description: "show preload progress"},
		{Text: "cache", Description: "show cache stats"},
		{Text: "reload", Description: "reload kiosk"},
		{Text: "help", Description: "show usage"},
	}

	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

func (c *client) execute(line string) {
	if line == "" {
		return
	}
	if err := c.do(line); err != nil {
		log.Errorf(errors.ErrorStack(err))
	}
}

func (c *client) do(line string) error {
	cmd, arg := line, ""
	if i := strings.IndexByte(line, ' '); i >= 0 {
		cmd, arg = line[:i], strings.TrimSpace(line[i+1:])
	}
	switch {
	case isDigits(cmd):
		return c.call(http.MethodPost, "/input", cmd)
	case cmd == "key":
		if len([]rune(arg)) != 1 {
			return errors.NotValidf("key=%q, expected single character", arg)
		}
		return c.call(http.MethodPost, "/input", arg)
	case cmd == "nav":
		return c.call(http.MethodPost, "/navigate", arg)
	case cmd == "state":
		return c.call(http.MethodGet, "/state", "")
	case cmd == "preload":
		return c.call(http.MethodPost, "/preload", arg)
	case cmd == "progress":
		return c.call(http.MethodGet, "/progress", "")
	case cmd == "cache":
		return c.call(http.MethodGet, "/cache", "")
	case cmd == "reload":
		return c.call(http.MethodPost, "/reload", "")
	case cmd == "help":
		log.Infof(usage)
		return nil
	}
	return errors.NotValidf("command=%q, try help", cmd)
}

func (c *client) call(method, path, body string) error {
	req, err := http.NewRequest(method, c.base+path, strings.NewReader(body))
	if err != nil {
		return errors.Annotate(err, path)
	}
	req.Header.Set("Content-Type", "text/plain")
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Annotate(err, path)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Annotate(err, path)
	}
	if resp.StatusCode >= 400 {
		return errors.Errorf("%s status=%d %s", path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if len(b) != 0 {
		log.Infof("%s", strings.TrimSpace(string(b)))
	} else {
		log.Infof("%s status=%d", path, resp.StatusCode)
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
