package tele_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/kiosk/internal/preload"
	"github.com/temoto/kiosk/internal/selector"
	"github.com/temoto/kiosk/internal/state"
	state_new "github.com/temoto/kiosk/internal/state/new"
	"github.com/temoto/kiosk/internal/tele"
	"github.com/temoto/kiosk/internal/widget"
	"github.com/temoto/kiosk/log2"
	tele_api "github.com/temoto/kiosk/tele"
	tele_config "github.com/temoto/kiosk/tele/config"
)

type mockTransport struct {
	onCommand tele.CommandCallback
	inited    bool
	state     chan []byte
	telemetry chan []byte
	response  chan []byte
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		state:     make(chan []byte, 32),
		telemetry: make(chan []byte, 32),
		response:  make(chan []byte, 32),
	}
}

func (m *mockTransport) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, onCommand tele.CommandCallback) error {
	m.inited = true
	m.onCommand = onCommand
	return nil
}

func (m *mockTransport) Close() {}

func (m *mockTransport) SendState(payload []byte) bool {
	m.state <- payload
	return true
}

func (m *mockTransport) SendTelemetry(payload []byte) bool {
	m.telemetry <- payload
	return true
}

func (m *mockTransport) SendCommandResponse(topicSuffix string, payload []byte) bool {
	m.response <- payload
	return true
}

type tenv struct {
	ctx   context.Context
	g     *state.Global
	tele  tele_api.Teler
	trans *mockTransport
}

func testSetup(t testing.TB, enabled bool) *tenv {
	env := &tenv{trans: newMockTransport()}
	env.ctx, env.g = state_new.NewTestContext(t, "v-test", "")
	env.tele = tele.NewWithTransporter(env.trans)
	env.g.Tele = env.tele
	cfg := tele_config.Config{
		Enabled:      enabled,
		ClientID:     "kiosk-test",
		LogDebug:     true,
		BuildVersion: env.g.BuildVersion,
	}
	require.NoError(t, env.tele.Init(env.ctx, env.g.Log, cfg))
	t.Cleanup(env.tele.Close)
	return env
}

func decode(t testing.TB, ch <-chan []byte) map[string]interface{} {
	select {
	case b := <-ch:
		m, err := tele.UnmarshalStruct(b)
		require.NoError(t, err)
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func assertEmpty(t testing.TB, ch <-chan []byte) {
	select {
	case b := <-ch:
		t.Errorf("unexpected message=%x", b)
	default:
	}
}

func TestInitInvalid(t *testing.T) {
	t.Parallel()

	tl := tele.NewWithTransporter(newMockTransport())
	err := tl.Init(context.Background(), log2.NewTest(t, log2.LDebug), tele_config.Config{Enabled: true})
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	t.Parallel()

	env := testSetup(t, false)
	assert.False(t, env.trans.inited)
	env.tele.State(selector.State{Source: selector.SourceAddress, Widget: widget.IDWeather})
	env.tele.Error(fmt.Errorf("ohi"))
	env.tele.OnProgress(preload.Progress{Total: 1})
	assertEmpty(t, env.trans.state)
	assertEmpty(t, env.trans.telemetry)
}

func TestState(t *testing.T) {
	t.Parallel()

	env := testSetup(t, true)
	require.True(t, env.trans.inited)
	s := selector.State{Source: selector.SourceCartridge, Widget: widget.IDSatellite, Code: "0026319016", Seq: 3, At: time.Now()}
	env.tele.State(s)
	m := decode(t, env.trans.state)
	assert.Equal(t, "cartridge", m["source"])
	assert.Equal(t, widget.IDSatellite, m["widget"])
	assert.Equal(t, "0026319016", m["code"])
	assert.Equal(t, float64(3), m["seq"])
	assert.NotEmpty(t, m["time"])

	// same state is not repeated
	env.tele.State(s)
	assertEmpty(t, env.trans.state)

	env.tele.State(selector.State{})
	m = decode(t, env.trans.state)
	assert.Equal(t, "none", m["source"])
	assert.Equal(t, "", m["time"])
}

func TestError(t *testing.T) {
	t.Parallel()

	env := testSetup(t, true)
	env.tele.Error(fmt.Errorf("ohi"))
	m := decode(t, env.trans.telemetry)
	assert.Equal(t, tele.KindError, m["kind"])
	assert.Equal(t, "ohi", m["message"])
	assert.Equal(t, "v-test", m["build_version"])

	env.tele.Error(nil)
	assertEmpty(t, env.trans.telemetry)
}

func TestProgress(t *testing.T) {
	t.Parallel()

	env := testSetup(t, true)
	env.tele.OnProgress(preload.Progress{RunID: "r1", Provider: "secret", Total: 2, IsLoading: true})
	assertEmpty(t, env.trans.telemetry)

	env.tele.OnProgress(preload.Progress{RunID: "r1", Provider: "secret", Loaded: 1, Total: 2, Events: []preload.Event{
		{Status: preload.StatusLoading, Message: "loading 2 images"},
		{Status: preload.StatusSuccess, Message: "loaded"},
		{Status: preload.StatusError, Message: "GET status=404"},
	}})
	m := decode(t, env.trans.telemetry)
	assert.Equal(t, tele.KindProgress, m["kind"])
	assert.Equal(t, "r1", m["run_id"])
	assert.Equal(t, float64(1), m["loaded"])
	assert.Equal(t, float64(2), m["total"])
	assert.Equal(t, float64(1), m["errors"])
	assert.Equal(t, "GET status=404", m["message"])
	assert.NotContains(t, m, "provider")
}

func TestCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		cmd       map[string]interface{}
		before    func(testing.TB, *tenv)
		expectErr string
		check     func(testing.TB, *tenv)
	}{
		{name: "navigate",
			cmd: map[string]interface{}{"task": tele.TaskNavigate, "request": "app=USWeatherMap&api_key=K"},
			check: func(t testing.TB, env *tenv) {
				s := env.g.Selector.Current()
				assert.Equal(t, selector.SourceAddress, s.Source)
				assert.Equal(t, widget.IDWeather, s.Widget)
				assert.Equal(t, "K", s.Params["api_key"])
			}},
		{name: "clear",
			cmd: map[string]interface{}{"task": tele.TaskClear},
			before: func(t testing.TB, env *tenv) {
				env.g.Selector.Navigate("ambient")
			},
			check: func(t testing.TB, env *tenv) {
				assert.True(t, env.g.Selector.Current().IsNone())
			}},
		{name: "reload-unsupported",
			cmd:       map[string]interface{}{"task": tele.TaskReload},
			expectErr: "reload not supported"},
		{name: "reload",
			cmd: map[string]interface{}{"task": tele.TaskReload, "reason": "remote"},
			before: func(t testing.TB, env *tenv) {
				env.g.SetReloader(func(reason string) error {
					assert.Equal(t, "remote", reason)
					return nil
				})
			}},
		{name: "preload",
			cmd: map[string]interface{}{"task": tele.TaskPreload, "key": "K"},
			check: func(t testing.TB, env *tenv) {
				// provider is not configured, run fails fast and is reported
				m := decode(t, env.trans.telemetry)
				assert.Equal(t, tele.KindProgress, m["kind"])
				assert.Equal(t, float64(1), m["errors"])
				_, ok := env.g.Progress.Last("K")
				assert.True(t, ok)
			}},
		{name: "report",
			cmd: map[string]interface{}{"task": tele.TaskReport},
			before: func(t testing.TB, env *tenv) {
				env.g.Selector.Navigate("ambient")
			},
			check: func(t testing.TB, env *tenv) {
				m := decode(t, env.trans.state)
				assert.Equal(t, widget.IDAmbient, m["widget"])
			}},
		{name: "unknown",
			cmd:       map[string]interface{}{"task": "explode"},
			expectErr: "not supported"},
		{name: "deadline",
			cmd:       map[string]interface{}{"task": tele.TaskClear, "deadline": time.Now().Add(-time.Minute).Format(time.RFC3339)},
			expectErr: "deadline"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			env := testSetup(t, true)
			if c.before != nil {
				c.before(t, env)
			}
			c.cmd["id"] = c.name
			b, err := tele.MarshalCommand(c.cmd)
			require.NoError(t, err)
			assert.True(t, env.trans.onCommand(env.ctx, b))

			r := decode(t, env.trans.response)
			assert.Equal(t, c.name, r["id"])
			if c.expectErr == "" {
				assert.Equal(t, "", r["error"])
			} else {
				assert.Contains(t, r["error"], c.expectErr)
			}
			if c.check != nil {
				c.check(t, env)
			}
		})
	}
}

func TestCommandGarbage(t *testing.T) {
	t.Parallel()

	env := testSetup(t, true)
	assert.True(t, env.trans.onCommand(env.ctx, []byte{0xff, 0xff, 0xff}))
	assertEmpty(t, env.trans.response)
}
