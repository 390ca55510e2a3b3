package cartridge

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/kiosk/hardware/input"
	"github.com/temoto/kiosk/internal/keypad"
	"github.com/temoto/kiosk/internal/types"
	"github.com/temoto/kiosk/internal/widget"
	"github.com/temoto/kiosk/log2"
)

type mockActivator struct {
	calls  []Decision
	accept bool
}

func (m *mockActivator) ActivateCartridge(code, widgetID string) bool {
	m.calls = append(m.calls, Decision{Kind: DecisionActivate, Code: code, Widget: widgetID})
	return m.accept
}

type mockReloader struct{ reasons []string }

func (m *mockReloader) Reload(reason string) error {
	m.reasons = append(m.reasons, reason)
	return nil
}

type tenv struct {
	t     testing.TB
	now   time.Time
	rec   *Recognizer
	act   *mockActivator
	rel   *mockReloader
	reg   *Registry
	debug *log2.Log
}

func newTestEnv(t testing.TB, entries []Entry, triggers []TriggerEntry) *tenv {
	log := log2.NewTest(t, log2.LDebug)
	reg, errs := LoadRegistry(entries, triggers, widget.MustBuiltinRegistry(widget.Config{}))
	require.Empty(t, errs)
	env := &tenv{
		t:     t,
		now:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		act:   &mockActivator{accept: true},
		rel:   &mockReloader{},
		reg:   reg,
		debug: log,
	}
	d := keypad.NewDebouncer(keypad.Config{}, reg.MaxLen(), nil, log)
	t.Cleanup(d.Stop)
	env.rec = NewRecognizer(reg, d, env.act, env.rel, log)
	return env
}

func (env *tenv) typeKeys(keys string, gap time.Duration) []Decision {
	ds := make([]Decision, 0, len(keys))
	for _, k := range keys {
		env.now = env.now.Add(gap)
		ds = append(ds, env.rec.Feed(types.InputEvent{Source: "test", Key: types.InputKey(k), At: env.now}))
	}
	return ds
}

func TestLoadRegistry(t *testing.T) {
	t.Parallel()

	widgets := widget.MustBuiltinRegistry(widget.Config{})
	reg, errs := LoadRegistry([]Entry{
		{Code: "0026319016", App: "WholeEarthSatelliteImage"},
		{Code: "0007654321", Action: "open_app", App: "weather"},
		{Code: "0007654321", App: "ambient"},
		{Code: "12ab", App: "ambient"},
		{Code: "", App: "ambient"},
		{Code: "0000000001", App: "tetris"},
		{Code: "0000000002", Action: "explode"},
		{Code: "0000000003", Action: "refresh"},
	}, []TriggerEntry{
		{Key: "r", Action: "refresh"},
		{Key: "F5", Action: "refresh"},
		{Key: "5", Action: "refresh"},
		{Key: "r", Action: "refresh"},
	}, widgets)

	assert.Len(t, errs, 7)
	assert.Equal(t, 3, reg.Len())
	assert.Equal(t, 10, reg.MaxLen())
	assert.Equal(t, Decision{Kind: DecisionActivate, Code: "0026319016", Widget: widget.IDSatellite}, reg.Resolve("0026319016"))
	assert.Equal(t, Decision{Kind: DecisionActivate, Code: "0007654321", Widget: widget.IDWeather}, reg.Resolve("0007654321"))
	assert.Equal(t, DecisionRefresh, reg.Resolve("0000000003").Kind)
	assert.Equal(t, DecisionNone, reg.Resolve("000765432").Kind)
	assert.Equal(t, DecisionRefresh, reg.ResolveTrigger('r').Kind)
	assert.Equal(t, DecisionRefresh, reg.ResolveTrigger(input.KeyF5).Kind)
	assert.Equal(t, DecisionNone, reg.ResolveTrigger('x').Kind)

	kinds := 0
	for _, err := range errs {
		if errors.IsAlreadyExists(err) {
			kinds++
		}
	}
	assert.Equal(t, 2, kinds)
}

func TestShadowedCode(t *testing.T) {
	t.Parallel()

	reg, errs := LoadRegistry([]Entry{
		{Code: "12", App: "ambient"},
		{Code: "1234", App: "weather"},
		{Code: "99", App: "weather"},
	}, nil, widget.MustBuiltinRegistry(widget.Config{}))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "shadowed by 12")
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, 2, reg.MaxLen())
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input  string
		expect types.InputKey
		err    bool
	}{
		{"r", 'r', false},
		{"#", '#', false},
		{"enter", input.KeyEnter, false},
		{"F5", input.KeyF5, false},
		{"7", 0, true},
		{"rr", 0, true},
		{"", 0, true},
	}
	for _, c := range cases {
		k, err := ParseKey(c.input)
		if c.err {
			assert.Error(t, err, c.input)
			continue
		}
		assert.NoError(t, err, c.input)
		assert.Equal(t, c.expect, k, c.input)
	}
}

func TestRecognizeBurst(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, []Entry{{Code: "1234", App: "weather"}}, nil)
	ds := env.typeKeys("1234", 0)
	assert.Equal(t, DecisionNone, ds[0].Kind)
	assert.Equal(t, DecisionNone, ds[2].Kind)
	assert.Equal(t, Decision{Kind: DecisionActivate, Code: "1234", Widget: widget.IDWeather}, ds[3])
	assert.Equal(t, "", env.rec.Buffer())
	require.Len(t, env.act.calls, 1)
	assert.Equal(t, widget.IDWeather, env.act.calls[0].Widget)
}

func TestRecognizeGapResets(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, []Entry{{Code: "1234", App: "weather"}}, nil)
	ds := env.typeKeys("12", 100*time.Millisecond)
	ds = append(ds, env.typeKeys("34", 2500*time.Millisecond)...)
	for _, d := range ds {
		assert.Equal(t, DecisionNone, d.Kind)
	}
	assert.Equal(t, "4", env.rec.Buffer())
	assert.Empty(t, env.act.calls)
}

func TestRecognizeExactBufferOnly(t *testing.T) {
	t.Parallel()

	entries := []Entry{{Code: "0000", Action: "refresh"}, {Code: "1234", App: "weather"}}
	cases := []struct {
		keys    string
		reloads []string
	}{
		{"991234", nil},
		{"91234", nil},
		{"00000", []string{"cartridge 0000"}},
		{"000000000", []string{"cartridge 0000"}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.keys, func(t *testing.T) {
			env := newTestEnv(t, entries, nil)
			for i, d := range env.typeKeys(c.keys, 100*time.Millisecond) {
				assert.NotEqual(t, DecisionActivate, d.Kind, "key #%d", i)
			}
			assert.Empty(t, env.act.calls)
			assert.Equal(t, c.reloads, env.rel.reasons)
		})
	}

	// gap starts fresh buffer, code typed after pause still matches
	env := newTestEnv(t, entries, nil)
	env.typeKeys("99", 100*time.Millisecond)
	ds := env.typeKeys("1", 2500*time.Millisecond)
	ds = append(ds, env.typeKeys("234", 100*time.Millisecond)...)
	assert.Equal(t, DecisionActivate, ds[3].Kind)
}

func TestRecognizeRefreshDoesNotClear(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t,
		[]Entry{{Code: "0000", Action: "refresh"}, {Code: "1234", App: "weather"}},
		[]TriggerEntry{{Key: "r", Action: "refresh"}})
	ds := env.typeKeys("0000", 10*time.Millisecond)
	assert.Equal(t, DecisionRefresh, ds[3].Kind)
	assert.Equal(t, "0000", env.rec.Buffer())
	ds = env.typeKeys("r", 10*time.Millisecond)
	assert.Equal(t, DecisionRefresh, ds[0].Kind)
	assert.Equal(t, []string{"cartridge 0000", "cartridge r"}, env.rel.reasons)
}

func TestRecognizeNonDigitIgnored(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, []Entry{{Code: "1234", App: "weather"}}, nil)
	ds := env.typeKeys("12#34", 10*time.Millisecond)
	assert.Equal(t, DecisionNone, ds[2].Kind)
	assert.Equal(t, DecisionActivate, ds[4].Kind)
}

func TestRecognizeActivationRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, []Entry{{Code: "42", App: "ambient"}}, nil)
	env.act.accept = false
	ds := env.typeKeys("42", 10*time.Millisecond)
	assert.Equal(t, DecisionActivate, ds[1].Kind)
	assert.Len(t, env.act.calls, 1)
	assert.Equal(t, "", env.rec.Buffer())
}
