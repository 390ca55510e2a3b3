package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/kiosk/internal/widget"
	"github.com/temoto/kiosk/log2"
)

func newTestSelector(t testing.TB) *Selector {
	return New(widget.MustBuiltinRegistry(widget.Config{}), log2.NewTest(t, log2.LDebug))
}

func TestParseRequest(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input  string
		app    string
		params map[string]string
	}{
		{"", "", nil},
		{"ambient", "ambient", nil},
		{"app=satellite&api_key=K", "satellite", map[string]string{"api_key": "K"}},
		{"?app=weather", "weather", map[string]string{}},
		{"http://kiosk.local/?onDevice=true&app=satellite&api_key=a%26b", "satellite", map[string]string{"onDevice": "true", "api_key": "a&b"}},
		{"api_key=K", "", map[string]string{"api_key": "K"}},
	}
	for _, c := range cases {
		app, params := ParseRequest(c.input)
		assert.Equal(t, c.app, app, c.input)
		assert.Equal(t, c.params, params, c.input)
	}
}

func TestPrecedence(t *testing.T) {
	t.Parallel()

	s := newTestSelector(t)
	assert.True(t, s.Current().IsNone())

	st := s.Navigate("app=weather")
	assert.Equal(t, SourceAddress, st.Source)
	assert.Equal(t, widget.IDWeather, st.Widget)

	// cartridge after navigate overrides
	st, ok := s.Activate("0026319016", widget.IDSatellite)
	require.True(t, ok)
	assert.Equal(t, SourceCartridge, st.Source)
	assert.Equal(t, widget.IDSatellite, s.Current().Widget)

	// navigate after cartridge overrides
	st = s.Navigate("app=InfiniteColorFade")
	assert.Equal(t, SourceAddress, st.Source)
	assert.Equal(t, widget.IDAmbient, st.Widget)

	// unknown app resets to none
	st = s.Navigate("app=Tetris")
	assert.True(t, st.IsNone())
	assert.Equal(t, "none", st.String())
}

func TestActivateUnknownUnchanged(t *testing.T) {
	t.Parallel()

	s := newTestSelector(t)
	before := s.Navigate("weather")
	st, ok := s.Activate("1", "tetris")
	assert.False(t, ok)
	assert.Equal(t, before, st)
	assert.Equal(t, before, s.Current())
	assert.False(t, s.ActivateCartridge("1", "tetris"))
}

func TestActivateKeepsParams(t *testing.T) {
	t.Parallel()

	s := newTestSelector(t)
	s.Navigate("api_key=K")
	assert.True(t, s.Current().IsNone())
	st, ok := s.Activate("1", widget.IDSatellite)
	require.True(t, ok)
	assert.Equal(t, "K", st.Params["api_key"])
	assert.Equal(t, "cartridge(1,satellite)", st.String())
}

func TestSubscribeLatestWins(t *testing.T) {
	t.Parallel()

	s := newTestSelector(t)
	ch := s.Subscribe("test")
	s.Navigate("weather")
	s.Navigate("ambient")
	s.Activate("7", widget.IDAircraft)
	got := <-ch
	assert.Equal(t, widget.IDAircraft, got.Widget)
	assert.Equal(t, uint64(3), got.Seq)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected stale state %v", extra)
	default:
	}
	s.Unsubscribe("test")
	_, ok := <-ch
	assert.False(t, ok)
	assert.Panics(t, func() {
		s.Subscribe("dup")
		s.Subscribe("dup")
	})
}

func TestResolve(t *testing.T) {
	t.Parallel()

	widgets := widget.MustBuiltinRegistry(widget.Config{})
	cases := []struct {
		name     string
		state    State
		defaults map[string]string
		widget   string
		params   map[string]string
		missing  []string
	}{
		{"none", State{}, nil, "", nil, nil},
		{"unknown", State{Source: SourceAddress, Widget: "nope"}, nil, "", nil, nil},
		{"no-requires", State{Source: SourceCartridge, Widget: widget.IDAmbient}, nil, widget.IDAmbient, map[string]string{}, nil},
		{"missing", State{Source: SourceCartridge, Widget: widget.IDSatellite}, nil, widget.IDSatellite, map[string]string{}, []string{"api_key"}},
		{"from-default", State{Source: SourceCartridge, Widget: widget.IDSatellite}, map[string]string{"api_key": "D"}, widget.IDSatellite, map[string]string{"api_key": "D"}, nil},
		{"state-wins", State{Source: SourceAddress, Widget: widget.IDAircraft, Params: map[string]string{"api_key": "S"}}, map[string]string{"api_key": "D"}, widget.IDAircraft, map[string]string{"api_key": "S"}, nil},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			r := Resolve(c.state, widgets, c.defaults)
			if c.widget == "" {
				assert.Nil(t, r.Widget)
				assert.False(t, r.Ok())
				return
			}
			require.NotNil(t, r.Widget)
			assert.Equal(t, c.widget, r.Descriptor.ID)
			assert.Equal(t, c.params, r.Params)
			assert.Equal(t, c.missing, r.Missing)
			assert.Equal(t, len(c.missing) == 0, r.Ok())
			// pure
			assert.Equal(t, r, Resolve(c.state, widgets, c.defaults))
		})
	}
}
