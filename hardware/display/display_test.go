package display

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blank(size image.Point) string {
	return strings.Repeat(strings.Repeat("  ", size.X)+"\n", size.Y)
}

func TestQR(t *testing.T) {
	t.Parallel()

	qrText := "http://kiosk.local/?app=satellite"
	qr, err := qrcode.New(qrText, qrcode.High)
	require.NoError(t, err)
	qr.DisableBorder = true
	n := len(qr.Bitmap())

	d := NewMock(image.Point{X: n, Y: n})
	require.NoError(t, d.Clear())
	assert.Equal(t, blank(d.size), d.String2())

	require.NoError(t, d.QR(qrText, false, qrcode.High))
	assert.Equal(t, qr.ToString(false), d.String2())

	require.NoError(t, d.Clear())
	assert.Equal(t, blank(d.size), d.String2())
}

func TestShow(t *testing.T) {
	t.Parallel()

	d := NewMock(image.Point{X: 40, Y: 40})
	src := image.NewRGBA(image.Rect(0, 0, 80, 40))
	for i := range src.Pix {
		src.Pix[i] = 0xff
	}
	require.NoError(t, d.Show(src, ""))
	snap := d.Snapshot()
	// 2:1 image fit into 40x40 is 40x20 centered vertically
	assert.Equal(t, color.RGBA{0, 0, 0, 0xff}, snap.RGBAAt(20, 5))
	assert.Greater(t, snap.RGBAAt(20, 20).R, uint8(0xf0))
	assert.Equal(t, color.RGBA{0, 0, 0, 0xff}, snap.RGBAAt(20, 35))

	require.NoError(t, d.Show(nil, "caption"))
	assert.NotEqual(t, blank(d.size), d.String2())
}

func TestFillText(t *testing.T) {
	t.Parallel()

	d := NewMock(image.Point{X: 64, Y: 32})
	red := color.RGBA{0xff, 0, 0, 0xff}
	require.NoError(t, d.Fill(red))
	assert.Equal(t, red, d.Snapshot().RGBAAt(63, 31))

	require.NoError(t, d.Text("Loading"))
	s := d.String2()
	assert.NotEqual(t, blank(d.size), s)
	assert.Contains(t, s, "██")
	// snapshot is a copy
	snap := d.Snapshot()
	snap.SetRGBA(0, 0, red)
	assert.NotEqual(t, red, d.Snapshot().RGBAAt(0, 0))
}

func TestIdle(t *testing.T) {
	t.Parallel()

	d := NewMock(image.Point{X: 120, Y: 120})
	require.NoError(t, d.Idle("insert cartridge", "http://kiosk.local/"))
	assert.NotEqual(t, blank(d.size), d.String2())
	require.NoError(t, d.Idle("", ""))
	assert.Equal(t, blank(d.size), d.String2())

	tiny := NewMock(image.Point{X: 8, Y: 8})
	assert.Error(t, tiny.Idle("", "http://kiosk.local/"))
}
