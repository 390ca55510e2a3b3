package framebuffer

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRGB565(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input  color.RGBA
		expect uint16
	}{
		{color.RGBA{0, 0, 0, 0}, 0},
		{color.RGBA{0, 0, 0, 0xff}, 0},
		{color.RGBA{0xff, 0xff, 0xff, 0xff}, 0xffff},
		{color.RGBA{0xff, 0x00, 0x00, 0xff}, 0xf800},
		{color.RGBA{0x00, 0xff, 0x00, 0xff}, 0x07e0},
		{color.RGBA{0x00, 0x00, 0xff, 0xff}, 0x001f},
		{color.RGBA{0x0c, 0x0c, 0x0c, 0xff}, 0x0861},
	}
	for _, c := range cases {
		assert.Equal(t, c.expect, encode565(c.input.R, c.input.G, c.input.B), c.input)
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{0xff, 0, 0, 0xff})
	img.SetRGBA(1, 0, color.RGBA{0, 0, 0xff, 0xff})
	size := image.Point{X: 2, Y: 1}

	b16 := make([]byte, 4)
	Encode(b16, img, size, 16)
	assert.Equal(t, []byte{0x00, 0xf8, 0x1f, 0x00}, b16)

	b32 := make([]byte, 8)
	Encode(b32, img, size, 32)
	assert.Equal(t, []byte{0, 0, 0xff, 0xff, 0xff, 0, 0, 0xff}, b32)
}

func TestReadSize(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "fb0"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "fb0", "virtual_size"), []byte("800,480\n"), 0o644))
	size, err := readSize(root, "fb0")
	require.NoError(t, err)
	assert.Equal(t, image.Point{X: 800, Y: 480}, size)

	_, err = readSize(root, "fb1")
	assert.Error(t, err)
}
