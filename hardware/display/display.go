// Package display is full-screen RGBA canvas over framebuffer.
// Every drawing call replaces whole frame and flushes.
package display

import (
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/juju/errors"
	"github.com/skip2/go-qrcode"
	"github.com/temoto/kiosk/hardware/display/framebuffer"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	lineHeight    = 16
	captionHeight = 20
)

type Config struct {
	Framebuffer  string `hcl:"framebuffer"`
	Width        int    `hcl:"width"`
	Height       int    `hcl:"height"`
	BitsPerPixel int    `hcl:"bits_per_pixel"`
}

type Display struct {
	mu   sync.Mutex
	fb   *framebuffer.Framebuffer
	img  *image.RGBA
	size image.Point
}

func NewFb(config Config) (*Display, error) {
	fb, err := framebuffer.New(config.Framebuffer, image.Point{X: config.Width, Y: config.Height}, config.BitsPerPixel)
	if err != nil {
		return nil, errors.Annotatef(err, "framebuffer device=%s", config.Framebuffer)
	}
	return newDisplay(fb, fb.Size()), nil
}

func NewMock(size image.Point) *Display {
	return newDisplay(nil, size)
}

func newDisplay(fb *framebuffer.Framebuffer, size image.Point) *Display {
	return &Display{
		fb:   fb,
		img:  image.NewRGBA(image.Rectangle{Max: size}),
		size: size,
	}
}

func (d *Display) Size() image.Point { return d.size }

func (d *Display) Close() error {
	if d.fb != nil {
		return d.fb.Close()
	}
	return nil
}

func (d *Display) Clear() error { return d.Fill(color.Black) }

func (d *Display) Fill(c color.Color) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fillLocked(c)
	return d.flushLocked()
}

// Show fits img into screen keeping aspect ratio, caption goes to bottom line.
func (d *Display) Show(img image.Image, caption string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fillLocked(color.Black)
	area := d.size
	if caption != "" {
		area.Y -= captionHeight
	}
	if img != nil && area.X > 0 && area.Y > 0 {
		fit := imaging.Fit(img, area.X, area.Y, imaging.Lanczos)
		d.centerLocked(fit, image.Rectangle{Max: area})
	}
	if caption != "" {
		d.textLocked(caption, 4, d.size.Y-6, color.White)
	}
	return d.flushLocked()
}

// Text draws lines centered on black background.
func (d *Display) Text(lines ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fillLocked(color.Black)
	d.linesLocked(lines, (d.size.Y-len(lines)*lineHeight)/2)
	return d.flushLocked()
}

func (d *Display) QR(text string, border bool, level qrcode.RecoveryLevel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fillLocked(color.Black)
	if err := d.qrLocked(text, border, level, image.Rectangle{Max: d.size}); err != nil {
		return err
	}
	return d.flushLocked()
}

// Idle shows optional QR code with text lines below it.
func (d *Display) Idle(text, qrText string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fillLocked(color.Black)
	var lines []string
	if text != "" {
		lines = strings.Split(text, "\n")
	}
	textHeight := len(lines) * lineHeight
	if qrText != "" {
		area := image.Rectangle{Max: image.Point{X: d.size.X, Y: d.size.Y - textHeight}}
		if err := d.qrLocked(qrText, true, qrcode.Medium, area); err != nil {
			return err
		}
		d.linesLocked(lines, area.Max.Y)
	} else {
		d.linesLocked(lines, (d.size.Y-textHeight)/2)
	}
	return d.flushLocked()
}

// Snapshot returns copy of current frame.
func (d *Display) Snapshot() *image.RGBA {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := image.NewRGBA(d.img.Rect)
	copy(c.Pix, d.img.Pix)
	return c
}

func (d *Display) String2() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := strings.Builder{}
	b.Grow((d.size.X*2 + 1) * d.size.Y) // +1 for \n
	for y := 0; y < d.size.Y; y++ {
		for x := 0; x < d.size.X; x++ {
			c := d.img.RGBAAt(x, y)
			if c.R == 0 && c.G == 0 && c.B == 0 {
				b.WriteString("  ")
			} else {
				b.WriteString("██")
			}
		}
		b.WriteRune('\n')
	}
	return b.String()
}

func (d *Display) qrLocked(text string, border bool, level qrcode.RecoveryLevel, area image.Rectangle) error {
	qr, err := qrcode.New(text, level)
	if err != nil {
		return errors.Annotate(err, "QR")
	}
	qr.DisableBorder = !border
	side := minInt(area.Dx(), area.Dy())
	img := qr.Image(side)
	if !img.Bounds().In(image.Rectangle{Max: area.Size()}) {
		return errors.Errorf("QR image size=%s > area size=%s", img.Bounds().Max.String(), area.Size().String())
	}
	d.centerLocked(img, area)
	return nil
}

func (d *Display) centerLocked(img image.Image, area image.Rectangle) {
	b := img.Bounds()
	offset := area.Min.Add(image.Point{X: (area.Dx() - b.Dx()) / 2, Y: (area.Dy() - b.Dy()) / 2})
	draw.Draw(d.img, image.Rectangle{Min: offset, Max: offset.Add(b.Size())}, img, b.Min, draw.Src)
}

func (d *Display) linesLocked(lines []string, top int) {
	face := basicfont.Face7x13
	for i, line := range lines {
		width := font.MeasureString(face, line).Ceil()
		d.textLocked(line, (d.size.X-width)/2, top+(i+1)*lineHeight-3, color.White)
	}
}

func (d *Display) textLocked(s string, x, baseline int, c color.Color) {
	dr := &font.Drawer{
		Dst:  d.img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, baseline),
	}
	dr.DrawString(s)
}

func (d *Display) fillLocked(c color.Color) {
	draw.Draw(d.img, d.img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

func (d *Display) flushLocked() error {
	if d.fb == nil {
		return nil
	}
	if err := d.fb.Update(d.img); err != nil {
		return errors.Annotate(err, "display update")
	}
	return d.fb.Flush()
}

func minInt(i1, i2 int) int {
	if i1 <= i2 {
		return i1
	}
	return i2
}
