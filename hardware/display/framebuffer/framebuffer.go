// Package framebuffer writes RGBA frames to Linux fbdev.
// Geometry comes from sysfs (/sys/class/graphics/fbN) unless configured.
package framebuffer

import (
	"encoding/binary"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

const sysfsRoot = "/sys/class/graphics"

type Framebuffer struct {
	buf  []byte
	dev  *os.File
	size image.Point
	bpp  int
}

// New size or bpp zero means read from sysfs.
func New(dev string, size image.Point, bpp int) (*Framebuffer, error) {
	var err error
	name := filepath.Base(dev)
	if size.X <= 0 || size.Y <= 0 {
		if size, err = readSize(sysfsRoot, name); err != nil {
			return nil, errors.Annotate(err, "size")
		}
	}
	if bpp <= 0 {
		if bpp, err = readInt(filepath.Join(sysfsRoot, name, "bits_per_pixel")); err != nil {
			return nil, errors.Annotate(err, "bits_per_pixel")
		}
	}
	if bpp != 16 && bpp != 32 {
		return nil, errors.NotSupportedf("bits_per_pixel=%d", bpp)
	}
	devFile, err := os.OpenFile(dev, os.O_RDWR, os.ModeDevice)
	if err != nil {
		return nil, errors.Annotate(err, "open")
	}
	fb := &Framebuffer{
		dev:  devFile,
		size: size,
		bpp:  bpp,
		buf:  make([]byte, size.X*size.Y*bpp/8),
	}
	return fb, nil
}

func (fb *Framebuffer) Close() error {
	return fb.dev.Close()
}

func (fb *Framebuffer) Flush() error {
	_, err := unix.Pwrite(int(fb.dev.Fd()), fb.buf, 0)
	return errors.Annotate(err, "framebuffer write")
}

func (fb *Framebuffer) Size() image.Point { return fb.size }

// Update converts img into internal buffer, call Flush() to write to hardware.
// img must be at least framebuffer size.
func (fb *Framebuffer) Update(img *image.RGBA) error {
	if r := (image.Rectangle{Max: fb.size}); !r.In(img.Bounds()) {
		return errors.NotValidf("image size=%s < framebuffer size=%s", img.Bounds().Size(), fb.size)
	}
	Encode(fb.buf, img, fb.size, fb.bpp)
	return nil
}

// Encode writes little endian RGB565 (bpp=16) or BGRX (bpp=32) pixels.
func Encode(dst []byte, img *image.RGBA, size image.Point, bpp int) {
	wordSize := bpp / 8
	i := 0
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			c := img.RGBAAt(x, y)
			offset := i * wordSize
			switch bpp {
			case 16:
				binary.LittleEndian.PutUint16(dst[offset:], encode565(c.R, c.G, c.B))
			case 32:
				dst[offset+0] = c.B
				dst[offset+1] = c.G
				dst[offset+2] = c.R
				dst[offset+3] = 0xff
			}
			i++
		}
	}
}

func encode565(r, g, b uint8) uint16 {
	return (uint16(r) & 0xf8 << 8) | (uint16(g) & 0xfc << 3) | (uint16(b) & 0xf8 >> 3)
}

func readSize(root, name string) (image.Point, error) {
	b, err := os.ReadFile(filepath.Join(root, name, "virtual_size"))
	if err != nil {
		return image.Point{}, errors.Trace(err)
	}
	parts := strings.Split(strings.TrimSpace(string(b)), ",")
	if len(parts) != 2 {
		return image.Point{}, errors.NotValidf("virtual_size=%q", string(b))
	}
	x, errx := strconv.Atoi(parts[0])
	y, erry := strconv.Atoi(parts[1])
	if errx != nil || erry != nil {
		return image.Point{}, errors.NotValidf("virtual_size=%q", string(b))
	}
	return image.Point{X: x, Y: y}, nil
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return strconv.Atoi(strings.TrimSpace(string(b)))
}
