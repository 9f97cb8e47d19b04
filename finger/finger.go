// Package finger decides whether a finger is presented to the camera.
package finger

import (
	"image"
	"image/color"

	"github.com/jtejido/fingerlive/config"
	"github.com/jtejido/fingerlive/frame"
)

// Detector reports whether a finger is visible in f, with its bounding box.
type Detector interface {
	Detect(f *frame.Frame) (image.Rectangle, bool)
}

// Static reports the same presence for every frame. It is used when the
// client performs detection itself and sends the flag along with the frame.
type Static bool

func (s Static) Detect(f *frame.Frame) (image.Rectangle, bool) {
	if !s || f == nil {
		return image.Rectangle{}, bool(s)
	}
	return f.Color.Bounds(), true
}

// Skin finds skin-toned pixels in YCbCr space and treats their bounding box
// as the finger.
type Skin struct {
	cfg config.FingerConfig
}

func NewSkin(cfg config.FingerConfig) *Skin {
	return &Skin{cfg: cfg}
}

// skin-tone chroma ranges
const (
	cbLow, cbHigh = 77, 127
	crLow, crHigh = 133, 173
)

func isSkin(r, g, b uint8) bool {
	_, cb, cr := color.RGBToYCbCr(r, g, b)
	return cb >= cbLow && cb <= cbHigh && cr >= crLow && cr <= crHigh
}

func (d *Skin) Detect(f *frame.Frame) (image.Rectangle, bool) {
	if f == nil {
		return image.Rectangle{}, false
	}
	img := f.Color
	b := img.Bounds()

	box := image.Rectangle{}
	count := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			p := row[x*4 : x*4+3]
			if !isSkin(p[0], p[1], p[2]) {
				continue
			}
			count++
			px := image.Rect(b.Min.X+x, y, b.Min.X+x+1, y+1)
			if box.Empty() {
				box = px
			} else {
				box = box.Union(px)
			}
		}
	}

	if box.Dx() < d.cfg.MinBoxSize || box.Dy() < d.cfg.MinBoxSize {
		return box, false
	}
	fraction := float64(count) / float64(b.Dx()*b.Dy())
	return box, fraction >= d.cfg.MinSkinFraction
}
