// Package frame holds captured camera frames in the two representations the
// liveness signals work on: 8-bit RGB and 8-bit luma.
package frame

import (
	"image"
	"image/draw"
)

// Frame is an immutable captured image. Callers must not modify Color or Gray
// after construction.
type Frame struct {
	Color *image.RGBA
	Gray  *image.Gray
}

// New converts img into a Frame anchored at the origin.
func New(img image.Image) (*Frame, error) {
	if img == nil {
		return nil, ErrEmpty
	}
	b := img.Bounds()
	if err := checkBounds(b); err != nil {
		return nil, err
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return &Frame{Color: rgba, Gray: Grayscale(rgba)}, nil
}

// Grayscale converts to luma with the ITU-R BT.601 weights camera pipelines use
// (0.299 R + 0.587 G + 0.114 B).
func Grayscale(img *image.RGBA) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, y):]
		dst := gray.Pix[gray.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			r := uint32(src[4*x])
			g := uint32(src[4*x+1])
			bl := uint32(src[4*x+2])
			dst[x] = uint8((19595*r + 38470*g + 7471*bl + 1<<15) >> 16)
		}
	}
	return gray
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.Color.Bounds().Dx() }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.Color.Bounds().Dy() }
