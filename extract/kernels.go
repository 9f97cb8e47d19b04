package extract

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/stat"
)

// plane is a dense float64 copy of a grayscale image, indexed [y*w+x].
type plane struct {
	w, h int
	v    []float64
}

func toPlane(g *image.Gray) *plane {
	b := g.Bounds()
	p := &plane{w: b.Dx(), h: b.Dy(), v: make([]float64, b.Dx()*b.Dy())}
	for y := 0; y < p.h; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < p.w; x++ {
			p.v[y*p.w+x] = float64(row[x])
		}
	}
	return p
}

// reflect101 mirrors an out-of-range index without repeating the edge pixel
// (…2 1 | 0 1 2 … n-2 n-1 | n-2 n-3…).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

func (p *plane) at(x, y int) float64 {
	return p.v[reflect101(y, p.h)*p.w+reflect101(x, p.w)]
}

// laplacian applies the 4-neighbour aperture [0 1 0; 1 -4 1; 0 1 0].
func laplacian(p *plane) []float64 {
	out := make([]float64, len(p.v))
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			out[y*p.w+x] = p.at(x-1, y) + p.at(x+1, y) + p.at(x, y-1) + p.at(x, y+1) - 4*p.at(x, y)
		}
	}
	return out
}

// sobel returns the 3x3 Sobel derivatives in x and y.
func sobel(p *plane) (gx, gy []float64) {
	gx = make([]float64, len(p.v))
	gy = make([]float64, len(p.v))
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			tl, t, tr := p.at(x-1, y-1), p.at(x, y-1), p.at(x+1, y-1)
			l, r := p.at(x-1, y), p.at(x+1, y)
			bl, b, br := p.at(x-1, y+1), p.at(x, y+1), p.at(x+1, y+1)
			i := y*p.w + x
			gx[i] = (tr + 2*r + br) - (tl + 2*l + bl)
			gy[i] = (bl + 2*b + br) - (tl + 2*t + tr)
		}
	}
	return gx, gy
}

const (
	tan22 = 0.41421356 // tan(22.5°)
	tan67 = 2.41421356 // tan(67.5°)
)

// Canny runs gradient edge detection with L1 magnitude, non-maximum
// suppression and hysteresis between low and high, and returns the edge map.
func Canny(g *image.Gray, low, high float64) []bool {
	p := toPlane(g)
	gx, gy := sobel(p)
	w, h := p.w, p.h

	mag := make([]float64, len(gx))
	for i := range gx {
		mag[i] = math.Abs(gx[i]) + math.Abs(gy[i])
	}

	const (
		none = iota
		weak
		strong
	)
	state := make([]uint8, len(mag))
	var stack []int
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m <= low {
				continue
			}
			ax, ay := math.Abs(gx[i]), math.Abs(gy[i])
			var n1, n2 float64
			switch {
			case ay < ax*tan22:
				n1, n2 = mag[i-1], mag[i+1]
			case ay > ax*tan67:
				n1, n2 = mag[i-w], mag[i+w]
			case (gx[i] < 0) == (gy[i] < 0):
				n1, n2 = mag[i-w-1], mag[i+w+1]
			default:
				n1, n2 = mag[i-w+1], mag[i+w-1]
			}
			if m <= n1 || m < n2 {
				continue
			}
			if m > high {
				state[i] = strong
				stack = append(stack, i)
			} else {
				state[i] = weak
			}
		}
	}

	edges := make([]bool, len(mag))
	for _, i := range stack {
		edges[i] = true
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == weak && !edges[j] {
					edges[j] = true
					stack = append(stack, j)
				}
			}
		}
	}
	return edges
}

// EdgeFraction returns the share of pixels Canny marks as edges.
func EdgeFraction(g *image.Gray, low, high float64) float64 {
	edges := Canny(g, low, high)
	if len(edges) == 0 {
		return 0
	}
	n := 0
	for _, e := range edges {
		if e {
			n++
		}
	}
	return float64(n) / float64(len(edges))
}

// resize scales g onto a size x size grid with bilinear interpolation.
func resize(g *image.Gray, size int) *plane {
	if b := g.Bounds(); b.Dx() == size && b.Dy() == size {
		return toPlane(g)
	}
	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), g, g.Bounds(), draw.Src, nil)
	return toPlane(dst)
}

// channels splits an RGBA image into float channel slices.
func channels(img *image.RGBA) (r, g, b []float64) {
	bounds := img.Bounds()
	n := bounds.Dx() * bounds.Dy()
	r, g, b = make([]float64, 0, n), make([]float64, 0, n), make([]float64, 0, n)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := img.Pix[img.PixOffset(bounds.Min.X, y):]
		for x := 0; x < bounds.Dx(); x++ {
			r = append(r, float64(row[4*x]))
			g = append(g, float64(row[4*x+1]))
			b = append(b, float64(row[4*x+2]))
		}
	}
	return r, g, b
}

// ChannelCorrelation returns the average of the red/green and green/blue
// Pearson correlations.
func ChannelCorrelation(img *image.RGBA) float64 {
	r, g, b := channels(img)
	return (Correlation(r, g) + Correlation(g, b)) / 2
}

// SaturationStd returns the standard deviation of the HSV saturation channel
// on a 0-255 scale.
func SaturationStd(img *image.RGBA) float64 {
	bounds := img.Bounds()
	sat := make([]float64, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := img.Pix[img.PixOffset(bounds.Min.X, y):]
		for x := 0; x < bounds.Dx(); x++ {
			r, g, b := row[4*x], row[4*x+1], row[4*x+2]
			hi := max(r, g, b)
			lo := min(r, g, b)
			var s float64
			if hi > 0 {
				s = float64(hi-lo) * 255 / float64(hi)
			}
			sat = append(sat, s)
		}
	}
	if len(sat) == 0 {
		return 0
	}
	return stat.PopStdDev(sat, nil)
}
