package extract

import (
	"image"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/stat"
)

type number interface {
	constraints.Integer | constraints.Float
}

func floats[T number](xs []T) []float64 {
	if f, ok := any(xs).([]float64); ok {
		return f
	}
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean[T number](xs []T) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(floats(xs), nil)
}

// Variance returns the population variance of xs.
func Variance[T number](xs []T) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.PopVariance(floats(xs), nil)
}

// Max returns the largest element of xs, or 0 for an empty slice.
func Max[T number](xs []T) T {
	var best T
	for i, x := range xs {
		if i == 0 || x > best {
			best = x
		}
	}
	return best
}

// Correlation returns the Pearson correlation of two equally long series.
// A constant series has no defined correlation; 0 is returned for it so that
// threshold checks on the result do not fire.
func Correlation[T number](a, b []T) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	fa, fb := floats(a), floats(b)
	if stat.PopVariance(fa, nil) == 0 || stat.PopVariance(fb, nil) == 0 {
		return 0
	}
	return stat.Correlation(fa, fb, nil)
}

// pixels copies the intensities within g's bounds. Sub-images are supported.
func pixels(g *image.Gray) []float64 {
	b := g.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			out = append(out, float64(row[x]))
		}
	}
	return out
}

// GrayStats returns the mean and population variance of the pixel intensities
// within g's bounds.
func GrayStats(g *image.Gray) (mean, variance float64) {
	px := pixels(g)
	if len(px) == 0 {
		return 0, 0
	}
	return stat.PopMeanVariance(px, nil)
}

// Brightness returns the mean intensity of g.
func Brightness(g *image.Gray) float64 {
	px := pixels(g)
	if len(px) == 0 {
		return 0
	}
	return stat.Mean(px, nil)
}

// BrightFraction returns the fraction of pixels strictly above level.
func BrightFraction(g *image.Gray, level float64) float64 {
	b := g.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	count := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[g.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			if float64(row[x]) > level {
				count++
			}
		}
	}
	return float64(count) / float64(total)
}
