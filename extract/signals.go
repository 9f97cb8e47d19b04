package extract

import (
	"image"
	"math"

	"github.com/jtejido/fingerlive/config"
)

// Motion compares the most recent consecutive frame pairs and returns the
// normalized score together with the average number of pixels whose intensity
// changed by more than cfg.PixelThreshold.
func Motion(grays []*image.Gray, cfg config.MotionConfig) (score, avgPixels float64) {
	if len(grays) < 2 {
		return 0, 0
	}
	if len(grays) > cfg.Pairs+1 {
		grays = grays[len(grays)-cfg.Pairs-1:]
	}

	counts := make([]int, 0, len(grays)-1)
	for i := 1; i < len(grays); i++ {
		counts = append(counts, changedPixels(grays[i-1], grays[i], cfg.PixelThreshold))
	}
	avgPixels = Mean(counts)
	return ClampScale(avgPixels, cfg.Min, cfg.Optimal, 0.3), avgPixels
}

// changedPixels counts pixels over the shared area of a and b whose absolute
// difference exceeds delta.
func changedPixels(a, b *image.Gray, delta float64) int {
	ab, bb := a.Bounds(), b.Bounds()
	w := min(ab.Dx(), bb.Dx())
	h := min(ab.Dy(), bb.Dy())
	count := 0
	for y := 0; y < h; y++ {
		ra := a.Pix[a.PixOffset(ab.Min.X, ab.Min.Y+y):]
		rb := b.Pix[b.PixOffset(bb.Min.X, bb.Min.Y+y):]
		for x := 0; x < w; x++ {
			if math.Abs(float64(ra[x])-float64(rb[x])) > delta {
				count++
			}
		}
	}
	return count
}

// Texture blends intensity variance, Laplacian variance and gradient
// magnitude spread (0.4/0.4/0.2).
func Texture(g *image.Gray, cfg config.TextureConfig) float64 {
	_, variance := GrayStats(g)
	varianceScore := ClampScale(variance, cfg.VarianceMin, cfg.VarianceOptimal, 0.5)

	p := toPlane(g)
	hf := Variance(laplacian(p))
	hfScore := ClampScale(hf, cfg.HFMin, cfg.HFOptimal, 0.5)

	gx, gy := sobel(p)
	magnitude := make([]float64, len(gx))
	for i := range gx {
		magnitude[i] = math.Hypot(gx[i], gy[i])
	}
	diversity := math.Sqrt(Variance(magnitude))
	diversityScore := math.Min(1, diversity/cfg.DiversityMin)

	return clamp01(varianceScore*0.4 + hfScore*0.4 + diversityScore*0.2)
}

// Consistency scores frame-to-frame brightness stability over the last
// cfg.Window frames. It is neutral (0.5) until the window is filled. A single
// jump above cfg.JumpThreshold pins the score to 0.2 whatever the average.
func Consistency(grays []*image.Gray, cfg config.ConsistencyConfig) float64 {
	if len(grays) < cfg.Window {
		return 0.5
	}
	window := grays[len(grays)-cfg.Window:]

	diffs := make([]float64, 0, len(window)-1)
	prev := Brightness(window[0])
	for _, g := range window[1:] {
		cur := Brightness(g)
		diffs = append(diffs, math.Abs(cur-prev))
		prev = cur
	}
	if len(diffs) == 0 {
		return 1
	}

	if Max(diffs) > cfg.JumpThreshold {
		return 0.2
	}
	avg := Mean(diffs)
	if avg < cfg.Threshold {
		return 1
	}
	return clamp01(1 - (avg-cfg.Threshold)/cfg.Falloff)
}

// EdgeScore maps an edge density onto [0,1]: full marks inside the skin band,
// proportional below it, and falling off with the excess above it.
func EdgeScore(density float64, cfg config.EdgeConfig) float64 {
	switch {
	case density < cfg.DensityMin:
		return clamp01(density / cfg.DensityMin)
	case density > cfg.DensityMax:
		return clamp01(1 - (density-cfg.DensityMax)/cfg.ExcessFalloff)
	}
	return 1
}

// EdgeDensity runs Canny with the configured thresholds and scores the result.
func EdgeDensity(g *image.Gray, cfg config.EdgeConfig) float64 {
	return EdgeScore(EdgeFraction(g, cfg.CannyLow, cfg.CannyHigh), cfg)
}

// ColorVariance blends the summed per-channel variance (0.6) with the mean
// pairwise inter-channel difference (0.4). Backlit screens score low on both.
func ColorVariance(img *image.RGBA, cfg config.ColorConfig) float64 {
	r, g, b := channels(img)
	total := Variance(r) + Variance(g) + Variance(b)

	var bg, gr, rb float64
	for i := range r {
		bg += math.Abs(b[i] - g[i])
		gr += math.Abs(g[i] - r[i])
		rb += math.Abs(r[i] - b[i])
	}
	diversity := 0.0
	if n := float64(len(r)); n > 0 {
		diversity = (bg + gr + rb) / (3 * n)
	}

	varianceScore := ClampScale(total, cfg.VarianceMin, cfg.VarianceOptimal, 0.5)
	diversityScore := ClampScale(diversity, cfg.DiversityMin, cfg.DiversityOptimal, 0.5)
	return clamp01(varianceScore*0.6 + diversityScore*0.4)
}

// PeriodicRatio returns the peak-to-mean magnitude ratio of the frequency
// spectrum of a downsampled patch, with the DC neighbourhood removed. Regular
// structure such as print halftone or a pixel grid yields a high ratio.
func PeriodicRatio(g *image.Gray, cfg config.PatternConfig) float64 {
	n := cfg.FFTSize
	mag := spectrum(resize(g, n))

	lo, hi := n/2-cfg.DCRadius, n/2+cfg.DCRadius
	for y := lo; y < hi; y++ {
		for x := lo; x < hi; x++ {
			mag[y*n+x] = 0
		}
	}
	return Max(mag) / (Mean(mag) + 1)
}

// PatternScore converts a periodic ratio to a score; high ratios mean a
// regular pattern and score low.
func PatternScore(ratio float64, cfg config.PatternConfig) float64 {
	if ratio >= cfg.Threshold {
		return 0.2
	}
	return clamp01(1 - ratio/cfg.Threshold*0.8)
}
