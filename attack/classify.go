package attack

import (
	"image"

	"github.com/jtejido/fingerlive/config"
	"github.com/jtejido/fingerlive/extract"
	"github.com/jtejido/fingerlive/frame"
)

// Inputs are the per-frame measurements the classifiers consume.
type Inputs struct {
	Motion        float64
	Texture       float64
	Consistency   float64
	EdgeDensity   float64
	ColorVariance float64
	Pattern       float64
	PeriodicRatio float64
	Frame         *frame.Frame
}

// Classifier holds the read-only thresholds for the four detectors.
type Classifier struct {
	cfg     config.AttackConfig
	pattern config.PatternConfig
}

func NewClassifier(cfg *config.Config) *Classifier {
	return &Classifier{cfg: cfg.Attack, pattern: cfg.Pattern}
}

func (c *Classifier) verdict(confidence float64) Verdict {
	return Verdict{Detected: confidence >= c.cfg.DetectThreshold, Confidence: min(confidence, 1)}
}

// Photo looks for a printed photo: no motion, flat texture and a print
// halftone in the spectrum.
func (c *Classifier) Photo(in Inputs) Verdict {
	confidence := 0.0
	if in.Motion < c.cfg.PhotoMotionMax {
		confidence += 0.4
	}
	if in.Texture < c.cfg.PhotoTextureMax {
		confidence += 0.3
	}
	if in.PeriodicRatio > c.pattern.Threshold {
		confidence += 0.3
	}
	return c.verdict(confidence)
}

// Screen looks for a phone or tablet display.
func (c *Classifier) Screen(in Inputs) Verdict {
	confidence := 0.0
	if in.ColorVariance < c.cfg.ScreenColorMax {
		confidence += 0.3
	}
	if in.Pattern < c.cfg.ScreenPatternMax {
		confidence += 0.3
	}
	if in.Frame != nil && c.ScreenCharacteristics(in.Frame.Color) {
		confidence += 0.4
	}
	return c.verdict(confidence)
}

// ScreenCharacteristics reports uniform backlight saturation or strongly
// correlated RGB channels.
func (c *Classifier) ScreenCharacteristics(img *image.RGBA) bool {
	if extract.SaturationStd(img) < c.cfg.ScreenSaturationStdMax {
		return true
	}
	return extract.ChannelCorrelation(img) > c.cfg.ScreenCorrelationMin
}

// VideoReplay looks at the brightness trace for loop restarts and repetition.
// The trace must already contain the current frame's brightness.
func (c *Classifier) VideoReplay(trace []float64, consistency float64) Verdict {
	confidence := 0.0
	if len(trace) >= c.cfg.ReplayMinSamples {
		maxJump := 0.0
		for i := 1; i < len(trace); i++ {
			d := trace[i] - trace[i-1]
			if d < 0 {
				d = -d
			}
			maxJump = max(maxJump, d)
		}
		if maxJump > c.cfg.ReplayJumpMin {
			confidence += 0.4
		}
		if c.repeats(trace) {
			confidence += 0.4
		}
	}
	if consistency < c.cfg.ReplayConsistencyMax {
		confidence += 0.2
	}
	return c.verdict(confidence)
}

// repeats correlates the first half of the trace with the following half of
// equal length.
func (c *Classifier) repeats(trace []float64) bool {
	if len(trace) < c.cfg.ReplayRepeatMinSamples {
		return false
	}
	mid := len(trace) / 2
	return extract.Correlation(trace[:mid], trace[mid:2*mid]) > c.cfg.ReplayRepeatThreshold
}

// FakeFinger looks for a silicone or rubber replica.
func (c *Classifier) FakeFinger(in Inputs) Verdict {
	confidence := 0.0
	if in.EdgeDensity < c.cfg.FakeEdgeLow || in.EdgeDensity > c.cfg.FakeEdgeHigh {
		confidence += 0.4
	}
	if in.Texture < c.cfg.FakeTextureMax {
		confidence += 0.3
	}
	if in.Frame != nil && !c.SkinFeatures(in.Frame.Gray) {
		confidence += 0.3
	}
	return c.verdict(confidence)
}

// SkinFeatures tiles g into square patches and checks that the patch
// variances themselves vary enough. Live skin has spatially uneven detail;
// cast or moulded surfaces are uniform. Images smaller than two patches in
// either direction pass.
func (c *Classifier) SkinFeatures(g *image.Gray) bool {
	size := c.cfg.SkinPatchSize
	b := g.Bounds()
	if b.Dx() < 2*size || b.Dy() < 2*size {
		return true
	}

	var variances []float64
	for y := 0; y < b.Dy()-size; y += size {
		for x := 0; x < b.Dx()-size; x += size {
			rect := image.Rect(x, y, x+size, y+size).Add(b.Min)
			_, v := extract.GrayStats(g.SubImage(rect).(*image.Gray))
			variances = append(variances, v)
		}
	}
	return extract.Variance(variances) > c.cfg.SkinVarianceMin
}

// Evaluate records the current frame's brightness and reruns all four
// classifiers, replacing the verdicts in s.
func (c *Classifier) Evaluate(s *State, in Inputs) {
	if in.Frame != nil {
		s.Brightness.Push(extract.Brightness(in.Frame.Gray))
	}
	s.Verdicts[Photo] = c.Photo(in)
	s.Verdicts[Screen] = c.Screen(in)
	s.Verdicts[VideoReplay] = c.VideoReplay(s.Brightness.Values(), in.Consistency)
	s.Verdicts[FakeFinger] = c.FakeFinger(in)
}
