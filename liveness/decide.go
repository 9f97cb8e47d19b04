package liveness

import (
	"math"

	"github.com/jtejido/fingerlive/attack"
	"github.com/jtejido/fingerlive/config"
	"github.com/jtejido/fingerlive/extract"
	"github.com/jtejido/fingerlive/frame"
)

// Reason records which rule produced a verdict.
type Reason string

const (
	ReasonScreenCheck Reason = "screen_check"
	ReasonColorVeto   Reason = "color_veto"
	ReasonScore       Reason = "score"
)

// Verdict is the terminal outcome of a session. It is computed once and held
// until the session is reset.
type Verdict struct {
	IsLive     bool        `json:"is_live" cbor:"is_live"`
	Confidence float64     `json:"confidence" cbor:"confidence"`
	Overall    float64     `json:"overall_score" cbor:"overall_score"`
	Attack     attack.Kind `json:"attack_type,omitempty" cbor:"attack_type,omitempty"`
	Reason     Reason      `json:"reason" cbor:"reason"`
	Indicators int         `json:"screen_indicators" cbor:"screen_indicators"`
}

// ScreenIndicators are the five independent signs of a display held up to
// the camera.
type ScreenIndicators struct {
	LowColor           bool `json:"low_color"`
	UniformBrightness  bool `json:"uniform_brightness"`
	ChannelCorrelation bool `json:"channel_correlation"`
	AbnormalEdges      bool `json:"abnormal_edges"`
	Glare              bool `json:"glare"`
}

// Count returns how many indicators fired.
func (i ScreenIndicators) Count() int {
	n := 0
	for _, b := range []bool{i.LowColor, i.UniformBrightness, i.ChannelCorrelation, i.AbnormalEdges, i.Glare} {
		if b {
			n++
		}
	}
	return n
}

// DetectScreen evaluates the five screen indicators on f.
func DetectScreen(f *frame.Frame, colorScore float64, cfg config.ScreenConfig) ScreenIndicators {
	_, variance := extract.GrayStats(f.Gray)
	density := extract.EdgeFraction(f.Gray, cfg.CannyLow, cfg.CannyHigh)
	return ScreenIndicators{
		LowColor:           colorScore < cfg.VetoThreshold,
		UniformBrightness:  math.Sqrt(variance) < cfg.BrightnessUniformity,
		ChannelCorrelation: extract.ChannelCorrelation(f.Color) > cfg.RGBCorrelation,
		AbnormalEdges:      density < cfg.EdgeDensityLow || density > cfg.EdgeDensityHigh,
		Glare:              extract.BrightFraction(f.Gray, cfg.GlareIntensity) > cfg.GlareRatio,
	}
}

// decide applies the decision rules in order: the five-indicator screen
// check, then the color veto, then the weighted score.
func decide(cfg *config.Config, scores ScoreSet, screen ScreenIndicators, attacks attack.State) Verdict {
	overall := scores.Weighted(cfg.Weights)
	v := Verdict{Overall: overall, Indicators: screen.Count()}

	switch {
	case v.Indicators >= cfg.Screen.MinIndicators:
		v.Confidence = cfg.Screen.Confidence
		v.Attack = attack.Screen
		v.Reason = ReasonScreenCheck
	case cfg.Screen.VetoEnabled && scores.ColorVariance < cfg.Screen.VetoThreshold:
		v.Confidence = scores.ColorVariance
		v.Attack = attack.Screen
		v.Reason = ReasonColorVeto
	default:
		v.Reason = ReasonScore
		v.Confidence = overall
		v.IsLive = overall >= cfg.Decision.LivenessThreshold
		if !v.IsLive {
			v.Attack, _ = attacks.Primary(cfg.Attack.DetectThreshold)
			if v.Attack == attack.None {
				v.Attack = attack.Uncertain
			}
		}
	}
	return v
}

// ConfidenceLevel buckets a decided confidence into HIGH, MEDIUM, LOW or SPOOF.
func ConfidenceLevel(confidence float64, cfg config.DecisionConfig) string {
	switch {
	case confidence >= cfg.ConfidenceHigh:
		return "HIGH"
	case confidence >= cfg.ConfidenceMedium:
		return "MEDIUM"
	case confidence >= cfg.ConfidenceLow:
		return "LOW"
	}
	return "SPOOF"
}
