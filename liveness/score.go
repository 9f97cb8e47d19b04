package liveness

import (
	"github.com/jtejido/fingerlive/config"
)

// Method names used in results and saved metadata.
const (
	MethodMotion      = "motion"
	MethodTexture     = "texture"
	MethodConsistency = "consistency"
	MethodEdgeDensity = "edge_density"
	MethodColor       = "color_variance"
	MethodPattern     = "pattern_detection"
)

// Methods lists the signal names in reporting order.
var Methods = []string{MethodMotion, MethodTexture, MethodConsistency, MethodEdgeDensity, MethodColor, MethodPattern}

// ScoreSet holds the six normalized signal scores of one analyzed frame.
type ScoreSet struct {
	Motion           float64 `json:"motion" cbor:"motion"`
	Texture          float64 `json:"texture" cbor:"texture"`
	Consistency      float64 `json:"consistency" cbor:"consistency"`
	EdgeDensity      float64 `json:"edge_density" cbor:"edge_density"`
	ColorVariance    float64 `json:"color_variance" cbor:"color_variance"`
	PatternDetection float64 `json:"pattern_detection" cbor:"pattern_detection"`
}

// Weighted returns the weighted sum of the scores, clamped to [0,1].
func (s ScoreSet) Weighted(w config.Weights) float64 {
	sum := s.Motion*w.Motion +
		s.Texture*w.Texture +
		s.Consistency*w.Consistency +
		s.EdgeDensity*w.EdgeDensity +
		s.ColorVariance*w.ColorVariance +
		s.PatternDetection*w.PatternDetection
	return max(0, min(1, sum))
}

// Get returns the score for a method name.
func (s ScoreSet) Get(method string) (float64, bool) {
	switch method {
	case MethodMotion:
		return s.Motion, true
	case MethodTexture:
		return s.Texture, true
	case MethodConsistency:
		return s.Consistency, true
	case MethodEdgeDensity:
		return s.EdgeDensity, true
	case MethodColor:
		return s.ColorVariance, true
	case MethodPattern:
		return s.PatternDetection, true
	}
	return 0, false
}

// Weight returns the configured weight for a method name.
func Weight(w config.Weights, method string) float64 {
	switch method {
	case MethodMotion:
		return w.Motion
	case MethodTexture:
		return w.Texture
	case MethodConsistency:
		return w.Consistency
	case MethodEdgeDensity:
		return w.EdgeDensity
	case MethodColor:
		return w.ColorVariance
	case MethodPattern:
		return w.PatternDetection
	}
	return 0
}
