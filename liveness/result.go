package liveness

import (
	"github.com/jtejido/fingerlive/attack"
)

// Result is what AnalyzeFrame reports for each frame.
type Result struct {
	Status      Status  `json:"status" cbor:"status"`
	Progress    float64 `json:"progress" cbor:"progress"`
	Instruction string  `json:"instruction" cbor:"instruction"`

	OverallScore float64  `json:"overall_score" cbor:"overall_score"`
	Scores       ScoreSet `json:"scores" cbor:"scores"`

	// Primary attack while analyzing; the held label once decided.
	AttackType      attack.Kind `json:"attack_type,omitempty" cbor:"attack_type,omitempty"`
	IsLive          bool        `json:"is_live" cbor:"is_live"`
	Confidence      float64     `json:"confidence" cbor:"confidence"`
	ConfidenceLevel string      `json:"confidence_level,omitempty" cbor:"confidence_level,omitempty"`

	FramesAnalyzed int                            `json:"frames_analyzed" cbor:"frames_analyzed"`
	Attacks        map[attack.Kind]attack.Verdict `json:"attacks" cbor:"attacks"`
}

// Final reports whether r carries a terminal verdict.
func (r Result) Final() bool {
	return r.Status == StatusLive || r.Status == StatusSpoof
}
