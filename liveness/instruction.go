package liveness

import (
	"fmt"

	"github.com/jtejido/fingerlive/attack"
	"github.com/jtejido/fingerlive/extract"
)

const (
	keyInitial       = "initial"
	keyWaiting       = "waiting"
	keyCollecting    = "collecting"
	keyLowMotion     = "low_motion"
	keyTooMuchMotion = "too_much_motion"
	keyGoodMotion    = "good_motion"
	keyAnalyzing     = "analyzing"
	keyLive          = "live_detected"
	keySpoof         = "spoof_detected"
)

var instructions = map[string]string{
	keyInitial:       "Show your finger to camera",
	keyWaiting:       "Show your index finger to camera",
	keyCollecting:    "Collecting frames...",
	keyLowMotion:     "Please move your finger slightly",
	keyTooMuchMotion: "Keep your finger more steady",
	keyGoodMotion:    "Good! Continue...",
	keyAnalyzing:     "Analyzing liveness...",
	keyLive:          "✓ LIVE FINGER DETECTED",
	keySpoof:         "✗ SPOOF DETECTED",

	string(attack.Photo):       "Photo/Print detected - Use real finger",
	string(attack.Screen):      "Screen detected - Use real finger",
	string(attack.VideoReplay): "Video replay detected - Use real finger",
	string(attack.FakeFinger):  "Fake finger detected - Use real finger",
	string(attack.Uncertain):   "Unable to determine - Try again",
}

// guidance picks the in-progress instruction from the recent motion level.
func (e *Engine) guidance(s *Session, overall, motion float64) string {
	avg := extract.Mean(s.Motion.Values())
	switch {
	case avg < e.cfg.Motion.Min*0.3:
		return instructions[keyLowMotion]
	case avg > e.cfg.Motion.Optimal*1.5:
		return instructions[keyTooMuchMotion]
	case motion >= 0.6:
		return instructions[keyGoodMotion]
	}
	return fmt.Sprintf("%s %d%%", instructions[keyAnalyzing], int(overall*100))
}

// verdictInstruction is the text shown while a verdict is held.
func verdictInstruction(v Verdict) string {
	if v.IsLive {
		return instructions[keyLive]
	}
	if v.Attack == attack.Uncertain || v.Attack == attack.None {
		return instructions[keySpoof]
	}
	if text, ok := instructions[string(v.Attack)]; ok {
		return text
	}
	return instructions[keySpoof]
}
