// Package attack classifies presentation attacks. Each classifier adds up the
// weights of the indicators that fire and reports a detection once the total
// reaches the configured threshold.
package attack

import (
	"github.com/jtejido/fingerlive/buffer"
)

// Kind names an attack category.
type Kind string

const (
	None        Kind = ""
	Photo       Kind = "photo_attack"
	Screen      Kind = "screen_attack"
	VideoReplay Kind = "video_replay"
	FakeFinger  Kind = "fake_finger"

	// Uncertain labels a spoof verdict that no classifier accounts for.
	Uncertain Kind = "uncertain"
)

// Kinds lists every category in tie-break order for primary selection.
var Kinds = []Kind{Photo, Screen, VideoReplay, FakeFinger}

// Verdict is the output of a single classifier.
type Verdict struct {
	Detected   bool    `json:"detected" cbor:"detected"`
	Confidence float64 `json:"confidence" cbor:"confidence"`
}

// State is the per-session attack state: the latest verdict of every
// classifier and the brightness trace the replay classifier works on.
type State struct {
	Verdicts   map[Kind]Verdict
	Brightness *buffer.Ring[float64]
}

// NewState returns an empty state with a brightness trace of traceLen samples.
func NewState(traceLen int) State {
	verdicts := make(map[Kind]Verdict, len(Kinds))
	for _, k := range Kinds {
		verdicts[k] = Verdict{}
	}
	return State{
		Verdicts:   verdicts,
		Brightness: buffer.NewRing[float64](traceLen),
	}
}

// Primary returns the detected attack with the highest confidence among those
// at or above threshold, or None.
func (s State) Primary(threshold float64) (Kind, float64) {
	best, conf := None, 0.0
	for _, k := range Kinds {
		v := s.Verdicts[k]
		if v.Confidence >= threshold && v.Confidence > conf {
			best, conf = k, v.Confidence
		}
	}
	return best, conf
}

// Summary returns a copy of the verdicts suitable for diagnostics.
func (s State) Summary() map[Kind]Verdict {
	out := make(map[Kind]Verdict, len(s.Verdicts))
	for k, v := range s.Verdicts {
		out[k] = v
	}
	return out
}

// Any reports whether any classifier currently fires.
func (s State) Any() bool {
	for _, v := range s.Verdicts {
		if v.Detected {
			return true
		}
	}
	return false
}
