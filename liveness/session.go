package liveness

import (
	"github.com/jtejido/fingerlive/attack"
	"github.com/jtejido/fingerlive/buffer"
	"github.com/jtejido/fingerlive/config"
)

// Phase is the lifecycle position of a session.
type Phase int

const (
	Waiting Phase = iota
	Analyzing
	Decided
)

func (p Phase) String() string {
	switch p {
	case Waiting:
		return "waiting"
	case Analyzing:
		return "analyzing"
	case Decided:
		return "decided"
	}
	return "unknown"
}

// Session is the mutable state of one liveness attempt. It is owned by a
// single caller; the engine never retains it between calls.
type Session struct {
	Phase          Phase
	FramesAnalyzed int

	Scores      ScoreSet
	Attacks     attack.State
	Verdict     Verdict
	Instruction string

	Frames *buffer.FrameBuffer
	// Average changed-pixel counts, used for operator guidance.
	Motion *buffer.Ring[float64]
}

// newSession is the only place a Session's initial values are spelled out;
// creation and reset both go through it.
func newSession(cfg *config.Config) Session {
	return Session{
		Phase:       Waiting,
		Attacks:     attack.NewState(cfg.Attack.ReplayTraceLength),
		Instruction: instructions[keyInitial],
		Frames:      buffer.NewFrameBuffer(cfg.Motion.Frames),
		Motion:      buffer.NewRing[float64](cfg.Motion.History),
	}
}

// Decided reports whether the session holds a terminal verdict.
func (s *Session) Decided() bool { return s.Phase == Decided }
