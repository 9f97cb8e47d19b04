// Package liveness is the decision engine. It buffers frames, runs the six
// signal extractors and the attack classifiers, and moves a Session through
// WAITING, ANALYZING and DECIDED.
//
// The Engine holds only read-only configuration and may be shared by any
// number of sessions; every mutable value lives in the Session passed in.
package liveness

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jtejido/fingerlive/attack"
	"github.com/jtejido/fingerlive/config"
	"github.com/jtejido/fingerlive/extract"
	"github.com/jtejido/fingerlive/frame"
)

var ErrNilFrame = errors.New("nil frame with finger present")

// Status is the lifecycle status reported with each result.
type Status string

const (
	StatusWaiting   Status = "WAITING"
	StatusAnalyzing Status = "ANALYZING"
	StatusLive      Status = "LIVE"
	StatusSpoof     Status = "SPOOF"
)

type Engine struct {
	cfg        *config.Config
	classifier *attack.Classifier
	log        zerolog.Logger
}

type Option func(*Engine)

// WithLogger sets the logger used for decision and score output.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = l.With().Str("component", "engine").Logger()
	}
}

// New validates cfg and returns an engine bound to it. cfg must not be
// modified afterwards.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("nil configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("liveness engine: %w", err)
	}
	e := &Engine{
		cfg:        cfg,
		classifier: attack.NewClassifier(cfg),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Config() *config.Config { return e.cfg }

// NewSession returns a session in its initial WAITING state.
func (e *Engine) NewSession() *Session {
	s := newSession(e.cfg)
	return &s
}

// Reset returns s to its initial state, dropping buffered frames, scores,
// attack history and any verdict.
func (e *Engine) Reset(s *Session) {
	*s = newSession(e.cfg)
}

// AnalyzeFrame advances s by one frame. f may be nil only when no finger is
// present. Once a verdict is reached it is held unchanged until Reset, but
// scores and attack diagnostics keep tracking new frames.
func (e *Engine) AnalyzeFrame(s *Session, f *frame.Frame, fingerDetected bool) (Result, error) {
	if fingerDetected && f == nil {
		return Result{}, ErrNilFrame
	}

	if s.Phase == Decided {
		if fingerDetected {
			s.Frames.Push(f)
			e.measure(s, f)
			holdScreenVerdict(s)
		}
		return e.decidedResult(s), nil
	}

	if !fingerDetected {
		if s.Phase == Analyzing {
			e.log.Debug().Int("frames", s.FramesAnalyzed).Msg("finger lost, resetting")
			e.Reset(s)
		}
		s.Instruction = instructions[keyWaiting]
		return e.result(s, StatusWaiting, 0, 0), nil
	}

	if s.Phase == Waiting {
		s.Phase = Analyzing
		s.FramesAnalyzed = 0
		e.log.Debug().Msg("finger detected, analysis started")
	}
	s.FramesAnalyzed++
	s.Frames.Push(f)

	progress := min(100, float64(s.FramesAnalyzed)/float64(e.cfg.Decision.MinFramesForDecision)*100)
	if s.Frames.Len() < e.cfg.Decision.MinFramesBuffered {
		s.Instruction = instructions[keyCollecting]
		return e.result(s, StatusAnalyzing, progress, 0), nil
	}

	overall := e.measure(s, f)
	if interval := e.cfg.Decision.ScoreLogInterval; interval > 0 && s.FramesAnalyzed%interval == 0 {
		e.log.Debug().
			Int("frame", s.FramesAnalyzed).
			Float64("overall", overall).
			Interface("scores", s.Scores).
			Bool("attack_flagged", s.Attacks.Any()).
			Msg("scores")
	}

	if s.FramesAnalyzed >= e.cfg.Decision.MinFramesForDecision {
		e.conclude(s, f)
		return e.decidedResult(s), nil
	}

	s.Instruction = e.guidance(s, overall, s.Scores.Motion)
	return e.result(s, StatusAnalyzing, progress, overall), nil
}

// measure recomputes all six scores and all four classifiers for the newest
// frame and returns the weighted overall score. f must already be buffered.
func (e *Engine) measure(s *Session, f *frame.Frame) float64 {
	cfg := e.cfg
	grays := s.Frames.Grays()

	motion, avgPixels := extract.Motion(grays, cfg.Motion)
	s.Motion.Push(avgPixels)
	ratio := extract.PeriodicRatio(f.Gray, cfg.Pattern)

	s.Scores = ScoreSet{
		Motion:           motion,
		Texture:          extract.Texture(f.Gray, cfg.Texture),
		Consistency:      extract.Consistency(grays, cfg.Consistency),
		EdgeDensity:      extract.EdgeDensity(f.Gray, cfg.Edge),
		ColorVariance:    extract.ColorVariance(f.Color, cfg.Color),
		PatternDetection: extract.PatternScore(ratio, cfg.Pattern),
	}

	e.classifier.Evaluate(&s.Attacks, attack.Inputs{
		Motion:        s.Scores.Motion,
		Texture:       s.Scores.Texture,
		Consistency:   s.Scores.Consistency,
		EdgeDensity:   s.Scores.EdgeDensity,
		ColorVariance: s.Scores.ColorVariance,
		Pattern:       s.Scores.PatternDetection,
		PeriodicRatio: ratio,
		Frame:         f,
	})
	return s.Scores.Weighted(cfg.Weights)
}

// conclude computes the verdict for s. It runs exactly once per session.
func (e *Engine) conclude(s *Session, f *frame.Frame) {
	screen := DetectScreen(f, s.Scores.ColorVariance, e.cfg.Screen)
	v := decide(e.cfg, s.Scores, screen, s.Attacks)

	s.Verdict = v
	s.Phase = Decided
	holdScreenVerdict(s)
	s.Instruction = verdictInstruction(v)

	e.log.Info().
		Int("frames", s.FramesAnalyzed).
		Float64("overall", v.Overall).
		Float64("color", s.Scores.ColorVariance).
		Int("screen_indicators", v.Indicators).
		Str("reason", string(v.Reason)).
		Bool("live", v.IsLive).
		Float64("confidence", v.Confidence).
		Str("attack", string(v.Attack)).
		Msg("decision")
}

// holdScreenVerdict keeps the screen classifier flagged for as long as a
// screen verdict is held, even when later frames no longer trip it.
func holdScreenVerdict(s *Session) {
	if s.Phase != Decided || s.Verdict.Attack != attack.Screen {
		return
	}
	v := s.Attacks.Verdicts[attack.Screen]
	v.Detected = true
	s.Attacks.Verdicts[attack.Screen] = v
}

func (e *Engine) decidedResult(s *Session) Result {
	status := StatusSpoof
	if s.Verdict.IsLive {
		status = StatusLive
	}
	r := e.result(s, status, 100, s.Verdict.Overall)
	r.IsLive = s.Verdict.IsLive
	r.Confidence = s.Verdict.Confidence
	r.AttackType = s.Verdict.Attack
	r.ConfidenceLevel = ConfidenceLevel(s.Verdict.Confidence, e.cfg.Decision)
	return r
}

func (e *Engine) result(s *Session, status Status, progress, overall float64) Result {
	r := Result{
		Status:         status,
		Progress:       progress,
		Instruction:    s.Instruction,
		OverallScore:   overall,
		Scores:         s.Scores,
		FramesAnalyzed: s.FramesAnalyzed,
		Attacks:        s.Attacks.Summary(),
	}
	if status == StatusAnalyzing {
		r.AttackType, _ = s.Attacks.Primary(e.cfg.Attack.DetectThreshold)
	}
	return r
}
