// Package session is the per-client orchestration around the liveness engine:
// lifecycle commands, the auto-restart hold after a verdict, and saving.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/jtejido/fingerlive/finger"
	"github.com/jtejido/fingerlive/frame"
	"github.com/jtejido/fingerlive/liveness"
	"github.com/jtejido/fingerlive/metrics"
	"github.com/jtejido/fingerlive/store"
)

var (
	ErrNotActive = errors.New("analysis not active")
	ErrNotLive   = errors.New("cannot save - not LIVE")
	ErrNoFrame   = errors.New("no frame available")
	ErrNotFound  = errors.New("session not found")
	ErrClosed    = errors.New("session closed")
	ErrNoStore   = errors.New("no result store configured")
	// ErrAnalysis wraps an unexpected fault while analyzing a frame. The
	// session has been reset when it is returned.
	ErrAnalysis = errors.New("frame analysis failed")
)

// Update is the outcome of one submitted frame.
type Update struct {
	Result         liveness.Result
	FingerDetected bool
	// Frames received since the analysis was started.
	FrameCount int
	Timestamp  time.Time
	// Restarted is set when the verdict hold elapsed and the session was
	// reset after producing Result.
	Restarted bool
}

// Snapshot describes a controller for status queries.
type Snapshot struct {
	ID             string `json:"id"`
	Active         bool   `json:"analysis_active"`
	Phase          string `json:"phase"`
	FrameCount     int    `json:"frame_count"`
	FramesAnalyzed int    `json:"frames_analyzed"`
	SaveCount      int    `json:"save_count"`
}

// Controller owns one liveness session. All methods are safe for concurrent
// use; frames are analyzed one at a time in submission order.
type Controller struct {
	id          string
	engine      *liveness.Engine
	detector    finger.Detector
	store       store.Store
	metrics     *metrics.Metrics
	clock       clockwork.Clock
	log         zerolog.Logger
	hold        time.Duration
	autoRestart bool

	mu         sync.Mutex
	state      *liveness.Session
	active     bool
	closed     bool
	received   int
	saved      int
	lastResult liveness.Result
	resultAt   time.Time
	lastSeen   time.Time
	done       chan struct{}
}

type Option func(*Controller)

func WithDetector(d finger.Detector) Option {
	return func(c *Controller) { c.detector = d }
}

func WithStore(s store.Store) Option {
	return func(c *Controller) { c.store = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New creates an inactive controller. The hold duration and auto-restart
// policy come from the engine's server configuration.
func New(id string, engine *liveness.Engine, opts ...Option) *Controller {
	cfg := engine.Config().Server
	c := &Controller{
		id:          id,
		engine:      engine,
		detector:    finger.NewSkin(engine.Config().Finger),
		clock:       clockwork.NewRealClock(),
		log:         zerolog.Nop(),
		hold:        cfg.ResultHold,
		autoRestart: cfg.AutoRestart,
		state:       engine.NewSession(),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "session").Str("session", id).Logger()
	c.lastSeen = c.clock.Now()
	c.metrics.SessionOpened()
	return c
}

func (c *Controller) ID() string { return c.id }

// Start begins a fresh analysis. It reports false if one is already active.
func (c *Controller) Start() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	c.touch()
	if c.active {
		return false, nil
	}
	c.restart()
	c.active = true
	c.log.Info().Msg("analysis started")
	return true, nil
}

// Stop ends the analysis and discards its state.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.touch()
	c.active = false
	c.restart()
	c.log.Info().Msg("analysis stopped")
	return nil
}

// Reset discards the analysis state but keeps the analysis active.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.touch()
	c.restart()
	c.log.Info().Msg("analysis reset")
	return nil
}

// restart clears per-attempt state. c.mu must be held.
func (c *Controller) restart() {
	c.engine.Reset(c.state)
	c.received = 0
	c.resultAt = time.Time{}
	c.lastResult = liveness.Result{}
}

// Process detects finger presence on f and analyzes it.
func (c *Controller) Process(f *frame.Frame) (Update, error) {
	return c.process(f, nil)
}

// ProcessDetected analyzes f using a presence flag supplied by the caller.
func (c *Controller) ProcessDetected(f *frame.Frame, detected bool) (Update, error) {
	return c.process(f, &detected)
}

func (c *Controller) process(f *frame.Frame, detected *bool) (Update, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Update{}, ErrClosed
	}
	c.touch()
	if !c.active {
		return Update{}, ErrNotActive
	}

	c.received++

	start := c.clock.Now()
	res, present, err := c.analyze(f, detected)
	if err != nil {
		c.log.Error().Err(err).Int("frame", c.received).Msg("analysis failed, resetting session")
		c.restart()
		return Update{}, err
	}
	now := c.clock.Now()
	c.metrics.ObserveFrame(string(res.Status), now.Sub(start))
	c.lastResult = res

	u := Update{
		Result:         res,
		FingerDetected: present,
		FrameCount:     c.received,
		Timestamp:      now,
	}

	if res.Final() {
		if c.resultAt.IsZero() {
			c.resultAt = now
			c.metrics.ObserveDecision(string(res.Status), string(res.AttackType))
			c.log.Info().
				Str("result", string(res.Status)).
				Float64("confidence", res.Confidence).
				Str("attack", string(res.AttackType)).
				Dur("hold", c.hold).
				Msg("verdict")
		} else if c.autoRestart && now.Sub(c.resultAt) >= c.hold {
			c.log.Info().Msg("verdict hold elapsed, restarting")
			c.engine.Reset(c.state)
			c.resultAt = time.Time{}
			u.Restarted = true
		}
	}

	if c.received%30 == 0 {
		c.log.Debug().Int("frames", c.received).Str("status", string(res.Status)).Msg("frames received")
	}
	return u, nil
}

// Analyze runs a whole capture through a fresh analysis and returns the
// update of the first frame carrying a verdict, or of the last frame when
// none did.
func (c *Controller) Analyze(frames []*frame.Frame, detected *bool) (Update, error) {
	if _, err := c.Start(); err != nil {
		return Update{}, err
	}
	var u Update
	for _, f := range frames {
		var err error
		if u, err = c.process(f, detected); err != nil {
			return Update{}, err
		}
		if u.Result.Final() {
			break
		}
	}
	return u, nil
}

// analyze runs detection and the engine, turning a panic into ErrAnalysis so
// that one bad frame cannot take down other sessions.
func (c *Controller) analyze(f *frame.Frame, detected *bool) (res liveness.Result, present bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrAnalysis, r)
		}
	}()

	d := c.detector
	if detected != nil {
		d = finger.Static(*detected)
	}
	_, present = d.Detect(f)
	res, err = c.engine.AnalyzeFrame(c.state, f, present)
	if err != nil {
		return res, present, fmt.Errorf("%w: %w", ErrAnalysis, err)
	}
	return res, present, nil
}

// Save persists the last frame and the current verdict. Only LIVE verdicts
// are saved.
func (c *Controller) Save() (store.Saved, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return store.Saved{}, ErrClosed
	}
	c.touch()
	if c.store == nil {
		return store.Saved{}, ErrNoStore
	}
	if !c.state.Decided() || !c.state.Verdict.IsLive {
		return store.Saved{}, ErrNotLive
	}
	snapshot := c.state.Frames.Latest()
	if snapshot == nil {
		return store.Saved{}, ErrNoFrame
	}

	rec := store.NewRecord(c.id, c.lastResult, c.engine.Config().Weights)
	saved, err := c.store.Save(snapshot, rec)
	if err != nil {
		return store.Saved{}, fmt.Errorf("save failed: %w", err)
	}
	c.saved++
	c.metrics.ObserveSave()
	c.log.Info().Str("file", saved.Image).Msg("result saved")
	return saved, nil
}

// Snapshot returns the controller's current status.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		ID:             c.id,
		Active:         c.active,
		Phase:          c.state.Phase.String(),
		FrameCount:     c.received,
		FramesAnalyzed: c.state.FramesAnalyzed,
		SaveCount:      c.saved,
	}
}

// Close tears the session down and releases buffered frames. Further calls
// return ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.active = false
	c.restart()
	close(c.done)
	c.metrics.SessionClosed()
	c.log.Info().Msg("session closed")
}

// Done is closed once the session is closed, by its owner or by the reaper.
func (c *Controller) Done() <-chan struct{} { return c.done }

// IdleFor returns how long ago the session last saw a command or frame.
func (c *Controller) IdleFor() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock.Since(c.lastSeen)
}

func (c *Controller) touch() {
	c.lastSeen = c.clock.Now()
}
