package liveness

import (
	"bytes"
	"image"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtejido/fingerlive/attack"
	"github.com/jtejido/fingerlive/config"
	"github.com/jtejido/fingerlive/frame"
)

func newEngine(t *testing.T, opts ...Option) *Engine {
	e, err := New(config.LoadDefaultConfig(), opts...)
	require.NoError(t, err)
	return e
}

func flatFrame(t *testing.T, v uint8) *frame.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 128, 128))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
	}
	f, err := frame.New(img)
	require.NoError(t, err)
	return f
}

// naturalFrame is uncorrelated color noise: strong frame-to-frame change,
// rich texture and balanced channels.
func naturalFrame(t *testing.T, seed int64) *frame.Frame {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, 128, 128))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.Intn(256))
		img.Pix[i+1] = uint8(rng.Intn(256))
		img.Pix[i+2] = uint8(rng.Intn(256))
		img.Pix[i+3] = 255
	}
	f, err := frame.New(img)
	require.NoError(t, err)
	return f
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.LoadDefaultConfig()
	cfg.Weights.Texture = 0.9
	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights")

	_, err = New(nil)
	assert.Error(t, err)
}

func TestWaitingWithoutFinger(t *testing.T) {
	e := newEngine(t)
	s := e.NewSession()

	r, err := e.AnalyzeFrame(s, nil, false)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, r.Status)
	assert.Equal(t, 0.0, r.Progress)
	assert.Equal(t, "Show your index finger to camera", r.Instruction)
	assert.Equal(t, Waiting, s.Phase)

	_, err = e.AnalyzeFrame(s, nil, true)
	assert.ErrorIs(t, err, ErrNilFrame)
}

func TestFrameCountingAndProgress(t *testing.T) {
	e := newEngine(t)
	s := e.NewSession()
	f := flatFrame(t, 90)

	for i := 1; i < 15; i++ {
		r, err := e.AnalyzeFrame(s, f, true)
		require.NoError(t, err)
		assert.Equal(t, StatusAnalyzing, r.Status)
		assert.Equal(t, i, r.FramesAnalyzed)
		assert.InDelta(t, float64(i)/15*100, r.Progress, 1e-9)
		if i < 3 {
			assert.Equal(t, "Collecting frames...", r.Instruction)
			assert.Equal(t, 0.0, r.OverallScore)
		} else {
			assert.Equal(t, "Please move your finger slightly", r.Instruction)
		}
	}
	assert.LessOrEqual(t, s.Frames.Len(), s.Frames.Cap())
	assert.Equal(t, Analyzing, s.Phase)
}

// Static uniform frames: no motion, no texture, no edges. Three of the five
// screen indicators fire.
func TestStaticSpoofDecidedAtMinimumFrames(t *testing.T) {
	var logs bytes.Buffer
	e := newEngine(t, WithLogger(zerolog.New(&logs)))
	s := e.NewSession()
	f := flatFrame(t, 128)

	var r Result
	var err error
	for i := 1; i <= 15; i++ {
		r, err = e.AnalyzeFrame(s, f, true)
		require.NoError(t, err)
		if i < 15 {
			require.Equal(t, StatusAnalyzing, r.Status, "frame %d", i)
		}
	}

	assert.Equal(t, StatusSpoof, r.Status)
	assert.False(t, r.IsLive)
	assert.Equal(t, attack.Screen, r.AttackType)
	assert.Equal(t, 0.3, r.Confidence)
	assert.Equal(t, 100.0, r.Progress)
	assert.Equal(t, "Screen detected - Use real finger", r.Instruction)
	assert.Equal(t, "SPOOF", r.ConfidenceLevel)
	assert.Equal(t, ReasonScreenCheck, s.Verdict.Reason)
	assert.GreaterOrEqual(t, s.Verdict.Indicators, 3)
	assert.True(t, r.Attacks[attack.Screen].Detected)
	assert.Contains(t, logs.String(), `"message":"decision"`)
}

func TestNaturalFramesDecideLive(t *testing.T) {
	e := newEngine(t)
	s := e.NewSession()

	var r Result
	var err error
	for i := 1; i <= 15; i++ {
		r, err = e.AnalyzeFrame(s, naturalFrame(t, int64(i)), true)
		require.NoError(t, err)
	}

	require.Equal(t, StatusLive, r.Status)
	assert.True(t, r.IsLive)
	assert.GreaterOrEqual(t, r.Confidence, 0.70)
	assert.Equal(t, attack.None, r.AttackType)
	assert.Equal(t, "HIGH", r.ConfidenceLevel)
	assert.Equal(t, "✓ LIVE FINGER DETECTED", r.Instruction)
	assert.Equal(t, ReasonScore, s.Verdict.Reason)
	assert.Less(t, s.Verdict.Indicators, 3)
	assert.InDelta(t, s.Scores.Weighted(e.Config().Weights), r.OverallScore, 1e-12)
}

func TestFingerLostResets(t *testing.T) {
	e := newEngine(t)
	s := e.NewSession()

	for i := 1; i <= 7; i++ {
		_, err := e.AnalyzeFrame(s, naturalFrame(t, int64(i)), true)
		require.NoError(t, err)
	}
	r, err := e.AnalyzeFrame(s, nil, false)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, r.Status)
	assert.Equal(t, 0, r.FramesAnalyzed)
	assert.Equal(t, Waiting, s.Phase)
	assert.Equal(t, 0, s.Frames.Len())
	assert.Equal(t, 0, s.Attacks.Brightness.Len())

	// counting restarts from one
	for i := 1; i <= 14; i++ {
		r, err = e.AnalyzeFrame(s, naturalFrame(t, int64(100+i)), true)
		require.NoError(t, err)
		assert.Equal(t, i, r.FramesAnalyzed)
	}
	assert.Equal(t, StatusAnalyzing, r.Status)
	r, err = e.AnalyzeFrame(s, naturalFrame(t, 200), true)
	require.NoError(t, err)
	assert.True(t, r.Final())
}

func TestVerdictHeldUntilReset(t *testing.T) {
	e := newEngine(t)
	s := e.NewSession()
	f := flatFrame(t, 128)
	var decided Result
	for i := 0; i < 15; i++ {
		var err error
		decided, err = e.AnalyzeFrame(s, f, true)
		require.NoError(t, err)
	}
	require.True(t, decided.Final())

	for i := 0; i < 5; i++ {
		r, err := e.AnalyzeFrame(s, naturalFrame(t, int64(i+50)), true)
		require.NoError(t, err)
		assert.Equal(t, decided.Status, r.Status)
		assert.Equal(t, decided.IsLive, r.IsLive)
		assert.Equal(t, decided.Confidence, r.Confidence)
		assert.Equal(t, decided.AttackType, r.AttackType)
		assert.Equal(t, decided.OverallScore, r.OverallScore)
		assert.Equal(t, 15, r.FramesAnalyzed)
	}
	// diagnostics keep tracking the new frames
	assert.Greater(t, s.Scores.Motion, 0.0)

	r, err := e.AnalyzeFrame(s, nil, false)
	require.NoError(t, err)
	assert.Equal(t, decided.Status, r.Status)
	assert.Equal(t, decided.Confidence, r.Confidence)

	e.Reset(s)
	r, err = e.AnalyzeFrame(s, nil, false)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, r.Status)
}

func TestResetIsIdempotent(t *testing.T) {
	e := newEngine(t)
	s := e.NewSession()
	for i := 0; i < 6; i++ {
		_, err := e.AnalyzeFrame(s, naturalFrame(t, int64(i)), true)
		require.NoError(t, err)
	}

	e.Reset(s)
	once := *s
	e.Reset(s)
	assert.Equal(t, once, *s)
	assert.Equal(t, *e.NewSession(), *s)
	assert.Equal(t, Waiting, s.Phase)
	assert.Equal(t, "Show your finger to camera", s.Instruction)
}

func TestSessionsAreIsolated(t *testing.T) {
	e := newEngine(t)
	a, b := e.NewSession(), e.NewSession()

	for i := 0; i < 5; i++ {
		_, err := e.AnalyzeFrame(a, flatFrame(t, 40), true)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, a.FramesAnalyzed)
	assert.Equal(t, 0, b.FramesAnalyzed)
	assert.Equal(t, 0, b.Frames.Len())
}

// Uniform frames trip three screen indicators and score zero on color, so the
// screen check and the color veto both apply. The check runs first.
func TestScreenCheckOutranksColorVeto(t *testing.T) {
	e := newEngine(t)
	s := e.NewSession()
	f := flatFrame(t, 128)

	var r Result
	var err error
	for i := 0; i < 15; i++ {
		r, err = e.AnalyzeFrame(s, f, true)
		require.NoError(t, err)
	}

	require.Less(t, s.Scores.ColorVariance, e.Config().Screen.VetoThreshold)
	require.GreaterOrEqual(t, s.Verdict.Indicators, e.Config().Screen.MinIndicators)
	assert.Equal(t, ReasonScreenCheck, s.Verdict.Reason)
	assert.Equal(t, attack.Screen, r.AttackType)
	assert.Equal(t, e.Config().Screen.Confidence, r.Confidence)
	assert.NotEqual(t, s.Scores.ColorVariance, r.Confidence)
}

func TestScreenFlagHeldAfterDecision(t *testing.T) {
	cfg := config.LoadDefaultConfig()
	// out of reach for the screen classifier on uniform frames (0.7)
	cfg.Attack.DetectThreshold = 1
	e, err := New(cfg)
	require.NoError(t, err)
	s := e.NewSession()
	f := flatFrame(t, 128)

	var r Result
	for i := 0; i < 15; i++ {
		r, err = e.AnalyzeFrame(s, f, true)
		require.NoError(t, err)
	}
	require.Equal(t, attack.Screen, r.AttackType)
	assert.True(t, r.Attacks[attack.Screen].Detected)

	for i := 0; i < 3; i++ {
		r, err = e.AnalyzeFrame(s, f, true)
		require.NoError(t, err)
		assert.True(t, r.Attacks[attack.Screen].Detected, "frame %d after decision", i+1)
		assert.InDelta(t, 0.7, r.Attacks[attack.Screen].Confidence, 1e-9)
	}
}

// A looping clip: brightness ramps over ten frames in steps of 15, then
// jumps back. The brightness trace only starts once scoring starts, at the
// third buffered frame, and keeps filling after the verdict.
func TestVideoReplayAcrossDecision(t *testing.T) {
	e := newEngine(t)
	s := e.NewSession()

	replay := make(map[int]attack.Verdict)
	for i := 1; i <= 24; i++ {
		level := uint8(60 + 15*((i-1)%10))
		r, err := e.AnalyzeFrame(s, flatFrame(t, level), true)
		require.NoError(t, err)
		replay[i] = r.Attacks[attack.VideoReplay]
	}

	assert.Equal(t, 20, s.Attacks.Brightness.Len())
	assert.InDelta(t, 0.2, replay[11].Confidence, 1e-9, "brightness jump breaks consistency")
	assert.InDelta(t, 0.6, replay[12].Confidence, 1e-9, "ten samples: the loop jump counts")
	assert.True(t, replay[12].Detected)
	assert.InDelta(t, 0.4, replay[15].Confidence, 1e-9)
	assert.InDelta(t, 0.4, replay[17].Confidence, 1e-9, "fifteen samples, halves not aligned")
	assert.InDelta(t, 0.8, replay[18].Confidence, 1e-9, "halves repeat")
	assert.InDelta(t, 1.0, replay[22].Confidence, 1e-9)
	assert.True(t, replay[22].Detected)
}
