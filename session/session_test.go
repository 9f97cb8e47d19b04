package session

import (
	"image"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtejido/fingerlive/config"
	"github.com/jtejido/fingerlive/frame"
	"github.com/jtejido/fingerlive/liveness"
	"github.com/jtejido/fingerlive/store"
)

func newEngine(t *testing.T, cfg *config.Config) *liveness.Engine {
	if cfg == nil {
		cfg = config.LoadDefaultConfig()
	}
	e, err := liveness.New(cfg)
	require.NoError(t, err)
	return e
}

func solidFrame(t *testing.T, r, g, b uint8) *frame.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 128, 128))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = r, g, b, 255
	}
	f, err := frame.New(img)
	require.NoError(t, err)
	return f
}

func noiseFrame(t *testing.T, seed int64) *frame.Frame {
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

type panicky struct{}

func (panicky) Detect(*frame.Frame) (image.Rectangle, bool) { panic("detector exploded") }

func TestLifecycle(t *testing.T) {
	c := New("s1", newEngine(t, nil))
	f := solidFrame(t, 128, 128, 128)

	_, err := c.ProcessDetected(f, true)
	assert.ErrorIs(t, err, ErrNotActive)

	started, err := c.Start()
	require.NoError(t, err)
	assert.True(t, started)
	started, err = c.Start()
	require.NoError(t, err)
	assert.False(t, started, "already active")

	u, err := c.ProcessDetected(f, true)
	require.NoError(t, err)
	assert.Equal(t, 1, u.FrameCount)
	assert.True(t, u.FingerDetected)
	assert.Equal(t, liveness.StatusAnalyzing, u.Result.Status)

	require.NoError(t, c.Reset())
	snap := c.Snapshot()
	assert.True(t, snap.Active)
	assert.Equal(t, 0, snap.FrameCount)
	assert.Equal(t, "waiting", snap.Phase)

	require.NoError(t, c.Stop())
	_, err = c.ProcessDetected(f, true)
	assert.ErrorIs(t, err, ErrNotActive)

	c.Close()
	_, err = c.Start()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.ProcessDetected(f, true)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Save()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSkinDetectorDecidesPresence(t *testing.T) {
	c := New("s1", newEngine(t, nil))
	_, err := c.Start()
	require.NoError(t, err)

	u, err := c.Process(solidFrame(t, 224, 172, 140))
	require.NoError(t, err)
	assert.True(t, u.FingerDetected)
	assert.Equal(t, liveness.StatusAnalyzing, u.Result.Status)

	u, err = c.Process(solidFrame(t, 30, 60, 200))
	require.NoError(t, err)
	assert.False(t, u.FingerDetected)
	assert.Equal(t, liveness.StatusWaiting, u.Result.Status)
	assert.Equal(t, 0, u.Result.FramesAnalyzed)
}

func TestAutoRestartAfterHold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New("s1", newEngine(t, nil), WithClock(clock))
	_, err := c.Start()
	require.NoError(t, err)
	f := solidFrame(t, 128, 128, 128)

	var u Update
	for i := 0; i < 15; i++ {
		u, err = c.ProcessDetected(f, true)
		require.NoError(t, err)
	}
	require.True(t, u.Result.Final())
	assert.False(t, u.Restarted)

	clock.Advance(time.Second)
	u, err = c.ProcessDetected(f, true)
	require.NoError(t, err)
	assert.Equal(t, liveness.StatusSpoof, u.Result.Status)
	assert.False(t, u.Restarted)

	clock.Advance(2 * time.Second)
	u, err = c.ProcessDetected(f, true)
	require.NoError(t, err)
	assert.Equal(t, liveness.StatusSpoof, u.Result.Status, "the held verdict is still reported")
	assert.True(t, u.Restarted)

	u, err = c.ProcessDetected(f, true)
	require.NoError(t, err)
	assert.Equal(t, liveness.StatusAnalyzing, u.Result.Status)
	assert.Equal(t, 1, u.Result.FramesAnalyzed)
	assert.Equal(t, 18, u.FrameCount)
}

func TestNoAutoRestartWhenDisabled(t *testing.T) {
	cfg := config.LoadDefaultConfig()
	cfg.Server.AutoRestart = false
	clock := clockwork.NewFakeClock()
	c := New("s1", newEngine(t, cfg), WithClock(clock))
	_, err := c.Start()
	require.NoError(t, err)
	f := solidFrame(t, 128, 128, 128)

	for i := 0; i < 15; i++ {
		_, err = c.ProcessDetected(f, true)
		require.NoError(t, err)
	}
	clock.Advance(time.Minute)
	u, err := c.ProcessDetected(f, true)
	require.NoError(t, err)
	assert.False(t, u.Restarted)
	assert.Equal(t, liveness.StatusSpoof, u.Result.Status)
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFileStore(config.SaveConfig{OutputDir: dir, ImageFormat: "png", MetadataFormat: "json"})
	require.NoError(t, err)

	c := New("live", newEngine(t, nil), WithStore(fs))
	_, err = c.Start()
	require.NoError(t, err)

	_, err = c.Save()
	assert.ErrorIs(t, err, ErrNotLive)

	var u Update
	for i := 1; i <= 15; i++ {
		u, err = c.ProcessDetected(noiseFrame(t, int64(i)), true)
		require.NoError(t, err)
	}
	require.Equal(t, liveness.StatusLive, u.Result.Status)

	saved, err := c.Save()
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Count)
	assert.FileExists(t, saved.Image)
	assert.FileExists(t, saved.Metadata)
	assert.Equal(t, 1, c.Snapshot().SaveCount)

	data, err := os.ReadFile(saved.Metadata)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"session": "live"`)
}

func TestSaveRequiresLiveVerdictAndStore(t *testing.T) {
	c := New("nostore", newEngine(t, nil))
	_, err := c.Save()
	assert.ErrorIs(t, err, ErrNoStore)

	fs, err := store.NewFileStore(config.SaveConfig{OutputDir: t.TempDir(), ImageFormat: "png", MetadataFormat: "json"})
	require.NoError(t, err)
	c = New("spoof", newEngine(t, nil), WithStore(fs))
	_, err = c.Start()
	require.NoError(t, err)
	for i := 0; i < 15; i++ {
		_, err = c.ProcessDetected(solidFrame(t, 128, 128, 128), true)
		require.NoError(t, err)
	}
	_, err = c.Save()
	assert.ErrorIs(t, err, ErrNotLive)
}

func TestPanicResetsSession(t *testing.T) {
	c := New("p", newEngine(t, nil), WithDetector(panicky{}))
	_, err := c.Start()
	require.NoError(t, err)

	f := solidFrame(t, 90, 90, 90)
	for i := 0; i < 4; i++ {
		_, err = c.ProcessDetected(f, true)
		require.NoError(t, err)
	}

	_, err = c.Process(f)
	require.ErrorIs(t, err, ErrAnalysis)
	assert.Contains(t, err.Error(), "detector exploded")
	snap := c.Snapshot()
	assert.Equal(t, 0, snap.FramesAnalyzed)
	assert.Equal(t, "waiting", snap.Phase)

	u, err := c.ProcessDetected(f, true)
	require.NoError(t, err)
	assert.Equal(t, 1, u.Result.FramesAnalyzed)
}

func TestNilFrameWithFinger(t *testing.T) {
	c := New("n", newEngine(t, nil))
	_, err := c.Start()
	require.NoError(t, err)

	_, err = c.ProcessDetected(nil, true)
	assert.ErrorIs(t, err, ErrAnalysis)
	assert.ErrorIs(t, err, liveness.ErrNilFrame)
}

func TestManager(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewManager(newEngine(t, nil), WithClock(clock))

	a := m.Create()
	got, err := m.Get(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)

	clock.Advance(4 * time.Minute)
	b := m.Create()
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, m.Len())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, m.Reap(5*time.Minute))
	_, err = m.Get(a.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = a.Start()
	assert.ErrorIs(t, err, ErrClosed)

	require.NoError(t, m.Close(b.ID()))
	assert.ErrorIs(t, m.Close(b.ID()), ErrNotFound)
	assert.Equal(t, 0, m.Len())

	m.Create()
	m.Create()
	m.CloseAll()
	assert.Equal(t, 0, m.Len())
}

func TestSessionsRunIndependently(t *testing.T) {
	e := newEngine(t, nil)
	m := NewManager(e)
	a, b := m.Create(), m.Create()
	_, err := a.Start()
	require.NoError(t, err)
	_, err = b.Start()
	require.NoError(t, err)

	flat := solidFrame(t, 128, 128, 128)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_, err := a.ProcessDetected(flat, true)
			assert.NoError(t, err)
		}
	}()
	for i := 0; i < 5; i++ {
		_, err := b.ProcessDetected(noiseFrame(t, int64(i)), true)
		require.NoError(t, err)
	}
	<-done

	assert.Equal(t, 10, a.Snapshot().FramesAnalyzed)
	assert.Equal(t, 5, b.Snapshot().FramesAnalyzed)
}

type gated struct {
	entered chan struct{}
	release chan struct{}
}

func (g gated) Detect(*frame.Frame) (image.Rectangle, bool) {
	close(g.entered)
	<-g.release
	return image.Rectangle{}, true
}

func TestReapWaitsOutsideManagerLock(t *testing.T) {
	g := gated{entered: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(newEngine(t, nil), WithDetector(g))
	busy := m.Create()
	_, err := busy.Start()
	require.NoError(t, err)

	go busy.Process(solidFrame(t, 128, 128, 128))
	<-g.entered

	reaped := make(chan int)
	go func() { reaped <- m.Reap(0) }()

	// the reaper is parked on the busy controller; the manager stays usable
	other := m.Create()
	assert.Equal(t, 2, m.Len())
	_, err = m.Get(other.ID())
	require.NoError(t, err)

	close(g.release)
	n := <-reaped
	assert.GreaterOrEqual(t, n, 1)
	_, err = m.Get(busy.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAnalyzeCapture(t *testing.T) {
	m := NewManager(newEngine(t, nil))
	c := m.Detached()
	defer c.Close()
	assert.Equal(t, 0, m.Len(), "detached controllers are not tracked")

	flat := solidFrame(t, 128, 128, 128)
	frames := make([]*frame.Frame, 20)
	for i := range frames {
		frames[i] = flat
	}
	detected := true
	u, err := c.Analyze(frames, &detected)
	require.NoError(t, err)
	assert.Equal(t, liveness.StatusSpoof, u.Result.Status)
	assert.Equal(t, 15, u.FrameCount, "stops at the verdict")

	short, err := m.Detached().Analyze(frames[:5], &detected)
	require.NoError(t, err)
	assert.Equal(t, liveness.StatusAnalyzing, short.Result.Status)
	assert.Equal(t, 5, short.FrameCount)

	c.Close()
	_, err = c.Analyze(frames, &detected)
	assert.ErrorIs(t, err, ErrClosed)
}
