package store

import (
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/jonboulle/clockwork"
	"github.com/spakin/netpbm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtejido/fingerlive/attack"
	"github.com/jtejido/fingerlive/config"
	"github.com/jtejido/fingerlive/frame"
	"github.com/jtejido/fingerlive/liveness"
)

func testFrame(t *testing.T) *frame.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = uint8(i), 100, 50, 255
	}
	f, err := frame.New(img)
	require.NoError(t, err)
	return f
}

func liveResult() liveness.Result {
	return liveness.Result{
		Status:          liveness.StatusLive,
		IsLive:          true,
		OverallScore:    0.91,
		Confidence:      0.91,
		ConfidenceLevel: "HIGH",
		FramesAnalyzed:  15,
		Scores: liveness.ScoreSet{
			Motion: 1, Texture: 0.9, Consistency: 1, EdgeDensity: 0.6, ColorVariance: 1, PatternDetection: 0.9,
		},
	}
}

func TestNewRecord(t *testing.T) {
	w := config.LoadDefaultConfig().Weights
	rec := NewRecord("abc", liveResult(), w)

	assert.Equal(t, "abc", rec.Session)
	assert.Equal(t, liveness.StatusLive, rec.Status)
	assert.Len(t, rec.Methods, 6)
	assert.Equal(t, MethodScore{Score: 1, Weight: 0.30}, rec.Methods[liveness.MethodMotion])
	assert.Equal(t, MethodScore{Score: 0.6, Weight: 0.10}, rec.Methods[liveness.MethodEdgeDensity])
	assert.Equal(t, attack.None, rec.AttackType)
}

func TestSavePNGAndJSON(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC))
	cfg := config.SaveConfig{OutputDir: filepath.Join(dir, "out"), ImageFormat: "png", MetadataFormat: "json"}

	s, err := NewFileStore(cfg, WithClock(clock))
	require.NoError(t, err)

	f := testFrame(t)
	saved, err := s.Save(f, NewRecord("abc", liveResult(), config.LoadDefaultConfig().Weights))
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Count)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "trackd_20240309_140507_0.png"), saved.Image)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "trackd_20240309_140507_0.json"), saved.Metadata)

	imgFile, err := os.Open(saved.Image)
	require.NoError(t, err)
	defer imgFile.Close()
	img, err := png.Decode(imgFile)
	require.NoError(t, err)
	assert.Equal(t, f.Color.Bounds(), img.Bounds())

	data, err := os.ReadFile(saved.Metadata)
	require.NoError(t, err)
	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.True(t, rec.IsLive)
	assert.Equal(t, 15, rec.FramesAnalyzed)
	assert.True(t, clock.Now().Equal(rec.Timestamp))
	assert.Equal(t, 0.2, rec.Methods[liveness.MethodColor].Weight)
	assert.Equal(t, f.Width(), rec.ImageWidth)
	assert.Equal(t, f.Height(), rec.ImageHeight)

	saved, err = s.Save(f, NewRecord("abc", liveResult(), config.LoadDefaultConfig().Weights))
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Count)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "trackd_20240309_140507_1.png"), saved.Image)
	assert.Equal(t, 2, s.Count())
}

func TestSavePGMAndCBOR(t *testing.T) {
	cfg := config.SaveConfig{OutputDir: t.TempDir(), ImageFormat: "pgm", MetadataFormat: "cbor"}
	s, err := NewFileStore(cfg)
	require.NoError(t, err)

	f := testFrame(t)
	saved, err := s.Save(f, NewRecord("", liveResult(), config.LoadDefaultConfig().Weights))
	require.NoError(t, err)

	imgFile, err := os.Open(saved.Image)
	require.NoError(t, err)
	defer imgFile.Close()
	img, err := netpbm.Decode(imgFile, &netpbm.DecodeOptions{Target: netpbm.PGM})
	require.NoError(t, err)
	assert.Equal(t, f.Gray.Bounds(), img.Bounds())

	data, err := os.ReadFile(saved.Metadata)
	require.NoError(t, err)
	var rec Record
	require.NoError(t, cbor.Unmarshal(data, &rec))
	assert.Equal(t, liveness.StatusLive, rec.Status)
	assert.Equal(t, "HIGH", rec.ConfidenceLevel)
	assert.Equal(t, 1.0, rec.Methods[liveness.MethodMotion].Score)
}

func TestSaveRejectsNilFrame(t *testing.T) {
	s, err := NewFileStore(config.SaveConfig{OutputDir: t.TempDir(), ImageFormat: "png", MetadataFormat: "json"})
	require.NoError(t, err)

	_, err = s.Save(nil, Record{})
	assert.ErrorIs(t, err, frame.ErrEmpty)
	assert.Equal(t, 0, s.Count())
}

func TestSaveUnknownFormatLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(config.SaveConfig{OutputDir: dir, ImageFormat: "png", MetadataFormat: "xml"})
	require.NoError(t, err)

	_, err = s.Save(testFrame(t), Record{})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
