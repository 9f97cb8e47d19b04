// Package store persists accepted liveness results: a snapshot of the last
// frame and a metadata record next to it.
package store

import (
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/jonboulle/clockwork"
	"github.com/spakin/netpbm"

	"github.com/jtejido/fingerlive/attack"
	"github.com/jtejido/fingerlive/config"
	"github.com/jtejido/fingerlive/frame"
	"github.com/jtejido/fingerlive/liveness"
)

// MethodScore is one signal's contribution to the overall score.
type MethodScore struct {
	Score  float64 `json:"score" cbor:"score"`
	Weight float64 `json:"weight" cbor:"weight"`
}

// Record is the saved metadata for one result.
type Record struct {
	Timestamp       time.Time              `json:"timestamp" cbor:"timestamp"`
	Session         string                 `json:"session,omitempty" cbor:"session,omitempty"`
	Status          liveness.Status        `json:"status" cbor:"status"`
	IsLive          bool                   `json:"is_live" cbor:"is_live"`
	OverallScore    float64                `json:"overall_score" cbor:"overall_score"`
	Confidence      float64                `json:"confidence" cbor:"confidence"`
	ConfidenceLevel string                 `json:"confidence_level" cbor:"confidence_level"`
	FramesAnalyzed  int                    `json:"frames_analyzed" cbor:"frames_analyzed"`
	AttackType      attack.Kind            `json:"attack_type" cbor:"attack_type"`
	ImageWidth      int                    `json:"image_width" cbor:"image_width"`
	ImageHeight     int                    `json:"image_height" cbor:"image_height"`
	Methods         map[string]MethodScore `json:"methods" cbor:"methods"`
}

// NewRecord builds the metadata record for r using the weights the engine
// scored with.
func NewRecord(session string, r liveness.Result, w config.Weights) Record {
	methods := make(map[string]MethodScore, len(liveness.Methods))
	for _, m := range liveness.Methods {
		score, _ := r.Scores.Get(m)
		methods[m] = MethodScore{Score: score, Weight: liveness.Weight(w, m)}
	}
	return Record{
		Session:         session,
		Status:          r.Status,
		IsLive:          r.IsLive,
		OverallScore:    r.OverallScore,
		Confidence:      r.Confidence,
		ConfidenceLevel: r.ConfidenceLevel,
		FramesAnalyzed:  r.FramesAnalyzed,
		AttackType:      r.AttackType,
		Methods:         methods,
	}
}

// Saved names the files written by one Save call.
type Saved struct {
	Image    string `json:"filename"`
	Metadata string `json:"metadata_file"`
	Count    int    `json:"save_count"`
}

// Store is where accepted results go.
type Store interface {
	Save(f *frame.Frame, rec Record) (Saved, error)
}

// FileStore writes results into a directory, numbering them in save order.
type FileStore struct {
	dir         string
	imageFormat string
	metaFormat  string
	clock       clockwork.Clock

	mu    sync.Mutex
	count int
}

type Option func(*FileStore)

func WithClock(c clockwork.Clock) Option {
	return func(s *FileStore) { s.clock = c }
}

// NewFileStore creates the output directory if needed.
func NewFileStore(cfg config.SaveConfig, opts ...Option) (*FileStore, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	s := &FileStore{
		dir:         cfg.OutputDir,
		imageFormat: cfg.ImageFormat,
		metaFormat:  cfg.MetadataFormat,
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save writes the snapshot and the metadata record. The record timestamp and
// image size are filled in from the store clock and f.
func (s *FileStore) Save(f *frame.Frame, rec Record) (Saved, error) {
	if f == nil {
		return Saved{}, fmt.Errorf("save: %w", frame.ErrEmpty)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	rec.Timestamp = now
	rec.ImageWidth, rec.ImageHeight = f.Width(), f.Height()
	base := filepath.Join(s.dir, fmt.Sprintf("trackd_%s_%d", now.Format("20060102_150405"), s.count))

	saved := Saved{
		Image:    base + "." + s.imageFormat,
		Metadata: base + "." + s.metaFormat,
	}
	if err := writeFile(saved.Image, func(w io.Writer) error { return s.encodeImage(w, f) }); err != nil {
		return Saved{}, fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := writeFile(saved.Metadata, func(w io.Writer) error { return s.encodeRecord(w, rec) }); err != nil {
		os.Remove(saved.Image)
		return Saved{}, fmt.Errorf("failed to write metadata: %w", err)
	}

	s.count++
	saved.Count = s.count
	return saved, nil
}

// Count returns the number of results saved so far.
func (s *FileStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *FileStore) encodeImage(w io.Writer, f *frame.Frame) error {
	switch s.imageFormat {
	case "pgm":
		return netpbm.Encode(w, f.Gray, &netpbm.EncodeOptions{
			Format:   netpbm.PGM,
			MaxValue: 255,
			Comments: []string{"fingerlive snapshot"},
		})
	case "png":
		return png.Encode(w, f.Color)
	}
	return fmt.Errorf("unknown image format %q", s.imageFormat)
}

func (s *FileStore) encodeRecord(w io.Writer, rec Record) error {
	switch s.metaFormat {
	case "cbor":
		return cbor.NewEncoder(w).Encode(rec)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	return fmt.Errorf("unknown metadata format %q", s.metaFormat)
}

func writeFile(path string, encode func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
