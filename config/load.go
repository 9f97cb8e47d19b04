package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

const weightTolerance = 0.01

// Load reads a TOML file on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := LoadDefaultConfig()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write encodes the configuration as TOML.
func (c *Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Validate checks the weight table and thresholds. Every violation is
// reported.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	unit := func(name string, v float64) {
		check(v >= 0 && v <= 1, "%s must be between 0 and 1, got %g", name, v)
	}
	zone := func(name string, min, optimal float64) {
		check(min > 0 && min < optimal, "%s: min (%g) must be positive and below optimal (%g)", name, min, optimal)
	}
	positive := func(name string, v int) {
		check(v > 0, "%s must be positive, got %d", name, v)
	}

	w := c.Weights
	unit("weights.motion", w.Motion)
	unit("weights.texture", w.Texture)
	unit("weights.consistency", w.Consistency)
	unit("weights.edge_density", w.EdgeDensity)
	unit("weights.color_variance", w.ColorVariance)
	unit("weights.pattern_detection", w.PatternDetection)
	check(math.Abs(w.Sum()-1) <= weightTolerance, "weights must sum to 1.0, got %.4f", w.Sum())

	positive("motion.frames", c.Motion.Frames)
	positive("motion.pairs", c.Motion.Pairs)
	positive("motion.history", c.Motion.History)
	zone("motion", c.Motion.Min, c.Motion.Optimal)
	zone("texture.variance", c.Texture.VarianceMin, c.Texture.VarianceOptimal)
	zone("texture.hf", c.Texture.HFMin, c.Texture.HFOptimal)
	check(c.Texture.DiversityMin > 0, "texture.diversity_min must be positive")

	positive("consistency.window", c.Consistency.Window)
	check(c.Consistency.Window <= c.Motion.Frames, "consistency.window (%d) exceeds motion.frames (%d)", c.Consistency.Window, c.Motion.Frames)
	check(c.Consistency.Falloff > 0, "consistency.falloff must be positive")

	unit("edge.density_min", c.Edge.DensityMin)
	unit("edge.density_max", c.Edge.DensityMax)
	check(c.Edge.DensityMin < c.Edge.DensityMax, "edge.density_min must be below edge.density_max")
	check(c.Edge.CannyLow < c.Edge.CannyHigh, "edge.canny_low must be below edge.canny_high")
	check(c.Edge.ExcessFalloff > 0, "edge.excess_falloff must be positive")

	zone("color.variance", c.Color.VarianceMin, c.Color.VarianceOptimal)
	zone("color.diversity", c.Color.DiversityMin, c.Color.DiversityOptimal)

	check(c.Pattern.FFTSize > 0 && c.Pattern.FFTSize&(c.Pattern.FFTSize-1) == 0, "pattern.fft_size must be a power of two, got %d", c.Pattern.FFTSize)
	check(c.Pattern.DCRadius >= 0 && 2*c.Pattern.DCRadius < c.Pattern.FFTSize, "pattern.dc_radius out of range")
	check(c.Pattern.Threshold > 0, "pattern.threshold must be positive")

	unit("decision.liveness_threshold", c.Decision.LivenessThreshold)
	unit("decision.confidence_high", c.Decision.ConfidenceHigh)
	unit("decision.confidence_medium", c.Decision.ConfidenceMedium)
	unit("decision.confidence_low", c.Decision.ConfidenceLow)
	check(c.Decision.ConfidenceLow <= c.Decision.ConfidenceMedium && c.Decision.ConfidenceMedium <= c.Decision.ConfidenceHigh,
		"decision confidence levels must be ordered low <= medium <= high")
	positive("decision.min_frames_for_decision", c.Decision.MinFramesForDecision)
	positive("decision.min_frames_buffered", c.Decision.MinFramesBuffered)
	check(c.Decision.MinFramesBuffered <= c.Motion.Frames, "decision.min_frames_buffered (%d) exceeds motion.frames (%d)", c.Decision.MinFramesBuffered, c.Motion.Frames)
	check(c.Decision.MaxFramesToAnalyze >= c.Decision.MinFramesForDecision, "decision.max_frames_to_analyze must be >= min_frames_for_decision")

	unit("screen.veto_threshold", c.Screen.VetoThreshold)
	unit("screen.rgb_correlation", c.Screen.RGBCorrelation)
	unit("screen.edge_density_low", c.Screen.EdgeDensityLow)
	unit("screen.edge_density_high", c.Screen.EdgeDensityHigh)
	unit("screen.glare_ratio", c.Screen.GlareRatio)
	unit("screen.confidence", c.Screen.Confidence)
	check(c.Screen.MinIndicators > 0 && c.Screen.MinIndicators <= 5, "screen.min_indicators must be in 1..5, got %d", c.Screen.MinIndicators)

	a := c.Attack
	unit("attack.detect_threshold", a.DetectThreshold)
	unit("attack.photo_motion_max", a.PhotoMotionMax)
	unit("attack.photo_texture_max", a.PhotoTextureMax)
	unit("attack.screen_color_max", a.ScreenColorMax)
	unit("attack.screen_pattern_max", a.ScreenPatternMax)
	unit("attack.screen_correlation_min", a.ScreenCorrelationMin)
	unit("attack.replay_repeat_threshold", a.ReplayRepeatThreshold)
	unit("attack.replay_consistency_max", a.ReplayConsistencyMax)
	unit("attack.fake_edge_low", a.FakeEdgeLow)
	unit("attack.fake_edge_high", a.FakeEdgeHigh)
	unit("attack.fake_texture_max", a.FakeTextureMax)
	positive("attack.replay_trace_length", a.ReplayTraceLength)
	positive("attack.skin_patch_size", a.SkinPatchSize)
	check(a.ReplayMinSamples <= a.ReplayTraceLength && a.ReplayRepeatMinSamples <= a.ReplayTraceLength,
		"attack replay sample minimums exceed replay_trace_length (%d)", a.ReplayTraceLength)

	unit("finger.min_skin_fraction", c.Finger.MinSkinFraction)

	positive("frame.max_width", c.Frame.MaxWidth)
	positive("frame.max_height", c.Frame.MaxHeight)

	switch c.Save.ImageFormat {
	case "png", "pgm":
	default:
		errs = append(errs, fmt.Errorf("save.image_format must be png or pgm, got %q", c.Save.ImageFormat))
	}
	switch c.Save.MetadataFormat {
	case "json", "cbor":
	default:
		errs = append(errs, fmt.Errorf("save.metadata_format must be json or cbor, got %q", c.Save.MetadataFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
