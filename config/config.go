package config

import (
	"time"

	"github.com/mcuadros/go-defaults"
)

// MotionConfig controls frame differencing.
type MotionConfig struct {
	Frames         int     `toml:"frames" default:"10"`
	PixelThreshold float64 `toml:"pixel_threshold" default:"15"`
	Min            float64 `toml:"min" default:"500"`
	Optimal        float64 `toml:"optimal" default:"2000"`
	// Number of recent frame pairs compared per call.
	Pairs   int `toml:"pairs" default:"4"`
	History int `toml:"history" default:"20"`
}

type TextureConfig struct {
	VarianceMin     float64 `toml:"variance_min" default:"80"`
	VarianceOptimal float64 `toml:"variance_optimal" default:"150"`
	HFMin           float64 `toml:"hf_min" default:"150"`
	HFOptimal       float64 `toml:"hf_optimal" default:"300"`
	DiversityMin    float64 `toml:"diversity_min" default:"25"`
}

type ConsistencyConfig struct {
	Threshold     float64 `toml:"threshold" default:"15"`
	JumpThreshold float64 `toml:"jump_threshold" default:"40"`
	Window        int     `toml:"window" default:"5"`
	// Brightness delta over Threshold that drives the score to zero.
	Falloff float64 `toml:"falloff" default:"50"`
}

type EdgeConfig struct {
	DensityMin float64 `toml:"density_min" default:"0.15"`
	DensityMax float64 `toml:"density_max" default:"0.35"`
	CannyLow   float64 `toml:"canny_low" default:"50"`
	CannyHigh  float64 `toml:"canny_high" default:"150"`
	// Excess density over DensityMax that drives the score to zero.
	ExcessFalloff float64 `toml:"excess_falloff" default:"0.3"`
}

type ColorConfig struct {
	VarianceMin      float64 `toml:"variance_min" default:"200"`
	VarianceOptimal  float64 `toml:"variance_optimal" default:"500"`
	DiversityMin     float64 `toml:"diversity_min" default:"5"`
	DiversityOptimal float64 `toml:"diversity_optimal" default:"20"`
}

type PatternConfig struct {
	FFTSize   int     `toml:"fft_size" default:"128"`
	Threshold float64 `toml:"threshold" default:"50"`
	DCRadius  int     `toml:"dc_radius" default:"5"`
}

// Weights are the per-signal contributions to the overall score. They must
// sum to 1.0.
type Weights struct {
	Motion           float64 `toml:"motion" default:"0.30"`
	Texture          float64 `toml:"texture" default:"0.20"`
	Consistency      float64 `toml:"consistency" default:"0.10"`
	EdgeDensity      float64 `toml:"edge_density" default:"0.10"`
	ColorVariance    float64 `toml:"color_variance" default:"0.20"`
	PatternDetection float64 `toml:"pattern_detection" default:"0.10"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Motion + w.Texture + w.Consistency + w.EdgeDensity + w.ColorVariance + w.PatternDetection
}

type DecisionConfig struct {
	LivenessThreshold    float64 `toml:"liveness_threshold" default:"0.70"`
	ConfidenceHigh       float64 `toml:"confidence_high" default:"0.85"`
	ConfidenceMedium     float64 `toml:"confidence_medium" default:"0.70"`
	ConfidenceLow        float64 `toml:"confidence_low" default:"0.50"`
	MinFramesForDecision int     `toml:"min_frames_for_decision" default:"15"`
	MinFramesBuffered    int     `toml:"min_frames_buffered" default:"3"`
	MaxFramesToAnalyze   int     `toml:"max_frames_to_analyze" default:"30"`
	ScoreLogInterval     int     `toml:"score_log_interval" default:"5"`
}

// ScreenConfig holds the screen veto and the five-indicator screen check.
type ScreenConfig struct {
	VetoEnabled          bool    `toml:"veto_enabled" default:"true"`
	VetoThreshold        float64 `toml:"veto_threshold" default:"0.50"`
	BrightnessUniformity float64 `toml:"brightness_uniformity" default:"15"`
	RGBCorrelation       float64 `toml:"rgb_correlation" default:"0.85"`
	CannyLow             float64 `toml:"canny_low" default:"100"`
	CannyHigh            float64 `toml:"canny_high" default:"200"`
	EdgeDensityLow       float64 `toml:"edge_density_low" default:"0.05"`
	EdgeDensityHigh      float64 `toml:"edge_density_high" default:"0.25"`
	GlareIntensity       float64 `toml:"glare_intensity" default:"240"`
	GlareRatio           float64 `toml:"glare_ratio" default:"0.02"`
	MinIndicators        int     `toml:"min_indicators" default:"3"`
	// Confidence reported when the five-indicator check fires.
	Confidence float64 `toml:"confidence" default:"0.3"`
}

type AttackConfig struct {
	DetectThreshold float64 `toml:"detect_threshold" default:"0.5"`

	PhotoMotionMax  float64 `toml:"photo_motion_max" default:"0.2"`
	PhotoTextureMax float64 `toml:"photo_texture_max" default:"0.5"`

	ScreenColorMax         float64 `toml:"screen_color_max" default:"0.3"`
	ScreenPatternMax       float64 `toml:"screen_pattern_max" default:"0.4"`
	ScreenSaturationStdMax float64 `toml:"screen_saturation_std_max" default:"20"`
	ScreenCorrelationMin   float64 `toml:"screen_correlation_min" default:"0.9"`

	ReplayTraceLength      int     `toml:"replay_trace_length" default:"20"`
	ReplayMinSamples       int     `toml:"replay_min_samples" default:"10"`
	ReplayRepeatMinSamples int     `toml:"replay_repeat_min_samples" default:"15"`
	ReplayJumpMin          float64 `toml:"replay_jump_min" default:"35"`
	ReplayRepeatThreshold  float64 `toml:"replay_repeat_threshold" default:"0.75"`
	ReplayConsistencyMax   float64 `toml:"replay_consistency_max" default:"0.4"`

	FakeEdgeLow     float64 `toml:"fake_edge_low" default:"0.3"`
	FakeEdgeHigh    float64 `toml:"fake_edge_high" default:"0.8"`
	FakeTextureMax  float64 `toml:"fake_texture_max" default:"0.4"`
	SkinPatchSize   int     `toml:"skin_patch_size" default:"32"`
	SkinVarianceMin float64 `toml:"skin_variance_min" default:"50"`
}

type FingerConfig struct {
	MinBoxSize      int     `toml:"min_box_size" default:"50"`
	MinSkinFraction float64 `toml:"min_skin_fraction" default:"0.15"`
}

type ServerConfig struct {
	HTTPAddr        string        `toml:"http_addr" default:":9090"`
	StreamAddr      string        `toml:"stream_addr" default:":8765"`
	ResultHold      time.Duration `toml:"result_hold" default:"3s"`
	AutoRestart     bool          `toml:"auto_restart" default:"true"`
	MaxMessageBytes int           `toml:"max_message_bytes" default:"10485760"`
	SessionIdle     time.Duration `toml:"session_idle" default:"5m"`
}

type SaveConfig struct {
	OutputDir      string `toml:"output_dir" default:"trackd_results"`
	ImageFormat    string `toml:"image_format" default:"png"`
	MetadataFormat string `toml:"metadata_format" default:"json"`
}

type LogConfig struct {
	Level        string        `toml:"level" default:"info"`
	Format       string        `toml:"format" default:"console"`
	File         string        `toml:"file"`
	MaxAge       time.Duration `toml:"max_age" default:"168h"`
	RotationTime time.Duration `toml:"rotation_time" default:"24h"`
}

// Config is the full, immutable configuration of the liveness service.
type Config struct {
	Motion      MotionConfig      `toml:"motion"`
	Texture     TextureConfig     `toml:"texture"`
	Consistency ConsistencyConfig `toml:"consistency"`
	Edge        EdgeConfig        `toml:"edge"`
	Color       ColorConfig       `toml:"color"`
	Pattern     PatternConfig     `toml:"pattern"`
	Weights     Weights           `toml:"weights"`
	Decision    DecisionConfig    `toml:"decision"`
	Screen      ScreenConfig      `toml:"screen"`
	Attack      AttackConfig      `toml:"attack"`
	Finger      FingerConfig      `toml:"finger"`
	Frame       FrameConfig       `toml:"frame"`
	Server      ServerConfig      `toml:"server"`
	Save        SaveConfig        `toml:"save"`
	Log         LogConfig         `toml:"log"`
}

// FrameConfig bounds the images accepted from clients. Dimensions are read
// from the image header before any pixel data is decoded.
type FrameConfig struct {
	MaxWidth  int `toml:"max_width" default:"4096"`
	MaxHeight int `toml:"max_height" default:"4096"`
}

// LoadDefaultConfig returns a configuration populated with the default
// thresholds and weights.
func LoadDefaultConfig() *Config {
	cfg := new(Config)
	defaults.SetDefaults(cfg)
	return cfg
}
