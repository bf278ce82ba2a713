package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/simcam/engine/core"
)

type FeedbackMode string

const (
	// FeedbackSameFrame applies the exposure computed from a frame to that frame's tone mapping.
	FeedbackSameFrame FeedbackMode = "same-frame"
	// FeedbackLagged applies the exposure read back when the slot retired (one frame of lag per slot).
	FeedbackLagged FeedbackMode = "lagged"
)

const (
	BackendVulkan    = "vulkan"
	BackendReference = "reference"
)

// Duration decodes TOML strings such as "1s" or "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type WindowConfig struct {
	Title  string `toml:"title"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	X      int32  `toml:"x"`
	Y      int32  `toml:"y"`
}

type RendererConfig struct {
	Backend          string       `toml:"backend"`
	FramesInFlight   int          `toml:"frames_in_flight"`
	Validation       bool         `toml:"validation"`
	ExposureFeedback FeedbackMode `toml:"exposure_feedback"`
	ShaderDir        string       `toml:"shader_dir"`
	FenceTimeout     Duration     `toml:"fence_timeout"`
}

type ShadowConfig struct {
	Resolution uint32  `toml:"resolution"`
	HalfExtent float32 `toml:"half_extent"`
	Near       float32 `toml:"near"`
	Far        float32 `toml:"far"`
	Distance   float32 `toml:"distance"`
}

type BloomConfig struct {
	Scale     float32 `toml:"scale"`
	Radius    int     `toml:"radius"`
	Threshold float32 `toml:"threshold"`
	Knee      float32 `toml:"knee"`
	Strength  float32 `toml:"strength"`
}

type FlareConfig struct {
	Scale    float32 `toml:"scale"`
	Strength float32 `toml:"strength"`
	LensFile string  `toml:"lens_file"`
}

type ExposureConfig struct {
	Initial  float32 `toml:"initial"`
	RampUp   float32 `toml:"ramp_up"`
	RampDown float32 `toml:"ramp_down"`
	Key      float32 `toml:"key"`
	Min      float32 `toml:"min"`
	Max      float32 `toml:"max"`
}

type CameraConfig struct {
	FovDeg   float32 `toml:"fov_deg"`
	Near     float32 `toml:"near"`
	Far      float32 `toml:"far"`
	Speed    float32 `toml:"speed"`
	TurnRate float32 `toml:"turn_rate"`
}

type CaptureConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
	Every   uint64 `toml:"every"`
	FrameID string `toml:"frame_id"`
	Queue   int    `toml:"queue"`
}

type StatsConfig struct {
	Interval Duration `toml:"interval"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Config is the whole application configuration.
type Config struct {
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Shadow   ShadowConfig   `toml:"shadow"`
	Bloom    BloomConfig    `toml:"bloom"`
	Flare    FlareConfig    `toml:"flare"`
	Exposure ExposureConfig `toml:"exposure"`
	Camera   CameraConfig   `toml:"camera"`
	Capture  CaptureConfig  `toml:"capture"`
	Stats    StatsConfig    `toml:"stats"`
	Log      LogConfig      `toml:"log"`
}

func Default() *Config {
	return &Config{
		Window: WindowConfig{
			Title:  "simcam",
			Width:  1280,
			Height: 720,
			X:      100,
			Y:      100,
		},
		Renderer: RendererConfig{
			Backend:          BackendVulkan,
			FramesInFlight:   2,
			ExposureFeedback: FeedbackSameFrame,
			ShaderDir:        "shaders",
			FenceTimeout:     Duration{time.Second},
		},
		Shadow: ShadowConfig{
			Resolution: 2048,
			HalfExtent: 10,
			Near:       0.1,
			Far:        80,
			Distance:   50,
		},
		Bloom: BloomConfig{
			Scale:     0.5,
			Radius:    5,
			Threshold: 0.85,
			Knee:      0.08,
			Strength:  0.6,
		},
		Flare: FlareConfig{
			Scale:    1.0,
			Strength: 1.0,
			LensFile: "assets/lens.toml",
		},
		Exposure: ExposureConfig{
			Initial:  1.0,
			RampUp:   1.5,
			RampDown: 3.5,
			Key:      0.18,
			Min:      0.05,
			Max:      8.0,
		},
		Camera: CameraConfig{
			FovDeg:   50,
			Near:     0.1,
			Far:      100,
			Speed:    3,
			TurnRate: 1.2,
		},
		Capture: CaptureConfig{
			Dir:     "captures",
			Every:   1,
			FrameID: "sim_camera",
			Queue:   4,
		},
		Stats: StatsConfig{Interval: Duration{time.Second}},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := Decode(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrInvalidConfig, path, err)
	}
	return cfg, cfg.Validate()
}

// Decode strictly decodes TOML data into cfg; unknown keys are an error.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", core.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	switch c.Renderer.Backend {
	case BackendVulkan, BackendReference:
	default:
		return invalid("renderer.backend %q", c.Renderer.Backend)
	}
	if c.Renderer.FramesInFlight < 2 || c.Renderer.FramesInFlight > 3 {
		return invalid("renderer.frames_in_flight must be 2 or 3, got %d", c.Renderer.FramesInFlight)
	}
	switch c.Renderer.ExposureFeedback {
	case FeedbackSameFrame, FeedbackLagged:
	default:
		return invalid("renderer.exposure_feedback %q", c.Renderer.ExposureFeedback)
	}
	if c.Renderer.FenceTimeout.Duration <= 0 {
		return invalid("renderer.fence_timeout must be positive")
	}
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return invalid("window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Shadow.Resolution == 0 || c.Shadow.HalfExtent <= 0 || c.Shadow.Near <= 0 || c.Shadow.Far <= c.Shadow.Near {
		return invalid("shadow parameters")
	}
	if c.Bloom.Scale <= 0 || c.Bloom.Scale > 1 {
		return invalid("bloom.scale must be in (0, 1], got %g", c.Bloom.Scale)
	}
	if c.Bloom.Radius < 0 || c.Bloom.Radius > 32 {
		return invalid("bloom.radius must be in [0, 32], got %d", c.Bloom.Radius)
	}
	if c.Bloom.Knee < 0 {
		return invalid("bloom.knee must not be negative")
	}
	if c.Flare.Scale <= 0 || c.Flare.Scale > 1 {
		return invalid("flare.scale must be in (0, 1], got %g", c.Flare.Scale)
	}
	e := c.Exposure
	if e.RampUp <= 0 || e.RampDown <= 0 {
		return invalid("exposure ramp rates must be positive")
	}
	if e.Min <= 0 || e.Max < e.Min || e.Key <= 0 {
		return invalid("exposure range [%g, %g] key %g", e.Min, e.Max, e.Key)
	}
	if e.Initial < e.Min || e.Initial > e.Max {
		return invalid("exposure.initial %g outside [%g, %g]", e.Initial, e.Min, e.Max)
	}
	if c.Camera.FovDeg <= 0 || c.Camera.FovDeg >= 180 || c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		return invalid("camera projection parameters")
	}
	if c.Capture.Every == 0 {
		return invalid("capture.every must be at least 1")
	}
	if c.Capture.Queue < 1 {
		return invalid("capture.queue must be at least 1")
	}
	if c.Stats.Interval.Duration <= 0 {
		return invalid("stats.interval must be positive")
	}
	if _, ok := core.ParseLogLevel(c.Log.Level); !ok {
		return invalid("log.level %q", c.Log.Level)
	}
	return nil
}
