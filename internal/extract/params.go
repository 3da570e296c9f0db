package extract

import (
	"fmt"
	"image"
	"strings"
	"time"

	"vidslide/internal/config"
	"vidslide/internal/services"
)

// SpeedMode names a bundle of sampling constants.
type SpeedMode string

const (
	SpeedEco   SpeedMode = "eco"
	SpeedFast  SpeedMode = "fast"
	SpeedTurbo SpeedMode = "turbo"
)

// ParseSpeedMode normalizes a user supplied speed mode.
func ParseSpeedMode(value string) (SpeedMode, error) {
	switch mode := SpeedMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case SpeedEco, SpeedFast, SpeedTurbo:
		return mode, nil
	case "":
		return SpeedEco, nil
	default:
		return "", services.Wrap(services.ErrValidation, "params", "speed_mode", fmt.Sprintf("unknown speed mode %q", value), nil)
	}
}

// Profile holds the concrete constants a speed mode maps to.
type Profile struct {
	StrideSeconds       float64
	CompareWidth        int
	StabilizeSeconds    float64
	StableSamples       int
	MaxStabilizeSamples int
	Throttle            time.Duration
	LowPriority         bool
}

// stableDiff is the mean difference below which two stabilization samples
// are considered identical.
const stableDiff = 1.0

// ProfileFor returns the constants for mode. Unknown modes fall back to eco.
func ProfileFor(mode SpeedMode) Profile {
	switch mode {
	case SpeedTurbo:
		return Profile{
			StrideSeconds:       2,
			CompareWidth:        320,
			StabilizeSeconds:    0.3,
			StableSamples:       1,
			MaxStabilizeSamples: 10,
			Throttle:            time.Millisecond,
		}
	case SpeedFast:
		return Profile{
			StrideSeconds:       1,
			CompareWidth:        480,
			StabilizeSeconds:    0.5,
			StableSamples:       2,
			MaxStabilizeSamples: 10,
			Throttle:            time.Millisecond,
		}
	default:
		return Profile{
			StrideSeconds:       1,
			CompareWidth:        480,
			StabilizeSeconds:    0.5,
			StableSamples:       2,
			MaxStabilizeSamples: 10,
			Throttle:            8 * time.Millisecond,
			LowPriority:         true,
		}
	}
}

// Stride converts the profile's stride into a frame count for fps.
func (p Profile) Stride(fps float64) int64 {
	return framesFor(fps, p.StrideSeconds)
}

// StabilizeStep converts the stabilization interval into a frame count for fps.
func (p Profile) StabilizeStep(fps float64) int64 {
	return framesFor(fps, p.StabilizeSeconds)
}

func framesFor(fps, seconds float64) int64 {
	n := int64(fps * seconds)
	if n < 1 {
		return 1
	}
	return n
}

// ROI is a region of interest expressed as fractions of the frame.
type ROI struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Rect maps the region onto a frame of the given size. An empty result falls
// back to the full frame.
func (r ROI) Rect(width, height int) image.Rectangle {
	full := image.Rect(0, 0, width, height)
	rect := image.Rect(
		int(float64(width)*r.X1),
		int(float64(height)*r.Y1),
		int(float64(width)*r.X2),
		int(float64(height)*r.Y2),
	).Intersect(full)
	if rect.Empty() {
		return full
	}
	return rect
}

// Validate checks the fractions describe a non-empty region.
func (r ROI) Validate() error {
	if r.X1 < 0 || r.Y1 < 0 || r.X2 > 1 || r.Y2 > 1 || r.X1 >= r.X2 || r.Y1 >= r.Y2 {
		return services.Wrap(services.ErrValidation, "params", "roi",
			fmt.Sprintf("region (%.3f,%.3f)-(%.3f,%.3f) is not inside the frame", r.X1, r.Y1, r.X2, r.Y2), nil)
	}
	return nil
}

// Params is the extraction configuration snapshotted onto every task run.
type Params struct {
	Threshold   float64   `json:"threshold"`
	SpeedMode   SpeedMode `json:"speed_mode"`
	ROI         *ROI      `json:"roi,omitempty"`
	MaxHistory  int       `json:"max_history"`
	HWAccel     string    `json:"hwaccel"`
	JPEGQuality int       `json:"jpeg_quality"`
}

// DefaultParams mirrors the configuration defaults.
func DefaultParams() Params {
	return ParamsFromConfig(config.Default().Extraction)
}

// ParamsFromConfig builds extraction parameters from the [extraction] section.
func ParamsFromConfig(cfg config.Extraction) Params {
	params := Params{
		Threshold:   cfg.Threshold,
		SpeedMode:   SpeedMode(cfg.SpeedMode),
		MaxHistory:  cfg.MaxHistory,
		HWAccel:     cfg.HWAccel,
		JPEGQuality: cfg.JPEGQuality,
	}
	if cfg.UseROI {
		params.ROI = &ROI{X1: cfg.ROI.X1, Y1: cfg.ROI.Y1, X2: cfg.ROI.X2, Y2: cfg.ROI.Y2}
	}
	return params.Normalize()
}

// Normalize fills zero values with defaults.
func (p Params) Normalize() Params {
	if p.Threshold <= 0 {
		p.Threshold = 5.0
	}
	if mode, err := ParseSpeedMode(string(p.SpeedMode)); err == nil {
		p.SpeedMode = mode
	}
	if p.MaxHistory < 0 {
		p.MaxHistory = 0
	}
	p.HWAccel = strings.ToLower(strings.TrimSpace(p.HWAccel))
	if p.HWAccel == "" {
		p.HWAccel = "none"
	}
	if p.JPEGQuality <= 0 {
		p.JPEGQuality = 95
	}
	return p
}

// Validate reports the first invalid field.
func (p Params) Validate() error {
	if p.Threshold <= 0 || p.Threshold > 255 {
		return services.Wrap(services.ErrValidation, "params", "threshold", fmt.Sprintf("threshold %.2f outside (0,255]", p.Threshold), nil)
	}
	if _, err := ParseSpeedMode(string(p.SpeedMode)); err != nil {
		return err
	}
	if p.MaxHistory < 0 || p.MaxHistory > 100 {
		return services.Wrap(services.ErrValidation, "params", "max_history", fmt.Sprintf("history depth %d outside [0,100]", p.MaxHistory), nil)
	}
	if p.JPEGQuality < 1 || p.JPEGQuality > 100 {
		return services.Wrap(services.ErrValidation, "params", "jpeg_quality", fmt.Sprintf("quality %d outside [1,100]", p.JPEGQuality), nil)
	}
	if p.ROI != nil {
		if err := p.ROI.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy so a snapshot never aliases the caller's ROI.
func (p Params) Clone() Params {
	if p.ROI != nil {
		roi := *p.ROI
		p.ROI = &roi
	}
	return p
}
