package api

import (
	"vidslide/internal/config"
	"vidslide/internal/extract"
)

// ParamsOverride carries a partial set of extraction parameters. Nil fields
// keep the base value.
type ParamsOverride struct {
	Threshold   *float64     `json:"threshold,omitempty"`
	SpeedMode   *string      `json:"speed_mode,omitempty"`
	MaxHistory  *int         `json:"max_history,omitempty"`
	UseROI      *bool        `json:"use_roi,omitempty"`
	ROI         *extract.ROI `json:"roi,omitempty"`
	HWAccel     *string      `json:"hwaccel,omitempty"`
	JPEGQuality *int         `json:"jpeg_quality,omitempty"`
}

// IsZero reports whether the override changes nothing.
func (o *ParamsOverride) IsZero() bool {
	return o == nil || (o.Threshold == nil && o.SpeedMode == nil && o.MaxHistory == nil &&
		o.UseROI == nil && o.ROI == nil && o.HWAccel == nil && o.JPEGQuality == nil)
}

// Apply layers the override on base and validates the result.
func (o *ParamsOverride) Apply(base extract.Params) (extract.Params, error) {
	params := base.Clone()
	if o != nil {
		if o.Threshold != nil {
			params.Threshold = *o.Threshold
		}
		if o.SpeedMode != nil {
			params.SpeedMode = extract.SpeedMode(*o.SpeedMode)
		}
		if o.MaxHistory != nil {
			params.MaxHistory = *o.MaxHistory
		}
		if o.HWAccel != nil {
			params.HWAccel = *o.HWAccel
		}
		if o.JPEGQuality != nil {
			params.JPEGQuality = *o.JPEGQuality
		}
		switch {
		case o.UseROI != nil && !*o.UseROI:
			params.ROI = nil
		case o.ROI != nil:
			roi := *o.ROI
			params.ROI = &roi
		case o.UseROI != nil && params.ROI == nil:
			def := config.Default().Extraction.ROI
			params.ROI = &extract.ROI{X1: def.X1, Y1: def.Y1, X2: def.X2, Y2: def.Y2}
		}
	}
	mode, err := extract.ParseSpeedMode(string(params.SpeedMode))
	if err != nil {
		return extract.Params{}, err
	}
	params.SpeedMode = mode
	// explicit zero values are rejected here; Normalize would replace them
	if err := params.Validate(); err != nil {
		return extract.Params{}, err
	}
	return params.Normalize(), nil
}
