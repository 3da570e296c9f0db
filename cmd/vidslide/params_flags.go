package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidslide/internal/api"
	"vidslide/internal/extract"
)

// paramsFlags collects extraction overrides. Only flags the user set are
// sent to the daemon.
type paramsFlags struct {
	threshold  float64
	speed      string
	maxHistory int
	roi        string
	noROI      bool
	hwaccel    string
	quality    int
}

func (p *paramsFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Float64Var(&p.threshold, "threshold", 0, "Slide difference threshold (0.0-1.0)")
	flags.StringVar(&p.speed, "speed", "", "Speed mode: eco, fast or turbo")
	flags.IntVar(&p.maxHistory, "max-history", 0, "Number of recent slides checked for duplicates")
	flags.StringVar(&p.roi, "roi", "", "Region of interest as x1,y1,x2,y2 fractions")
	flags.BoolVar(&p.noROI, "no-roi", false, "Analyse the full frame")
	flags.StringVar(&p.hwaccel, "hwaccel", "", "ffmpeg hardware acceleration method")
	flags.IntVar(&p.quality, "quality", 0, "JPEG quality (1-100)")
}

func (p *paramsFlags) override(cmd *cobra.Command) (*api.ParamsOverride, error) {
	flags := cmd.Flags()
	override := &api.ParamsOverride{}
	if flags.Changed("threshold") {
		override.Threshold = &p.threshold
	}
	if flags.Changed("speed") {
		speed := strings.ToLower(strings.TrimSpace(p.speed))
		override.SpeedMode = &speed
	}
	if flags.Changed("max-history") {
		override.MaxHistory = &p.maxHistory
	}
	if flags.Changed("hwaccel") {
		override.HWAccel = &p.hwaccel
	}
	if flags.Changed("quality") {
		override.JPEGQuality = &p.quality
	}
	if flags.Changed("roi") && flags.Changed("no-roi") {
		return nil, fmt.Errorf("--roi and --no-roi are mutually exclusive")
	}
	if flags.Changed("roi") {
		roi, err := parseROI(p.roi)
		if err != nil {
			return nil, err
		}
		useROI := true
		override.UseROI = &useROI
		override.ROI = roi
	}
	if flags.Changed("no-roi") && p.noROI {
		useROI := false
		override.UseROI = &useROI
	}
	if override.IsZero() {
		return nil, nil
	}
	return override, nil
}

func parseROI(value string) (*extract.ROI, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid --roi %q: expected x1,y1,x2,y2", value)
	}
	coords := make([]float64, 4)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --roi %q: %w", value, err)
		}
		coords[i] = v
	}
	return &extract.ROI{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}, nil
}
