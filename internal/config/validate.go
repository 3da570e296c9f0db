package config

import (
	"errors"
	"fmt"
	"sort"
)

var (
	validSpeedModes = map[string]struct{}{"eco": {}, "fast": {}, "turbo": {}}
	validHWAccel    = map[string]struct{}{"none": {}, "auto": {}, "cuda": {}, "vaapi": {}, "videotoolbox": {}}
	validBackends   = map[string]struct{}{"sqlite": {}, "json": {}}
	validFormats    = map[string]struct{}{"zip": {}, "pdf": {}}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateExtraction(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validatePersistence(); err != nil {
		return err
	}
	if err := c.validatePackaging(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateExtraction() error {
	e := c.Extraction
	if e.Threshold <= 0 || e.Threshold > 255 {
		return errors.New("extraction.threshold must be within (0, 255]")
	}
	if _, ok := validSpeedModes[e.SpeedMode]; !ok {
		return fmt.Errorf("extraction.speed_mode %q must be one of eco, fast, turbo", e.SpeedMode)
	}
	if e.MaxHistory < 1 {
		return errors.New("extraction.max_history must be at least 1")
	}
	if _, ok := validHWAccel[e.HWAccel]; !ok {
		return fmt.Errorf("extraction.hwaccel %q is not supported", e.HWAccel)
	}
	if e.JPEGQuality < 1 || e.JPEGQuality > 100 {
		return errors.New("extraction.jpeg_quality must be between 1 and 100")
	}
	if err := e.ROI.Validate(); err != nil {
		return fmt.Errorf("extraction.roi: %w", err)
	}
	return nil
}

// Validate checks that the fractions describe a non-empty rectangle inside the frame.
func (r ROI) Validate() error {
	for _, v := range []float64{r.X1, r.Y1, r.X2, r.Y2} {
		if v < 0 || v > 1 {
			return errors.New("coordinates must be fractions between 0 and 1")
		}
	}
	if r.X2 <= r.X1 || r.Y2 <= r.Y1 {
		return errors.New("x2/y2 must be greater than x1/y1")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.MaxWorkers < 0 {
		return errors.New("workers.max_workers must be >= 0 (0 derives from hardware)")
	}
	if c.Workers.DiskWarningMB < 0 {
		return errors.New("workers.disk_warning_mb must be >= 0")
	}
	return ensurePositiveMap(map[string]int{
		"workers.meta_save_interval":    c.Workers.MetaSaveInterval,
		"workers.heartbeat_interval":    c.Workers.HeartbeatInterval,
		"events.subscriber_buffer":      c.Events.SubscriberBuffer,
		"events.max_drops":              c.Events.MaxDrops,
		"events.history":                c.Events.History,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validatePersistence() error {
	if _, ok := validBackends[c.Persistence.Backend]; !ok {
		return fmt.Errorf("persistence.backend %q must be sqlite or json", c.Persistence.Backend)
	}
	return nil
}

func (c *Config) validatePackaging() error {
	if _, ok := validFormats[c.Packaging.DefaultFormat]; !ok {
		return fmt.Errorf("packaging.default_format %q must be zip or pdf", c.Packaging.DefaultFormat)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.DedupWindowSeconds < 0 {
		return errors.New("notifications.dedup_window_seconds must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
