package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeExtraction()
	c.normalizePersistence()
	c.normalizePackaging()
	c.normalizeNotifications()
	c.normalizeLogging()
	c.normalizeTools()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("VIDSLIDE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeExtraction() {
	c.Extraction.SpeedMode = strings.ToLower(strings.TrimSpace(c.Extraction.SpeedMode))
	if c.Extraction.SpeedMode == "" {
		c.Extraction.SpeedMode = defaultSpeedMode
	}
	c.Extraction.HWAccel = strings.ToLower(strings.TrimSpace(c.Extraction.HWAccel))
	if c.Extraction.HWAccel == "" {
		c.Extraction.HWAccel = defaultHWAccel
	}
	if c.Extraction.JPEGQuality == 0 {
		c.Extraction.JPEGQuality = defaultJPEGQuality
	}
	if c.Extraction.ROI == (ROI{}) {
		c.Extraction.ROI = ROI{X1: defaultROIX1, Y1: defaultROIY1, X2: 1, Y2: 1}
	}
}

func (c *Config) normalizePersistence() {
	c.Persistence.Backend = strings.ToLower(strings.TrimSpace(c.Persistence.Backend))
	if c.Persistence.Backend == "" {
		c.Persistence.Backend = defaultPersistenceBackend
	}
}

func (c *Config) normalizePackaging() {
	c.Packaging.DefaultFormat = strings.ToLower(strings.TrimSpace(c.Packaging.DefaultFormat))
	if c.Packaging.DefaultFormat == "" {
		c.Packaging.DefaultFormat = defaultPackagingFormat
	}
	c.Packaging.PDFPageSize = strings.TrimSpace(c.Packaging.PDFPageSize)
	if c.Packaging.PDFPageSize == "" {
		c.Packaging.PDFPageSize = defaultPDFPageSize
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("VIDSLIDE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
}
