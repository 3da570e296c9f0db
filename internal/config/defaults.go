package config

const (
	defaultConfigPath            = "~/.config/vidslide/config.toml"
	defaultOutputDir             = "~/Videos/vidslide"
	defaultStateDir              = "~/.local/share/vidslide"
	defaultLogDir                = "~/.local/share/vidslide/logs"
	defaultAPIBind               = "127.0.0.1:7491"
	defaultThreshold             = 5.0
	defaultSpeedMode             = "eco"
	defaultMaxHistory            = 5
	defaultHWAccel               = "none"
	defaultJPEGQuality           = 95
	defaultROIX1                 = 0.208
	defaultROIY1                 = 0.185
	defaultDiskWarningMB         = 500
	defaultMetaSaveInterval      = 10
	defaultHeartbeatInterval     = 15
	defaultPersistenceBackend    = "sqlite"
	defaultSubscriberBuffer      = 200
	defaultSubscriberMaxDrops    = 50
	defaultEventHistory          = 256
	defaultPackagingFormat       = "zip"
	defaultPDFPageSize           = "A4"
	defaultNotifyRequestTimeout  = 10
	defaultNotifyDedupWindowSecs = 600
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Extraction: Extraction{
			Threshold:   defaultThreshold,
			SpeedMode:   defaultSpeedMode,
			MaxHistory:  defaultMaxHistory,
			ROI:         ROI{X1: defaultROIX1, Y1: defaultROIY1, X2: 1, Y2: 1},
			HWAccel:     defaultHWAccel,
			JPEGQuality: defaultJPEGQuality,
		},
		Workers: Workers{
			DiskWarningMB:     defaultDiskWarningMB,
			MetaSaveInterval:  defaultMetaSaveInterval,
			HeartbeatInterval: defaultHeartbeatInterval,
		},
		Persistence: Persistence{
			Backend:    defaultPersistenceBackend,
			MirrorJSON: true,
		},
		Events: Events{
			SubscriberBuffer: defaultSubscriberBuffer,
			MaxDrops:         defaultSubscriberMaxDrops,
			History:          defaultEventHistory,
		},
		Packaging: Packaging{
			DefaultFormat: defaultPackagingFormat,
			PDFPageSize:   defaultPDFPageSize,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyRequestTimeout,
			Batch:              true,
			Errors:             true,
			DedupWindowSeconds: defaultNotifyDedupWindowSecs,
		},
		Metrics: Metrics{
			Enabled: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpegBinary,
			FFprobe: defaultFFprobeBinary,
		},
	}
}
