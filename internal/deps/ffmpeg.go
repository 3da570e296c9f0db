package deps

import (
	"context"

	"vidslide/internal/config"
)

// VideoRequirements lists the binaries used for decoding and inspection.
func VideoRequirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: cfg.FFmpegBinary(), Description: "Decodes video frames and grabs thumbnails", VersionArg: "-version"},
		{Name: "FFprobe", Command: cfg.FFprobeBinary(), Description: "Reads frame rate, frame count and duration", VersionArg: "-version"},
	}
}

// CheckVideoTools checks the ffmpeg tool pair.
func CheckVideoTools(ctx context.Context, cfg *config.Config) []Status {
	return Check(ctx, VideoRequirements(cfg))
}
