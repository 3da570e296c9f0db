package video

import (
	"context"
	"image"
	"strings"
)

// SupportedExtensions lists the video container extensions accepted when
// scanning folders.
var SupportedExtensions = []string{
	".mp4", ".avi", ".mkv", ".mov", ".flv", ".wmv",
	".webm", ".m4v", ".ts", ".mpg", ".mpeg", ".3gp",
}

// IsSupported reports whether path has a supported video extension.
func IsSupported(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range SupportedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Info describes an opened video.
type Info struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int64
	Duration   float64
	Codec      string
}

// Frame is one decoded picture. Index is the zero-based position of the frame
// in the source.
type Frame struct {
	Index int64
	Image *image.RGBA
}

// Handle yields frames from an opened video in presentation order.
type Handle interface {
	Info() Info
	// Next decodes the next frame. It returns io.EOF at the end of the stream.
	Next() (Frame, error)
	// Skip decodes and discards n frames. It returns io.EOF when the stream
	// ends before n frames were consumed.
	Skip(n int64) error
	Close() error
}

// OpenOptions tune how a source is opened.
type OpenOptions struct {
	// StartFrame positions the handle before its first frame.
	StartFrame int64
	// HWAccel selects an ffmpeg hardware decoder ("none", "auto", "cuda", ...).
	HWAccel string
	// LowPriority lowers the scheduling priority of the decoder.
	LowPriority bool
}

// Decoder opens video sources.
type Decoder interface {
	Open(ctx context.Context, path string, opts OpenOptions) (Handle, error)
}

// Prober inspects a source without decoding frames.
type Prober interface {
	Probe(ctx context.Context, path string) (Info, error)
}

// Thumbnailer writes a still preview of a source.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, path, dest string, atSeconds float64, width int) error
}
