// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing video streams and format metadata
//   - Stream: video stream properties (size, frame rates, frame count)
//   - Format: container-level metadata (duration, size)
//
// Primary entry points:
//   - Inspect: executes ffprobe and returns parsed Result
//   - Parse: decodes captured ffprobe JSON
//
// Helper methods on Result resolve the frame rate and total frame count the
// extraction engine needs for stride and ETA calculations.
package ffprobe
