package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool      = errors.New("external tool error")
	ErrValidation        = errors.New("validation error")
	ErrConfiguration     = errors.New("configuration error")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrBusy              = errors.New("batch busy")
	ErrTransient         = errors.New("transient failure")

	// Extraction outcomes. ErrInterrupted marks a cooperative stop and is not
	// reported as a task failure.
	ErrVideoUnreadable   = errors.New("video unreadable")
	ErrDecodeInterrupted = errors.New("decode interrupted")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrInterrupted       = errors.New("interrupted")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureKind names the failure class recorded on a task.
type FailureKind string

const (
	KindVideoUnreadable   FailureKind = "video_unreadable"
	KindDecodeInterrupted FailureKind = "decode_interrupted"
	KindResourceExhausted FailureKind = "resource_exhausted"
	KindExternalTool      FailureKind = "external_tool"
	KindConfiguration     FailureKind = "configuration"
	KindInternal          FailureKind = "internal"
)

// Classify maps a worker error to its failure kind and an operator-facing hint.
func Classify(err error) (FailureKind, string) {
	switch {
	case errors.Is(err, ErrVideoUnreadable):
		return KindVideoUnreadable, "check the file path and that the codec is supported by ffmpeg"
	case errors.Is(err, ErrDecodeInterrupted):
		return KindDecodeInterrupted, "the file may be truncated; partial slides were kept and the task can be retried"
	case errors.Is(err, ErrResourceExhausted):
		return KindResourceExhausted, "lower workers.max_workers or free memory before retrying"
	case errors.Is(err, ErrExternalTool):
		return KindExternalTool, "verify ffmpeg and ffprobe are installed and on PATH"
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation):
		return KindConfiguration, "review extraction parameters and retry"
	default:
		return KindInternal, "check daemon logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
