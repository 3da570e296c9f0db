package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// OutputPaths receive every record at Level. "stdout" and "stderr" name
	// the standard streams; anything else is opened as an append-only file.
	OutputPaths []string
	// ErrorOutputPaths receive error records only. Paths already listed in
	// OutputPaths are not written twice.
	ErrorOutputPaths []string
	Development      bool
	// Hub, when set, receives every record for log tailing over IPC.
	Hub *StreamHub
	// SessionID is stamped on every record when non-empty.
	SessionID string
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(opts.Level))
	errorLevel := new(slog.LevelVar)
	errorLevel.Set(slog.LevelError)

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}
	if format != "json" && format != "console" {
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
	addSource := opts.Development || levelVar.Level() <= slog.LevelDebug

	outputs := uniquePaths(opts.OutputPaths, nil)
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	errorOutputs := uniquePaths(opts.ErrorOutputPaths, outputs)
	if opts.ErrorOutputPaths == nil {
		errorOutputs = uniquePaths([]string{"stderr"}, outputs)
	}

	primary, err := openWriters(outputs)
	if err != nil {
		return nil, err
	}
	handlers := []slog.Handler{buildHandler(format, primary, levelVar, addSource)}
	if len(errorOutputs) > 0 {
		errs, err := openWriters(errorOutputs)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, buildHandler(format, errs, errorLevel, addSource))
	}

	handler := newFanoutHandler(handlers...)
	if sessionID := strings.TrimSpace(opts.SessionID); sessionID != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String(FieldSessionID, sessionID)})
	}
	if opts.Hub != nil {
		handler = newStreamHandler(handler, opts.Hub)
	}
	return slog.New(handler), nil
}

func buildHandler(format string, w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	if format == "json" {
		return newJSONHandler(w, lvl, addSource)
	}
	return newConsoleHandler(w, lvl, addSource)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// uniquePaths trims and dedupes paths, dropping any already present in skip.
func uniquePaths(paths, skip []string) []string {
	seen := make(map[string]struct{}, len(paths)+len(skip))
	for _, p := range skip {
		seen[p] = struct{}{}
	}
	var out []string
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func openWriters(paths []string) (io.Writer, error) {
	writers := make([]io.Writer, 0, len(paths))
	for _, path := range paths {
		switch path {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if dir := filepath.Dir(path); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("ensure log directory: %w", err)
				}
			}
			file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", path, err)
			}
			writers = append(writers, file)
		}
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}
