package logging

import (
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Keys used by the JSON format. internal/logs decodes files written with them.
const (
	JSONTimeKey    = "ts"
	JSONLevelKey   = "level"
	JSONMessageKey = "msg"
	JSONSourceKey  = "src"
)

func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: renameJSONAttr,
	})
}

func renameJSONAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return attr
	}
	switch attr.Key {
	case slog.TimeKey:
		if attr.Value.Kind() == slog.KindTime {
			return slog.String(JSONTimeKey, attr.Value.Time().UTC().Format(time.RFC3339))
		}
		attr.Key = JSONTimeKey
	case slog.LevelKey:
		return slog.String(JSONLevelKey, strings.ToLower(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = JSONMessageKey
	case slog.SourceKey:
		if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
			return slog.String(JSONSourceKey, filepath.Base(src.File)+":"+strconv.Itoa(src.Line))
		}
	}
	return attr
}
