package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidslide/internal/logging"
)

// CurrentLogName is the pointer the daemon keeps at the active run log.
const CurrentLogName = "vidslide.log"

const pollInterval = 250 * time.Millisecond

// CurrentLogPath returns the current run log inside logDir.
func CurrentLogPath(logDir string) string {
	return filepath.Join(logDir, CurrentLogName)
}

// Filter limits tailed events to one batch or task.
type Filter struct {
	BatchID string
	TaskID  string
}

func (f Filter) match(evt logging.LogEvent) bool {
	if f.BatchID != "" && evt.BatchID != f.BatchID {
		return false
	}
	if f.TaskID != "" && evt.TaskID != f.TaskID {
		return false
	}
	return true
}

// TailOptions controls a Tail call. A negative Offset returns the last Limit
// matching events; Limit <= 0 with a negative offset only positions the
// cursor at the end of the file.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	Filter Filter
}

// TailResult carries decoded events and the byte offset to resume from.
type TailResult struct {
	Events []logging.LogEvent
	Offset int64
}

// Tail reads log events from path.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	result := TailResult{Offset: opts.Offset}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Offset = 0
			return result, nil
		}
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}

	if opts.Offset < 0 {
		events, offset, err := readLast(path, opts.Limit, opts.Filter)
		if err != nil {
			return result, err
		}
		result.Events = events
		result.Offset = offset
		if opts.Follow && opts.Wait > 0 && len(events) == 0 {
			return waitForEvents(ctx, path, offset, opts.Wait, opts.Filter)
		}
		return result, nil
	}

	offset := opts.Offset
	if offset > info.Size() {
		// truncated or replaced; restart from the end
		offset = info.Size()
	}
	events, next, err := readForward(path, offset, opts.Filter)
	if err != nil {
		return result, err
	}
	if opts.Follow && opts.Wait > 0 && len(events) == 0 {
		return waitForEvents(ctx, path, next, opts.Wait, opts.Filter)
	}
	return TailResult{Events: events, Offset: next}, nil
}

// Decode turns one log line into an event. Non-JSON lines become the message.
func Decode(line string) logging.LogEvent {
	line = strings.TrimSpace(line)
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil || raw == nil {
		return logging.LogEvent{Message: line}
	}
	evt := logging.LogEvent{Fields: make(map[string]string)}
	for key, value := range raw {
		text := fieldString(value)
		switch key {
		case logging.JSONTimeKey:
			if ts, err := time.Parse(time.RFC3339, text); err == nil {
				evt.Timestamp = ts
			}
		case logging.JSONLevelKey:
			evt.Level = strings.ToUpper(text)
		case logging.JSONMessageKey:
			evt.Message = text
		case logging.FieldComponent:
			evt.Component = text
		case logging.FieldBatchID:
			evt.BatchID = text
		case logging.FieldTaskID:
			evt.TaskID = text
		case logging.FieldStage:
			evt.Stage = text
		case logging.FieldCorrelationID:
			evt.CorrelationID = text
		default:
			evt.Fields[key] = text
		}
	}
	if len(evt.Fields) == 0 {
		evt.Fields = nil
	}
	return evt
}

func fieldString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case float64, bool:
		return fmt.Sprint(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

func readLast(path string, limit int, filter Filter) ([]logging.LogEvent, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		offset, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, offset, nil
	}

	ring := make([]logging.LogEvent, limit)
	count, idx := 0, 0
	offset, err := scanEvents(file, filter, func(evt logging.LogEvent) {
		ring[idx] = evt
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}

	events := make([]logging.LogEvent, count)
	if count == limit {
		for i := 0; i < count; i++ {
			events[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(events, ring[:count])
	}
	return events, offset, nil
}

func readForward(path string, offset int64, filter Filter) ([]logging.LogEvent, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}
	var events []logging.LogEvent
	next, err := scanEvents(file, filter, func(evt logging.LogEvent) {
		events = append(events, evt)
	})
	if err != nil {
		return nil, 0, err
	}
	return events, next, nil
}

// scanEvents decodes complete lines from the current position and returns the
// offset after the last complete line. A trailing partial line is left for
// the next read.
func scanEvents(file *os.File, filter Filter, emit func(logging.LogEvent)) (int64, error) {
	start, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	consumed := start
	for {
		line, err := reader.ReadString('\n')
		if strings.HasSuffix(line, "\n") {
			consumed += int64(len(line))
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				if evt := Decode(trimmed); filter.match(evt) {
					emit(evt)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read log file: %w", err)
		}
	}
}

func waitForEvents(ctx context.Context, path string, offset int64, wait time.Duration, filter Filter) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		events, next, err := readForward(path, offset, filter)
		if err != nil {
			return result, err
		}
		offset = next
		result.Offset = next
		if len(events) > 0 {
			result.Events = events
			return result, nil
		}
		if time.Now().After(deadline) {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}
