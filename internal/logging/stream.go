package logging

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// LogEvent represents a structured log line published to the streaming hub.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	BatchID       string            `json:"batch_id,omitempty"`
	TaskID        string            `json:"task_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// LogQuery selects events from a StreamHub. Zero filters match everything.
type LogQuery struct {
	Since   uint64
	Limit   int
	Wait    bool
	BatchID string
	TaskID  string
}

func (q LogQuery) matches(evt LogEvent) bool {
	if q.BatchID != "" && evt.BatchID != q.BatchID {
		return false
	}
	return q.TaskID == "" || evt.TaskID == q.TaskID
}

// StreamHub keeps the most recent log events in a ring and wakes waiters
// when new events arrive.
type StreamHub struct {
	mu    sync.Mutex
	cond  *sync.Cond
	ring  []LogEvent
	start int
	count int
	seq   uint64
}

// NewStreamHub constructs a hub holding at most capacity events.
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	h := &StreamHub{ring: make([]LogEvent, capacity)}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish stamps evt with the next sequence and stores it, evicting the
// oldest event when full.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	evt.Sequence = h.seq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if h.count < len(h.ring) {
		h.ring[(h.start+h.count)%len(h.ring)] = evt
		h.count++
	} else {
		h.ring[h.start] = evt
		h.start = (h.start + 1) % len(h.ring)
	}
	h.cond.Broadcast()
}

// Fetch returns matching events with a sequence above q.Since, oldest first,
// and the cursor to pass as the next Since. With q.Wait set it blocks until
// a matching event is published or ctx ends.
func (h *StreamHub) Fetch(ctx context.Context, q LogQuery) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, q.Since, nil
	}
	q.Limit = h.clampLimit(q.Limit)

	if q.Wait && ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			h.mu.Lock()
			h.cond.Broadcast()
			h.mu.Unlock()
		})
		defer stop()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return nil, q.Since, err
		}
		events, next := h.collectLocked(q)
		if len(events) > 0 || !q.Wait {
			return events, next, nil
		}
		q.Since = next
		h.cond.Wait()
	}
}

// Tail returns up to limit of the most recent matching events and the
// current sequence.
func (h *StreamHub) Tail(q LogQuery) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	limit := h.clampLimit(q.Limit)
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []LogEvent
	for i := h.count - 1; i >= 0 && len(out) < limit; i-- {
		if evt := h.at(i); q.matches(evt) {
			out = append(out, evt)
		}
	}
	slices.Reverse(out)
	return out, h.seq
}

func (h *StreamHub) clampLimit(limit int) int {
	if limit <= 0 || limit > len(h.ring) {
		return len(h.ring)
	}
	return limit
}

func (h *StreamHub) at(i int) LogEvent {
	return h.ring[(h.start+i)%len(h.ring)]
}

// collectLocked scans forward from q.Since. The cursor advances past
// non-matching events so a filtered follower does not rescan them.
func (h *StreamHub) collectLocked(q LogQuery) ([]LogEvent, uint64) {
	next := q.Since
	var out []LogEvent
	for i := 0; i < h.count && len(out) < q.Limit; i++ {
		evt := h.at(i)
		if evt.Sequence <= q.Since {
			continue
		}
		next = evt.Sequence
		if q.matches(evt) {
			out = append(out, evt)
		}
	}
	return out, next
}

type streamHandler struct {
	next  slog.Handler
	hub   *StreamHub
	attrs []slog.Attr
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.hub != nil {
		h.hub.Publish(newLogEvent(record, h.attrs))
	}
	return h.next.Handle(ctx, record.Clone())
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &streamHandler{
		next:  h.next.WithAttrs(attrs),
		hub:   h.hub,
		attrs: slices.Concat(h.attrs, attrs),
	}
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	return &streamHandler{
		next:  h.next.WithGroup(name),
		hub:   h.hub,
		attrs: h.attrs,
	}
}

// newLogEvent converts a record. Call-site attrs override accumulated ones.
func newLogEvent(record slog.Record, accumulated []slog.Attr) LogEvent {
	event := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
	}
	for _, attr := range accumulated {
		event.set(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		event.set(attr)
		return true
	})
	return event
}

func (e *LogEvent) set(attr slog.Attr) {
	key := strings.TrimSpace(attr.Key)
	if key == "" {
		return
	}
	value := attrString(attr.Value)
	switch key {
	case FieldBatchID:
		e.BatchID = value
	case FieldTaskID:
		e.TaskID = value
	case FieldStage:
		e.Stage = value
	case FieldCorrelationID:
		e.CorrelationID = value
	case FieldComponent:
		e.Component = value
	default:
		if e.Fields == nil {
			e.Fields = make(map[string]string)
		}
		e.Fields[key] = value
	}
}
