package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"vidslide/internal/config"
)

const userAgent = "VidSlide-Go/0.1.0"

// BatchSummary describes a batch that finished dispatching.
type BatchSummary struct {
	BatchID     string
	Completed   int
	Failed      int
	Skipped     int
	TotalImages int
	Duration    time.Duration
}

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyBatchStarted(ctx context.Context, batchID string, queued int) error
	NotifyBatchIdle(ctx context.Context, summary BatchSummary) error
	NotifyTaskError(ctx context.Context, batchID, taskName, message string) error
	NotifyExportCompleted(ctx context.Context, taskName, file string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		batchEvents: cfg.Notifications.Batch,
		errorEvents: cfg.Notifications.Errors,
		dedupWindow: time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second,
		now:         time.Now,
		sent:        make(map[string]time.Time),
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
	// dedupKey suppresses repeats of the same notification inside the
	// dedup window. Empty keys are never suppressed.
	dedupKey string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	batchEvents bool
	errorEvents bool
	dedupWindow time.Duration
	now         func() time.Time

	mu   sync.Mutex
	sent map[string]time.Time
}

func (n *ntfyService) NotifyBatchStarted(ctx context.Context, batchID string, queued int) error {
	if !n.batchEvents {
		return nil
	}
	data := payload{
		title:   "VidSlide - Batch Started",
		message: fmt.Sprintf("Started batch %s with %d queued videos", shortID(batchID), queued),
		tags:    []string{"vidslide", "batch", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchIdle(ctx context.Context, summary BatchSummary) error {
	if !n.batchEvents {
		return nil
	}
	duration := summary.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	title := "VidSlide - Batch Complete"
	message := fmt.Sprintf("Batch %s finished: %d videos, %d slides in %s",
		shortID(summary.BatchID), summary.Completed, summary.TotalImages, duration)
	if summary.Failed > 0 || summary.Skipped > 0 {
		title = "VidSlide - Batch Complete (with errors)"
		message = fmt.Sprintf("Batch %s finished: %d succeeded, %d failed, %d skipped, %d slides in %s",
			shortID(summary.BatchID), summary.Completed, summary.Failed, summary.Skipped, summary.TotalImages, duration)
	}
	data := payload{
		title:   title,
		message: message,
		tags:    []string{"vidslide", "batch", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTaskError(ctx context.Context, batchID, taskName, message string) error {
	if !n.errorEvents {
		return nil
	}
	taskName = strings.TrimSpace(taskName)
	message = strings.TrimSpace(message)
	if message == "" {
		message = "unknown"
	}
	data := payload{
		title:    "VidSlide - Extraction Failed",
		message:  fmt.Sprintf("❌ %s: %s", taskName, message),
		tags:     []string{"vidslide", "error", "alert"},
		priority: "high",
		dedupKey: "task_error|" + batchID + "|" + taskName + "|" + message,
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyExportCompleted(ctx context.Context, taskName, file string) error {
	if !n.batchEvents {
		return nil
	}
	data := payload{
		title:   "VidSlide - Export Ready",
		message: fmt.Sprintf("📦 %s\nFile: %s", strings.TrimSpace(taskName), strings.TrimSpace(file)),
		tags:    []string{"vidslide", "export", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "VidSlide - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"vidslide", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

// suppressed records the key and reports whether it was sent recently.
func (n *ntfyService) suppressed(key string) bool {
	if key == "" || n.dedupWindow <= 0 {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	for k, at := range n.sent {
		if now.Sub(at) >= n.dedupWindow {
			delete(n.sent, k)
		}
	}
	if _, ok := n.sent[key]; ok {
		return true
	}
	n.sent[key] = now
	return false
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}
	if n.suppressed(data.dedupKey) {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type noopService struct{}

func (noopService) NotifyBatchStarted(context.Context, string, int) error         { return nil }
func (noopService) NotifyBatchIdle(context.Context, BatchSummary) error           { return nil }
func (noopService) NotifyTaskError(context.Context, string, string, string) error { return nil }
func (noopService) NotifyExportCompleted(context.Context, string, string) error   { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
