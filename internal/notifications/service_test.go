package notifications

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"vidslide/internal/config"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		captured []capturedRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		mu.Lock()
		captured = append(captured, capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	t.Cleanup(server.Close)
	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), captured...)
	}
}

func testConfig(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	cfg.Notifications.RequestTimeout = 5
	cfg.Notifications.Batch = true
	cfg.Notifications.Errors = true
	cfg.Notifications.DedupWindowSeconds = 600
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	svc := NewService(testConfig(""))
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", svc)
	}
	if err := svc.NotifyTaskError(context.Background(), "b", "Lecture", "boom"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if _, ok := NewService(nil).(noopService); !ok {
		t.Fatal("expected noop service for nil config")
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "batch started",
			send: func(s Service) error {
				return s.NotifyBatchStarted(context.Background(), "0123456789abcdef", 3)
			},
			expectTitle:   "VidSlide - Batch Started",
			expectMessage: "Started batch 01234567 with 3 queued videos",
			expectTags:    "vidslide,batch,started",
		},
		{
			name: "batch idle clean",
			send: func(s Service) error {
				return s.NotifyBatchIdle(context.Background(), BatchSummary{BatchID: "b1", Completed: 2, TotalImages: 40, Duration: 90 * time.Second})
			},
			expectTitle:   "VidSlide - Batch Complete",
			expectMessage: "Batch b1 finished: 2 videos, 40 slides in 1m30s",
			expectTags:    "vidslide,batch,completed",
		},
		{
			name: "batch idle with failures",
			send: func(s Service) error {
				return s.NotifyBatchIdle(context.Background(), BatchSummary{BatchID: "b1", Completed: 1, Failed: 1, Skipped: 1, TotalImages: 12, Duration: time.Second})
			},
			expectTitle:   "VidSlide - Batch Complete (with errors)",
			expectMessage: "Batch b1 finished: 1 succeeded, 1 failed, 1 skipped, 12 slides in 1s",
			expectTags:    "vidslide,batch,completed",
		},
		{
			name: "task error",
			send: func(s Service) error {
				return s.NotifyTaskError(context.Background(), "b1", "Lecture 3", "video unreadable")
			},
			expectTitle:    "VidSlide - Extraction Failed",
			expectMessage:  "❌ Lecture 3: video unreadable",
			expectTags:     "vidslide,error,alert",
			expectPriority: "high",
		},
		{
			name: "export completed",
			send: func(s Service) error {
				return s.NotifyExportCompleted(context.Background(), "Lecture 3", "/out/Lecture 3.pdf")
			},
			expectTitle:   "VidSlide - Export Ready",
			expectMessage: "📦 Lecture 3\nFile: /out/Lecture 3.pdf",
			expectTags:    "vidslide,export,completed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, captured := newCaptureServer(t, http.StatusOK)
			svc := NewService(testConfig(server.URL))
			if err := tc.send(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			got := captured()
			if len(got) != 1 {
				t.Fatalf("expected one request, got %d", len(got))
			}
			if got[0].title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got[0].title)
			}
			if got[0].body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got[0].body)
			}
			if got[0].tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got[0].tags)
			}
			if got[0].priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got[0].priority)
			}
		})
	}
}

func TestNtfyServiceHonoursToggles(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK)
	cfg := testConfig(server.URL)
	cfg.Notifications.Batch = false
	cfg.Notifications.Errors = false
	svc := NewService(cfg)

	ctx := context.Background()
	_ = svc.NotifyBatchStarted(ctx, "b", 1)
	_ = svc.NotifyBatchIdle(ctx, BatchSummary{BatchID: "b"})
	_ = svc.NotifyTaskError(ctx, "b", "x", "y")
	_ = svc.NotifyExportCompleted(ctx, "x", "y")
	if n := len(captured()); n != 0 {
		t.Fatalf("expected disabled notifications to be skipped, got %d requests", n)
	}
	if err := svc.TestNotification(ctx); err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if n := len(captured()); n != 1 {
		t.Fatalf("expected test notification to bypass toggles, got %d", n)
	}
}

func TestNtfyServiceDeduplicatesTaskErrors(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK)
	svc := NewService(testConfig(server.URL)).(*ntfyService)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	ctx := context.Background()
	for range 3 {
		if err := svc.NotifyTaskError(ctx, "b", "Lecture", "decode interrupted"); err != nil {
			t.Fatalf("NotifyTaskError: %v", err)
		}
	}
	if n := len(captured()); n != 1 {
		t.Fatalf("expected duplicates inside window to be dropped, got %d", n)
	}

	_ = svc.NotifyTaskError(ctx, "b", "Other", "decode interrupted")
	if n := len(captured()); n != 2 {
		t.Fatalf("expected distinct task to notify, got %d", n)
	}

	clock = clock.Add(11 * time.Minute)
	_ = svc.NotifyTaskError(ctx, "b", "Lecture", "decode interrupted")
	if n := len(captured()); n != 3 {
		t.Fatalf("expected repeat after window to notify, got %d", n)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusBadGateway)
	svc := NewService(testConfig(server.URL))
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
	if errors.Is(err, context.Canceled) {
		t.Fatal("unexpected cancellation error")
	}
}
