package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, m *Metrics) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func counterValue(f *dto.MetricFamily, labels map[string]string) float64 {
	for _, metric := range f.GetMetric() {
		match := true
		for _, pair := range metric.GetLabel() {
			if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
				match = false
			}
		}
		if match {
			return metric.GetCounter().GetValue()
		}
	}
	return -1
}

func TestWorkerLifecycleMetrics(t *testing.T) {
	m := New()
	m.WorkerStarted()
	m.WorkerStarted()
	m.WorkerStopped("done", 30*time.Second, 12)
	m.TaskSkipped(true)
	m.TaskRetried()
	m.BatchStarted()
	m.SubscriberDropped()
	m.PackageBuilt("zip", nil)
	m.PackageBuilt("pdf", errors.New("boom"))

	families := gather(t, m)
	if got := families["vidslide_active_workers"].GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Fatalf("expected 1 active worker, got %v", got)
	}
	if got := counterValue(families["vidslide_slides_saved_total"], nil); got != 12 {
		t.Fatalf("expected 12 slides, got %v", got)
	}
	if got := counterValue(families["vidslide_tasks_finished_total"], map[string]string{"status": "done"}); got != 1 {
		t.Fatalf("expected 1 done task, got %v", got)
	}
	if got := counterValue(families["vidslide_tasks_finished_total"], map[string]string{"status": "skipped"}); got != 1 {
		t.Fatalf("expected 1 skipped task, got %v", got)
	}
	if got := counterValue(families["vidslide_disk_space_warnings_total"], nil); got != 1 {
		t.Fatalf("expected 1 disk warning, got %v", got)
	}
	if got := counterValue(families["vidslide_packages_total"], map[string]string{"format": "pdf", "result": "error"}); got != 1 {
		t.Fatalf("expected 1 failed pdf package, got %v", got)
	}
	if families["vidslide_task_run_duration_seconds"] == nil {
		t.Fatal("expected run duration histogram")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.WorkerStarted()
	m.WorkerStopped("error", time.Second, 0)
	m.TaskSkipped(false)
	m.TaskRetried()
	m.BatchStarted()
	m.SubscriberDropped()
	m.PackageBuilt("zip", nil)
	if m.Registry() != nil {
		t.Fatal("expected nil registry")
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404 from nil metrics handler, got %d", rec.Code)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.BatchStarted()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "vidslide_batches_started_total 1") {
		t.Fatalf("expected counter in exposition, got:\n%s", body)
	}
}
