package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	tasksFinished  *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	activeWorkers  prometheus.Gauge
	slidesSaved    prometheus.Counter
	retries        prometheus.Counter
	batchesStarted prometheus.Counter
	eventsDropped  prometheus.Counter
	diskWarnings   prometheus.Counter
	packages       *prometheus.CounterVec
}

// New registers every collector plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		tasksFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vidslide_tasks_finished_total",
			Help: "Extraction runs that stopped, by final status",
		}, []string{"status"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vidslide_task_run_duration_seconds",
			Help:    "Wall time of one extraction run",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 2400, 3600},
		}, []string{"status"}),
		activeWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vidslide_active_workers",
			Help: "Workers currently running an extraction",
		}),
		slidesSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "vidslide_slides_saved_total",
			Help: "Slide images written across all tasks",
		}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "vidslide_task_retries_total",
			Help: "Tasks re-queued through retry",
		}),
		batchesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "vidslide_batches_started_total",
			Help: "Batches switched to processing",
		}),
		eventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "vidslide_event_subscribers_dropped_total",
			Help: "Event subscribers disconnected for falling behind",
		}),
		diskWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "vidslide_disk_space_warnings_total",
			Help: "Tasks skipped because free disk space was low",
		}),
		packages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vidslide_packages_total",
			Help: "Export packages produced, by format and result",
		}, []string{"format", "result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WorkerStarted increments the active worker gauge.
func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.activeWorkers.Inc()
}

// WorkerStopped records a finished run.
func (m *Metrics) WorkerStopped(status string, elapsed time.Duration, saved int) {
	if m == nil {
		return
	}
	m.activeWorkers.Dec()
	m.tasksFinished.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(elapsed.Seconds())
	if saved > 0 {
		m.slidesSaved.Add(float64(saved))
	}
}

// TaskSkipped records a task stopped before running.
func (m *Metrics) TaskSkipped(lowDisk bool) {
	if m == nil {
		return
	}
	m.tasksFinished.WithLabelValues("skipped").Inc()
	if lowDisk {
		m.diskWarnings.Inc()
	}
}

// TaskRetried counts a retry.
func (m *Metrics) TaskRetried() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// BatchStarted counts a batch start.
func (m *Metrics) BatchStarted() {
	if m == nil {
		return
	}
	m.batchesStarted.Inc()
}

// SubscriberDropped counts a slow subscriber disconnect.
func (m *Metrics) SubscriberDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

// PackageBuilt counts an export attempt.
func (m *Metrics) PackageBuilt(format string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.packages.WithLabelValues(format, result).Inc()
}
