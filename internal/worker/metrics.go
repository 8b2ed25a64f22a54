package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	tasksTotal           *prometheus.CounterVec
	taskDuration         *prometheus.HistogramVec
	activeTasks          prometheus.Gauge
	outputBytesTotal     prometheus.Counter
	pixelsProcessedTotal prometheus.Counter
	bytesSavedTotal      prometheus.Counter
	computeTimeMSTotal   prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receiptflow_worker_tasks_total",
			Help: "Total normalize tasks by source type and final status.",
		}, []string{"source_type", "status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "receiptflow_worker_task_duration_seconds",
			Help:    "Total processing duration for each normalize task.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_type", "status"}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "receiptflow_worker_active_tasks",
			Help: "Current number of receipts being normalized.",
		}),
		outputBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "receiptflow_worker_output_bytes_total",
			Help: "Total bytes of normalized images emitted by the worker.",
		}),
		pixelsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "receiptflow_usage_pixels_processed_total",
			Help: "Total output pixels across all successful normalizations.",
		}),
		bytesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "receiptflow_usage_bytes_saved_total",
			Help: "Total bytes saved across all successful normalizations.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "receiptflow_usage_compute_time_ms_total",
			Help: "Total compute time in milliseconds across successful normalizations.",
		}),
	}

	registry.MustRegister(
		m.tasksTotal,
		m.taskDuration,
		m.activeTasks,
		m.outputBytesTotal,
		m.pixelsProcessedTotal,
		m.bytesSavedTotal,
		m.computeTimeMSTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
