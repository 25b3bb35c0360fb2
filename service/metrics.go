package service

import (
	"github.com/apposed/appose-go/shm"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exposes live Appose process state as Prometheus gauges:
// task counts by status and process-wide shared-memory usage. It is
// grounded on the teacher's promCollector (go/bindings/metrics.go), which
// exposes a native allocator's jemalloc stats the same way.
type MetricsCollector struct {
	service *Service

	tasksDesc      *prometheus.Desc
	shmRegionsDesc *prometheus.Desc
	shmBytesDesc   *prometheus.Desc
}

// NewMetricsCollector returns a prometheus.Collector reporting svc's live
// state. Register it with a prometheus.Registry to export it.
func NewMetricsCollector(svc *Service) *MetricsCollector {
	return &MetricsCollector{
		service: svc,
		tasksDesc: prometheus.NewDesc(
			"appose_tasks", "Number of tasks currently tracked by status.",
			[]string{"status"}, nil,
		),
		shmRegionsDesc: prometheus.NewDesc(
			"appose_shm_regions", "Number of currently active shared-memory regions, process-wide.",
			nil, nil,
		),
		shmBytesDesc: prometheus.NewDesc(
			"appose_shm_bytes", "Bytes currently allocated to shared-memory regions, process-wide.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tasksDesc
	ch <- c.shmRegionsDesc
	ch <- c.shmBytesDesc
}

// Collect implements prometheus.Collector.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	counts := c.service.taskCountsByStatus()
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(c.tasksDesc, prometheus.GaugeValue, float64(n), status)
	}

	regions, bytes := shm.Stats()
	ch <- prometheus.MustNewConstMetric(c.shmRegionsDesc, prometheus.GaugeValue, float64(regions))
	ch <- prometheus.MustNewConstMetric(c.shmBytesDesc, prometheus.GaugeValue, float64(bytes))
}
