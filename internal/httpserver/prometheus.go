package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skobkin/sysmon-web/internal/stats"
)

const (
	metricsNamespace     = "sysmon"
	scrapeSnapshotBudget = 10 * time.Second
)

func (s *Server) registerPrometheus(mux *http.ServeMux) {
	registry := prometheus.NewRegistry()
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served since start.",
		}, func() float64 {
			return float64(s.requests.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "stats",
			Name:      "errors_total",
			Help:      "Total /stats requests that failed to read host counters.",
		}, func() float64 {
			return float64(s.statsErrors.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "stats",
			Name:      "snapshots_total",
			Help:      "Total snapshots taken, including those triggered by scrapes.",
		}, func() float64 {
			return float64(s.stats.Snapshots())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "gpu",
			Name:      "query_failures_total",
			Help:      "Total snapshots that omitted GPU data because the device query failed.",
		}, func() float64 {
			return float64(s.stats.GPUQueryFailures())
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "gpu",
			Name:      "monitoring_available",
			Help:      "1 when an accelerator session was initialised at startup.",
		}, func() float64 {
			if s.stats.GPUAvailable() {
				return 1
			}
			return 0
		}),
		newSnapshotCollector(s.stats, s.logger),
	}

	for _, collector := range collectors {
		registry.MustRegister(collector)
	}

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

// snapshotCollector takes a fresh snapshot on every scrape.
type snapshotCollector struct {
	source Snapshotter
	logger *slog.Logger

	coreUsage   *prometheus.Desc
	cpuAverage  *prometheus.Desc
	cpuCores    *prometheus.Desc
	memUsed     *prometheus.Desc
	memTotal    *prometheus.Desc
	memPercent  *prometheus.Desc
	gpuUtil     *prometheus.Desc
	gpuTemp     *prometheus.Desc
	gpuMemUsed  *prometheus.Desc
	gpuMemTotal *prometheus.Desc
	sampleTime  *prometheus.Desc
}

func newSnapshotCollector(source Snapshotter, logger *slog.Logger) *snapshotCollector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, subsystem, name),
			help,
			labels,
			nil,
		)
	}

	return &snapshotCollector{
		source:      source,
		logger:      logger,
		coreUsage:   desc("cpu", "core_usage_percent", "Per-core CPU usage percentage.", "core", "brand"),
		cpuAverage:  desc("cpu", "usage_percent", "Mean CPU usage percentage across cores."),
		cpuCores:    desc("cpu", "cores", "Number of logical CPU cores."),
		memUsed:     desc("memory", "used_bytes", "Memory in use in bytes."),
		memTotal:    desc("memory", "total_bytes", "Total physical memory in bytes."),
		memPercent:  desc("memory", "used_percent", "Memory in use as a percentage of total."),
		gpuUtil:     desc("gpu", "utilization_percent", "GPU utilization percentage of device 0.", "name"),
		gpuTemp:     desc("gpu", "temperature_celsius", "GPU temperature of device 0 in Celsius.", "name"),
		gpuMemUsed:  desc("gpu", "memory_used_bytes", "GPU memory in use of device 0 in bytes.", "name"),
		gpuMemTotal: desc("gpu", "memory_total_bytes", "Total GPU memory of device 0 in bytes.", "name"),
		sampleTime:  desc("stats", "sample_timestamp_seconds", "Unix timestamp of the scraped snapshot."),
	}
}

func (c *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.coreUsage, c.cpuAverage, c.cpuCores,
		c.memUsed, c.memTotal, c.memPercent,
		c.gpuUtil, c.gpuTemp, c.gpuMemUsed, c.gpuMemTotal,
		c.sampleTime,
	} {
		ch <- d
	}
}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeSnapshotBudget)
	defer cancel()

	snapshot, err := c.source.Snapshot(ctx)
	if err != nil {
		c.logger.Warn("scrape snapshot failed", "err", err)
		return
	}
	c.emit(ch, snapshot)
}

func (c *snapshotCollector) emit(ch chan<- prometheus.Metric, snapshot stats.SystemStats) {
	gauge := func(desc *prometheus.Desc, value float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, value, labels...)
	}

	cpu := snapshot.CPUUsage
	for i, usage := range cpu.CoresUsage {
		gauge(c.coreUsage, usage, strconv.Itoa(i), cpu.Brand)
	}
	gauge(c.cpuAverage, cpu.AverageUsagePercentage)
	gauge(c.cpuCores, float64(cpu.CoresTotal))

	mem := snapshot.MemoryUsage
	gauge(c.memUsed, float64(mem.UsedBytes))
	gauge(c.memTotal, float64(mem.TotalBytes))
	gauge(c.memPercent, mem.UsedPercentage)

	if gpu := snapshot.GPUUsage; gpu != nil {
		gauge(c.gpuUtil, float64(gpu.UtilizationPercentage), gpu.Name)
		gauge(c.gpuTemp, float64(gpu.TemperatureCelsius), gpu.Name)
		gauge(c.gpuMemUsed, float64(gpu.MemoryUsedBytes), gpu.Name)
		gauge(c.gpuMemTotal, float64(gpu.MemoryTotalBytes), gpu.Name)
	}

	gauge(c.sampleTime, float64(snapshot.Timestamp))
}
