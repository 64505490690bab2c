// Package stats assembles host telemetry snapshots.
package stats

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skobkin/sysmon-web/internal/accel"
)

// SettleDelay separates the two CPU samples of a snapshot so per-core usage
// is computed over a meaningful interval.
const SettleDelay = 100 * time.Millisecond

// HostReader is the refreshable host counter view a Collector samples.
type HostReader interface {
	Refresh(ctx context.Context) error
	RefreshCPU(ctx context.Context) error
	CoresUsage() []float64
	Brand() string
	TotalMemory() uint64
	UsedMemory() uint64
}

// Collector owns the shared host reader and accelerator state. Snapshots are
// serialised: at most one runs at a time, including its settling delay.
type Collector struct {
	mu     sync.Mutex
	host   HostReader
	gpu    accel.State
	logger *slog.Logger

	settle time.Duration
	sleep  func(time.Duration)
	now    func() time.Time

	snapshots   atomic.Uint64
	gpuFailures atomic.Uint64
}

// NewCollector builds a Collector. The accelerator state is fixed for the
// lifetime of the Collector.
func NewCollector(host HostReader, gpu accel.State, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Collector{
		host:   host,
		gpu:    gpu,
		logger: logger,
		settle: SettleDelay,
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// GPUAvailable reports whether an accelerator session was initialised.
func (c *Collector) GPUAvailable() bool {
	_, ok := c.gpu.Session()
	return ok
}

// Snapshots returns the number of snapshots taken, successful or not.
func (c *Collector) Snapshots() uint64 {
	return c.snapshots.Load()
}

// GPUQueryFailures returns how many snapshots dropped GPU data on error.
func (c *Collector) GPUQueryFailures() uint64 {
	return c.gpuFailures.Load()
}

// Snapshot refreshes host counters, waits for the settling delay, samples CPU
// again and reads the accelerator if one is present. The settling delay is
// not shortened by ctx cancellation. An error means host counters could not
// be read at all.
func (c *Collector) Snapshot(ctx context.Context) (SystemStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshots.Add(1)

	if err := c.host.Refresh(ctx); err != nil {
		return SystemStats{}, fmt.Errorf("refresh host counters: %w", err)
	}

	c.sleep(c.settle)

	if err := c.host.RefreshCPU(ctx); err != nil {
		return SystemStats{}, fmt.Errorf("refresh cpu counters: %w", err)
	}

	cores := c.host.CoresUsage()
	cpuUsage := CPUUsage{
		CoresTotal:             len(cores),
		CoresUsage:             cores,
		AverageUsagePercentage: mean(cores),
		Brand:                  c.host.Brand(),
	}

	used := c.host.UsedMemory()
	total := c.host.TotalMemory()
	memoryUsage := MemoryUsage{
		UsedBytes:      used,
		TotalBytes:     total,
		UsedPercentage: percent(used, total),
	}

	result := SystemStats{
		CPUUsage:    cpuUsage,
		MemoryUsage: memoryUsage,
	}

	if session, ok := c.gpu.Session(); ok {
		usage, err := accel.Query(session)
		if err != nil {
			c.gpuFailures.Add(1)
			c.logger.Warn("failed to get GPU stats", "backend", session.Backend(), "err", err)
		} else {
			result.GPUUsage = gpuUsageFrom(usage)
		}
	}

	result.Timestamp = c.now().Unix()
	return result, nil
}

func gpuUsageFrom(usage accel.Usage) *GPUUsage {
	return &GPUUsage{
		Name:                  usage.Name,
		MemoryUsedBytes:       usage.Memory.Used,
		MemoryTotalBytes:      usage.Memory.Total,
		MemoryUsedPercentage:  percent(usage.Memory.Used, usage.Memory.Total),
		UtilizationPercentage: usage.UtilizationPercent,
		TemperatureCelsius:    usage.TemperatureC,
	}
}

// mean returns 0 for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percent returns 0 when total is zero.
func percent(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) / float64(total) * 100
}
