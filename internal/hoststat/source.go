package hoststat

import (
	"context"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Source exposes the raw OS counters a Reader is built on.
type Source interface {
	CPUTimes(ctx context.Context) ([]cpu.TimesStat, error)
	CPUInfo(ctx context.Context) ([]cpu.InfoStat, error)
	VirtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

var _ Source = SystemSource{}

// SystemSource reads counters of the running host through gopsutil.
type SystemSource struct{}

// CPUTimes returns cumulative per-core CPU times.
func (SystemSource) CPUTimes(ctx context.Context) ([]cpu.TimesStat, error) {
	return cpu.TimesWithContext(ctx, true)
}

// CPUInfo returns static per-core processor descriptions.
func (SystemSource) CPUInfo(ctx context.Context) ([]cpu.InfoStat, error) {
	return cpu.InfoWithContext(ctx)
}

// VirtualMemory returns current physical memory counters.
func (SystemSource) VirtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	return mem.VirtualMemoryWithContext(ctx)
}
