// Package hoststat keeps a refreshable view of host CPU and memory counters.
package hoststat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
)

// UnknownBrand is reported when no processor description is available.
const UnknownBrand = "Unknown"

// Reader caches the most recent host counters. Per-core CPU usage is derived
// from the delta between the two latest CPU time samples, so a meaningful
// value needs two refreshes some time apart.
//
// Reader is not safe for concurrent use; callers serialise access.
type Reader struct {
	src    Source
	logger *slog.Logger

	prevTimes []cpu.TimesStat
	usage     []float64

	brands     []string
	infoLoaded bool

	memTotal uint64
	memUsed  uint64
}

// NewReader constructs a Reader over the provided source. A nil source reads
// the running host.
func NewReader(src Source, logger *slog.Logger) *Reader {
	if src == nil {
		src = SystemSource{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reader{
		src:    src,
		logger: logger,
	}
}

// Refresh updates every tracked counter from the OS.
func (r *Reader) Refresh(ctx context.Context) error {
	var errs []error
	if err := r.RefreshCPU(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := r.refreshMemory(ctx); err != nil {
		errs = append(errs, err)
	}
	if !r.infoLoaded {
		r.loadInfo(ctx)
	}
	return errors.Join(errs...)
}

// RefreshCPU updates per-core CPU usage only.
func (r *Reader) RefreshCPU(ctx context.Context) error {
	times, err := r.src.CPUTimes(ctx)
	if err != nil {
		return fmt.Errorf("read cpu times: %w", err)
	}

	usage := make([]float64, len(times))
	for i, current := range times {
		if i < len(r.prevTimes) && r.prevTimes[i].CPU == current.CPU {
			usage[i] = coreUsage(r.prevTimes[i], current)
		}
	}

	r.prevTimes = times
	r.usage = usage
	return nil
}

func (r *Reader) refreshMemory(ctx context.Context) error {
	vm, err := r.src.VirtualMemory(ctx)
	if err != nil {
		return fmt.Errorf("read memory: %w", err)
	}
	if vm == nil {
		return errors.New("read memory: empty result")
	}

	r.memTotal = vm.Total
	switch {
	case vm.Available > 0 && vm.Available <= vm.Total:
		r.memUsed = vm.Total - vm.Available
	default:
		r.memUsed = vm.Used
	}
	return nil
}

// loadInfo runs once per Reader; a failed read leaves the brand unknown.
func (r *Reader) loadInfo(ctx context.Context) {
	r.infoLoaded = true

	infos, err := r.src.CPUInfo(ctx)
	if err != nil {
		r.logger.Warn("failed to read cpu info, brand will be reported as unknown", "err", err)
		return
	}
	brands := make([]string, 0, len(infos))
	for _, info := range infos {
		brands = append(brands, strings.TrimSpace(info.ModelName))
	}
	r.brands = brands
}

// CoresUsage returns per-core usage percentages in core enumeration order.
func (r *Reader) CoresUsage() []float64 {
	out := make([]float64, len(r.usage))
	copy(out, r.usage)
	return out
}

// Brand returns the first core's processor brand.
func (r *Reader) Brand() string {
	if len(r.usage) == 0 || len(r.brands) == 0 || r.brands[0] == "" {
		return UnknownBrand
	}
	return r.brands[0]
}

// TotalMemory returns physical memory size in bytes.
func (r *Reader) TotalMemory() uint64 {
	return r.memTotal
}

// UsedMemory returns memory in use by applications, in bytes.
func (r *Reader) UsedMemory() uint64 {
	return r.memUsed
}

func coreUsage(prev, current cpu.TimesStat) float64 {
	prevBusy, prevTotal := busyAndTotal(prev)
	curBusy, curTotal := busyAndTotal(current)

	totalDiff := curTotal - prevTotal
	if totalDiff <= 0 {
		return 0
	}

	usage := (curBusy - prevBusy) / totalDiff * 100
	switch {
	case usage < 0:
		return 0
	case usage > 100:
		return 100
	}
	return usage
}

// Guest time is already accounted in user time on Linux.
func busyAndTotal(t cpu.TimesStat) (busy, total float64) {
	total = t.User + t.System + t.Idle + t.Nice + t.Iowait + t.Irq + t.Softirq + t.Steal
	busy = total - t.Idle - t.Iowait
	return busy, total
}
