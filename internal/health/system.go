package health

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"llamagate/pkg/types"
)

// SystemSampler reports host CPU and memory usage.
type SystemSampler interface {
	CPUPercent(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (types.MemoryStats, error)
}

// HostSampler samples the local host via gopsutil.
type HostSampler struct {
	// CPUInterval is the measurement window for CPU usage. Zero selects 1s.
	CPUInterval time.Duration
}

// CPUPercent blocks for CPUInterval and returns the aggregate CPU usage.
func (h HostSampler) CPUPercent(ctx context.Context) (float64, error) {
	interval := h.CPUInterval
	if interval <= 0 {
		interval = time.Second
	}
	pcts, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return 0, fmt.Errorf("cpu percent: %w", err)
	}
	if len(pcts) == 0 {
		return 0, fmt.Errorf("cpu percent: no samples")
	}
	return round2(pcts[0]), nil
}

// Memory returns virtual memory totals in MiB.
func (h HostSampler) Memory(ctx context.Context) (types.MemoryStats, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return types.MemoryStats{}, fmt.Errorf("virtual memory: %w", err)
	}
	return types.MemoryStats{
		TotalMB:      round2(float64(vm.Total) / mib),
		UsedMB:       round2(float64(vm.Used) / mib),
		UsagePercent: round2(vm.UsedPercent),
	}, nil
}

const mib = 1024 * 1024
