package stats

// SystemStats is a single host telemetry snapshot.
type SystemStats struct {
	CPUUsage    CPUUsage    `json:"cpu_usage"`
	MemoryUsage MemoryUsage `json:"memory_usage"`
	// GPUUsage is nil when no accelerator session exists or the query failed.
	GPUUsage  *GPUUsage `json:"gpu_usage,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// CPUUsage describes per-core processor load.
type CPUUsage struct {
	CoresTotal             int       `json:"cores_total"`
	CoresUsage             []float64 `json:"cores_usage"`
	AverageUsagePercentage float64   `json:"average_usage_percentage"`
	Brand                  string    `json:"brand"`
}

// MemoryUsage describes physical memory occupancy.
type MemoryUsage struct {
	UsedBytes      uint64  `json:"used_bytes"`
	TotalBytes     uint64  `json:"total_bytes"`
	UsedPercentage float64 `json:"used_percentage"`
}

// GPUUsage describes accelerator slot 0.
type GPUUsage struct {
	Name                  string  `json:"name"`
	MemoryUsedBytes       uint64  `json:"memory_used_bytes"`
	MemoryTotalBytes      uint64  `json:"memory_total_bytes"`
	MemoryUsedPercentage  float64 `json:"memory_used_percentage"`
	UtilizationPercentage uint32  `json:"utilization_percentage"`
	TemperatureCelsius    uint32  `json:"temperature_celsius"`
}
