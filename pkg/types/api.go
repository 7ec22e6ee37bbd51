package types

import "time"

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: request body must be valid JSON
	Error string `json:"error" example:"request body must be valid JSON"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// HealthSnapshot is returned by the status endpoint. It is a point-in-time
// value; nothing in it is updated after construction.
type HealthSnapshot struct {
	// "healthy" only when llama-server answers its health check and has reached the ready state.
	// example: healthy
	Status string `json:"status" example:"healthy"`
	// Time the snapshot was taken.
	Timestamp time.Time `json:"timestamp"`
	// Seconds since the gateway started.
	// example: 3600.25
	UptimeSeconds float64      `json:"uptime_seconds" example:"3600.25"`
	Server        ServerStatus `json:"server"`
	System        SystemStatus `json:"system"`
	// GPU memory usage; null when no GPU could be queried.
	GPU        *GPUStats  `json:"gpu"`
	Statistics Statistics `json:"statistics"`
}

// ServerStatus describes the supervised llama-server.
type ServerStatus struct {
	// Whether the health check answered 200 for this snapshot.
	// example: true
	LlamaCppReady bool `json:"llama_cpp_ready" example:"true"`
	// Whether startup completed and the child is still running.
	// example: true
	ModelLoaded bool `json:"model_loaded" example:"true"`
	// Process ID of the child; null before spawn.
	// example: 4242
	PID *int `json:"pid" example:"4242"`
}

// SystemStatus holds host resource usage.
type SystemStatus struct {
	// example: 12.5
	CPUUsagePercent float64     `json:"cpu_usage_percent" example:"12.5"`
	Memory          MemoryStats `json:"memory"`
}

// MemoryStats is host memory in MiB.
type MemoryStats struct {
	// example: 64216.5
	TotalMB float64 `json:"total_mb" example:"64216.5"`
	// example: 20480.12
	UsedMB float64 `json:"used_mb" example:"20480.12"`
	// example: 31.9
	UsagePercent float64 `json:"usage_percent" example:"31.9"`
}

// GPUStats is GPU memory summed across devices, in MiB.
type GPUStats struct {
	// example: 18000
	UsedMB float64 `json:"used_mb" example:"18000"`
	// example: 24576
	TotalMB float64 `json:"total_mb" example:"24576"`
	// example: 73.24
	UsagePercent float64 `json:"usage_percent" example:"73.24"`
}

// Statistics summarizes forwarded request outcomes.
type Statistics struct {
	// example: 120
	RequestsProcessed uint64 `json:"requests_processed" example:"120"`
	// example: 3
	Errors uint64 `json:"errors" example:"3"`
	// Time of the most recent forwarded request; null if none yet.
	LastRequest *time.Time `json:"last_request"`
	// processed / max(processed+errors, 1) * 100, rounded to two decimals.
	// example: 97.56
	SuccessRate float64 `json:"success_rate" example:"97.56"`
}

// Snapshot status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)
