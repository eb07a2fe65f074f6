package types

import "errors"

// ErrNotFound reports that a process, device, or name query matched nothing.
var ErrNotFound = errors.New("no matching entry")

// DefaultTopProcesses controls how many rows top-process queries return.
const DefaultTopProcesses = 4

// CPUCoreInfo describes one logical CPU over a sampling window. Frequency
// and temperature are nil when the kernel does not expose them for the core.
type CPUCoreInfo struct {
	ID           int      `json:"id"`
	UsagePercent float64  `json:"usage_percent"`
	FreqMHz      *float64 `json:"freq_mhz,omitempty"`
	MinFreqMHz   *float64 `json:"min_freq_mhz,omitempty"`
	MaxFreqMHz   *float64 `json:"max_freq_mhz,omitempty"`
	TempC        *float64 `json:"temp_c,omitempty"`
}

// CPUInfo aggregates whole-machine CPU state for one sampling window.
type CPUInfo struct {
	ModelName     string        `json:"model_name"`
	PhysicalCores int           `json:"physical_cores"`
	LogicalCPUs   int           `json:"logical_cpus"`
	UsagePercent  float64       `json:"usage_percent"`
	AvgFreqMHz    float64       `json:"avg_freq_mhz"`
	AvgTempC      float64       `json:"avg_temp_c"`
	Cores         []CPUCoreInfo `json:"cores"`
}

// CPUProcessInfo holds per-process scheduler state and windowed CPU usage.
// UsagePercent can exceed 100 for multithreaded processes.
type CPUProcessInfo struct {
	PID          int     `json:"pid"`
	Name         string  `json:"name"`
	UsagePercent float64 `json:"usage_percent"`
	CPUTimeMs    float64 `json:"cpu_time_ms"`
	Threads      int     `json:"threads"`
	State        string  `json:"state"`
	Nice         int     `json:"nice"`
	Affinity     uint32  `json:"affinity_mask"`
}

// RAMInfo mirrors the meminfo gauges, in mebibytes.
type RAMInfo struct {
	TotalMB      float64 `json:"total_mb"`
	UsedMB       float64 `json:"used_mb"`
	FreeMB       float64 `json:"free_mb"`
	AvailableMB  float64 `json:"available_mb"`
	SharedMB     float64 `json:"shared_mb"`
	CacheMB      float64 `json:"cache_mb"`
	SwapTotalMB  float64 `json:"swap_total_mb"`
	SwapUsedMB   float64 `json:"swap_used_mb"`
	UsagePercent float64 `json:"usage_percent"`
}

// RAMProcessInfo describes one process's memory footprint.
type RAMProcessInfo struct {
	PID          int     `json:"pid"`
	Name         string  `json:"name"`
	ResidentMB   float64 `json:"resident_mb"`
	VirtualMB    float64 `json:"virtual_mb"`
	SharedMB     float64 `json:"shared_mb"`
	UsagePercent float64 `json:"usage_percent"`
}

// StorageInfo describes one mounted volume.
type StorageInfo struct {
	Device         string  `json:"device"`
	MountPoint     string  `json:"mount_point"`
	FSType         string  `json:"fs_type"`
	TotalBytes     uint64  `json:"total_bytes"`
	UsedBytes      uint64  `json:"used_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
}

// StorageProcessInfo holds windowed I/O rates for one process. MainDevice
// is the block device backing the executable's mount point.
type StorageProcessInfo struct {
	PID              int     `json:"pid"`
	Name             string  `json:"name"`
	ReadBytesPerSec  float64 `json:"read_bytes_per_sec"`
	WriteBytesPerSec float64 `json:"write_bytes_per_sec"`
	OpenFiles        int     `json:"open_files"`
	MainDevice       string  `json:"main_device"`
}

// NetworkInterfaceInfo combines interface attributes with windowed byte
// rates. SpeedMbps is nil when the link does not report a speed.
type NetworkInterfaceInfo struct {
	Name                string  `json:"name"`
	IPAddress           string  `json:"ip_address"`
	MACAddress          string  `json:"mac_address"`
	Up                  bool    `json:"up"`
	MTU                 int     `json:"mtu"`
	SpeedMbps           *int64  `json:"speed_mbps,omitempty"`
	RecvBytesPerSec     float64 `json:"recv_bytes_per_sec"`
	TransmitBytesPerSec float64 `json:"transmit_bytes_per_sec"`
	TotalRecvBytes      uint64  `json:"total_recv_bytes"`
	TotalTransmitBytes  uint64  `json:"total_transmit_bytes"`
}

// NetworkProcessInfo describes one process's network activity. The byte
// rates are whole-machine sums; per-socket accounting is not available
// from procfs. Ports lists listening and connected local TCP ports owned
// by the process.
type NetworkProcessInfo struct {
	PID                 int      `json:"pid"`
	Name                string   `json:"name"`
	RecvBytesPerSec     float64  `json:"recv_bytes_per_sec"`
	TransmitBytesPerSec float64  `json:"transmit_bytes_per_sec"`
	Connections         int      `json:"connections"`
	Ports               []uint16 `json:"ports"`
}

// GPUInfo describes one GPU device and the processes running on it.
type GPUInfo struct {
	Index         int              `json:"index"`
	Vendor        string           `json:"vendor"`
	Name          string           `json:"name"`
	TotalMemoryMB float64          `json:"total_memory_mb"`
	UsedMemoryMB  float64          `json:"used_memory_mb"`
	UsagePercent  float64          `json:"usage_percent"`
	TempC         *float64         `json:"temp_c,omitempty"`
	Processes     []GPUProcessInfo `json:"processes"`
}

// GPUProcessInfo describes one process's footprint on a GPU.
type GPUProcessInfo struct {
	PID          int     `json:"pid"`
	Name         string  `json:"name"`
	GPUIndex     int     `json:"gpu_index"`
	MemoryMB     float64 `json:"memory_mb"`
	UsagePercent float64 `json:"usage_percent"`
}
