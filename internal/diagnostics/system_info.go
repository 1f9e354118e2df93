package diagnostics

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemInfo describes the host for doctor reports.
type SystemInfo struct {
	GoVersion string `json:"go_version"`
	GOOS      string `json:"goos"`
	GOARCH    string `json:"goarch"`

	CPUModel   string `json:"cpu_model,omitempty"`
	CPUCores   int    `json:"cpu_cores,omitempty"`
	CPUThreads int    `json:"cpu_threads,omitempty"`

	MemTotalMB     float64 `json:"mem_total_mb,omitempty"`
	MemAvailableMB float64 `json:"mem_available_mb,omitempty"`
	MemUsedPercent float64 `json:"mem_used_percent,omitempty"`

	// Disk stats for the filesystem holding the state directory.
	StateDiskTotalGB     float64 `json:"state_disk_total_gb,omitempty"`
	StateDiskFreeGB      float64 `json:"state_disk_free_gb,omitempty"`
	StateDiskUsedPercent float64 `json:"state_disk_used_percent,omitempty"`

	LoadAvg1  float64 `json:"load_avg_1,omitempty"`
	LoadAvg5  float64 `json:"load_avg_5,omitempty"`
	LoadAvg15 float64 `json:"load_avg_15,omitempty"`

	GPUs []string `json:"gpus,omitempty"`
}

// CollectSystemInfo gathers best-effort host information. Probes that fail
// leave their fields zero; doctor reports whatever it can see.
func CollectSystemInfo(statePath string) SystemInfo {
	info := SystemInfo{
		GoVersion: runtime.Version(),
		GOOS:      runtime.GOOS,
		GOARCH:    runtime.GOARCH,
	}

	if cpus, err := cpu.Info(); err == nil && len(cpus) > 0 {
		info.CPUModel = strings.TrimSpace(cpus[0].ModelName)
	}
	if cores, err := cpu.Counts(false); err == nil {
		info.CPUCores = cores
	}
	if threads, err := cpu.Counts(true); err == nil {
		info.CPUThreads = threads
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemTotalMB = float64(vm.Total) / 1024 / 1024
		info.MemAvailableMB = float64(vm.Available) / 1024 / 1024
		info.MemUsedPercent = vm.UsedPercent
	}

	if statePath != "" {
		if usage, err := disk.Usage(statePath); err == nil {
			info.StateDiskTotalGB = float64(usage.Total) / 1024 / 1024 / 1024
			info.StateDiskFreeGB = float64(usage.Free) / 1024 / 1024 / 1024
			info.StateDiskUsedPercent = usage.UsedPercent
		}
	}

	if avg, err := load.Avg(); err == nil {
		info.LoadAvg1 = avg.Load1
		info.LoadAvg5 = avg.Load5
		info.LoadAvg15 = avg.Load15
	}

	info.GPUs = detectGPUs()
	return info
}

func detectGPUs() []string {
	gpu, err := ghw.GPU()
	if err != nil || gpu == nil || len(gpu.GraphicsCards) == 0 {
		return nil
	}
	names := make([]string, 0, len(gpu.GraphicsCards))
	for _, card := range gpu.GraphicsCards {
		name := ""
		if card.DeviceInfo != nil {
			switch {
			case card.DeviceInfo.Vendor != nil && card.DeviceInfo.Product != nil:
				name = strings.TrimSpace(card.DeviceInfo.Vendor.Name + " " + card.DeviceInfo.Product.Name)
			case card.DeviceInfo.Product != nil:
				name = strings.TrimSpace(card.DeviceInfo.Product.Name)
			case card.DeviceInfo.Vendor != nil:
				name = strings.TrimSpace(card.DeviceInfo.Vendor.Name)
			}
		}
		if name == "" {
			name = fmt.Sprintf("GPU %d", card.Index)
		}
		names = append(names, name)
	}
	return names
}
