//go:build linux
// +build linux

package gpu

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/prometheus/procfs"

	"github.com/sysglance/sysglance/pkg/proctab"
	"github.com/sysglance/sysglance/pkg/sampling"
	"github.com/sysglance/sysglance/pkg/types"
)

const nvidiaDriverMarker = "driver/nvidia/version"

// probeNVIDIA requires the kernel driver marker in procfs and a
// successful NVML initialization. The library is released again when a
// later step fails.
func probeNVIDIA(opts Options) (Backend, error) {
	procMount := opts.ProcMount
	if procMount == "" {
		procMount = procfs.DefaultMountPoint
	}
	if _, err := os.Stat(filepath.Join(procMount, nvidiaDriverMarker)); err != nil {
		return nil, fmt.Errorf("nvidia driver not loaded: %w", err)
	}
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, fmt.Errorf("nvml init: %s", nvml.ErrorString(ret))
	}
	fs, err := procfs.NewFS(procMount)
	if err != nil {
		nvml.Shutdown()
		return nil, fmt.Errorf("opening procfs: %w", err)
	}
	return &nvidiaBackend{fs: fs, window: opts.Window}, nil
}

type nvidiaBackend struct {
	fs     procfs.FS
	window time.Duration
}

func (b *nvidiaBackend) Vendor() string { return VendorNVIDIA }

func (b *nvidiaBackend) Devices(ctx context.Context) ([]types.GPUInfo, error) {
	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("nvml device count: %s", nvml.ErrorString(ret))
	}
	infos := make([]types.GPUInfo, 0, count)
	for i := 0; i < count; i++ {
		info, err := b.deviceInfo(ctx, i)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (b *nvidiaBackend) DeviceByIndex(ctx context.Context, index int) (types.GPUInfo, error) {
	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return types.GPUInfo{}, fmt.Errorf("nvml device count: %s", nvml.ErrorString(ret))
	}
	if index < 0 || index >= count {
		return types.GPUInfo{}, fmt.Errorf("gpu %d: %w", index, types.ErrNotFound)
	}
	return b.deviceInfo(ctx, index)
}

// deviceInfo reads one device. A sensor that fails leaves its field
// zeroed; only a missing device handle fails the whole read.
func (b *nvidiaBackend) deviceInfo(ctx context.Context, index int) (types.GPUInfo, error) {
	dev, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return types.GPUInfo{}, fmt.Errorf("nvml device %d: %s", index, nvml.ErrorString(ret))
	}
	info := types.GPUInfo{Index: index, Vendor: VendorNVIDIA}
	if name, ret := dev.GetName(); ret == nvml.SUCCESS {
		info.Name = name
	}
	if mem, ret := dev.GetMemoryInfo(); ret == nvml.SUCCESS {
		info.TotalMemoryMB = bytesToMB(mem.Total)
		info.UsedMemoryMB = bytesToMB(mem.Used)
	}
	if util, ret := dev.GetUtilizationRates(); ret == nvml.SUCCESS {
		info.UsagePercent = float64(util.Gpu)
	}
	if temp, ret := dev.GetTemperature(nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
		tc := float64(temp)
		info.TempC = &tc
	}
	if procs, err := b.deviceProcesses(ctx, dev, index); err == nil {
		info.Processes = procs
	}
	return info, nil
}

// deviceProcesses merges the compute and graphics process lists; a
// process using both engines appears once.
func (b *nvidiaBackend) deviceProcesses(ctx context.Context, dev nvml.Device, index int) ([]types.GPUProcessInfo, error) {
	compute, ret := dev.GetComputeRunningProcesses()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("nvml compute processes: %s", nvml.ErrorString(ret))
	}
	graphics, ret := dev.GetGraphicsRunningProcesses()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("nvml graphics processes: %s", nvml.ErrorString(ret))
	}
	util := b.processUtilization(ctx, dev)
	convert := func(list []nvml.ProcessInfo) []types.GPUProcessInfo {
		out := make([]types.GPUProcessInfo, 0, len(list))
		for _, p := range list {
			out = append(out, types.GPUProcessInfo{
				PID:          int(p.Pid),
				Name:         proctab.NameForPID(b.fs, int(p.Pid)),
				GPUIndex:     index,
				MemoryMB:     bytesToMB(p.UsedGpuMemory),
				UsagePercent: util[p.Pid],
			})
		}
		return out
	}
	return mergeProcessLists(convert(compute), convert(graphics)), nil
}

// processUtilization samples SM utilization across the window. The
// first call finds the newest timestamp NVML has recorded; the second
// returns only samples accumulated after it.
func (b *nvidiaBackend) processUtilization(ctx context.Context, dev nvml.Device) map[uint32]float64 {
	samples, ret := dev.GetProcessUtilization(0)
	if ret != nvml.SUCCESS {
		return nil
	}
	var last uint64
	for _, s := range samples {
		if s.TimeStamp > last {
			last = s.TimeStamp
		}
	}
	if err := sampling.Sleep(ctx, b.window); err != nil {
		return nil
	}
	samples, ret = dev.GetProcessUtilization(last)
	if ret != nvml.SUCCESS {
		return nil
	}
	util := make(map[uint32]float64, len(samples))
	for _, s := range samples {
		util[s.Pid] = float64(s.SmUtil)
	}
	return util
}

func (b *nvidiaBackend) ProcessesByName(ctx context.Context, name string) ([]types.GPUProcessInfo, error) {
	entries, err := proctab.Match(b.fs, name)
	if err != nil {
		return nil, err
	}
	return b.matchProcesses(ctx, entries)
}

func (b *nvidiaBackend) ProcessesByPID(ctx context.Context, pid int) ([]types.GPUProcessInfo, error) {
	if _, err := b.fs.Proc(pid); err != nil {
		return nil, fmt.Errorf("pid %d: %w", pid, types.ErrNotFound)
	}
	return b.matchProcesses(ctx, []proctab.Entry{{PID: pid}})
}

// matchProcesses intersects the candidate set with the processes NVML
// reports on any device.
func (b *nvidiaBackend) matchProcesses(ctx context.Context, entries []proctab.Entry) ([]types.GPUProcessInfo, error) {
	wanted := make(map[int]struct{}, len(entries))
	for _, e := range entries {
		wanted[e.PID] = struct{}{}
	}
	devices, err := b.Devices(ctx)
	if err != nil {
		return nil, err
	}
	var infos []types.GPUProcessInfo
	for _, dev := range devices {
		for _, p := range dev.Processes {
			if _, ok := wanted[p.PID]; ok {
				infos = append(infos, p)
			}
		}
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("gpu processes: %w", types.ErrNotFound)
	}
	return infos, nil
}

func (b *nvidiaBackend) Close() error {
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("nvml shutdown: %s", nvml.ErrorString(ret))
	}
	return nil
}
