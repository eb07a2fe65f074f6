// Package gpu detects GPU vendors at construction time and fans queries
// out to the backends that answered the probe. NVIDIA devices are read
// through NVML, AMD devices through the amdgpu sysfs interface.
package gpu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sysglance/sysglance/pkg/sampling"
	"github.com/sysglance/sysglance/pkg/types"
)

const (
	VendorNVIDIA = "nvidia"
	VendorAMD    = "amd"
)

// Backend answers device and process queries for one GPU vendor.
type Backend interface {
	Vendor() string
	Devices(ctx context.Context) ([]types.GPUInfo, error)
	DeviceByIndex(ctx context.Context, index int) (types.GPUInfo, error)
	ProcessesByName(ctx context.Context, name string) ([]types.GPUProcessInfo, error)
	ProcessesByPID(ctx context.Context, pid int) ([]types.GPUProcessInfo, error)
	Close() error
}

// Options configures backend probing. Zero-value mounts fall back to
// /proc and /sys.
type Options struct {
	ProcMount     string
	SysMount      string
	Window        time.Duration
	DisableNVIDIA bool
	DisableAMD    bool
}

// Detector holds the backends whose probe succeeded. A machine without
// GPUs yields a detector with no backends; queries then return empty
// results rather than failing.
type Detector struct {
	backends []Backend
}

// NewDetector probes each enabled vendor once. Probe failures mean the
// vendor's hardware or driver is absent and are not errors.
func NewDetector(opts Options) *Detector {
	if opts.Window <= 0 {
		opts.Window = sampling.DefaultWindow
	}
	var backends []Backend
	if !opts.DisableNVIDIA {
		if b, err := probeNVIDIA(opts); err == nil {
			backends = append(backends, b)
		}
	}
	if !opts.DisableAMD {
		if b, err := probeAMD(opts); err == nil {
			backends = append(backends, b)
		}
	}
	return &Detector{backends: backends}
}

// Available reports whether any backend answered the probe.
func (d *Detector) Available() bool { return len(d.backends) > 0 }

// Vendors lists the detected vendors in probe order.
func (d *Detector) Vendors() []string {
	vendors := make([]string, 0, len(d.backends))
	for _, b := range d.backends {
		vendors = append(vendors, b.Vendor())
	}
	return vendors
}

// Devices concatenates every backend's device list. A failing backend
// is skipped; its error surfaces only when no backend produced devices.
func (d *Detector) Devices(ctx context.Context) ([]types.GPUInfo, error) {
	var devices []types.GPUInfo
	var errs []error
	for _, b := range d.backends {
		got, err := b.Devices(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Vendor(), err))
			continue
		}
		devices = append(devices, got...)
	}
	if len(devices) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return devices, nil
}

// DeviceByIndex asks each backend for the index and returns the first
// hit.
func (d *Detector) DeviceByIndex(ctx context.Context, index int) (types.GPUInfo, error) {
	for _, b := range d.backends {
		info, err := b.DeviceByIndex(ctx, index)
		if err == nil {
			return info, nil
		}
		if !errors.Is(err, types.ErrNotFound) {
			return types.GPUInfo{}, err
		}
	}
	return types.GPUInfo{}, fmt.Errorf("gpu %d: %w", index, types.ErrNotFound)
}

// ProcessesByName concatenates matches across backends.
func (d *Detector) ProcessesByName(ctx context.Context, name string) ([]types.GPUProcessInfo, error) {
	return d.gather(func(b Backend) ([]types.GPUProcessInfo, error) {
		return b.ProcessesByName(ctx, name)
	}, fmt.Sprintf("process %q", name))
}

// ProcessesByPID concatenates the PID's footprint across backends.
func (d *Detector) ProcessesByPID(ctx context.Context, pid int) ([]types.GPUProcessInfo, error) {
	return d.gather(func(b Backend) ([]types.GPUProcessInfo, error) {
		return b.ProcessesByPID(ctx, pid)
	}, fmt.Sprintf("pid %d", pid))
}

func (d *Detector) gather(query func(Backend) ([]types.GPUProcessInfo, error), label string) ([]types.GPUProcessInfo, error) {
	var infos []types.GPUProcessInfo
	var errs []error
	for _, b := range d.backends {
		got, err := query(b)
		if err != nil {
			if !errors.Is(err, types.ErrNotFound) {
				errs = append(errs, fmt.Errorf("%s: %w", b.Vendor(), err))
			}
			continue
		}
		infos = append(infos, got...)
	}
	if len(infos) > 0 {
		return infos, nil
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, fmt.Errorf("%s: %w", label, types.ErrNotFound)
}

// Close releases every backend. All backends are closed even when an
// earlier one fails.
func (d *Detector) Close() error {
	var errs []error
	for _, b := range d.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Vendor(), err))
		}
	}
	return errors.Join(errs...)
}

// mergeProcessLists deduplicates by PID, first occurrence wins. NVML
// reports a process on both the compute and graphics lists when it uses
// both engines.
func mergeProcessLists(lists ...[]types.GPUProcessInfo) []types.GPUProcessInfo {
	seen := make(map[int]struct{})
	var merged []types.GPUProcessInfo
	for _, list := range lists {
		for _, p := range list {
			if _, ok := seen[p.PID]; ok {
				continue
			}
			seen[p.PID] = struct{}{}
			merged = append(merged, p)
		}
	}
	return merged
}

func bytesToMB(b uint64) float64 {
	return float64(b) / 1024 / 1024
}
