// Package report assembles collector results into whole-system
// snapshots and per-process reports. Domains are queried concurrently
// and independently: a failing domain is recorded as degraded, never
// fatal.
package report

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/procfs"
	"github.com/shirou/gopsutil/v3/host"
	"golang.org/x/sync/errgroup"

	"github.com/sysglance/sysglance/pkg/collector/cpu"
	"github.com/sysglance/sysglance/pkg/collector/gpu"
	"github.com/sysglance/sysglance/pkg/collector/network"
	"github.com/sysglance/sysglance/pkg/collector/ram"
	"github.com/sysglance/sysglance/pkg/collector/storage"
	"github.com/sysglance/sysglance/pkg/config"
	"github.com/sysglance/sysglance/pkg/types"
)

// hostInfo and loadAvg allow tests to stub host lookups that normally
// hit the kernel.
var (
	hostInfo = host.Info
	loadAvg  = readLoadAvg
)

// HostInfo identifies the machine a snapshot was taken on.
type HostInfo struct {
	Hostname      string    `json:"hostname"`
	Platform      string    `json:"platform"`
	KernelVersion string    `json:"kernel_version"`
	UptimeSec     uint64    `json:"uptime_sec"`
	Load1         float64   `json:"load1"`
	Load5         float64   `json:"load5"`
	Load15        float64   `json:"load15"`
	Timestamp     time.Time `json:"timestamp"`
}

// SystemSnapshot is one whole-machine report. Sections of degraded
// domains are empty; Degraded maps domain name to the failure.
type SystemSnapshot struct {
	Host     HostInfo                     `json:"host"`
	CPU      *types.CPUInfo               `json:"cpu,omitempty"`
	GPU      []types.GPUInfo              `json:"gpu,omitempty"`
	RAM      *types.RAMInfo               `json:"ram,omitempty"`
	Storage  []types.StorageInfo          `json:"storage,omitempty"`
	Network  []types.NetworkInterfaceInfo `json:"network,omitempty"`
	TopCPU   []types.CPUProcessInfo       `json:"top_cpu,omitempty"`
	Degraded map[string]string            `json:"degraded,omitempty"`
}

// ProcessReport is one process-name query answered across every
// domain. A domain where the query matched nothing stays empty without
// being degraded.
type ProcessReport struct {
	Query    string                     `json:"query"`
	CPU      []types.CPUProcessInfo     `json:"cpu,omitempty"`
	GPU      []types.GPUProcessInfo     `json:"gpu,omitempty"`
	RAM      []types.RAMProcessInfo     `json:"ram,omitempty"`
	Storage  []types.StorageProcessInfo `json:"storage,omitempty"`
	Network  []types.NetworkProcessInfo `json:"network,omitempty"`
	Degraded map[string]string          `json:"degraded,omitempty"`
}

type cpuSource interface {
	Info(ctx context.Context) (types.CPUInfo, error)
	ProcessesByName(ctx context.Context, name string) ([]types.CPUProcessInfo, error)
	TopProcesses(ctx context.Context, limit int) ([]types.CPUProcessInfo, error)
}

type ramSource interface {
	Info() (types.RAMInfo, error)
	ProcessesByName(name string) ([]types.RAMProcessInfo, error)
}

type storageSource interface {
	Volumes() ([]types.StorageInfo, error)
	ProcessesByName(ctx context.Context, name string) ([]types.StorageProcessInfo, error)
}

type networkSource interface {
	Interfaces(ctx context.Context) ([]types.NetworkInterfaceInfo, error)
	ProcessesByName(ctx context.Context, name string) ([]types.NetworkProcessInfo, error)
}

type gpuSource interface {
	Available() bool
	Devices(ctx context.Context) ([]types.GPUInfo, error)
	ProcessesByName(ctx context.Context, name string) ([]types.GPUProcessInfo, error)
	Close() error
}

// Assembler owns one collector per domain.
type Assembler struct {
	cfg     config.Config
	cpu     cpuSource
	ram     ramSource
	storage storageSource
	network networkSource
	gpu     gpuSource
}

// NewAssembler builds every domain collector and probes GPU backends
// once. Close releases the GPU backends when done.
func NewAssembler(cfg config.Config) (*Assembler, error) {
	cpuC, err := cpu.NewCollector(cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("cpu collector: %w", err)
	}
	ramC, err := ram.NewCollector()
	if err != nil {
		return nil, fmt.Errorf("ram collector: %w", err)
	}
	storageC, err := storage.NewCollector(cfg.Window, cfg.ExcludeFilesystems)
	if err != nil {
		return nil, fmt.Errorf("storage collector: %w", err)
	}
	networkC, err := network.NewCollector(cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("network collector: %w", err)
	}
	detector := gpu.NewDetector(gpu.Options{
		Window:        cfg.Window,
		DisableNVIDIA: cfg.GPU.DisableNVIDIA,
		DisableAMD:    cfg.GPU.DisableAMD,
	})
	return &Assembler{
		cfg:     cfg,
		cpu:     cpuC,
		ram:     ramC,
		storage: storageC,
		network: networkC,
		gpu:     detector,
	}, nil
}

// Close releases vendor library handles.
func (a *Assembler) Close() error {
	return a.gpu.Close()
}

// System gathers every domain concurrently. Each domain gets its own
// timeout; a domain that fails leaves its section empty and lands in
// Degraded.
func (a *Assembler) System(ctx context.Context) (*SystemSnapshot, error) {
	snap := &SystemSnapshot{Host: a.snapshotHost()}

	var mu sync.Mutex
	degrade := func(domain string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if snap.Degraded == nil {
			snap.Degraded = make(map[string]string)
		}
		snap.Degraded[domain] = err.Error()
		log.Printf("warning: %s domain degraded: %v", domain, err)
	}

	var g errgroup.Group
	run := func(domain string, fn func(ctx context.Context) error) {
		g.Go(func() error {
			dctx, cancel := a.domainContext(ctx)
			defer cancel()
			if err := fn(dctx); err != nil {
				degrade(domain, err)
			}
			return nil
		})
	}

	run("cpu", func(ctx context.Context) error {
		info, err := a.cpu.Info(ctx)
		if err != nil {
			return err
		}
		snap.CPU = &info
		return nil
	})
	run("top_cpu", func(ctx context.Context) error {
		top, err := a.cpu.TopProcesses(ctx, a.cfg.TopProcesses)
		if err != nil {
			return err
		}
		snap.TopCPU = top
		return nil
	})
	if a.gpu.Available() {
		run("gpu", func(ctx context.Context) error {
			devices, err := a.gpu.Devices(ctx)
			if err != nil {
				return err
			}
			snap.GPU = devices
			return nil
		})
	}
	run("ram", func(ctx context.Context) error {
		info, err := a.ram.Info()
		if err != nil {
			return err
		}
		snap.RAM = &info
		return nil
	})
	run("storage", func(ctx context.Context) error {
		vols, err := a.storage.Volumes()
		if err != nil {
			return err
		}
		snap.Storage = vols
		return nil
	})
	run("network", func(ctx context.Context) error {
		ifaces, err := a.network.Interfaces(ctx)
		if err != nil {
			return err
		}
		snap.Network = ifaces
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Process answers one name query in every domain concurrently. A
// domain that matched nothing stays empty; when no domain matched and
// none degraded, the query itself is not found.
func (a *Assembler) Process(ctx context.Context, query string) (*ProcessReport, error) {
	rep := &ProcessReport{Query: query}

	var mu sync.Mutex
	degrade := func(domain string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if rep.Degraded == nil {
			rep.Degraded = make(map[string]string)
		}
		rep.Degraded[domain] = err.Error()
		log.Printf("warning: %s domain degraded: %v", domain, err)
	}

	var g errgroup.Group
	run := func(domain string, fn func(ctx context.Context) error) {
		g.Go(func() error {
			dctx, cancel := a.domainContext(ctx)
			defer cancel()
			if err := fn(dctx); err != nil {
				degrade(domain, err)
			}
			return nil
		})
	}

	run("cpu", func(ctx context.Context) error {
		infos, err := a.cpu.ProcessesByName(ctx, query)
		if err != nil {
			return ignoreNotFound(err)
		}
		rep.CPU = infos
		return nil
	})
	if a.gpu.Available() {
		run("gpu", func(ctx context.Context) error {
			infos, err := a.gpu.ProcessesByName(ctx, query)
			if err != nil {
				return ignoreNotFound(err)
			}
			rep.GPU = infos
			return nil
		})
	}
	run("ram", func(ctx context.Context) error {
		infos, err := a.ram.ProcessesByName(query)
		if err != nil {
			return ignoreNotFound(err)
		}
		rep.RAM = infos
		return nil
	})
	run("storage", func(ctx context.Context) error {
		infos, err := a.storage.ProcessesByName(ctx, query)
		if err != nil {
			return ignoreNotFound(err)
		}
		rep.Storage = infos
		return nil
	})
	run("network", func(ctx context.Context) error {
		infos, err := a.network.ProcessesByName(ctx, query)
		if err != nil {
			return ignoreNotFound(err)
		}
		rep.Network = infos
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rep.empty() {
		return nil, fmt.Errorf("process %q: %w", query, types.ErrNotFound)
	}
	return rep, nil
}

func (r *ProcessReport) empty() bool {
	return len(r.CPU) == 0 && len(r.GPU) == 0 && len(r.RAM) == 0 &&
		len(r.Storage) == 0 && len(r.Network) == 0 && len(r.Degraded) == 0
}

func (a *Assembler) domainContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.DomainTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.cfg.DomainTimeout)
}

// snapshotHost never fails the snapshot; fields it cannot resolve stay
// zero.
func (a *Assembler) snapshotHost() HostInfo {
	info := HostInfo{Timestamp: time.Now().UTC()}
	if hi, err := hostInfo(); err == nil {
		info.Hostname = hi.Hostname
		info.Platform = strings.TrimSpace(hi.Platform + " " + hi.PlatformVersion)
		info.KernelVersion = hi.KernelVersion
		info.UptimeSec = hi.Uptime
	}
	if l1, l5, l15, err := loadAvg(); err == nil {
		info.Load1, info.Load5, info.Load15 = l1, l5, l15
	}
	return info
}

func readLoadAvg() (load1, load5, load15 float64, err error) {
	fs, err := procfs.NewFS(procfs.DefaultMountPoint)
	if err != nil {
		return 0, 0, 0, err
	}
	avg, err := fs.LoadAvg()
	if err != nil {
		return 0, 0, 0, err
	}
	return avg.Load1, avg.Load5, avg.Load15, nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	return err
}
