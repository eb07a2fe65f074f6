//go:build linux
// +build linux

package ram

import (
	"fmt"

	"github.com/prometheus/procfs"

	"github.com/sysglance/sysglance/pkg/proctab"
	"github.com/sysglance/sysglance/pkg/sampling"
	"github.com/sysglance/sysglance/pkg/types"
)

// Collector reads memory gauges from procfs. Memory is instantaneous,
// so no delta sampling happens here.
type Collector struct {
	fs procfs.FS
}

// NewCollector opens the default /proc mount point.
func NewCollector() (*Collector, error) {
	return newCollector(procfs.DefaultMountPoint)
}

func newCollector(procMount string) (*Collector, error) {
	fs, err := procfs.NewFS(procMount)
	if err != nil {
		return nil, fmt.Errorf("opening procfs: %w", err)
	}
	return &Collector{fs: fs}, nil
}

// Info reads the system meminfo gauges. Used memory is total minus
// available, matching what interactive tools report.
func (c *Collector) Info() (types.RAMInfo, error) {
	mi, err := c.fs.Meminfo()
	if err != nil {
		return types.RAMInfo{}, fmt.Errorf("reading meminfo: %w", err)
	}

	info := types.RAMInfo{
		TotalMB:     kbToMB(mi.MemTotal),
		FreeMB:      kbToMB(mi.MemFree),
		AvailableMB: kbToMB(mi.MemAvailable),
		SharedMB:    kbToMB(mi.Shmem),
		CacheMB:     kbToMB(mi.Cached) + kbToMB(mi.Buffers),
		SwapTotalMB: kbToMB(mi.SwapTotal),
	}
	if used := info.TotalMB - info.AvailableMB; used > 0 {
		info.UsedMB = used
	}
	if swapUsed := info.SwapTotalMB - kbToMB(mi.SwapFree); swapUsed > 0 {
		info.SwapUsedMB = swapUsed
	}
	info.UsagePercent = sampling.Percent(info.UsedMB, info.TotalMB)
	return info, nil
}

// ProcessByPID reads one process's memory footprint. An unreadable
// process fails the lookup.
func (c *Collector) ProcessByPID(pid int) (types.RAMProcessInfo, error) {
	p, err := c.fs.Proc(pid)
	if err != nil {
		return types.RAMProcessInfo{}, fmt.Errorf("pid %d: %w", pid, types.ErrNotFound)
	}
	info, err := c.processInfo(p, c.totalBytes())
	if err != nil {
		return types.RAMProcessInfo{}, fmt.Errorf("pid %d: %w", pid, types.ErrNotFound)
	}
	return info, nil
}

// ProcessesByName returns a record for every process whose name contains
// name. Unreadable matches are skipped.
func (c *Collector) ProcessesByName(name string) ([]types.RAMProcessInfo, error) {
	entries, err := proctab.Match(c.fs, name)
	if err != nil {
		return nil, err
	}
	infos := c.processInfos(entries)
	if len(infos) == 0 {
		return nil, fmt.Errorf("process %q: %w", name, types.ErrNotFound)
	}
	return infos, nil
}

// AllProcesses lists every readable process's footprint, sorted by PID.
func (c *Collector) AllProcesses() ([]types.RAMProcessInfo, error) {
	entries, err := proctab.All(c.fs)
	if err != nil {
		return nil, err
	}
	return c.processInfos(entries), nil
}

// ProcessNames lists distinct process names, sorted lexicographically.
func (c *Collector) ProcessNames() ([]string, error) {
	entries, err := proctab.All(c.fs)
	if err != nil {
		return nil, err
	}
	return dedupeNames(entries), nil
}

func (c *Collector) processInfos(entries []proctab.Entry) []types.RAMProcessInfo {
	total := c.totalBytes()
	infos := make([]types.RAMProcessInfo, 0, len(entries))
	for _, e := range entries {
		p, err := c.fs.Proc(e.PID)
		if err != nil {
			continue
		}
		info, err := c.processInfo(p, total)
		if err != nil {
			continue
		}
		if info.Name == "" {
			info.Name = e.Name
		}
		infos = append(infos, info)
	}
	return infos
}

func (c *Collector) processInfo(p procfs.Proc, totalBytes float64) (types.RAMProcessInfo, error) {
	status, err := p.NewStatus()
	if err != nil {
		return types.RAMProcessInfo{}, err
	}
	info := types.RAMProcessInfo{
		PID:          p.PID,
		Name:         status.Name,
		ResidentMB:   bytesToMB(status.VmRSS),
		VirtualMB:    bytesToMB(status.VmSize),
		SharedMB:     bytesToMB(status.RssFile),
		UsagePercent: sampling.Percent(float64(status.VmRSS), totalBytes),
	}
	if info.Name == "" {
		info.Name = proctab.NameFor(p)
	}
	return info, nil
}

func (c *Collector) totalBytes() float64 {
	mi, err := c.fs.Meminfo()
	if err != nil || mi.MemTotal == nil {
		return 0
	}
	return float64(*mi.MemTotal) * 1024
}
