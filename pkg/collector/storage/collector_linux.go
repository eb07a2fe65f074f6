//go:build linux
// +build linux

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"github.com/sysglance/sysglance/pkg/proctab"
	"github.com/sysglance/sysglance/pkg/sampling"
	"github.com/sysglance/sysglance/pkg/types"
)

// statfs allows tests to stub filesystem capacity calls.
var statfs = unix.Statfs

// Collector reads volume capacity from the mount table plus statfs, and
// per-process I/O rates from the procfs I/O accounting files.
type Collector struct {
	fs      procfs.FS
	window  time.Duration
	selfPID int
	exclude map[string]struct{}

	// readIO allows tests to substitute deterministic counter sets.
	readIO func(pids []int) map[int]procfs.ProcIO
}

// NewCollector opens the default /proc mount point. excludeFS lists
// filesystem types to hide from volume reports.
func NewCollector(window time.Duration, excludeFS []string) (*Collector, error) {
	return newCollector(procfs.DefaultMountPoint, window, excludeFS)
}

func newCollector(procMount string, window time.Duration, excludeFS []string) (*Collector, error) {
	fs, err := procfs.NewFS(procMount)
	if err != nil {
		return nil, fmt.Errorf("opening procfs: %w", err)
	}
	if window <= 0 {
		window = sampling.DefaultWindow
	}
	exclude := make(map[string]struct{}, len(excludeFS))
	for _, t := range excludeFS {
		exclude[t] = struct{}{}
	}
	c := &Collector{fs: fs, window: window, selfPID: os.Getpid(), exclude: exclude}
	c.readIO = c.readProcIO
	return c, nil
}

// Volumes lists mounted filesystems with capacity statistics, skipping
// excluded pseudo-filesystem types. A failed statfs keeps the volume in
// the list with zeroed capacity fields.
func (c *Collector) Volumes() ([]types.StorageInfo, error) {
	mounts, err := c.mounts()
	if err != nil {
		return nil, fmt.Errorf("reading mount table: %w", err)
	}
	vols := make([]types.StorageInfo, 0, len(mounts))
	for _, m := range mounts {
		if _, skip := c.exclude[m.FSType]; skip {
			continue
		}
		vol := types.StorageInfo{
			Device:     m.Source,
			MountPoint: m.MountPoint,
			FSType:     m.FSType,
		}
		var st unix.Statfs_t
		if err := statfs(m.MountPoint, &st); err == nil {
			fillCapacity(&vol, &st)
		}
		vols = append(vols, vol)
	}
	return vols, nil
}

// ProcessByPID samples one process's I/O counters across the window.
func (c *Collector) ProcessByPID(ctx context.Context, pid int) (types.StorageProcessInfo, error) {
	p, err := c.fs.Proc(pid)
	if err != nil {
		return types.StorageProcessInfo{}, fmt.Errorf("pid %d: %w", pid, types.ErrNotFound)
	}
	infos, err := c.sample(ctx, []proctab.Entry{{PID: pid, Name: proctab.NameFor(p)}})
	if err != nil {
		return types.StorageProcessInfo{}, err
	}
	return infos[0], nil
}

// ProcessesByName samples every process whose name contains name; all
// matches share a single window.
func (c *Collector) ProcessesByName(ctx context.Context, name string) ([]types.StorageProcessInfo, error) {
	entries, err := proctab.Match(c.fs, name)
	if err != nil {
		return nil, err
	}
	return c.sample(ctx, entries)
}

// sample reads I/O counters for every entry, sleeps one window, reads
// again. Unreadable I/O accounting yields zero rates but keeps the
// record; a process that vanishes entirely is dropped.
func (c *Collector) sample(ctx context.Context, entries []proctab.Entry) ([]types.StorageProcessInfo, error) {
	pids := make([]int, 0, len(entries))
	for _, e := range entries {
		pids = append(pids, e.PID)
	}
	read := func() (map[int]procfs.ProcIO, error) { return c.readIO(pids), nil }
	pair, err := sampling.Take(ctx, read, c.window)
	if err != nil {
		return nil, err
	}

	infos := make([]types.StorageProcessInfo, 0, len(entries))
	for _, e := range entries {
		p, err := c.fs.Proc(e.PID)
		if err != nil {
			continue // exited during the window
		}
		name := e.Name
		if name == "" {
			name = proctab.NameFor(p)
		}
		before, after := pair.Before[e.PID], pair.After[e.PID]
		info := types.StorageProcessInfo{
			PID:              e.PID,
			Name:             name,
			ReadBytesPerSec:  sampling.Rate(before.ReadBytes, after.ReadBytes, c.window),
			WriteBytesPerSec: sampling.Rate(before.WriteBytes, after.WriteBytes, c.window),
			MainDevice:       c.mainDevice(p),
		}
		if n, err := p.FileDescriptorsLen(); err == nil {
			info.OpenFiles = n
		}
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("sampling processes: %w", types.ErrNotFound)
	}
	return infos, nil
}

func (c *Collector) readProcIO(pids []int) map[int]procfs.ProcIO {
	out := make(map[int]procfs.ProcIO, len(pids))
	for _, pid := range pids {
		p, err := c.fs.Proc(pid)
		if err != nil {
			continue
		}
		if io, err := p.IO(); err == nil {
			out[pid] = io
		}
	}
	return out
}

// mainDevice walks the executable's path upward until a mount point
// matches and returns that mount's source device.
func (c *Collector) mainDevice(p procfs.Proc) string {
	exe, err := p.Executable()
	if err != nil || exe == "" {
		return ""
	}
	mounts, err := c.mounts()
	if err != nil {
		return ""
	}
	byMount := make(map[string]string, len(mounts))
	for _, m := range mounts {
		byMount[m.MountPoint] = m.Source
	}
	for path := exe; ; path = filepath.Dir(path) {
		if dev, ok := byMount[path]; ok {
			return dev
		}
		if path == "/" || path == "." {
			return ""
		}
	}
}

func (c *Collector) mounts() ([]*procfs.MountInfo, error) {
	p, err := c.fs.Proc(c.selfPID)
	if err != nil {
		return nil, err
	}
	return p.MountInfo()
}

// fillCapacity converts statfs block counts into byte totals. Available
// differs from free by the blocks reserved for root.
func fillCapacity(vol *types.StorageInfo, st *unix.Statfs_t) {
	bsize := st.Frsize
	if bsize <= 0 {
		bsize = st.Bsize
	}
	if bsize <= 0 || st.Blocks == 0 {
		return
	}
	vol.TotalBytes = st.Blocks * uint64(bsize)
	vol.AvailableBytes = st.Bavail * uint64(bsize)
	if st.Blocks >= st.Bfree {
		vol.UsedBytes = (st.Blocks - st.Bfree) * uint64(bsize)
		vol.UsagePercent = sampling.Percent(float64(st.Blocks-st.Bfree), float64(st.Blocks))
	}
}
