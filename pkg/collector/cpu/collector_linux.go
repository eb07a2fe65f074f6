//go:build linux
// +build linux

package cpu

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"
	pscpu "github.com/shirou/gopsutil/v3/cpu"
	"github.com/tklauser/go-sysconf"
	"golang.org/x/sys/unix"

	"github.com/sysglance/sysglance/pkg/proctab"
	"github.com/sysglance/sysglance/pkg/sampling"
	"github.com/sysglance/sysglance/pkg/types"
)

// Stub points for tests.
var (
	schedGetaffinity = unix.SchedGetaffinity
	cpuInfo          = pscpu.Info
	cpuCounts        = pscpu.Counts
)

// aggregateID keys the machine-wide "cpu" line alongside per-core ids.
const aggregateID = int64(-1)

// Collector reads CPU utilization from the scheduler counters in procfs
// and per-core frequency/temperature sensors from sysfs.
type Collector struct {
	fs     procfs.FS
	sys    sysfs.FS
	window time.Duration
	clkTck int64

	// readTimes allows tests to substitute deterministic counter sets.
	readTimes func() (map[int64]procfs.CPUStat, error)
}

// NewCollector opens the default /proc and /sys mount points.
func NewCollector(window time.Duration) (*Collector, error) {
	return newCollector(procfs.DefaultMountPoint, sysfs.DefaultMountPoint, window)
}

func newCollector(procMount, sysMount string, window time.Duration) (*Collector, error) {
	fs, err := procfs.NewFS(procMount)
	if err != nil {
		return nil, fmt.Errorf("opening procfs: %w", err)
	}
	sys, err := sysfs.NewFS(sysMount)
	if err != nil {
		return nil, fmt.Errorf("opening sysfs: %w", err)
	}
	if window <= 0 {
		window = sampling.DefaultWindow
	}
	clkTck, err := sysconf.Sysconf(sysconf.SC_CLK_TCK)
	if err != nil || clkTck <= 0 {
		clkTck = 100
	}
	c := &Collector{fs: fs, sys: sys, window: window, clkTck: clkTck}
	c.readTimes = c.readCPUTimes
	return c, nil
}

// Info samples the scheduler counters across one window and merges
// per-core frequency and temperature readings into the result.
func (c *Collector) Info(ctx context.Context) (types.CPUInfo, error) {
	pair, err := sampling.Take(ctx, c.readTimes, c.window)
	if err != nil {
		return types.CPUInfo{}, fmt.Errorf("sampling cpu counters: %w", err)
	}

	var info types.CPUInfo
	ids := make([]int64, 0, len(pair.After))
	pair.Each(func(id int64, _, _ procfs.CPUStat) {
		if id == aggregateID {
			return
		}
		ids = append(ids, id)
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	info.UsagePercent = usagePercent(pair.Before[aggregateID], pair.After[aggregateID])

	freqs := c.coreFrequencies()
	temps := c.coreTemperatures()
	var freqSum, tempSum float64
	var freqN, tempN int
	for _, id := range ids {
		core := types.CPUCoreInfo{
			ID:           int(id),
			UsagePercent: usagePercent(pair.Before[id], pair.After[id]),
		}
		if f, ok := freqs[core.ID]; ok {
			core.FreqMHz = f.cur
			core.MinFreqMHz = f.min
			core.MaxFreqMHz = f.max
			if f.cur != nil {
				freqSum += *f.cur
				freqN++
			}
		}
		if t, ok := temps[core.ID]; ok {
			core.TempC = &t
			if t != 0 {
				tempSum += t
				tempN++
			}
		}
		info.Cores = append(info.Cores, core)
	}
	if freqN > 0 {
		info.AvgFreqMHz = freqSum / float64(freqN)
	}
	if tempN > 0 {
		info.AvgTempC = tempSum / float64(tempN)
	}

	c.fillModel(&info)
	return info, nil
}

// ProcessByPID samples one process's scheduler ticks across the window.
// An unreadable process fails the lookup rather than returning a zeroed
// record.
func (c *Collector) ProcessByPID(ctx context.Context, pid int) (types.CPUProcessInfo, error) {
	p, err := c.fs.Proc(pid)
	if err != nil {
		return types.CPUProcessInfo{}, fmt.Errorf("pid %d: %w", pid, types.ErrNotFound)
	}
	before, err := p.Stat()
	if err != nil {
		return types.CPUProcessInfo{}, fmt.Errorf("pid %d: %w", pid, types.ErrNotFound)
	}
	if err := sampling.Sleep(ctx, c.window); err != nil {
		return types.CPUProcessInfo{}, err
	}
	after, err := p.Stat()
	if err != nil {
		return types.CPUProcessInfo{}, fmt.Errorf("pid %d: %w", pid, types.ErrNotFound)
	}
	return c.processInfo(p, before, after), nil
}

// ProcessesByName returns a sampled record for every process whose name
// contains name. All matches share a single sampling window.
func (c *Collector) ProcessesByName(ctx context.Context, name string) ([]types.CPUProcessInfo, error) {
	entries, err := proctab.Match(c.fs, name)
	if err != nil {
		return nil, err
	}
	return c.sampleProcesses(ctx, entries)
}

// TopProcesses samples every visible process and returns the limit
// heaviest by usage, descending. A non-positive limit uses the default.
func (c *Collector) TopProcesses(ctx context.Context, limit int) ([]types.CPUProcessInfo, error) {
	if limit <= 0 {
		limit = types.DefaultTopProcesses
	}
	procs, err := c.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	entries := make([]proctab.Entry, 0, len(procs))
	for _, p := range procs {
		entries = append(entries, proctab.Entry{PID: p.PID})
	}
	infos, err := c.sampleProcesses(ctx, entries)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(infos, func(i, j int) bool { return infos[i].UsagePercent > infos[j].UsagePercent })
	if len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, nil
}

// sampleProcesses reads scheduler stats for all entries, sleeps one
// window, reads again. Processes that vanish or turn unreadable at
// either read are dropped.
func (c *Collector) sampleProcesses(ctx context.Context, entries []proctab.Entry) ([]types.CPUProcessInfo, error) {
	procs := make(map[int]procfs.Proc, len(entries))
	before := make(map[int]procfs.ProcStat, len(entries))
	for _, e := range entries {
		p, err := c.fs.Proc(e.PID)
		if err != nil {
			continue
		}
		st, err := p.Stat()
		if err != nil {
			continue
		}
		procs[e.PID] = p
		before[e.PID] = st
	}
	if err := sampling.Sleep(ctx, c.window); err != nil {
		return nil, err
	}
	infos := make([]types.CPUProcessInfo, 0, len(before))
	for _, e := range entries {
		st0, ok := before[e.PID]
		if !ok {
			continue
		}
		st1, err := procs[e.PID].Stat()
		if err != nil {
			continue // exited during the window
		}
		info := c.processInfo(procs[e.PID], st0, st1)
		if info.Name == "" {
			info.Name = e.Name
		}
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("sampling processes: %w", types.ErrNotFound)
	}
	return infos, nil
}

func (c *Collector) processInfo(p procfs.Proc, before, after procfs.ProcStat) types.CPUProcessInfo {
	info := types.CPUProcessInfo{
		PID:     p.PID,
		Name:    after.Comm,
		State:   after.State,
		Nice:    after.Nice,
		Threads: after.NumThreads,
	}
	if info.Name == "" {
		info.Name = proctab.NameFor(p)
	}
	deltaTicks := tickDelta(before, after)
	info.UsagePercent = processUsagePercent(deltaTicks, c.window, c.clkTck)
	info.CPUTimeMs = deltaTicks * 1000 / float64(c.clkTck)
	info.Affinity = c.affinityMask(p.PID)
	return info
}

// affinityMask packs the first 32 logical CPUs of the scheduling mask.
// Machines with more CPUs only report the low 32 bits.
func (c *Collector) affinityMask(pid int) uint32 {
	var set unix.CPUSet
	if err := schedGetaffinity(pid, &set); err != nil {
		return 0
	}
	var mask uint32
	for i := 0; i < 32; i++ {
		if set.IsSet(i) {
			mask |= 1 << i
		}
	}
	return mask
}

func (c *Collector) readCPUTimes() (map[int64]procfs.CPUStat, error) {
	stat, err := c.fs.Stat()
	if err != nil {
		return nil, err
	}
	times := make(map[int64]procfs.CPUStat, len(stat.CPU)+1)
	times[aggregateID] = stat.CPUTotal
	for id, s := range stat.CPU {
		times[id] = s
	}
	return times, nil
}

type coreFreq struct {
	cur, min, max *float64
}

// coreFrequencies indexes scaled cpufreq readings by core id, in MHz.
// Missing cpufreq support yields an empty map, not an error.
func (c *Collector) coreFrequencies() map[int]coreFreq {
	stats, err := c.sys.SystemCpufreq()
	if err != nil {
		return nil
	}
	out := make(map[int]coreFreq, len(stats))
	for _, s := range stats {
		id, err := strconv.Atoi(s.Name)
		if err != nil {
			continue
		}
		out[id] = coreFreq{
			cur: khzToMHz(s.ScalingCurrentFrequency),
			min: khzToMHz(s.ScalingMinimumFrequency),
			max: khzToMHz(s.ScalingMaximumFrequency),
		}
	}
	return out
}

// coreTemperatures maps thermal zone N to core N, in degrees Celsius.
// Zone naming varies across hardware; zones that do not parse as a core
// id are ignored.
func (c *Collector) coreTemperatures() map[int]float64 {
	zones, err := c.sys.ClassThermalZoneStats()
	if err != nil {
		return nil
	}
	out := make(map[int]float64, len(zones))
	for _, z := range zones {
		id, err := strconv.Atoi(z.Name)
		if err != nil {
			continue
		}
		out[id] = float64(z.Temp) / 1000
	}
	return out
}

func (c *Collector) fillModel(info *types.CPUInfo) {
	if infos, err := cpuInfo(); err == nil && len(infos) > 0 {
		info.ModelName = infos[0].ModelName
	}
	if n, err := cpuCounts(false); err == nil {
		info.PhysicalCores = n
	}
	if n, err := cpuCounts(true); err == nil && n > 0 {
		info.LogicalCPUs = n
	}
	if info.LogicalCPUs == 0 {
		info.LogicalCPUs = len(info.Cores)
	}
}
