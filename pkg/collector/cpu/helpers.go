package cpu

import (
	"time"

	"github.com/prometheus/procfs"

	"github.com/sysglance/sysglance/pkg/sampling"
)

// usagePercent derives busy/total from two scheduler counter readings
// using the standard idle = idle+iowait decomposition. A zero or
// negative total delta reports 0, never NaN.
func usagePercent(before, after procfs.CPUStat) float64 {
	idle := (after.Idle + after.Iowait) - (before.Idle + before.Iowait)
	busy := busySum(after) - busySum(before)
	total := idle + busy
	if total <= 0 {
		return 0
	}
	return sampling.Percent(busy, total)
}

func busySum(s procfs.CPUStat) float64 {
	return s.User + s.Nice + s.System + s.IRQ + s.SoftIRQ + s.Steal + s.Guest + s.GuestNice
}

// tickDelta is the window's scheduler tick delta for one process,
// clamped at zero when the counters move backwards (PID reuse).
func tickDelta(before, after procfs.ProcStat) float64 {
	b := before.UTime + before.STime
	a := after.UTime + after.STime
	if a <= b {
		return 0
	}
	return float64(a - b)
}

// processUsagePercent converts a tick delta into CPU percent over the
// window. Multithreaded processes can legitimately exceed 100.
func processUsagePercent(deltaTicks float64, window time.Duration, clkTck int64) float64 {
	secs := window.Seconds()
	if secs <= 0 || clkTck <= 0 {
		return 0
	}
	return deltaTicks * 100 / (secs * float64(clkTck))
}

func khzToMHz(v *uint64) *float64 {
	if v == nil {
		return nil
	}
	mhz := float64(*v) / 1000
	return &mhz
}
