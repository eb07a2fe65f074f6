//go:build linux

package ram

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sysglance/sysglance/pkg/types"
)

const meminfoFixture = `MemTotal:       16384000 kB
MemFree:         4096000 kB
MemAvailable:    8192000 kB
Buffers:          512000 kB
Cached:          2048000 kB
SwapCached:            0 kB
Active:          5000000 kB
Inactive:        3000000 kB
SwapTotal:       4096000 kB
SwapFree:        3072000 kB
Dirty:               200 kB
Writeback:             0 kB
Shmem:            256000 kB
Slab:             400000 kB
`

// statusFile renders a /proc/PID/status fixture; sizes are kB.
func statusFile(pid int, name string, vmSize, vmRSS, rssFile uint64) string {
	return fmt.Sprintf(`Name:	%s
Umask:	0022
State:	S (sleeping)
Tgid:	%d
Ngid:	0
Pid:	%d
PPid:	1
TracerPid:	0
Uid:	1000	1000	1000	1000
Gid:	1000	1000	1000	1000
FDSize:	256
VmPeak:	%d kB
VmSize:	%d kB
VmLck:	0 kB
VmPin:	0 kB
VmHWM:	%d kB
VmRSS:	%d kB
RssAnon:	%d kB
RssFile:	%d kB
RssShmem:	0 kB
VmData:	200000 kB
VmStk:	132 kB
VmExe:	1000 kB
VmLib:	8000 kB
VmPTE:	200 kB
VmSwap:	0 kB
Threads:	10
voluntary_ctxt_switches:	1000
nonvoluntary_ctxt_switches:	50
`, name, pid, pid, vmSize, vmSize, vmRSS, vmRSS, vmRSS-rssFile, rssFile)
}

func newFixtureCollector(t *testing.T, files map[string]string) *Collector {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating fixture dir for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing fixture %s: %v", name, err)
		}
	}
	c, err := newCollector(dir)
	if err != nil {
		t.Fatalf("newCollector: %v", err)
	}
	return c
}

func TestInfo(t *testing.T) {
	c := newFixtureCollector(t, map[string]string{"meminfo": meminfoFixture})

	info, err := c.Info()
	if err != nil {
		t.Fatalf("Info returned error: %v", err)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"TotalMB", info.TotalMB, 16000},
		{"FreeMB", info.FreeMB, 4000},
		{"AvailableMB", info.AvailableMB, 8000},
		{"UsedMB", info.UsedMB, 8000},
		{"SharedMB", info.SharedMB, 250},
		{"CacheMB", info.CacheMB, 2500},
		{"SwapTotalMB", info.SwapTotalMB, 4000},
		{"SwapUsedMB", info.SwapUsedMB, 1000},
		{"UsagePercent", info.UsagePercent, 50},
	}
	for _, ck := range checks {
		if math.Abs(ck.got-ck.want) > 1e-6 {
			t.Fatalf("%s = %v, want %v", ck.name, ck.got, ck.want)
		}
	}
}

func TestInfoUnreadable(t *testing.T) {
	c := newFixtureCollector(t, nil)
	if _, err := c.Info(); err == nil {
		t.Fatal("expected error without meminfo")
	}
}

func TestProcessByPID(t *testing.T) {
	c := newFixtureCollector(t, map[string]string{
		"meminfo":    meminfoFixture,
		"123/status": statusFile(123, "chrome", 409600, 102400, 20480),
		"123/comm":   "chrome\n",
	})

	info, err := c.ProcessByPID(123)
	if err != nil {
		t.Fatalf("ProcessByPID returned error: %v", err)
	}
	if info.PID != 123 || info.Name != "chrome" {
		t.Fatalf("identity = %d/%q", info.PID, info.Name)
	}
	if math.Abs(info.ResidentMB-100) > 1e-6 {
		t.Fatalf("ResidentMB = %v, want 100", info.ResidentMB)
	}
	if math.Abs(info.VirtualMB-400) > 1e-6 {
		t.Fatalf("VirtualMB = %v, want 400", info.VirtualMB)
	}
	if math.Abs(info.SharedMB-20) > 1e-6 {
		t.Fatalf("SharedMB = %v, want 20", info.SharedMB)
	}
	// 102400 kB resident of 16384000 kB total.
	if math.Abs(info.UsagePercent-0.625) > 1e-6 {
		t.Fatalf("UsagePercent = %v, want 0.625", info.UsagePercent)
	}
}

func TestProcessByPIDNotFound(t *testing.T) {
	c := newFixtureCollector(t, map[string]string{"meminfo": meminfoFixture})
	if _, err := c.ProcessByPID(999); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected types.ErrNotFound, got %v", err)
	}
}

func TestProcessesByNameSkipsUnreadable(t *testing.T) {
	// PID 11 matches but has no status file; aggregates skip it.
	c := newFixtureCollector(t, map[string]string{
		"meminfo":    meminfoFixture,
		"10/comm":    "worker\n",
		"10/status":  statusFile(10, "worker", 100000, 50000, 10000),
		"11/comm":    "worker\n",
		"12/comm":    "bash\n",
		"12/status":  statusFile(12, "bash", 10000, 5000, 1000),
		"12/cmdline": "/bin/bash\x00",
	})

	infos, err := c.ProcessesByName("worker")
	if err != nil {
		t.Fatalf("ProcessesByName returned error: %v", err)
	}
	if len(infos) != 1 || infos[0].PID != 10 {
		t.Fatalf("expected only PID 10, got %+v", infos)
	}
}

func TestProcessesByNameNotFound(t *testing.T) {
	c := newFixtureCollector(t, map[string]string{
		"meminfo": meminfoFixture,
		"10/comm": "bash\n",
	})
	if _, err := c.ProcessesByName("postgres"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected types.ErrNotFound, got %v", err)
	}
}

func TestAllProcessesSortedByPID(t *testing.T) {
	c := newFixtureCollector(t, map[string]string{
		"meminfo":    meminfoFixture,
		"200/comm":   "b\n",
		"200/status": statusFile(200, "b", 1000, 500, 0),
		"30/comm":    "a\n",
		"30/status":  statusFile(30, "a", 1000, 500, 0),
	})

	infos, err := c.AllProcesses()
	if err != nil {
		t.Fatalf("AllProcesses returned error: %v", err)
	}
	if len(infos) != 2 || infos[0].PID != 30 || infos[1].PID != 200 {
		t.Fatalf("expected PIDs [30 200], got %+v", infos)
	}
}

func TestProcessNamesDeduped(t *testing.T) {
	c := newFixtureCollector(t, map[string]string{
		"10/comm": "nginx\n",
		"11/comm": "nginx\n",
		"12/comm": "bash\n",
	})

	names, err := c.ProcessNames()
	if err != nil {
		t.Fatalf("ProcessNames returned error: %v", err)
	}
	if len(names) != 2 || names[0] != "bash" || names[1] != "nginx" {
		t.Fatalf("expected [bash nginx], got %v", names)
	}
}
