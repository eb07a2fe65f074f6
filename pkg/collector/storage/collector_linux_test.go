//go:build linux

package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"github.com/sysglance/sysglance/pkg/types"
)

const mountinfoFixture = `22 1 8:1 / / rw,relatime shared:1 - ext4 /dev/sda1 rw
28 22 8:17 / /usr rw,relatime - ext4 /dev/sdb1 rw
30 22 0:25 / /tmp rw,nosuid - tmpfs tmpfs rw
31 22 0:4 / /proc rw,nosuid,nodev,noexec - proc proc rw
33 22 8:33 / /data rw,relatime - xfs /dev/sdc1 rw
`

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

func symlinkTree(t *testing.T, dir string, links map[string]string) {
	t.Helper()
	for name, target := range links {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", path, err)
		}
		if err := os.Symlink(target, path); err != nil {
			t.Fatalf("symlink %s: %v", path, err)
		}
	}
}

func newFixtureCollector(t *testing.T, files map[string]string, links map[string]string) *Collector {
	t.Helper()
	dir := t.TempDir()
	writeTree(t, dir, files)
	symlinkTree(t, dir, links)
	c, err := newCollector(dir, 100*time.Millisecond, []string{"tmpfs", "proc"})
	if err != nil {
		t.Fatalf("newCollector: %v", err)
	}
	c.selfPID = 1
	return c
}

func TestVolumesExcludesPseudoFilesystems(t *testing.T) {
	c := newFixtureCollector(t, map[string]string{"1/mountinfo": mountinfoFixture, "1/comm": "init\n"}, nil)

	orig := statfs
	t.Cleanup(func() { statfs = orig })
	statfs = func(path string, st *unix.Statfs_t) error {
		switch path {
		case "/":
			*st = unix.Statfs_t{Blocks: 1000, Bfree: 200, Bavail: 150, Frsize: 4096}
		case "/usr":
			*st = unix.Statfs_t{Blocks: 500, Bfree: 100, Bavail: 80, Frsize: 0, Bsize: 1024}
		case "/data":
			*st = unix.Statfs_t{}
		default:
			return fmt.Errorf("unexpected statfs path %q", path)
		}
		return nil
	}

	vols, err := c.Volumes()
	if err != nil {
		t.Fatalf("Volumes: %v", err)
	}
	if len(vols) != 3 {
		t.Fatalf("got %d volumes, want 3: %+v", len(vols), vols)
	}

	root := vols[0]
	if root.Device != "/dev/sda1" || root.MountPoint != "/" || root.FSType != "ext4" {
		t.Fatalf("unexpected root volume identity: %+v", root)
	}
	if root.TotalBytes != 4096000 || root.UsedBytes != 3276800 || root.AvailableBytes != 614400 {
		t.Fatalf("unexpected root capacity: %+v", root)
	}
	if math.Abs(root.UsagePercent-80) > 1e-9 {
		t.Fatalf("root usage = %v, want 80", root.UsagePercent)
	}

	usr := vols[1]
	if usr.TotalBytes != 512000 || usr.UsedBytes != 409600 || usr.AvailableBytes != 81920 {
		t.Fatalf("Bsize fallback not applied: %+v", usr)
	}

	data := vols[2]
	if data.TotalBytes != 0 || data.UsagePercent != 0 {
		t.Fatalf("zero-block filesystem should stay zeroed: %+v", data)
	}
}

func TestVolumesKeepsRecordWhenStatfsFails(t *testing.T) {
	c := newFixtureCollector(t, map[string]string{"1/mountinfo": mountinfoFixture, "1/comm": "init\n"}, nil)

	orig := statfs
	t.Cleanup(func() { statfs = orig })
	statfs = func(path string, st *unix.Statfs_t) error {
		return errors.New("permission denied")
	}

	vols, err := c.Volumes()
	if err != nil {
		t.Fatalf("Volumes: %v", err)
	}
	if len(vols) != 3 {
		t.Fatalf("got %d volumes, want 3", len(vols))
	}
	for _, v := range vols {
		if v.Device == "" || v.TotalBytes != 0 || v.UsagePercent != 0 {
			t.Fatalf("statfs failure should keep identity and zero capacity: %+v", v)
		}
	}
}

func TestProcessesByNameComputesRates(t *testing.T) {
	c := newFixtureCollector(t, map[string]string{
		"1/mountinfo": mountinfoFixture,
		"1/comm":      "init\n",
		"10/comm":     "dbwriter\n",
	}, map[string]string{
		"10/exe":  "/usr/bin/dbwriter",
		"10/fd/0": "/dev/null",
		"10/fd/1": "/dev/null",
		"10/fd/3": "/data/wal.log",
	})

	calls := 0
	c.readIO = func(pids []int) map[int]procfs.ProcIO {
		calls++
		if calls == 1 {
			return map[int]procfs.ProcIO{10: {ReadBytes: 1000, WriteBytes: 0}}
		}
		return map[int]procfs.ProcIO{10: {ReadBytes: 3000, WriteBytes: 1000}}
	}

	infos, err := c.ProcessesByName(context.Background(), "dbwriter")
	if err != nil {
		t.Fatalf("ProcessesByName: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("got %d processes, want 1", len(infos))
	}
	got := infos[0]
	if got.PID != 10 || got.Name != "dbwriter" {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if math.Abs(got.ReadBytesPerSec-20000) > 1e-6 {
		t.Fatalf("read rate = %v, want 20000", got.ReadBytesPerSec)
	}
	if math.Abs(got.WriteBytesPerSec-10000) > 1e-6 {
		t.Fatalf("write rate = %v, want 10000", got.WriteBytesPerSec)
	}
	if got.OpenFiles != 3 {
		t.Fatalf("open files = %d, want 3", got.OpenFiles)
	}
	if got.MainDevice != "/dev/sdb1" {
		t.Fatalf("main device = %q, want /dev/sdb1", got.MainDevice)
	}
}

func TestProcessesByNameZeroRatesWhenIOUnreadable(t *testing.T) {
	c := newFixtureCollector(t, map[string]string{
		"1/mountinfo": mountinfoFixture,
		"1/comm":      "init\n",
		"10/comm":     "quietd\n",
	}, nil)
	c.window = time.Millisecond

	infos, err := c.ProcessesByName(context.Background(), "quietd")
	if err != nil {
		t.Fatalf("ProcessesByName: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("got %d processes, want 1", len(infos))
	}
	got := infos[0]
	if got.ReadBytesPerSec != 0 || got.WriteBytesPerSec != 0 {
		t.Fatalf("unreadable I/O should yield zero rates: %+v", got)
	}
	if got.PID != 10 || got.Name != "quietd" {
		t.Fatalf("record should survive unreadable I/O: %+v", got)
	}
}

func TestReadProcIOParsesCounters(t *testing.T) {
	c := newFixtureCollector(t, map[string]string{
		"10/comm": "dbwriter\n",
		"10/io":   "rchar: 5000\nwchar: 2000\nsyscr: 10\nsyscw: 5\nread_bytes: 1000\nwrite_bytes: 250\ncancelled_write_bytes: 0\n",
	}, nil)

	out := c.readProcIO([]int{10, 999})
	io, ok := out[10]
	if !ok {
		t.Fatalf("pid 10 missing from counters: %v", out)
	}
	if io.ReadBytes != 1000 || io.WriteBytes != 250 {
		t.Fatalf("unexpected counters: %+v", io)
	}
	if _, ok := out[999]; ok {
		t.Fatal("vanished pid should not appear in counters")
	}
}

func TestProcessByPIDNotFound(t *testing.T) {
	c := newFixtureCollector(t, map[string]string{"1/comm": "init\n"}, nil)
	if _, err := c.ProcessByPID(context.Background(), 4242); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, types.ErrNotFound)
	}
}

func TestProcessesByNameNoMatch(t *testing.T) {
	c := newFixtureCollector(t, map[string]string{"1/comm": "init\n"}, nil)
	if _, err := c.ProcessesByName(context.Background(), "ghost"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, types.ErrNotFound)
	}
}

func TestFillCapacityGuards(t *testing.T) {
	var vol types.StorageInfo
	fillCapacity(&vol, &unix.Statfs_t{Blocks: 100, Bfree: 150, Bavail: 0, Frsize: 4096})
	if vol.TotalBytes != 409600 {
		t.Fatalf("total = %d, want 409600", vol.TotalBytes)
	}
	if vol.UsedBytes != 0 || vol.UsagePercent != 0 {
		t.Fatalf("free exceeding total should leave usage zero: %+v", vol)
	}
}
