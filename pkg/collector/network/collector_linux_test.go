//go:build linux

package network

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/procfs"

	"github.com/sysglance/sysglance/pkg/sampling"
	"github.com/sysglance/sysglance/pkg/types"
)

const netDevFixture = `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo:     500       5    0    0    0     0          0         0      500       5    0    0    0     0       0          0
  eth0:    1000      10    0    0    0     0          0         0     2000      20    0    0    0     0       0          0
 wlan0:     300       3    0    0    0     0          0         0      400       4    0    0    0     0       0          0
`

const tcpFixture = `  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 0100007F:1F90 00000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 12345 1 0000000000000000 100 0 0 10 0
`

const tcp6Fixture = `  sl  local_address                         rem_address                        st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 00000000000000000000000000000000:01BB 00000000000000000000000000000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 67890 1 0000000000000000 100 0 0 10 0
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

func newFixtureCollector(t *testing.T, procFiles, sysFiles map[string]string, links map[string]string) *Collector {
	t.Helper()
	procDir := t.TempDir()
	sysDir := t.TempDir()
	writeTree(t, procDir, procFiles)
	writeTree(t, sysDir, sysFiles)
	symlinkTree(t, procDir, links)
	c, err := newCollector(procDir, sysDir, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("newCollector: %v", err)
	}
	return c
}

func stubInterfaceAddr(t *testing.T, addr string) {
	t.Helper()
	orig := interfaceAddr
	t.Cleanup(func() { interfaceAddr = orig })
	interfaceAddr = func(name string) string { return addr }
}

func TestInterfacesMergesCountersAndAttributes(t *testing.T) {
	c := newFixtureCollector(t, nil, map[string]string{
		"class/net/eth0/address":   "aa:bb:cc:dd:ee:01\n",
		"class/net/eth0/operstate": "up\n",
		"class/net/eth0/mtu":       "1500\n",
		"class/net/eth0/speed":     "1000\n",
	}, nil)
	stubInterfaceAddr(t, "192.168.1.5")

	calls := 0
	c.readCounters = func() (map[string]procfs.NetDevLine, error) {
		calls++
		if calls == 1 {
			return map[string]procfs.NetDevLine{
				"lo":   {RxBytes: 100, TxBytes: 100},
				"eth0": {RxBytes: 1000, TxBytes: 2000},
			}, nil
		}
		return map[string]procfs.NetDevLine{
			"lo":   {RxBytes: 200, TxBytes: 200},
			"eth0": {RxBytes: 3000, TxBytes: 4000},
		}, nil
	}

	infos, err := c.Interfaces(context.Background())
	if err != nil {
		t.Fatalf("Interfaces: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("got %d interfaces, want 1 (loopback excluded): %+v", len(infos), infos)
	}
	got := infos[0]
	if got.Name != "eth0" || got.IPAddress != "192.168.1.5" || got.MACAddress != "aa:bb:cc:dd:ee:01" {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if !got.Up || got.MTU != 1500 {
		t.Fatalf("unexpected link state: %+v", got)
	}
	if got.SpeedMbps == nil || *got.SpeedMbps != 1000 {
		t.Fatalf("speed = %v, want 1000", got.SpeedMbps)
	}
	if math.Abs(got.RecvBytesPerSec-20000) > 1e-6 || math.Abs(got.TransmitBytesPerSec-20000) > 1e-6 {
		t.Fatalf("unexpected rates: %+v", got)
	}
	if got.TotalRecvBytes != 3000 || got.TotalTransmitBytes != 4000 {
		t.Fatalf("unexpected totals: %+v", got)
	}
}

func TestInterfacesUnknownSpeedStaysNil(t *testing.T) {
	c := newFixtureCollector(t, nil, map[string]string{
		"class/net/eth0/address":   "aa:bb:cc:dd:ee:02\n",
		"class/net/eth0/operstate": "down\n",
		"class/net/eth0/mtu":       "1500\n",
		"class/net/eth0/speed":     "-1\n",
	}, nil)
	stubInterfaceAddr(t, "")

	c.readCounters = func() (map[string]procfs.NetDevLine, error) {
		return map[string]procfs.NetDevLine{"eth0": {}}, nil
	}

	infos, err := c.Interfaces(context.Background())
	if err != nil {
		t.Fatalf("Interfaces: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("got %d interfaces, want 1", len(infos))
	}
	got := infos[0]
	if got.SpeedMbps != nil {
		t.Fatalf("negative sysfs speed should stay nil, got %v", *got.SpeedMbps)
	}
	if got.Up {
		t.Fatal("operstate down should report Up=false")
	}
}

func TestInterfaceNamesExcludesLoopback(t *testing.T) {
	c := newFixtureCollector(t, map[string]string{"net/dev": netDevFixture}, nil, nil)

	names, err := c.InterfaceNames()
	if err != nil {
		t.Fatalf("InterfaceNames: %v", err)
	}
	if want := []string{"eth0", "wlan0"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
}

func TestProcessesByNameCountsSocketsAndPorts(t *testing.T) {
	c := newFixtureCollector(t, map[string]string{
		"10/comm":  "webservd\n",
		"net/tcp":  tcpFixture,
		"net/tcp6": tcp6Fixture,
	}, nil, map[string]string{
		"10/fd/0": "/dev/null",
		"10/fd/3": "socket:[12345]",
		"10/fd/4": "socket:[67890]",
		"10/fd/5": "socket:[12345]",
	})

	calls := 0
	c.readCounters = func() (map[string]procfs.NetDevLine, error) {
		calls++
		if calls == 1 {
			return map[string]procfs.NetDevLine{"eth0": {}}, nil
		}
		return map[string]procfs.NetDevLine{"eth0": {RxBytes: 1000, TxBytes: 500}}, nil
	}

	infos, err := c.ProcessesByName(context.Background(), "webservd")
	if err != nil {
		t.Fatalf("ProcessesByName: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("got %d processes, want 1", len(infos))
	}
	got := infos[0]
	if got.PID != 10 || got.Name != "webservd" {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if got.Connections != 3 {
		t.Fatalf("connections = %d, want 3", got.Connections)
	}
	if want := []uint16{443, 8080}; !reflect.DeepEqual(got.Ports, want) {
		t.Fatalf("ports = %v, want %v", got.Ports, want)
	}
	if math.Abs(got.RecvBytesPerSec-10000) > 1e-6 || math.Abs(got.TransmitBytesPerSec-5000) > 1e-6 {
		t.Fatalf("unexpected rates: %+v", got)
	}
}

func TestProcessesByNameNoMatch(t *testing.T) {
	c := newFixtureCollector(t, map[string]string{"10/comm": "bash\n"}, nil, nil)
	if _, err := c.ProcessesByName(context.Background(), "ghost"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, types.ErrNotFound)
	}
}

func TestProcessByPIDNotFound(t *testing.T) {
	c := newFixtureCollector(t, map[string]string{"10/comm": "bash\n"}, nil, nil)
	if _, err := c.ProcessByPID(context.Background(), 4242); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, types.ErrNotFound)
	}
}

func TestMachineRatesSkipsLoopback(t *testing.T) {
	pair := sampling.Pair[string, procfs.NetDevLine]{
		Before: map[string]procfs.NetDevLine{
			"lo":   {RxBytes: 0, TxBytes: 0},
			"eth0": {RxBytes: 1000, TxBytes: 0},
			"eth1": {RxBytes: 0, TxBytes: 500},
		},
		After: map[string]procfs.NetDevLine{
			"lo":   {RxBytes: 9999, TxBytes: 9999},
			"eth0": {RxBytes: 2000, TxBytes: 0},
			"eth1": {RxBytes: 0, TxBytes: 1500},
		},
		Window: time.Second,
	}
	rx, tx := machineRates(pair)
	if math.Abs(rx-1000) > 1e-9 {
		t.Fatalf("rx = %v, want 1000", rx)
	}
	if math.Abs(tx-1000) > 1e-9 {
		t.Fatalf("tx = %v, want 1000", tx)
	}
}
