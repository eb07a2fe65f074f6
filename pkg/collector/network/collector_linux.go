//go:build linux
// +build linux

package network

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"

	"github.com/sysglance/sysglance/pkg/proctab"
	"github.com/sysglance/sysglance/pkg/sampling"
	"github.com/sysglance/sysglance/pkg/types"
)

const loopback = "lo"

// interfaceAddr allows tests to stub address resolution.
var interfaceAddr = ipv4Addr

// Collector reads interface counters from the procfs network device
// table and link attributes from sysfs.
type Collector struct {
	fs     procfs.FS
	sys    sysfs.FS
	window time.Duration

	// readCounters allows tests to substitute deterministic counter sets.
	readCounters func() (map[string]procfs.NetDevLine, error)
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
	c := &Collector{fs: fs, sys: sys, window: window}
	c.readCounters = c.readNetDev
	return c, nil
}

// Interfaces samples counters for every interface except the loopback
// and merges in link attributes. Speed stays nil when sysfs reports it
// as unknown.
func (c *Collector) Interfaces(ctx context.Context) ([]types.NetworkInterfaceInfo, error) {
	pair, err := sampling.Take(ctx, c.readCounters, c.window)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(pair.After))
	for name := range pair.After {
		if name == loopback {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	class := c.netClass()
	infos := make([]types.NetworkInterfaceInfo, 0, len(names))
	for _, name := range names {
		before, after := pair.Before[name], pair.After[name]
		info := types.NetworkInterfaceInfo{
			Name:                name,
			IPAddress:           interfaceAddr(name),
			RecvBytesPerSec:     sampling.Rate(before.RxBytes, after.RxBytes, pair.Window),
			TransmitBytesPerSec: sampling.Rate(before.TxBytes, after.TxBytes, pair.Window),
			TotalRecvBytes:      after.RxBytes,
			TotalTransmitBytes:  after.TxBytes,
		}
		if iface, ok := class[name]; ok {
			info.MACAddress = iface.Address
			info.Up = strings.Contains(iface.OperState, "up")
			if iface.MTU != nil {
				info.MTU = int(*iface.MTU)
			}
			if iface.Speed != nil && *iface.Speed > 0 {
				speed := *iface.Speed
				info.SpeedMbps = &speed
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// InterfaceNames lists every interface except the loopback.
func (c *Collector) InterfaceNames() ([]string, error) {
	dev, err := c.fs.NetDev()
	if err != nil {
		return nil, fmt.Errorf("reading interface counters: %w", err)
	}
	names := make([]string, 0, len(dev))
	for name := range dev {
		if name == loopback {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ProcessByPID reports socket usage for one process.
func (c *Collector) ProcessByPID(ctx context.Context, pid int) (types.NetworkProcessInfo, error) {
	p, err := c.fs.Proc(pid)
	if err != nil {
		return types.NetworkProcessInfo{}, fmt.Errorf("pid %d: %w", pid, types.ErrNotFound)
	}
	infos, err := c.sample(ctx, []proctab.Entry{{PID: pid, Name: proctab.NameFor(p)}})
	if err != nil {
		return types.NetworkProcessInfo{}, err
	}
	return infos[0], nil
}

// ProcessesByName reports socket usage for every process whose name
// contains name.
func (c *Collector) ProcessesByName(ctx context.Context, name string) ([]types.NetworkProcessInfo, error) {
	entries, err := proctab.Match(c.fs, name)
	if err != nil {
		return nil, err
	}
	return c.sample(ctx, entries)
}

// sample counts each process's sockets and attributes the machine-wide
// traffic rates to it; procfs byte counters cannot be split per process.
func (c *Collector) sample(ctx context.Context, entries []proctab.Entry) ([]types.NetworkProcessInfo, error) {
	pair, err := sampling.Take(ctx, c.readCounters, c.window)
	if err != nil {
		return nil, err
	}
	rxRate, txRate := machineRates(pair)

	infos := make([]types.NetworkProcessInfo, 0, len(entries))
	for _, e := range entries {
		p, err := c.fs.Proc(e.PID)
		if err != nil {
			continue // exited during the window
		}
		name := e.Name
		if name == "" {
			name = proctab.NameFor(p)
		}
		info := types.NetworkProcessInfo{
			PID:                 e.PID,
			Name:                name,
			RecvBytesPerSec:     rxRate,
			TransmitBytesPerSec: txRate,
		}
		c.fillSockets(p, &info)
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("sampling processes: %w", types.ErrNotFound)
	}
	return infos, nil
}

// fillSockets counts socket descriptors and resolves their inodes to
// local ports through the TCP socket tables.
func (c *Collector) fillSockets(p procfs.Proc, info *types.NetworkProcessInfo) {
	targets, err := p.FileDescriptorTargets()
	if err != nil {
		return
	}
	inodes := make(map[uint64]struct{})
	for _, target := range targets {
		var inode uint64
		if _, err := fmt.Sscanf(target, "socket:[%d]", &inode); err == nil {
			info.Connections++
			inodes[inode] = struct{}{}
		}
	}
	if len(inodes) == 0 {
		return
	}
	info.Ports = c.localPorts(inodes)
}

func (c *Collector) localPorts(inodes map[uint64]struct{}) []uint16 {
	seen := make(map[uint16]struct{})
	for _, read := range []func() (procfs.NetTCP, error){c.fs.NetTCP, c.fs.NetTCP6} {
		socks, err := read()
		if err != nil {
			continue
		}
		for _, s := range socks {
			if _, ok := inodes[s.Inode]; ok {
				seen[uint16(s.LocalPort)] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	ports := make([]uint16, 0, len(seen))
	for port := range seen {
		ports = append(ports, port)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports
}

func (c *Collector) readNetDev() (map[string]procfs.NetDevLine, error) {
	dev, err := c.fs.NetDev()
	if err != nil {
		return nil, fmt.Errorf("reading interface counters: %w", err)
	}
	return dev, nil
}

func (c *Collector) netClass() map[string]sysfs.NetClassIface {
	class, err := c.sys.NetClass()
	if err != nil {
		return nil
	}
	return class
}

// machineRates sums traffic rates across every interface except the
// loopback.
func machineRates(pair sampling.Pair[string, procfs.NetDevLine]) (rx, tx float64) {
	pair.Each(func(name string, before, after procfs.NetDevLine) {
		if name == loopback {
			return
		}
		rx += sampling.Rate(before.RxBytes, after.RxBytes, pair.Window)
		tx += sampling.Rate(before.TxBytes, after.TxBytes, pair.Window)
	})
	return rx, tx
}

func ipv4Addr(name string) string {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return ""
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}
