//go:build linux
// +build linux

package gpu

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"

	"github.com/sysglance/sysglance/pkg/proctab"
	"github.com/sysglance/sysglance/pkg/sampling"
	"github.com/sysglance/sysglance/pkg/types"
)

const (
	amdVendorID  = "0x1002"
	renderPrefix = "/dev/dri/renderD"
)

// drmMarkers are the path fragments that count as evidence of GPU use
// in a process's memory mappings or open descriptors.
var drmMarkers = []string{"/dev/dri/", "amdgpu", "radeon"}

type amdCard struct {
	name  string // "card0"
	index int
	path  string // sysfs card directory
}

// probeAMD succeeds when at least one DRM card carries the AMD PCI
// vendor ID.
func probeAMD(opts Options) (Backend, error) {
	sysMount := opts.SysMount
	if sysMount == "" {
		sysMount = sysfs.DefaultMountPoint
	}
	procMount := opts.ProcMount
	if procMount == "" {
		procMount = procfs.DefaultMountPoint
	}
	cards, err := amdCards(sysMount)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("no amdgpu cards under %s", sysMount)
	}
	fs, err := procfs.NewFS(procMount)
	if err != nil {
		return nil, fmt.Errorf("opening procfs: %w", err)
	}
	sys, err := sysfs.NewFS(sysMount)
	if err != nil {
		return nil, fmt.Errorf("opening sysfs: %w", err)
	}
	return &amdBackend{fs: fs, sys: sys, cards: cards}, nil
}

// amdCards lists DRM cards whose PCI vendor is AMD, sorted by index.
func amdCards(sysMount string) ([]amdCard, error) {
	drmDir := filepath.Join(sysMount, "class/drm")
	entries, err := os.ReadDir(drmDir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", drmDir, err)
	}
	var cards []amdCard
	for _, e := range entries {
		index, ok := cardIndex(e.Name())
		if !ok {
			continue
		}
		path := filepath.Join(drmDir, e.Name())
		vendor, err := os.ReadFile(filepath.Join(path, "device/vendor"))
		if err != nil {
			continue
		}
		if !strings.Contains(string(vendor), amdVendorID) {
			continue
		}
		cards = append(cards, amdCard{name: e.Name(), index: index, path: path})
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].index < cards[j].index })
	return cards, nil
}

// cardIndex parses "cardN", rejecting connector entries like
// "card0-DP-1".
func cardIndex(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "card")
	if !ok {
		return 0, false
	}
	index, err := strconv.Atoi(rest)
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

type amdBackend struct {
	fs    procfs.FS
	sys   sysfs.FS
	cards []amdCard
}

func (b *amdBackend) Vendor() string { return VendorAMD }

// Devices lists every AMD card. Processes with DRM evidence land on the
// first card; procfs cannot attribute a mapping to a specific card.
func (b *amdBackend) Devices(ctx context.Context) ([]types.GPUInfo, error) {
	stats := b.drmStats()
	infos := make([]types.GPUInfo, 0, len(b.cards))
	for i, card := range b.cards {
		info := b.deviceInfo(card, stats)
		if i == 0 {
			if procs, err := b.allDRMProcesses(stats); err == nil {
				info.Processes = procs
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (b *amdBackend) DeviceByIndex(ctx context.Context, index int) (types.GPUInfo, error) {
	stats := b.drmStats()
	for _, card := range b.cards {
		if card.index == index {
			return b.deviceInfo(card, stats), nil
		}
	}
	return types.GPUInfo{}, fmt.Errorf("gpu %d: %w", index, types.ErrNotFound)
}

func (b *amdBackend) deviceInfo(card amdCard, stats map[string]sysfs.ClassDRMCardAMDGPUStats) types.GPUInfo {
	info := types.GPUInfo{Index: card.index, Vendor: VendorAMD, Name: b.productName(card)}
	if s, ok := stats[card.name]; ok {
		info.TotalMemoryMB = bytesToMB(s.MemoryVRAMSize)
		info.UsedMemoryMB = bytesToMB(s.MemoryVRAMUsed)
		info.UsagePercent = float64(s.GPUBusyPercent)
	}
	if temp, ok := b.temperature(card); ok {
		info.TempC = &temp
	}
	return info
}

func (b *amdBackend) drmStats() map[string]sysfs.ClassDRMCardAMDGPUStats {
	stats, err := b.sys.ClassDRMCardAMDGPUStats()
	if err != nil {
		return nil
	}
	byName := make(map[string]sysfs.ClassDRMCardAMDGPUStats, len(stats))
	for _, s := range stats {
		byName[s.Name] = s
	}
	return byName
}

// productName prefers the marketing name some server cards expose and
// falls back to a generic label.
func (b *amdBackend) productName(card amdCard) string {
	for _, rel := range []string{"device/product_name", "device/product_number"} {
		if raw, err := os.ReadFile(filepath.Join(card.path, rel)); err == nil {
			if name := strings.TrimSpace(string(raw)); name != "" {
				return name
			}
		}
	}
	return fmt.Sprintf("AMD GPU %d", card.index)
}

// temperature reads the card's first hwmon sensor, in millidegrees.
func (b *amdBackend) temperature(card amdCard) (float64, bool) {
	matches, err := filepath.Glob(filepath.Join(card.path, "device/hwmon/hwmon*/temp1_input"))
	if err != nil || len(matches) == 0 {
		return 0, false
	}
	raw, err := os.ReadFile(matches[0])
	if err != nil {
		return 0, false
	}
	milli, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, false
	}
	return float64(milli) / 1000, true
}

func (b *amdBackend) ProcessesByName(ctx context.Context, name string) ([]types.GPUProcessInfo, error) {
	entries, err := proctab.Match(b.fs, name)
	if err != nil {
		return nil, err
	}
	return b.matchEntries(entries)
}

func (b *amdBackend) ProcessesByPID(ctx context.Context, pid int) ([]types.GPUProcessInfo, error) {
	p, err := b.fs.Proc(pid)
	if err != nil {
		return nil, fmt.Errorf("pid %d: %w", pid, types.ErrNotFound)
	}
	return b.matchEntries([]proctab.Entry{{PID: pid, Name: proctab.NameFor(p)}})
}

// matchEntries keeps the candidates that show DRM evidence.
func (b *amdBackend) matchEntries(entries []proctab.Entry) ([]types.GPUProcessInfo, error) {
	stats := b.drmStats()
	var infos []types.GPUProcessInfo
	for _, e := range entries {
		p, err := b.fs.Proc(e.PID)
		if err != nil {
			continue
		}
		if !usesDRM(p) {
			continue
		}
		infos = append(infos, b.processInfo(p, e, stats))
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("gpu processes: %w", types.ErrNotFound)
	}
	return infos, nil
}

func (b *amdBackend) allDRMProcesses(stats map[string]sysfs.ClassDRMCardAMDGPUStats) ([]types.GPUProcessInfo, error) {
	entries, err := proctab.All(b.fs)
	if err != nil {
		return nil, err
	}
	var infos []types.GPUProcessInfo
	for _, e := range entries {
		p, err := b.fs.Proc(e.PID)
		if err != nil {
			continue
		}
		if !usesDRM(p) {
			continue
		}
		infos = append(infos, b.processInfo(p, e, stats))
	}
	return infos, nil
}

// processInfo approximates the process's GPU memory from its render
// node mappings and expresses usage as a share of the card's VRAM.
func (b *amdBackend) processInfo(p procfs.Proc, e proctab.Entry, stats map[string]sysfs.ClassDRMCardAMDGPUStats) types.GPUProcessInfo {
	card := b.cards[0]
	name := e.Name
	if name == "" {
		name = proctab.NameFor(p)
	}
	info := types.GPUProcessInfo{PID: e.PID, Name: name, GPUIndex: card.index}
	mapped := renderMappedBytes(p)
	info.MemoryMB = bytesToMB(mapped)
	if s, ok := stats[card.name]; ok && s.MemoryVRAMSize > 0 {
		info.UsagePercent = sampling.Percent(float64(mapped), float64(s.MemoryVRAMSize))
	}
	return info
}

// renderMappedBytes sums mappings of DRM render nodes. amdgpu exposes
// no per-process memory counter, so mapped size stands in for it.
func renderMappedBytes(p procfs.Proc) uint64 {
	maps, err := p.ProcMaps()
	if err != nil {
		return 0
	}
	var total uint64
	for _, m := range maps {
		if strings.HasPrefix(m.Pathname, renderPrefix) {
			total += uint64(m.EndAddr - m.StartAddr)
		}
	}
	return total
}

// usesDRM reports whether the process maps a DRM node or holds one
// open.
func usesDRM(p procfs.Proc) bool {
	if maps, err := p.ProcMaps(); err == nil {
		for _, m := range maps {
			for _, marker := range drmMarkers {
				if strings.Contains(m.Pathname, marker) {
					return true
				}
			}
		}
	}
	if targets, err := p.FileDescriptorTargets(); err == nil {
		for _, target := range targets {
			for _, marker := range drmMarkers {
				if strings.Contains(target, marker) {
					return true
				}
			}
		}
	}
	return false
}

func (b *amdBackend) Close() error { return nil }
