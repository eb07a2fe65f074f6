package ui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sysglance/sysglance/pkg/report"
	"github.com/sysglance/sysglance/pkg/types"
)

// Options controls text rendering. JSON output never carries color.
type Options struct {
	Color  bool
	Window time.Duration
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RenderSystem writes a whole-machine report: host header, then the
// CPU, GPU, RAM, Storage, Network sections, the top CPU consumers, and
// any degraded-domain warnings.
func RenderSystem(w io.Writer, snap *report.SystemSnapshot, opts Options) error {
	var buf bytes.Buffer
	writeHost(&buf, snap.Host, opts)
	writeCPUSection(&buf, snap.CPU, opts)
	writeGPUSection(&buf, snap.GPU, opts)
	writeRAMSection(&buf, snap.RAM, opts)
	writeStorageSection(&buf, snap.Storage, opts)
	writeNetworkSection(&buf, snap.Network, opts)
	writeTopCPU(&buf, snap.TopCPU, opts)
	writeDegraded(&buf, snap.Degraded, opts)
	_, err := w.Write(buf.Bytes())
	return err
}

// RenderProcess writes a per-process report. A domain where the query
// matched nothing gets a "no usage found" line instead of a table.
func RenderProcess(w io.Writer, rep *report.ProcessReport, opts Options) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Process report for %q\n\n", rep.Query)

	fmt.Fprintln(&buf, opts.header("[CPU]"))
	if len(rep.CPU) == 0 {
		fmt.Fprintf(&buf, "no cpu usage found for %q\n", rep.Query)
	} else {
		writeCPUProcessTable(&buf, rep.CPU)
	}

	fmt.Fprintln(&buf, opts.header("\n[GPU]"))
	if len(rep.GPU) == 0 {
		fmt.Fprintf(&buf, "no gpu usage found for %q\n", rep.Query)
	} else {
		writeGPUProcessTable(&buf, rep.GPU)
	}

	fmt.Fprintln(&buf, opts.header("\n[RAM]"))
	if len(rep.RAM) == 0 {
		fmt.Fprintf(&buf, "no ram usage found for %q\n", rep.Query)
	} else {
		tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PID\tNAME\tRESIDENT\tVIRTUAL\tSHARED\tRAM%")
		for _, p := range rep.RAM {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				p.PID, p.Name, memMB(p.ResidentMB), memMB(p.VirtualMB), memMB(p.SharedMB), pct(p.UsagePercent))
		}
		tw.Flush()
	}

	fmt.Fprintln(&buf, opts.header("\n[Storage]"))
	if len(rep.Storage) == 0 {
		fmt.Fprintf(&buf, "no storage usage found for %q\n", rep.Query)
	} else {
		tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PID\tNAME\tREAD/s\tWRITE/s\tOPEN FILES\tDEVICE")
		for _, p := range rep.Storage {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
				p.PID, p.Name, rate(p.ReadBytesPerSec), rate(p.WriteBytesPerSec), p.OpenFiles, dash(p.MainDevice))
		}
		tw.Flush()
	}

	fmt.Fprintln(&buf, opts.header("\n[Network]"))
	if len(rep.Network) == 0 {
		fmt.Fprintf(&buf, "no network usage found for %q\n", rep.Query)
	} else {
		tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PID\tNAME\tRX/s\tTX/s\tCONNS\tPORTS")
		for _, p := range rep.Network {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
				p.PID, p.Name, rate(p.RecvBytesPerSec), rate(p.TransmitBytesPerSec), p.Connections, portList(p.Ports))
		}
		tw.Flush()
	}

	writeDegraded(&buf, rep.Degraded, opts)
	_, err := w.Write(buf.Bytes())
	return err
}

func writeHost(buf *bytes.Buffer, h report.HostInfo, opts Options) {
	line := h.Hostname
	if h.Platform != "" {
		line += " | " + h.Platform
	}
	if h.KernelVersion != "" {
		line += " | kernel " + h.KernelVersion
	}
	fmt.Fprintln(buf, opts.emph(line))
	fmt.Fprintf(buf, "up %s | load %.2f %.2f %.2f | sampled %s",
		formatUptime(h.UptimeSec), h.Load1, h.Load5, h.Load15, h.Timestamp.Format(time.RFC3339))
	if opts.Window > 0 {
		fmt.Fprintf(buf, " (window %v)", opts.Window)
	}
	fmt.Fprint(buf, "\n\n")
}

func writeCPUSection(buf *bytes.Buffer, cpu *types.CPUInfo, opts Options) {
	if cpu == nil {
		return
	}
	fmt.Fprintln(buf, opts.header("[CPU]"))
	if cpu.ModelName != "" {
		fmt.Fprintf(buf, "%s (%d physical / %d logical)\n", cpu.ModelName, cpu.PhysicalCores, cpu.LogicalCPUs)
	}
	fmt.Fprintf(buf, "usage %s", pct(cpu.UsagePercent))
	if cpu.AvgFreqMHz > 0 {
		fmt.Fprintf(buf, " | avg freq %.0f MHz", cpu.AvgFreqMHz)
	}
	if cpu.AvgTempC > 0 {
		fmt.Fprintf(buf, " | avg temp %.1f°C", cpu.AvgTempC)
	}
	fmt.Fprintln(buf)
	if len(cpu.Cores) > 0 {
		tw := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CORE\tUSAGE\tFREQ\tMIN\tMAX\tTEMP")
		for _, core := range cpu.Cores {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				core.ID, pct(core.UsagePercent), mhzPtr(core.FreqMHz), mhzPtr(core.MinFreqMHz), mhzPtr(core.MaxFreqMHz), tempPtr(core.TempC))
		}
		tw.Flush()
	}
	fmt.Fprintln(buf)
}

func writeGPUSection(buf *bytes.Buffer, gpus []types.GPUInfo, opts Options) {
	if len(gpus) == 0 {
		return
	}
	fmt.Fprintln(buf, opts.header("[GPU]"))
	tw := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IDX\tVENDOR\tNAME\tMEMORY\tUSAGE\tTEMP")
	for _, g := range gpus {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s / %s\t%s\t%s\n",
			g.Index, g.Vendor, g.Name, memMB(g.UsedMemoryMB), memMB(g.TotalMemoryMB), pct(g.UsagePercent), tempPtr(g.TempC))
	}
	tw.Flush()
	for _, g := range gpus {
		if len(g.Processes) == 0 {
			continue
		}
		fmt.Fprintf(buf, "gpu %d processes:\n", g.Index)
		writeGPUProcessTable(buf, g.Processes)
	}
	fmt.Fprintln(buf)
}

func writeGPUProcessTable(buf *bytes.Buffer, procs []types.GPUProcessInfo) {
	tw := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tNAME\tGPU\tMEMORY\tUSAGE")
	for _, p := range procs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", p.PID, p.Name, p.GPUIndex, memMB(p.MemoryMB), pct(p.UsagePercent))
	}
	tw.Flush()
}

func writeRAMSection(buf *bytes.Buffer, ram *types.RAMInfo, opts Options) {
	if ram == nil {
		return
	}
	fmt.Fprintln(buf, opts.header("[RAM]"))
	fmt.Fprintf(buf, "total %s | used %s (%s) | free %s | available %s\n",
		memMB(ram.TotalMB), memMB(ram.UsedMB), pct(ram.UsagePercent), memMB(ram.FreeMB), memMB(ram.AvailableMB))
	fmt.Fprintf(buf, "cache %s | shared %s | swap %s / %s\n\n",
		memMB(ram.CacheMB), memMB(ram.SharedMB), memMB(ram.SwapUsedMB), memMB(ram.SwapTotalMB))
}

func writeStorageSection(buf *bytes.Buffer, vols []types.StorageInfo, opts Options) {
	if len(vols) == 0 {
		return
	}
	fmt.Fprintln(buf, opts.header("[Storage]"))
	tw := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tMOUNT\tTYPE\tSIZE\tUSED\tAVAIL\tUSE%")
	for _, v := range vols {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			v.Device, v.MountPoint, v.FSType, size(v.TotalBytes), size(v.UsedBytes), size(v.AvailableBytes), pct(v.UsagePercent))
	}
	tw.Flush()
	fmt.Fprintln(buf)
}

func writeNetworkSection(buf *bytes.Buffer, ifaces []types.NetworkInterfaceInfo, opts Options) {
	if len(ifaces) == 0 {
		return
	}
	fmt.Fprintln(buf, opts.header("[Network]"))
	tw := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IFACE\tIP\tMAC\tSTATE\tMTU\tSPEED\tRX/s\tTX/s\tRX TOTAL\tTX TOTAL")
	for _, i := range ifaces {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			i.Name, dash(i.IPAddress), dash(i.MACAddress), upDown(i.Up), i.MTU, speedPtr(i.SpeedMbps),
			rate(i.RecvBytesPerSec), rate(i.TransmitBytesPerSec), size(i.TotalRecvBytes), size(i.TotalTransmitBytes))
	}
	tw.Flush()
	fmt.Fprintln(buf)
}

func writeTopCPU(buf *bytes.Buffer, top []types.CPUProcessInfo, opts Options) {
	if len(top) == 0 {
		return
	}
	fmt.Fprintln(buf, opts.header(fmt.Sprintf("[Top %d by CPU]", len(top))))
	writeCPUProcessTable(buf, top)
	fmt.Fprintln(buf)
}

func writeCPUProcessTable(buf *bytes.Buffer, procs []types.CPUProcessInfo) {
	tw := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tNAME\tCPU\tTIME\tTHREADS\tSTATE\tNICE\tAFFINITY")
	for _, p := range procs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f ms\t%d\t%s\t%d\t0x%x\n",
			p.PID, p.Name, pct(p.UsagePercent), p.CPUTimeMs, p.Threads, p.State, p.Nice, p.Affinity)
	}
	tw.Flush()
}

func writeDegraded(buf *bytes.Buffer, degraded map[string]string, opts Options) {
	if len(degraded) == 0 {
		return
	}
	domains := make([]string, 0, len(degraded))
	for domain := range degraded {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	for _, domain := range domains {
		fmt.Fprintln(buf, opts.warn(fmt.Sprintf("warning: %s unavailable: %s", domain, degraded[domain])))
	}
}

func (o Options) header(s string) string {
	if !o.Color {
		return s
	}
	return bold + sky + s + reset
}

func (o Options) emph(s string) string {
	if !o.Color {
		return s
	}
	return bold + s + reset
}

func (o Options) warn(s string) string {
	if !o.Color {
		return s
	}
	return gold + s + reset
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func memMB(v float64) string {
	if v <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(v * 1024 * 1024))
}

func rate(v float64) string {
	if v <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(v)) + "/s"
}

func size(v uint64) string {
	return humanize.IBytes(v)
}

func mhzPtr(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f MHz", *v)
}

func tempPtr(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f°C", *v)
}

func speedPtr(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d Mb/s", *v)
}

func portList(ports []uint16) string {
	if len(ports) == 0 {
		return "-"
	}
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(int(p))
	}
	return strings.Join(parts, ", ")
}

func upDown(up bool) string {
	if up {
		return "up"
	}
	return "down"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatUptime(sec uint64) string {
	d := time.Duration(sec) * time.Second
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}
