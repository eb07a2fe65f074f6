// Package proctab resolves process names and matches them against user
// queries. Every collector that answers by-name or by-PID questions goes
// through it so that "which processes are called X" means the same thing
// in all of them.
package proctab

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/prometheus/procfs"

	"github.com/sysglance/sysglance/pkg/types"
)

// Entry pairs a PID with its resolved short name.
type Entry struct {
	PID  int
	Name string
}

// NameFor resolves the short name of a process: comm when readable and
// non-empty, otherwise the basename of the first command-line token.
// Returns "" when neither source yields a name.
func NameFor(p procfs.Proc) string {
	if comm, err := p.Comm(); err == nil {
		if comm = strings.TrimSpace(comm); comm != "" {
			return comm
		}
	}
	return cmdlineName(p)
}

// NameForPID is NameFor with a stable fallback for processes that expose
// no readable name at all, such as kernel threads hidden by hidepid.
func NameForPID(fs procfs.FS, pid int) string {
	p, err := fs.Proc(pid)
	if err != nil {
		return fmt.Sprintf("pid-%d", pid)
	}
	if name := NameFor(p); name != "" {
		return name
	}
	return fmt.Sprintf("pid-%d", pid)
}

func cmdlineName(p procfs.Proc) string {
	args, err := p.CmdLine()
	if err != nil || len(args) == 0 {
		return ""
	}
	return filepath.Base(strings.TrimSpace(args[0]))
}

// Match returns every process whose name contains query, case
// sensitively, sorted by PID. A process whose comm does not match is
// retried against its command-line basename, which catches processes
// that rewrite their comm. Returns types.ErrNotFound when nothing
// matches.
func Match(fs procfs.FS, query string) ([]Entry, error) {
	procs, err := fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	entries := make([]Entry, 0, 8)
	for _, p := range procs {
		comm, err := p.Comm()
		if err != nil {
			continue // exited between listing and read
		}
		comm = strings.TrimSpace(comm)
		if comm != "" && strings.Contains(comm, query) {
			entries = append(entries, Entry{PID: p.PID, Name: comm})
			continue
		}
		if base := cmdlineName(p); base != "" && strings.Contains(base, query) {
			entries = append(entries, Entry{PID: p.PID, Name: base})
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("process %q: %w", query, types.ErrNotFound)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].PID < entries[j].PID })
	return entries, nil
}

// All returns every visible process that has a resolvable name, sorted
// by PID. Processes that vanish mid-walk are skipped.
func All(fs procfs.FS) ([]Entry, error) {
	procs, err := fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	entries := make([]Entry, 0, len(procs))
	for _, p := range procs {
		if name := NameFor(p); name != "" {
			entries = append(entries, Entry{PID: p.PID, Name: name})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].PID < entries[j].PID })
	return entries, nil
}
