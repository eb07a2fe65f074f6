package ram

import (
	"sort"

	"github.com/sysglance/sysglance/pkg/proctab"
)

// kbToMB converts a meminfo kilobyte gauge to megabytes. Nil means the
// kernel did not report the field.
func kbToMB(v *uint64) float64 {
	if v == nil {
		return 0
	}
	return float64(*v) / 1024
}

func bytesToMB(v uint64) float64 {
	return float64(v) / (1024 * 1024)
}

// dedupeNames collapses entries to their distinct names, sorted.
func dedupeNames(entries []proctab.Entry) []string {
	seen := make(map[string]struct{}, len(entries))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Name]; dup {
			continue
		}
		seen[e.Name] = struct{}{}
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}
