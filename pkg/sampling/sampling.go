// Package sampling implements the shared two-read delta window that
// rate-based collectors build on: read a counter set, wait, read again,
// and turn the deltas into per-second rates.
package sampling

import (
	"context"
	"fmt"
	"time"
)

// DefaultWindow is the delta window used when a caller does not set one.
const DefaultWindow = 100 * time.Millisecond

// Reader produces one observation of a counter set keyed by entity.
type Reader[K comparable, C any] func() (map[K]C, error)

// Pair holds two observations of the same counter set separated by Window.
type Pair[K comparable, C any] struct {
	Before map[K]C
	After  map[K]C
	Window time.Duration
}

// Take reads counters twice separated by window. Entities that appear
// only in the second read get a zero-valued baseline, so their first
// window can overstate rates; entities that disappear are dropped.
func Take[K comparable, C any](ctx context.Context, read Reader[K, C], window time.Duration) (Pair[K, C], error) {
	before, err := read()
	if err != nil {
		return Pair[K, C]{}, fmt.Errorf("first sample: %w", err)
	}
	if err := Sleep(ctx, window); err != nil {
		return Pair[K, C]{}, err
	}
	after, err := read()
	if err != nil {
		return Pair[K, C]{}, fmt.Errorf("second sample: %w", err)
	}
	return Pair[K, C]{Before: before, After: after, Window: window}, nil
}

// Each visits every entity present in the second observation. Entities
// without a first observation are visited with a zero-valued before.
func (p Pair[K, C]) Each(fn func(key K, before, after C)) {
	for key, after := range p.After {
		fn(key, p.Before[key], after)
	}
}

// Sleep blocks for d or until ctx is canceled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Rate converts a counter delta into a per-second rate. Negative deltas
// (counter reset, PID reuse) and non-positive windows yield 0.
func Rate(before, after uint64, window time.Duration) float64 {
	if after < before {
		return 0
	}
	secs := window.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(after-before) / secs
}

// Percent returns part/whole*100 clamped to [0, 100]. A non-positive
// whole yields 0, never NaN.
func Percent(part, whole float64) float64 {
	if whole <= 0 || part <= 0 {
		return 0
	}
	pct := part / whole * 100
	if pct > 100 {
		return 100
	}
	return pct
}
