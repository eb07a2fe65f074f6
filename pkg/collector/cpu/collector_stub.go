//go:build !linux
// +build !linux

package cpu

import (
	"context"
	"errors"
	"time"

	"github.com/sysglance/sysglance/pkg/types"
)

var errUnsupported = errors.New("cpu collector requires linux")

// Collector is a placeholder on non-Linux platforms.
type Collector struct{}

// NewCollector returns an error because the scheduler counters live in
// procfs, which only Linux provides.
func NewCollector(window time.Duration) (*Collector, error) {
	return nil, errUnsupported
}

// Info always fails on unsupported platforms.
func (c *Collector) Info(ctx context.Context) (types.CPUInfo, error) {
	return types.CPUInfo{}, errUnsupported
}

// ProcessByPID always fails on unsupported platforms.
func (c *Collector) ProcessByPID(ctx context.Context, pid int) (types.CPUProcessInfo, error) {
	return types.CPUProcessInfo{}, errUnsupported
}

// ProcessesByName always fails on unsupported platforms.
func (c *Collector) ProcessesByName(ctx context.Context, name string) ([]types.CPUProcessInfo, error) {
	return nil, errUnsupported
}

// TopProcesses always fails on unsupported platforms.
func (c *Collector) TopProcesses(ctx context.Context, limit int) ([]types.CPUProcessInfo, error) {
	return nil, errUnsupported
}
