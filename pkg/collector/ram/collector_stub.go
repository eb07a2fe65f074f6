//go:build !linux
// +build !linux

package ram

import (
	"errors"

	"github.com/sysglance/sysglance/pkg/types"
)

var errUnsupported = errors.New("ram collector requires linux")

// Collector is a placeholder on non-Linux platforms.
type Collector struct{}

// NewCollector returns an error because meminfo is a procfs interface.
func NewCollector() (*Collector, error) {
	return nil, errUnsupported
}

// Info always fails on unsupported platforms.
func (c *Collector) Info() (types.RAMInfo, error) {
	return types.RAMInfo{}, errUnsupported
}

// ProcessByPID always fails on unsupported platforms.
func (c *Collector) ProcessByPID(pid int) (types.RAMProcessInfo, error) {
	return types.RAMProcessInfo{}, errUnsupported
}

// ProcessesByName always fails on unsupported platforms.
func (c *Collector) ProcessesByName(name string) ([]types.RAMProcessInfo, error) {
	return nil, errUnsupported
}

// AllProcesses always fails on unsupported platforms.
func (c *Collector) AllProcesses() ([]types.RAMProcessInfo, error) {
	return nil, errUnsupported
}

// ProcessNames always fails on unsupported platforms.
func (c *Collector) ProcessNames() ([]string, error) {
	return nil, errUnsupported
}
