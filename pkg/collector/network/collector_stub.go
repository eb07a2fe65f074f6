//go:build !linux
// +build !linux

package network

import (
	"context"
	"errors"
	"time"

	"github.com/sysglance/sysglance/pkg/types"
)

var errUnsupported = errors.New("network collector requires linux")

// Collector is a stub on non-Linux platforms.
type Collector struct{}

func NewCollector(window time.Duration) (*Collector, error) {
	return nil, errUnsupported
}

func (c *Collector) Interfaces(ctx context.Context) ([]types.NetworkInterfaceInfo, error) {
	return nil, errUnsupported
}

func (c *Collector) InterfaceNames() ([]string, error) {
	return nil, errUnsupported
}

func (c *Collector) ProcessByPID(ctx context.Context, pid int) (types.NetworkProcessInfo, error) {
	return types.NetworkProcessInfo{}, errUnsupported
}

func (c *Collector) ProcessesByName(ctx context.Context, name string) ([]types.NetworkProcessInfo, error) {
	return nil, errUnsupported
}
