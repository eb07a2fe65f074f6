//go:build !linux
// +build !linux

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sysglance/sysglance/pkg/types"
)

var errUnsupported = errors.New("storage collector requires linux")

// Collector is a stub on non-Linux platforms.
type Collector struct{}

func NewCollector(window time.Duration, excludeFS []string) (*Collector, error) {
	return nil, errUnsupported
}

func (c *Collector) Volumes() ([]types.StorageInfo, error) {
	return nil, errUnsupported
}

func (c *Collector) ProcessByPID(ctx context.Context, pid int) (types.StorageProcessInfo, error) {
	return types.StorageProcessInfo{}, errUnsupported
}

func (c *Collector) ProcessesByName(ctx context.Context, name string) ([]types.StorageProcessInfo, error) {
	return nil, errUnsupported
}
