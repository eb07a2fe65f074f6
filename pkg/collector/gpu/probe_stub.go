//go:build !linux
// +build !linux

package gpu

import "errors"

var errUnsupported = errors.New("gpu backends require linux")

func probeNVIDIA(opts Options) (Backend, error) {
	return nil, errUnsupported
}

func probeAMD(opts Options) (Backend, error) {
	return nil, errUnsupported
}
