//go:build !linux

package dyplodev

import (
	"github.com/topic-embedded-products/dyplo"
)

// Device is not available on this platform.
type Device struct {
	dyplo.Provider
}

// Open always fails on this platform.
func Open(cfg Config, opts ...Option) (*Device, error) {
	return nil, ErrUnsupported
}

// Close is no-op.
func (d *Device) Close() error {
	return nil
}
