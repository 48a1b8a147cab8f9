// Package dyplodev implements dyplo.Provider on top of the dyplo kernel
// driver device files.
package dyplodev

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrUnsupported is returned on platforms without dyplo driver.
var ErrUnsupported = errors.New("dyplo driver is only available on linux")

// Config holds device file locations.
type Config struct {
	Control     string // control device
	DMA         string // DMA fifo device pattern, formatted with index
	Cfg         string // node config device pattern, formatted with node id
	Bitstreams  string // partial images directory
	Devcfg      string // programming device
	PartialFlag string // sysfs flag which marks the next image as partial
	MaxDMA      int    // number of DMA devices to probe
}

// DefaultConfig returns locations used by the dyplo driver.
func DefaultConfig() Config {
	return Config{
		Control:     "/dev/dyploctl",
		DMA:         "/dev/dyplod%d",
		Cfg:         "/dev/dyplocfg%d",
		Bitstreams:  "/usr/share/bitstreams",
		Devcfg:      "/dev/xdevcfg",
		PartialFlag: "/sys/bus/platform/devices/f8007000.devcfg/is_partial_bitstream",
		MaxDMA:      8,
	}
}

// Option configures the device.
type Option func(*options)

type options struct {
	log logrus.FieldLogger
}

// WithLogger sets logger to device.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = l
	}
}
