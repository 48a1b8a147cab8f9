// Package config loads dyploimg configuration. Values are taken from
// defaults, then from optional YAML file and finally from DYPLO_*
// environment variables.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Prefix of environment variables.
const Prefix = "DYPLO"

// Backends.
const (
	BackendSim   = "sim"
	BackendDyplo = "dyplo"
)

// Config holds all application configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device" envconfig:"DEVICE"`
	Pipeline PipelineConfig `yaml:"pipeline" envconfig:"PIPELINE"`
	Log      LogConfig      `yaml:"log" envconfig:"LOG"`
	Metrics  MetricsConfig  `yaml:"metrics" envconfig:"METRICS"`
	Sim      SimConfig      `yaml:"sim" envconfig:"SIM"`
}

// DeviceConfig selects hardware backend and its device files.
type DeviceConfig struct {
	Backend     string `yaml:"backend" envconfig:"BACKEND"`
	Control     string `yaml:"control" envconfig:"CONTROL"`
	DMA         string `yaml:"dma" envconfig:"DMA"`                 // DMA fifo device pattern
	Config      string `yaml:"config" envconfig:"CONFIG"`           // node config device pattern
	Bitstreams  string `yaml:"bitstreams" envconfig:"BITSTREAMS"`   // partial images directory
	Devcfg      string `yaml:"devcfg" envconfig:"DEVCFG"`           // programming device
	PartialFlag string `yaml:"partialFlag" envconfig:"PARTIAL_FLAG"`
}

// PipelineConfig holds processing parameters.
type PipelineConfig struct {
	BufferCount int    `yaml:"bufferCount" envconfig:"BUFFER_COUNT"`
	Filter      string `yaml:"filter" envconfig:"FILTER"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `yaml:"level" envconfig:"LEVEL"`
}

// MetricsConfig holds metrics endpoint configuration. Empty address
// disables the endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr" envconfig:"ADDR"`
}

// SimConfig describes simulated device.
type SimConfig struct {
	DMA   int          `yaml:"dma" envconfig:"DMA"`
	Slots []SlotConfig `yaml:"slots" ignored:"true"`
}

// SlotConfig is a simulated node slot and filters it accepts.
type SlotConfig struct {
	ID      int      `yaml:"id"`
	Filters []string `yaml:"filters"`
}

// Default returns default configuration.
func Default() *Config {
	filters := []string{"identity-loopback", "invert", "xor80"}
	return &Config{
		Device: DeviceConfig{
			Backend:     BackendSim,
			Control:     "/dev/dyploctl",
			DMA:         "/dev/dyplod%d",
			Config:      "/dev/dyplocfg%d",
			Bitstreams:  "/usr/share/bitstreams",
			Devcfg:      "/dev/xdevcfg",
			PartialFlag: "/sys/bus/platform/devices/f8007000.devcfg/is_partial_bitstream",
		},
		Pipeline: PipelineConfig{
			BufferCount: 2,
		},
		Log: LogConfig{
			Level: "info",
		},
		Sim: SimConfig{
			DMA: 2,
			Slots: []SlotConfig{
				{ID: 1, Filters: filters},
				{ID: 2, Filters: filters},
			},
		},
	}
}

// Load returns configuration. If path is not empty, the YAML file is
// applied over defaults. Environment overrides both.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(Prefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration values.
func (c *Config) Validate() error {
	switch c.Device.Backend {
	case BackendSim, BackendDyplo:
	default:
		return fmt.Errorf("unknown backend %q", c.Device.Backend)
	}
	if c.Pipeline.BufferCount < 1 {
		return fmt.Errorf("buffer count must be positive: %d", c.Pipeline.BufferCount)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Device.Backend == BackendSim {
		if c.Sim.DMA < 1 {
			return fmt.Errorf("simulated device needs at least one DMA node: %d", c.Sim.DMA)
		}
		seen := make(map[int]struct{}, len(c.Sim.Slots))
		for _, s := range c.Sim.Slots {
			if _, ok := seen[s.ID]; ok {
				return fmt.Errorf("duplicate node slot %d", s.ID)
			}
			seen[s.ID] = struct{}{}
		}
	}
	return nil
}
