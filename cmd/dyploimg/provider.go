package main

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/topic-embedded-products/dyplo"
	"github.com/topic-embedded-products/dyplo/config"
	"github.com/topic-embedded-products/dyplo/hw/dyplodev"
	"github.com/topic-embedded-products/dyplo/hw/sim"
	"github.com/topic-embedded-products/dyplo/log"
)

// environment is shared by commands: loaded configuration, logger and
// opened hardware.
type environment struct {
	cfg      *config.Config
	log      *logrus.Logger
	provider dyplo.Provider
	close    func() error
}

func setup(configPath string, dump bool) (*environment, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	l, err := log.New(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if dump {
		spew.Fdump(l.Out, cfg)
	}
	env := &environment{
		cfg:   cfg,
		log:   l,
		close: func() error { return nil },
	}

	switch cfg.Device.Backend {
	case config.BackendSim:
		options := []sim.Option{
			sim.WithDMA(cfg.Sim.DMA),
			sim.WithLogger(l),
		}
		for _, s := range cfg.Sim.Slots {
			options = append(options, sim.WithSlot(s.ID, s.Filters...))
		}
		env.provider = sim.New(options...)
	case config.BackendDyplo:
		d, err := dyplodev.Open(dyplodev.Config{
			Control:     cfg.Device.Control,
			DMA:         cfg.Device.DMA,
			Cfg:         cfg.Device.Config,
			Bitstreams:  cfg.Device.Bitstreams,
			Devcfg:      cfg.Device.Devcfg,
			PartialFlag: cfg.Device.PartialFlag,
			MaxDMA:      dyplodev.DefaultConfig().MaxDMA,
		}, dyplodev.WithLogger(l))
		if err != nil {
			return nil, err
		}
		env.provider = d
		env.close = d.Close
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Device.Backend)
	}
	l.WithField("backend", cfg.Device.Backend).Debug("device opened")
	return env, nil
}
