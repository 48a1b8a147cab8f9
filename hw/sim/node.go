package sim

import (
	"fmt"
	"os"

	"github.com/topic-embedded-products/dyplo"
)

type (
	// slot is a partial reconfiguration region.
	slot struct {
		id      int
		filters []string
		open    bool
		enabled bool
		loaded  string
	}

	nodeHandle struct {
		dev    *Device
		slot   *slot
		closed bool
	}
)

func (s *slot) accepts(filter string) bool {
	for _, f := range s.filters {
		if f == filter {
			return true
		}
	}
	return false
}

func (h *nodeHandle) ID() int {
	return h.slot.id
}

func (h *nodeHandle) Endpoint(fifo int) dyplo.Endpoint {
	return dyplo.Endpoint{Node: h.slot.id, Fifo: fifo}
}

func (h *nodeHandle) Enable() error {
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	if h.closed {
		return os.ErrClosed
	}
	if err := h.dev.fault("enable"); err != nil {
		return err
	}
	if h.slot.loaded == "" {
		return fmt.Errorf("enable node %d: no filter loaded", h.slot.id)
	}
	h.slot.enabled = true
	h.dev.record("enable node %d", h.slot.id)
	return nil
}

func (h *nodeHandle) Disable() error {
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	if h.closed {
		return os.ErrClosed
	}
	if err := h.dev.fault("disable"); err != nil {
		return err
	}
	if h.slot.enabled {
		h.slot.enabled = false
		h.dev.record("disable node %d", h.slot.id)
	}
	return nil
}

func (h *nodeHandle) Load(filter string) error {
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	if h.closed {
		return os.ErrClosed
	}
	if err := h.dev.fault("load"); err != nil {
		return err
	}
	if h.slot.enabled {
		return fmt.Errorf("load %q into enabled node %d", filter, h.slot.id)
	}
	if _, ok := h.dev.filters[filter]; !ok || !h.slot.accepts(filter) {
		return fmt.Errorf("load %q into node %d: %w", filter, h.slot.id, dyplo.ErrNotFound)
	}
	h.slot.loaded = filter
	h.dev.record("load node %d %s", h.slot.id, filter)
	return nil
}

func (h *nodeHandle) Close() error {
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.slot.enabled {
		h.slot.enabled = false
		h.dev.record("disable node %d", h.slot.id)
	}
	h.slot.open = false
	h.dev.record("close node %d", h.slot.id)
	return nil
}
