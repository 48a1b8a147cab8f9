package dyplo

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/topic-embedded-products/dyplo/log"
	"github.com/topic-embedded-products/dyplo/metric"
)

// NodeAllocator finds idle nodes which can be loaded with a filter and
// programs them.
type NodeAllocator struct {
	mu       sync.Mutex
	provider Provider
	log      logrus.FieldLogger
	metrics  *metric.Metrics
}

// AllocatorOption provides a way to set functional parameters to
// allocator.
type AllocatorOption func(*NodeAllocator)

// AllocatorLogger sets logger to allocator.
func AllocatorLogger(l logrus.FieldLogger) AllocatorOption {
	return func(a *NodeAllocator) {
		a.log = l
	}
}

// AllocatorMetrics sets metrics to allocator.
func AllocatorMetrics(m *metric.Metrics) AllocatorOption {
	return func(a *NodeAllocator) {
		a.metrics = m
	}
}

// NewNodeAllocator returns allocator for provided hardware.
func NewNodeAllocator(p Provider, options ...AllocatorOption) *NodeAllocator {
	a := &NodeAllocator{
		provider: p,
		log:      log.Discard(),
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Program claims the first free candidate node for the filter, loads the
// filter image and returns the node in disabled state. Candidates are
// tried in ascending id order, busy ones are skipped. ErrNotFound is
// returned when no candidate could be claimed.
func (a *NodeAllocator) Program(filter string) (*Node, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	logger := a.log.WithField("filter", filter)
	ids, err := a.provider.NodeCandidates(filter)
	if err != nil {
		a.metrics.NodeProgrammed(filter, metric.ResultError)
		return nil, fmt.Errorf("node candidates for %q: %w", filter, hardwareError("enumerate nodes", err))
	}
	ids = append([]int(nil), ids...)
	sort.Ints(ids)

	for _, id := range ids {
		h, err := a.provider.OpenNode(id)
		if err != nil {
			if errors.Is(err, ErrBusy) || errors.Is(err, ErrNotFound) {
				logger.WithField("node", id).Debugf("skip candidate: %v", err)
				continue
			}
			a.metrics.NodeProgrammed(filter, metric.ResultError)
			return nil, fmt.Errorf("open node %d: %w", id, hardwareError("open node", err))
		}
		node, err := load(h, filter)
		if err != nil {
			a.metrics.NodeProgrammed(filter, metric.ResultError)
			return nil, fmt.Errorf("program node %d with %q: %w", id, filter, err)
		}
		logger.WithField("node", id).Debug("node programmed")
		a.metrics.NodeProgrammed(filter, metric.ResultOK)
		return node, nil
	}
	a.metrics.NodeProgrammed(filter, metric.ResultNotFound)
	return nil, fmt.Errorf("no node for filter %q among %d candidates: %w", filter, len(ids), ErrNotFound)
}

// load disables the node and loads the filter image. Node handle is
// released if any step fails.
func load(h NodeHandle, filter string) (*Node, error) {
	if err := h.Disable(); err != nil {
		return nil, closeOnError(h, hardwareError("disable node", err))
	}
	if err := h.Load(filter); err != nil {
		return nil, closeOnError(h, hardwareError("load image", err))
	}
	return &Node{handle: h, filter: filter}, nil
}

func closeOnError(h NodeHandle, err error) error {
	if closeErr := h.Close(); closeErr != nil {
		return fmt.Errorf("close node: %v after error: %w", closeErr, err)
	}
	return err
}
