// Package sim provides an in-memory dyplo device. It implements
// dyplo.Provider and can be used to run pipelines without hardware.
//
// Device has a number of DMA nodes, each with one fifo to logic and one
// fifo from logic, and a number of processing node slots. Data written
// into an output fifo is streamed synchronously through the routes:
// enabled nodes transform it with their loaded filter, input fifos
// capture it into armed blocks. Data that reaches an unrouted endpoint,
// a disabled node or a closed fifo is dropped.
package sim

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/topic-embedded-products/dyplo"
	"github.com/topic-embedded-products/dyplo/log"
)

// DMABase is the index of the first DMA node.
const DMABase = 32

// maxHops limits routing walk to break loops between nodes.
const maxHops = 16

// Device is a simulated dyplo device.
type Device struct {
	mu      sync.Mutex
	inputs  []*inputFifo
	outputs []*outputFifo
	slots   map[int]*slot
	filters map[string]Filter
	routes  map[dyplo.Endpoint]dyplo.Endpoint
	faults  map[string]error
	journal []string
	log     logrus.FieldLogger
}

// Option configures the device.
type Option func(*Device)

// WithDMA sets number of DMA nodes.
func WithDMA(n int) Option {
	return func(d *Device) {
		d.inputs = make([]*inputFifo, n)
		d.outputs = make([]*outputFifo, n)
	}
}

// WithSlot adds processing node slot which can be loaded with provided
// filters.
func WithSlot(id int, filters ...string) Option {
	return func(d *Device) {
		d.slots[id] = &slot{
			id:      id,
			filters: append([]string(nil), filters...),
		}
	}
}

// WithFilter registers filter implementation.
func WithFilter(name string, fn Filter) Option {
	return func(d *Device) {
		d.filters[name] = fn
	}
}

// WithLogger sets logger to device.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Device) {
		d.log = l
	}
}

// New returns device with two DMA nodes, built-in filters and no
// processing nodes, then applies options.
func New(options ...Option) *Device {
	d := &Device{
		inputs:  make([]*inputFifo, 2),
		outputs: make([]*outputFifo, 2),
		slots:   make(map[int]*slot),
		filters: builtinFilters(),
		routes:  make(map[dyplo.Endpoint]dyplo.Endpoint),
		faults:  make(map[string]error),
		log:     log.Discard(),
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// Stats is a snapshot of device resources usage.
type Stats struct {
	Inputs  int // open input fifos
	Outputs int // open output fifos
	Nodes   int // claimed nodes
	Enabled int // enabled nodes
	Routes  int
}

// Stats returns resources usage.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	var s Stats
	for i := range d.inputs {
		if d.inputs[i] != nil {
			s.Inputs++
		}
		if d.outputs[i] != nil {
			s.Outputs++
		}
	}
	for _, sl := range d.slots {
		if sl.open {
			s.Nodes++
		}
		if sl.enabled {
			s.Enabled++
		}
	}
	s.Routes = len(d.routes)
	return s
}

// Journal returns operations executed on device in order.
func (d *Device) Journal() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.journal...)
}

// InjectFault makes every subsequent op fail with err. Known ops are:
// write, reconfigure, enqueue, dequeue, route, unroute, load, enable,
// disable. Nil err removes the fault.
func (d *Device) InjectFault(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.faults, op)
		return
	}
	d.faults[op] = err
}

func (d *Device) fault(op string) error {
	return d.faults[op]
}

func (d *Device) record(format string, args ...interface{}) {
	d.journal = append(d.journal, fmt.Sprintf(format, args...))
}

// OpenAvailableInput claims the first free fifo from logic.
func (d *Device) OpenAvailableInput() (dyplo.InputFifo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.inputs {
		if d.inputs[i] == nil {
			f := newInputFifo(d, i)
			d.inputs[i] = f
			d.record("open input %v", f.ep)
			return f, nil
		}
	}
	return nil, fmt.Errorf("all %d input fifos are taken: %w", len(d.inputs), dyplo.ErrResourceExhausted)
}

// OpenAvailableOutput claims the first free fifo to logic.
func (d *Device) OpenAvailableOutput() (dyplo.OutputFifo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.outputs {
		if d.outputs[i] == nil {
			f := &outputFifo{
				dev: d,
				idx: i,
				ep:  dyplo.Endpoint{Node: DMABase + i},
			}
			d.outputs[i] = f
			d.record("open output %v", f.ep)
			return f, nil
		}
	}
	return nil, fmt.Errorf("all %d output fifos are taken: %w", len(d.outputs), dyplo.ErrResourceExhausted)
}

// NodeCandidates returns ids of slots which can be loaded with filter.
func (d *Device) NodeCandidates(filter string) ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.filters[filter]; !ok {
		return nil, nil
	}
	var ids []int
	for id, sl := range d.slots {
		if sl.accepts(filter) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

// OpenNode claims the node slot.
func (d *Device) OpenNode(id int) (dyplo.NodeHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sl, ok := d.slots[id]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, dyplo.ErrNotFound)
	}
	if sl.open {
		return nil, fmt.Errorf("node %d: %w", id, dyplo.ErrBusy)
	}
	sl.open = true
	d.record("open node %d", id)
	return &nodeHandle{dev: d, slot: sl}, nil
}

// Route establishes edges. Existing route from the same source is
// replaced.
func (d *Device) Route(edges ...dyplo.Edge) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fault("route"); err != nil {
		return err
	}
	for _, e := range edges {
		if err := d.validate(e); err != nil {
			return err
		}
	}
	for _, e := range edges {
		d.routes[e.From] = e.To
		d.record("route %v", e)
	}
	return nil
}

// Unroute removes edges.
func (d *Device) Unroute(edges ...dyplo.Edge) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fault("unroute"); err != nil {
		return err
	}
	for _, e := range edges {
		if to, ok := d.routes[e.From]; ok && to == e.To {
			delete(d.routes, e.From)
			d.record("unroute %v", e)
		}
	}
	return nil
}

func (d *Device) validate(e dyplo.Edge) error {
	for _, ep := range []dyplo.Endpoint{e.From, e.To} {
		if ep.Fifo != 0 {
			return fmt.Errorf("endpoint %v: %w", ep, errNoFifo)
		}
		if ep.Node >= DMABase && ep.Node < DMABase+len(d.inputs) {
			continue
		}
		if _, ok := d.slots[ep.Node]; !ok {
			return fmt.Errorf("endpoint %v: %w", ep, errNoFifo)
		}
	}
	return nil
}

var errNoFifo = errors.New("no such fifo")

// write streams p from the source endpoint through the routes.
func (d *Device) write(src dyplo.Endpoint, p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fault("write"); err != nil {
		return err
	}
	data := append([]byte(nil), p...)
	for hop := 0; hop < maxHops; hop++ {
		dst, ok := d.routes[src]
		if !ok {
			d.log.WithField("endpoint", src).Debug("drop data from unrouted endpoint")
			return nil
		}
		if i := dst.Node - DMABase; i >= 0 && i < len(d.inputs) {
			in := d.inputs[i]
			if in == nil {
				d.log.WithField("endpoint", dst).Debug("drop data for closed fifo")
				return nil
			}
			in.capture(data)
			return nil
		}
		sl := d.slots[dst.Node]
		if !sl.enabled || sl.loaded == "" {
			d.log.WithField("node", sl.id).Debug("drop data for disabled node")
			return nil
		}
		data = d.filters[sl.loaded](data)
		src = dyplo.Endpoint{Node: sl.id}
	}
	d.log.WithField("endpoint", src).Debug("drop data on routing loop")
	return nil
}
