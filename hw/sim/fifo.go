package sim

import (
	"fmt"
	"os"
	"sync"

	"github.com/topic-embedded-products/dyplo"
	"github.com/topic-embedded-products/dyplo/internal/pool"
)

type (
	// outputFifo streams written data into the routing fabric.
	outputFifo struct {
		dev    *Device
		idx    int
		ep     dyplo.Endpoint
		closed bool
	}

	// inputFifo captures routed data into armed blocks in the order
	// they were enqueued.
	inputFifo struct {
		dev *Device
		idx int
		ep  dyplo.Endpoint

		mu      sync.Mutex
		cond    *sync.Cond
		closed  bool
		pool    *pool.Pool
		blocks  []*block
		armed   []int // hardware owned blocks in capture order
		done    []int // completed blocks, not dequeued yet
		pending []byte
		notify  chan struct{}
	}

	block struct {
		data   []byte
		used   int
		filled int
		hw     bool
	}
)

func (f *outputFifo) Endpoint() dyplo.Endpoint {
	return f.ep
}

func (f *outputFifo) Write(p []byte) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	if err := f.dev.write(f.ep, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (f *outputFifo) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	f.dev.outputs[f.idx] = nil
	f.dev.record("close output %v", f.ep)
	return nil
}

func newInputFifo(d *Device, idx int) *inputFifo {
	f := &inputFifo{
		dev:    d,
		idx:    idx,
		ep:     dyplo.Endpoint{Node: DMABase + idx},
		notify: make(chan struct{}, 1),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *inputFifo) Endpoint() dyplo.Endpoint {
	return f.ep
}

func (f *inputFifo) Reconfigure(blockSize, count int) ([][]byte, error) {
	f.dev.mu.Lock()
	err := f.dev.fault("reconfigure")
	f.dev.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if blockSize <= 0 || count <= 0 {
		return nil, fmt.Errorf("reconfigure %v with %d blocks of %d bytes: invalid argument", f.ep, count, blockSize)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, os.ErrClosed
	}
	f.free()
	f.pool = pool.Get(blockSize)
	f.blocks = make([]*block, count)
	mem := make([][]byte, count)
	for i := range f.blocks {
		f.blocks[i] = &block{data: f.pool.Alloc()}
		mem[i] = f.blocks[i].data
	}
	return mem, nil
}

// free drops all blocks and captured data. Must be called with f.mu held.
func (f *inputFifo) free() {
	for _, b := range f.blocks {
		f.pool.Free(b.data)
	}
	f.blocks, f.armed, f.done, f.pending = nil, nil, nil, nil
	select {
	case <-f.notify:
	default:
	}
}

func (f *inputFifo) Enqueue(id, bytesUsed int) error {
	f.dev.mu.Lock()
	err := f.dev.fault("enqueue")
	f.dev.mu.Unlock()
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return os.ErrClosed
	}
	if id < 0 || id >= len(f.blocks) {
		return fmt.Errorf("enqueue block %d of %d on %v: invalid argument", id, len(f.blocks), f.ep)
	}
	b := f.blocks[id]
	if b.hw {
		return fmt.Errorf("enqueue block %d on %v: already queued", id, f.ep)
	}
	if bytesUsed <= 0 || bytesUsed > len(b.data) {
		return fmt.Errorf("enqueue block %d on %v with %d bytes: invalid argument", id, f.ep, bytesUsed)
	}
	b.hw, b.used, b.filled = true, bytesUsed, 0
	f.armed = append(f.armed, id)
	f.fill()
	return nil
}

func (f *inputFifo) Dequeue() (int, int, error) {
	f.dev.mu.Lock()
	err := f.dev.fault("dequeue")
	f.dev.mu.Unlock()
	if err != nil {
		return 0, 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.done) == 0 && !f.closed {
		f.cond.Wait()
	}
	if f.closed {
		return 0, 0, os.ErrClosed
	}
	id := f.done[0]
	f.done = f.done[1:]
	b := f.blocks[id]
	b.hw = false
	return id, b.filled, nil
}

func (f *inputFifo) Waitable() dyplo.Waitable {
	return f
}

// Wait returns channel signalled every time a block is completed.
func (f *inputFifo) Wait() <-chan struct{} {
	return f.notify
}

// Readable returns true if completed block is waiting for dequeue.
func (f *inputFifo) Readable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.done) > 0
}

func (f *inputFifo) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.free()
	f.cond.Broadcast()
	f.mu.Unlock()

	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	f.dev.inputs[f.idx] = nil
	f.dev.record("close input %v", f.ep)
	return nil
}

// capture appends routed data. Called with device lock held.
func (f *inputFifo) capture(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.pending = append(f.pending, p...)
	f.fill()
}

// fill moves pending data into armed blocks. Must be called with f.mu
// held.
func (f *inputFifo) fill() {
	for len(f.pending) > 0 && len(f.armed) > 0 {
		id := f.armed[0]
		b := f.blocks[id]
		n := copy(b.data[b.filled:b.used], f.pending)
		b.filled += n
		f.pending = f.pending[n:]
		if b.filled < b.used {
			continue
		}
		f.armed = f.armed[1:]
		f.done = append(f.done, id)
		f.cond.Broadcast()
		select {
		case f.notify <- struct{}{}:
		default:
		}
	}
	if len(f.pending) == 0 {
		f.pending = nil
	}
}
