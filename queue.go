package dyplo

import (
	"fmt"

	"github.com/topic-embedded-products/dyplo/metric"
)

// DefaultBufferCount is the number of blocks allocated by the queue when
// count is not provided.
const DefaultBufferCount = 2

// Ownership identifies who can access the block memory.
type Ownership int

const (
	// Software owned block is readable by the caller. Hardware doesn't
	// write into it.
	Software Ownership = iota
	// Hardware owned block is armed and captures incoming data.
	Hardware
)

func (o Ownership) String() string {
	if o == Software {
		return "software"
	}
	return "hardware"
}

type (
	// BufferQueue owns a fixed pool of hardware-backed blocks of input
	// channel and cycles them between hardware and software.
	BufferQueue struct {
		in         *Channel
		blockSize  int
		buffers    []*buffer
		generation uint64
		lease      *Lease // block leased to software at the moment
		closed     bool
		metrics    *metric.Metrics
	}

	// buffer is a single hardware-backed block.
	buffer struct {
		id        int
		data      []byte
		bytesUsed int
		owner     Ownership
	}

	// Lease grants software access to a dequeued block. Release must be
	// called exactly once to hand the block back to hardware.
	Lease struct {
		q          *BufferQueue
		buf        *buffer
		generation uint64
		released   bool
	}
)

// NewBufferQueue returns unconfigured queue on top of input channel.
func NewBufferQueue(in *Channel) *BufferQueue {
	return &BufferQueue{in: in}
}

// Configure allocates count blocks of blockSize bytes and arms all of
// them. Previous blocks are freed: data captured into them is discarded
// and leases from before become stale. Configure fails with
// ErrSizeMismatch while a block is leased to software.
func (q *BufferQueue) Configure(blockSize, count int) error {
	if q.closed {
		return fmt.Errorf("configure closed queue: %w", ErrInvalidState)
	}
	fifo, err := q.in.input()
	if err != nil {
		return fmt.Errorf("configure queue: %w", err)
	}
	if blockSize <= 0 {
		return fmt.Errorf("configure queue with block size %d: %w", blockSize, ErrInvalidState)
	}
	if count <= 0 {
		count = DefaultBufferCount
	}
	if q.lease != nil {
		return fmt.Errorf("resize %d to %d with leased block %d: %w", q.blockSize, blockSize, q.lease.buf.id, ErrSizeMismatch)
	}

	blocks, err := fifo.Reconfigure(blockSize, count)
	// previous blocks are gone even if reconfiguration failed.
	q.generation++
	q.buffers = nil
	q.blockSize = 0
	if err != nil {
		return hardwareError("reconfigure", err)
	}
	if len(blocks) != count {
		return &HardwareError{Op: "reconfigure", Err: fmt.Errorf("allocated %d blocks instead of %d", len(blocks), count)}
	}

	buffers := make([]*buffer, 0, count)
	for id, b := range blocks {
		if len(b) < blockSize {
			return &HardwareError{Op: "reconfigure", Err: fmt.Errorf("block %d has %d bytes, need %d", id, len(b), blockSize)}
		}
		buffers = append(buffers, &buffer{id: id, data: b, owner: Software})
	}
	// prime capture engine
	for _, b := range buffers {
		if err := fifo.Enqueue(b.id, blockSize); err != nil {
			return hardwareError("enqueue", err)
		}
		b.bytesUsed = blockSize
		b.owner = Hardware
	}
	q.buffers = buffers
	q.blockSize = blockSize
	q.metrics.Reconfigured()
	return nil
}

// Dequeue blocks until hardware completes one block and leases it to
// software. Only one block can be leased at a time, second dequeue
// without release fails with ErrInvalidState.
//
// There is no timeout: if nothing is routed into the input channel,
// Dequeue blocks forever.
func (q *BufferQueue) Dequeue() (*Lease, error) {
	if q.closed {
		return nil, fmt.Errorf("dequeue closed queue: %w", ErrInvalidState)
	}
	fifo, err := q.in.input()
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	if len(q.buffers) == 0 {
		return nil, fmt.Errorf("dequeue unconfigured queue: %w", ErrInvalidState)
	}
	if q.lease != nil {
		return nil, fmt.Errorf("dequeue while block %d is leased: %w", q.lease.buf.id, ErrInvalidState)
	}

	id, n, err := fifo.Dequeue()
	if err != nil {
		return nil, hardwareError("dequeue", err)
	}
	if id < 0 || id >= len(q.buffers) {
		return nil, &HardwareError{Op: "dequeue", Err: fmt.Errorf("unknown block %d", id)}
	}
	b := q.buffers[id]
	if b.owner != Hardware {
		return nil, &HardwareError{Op: "dequeue", Err: fmt.Errorf("block %d is not owned by hardware", id)}
	}
	if n < 0 || n > len(b.data) {
		return nil, &HardwareError{Op: "dequeue", Err: fmt.Errorf("block %d reports %d bytes", id, n)}
	}
	b.owner = Software
	b.bytesUsed = n
	q.lease = &Lease{
		q:          q,
		buf:        b,
		generation: q.generation,
	}
	return q.lease, nil
}

// Enqueue hands leased block back to hardware. It's the same as
// l.Release().
func (q *BufferQueue) Enqueue(l *Lease) error {
	if l == nil || l.q != q {
		return fmt.Errorf("enqueue foreign lease: %w", ErrInvalidState)
	}
	return l.Release()
}

// enqueue re-arms the block of the lease.
func (q *BufferQueue) enqueue(l *Lease) error {
	if q.lease == l {
		q.lease = nil
	}
	// block was freed by reconfiguration or close
	if l.generation != q.generation || q.closed {
		return nil
	}
	fifo, err := q.in.input()
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	l.buf.bytesUsed = q.blockSize
	l.buf.owner = Hardware
	if err := fifo.Enqueue(l.buf.id, q.blockSize); err != nil {
		return hardwareError("enqueue", err)
	}
	return nil
}

// BlockSize returns configured block size.
func (q *BufferQueue) BlockSize() int {
	return q.blockSize
}

// Count returns number of allocated blocks.
func (q *BufferQueue) Count() int {
	return len(q.buffers)
}

// Capacity returns the capacity of the smallest allocated block.
func (q *BufferQueue) Capacity() int {
	c := 0
	for i, b := range q.buffers {
		if i == 0 || len(b.data) < c {
			c = len(b.data)
		}
	}
	return c
}

// Outstanding returns true if a block is leased to software.
func (q *BufferQueue) Outstanding() bool {
	return q.lease != nil
}

// SoftwareOwned returns number of blocks owned by software.
func (q *BufferQueue) SoftwareOwned() int {
	n := 0
	for _, b := range q.buffers {
		if b.owner == Software {
			n++
		}
	}
	return n
}

// Waitable returns readiness source of the input channel.
func (q *BufferQueue) Waitable() Waitable {
	fifo, err := q.in.input()
	if err != nil {
		return nil
	}
	return fifo.Waitable()
}

// Close invalidates all blocks. Block memory itself is freed together
// with the input channel.
func (q *BufferQueue) Close() {
	q.closed = true
	q.lease = nil
	q.buffers = nil
	q.generation++
}

// Bytes returns captured data. Nil is returned once lease is released
// or the queue was reconfigured.
func (l *Lease) Bytes() []byte {
	if !l.valid() {
		return nil
	}
	return l.buf.data[:l.buf.bytesUsed]
}

// BytesUsed returns number of captured bytes.
func (l *Lease) BytesUsed() int {
	return l.buf.bytesUsed
}

// Capacity returns block capacity.
func (l *Lease) Capacity() int {
	return len(l.buf.data)
}

// ID returns block id.
func (l *Lease) ID() int {
	return l.buf.id
}

// Stale returns true if the queue was reconfigured or closed after the
// block was leased.
func (l *Lease) Stale() bool {
	return l.generation != l.q.generation || l.q.closed
}

// Release hands block back to hardware. Only the first call has effect.
func (l *Lease) Release() error {
	if l.released {
		return nil
	}
	l.released = true
	return l.q.enqueue(l)
}

func (l *Lease) valid() bool {
	return !l.released && !l.Stale()
}
