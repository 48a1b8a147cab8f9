package dyplo

import "fmt"

type (
	// Endpoint identifies a stream endpoint in the routing fabric: node
	// index and fifo index within that node.
	Endpoint struct {
		Node int
		Fifo int
	}

	// Edge is a single routing link from source endpoint to destination
	// endpoint.
	Edge struct {
		From Endpoint
		To   Endpoint
	}

	// Fifo is a raw exclusive handle to one hardware fifo.
	Fifo interface {
		Endpoint() Endpoint
		Close() error
	}

	// OutputFifo streams data to logic.
	OutputFifo interface {
		Fifo
		Write(p []byte) (int, error)
	}

	// InputFifo captures data from logic into DMA blocks.
	//
	// Reconfigure frees previously allocated blocks, drops everything
	// captured so far and allocates count blocks of blockSize bytes. The
	// returned slices map block memory, slice index is the block id. All
	// new blocks are owned by software.
	//
	// Enqueue hands the block to hardware to capture bytesUsed bytes.
	// Dequeue blocks until hardware completes a block and returns its id
	// and number of captured bytes.
	InputFifo interface {
		Fifo
		Reconfigure(blockSize, count int) ([][]byte, error)
		Enqueue(id, bytesUsed int) error
		Dequeue() (id, bytesUsed int, err error)
		Waitable() Waitable
	}

	// NodeHandle is an exclusive handle to reconfigurable processing
	// node.
	NodeHandle interface {
		ID() int
		Endpoint(fifo int) Endpoint
		Enable() error
		Disable() error
		Load(filter string) error
		Close() error
	}

	// Router wires endpoints together.
	Router interface {
		Route(edges ...Edge) error
		Unroute(edges ...Edge) error
	}

	// Provider gives access to hardware resources. Exclusivity of
	// channels and nodes is enforced by the provider.
	//
	// OpenAvailableInput and OpenAvailableOutput fail with
	// ErrResourceExhausted when all fifos are taken. OpenNode fails with
	// ErrBusy if node is claimed and ErrNotFound if there is no such
	// node. NodeCandidates returns ids of nodes that can be loaded with
	// provided filter.
	Provider interface {
		Router
		OpenAvailableInput() (InputFifo, error)
		OpenAvailableOutput() (OutputFifo, error)
		NodeCandidates(filter string) ([]int, error)
		OpenNode(id int) (NodeHandle, error)
	}

	// Waitable is a readiness source for input fifo. Wait returns a
	// channel that fires when fifo may have become readable. Readable
	// reports whether Dequeue would return without blocking.
	Waitable interface {
		Wait() <-chan struct{}
		Readable() bool
	}

	// Subscription identifies readiness subscription within event loop.
	Subscription string

	// EventLoop delivers readiness notifications. Callback is executed
	// on the loop's own goroutine.
	EventLoop interface {
		SubscribeReadable(w Waitable, fn func()) (Subscription, error)
		Unsubscribe(s Subscription)
	}
)

func (e Endpoint) String() string {
	return fmt.Sprintf("%d.%d", e.Node, e.Fifo)
}

func (e Edge) String() string {
	return fmt.Sprintf("%v->%v", e.From, e.To)
}
