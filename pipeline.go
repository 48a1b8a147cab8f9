package dyplo

import (
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/topic-embedded-products/dyplo/log"
	"github.com/topic-embedded-products/dyplo/metric"
)

// Pipeline connects output channel, optional node and input channel.
// It owns both channels and the buffer queue of the input channel. Node
// is only routed, its lifecycle belongs to the caller.
type Pipeline struct {
	uid         string
	name        string
	router      Router
	out         *Channel
	in          *Channel
	node        *Node
	route       Route
	queue       *BufferQueue
	bufferCount int

	shape    Shape // captured at send, used to interpret received blocks
	shapeSet bool
	sentAt   time.Time
	closed   bool

	log     logrus.FieldLogger
	metrics *metric.Metrics
}

// PipelineOption provides a way to set functional parameters to
// pipeline.
type PipelineOption func(*Pipeline)

// PipelineLogger sets logger to pipeline.
func PipelineLogger(l logrus.FieldLogger) PipelineOption {
	return func(p *Pipeline) {
		p.log = l
	}
}

// PipelineMetrics sets metrics to pipeline.
func PipelineMetrics(m *metric.Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// PipelineBufferCount sets the number of blocks in receive queue.
func PipelineBufferCount(n int) PipelineOption {
	return func(p *Pipeline) {
		p.bufferCount = n
	}
}

// PipelineName sets name to pipeline.
func PipelineName(n string) PipelineOption {
	return func(p *Pipeline) {
		p.name = n
	}
}

// NewPipeline wires the routes and returns pipeline that owns provided
// channels. If node is nil, output is routed straight into input.
// Channels are not closed if routing fails.
func NewPipeline(router Router, out, in *Channel, node *Node, options ...PipelineOption) (*Pipeline, error) {
	if out == nil || out.Direction() != Output || out.Closed() {
		return nil, fmt.Errorf("pipeline output channel: %w", ErrInvalidState)
	}
	if in == nil || in.Direction() != Input || in.Closed() {
		return nil, fmt.Errorf("pipeline input channel: %w", ErrInvalidState)
	}
	p := &Pipeline{
		uid:         xid.New().String(),
		router:      router,
		out:         out,
		in:          in,
		node:        node,
		queue:       NewBufferQueue(in),
		bufferCount: DefaultBufferCount,
		log:         log.Discard(),
	}
	for _, option := range options {
		option(p)
	}
	p.queue.metrics = p.metrics
	p.log = p.log.WithField("pipeline", p.String())

	if node == nil {
		p.route = loopback(out.Endpoint(), in.Endpoint())
	} else {
		p.route = throughNode(out.Endpoint(), node.Endpoint(), in.Endpoint())
	}
	if err := router.Route(p.route.edges...); err != nil {
		return nil, fmt.Errorf("route %v: %w", p.route.mode, hardwareError("route", err))
	}
	p.log.WithField("route", p.route.edges).Debugf("%v route established", p.route.mode)
	p.metrics.PipelineOpened()
	return p, nil
}

// ID returns unique pipeline id.
func (p *Pipeline) ID() string {
	return p.uid
}

// Route returns pipeline routing.
func (p *Pipeline) Route() Route {
	return p.route
}

// Node returns routed node or nil for loopback pipeline.
func (p *Pipeline) Node() *Node {
	return p.node
}

// BlockSize returns current block size of the receive queue.
func (p *Pipeline) BlockSize() int {
	return p.queue.BlockSize()
}

// Queue returns receive queue.
func (p *Pipeline) Queue() *BufferQueue {
	return p.queue
}

// Waitable returns readiness source of the input channel.
func (p *Pipeline) Waitable() Waitable {
	return p.queue.Waitable()
}

// SendImage writes image to the output channel. If payload size differs
// from current block size, the receive queue is reconfigured first:
// blocks captured before, but not received, are discarded. Write may
// block if driver's outgoing buffer is full.
func (p *Pipeline) SendImage(img Image) error {
	if p.closed {
		return fmt.Errorf("send to closed pipeline: %w", ErrInvalidState)
	}
	if err := img.Validate(); err != nil {
		return err
	}
	size := img.Size()
	if size != p.queue.BlockSize() {
		p.log.WithField("blockSize", size).Debugf("reconfigure receive queue from %d bytes", p.queue.BlockSize())
		if err := p.queue.Configure(size, p.bufferCount); err != nil {
			return fmt.Errorf("resize receive queue: %w", err)
		}
	}
	p.shape = img.Shape
	p.shapeSet = true
	p.sentAt = time.Now()
	if _, err := p.out.Write(img.Pix[:size]); err != nil {
		return fmt.Errorf("send image %v: %w", img.Shape, err)
	}
	p.metrics.FrameSent(size)
	return nil
}

// ReceiveImage blocks until a block is captured, passes it to fn as a
// view and re-arms the block when fn returns, also if fn panics. The
// view must not be used after fn returns.
func (p *Pipeline) ReceiveImage(fn ResultFunc) (err error) {
	if p.closed {
		return fmt.Errorf("receive from closed pipeline: %w", ErrInvalidState)
	}
	if !p.shapeSet {
		return fmt.Errorf("receive before send: %w", ErrInvalidState)
	}
	lease, err := p.queue.Dequeue()
	if err != nil {
		return fmt.Errorf("receive image: %w", err)
	}
	if lease.BytesUsed() < p.shape.Size() {
		_ = lease.Release()
		return &HardwareError{Op: "receive", Err: fmt.Errorf("captured %d bytes, expected %d", lease.BytesUsed(), p.shape.Size())}
	}
	defer func() {
		if releaseErr := lease.Release(); releaseErr != nil && err == nil {
			err = fmt.Errorf("re-arm block %d: %w", lease.ID(), releaseErr)
		}
	}()
	p.metrics.FrameReceived(time.Since(p.sentAt))
	fn(Result{View: View{lease: lease, shape: p.shape}})
	return nil
}

// Close removes routes, invalidates the queue and releases both
// channels. Node is not touched. Subsequent calls are no-op.
func (p *Pipeline) Close() error {
	if p == nil || p.closed {
		return nil
	}
	p.closed = true
	var errs execErrors
	if err := p.router.Unroute(p.route.edges...); err != nil {
		errs = errs.add(hardwareError("unroute", err))
	}
	p.queue.Close()
	errs = errs.add(p.in.Close())
	errs = errs.add(p.out.Close())
	p.metrics.PipelineClosed()
	p.log.Debug("pipeline closed")
	return errs.ret()
}

// Convert pipeline to string. Name is included if has value.
func (p *Pipeline) String() string {
	if p.name == "" {
		return p.uid
	}
	return fmt.Sprintf("%v %v", p.name, p.uid)
}
