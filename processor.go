package dyplo

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/topic-embedded-products/dyplo/log"
	"github.com/topic-embedded-products/dyplo/metric"
)

// Processor is the entry point for image processing. It owns at most one
// pipeline and one node at a time and provides synchronous and
// asynchronous processing.
//
// Processor isn't safe for concurrent use. Asynchronous results are
// delivered on the event loop goroutine, so all calls must be made from
// that goroutine as well.
type Processor struct {
	name        string
	provider    Provider
	allocator   *NodeAllocator
	onResult    ResultFunc
	loop        EventLoop
	bufferCount int

	state      State
	pipeline   *Pipeline
	node       *Node
	filter     string
	sub        Subscription
	subscribed bool
	pending    int // asynchronous sends not received yet

	log     logrus.FieldLogger
	metrics *metric.Metrics
}

// NewProcessor creates a new processor in Empty state. Results of every
// processing are passed to onResult.
func NewProcessor(provider Provider, onResult ResultFunc, options ...Option) *Processor {
	p := &Processor{
		provider:    provider,
		onResult:    onResult,
		bufferCount: DefaultBufferCount,
		log:         log.Discard(),
	}
	for _, option := range options {
		option(p)
	}
	p.allocator = NewNodeAllocator(provider,
		AllocatorLogger(p.log),
		AllocatorMetrics(p.metrics),
	)
	return p
}

// State returns current state.
func (p *Processor) State() State {
	return p.state
}

// HasPipeline returns true if pipeline exists.
func (p *Processor) HasPipeline() bool {
	return p.state != Empty
}

// Pipeline returns current pipeline or nil.
func (p *Processor) Pipeline() *Pipeline {
	return p.pipeline
}

// Filter returns the filter of current pipeline. Empty string means
// loopback.
func (p *Processor) Filter() string {
	return p.filter
}

// CreatePipeline releases existing pipeline and creates new one. If
// filter is not empty, a node is programmed with it and enabled after
// routing is established. If any step fails, all acquired resources are
// released and processor stays Empty.
func (p *Processor) CreatePipeline(filter string) error {
	if err := p.ReleasePipeline(); err != nil {
		return fmt.Errorf("release previous pipeline: %w", err)
	}
	logger := p.log.WithField("filter", filter)

	var node *Node
	if filter != "" {
		var err error
		if node, err = p.allocator.Program(filter); err != nil {
			return err
		}
	}
	in, err := OpenInput(p.provider)
	if err != nil {
		return abort(err, node)
	}
	out, err := OpenOutput(p.provider)
	if err != nil {
		return abort(err, in, node)
	}
	pipeline, err := NewPipeline(p.provider, out, in, node,
		PipelineName(p.name),
		PipelineLogger(p.log),
		PipelineMetrics(p.metrics),
		PipelineBufferCount(p.bufferCount),
	)
	if err != nil {
		return abort(err, out, in, node)
	}
	if node != nil {
		if err := node.Enable(); err != nil {
			return abort(err, pipeline, node)
		}
	}

	p.pipeline, p.node, p.filter = pipeline, node, filter
	p.state, _ = p.state.transition(create)
	logger.WithField("pipeline", pipeline.String()).Debug("pipeline created")
	return nil
}

// ReleasePipeline unsubscribes notification, destroys pipeline and node.
// Node is disabled before its pipeline is gone. Calling it without
// pipeline is no-op.
func (p *Processor) ReleasePipeline() error {
	if p.state == Empty {
		return nil
	}
	var errs execErrors
	p.unsubscribe()
	if p.node != nil {
		errs = errs.add(p.node.Disable())
	}
	errs = errs.add(p.pipeline.Close())
	errs = errs.add(p.node.Close())
	p.log.WithField("pipeline", p.pipeline.String()).Debug("pipeline released")

	p.pipeline, p.node, p.filter, p.pending = nil, nil, "", 0
	p.state, _ = p.state.transition(release)
	return errs.ret()
}

// ProcessSync sends image and blocks until the result is passed to the
// consumer. Pipeline is created for the call and released after it, even
// if processing fails. If a pipeline with the same filter exists, it's
// used instead.
//
// There is no timeout. If hardware never returns the data, ProcessSync
// blocks forever.
func (p *Processor) ProcessSync(img Image, filter string) (err error) {
	switch {
	case p.state == Armed:
		return fmt.Errorf("process sync with outstanding async send: %w", ErrInvalidState)
	case p.state == Empty || p.filter != filter:
		if err := p.CreatePipeline(filter); err != nil {
			return err
		}
	}
	defer func() {
		if releaseErr := p.ReleasePipeline(); releaseErr != nil {
			if err == nil {
				err = releaseErr
			} else {
				err = fmt.Errorf("release pipeline: %v after error: %w", releaseErr, err)
			}
		}
	}()

	if err := p.pipeline.SendImage(img); err != nil {
		return err
	}
	return p.pipeline.ReceiveImage(p.deliver)
}

// ProcessAsync subscribes readiness notification of the input channel
// and sends image. It returns without waiting for the result, which is
// delivered by event loop. Processor must have a pipeline.
func (p *Processor) ProcessAsync(img Image) error {
	next, ok := p.state.transition(send)
	if !ok {
		return fmt.Errorf("process async without pipeline: %w", ErrInvalidState)
	}
	if p.loop == nil {
		return fmt.Errorf("process async without event loop: %w", ErrInvalidState)
	}
	if err := img.Validate(); err != nil {
		return err
	}
	blockSize := p.pipeline.BlockSize()
	resize := img.Size() != blockSize
	if !p.subscribed {
		w := p.pipeline.Waitable()
		if w == nil {
			return fmt.Errorf("subscribe closed input: %w", ErrInvalidState)
		}
		sub, err := p.loop.SubscribeReadable(w, p.onReadable)
		if err != nil {
			return fmt.Errorf("subscribe readiness: %w", err)
		}
		p.sub, p.subscribed = sub, true
	}

	if err := p.pipeline.SendImage(img); err != nil {
		if p.pipeline.BlockSize() != blockSize {
			// blocks of previous size are gone
			p.pending = 0
		}
		if p.pending == 0 {
			p.unsubscribe()
			p.state = Configured
		}
		return err
	}
	if resize && p.pending > 0 {
		p.log.WithField("discarded", p.pending).Debug("block size changed with outstanding sends")
		p.pending = 0
	}
	p.pending++
	p.state = next
	return nil
}

// onReadable is called by event loop when input channel has a captured
// block.
func (p *Processor) onReadable() {
	if p.state != Armed {
		return
	}
	if err := p.pipeline.ReceiveImage(p.deliver); err != nil {
		p.deliver(Result{Err: err})
	}
	// consumer might release the pipeline
	if p.state != Armed {
		return
	}
	p.pending--
	if p.pending <= 0 {
		p.pending = 0
		p.unsubscribe()
		p.state, _ = p.state.transition(notify)
	}
}

func (p *Processor) deliver(r Result) {
	if p.onResult != nil {
		p.onResult(r)
	}
}

func (p *Processor) unsubscribe() {
	if !p.subscribed {
		return
	}
	p.loop.Unsubscribe(p.sub)
	p.sub, p.subscribed = "", false
}

// abort closes resources acquired before err occurred.
func abort(err error, closers ...io.Closer) error {
	var errs execErrors
	for _, c := range closers {
		errs = errs.add(c.Close())
	}
	if closeErr := errs.ret(); closeErr != nil {
		return fmt.Errorf("rollback: %v after error: %w", closeErr, err)
	}
	return err
}
