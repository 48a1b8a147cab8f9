package dyplo

import (
	"github.com/sirupsen/logrus"

	"github.com/topic-embedded-products/dyplo/metric"
)

// Option provides a way to set functional parameters to processor.
type Option func(*Processor)

// WithLogger sets logger to processor. If this option is not provided,
// silent logger is used.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Processor) {
		p.log = l
	}
}

// WithName sets name to processor. It's used as a prefix of pipeline
// names.
func WithName(n string) Option {
	return func(p *Processor) {
		p.name = n
	}
}

// WithMetrics adds metrics for processor and all its pipelines.
func WithMetrics(m *metric.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithEventLoop sets event loop used by asynchronous processing.
func WithEventLoop(l EventLoop) Option {
	return func(p *Processor) {
		p.loop = l
	}
}

// WithBufferCount sets the number of blocks in receive queue.
func WithBufferCount(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.bufferCount = n
		}
	}
}
