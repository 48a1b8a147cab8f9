// Package metric exposes pipeline counters as prometheus metrics.
//
// All methods are safe to call on nil *Metrics, which makes metrics
// optional for every component.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dyplo"

// Results of node programming.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Metrics holds all collectors.
type Metrics struct {
	framesSent       prometheus.Counter
	framesReceived   prometheus.Counter
	bytesSent        prometheus.Counter
	reconfigurations prometheus.Counter
	nodePrograms     *prometheus.CounterVec
	pipelines        prometheus.Gauge
	roundTrip        prometheus.Histogram
}

// New creates collectors and registers them with r. If r is nil,
// collectors are not registered.
func New(r prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total number of images written to output channels.",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of blocks received from input channels.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total number of bytes written to output channels.",
		}),
		reconfigurations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_reconfigurations_total",
			Help:      "Total number of receive queue reconfigurations.",
		}),
		nodePrograms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_programs_total",
			Help:      "Total number of node programming attempts.",
		}, []string{"filter", "result"}),
		pipelines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipelines_active",
			Help:      "Number of pipelines with routes established.",
		}),
		roundTrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "roundtrip_seconds",
			Help:      "Time between image send and block receive.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
	if r == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.framesSent,
		m.framesReceived,
		m.bytesSent,
		m.reconfigurations,
		m.nodePrograms,
		m.pipelines,
		m.roundTrip,
	}
}

// FrameSent counts written image of size bytes.
func (m *Metrics) FrameSent(size int) {
	if m == nil {
		return
	}
	m.framesSent.Inc()
	m.bytesSent.Add(float64(size))
}

// FrameReceived counts received block and observes its round trip.
func (m *Metrics) FrameReceived(roundTrip time.Duration) {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
	m.roundTrip.Observe(roundTrip.Seconds())
}

// Reconfigured counts receive queue reconfiguration.
func (m *Metrics) Reconfigured() {
	if m == nil {
		return
	}
	m.reconfigurations.Inc()
}

// NodeProgrammed counts node programming attempt with its result.
func (m *Metrics) NodeProgrammed(filter, result string) {
	if m == nil {
		return
	}
	m.nodePrograms.WithLabelValues(filter, result).Inc()
}

// PipelineOpened increments active pipelines.
func (m *Metrics) PipelineOpened() {
	if m == nil {
		return
	}
	m.pipelines.Inc()
}

// PipelineClosed decrements active pipelines.
func (m *Metrics) PipelineClosed() {
	if m == nil {
		return
	}
	m.pipelines.Dec()
}
