package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	r := prometheus.NewRegistry()
	m, err := New(r)
	require.NoError(t, err)

	m.FrameSent(16)
	m.FrameSent(16)
	m.FrameReceived(time.Millisecond)
	m.Reconfigured()
	m.NodeProgrammed("invert", ResultOK)
	m.NodeProgrammed("invert", ResultNotFound)
	m.NodeProgrammed("invert", ResultNotFound)
	m.PipelineOpened()
	m.PipelineOpened()
	m.PipelineClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesSent))
	assert.Equal(t, 32.0, testutil.ToFloat64(m.bytesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconfigurations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.nodePrograms.WithLabelValues("invert", ResultOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.nodePrograms.WithLabelValues("invert", ResultNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pipelines))

	count, err := testutil.GatherAndCount(r, "dyplo_roundtrip_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDuplicateRegistration(t *testing.T) {
	r := prometheus.NewRegistry()
	_, err := New(r)
	require.NoError(t, err)
	_, err = New(r)
	assert.Error(t, err)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.FrameSent(1)
		m.FrameReceived(time.Second)
		m.Reconfigured()
		m.NodeProgrammed("x", ResultError)
		m.PipelineOpened()
		m.PipelineClosed()
	})
}

func TestUnregistered(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	m.FrameSent(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.bytesSent))
}
