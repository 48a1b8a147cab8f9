package dyplo_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topic-embedded-products/dyplo"
	"github.com/topic-embedded-products/dyplo/hw/sim"
	"github.com/topic-embedded-products/dyplo/log"
	"github.com/topic-embedded-products/dyplo/metric"
)

func TestProgram(t *testing.T) {
	d := newDevice()
	a := dyplo.NewNodeAllocator(d)

	n, err := a.Program(sim.Invert)
	require.NoError(t, err)
	assert.Equal(t, 1, n.ID())
	assert.Equal(t, sim.Invert, n.Filter())
	assert.False(t, n.Enabled())
	assert.Equal(t, 0, d.Stats().Enabled)
	assert.Contains(t, d.Journal(), "load node 1 invert")

	// node 1 is busy
	n2, err := a.Program(sim.Xor80)
	require.NoError(t, err)
	assert.Equal(t, 2, n2.ID())

	_, err = a.Program(sim.Invert)
	assert.True(t, errors.Is(err, dyplo.ErrNotFound))

	require.NoError(t, n.Close())
	require.NoError(t, n2.Close())
	require.NoError(t, n2.Close())
	assert.Equal(t, sim.Stats{}, d.Stats())
}

func TestProgramSkipsBusy(t *testing.T) {
	d := newDevice()
	h, err := d.OpenNode(1)
	require.NoError(t, err)
	defer h.Close()

	n, err := dyplo.NewNodeAllocator(d).Program(sim.Invert)
	require.NoError(t, err)
	defer n.Close()
	assert.Equal(t, 2, n.ID())
}

func TestProgramNotFound(t *testing.T) {
	d := newDevice()
	_, err := dyplo.NewNodeAllocator(d).Program("sobel")
	assert.True(t, errors.Is(err, dyplo.ErrNotFound))
	assert.Equal(t, sim.Stats{}, d.Stats())
}

func TestProgramLoadFault(t *testing.T) {
	errFault := errors.New("devcfg failed")
	d := newDevice()
	d.InjectFault("load", errFault)

	_, err := dyplo.NewNodeAllocator(d).Program(sim.Invert)
	assert.True(t, errors.Is(err, errFault))
	assert.True(t, errors.Is(err, dyplo.ErrHardwareIO))
	assert.Equal(t, 0, d.Stats().Nodes, "node released")
}

func TestNodeEnable(t *testing.T) {
	d := newDevice()
	n, err := dyplo.NewNodeAllocator(d).Program(sim.Xor80)
	require.NoError(t, err)

	require.NoError(t, n.Enable())
	require.NoError(t, n.Enable())
	assert.True(t, n.Enabled())
	assert.Equal(t, 1, d.Stats().Enabled)

	require.NoError(t, n.Disable())
	assert.False(t, n.Enabled())
	assert.Equal(t, 0, d.Stats().Enabled)

	require.NoError(t, n.Close())
	assert.True(t, errors.Is(n.Enable(), dyplo.ErrInvalidState))
}

func TestProgramMetrics(t *testing.T) {
	r := prometheus.NewRegistry()
	m, err := metric.New(r)
	require.NoError(t, err)
	d := newDevice()
	a := dyplo.NewNodeAllocator(d, dyplo.AllocatorMetrics(m), dyplo.AllocatorLogger(log.Discard()))

	n, err := a.Program(sim.Invert)
	require.NoError(t, err)
	defer n.Close()
	_, err = a.Program("sobel")
	require.Error(t, err)

	assert.NoError(t, testutil.GatherAndCompare(r, strings.NewReader(`
# HELP dyplo_node_programs_total Total number of node programming attempts.
# TYPE dyplo_node_programs_total counter
dyplo_node_programs_total{filter="invert",result="ok"} 1
dyplo_node_programs_total{filter="sobel",result="not_found"} 1
`), "dyplo_node_programs_total"))
}
