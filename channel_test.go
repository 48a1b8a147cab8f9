package dyplo_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topic-embedded-products/dyplo"
	"github.com/topic-embedded-products/dyplo/hw/sim"
)

func TestChannel(t *testing.T) {
	d := newDevice(sim.WithDMA(1))
	in, err := dyplo.OpenInput(d)
	require.NoError(t, err)
	out, err := dyplo.OpenOutput(d)
	require.NoError(t, err)

	assert.Equal(t, dyplo.Input, in.Direction())
	assert.Equal(t, dyplo.Output, out.Direction())
	assert.Equal(t, dyplo.Endpoint{Node: sim.DMABase}, in.Endpoint())

	_, err = dyplo.OpenInput(d)
	assert.True(t, errors.Is(err, dyplo.ErrResourceExhausted))
	_, err = dyplo.OpenOutput(d)
	assert.True(t, errors.Is(err, dyplo.ErrResourceExhausted))

	_, err = in.Write([]byte{1})
	assert.True(t, errors.Is(err, dyplo.ErrInvalidState))
	n, err := out.Write([]byte{1, 2})
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, in.Close())
	require.NoError(t, in.Close())
	require.NoError(t, out.Close())
	assert.True(t, out.Closed())
	_, err = out.Write([]byte{1})
	assert.True(t, errors.Is(err, dyplo.ErrInvalidState))
	assert.Equal(t, sim.Stats{}, d.Stats())

	var nilChannel *dyplo.Channel
	assert.NoError(t, nilChannel.Close())
}

func TestChannelWriteFault(t *testing.T) {
	errFault := errors.New("dma write failed")
	d := newDevice()
	out, err := dyplo.OpenOutput(d)
	require.NoError(t, err)
	defer out.Close()

	d.InjectFault("write", errFault)
	_, err = out.Write([]byte{1})
	var hwErr *dyplo.HardwareError
	require.True(t, errors.As(err, &hwErr))
	assert.Equal(t, "write", hwErr.Op)
	assert.True(t, errors.Is(err, dyplo.ErrHardwareIO))
	assert.True(t, errors.Is(err, errFault))
}
