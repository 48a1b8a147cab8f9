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
	"github.com/topic-embedded-products/dyplo/metric"
	"github.com/topic-embedded-products/dyplo/mock"
)

func newPipeline(t *testing.T, d *sim.Device, node *dyplo.Node, options ...dyplo.PipelineOption) *dyplo.Pipeline {
	t.Helper()
	in, err := dyplo.OpenInput(d)
	require.NoError(t, err)
	out, err := dyplo.OpenOutput(d)
	require.NoError(t, err)
	p, err := dyplo.NewPipeline(d, out, in, node, options...)
	require.NoError(t, err)
	return p
}

func grayImage(width, height int, pix []byte) dyplo.Image {
	return dyplo.Image{
		Pix:   pix,
		Shape: dyplo.NewShape(width, height, dyplo.Gray8),
	}
}

func TestLoopbackRoundTrip(t *testing.T) {
	tests := []struct {
		description string
		shape       dyplo.Shape
	}{
		{description: "gray", shape: dyplo.NewShape(4, 4, dyplo.Gray8)},
		{description: "rgb", shape: dyplo.NewShape(7, 3, dyplo.RGB888)},
		{description: "argb", shape: dyplo.NewShape(64, 48, dyplo.ARGB32)},
		{description: "padded stride", shape: dyplo.Shape{Width: 3, Height: 2, Stride: 8, Format: dyplo.Gray8}},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			d := newDevice()
			p := newPipeline(t, d, nil)
			defer p.Close()
			assert.Equal(t, dyplo.Loopback, p.Route().Mode())
			assert.Len(t, p.Route().Edges(), 1)

			img := dyplo.Image{Pix: payload(test.shape.Size()), Shape: test.shape}
			require.NoError(t, p.SendImage(img))
			assert.Equal(t, test.shape.Size(), p.BlockSize())

			c := &mock.Consumer{}
			require.NoError(t, p.ReceiveImage(c.Consume))
			images := c.Images()
			require.Len(t, images, 1)
			assert.Equal(t, img.Pix, images[0].Pix)
			assert.Equal(t, test.shape, images[0].Shape)
		})
	}
}

func TestThroughNode(t *testing.T) {
	d := newDevice()
	node, err := dyplo.NewNodeAllocator(d).Program(sim.Xor80)
	require.NoError(t, err)
	defer node.Close()
	p := newPipeline(t, d, node)
	defer p.Close()
	require.NoError(t, node.Enable())

	assert.Equal(t, dyplo.ThroughNode, p.Route().Mode())
	assert.Equal(t, []dyplo.Edge{
		{From: dyplo.Endpoint{Node: sim.DMABase}, To: dyplo.Endpoint{Node: 1}},
		{From: dyplo.Endpoint{Node: 1}, To: dyplo.Endpoint{Node: sim.DMABase}},
	}, p.Route().Edges())

	img := grayImage(2, 2, []byte{0x00, 0x80, 0xff, 0x7f})
	require.NoError(t, p.SendImage(img))
	c := &mock.Consumer{}
	require.NoError(t, p.ReceiveImage(c.Consume))
	require.Len(t, c.Images(), 1)
	assert.Equal(t, []byte{0x80, 0x00, 0x7f, 0xff}, c.Images()[0].Pix)
}

func TestResizeDiscardsUnreceived(t *testing.T) {
	d := newDevice()
	p := newPipeline(t, d, nil)
	defer p.Close()

	first := make([]byte, 100)
	for i := range first {
		first[i] = 0xaa
	}
	require.NoError(t, p.SendImage(grayImage(10, 10, first)))
	assert.Equal(t, 100, p.BlockSize())

	second := payload(200)
	require.NoError(t, p.SendImage(grayImage(20, 10, second)))
	assert.Equal(t, 200, p.BlockSize())

	c := &mock.Consumer{}
	require.NoError(t, p.ReceiveImage(c.Consume))
	require.Len(t, c.Images(), 1)
	assert.Equal(t, second, c.Images()[0].Pix)
	assert.False(t, p.Waitable().Readable(), "first image must be discarded")
}

func TestViewInvalidAfterCallback(t *testing.T) {
	d := newDevice()
	p := newPipeline(t, d, nil)
	defer p.Close()

	require.NoError(t, p.SendImage(grayImage(4, 1, []byte{1, 2, 3, 4})))
	c := &mock.Consumer{Retain: true}
	c.OnResult = func(r dyplo.Result) {
		assert.True(t, r.View.Valid())
		assert.Equal(t, []byte{2, 3}, r.View.Row(0)[1:3])
	}
	require.NoError(t, p.ReceiveImage(c.Consume))
	views := c.Views()
	require.Len(t, views, 1)
	assert.False(t, views[0].Valid())
	assert.Nil(t, views[0].Bytes())
	assert.Nil(t, views[0].Row(0))
}

func TestReceiveRearmsAfterPanic(t *testing.T) {
	d := newDevice()
	p := newPipeline(t, d, nil)
	defer p.Close()

	for i := 0; i < 2; i++ {
		require.NoError(t, p.SendImage(grayImage(2, 2, []byte{1, 2, 3, 4})))
		assert.Panics(t, func() {
			_ = p.ReceiveImage(func(dyplo.Result) {
				panic("consumer failed")
			})
		})
		assert.False(t, p.Queue().Outstanding())
	}

	require.NoError(t, p.SendImage(grayImage(2, 2, []byte{5, 6, 7, 8})))
	c := &mock.Consumer{}
	require.NoError(t, p.ReceiveImage(c.Consume))
	require.Len(t, c.Images(), 1)
	assert.Equal(t, []byte{5, 6, 7, 8}, c.Images()[0].Pix)
}

func TestPipelineInvalidState(t *testing.T) {
	d := newDevice()
	p := newPipeline(t, d, nil)

	err := p.ReceiveImage(func(dyplo.Result) {})
	assert.True(t, errors.Is(err, dyplo.ErrInvalidState), "receive before send")

	err = p.SendImage(grayImage(4, 4, make([]byte, 3)))
	assert.True(t, errors.Is(err, dyplo.ErrInvalidImage))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, sim.Stats{}, d.Stats())

	err = p.SendImage(grayImage(1, 1, []byte{1}))
	assert.True(t, errors.Is(err, dyplo.ErrInvalidState))
	err = p.ReceiveImage(func(dyplo.Result) {})
	assert.True(t, errors.Is(err, dyplo.ErrInvalidState))
}

func TestNewPipelineErrors(t *testing.T) {
	d := newDevice()
	in, err := dyplo.OpenInput(d)
	require.NoError(t, err)
	defer in.Close()
	out, err := dyplo.OpenOutput(d)
	require.NoError(t, err)
	defer out.Close()

	_, err = dyplo.NewPipeline(d, in, out, nil)
	assert.True(t, errors.Is(err, dyplo.ErrInvalidState), "swapped channels")

	errFault := errors.New("routing table full")
	d.InjectFault("route", errFault)
	_, err = dyplo.NewPipeline(d, out, in, nil)
	assert.True(t, errors.Is(err, dyplo.ErrHardwareIO))
	assert.False(t, out.Closed(), "channels belong to the caller on failure")
}

func TestPipelineMetrics(t *testing.T) {
	r := prometheus.NewRegistry()
	m, err := metric.New(r)
	require.NoError(t, err)

	d := newDevice()
	p := newPipeline(t, d, nil, dyplo.PipelineMetrics(m), dyplo.PipelineName("test"), dyplo.PipelineBufferCount(3))
	assert.Contains(t, p.String(), "test")
	require.NoError(t, p.SendImage(grayImage(2, 2, payload(4))))
	assert.Equal(t, 3, p.Queue().Count())
	require.NoError(t, p.ReceiveImage(func(dyplo.Result) {}))
	require.NoError(t, p.Close())

	assert.NoError(t, testutil.GatherAndCompare(r, strings.NewReader(`
# HELP dyplo_frames_sent_total Total number of images written to output channels.
# TYPE dyplo_frames_sent_total counter
dyplo_frames_sent_total 1
# HELP dyplo_bytes_sent_total Total number of bytes written to output channels.
# TYPE dyplo_bytes_sent_total counter
dyplo_bytes_sent_total 4
# HELP dyplo_pipelines_active Number of pipelines with routes established.
# TYPE dyplo_pipelines_active gauge
dyplo_pipelines_active 0
`), "dyplo_frames_sent_total", "dyplo_bytes_sent_total", "dyplo_pipelines_active"))
}
