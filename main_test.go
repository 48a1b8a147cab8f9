package dyplo_test

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/topic-embedded-products/dyplo/hw/sim"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newDevice returns simulated device with two DMA nodes and two node
// slots which accept all built-in filters.
func newDevice(options ...sim.Option) *sim.Device {
	filters := []string{sim.IdentityLoopback, sim.Invert, sim.Xor80}
	return sim.New(append([]sim.Option{
		sim.WithSlot(1, filters...),
		sim.WithSlot(2, filters...),
	}, options...)...)
}

func payload(size int) []byte {
	p := make([]byte, size)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}
