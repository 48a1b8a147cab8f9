package dyplodev

import (
	"unsafe"

	"github.com/topic-embedded-products/dyplo"
)

// Linux ioctl request encoding.
const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNrShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

const magic = 'd'

type (
	// routeTable is passed to route set and delete requests.
	routeTable struct {
		count  uint32
		routes uintptr
	}

	// dmaConfig is passed to DMA reconfigure request.
	dmaConfig struct {
		mode  uint32
		size  uint32
		count uint32
	}

	// dmaBlock describes a single DMA block.
	dmaBlock struct {
		id         uint32
		offset     uint32
		size       uint32
		bytesUsed  uint32
		userSignal uint16
		flags      uint16
		state      uint32
	}
)

// Requests of the dyplo driver.
var (
	iocRouteSet         = ioc(iocWrite, magic, 0x01, unsafe.Sizeof(routeTable{}))
	iocRouteDelete      = ioc(iocWrite, magic, 0x04, unsafe.Sizeof(routeTable{}))
	iocRouteQueryID     = ioc(iocNone, magic, 0x07, 0)
	iocBackplaneEnable  = ioc(iocNone, magic, 0x09, 0)
	iocBackplaneDisable = ioc(iocNone, magic, 0x0a, 0)
	iocDMAReconfigure   = ioc(iocRead|iocWrite, magic, 0x20, unsafe.Sizeof(dmaConfig{}))
	iocDMABlockQuery    = ioc(iocRead|iocWrite, magic, 0x22, unsafe.Sizeof(dmaBlock{}))
	iocDMABlockEnqueue  = ioc(iocRead|iocWrite, magic, 0x23, unsafe.Sizeof(dmaBlock{}))
	iocDMABlockDequeue  = ioc(iocRead|iocWrite, magic, 0x24, unsafe.Sizeof(dmaBlock{}))
)

// dmaModeCoherent selects coherent memory for DMA blocks.
const dmaModeCoherent = 1

// routeItem packs edge the way driver expects it: one byte per node
// and fifo index, destination in the low half.
func routeItem(e dyplo.Edge) uint32 {
	return uint32(e.To.Fifo&0xff) |
		uint32(e.To.Node&0xff)<<8 |
		uint32(e.From.Fifo&0xff)<<16 |
		uint32(e.From.Node&0xff)<<24
}

func routeItems(edges []dyplo.Edge) []uint32 {
	items := make([]uint32, 0, len(edges))
	for _, e := range edges {
		items = append(items, routeItem(e))
	}
	return items
}

// endpointFromID decodes route query result of a fifo.
func endpointFromID(id int) dyplo.Endpoint {
	return dyplo.Endpoint{
		Node: id & 0xff,
		Fifo: (id >> 8) & 0xff,
	}
}
