//go:build linux

package dyplodev

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/topic-embedded-products/dyplo"
	"github.com/topic-embedded-products/dyplo/log"
)

// pollInterval bounds how long readiness watcher blocks in poll.
const pollInterval = 100 // ms

// Device provides access to dyplo hardware through the driver.
type Device struct {
	cfg Config
	ctl int
	log logrus.FieldLogger
}

// Open opens the control device.
func Open(cfg Config, opts ...Option) (*Device, error) {
	o := options{log: log.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	fd, err := unix.Open(cfg.Control, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Control, err)
	}
	return &Device{
		cfg: cfg,
		ctl: fd,
		log: o.log,
	}, nil
}

// Close closes the control device.
func (d *Device) Close() error {
	return unix.Close(d.ctl)
}

func ioctlPtr(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func ioctlInt(fd int, req uintptr, arg int) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return 0, errno
	}
	return int(r), nil
}

// Route sets routes in the fabric.
func (d *Device) Route(edges ...dyplo.Edge) error {
	return d.routes(iocRouteSet, edges)
}

// Unroute deletes routes from the fabric.
func (d *Device) Unroute(edges ...dyplo.Edge) error {
	return d.routes(iocRouteDelete, edges)
}

func (d *Device) routes(req uintptr, edges []dyplo.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	items := routeItems(edges)
	t := routeTable{
		count:  uint32(len(items)),
		routes: uintptr(unsafe.Pointer(&items[0])),
	}
	err := ioctlPtr(d.ctl, req, unsafe.Pointer(&t))
	runtime.KeepAlive(items)
	if err != nil {
		return fmt.Errorf("routes %v: %w", edges, err)
	}
	return nil
}

// openDMA opens the first DMA device which isn't taken in provided mode.
func (d *Device) openDMA(flags int) (int, dyplo.Endpoint, error) {
	for i := 0; i < d.cfg.MaxDMA; i++ {
		path := fmt.Sprintf(d.cfg.DMA, i)
		fd, err := unix.Open(path, flags|unix.O_CLOEXEC, 0)
		switch {
		case errors.Is(err, unix.EBUSY):
			d.log.WithField("device", path).Debug("skip busy fifo")
			continue
		case errors.Is(err, unix.ENOENT):
			return 0, dyplo.Endpoint{}, fmt.Errorf("%d fifos probed: %w", i, dyplo.ErrResourceExhausted)
		case err != nil:
			return 0, dyplo.Endpoint{}, fmt.Errorf("open %s: %w", path, err)
		}
		id, err := ioctlInt(fd, iocRouteQueryID, 0)
		if err != nil {
			unix.Close(fd)
			return 0, dyplo.Endpoint{}, fmt.Errorf("query id of %s: %w", path, err)
		}
		return fd, endpointFromID(id), nil
	}
	return 0, dyplo.Endpoint{}, fmt.Errorf("%d fifos probed: %w", d.cfg.MaxDMA, dyplo.ErrResourceExhausted)
}

// OpenAvailableInput opens the first free fifo from logic.
func (d *Device) OpenAvailableInput() (dyplo.InputFifo, error) {
	fd, ep, err := d.openDMA(unix.O_RDONLY)
	if err != nil {
		return nil, err
	}
	return &inputFifo{
		fd: fd,
		ep: ep,
		w:  newPollWaitable(fd, d.log.WithField("fifo", ep)),
	}, nil
}

// OpenAvailableOutput opens the first free fifo to logic. It's opened
// for reading and writing since DMA memory can't be mapped write-only.
func (d *Device) OpenAvailableOutput() (dyplo.OutputFifo, error) {
	fd, ep, err := d.openDMA(unix.O_RDWR)
	if err != nil {
		return nil, err
	}
	return &outputFifo{fd: fd, ep: ep}, nil
}

// NodeCandidates returns nodes with partial image for filter.
func (d *Device) NodeCandidates(filter string) ([]int, error) {
	return candidates(d.cfg.Bitstreams, filter)
}

// OpenNode opens config device of the node.
func (d *Device) OpenNode(id int) (dyplo.NodeHandle, error) {
	path := fmt.Sprintf(d.cfg.Cfg, id)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	switch {
	case errors.Is(err, unix.EBUSY):
		return nil, fmt.Errorf("node %d: %w", id, dyplo.ErrBusy)
	case errors.Is(err, unix.ENOENT):
		return nil, fmt.Errorf("node %d: %w", id, dyplo.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &nodeHandle{dev: d, id: id, fd: fd}, nil
}

type outputFifo struct {
	fd int
	ep dyplo.Endpoint
}

func (f *outputFifo) Endpoint() dyplo.Endpoint {
	return f.ep
}

func (f *outputFifo) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(f.fd, p[written:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
		written += n
	}
	return written, nil
}

func (f *outputFifo) Close() error {
	return unix.Close(f.fd)
}

type inputFifo struct {
	fd     int
	ep     dyplo.Endpoint
	blocks [][]byte
	w      *pollWaitable
}

func (f *inputFifo) Endpoint() dyplo.Endpoint {
	return f.ep
}

func (f *inputFifo) Reconfigure(blockSize, count int) ([][]byte, error) {
	if err := f.unmap(); err != nil {
		return nil, err
	}
	req := dmaConfig{
		mode:  dmaModeCoherent,
		size:  uint32(blockSize),
		count: uint32(count),
	}
	if err := ioctlPtr(f.fd, iocDMAReconfigure, unsafe.Pointer(&req)); err != nil {
		return nil, fmt.Errorf("reconfigure %d blocks of %d bytes: %w", count, blockSize, err)
	}
	blocks := make([][]byte, 0, req.count)
	for id := uint32(0); id < req.count; id++ {
		b := dmaBlock{id: id}
		if err := ioctlPtr(f.fd, iocDMABlockQuery, unsafe.Pointer(&b)); err != nil {
			f.blocks = blocks
			return nil, fmt.Errorf("query block %d: %w", id, err)
		}
		mem, err := unix.Mmap(f.fd, int64(b.offset), int(b.size), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			f.blocks = blocks
			return nil, fmt.Errorf("map block %d: %w", id, err)
		}
		blocks = append(blocks, mem)
	}
	f.blocks = blocks
	return blocks, nil
}

func (f *inputFifo) unmap() error {
	for _, b := range f.blocks {
		if err := unix.Munmap(b); err != nil {
			return fmt.Errorf("unmap block: %w", err)
		}
	}
	f.blocks = nil
	return nil
}

func (f *inputFifo) Enqueue(id, bytesUsed int) error {
	b := dmaBlock{id: uint32(id), bytesUsed: uint32(bytesUsed)}
	return ioctlPtr(f.fd, iocDMABlockEnqueue, unsafe.Pointer(&b))
}

func (f *inputFifo) Dequeue() (int, int, error) {
	var b dmaBlock
	for {
		err := ioctlPtr(f.fd, iocDMABlockDequeue, unsafe.Pointer(&b))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, 0, err
		}
		return int(b.id), int(b.bytesUsed), nil
	}
}

func (f *inputFifo) Waitable() dyplo.Waitable {
	return f.w
}

func (f *inputFifo) Close() error {
	f.w.close()
	err := f.unmap()
	if closeErr := unix.Close(f.fd); closeErr != nil {
		return closeErr
	}
	return err
}

// pollWaitable reports readiness of file descriptor with poll.
type pollWaitable struct {
	fd      int
	mu      sync.Mutex
	started bool
	ch      chan struct{}
	stop    chan struct{}
	done    chan struct{}
	log     logrus.FieldLogger
}

func newPollWaitable(fd int, l logrus.FieldLogger) *pollWaitable {
	return &pollWaitable{
		fd:   fd,
		log:  l,
		ch:   make(chan struct{}),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Wait starts watcher goroutine on first call. Channel receives a value
// every time descriptor is readable.
func (w *pollWaitable) Wait() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		w.started = true
		go w.watch()
	}
	return w.ch
}

func (w *pollWaitable) Readable() bool {
	ready, err := w.poll(0)
	return err == nil && ready
}

func (w *pollWaitable) poll(timeout int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, timeout)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if fds[0].Revents&unix.POLLNVAL != 0 {
		return false, unix.EBADF
	}
	return fds[0].Revents&unix.POLLIN != 0, nil
}

func (w *pollWaitable) watch() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		default:
		}
		ready, err := w.poll(pollInterval)
		if err != nil && !errors.Is(err, unix.EINTR) {
			// readiness is never signalled again
			w.log.WithError(err).Error("stop watching fifo")
			return
		}
		if !ready {
			continue
		}
		select {
		case w.ch <- struct{}{}:
		case <-w.stop:
			return
		}
	}
}

func (w *pollWaitable) close() {
	w.mu.Lock()
	started := w.started
	w.started = true
	w.mu.Unlock()
	close(w.stop)
	if started {
		<-w.done
	}
}

type nodeHandle struct {
	dev *Device
	id  int
	fd  int
}

func (h *nodeHandle) ID() int {
	return h.id
}

func (h *nodeHandle) Endpoint(fifo int) dyplo.Endpoint {
	return dyplo.Endpoint{Node: h.id, Fifo: fifo}
}

func (h *nodeHandle) Enable() error {
	_, err := ioctlInt(h.fd, iocBackplaneEnable, 0)
	return err
}

func (h *nodeHandle) Disable() error {
	_, err := ioctlInt(h.fd, iocBackplaneDisable, 0)
	return err
}

// Load programs partial image of filter through devcfg.
func (h *nodeHandle) Load(filter string) error {
	path := bitstreamPath(h.dev.cfg.Bitstreams, filter, h.id)
	src, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("image %s: %w", path, dyplo.ErrNotFound)
		}
		return err
	}
	defer src.Close()

	if err := os.WriteFile(h.dev.cfg.PartialFlag, []byte("1"), 0); err != nil {
		return fmt.Errorf("mark partial image: %w", err)
	}
	dst, err := os.OpenFile(h.dev.cfg.Devcfg, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("program %s: %w", path, err)
	}
	h.dev.log.WithFields(logrus.Fields{"node": h.id, "image": path}).Debug("partial image loaded")
	return dst.Close()
}

func (h *nodeHandle) Close() error {
	return unix.Close(h.fd)
}
