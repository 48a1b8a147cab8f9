// Package pool caches pools of fixed-size memory blocks. Pools with the
// same block size are shared across all users.
package pool

import "sync"

// Pool allocates blocks of the same size.
type Pool struct {
	size int
	pool sync.Pool
}

var m = struct {
	sync.Mutex
	pools map[int]*Pool
}{
	pools: map[int]*Pool{},
}

// Get returns pool for provided block size. Pools are cached internally,
// so multiple calls for same size will return the same pool instance.
func Get(blockSize int) *Pool {
	m.Lock()
	defer m.Unlock()
	if p, ok := m.pools[blockSize]; ok {
		return p
	}

	p := New(blockSize)
	m.pools[blockSize] = p
	return p
}

// New returns a pool which is not cached.
func New(blockSize int) *Pool {
	p := &Pool{size: blockSize}
	p.pool.New = func() interface{} {
		b := make([]byte, blockSize)
		return &b
	}
	return p
}

// Size returns the size of blocks allocated by the pool.
func (p *Pool) Size() int {
	return p.size
}

// Alloc returns zeroed block.
func (p *Pool) Alloc() []byte {
	b := *(p.pool.Get().(*[]byte))
	for i := range b {
		b[i] = 0
	}
	return b
}

// Free returns block to the pool. Blocks of different size are dropped.
func (p *Pool) Free(b []byte) {
	if cap(b) != p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}
