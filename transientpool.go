package rhi

import (
	"container/list"
	"fmt"
	"sync"
)

// PoolStats contains transient pool statistics.
type PoolStats struct {
	// Available is the number of buffers ready for reuse.
	Available int

	// Used is the number of buffers handed out since the last Release.
	Used int

	// AvailableBytes and UsedBytes are the capacities of those buffers.
	AvailableBytes uint64
	UsedBytes      uint64

	// Allocations counts buffers created by the pool.
	Allocations uint64

	// Reuses counts Acquire calls served from the available list.
	Reuses uint64

	// Evictions counts buffers destroyed by Release to honor MaxBufferCount.
	Evictions uint64
}

// String returns a human-readable summary.
func (s PoolStats) String() string {
	return fmt.Sprintf("Pool[%d available (%d B), %d used (%d B), %d allocs, %d reuses, %d evictions]",
		s.Available, s.AvailableBytes, s.Used, s.UsedBytes, s.Allocations, s.Reuses, s.Evictions)
}

// TransientBufferPool recycles short-lived buffers of one usage.
//
// Acquire hands out buffers that stay valid until the next Release, which
// makes every handed-out buffer available again. The caller releases only
// once the GPU no longer reads the buffers.
//
// TransientBufferPool is safe for concurrent use.
type TransientBufferPool struct {
	mu sync.Mutex

	factory *ResourceFactory
	usage   BufferUsage
	cfg     PoolConfig
	tracked bool

	// available is ordered oldest first; eviction removes from the front.
	available *list.List
	used      []*Buffer

	allocations uint64
	reuses      uint64
	evictions   uint64
	destroyed   bool
}

// NewTransientBufferPool creates a pool of buffers with the given usage.
// Zero fields of cfg take DefaultMinBufferSize and DefaultMaxBufferCount.
// The pool's buffers count as live resources until Destroy.
func NewTransientBufferPool(factory *ResourceFactory, usage BufferUsage, cfg PoolConfig) *TransientBufferPool {
	return newTransientBufferPool(factory, usage, cfg, true)
}

func newTransientBufferPool(factory *ResourceFactory, usage BufferUsage, cfg PoolConfig, tracked bool) *TransientBufferPool {
	if cfg.MinBufferSize == 0 {
		cfg.MinBufferSize = DefaultMinBufferSize
	}
	if cfg.MaxBufferCount <= 0 {
		cfg.MaxBufferCount = DefaultMaxBufferCount
	}
	return &TransientBufferPool{
		factory:   factory,
		usage:     usage,
		cfg:       cfg,
		tracked:   tracked,
		available: list.New(),
	}
}

// Usage returns the usage every pool buffer is created with.
func (p *TransientBufferPool) Usage() BufferUsage { return p.usage }

// Acquire returns a buffer of at least size bytes.
//
// The first available buffer large enough is reused. Otherwise a new
// buffer of max(MinBufferSize, size) bytes is created. The only failure is
// a backend allocation failure.
func (p *TransientBufferPool) Acquire(size uint64) (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return nil, fmt.Errorf("acquire pool buffer: %w: pool destroyed", ErrInvalidState)
	}
	for e := p.available.Front(); e != nil; e = e.Next() {
		b := e.Value.(*Buffer)
		if b.desc.SizeInBytes >= size {
			p.available.Remove(e)
			p.used = append(p.used, b)
			p.reuses++
			return b, nil
		}
	}

	b, err := p.factory.createBuffer(BufferDescription{
		SizeInBytes: max(p.cfg.MinBufferSize, size),
		Usage:       p.usage,
	}, "transient", p.tracked)
	if err != nil {
		return nil, fmt.Errorf("acquire pool buffer: %w", err)
	}
	p.used = append(p.used, b)
	p.allocations++
	Logger().Debug("rhi: pool allocation", "size", b.desc.SizeInBytes, "usage", p.usage.String())
	return b, nil
}

// Release makes every used buffer available again and destroys the oldest
// available buffers beyond MaxBufferCount.
func (p *TransientBufferPool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
}

func (p *TransientBufferPool) releaseLocked() {
	for _, b := range p.used {
		p.available.PushBack(b)
	}
	p.used = p.used[:0]

	evicted := 0
	for p.available.Len() > p.cfg.MaxBufferCount {
		b := p.available.Remove(p.available.Front()).(*Buffer)
		b.Destroy()
		evicted++
	}
	if evicted > 0 {
		p.evictions += uint64(evicted)
		Logger().Debug("rhi: pool eviction", "evicted", evicted, "available", p.available.Len())
	}
}

// Destroy releases the pool and destroys every buffer it owns.
// A second call is a no-op.
func (p *TransientBufferPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return
	}
	p.releaseLocked()
	for e := p.available.Front(); e != nil; e = e.Next() {
		e.Value.(*Buffer).Destroy()
	}
	p.available.Init()
	p.destroyed = true
}

// Stats returns a snapshot of the pool statistics.
func (p *TransientBufferPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := PoolStats{
		Available:   p.available.Len(),
		Used:        len(p.used),
		Allocations: p.allocations,
		Reuses:      p.reuses,
		Evictions:   p.evictions,
	}
	for e := p.available.Front(); e != nil; e = e.Next() {
		s.AvailableBytes += e.Value.(*Buffer).desc.SizeInBytes
	}
	for _, b := range p.used {
		s.UsedBytes += b.desc.SizeInBytes
	}
	return s
}

// availableSizes returns the capacities of the available buffers, oldest first.
func (p *TransientBufferPool) availableSizes() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	sizes := make([]uint64, 0, p.available.Len())
	for e := p.available.Front(); e != nil; e = e.Next() {
		sizes = append(sizes, e.Value.(*Buffer).desc.SizeInBytes)
	}
	return sizes
}
