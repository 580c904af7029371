// File: pool/framepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"math/bits"
	"sync/atomic"

	"github.com/momentics/hioload-pw/internal/concurrency"
)

const (
	minClassShift = 12 // 4 KiB
	maxClassShift = 26 // 64 MiB
	numClasses    = maxClassShift - minClassShift + 1

	// DefaultSlabsPerClass bounds how many idle slabs each class retains.
	DefaultSlabsPerClass = 8
)

// Stats reports pool activity.
type Stats struct {
	Allocated uint64 // slabs created
	Reused    uint64 // Get calls served from the pool
	Returned  uint64 // slabs accepted by Put
	Dropped   uint64 // slabs left to the GC
}

// FramePool recycles byte slabs between the loop worker (Get) and the host (Put).
type FramePool struct {
	classes [numClasses]*concurrency.LockFreeQueue[[]byte]

	allocated atomic.Uint64
	reused    atomic.Uint64
	returned  atomic.Uint64
	dropped   atomic.Uint64
}

// NewFramePool creates a pool retaining up to slabsPerClass idle slabs per class.
func NewFramePool(slabsPerClass int) *FramePool {
	if slabsPerClass <= 0 {
		slabsPerClass = DefaultSlabsPerClass
	}
	p := &FramePool{}
	for i := range p.classes {
		p.classes[i] = concurrency.NewLockFreeQueue[[]byte](slabsPerClass)
	}
	return p
}

func classOf(n int) int {
	if n <= 1<<minClassShift {
		return 0
	}
	return bits.Len(uint(n-1)) - minClassShift
}

// Get returns a slice of length n. Its capacity is the class size when n fits a class.
func (p *FramePool) Get(n int) []byte {
	c := classOf(n)
	if c >= numClasses {
		p.allocated.Add(1)
		return make([]byte, n)
	}
	if buf, ok := p.classes[c].Dequeue(); ok {
		p.reused.Add(1)
		return buf[:n]
	}
	p.allocated.Add(1)
	return make([]byte, n, 1<<(c+minClassShift))
}

// Put hands buf back. Slabs not produced by Get, or beyond retention, are dropped.
func (p *FramePool) Put(buf []byte) {
	size := cap(buf)
	if size < 1<<minClassShift || size&(size-1) != 0 {
		p.dropped.Add(1)
		return
	}
	c := classOf(size)
	if c >= numClasses || !p.classes[c].Enqueue(buf[:0]) {
		p.dropped.Add(1)
		return
	}
	p.returned.Add(1)
}

// Stats returns a snapshot of the counters.
func (p *FramePool) Stats() Stats {
	return Stats{
		Allocated: p.allocated.Load(),
		Reused:    p.reused.Load(),
		Returned:  p.returned.Load(),
		Dropped:   p.dropped.Load(),
	}
}
