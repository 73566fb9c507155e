package noderes

import (
	"sync/atomic"
	"unsafe"

	"math/bits"

	"github.com/solidean/clean-core-go/internal/assert"
)

// Allocator is one thread's view of a node resource. For each class it
// tracks the current head of the thread's cyclic slab ring. Allocation
// is thread-owned and must only run on the owning thread; freeing a slot
// is wait-free and may happen anywhere.
type Allocator struct {
	resource *Resource
	heads    [SmallMaxClass + 1]unsafe.Pointer
	ringLen  [SmallMaxClass + 1]int32

	allocs    int64
	ringWalks int64
	refills   int64
}

// Resource returns the node resource this allocator belongs to.
func (a *Allocator) Resource() *Resource {
	return a.resource
}

// Allocs returns how many small-node allocations this view served.
func (a *Allocator) Allocs() int64 { return a.allocs }

// RingWalks returns how many allocations had to walk the slab ring.
func (a *Allocator) RingWalks() int64 { return a.ringWalks }

// Refills returns how many slabs were requested from the resource.
func (a *Allocator) Refills() int64 { return a.refills }

// takeSlot claims the lowest free slot of a slab. Clearing the bit is
// the owning thread's exclusive operation; remote frees only ever set
// bits, so the claimed bit cannot vanish between the load and the
// fetch-and.
func takeSlot(base unsafe.Pointer, idx ClassIndex, fm uint64) unsafe.Pointer {
	slot := bits.TrailingZeros64(fm)
	bit := uint64(1) << slot
	old := atomic.AndUint64((*uint64)(base), ^bit)
	assert.Thatf(old&bit != 0, assert.DoubleFree,
		"freemap bit was set", "double allocation of slot %d in slab %#x", slot, uintptr(base))
	return slotPtrFor(base, idx, slot)
}

// AllocateNodeBytes serves one slot of the given class from the calling
// thread's ring, refilling from the resource when the ring is exhausted.
func (a *Allocator) AllocateNodeBytes(idx ClassIndex) unsafe.Pointer {
	assert.Thatf(idx >= 0 && !IsLargeClass(idx), assert.InvalidState,
		"0 <= idx && idx <= smallMax", "class %d is not slab-backed", idx)
	a.allocs++

	head := a.heads[idx]
	if head == nil {
		a.refills++
		return a.resource.RefillSlabsAndAllocateNodeBytes(a, idx, a.resource.Userdata)
	}
	fm := atomic.LoadUint64((*uint64)(head))
	if fm != 0 {
		return takeSlot(head, idx, fm)
	}
	return a.allocateCold(idx)
}

// allocateCold walks the ring from the exhausted head looking for a slab
// with a free bit (remote frees may have returned slots anywhere). The
// walk is O(ring length); if every slab is full the resource refills.
func (a *Allocator) allocateCold(idx ClassIndex) unsafe.Pointer {
	a.ringWalks++
	start := a.heads[idx]
	for cur := slabNext(start); cur != start; cur = slabNext(cur) {
		assert.That(cur != nil, assert.InvalidState,
			"ring is cyclic", "slab ring broke; node resource bug")
		fm := atomic.LoadUint64((*uint64)(cur))
		if fm != 0 {
			a.heads[idx] = cur
			return takeSlot(cur, idx, fm)
		}
	}
	a.refills++
	return a.resource.RefillSlabsAndAllocateNodeBytes(a, idx, a.resource.Userdata)
}

// AllocateNodeBytesLarge serves a node above the small-max boundary
// through the resource's large path.
func (a *Allocator) AllocateNodeBytesLarge(idx ClassIndex, sizeBytes, alignment int) unsafe.Pointer {
	assert.That(a.resource.AllocateNodeBytesLarge != nil, assert.NilArgument,
		"resource.AllocateNodeBytesLarge != nil", "resource must implement AllocateNodeBytesLarge")
	return a.resource.AllocateNodeBytesLarge(idx, sizeBytes, alignment, a.resource.Userdata)
}

// RingLen returns the number of slabs in this thread's ring for a
// class. Diagnostics only.
func (a *Allocator) RingLen(idx ClassIndex) int {
	return int(a.ringLen[idx])
}

// HeadSlab returns the current head slab base for a class; nil before
// first use. Diagnostics only.
func (a *Allocator) HeadSlab(idx ClassIndex) unsafe.Pointer {
	return a.heads[idx]
}
