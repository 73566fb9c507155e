// Package container implements the allocating container: typed element
// lifetime, front/back growth, capacity and reserve policy, and
// ordered/unordered removal layered on top of a memres.ByteAllocation.
//
// Vector is the back-growing derivation; FrontVector additionally
// preserves front capacity across reallocation and supports front
// insertion and removal.
package container

import (
	"unsafe"

	"github.com/solidean/clean-core-go/internal/assert"
	"github.com/solidean/clean-core-go/internal/lifetime"
	"github.com/solidean/clean-core-go/memres"
)

// DestructiveInterferenceSize is the alignment floor for container
// allocations. Aligning every allocation (and rounding every growth) to
// this multiple keeps distinct containers out of each other's cache
// lines.
const DestructiveInterferenceSize = 64

// MaxSlack bounds how much above the required minimum a growth request
// may ask for. Page-rounding resources can hand back a larger block
// without letting small allocations balloon.
const MaxSlack = 4096

// GrowSizeFor computes the exponential growth target: at least double
// the current size, at least minBytes, rounded up to the allocation
// alignment.
func GrowSizeFor(currBytes, minBytes, alignment int) int {
	return memres.AlignUp(maxInt(currBytes<<1, minBytes), alignment)
}

// GrowMaxFor computes the max-bytes companion of a growth request.
func GrowMaxFor(minBytes int) int {
	return minBytes + minInt(minBytes, MaxSlack)
}

func sizeOf[T any]() int {
	var z T
	return int(unsafe.Sizeof(z))
}

func alignOf[T any]() int {
	var z T
	return int(unsafe.Alignof(z))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Base is the allocating container core. It owns one ByteAllocation and
// layers size/capacity accounting, growth, resize and removal on top.
// The zero value is an empty container on the default resource.
//
// Base is not safe for concurrent mutation; callers synchronize
// externally.
type Base[T any] struct {
	data    memres.ByteAllocation[T]
	lf      lifetime.Funcs[T]
	lfReady bool

	// keepsFrontCapacity mirrors the derived container's policy: when
	// set, reallocation preserves the gap before the first element.
	keepsFrontCapacity bool
}

func (b *Base[T]) ensureFuncs() {
	if !b.lfReady {
		b.lf = lifetime.FuncsFor[T]()
		b.lfReady = true
	}
}

func (b *Base[T]) allocAlignment() int {
	return maxInt(alignOf[T](), DestructiveInterferenceSize)
}

// Len returns the number of live elements.
func (b *Base[T]) Len() int { return b.data.Len() }

// IsEmpty reports whether the container holds no elements.
func (b *Base[T]) IsEmpty() bool { return b.data.Len() == 0 }

// Cap returns Len plus the back capacity.
func (b *Base[T]) Cap() int { return b.data.Len() + b.data.CapacityBack() }

// CapacityBack returns how many elements can be appended without
// reallocation.
func (b *Base[T]) CapacityBack() int { return b.data.CapacityBack() }

// CapacityFront returns how many elements can be prepended without
// reallocation.
func (b *Base[T]) CapacityFront() int { return b.data.CapacityFront() }

// Span returns the live elements as a slice. Invalidated by any
// reallocating operation.
func (b *Base[T]) Span() []T { return b.data.ObjSpan() }

// At returns a pointer to the i-th element.
func (b *Base[T]) At(i int) *T { return b.data.At(i) }

// Get returns a copy of the i-th element.
func (b *Base[T]) Get(i int) T { return *b.data.At(i) }

// Set overwrites the i-th element.
func (b *Base[T]) Set(i int, v T) { *b.data.At(i) = v }

// First returns a pointer to the first element.
func (b *Base[T]) First() *T {
	assert.That(b.Len() > 0, assert.EmptyAccess, "len > 0", "front of empty container")
	return b.data.At(0)
}

// Last returns a pointer to the last element.
func (b *Base[T]) Last() *T {
	assert.That(b.Len() > 0, assert.EmptyAccess, "len > 0", "back of empty container")
	return b.data.At(b.Len() - 1)
}

// Resource returns the container's custom resource (nil means default).
func (b *Base[T]) Resource() *memres.Resource { return b.data.CustomResource() }

// pendingGrow tracks a growth in flight between begin and finalize. When
// fresh is set, alloc is a new block whose live window covers only the
// newly constructed elements, so abandoning it tears down exactly those.
type pendingGrow[T any] struct {
	fresh     bool
	alloc     memres.ByteAllocation[T]
	oldSize   int
	frontKept int
}

// beginGrowBack makes room for count more elements at the back. Either
// the current block is resized in place (construction continues at the
// existing window end) or a fresh block is prepared with its window
// positioned past where the old elements will later be moved.
func (b *Base[T]) beginGrowBack(count int) pendingGrow[T] {
	frontKept := 0
	if b.keepsFrontCapacity {
		frontKept = b.data.CapacityFront()
	}
	oldSize := b.data.Len()
	size := sizeOf[T]()

	curr := (frontKept + oldSize) * size
	minBytes := GrowSizeFor(curr, (frontKept+oldSize+count)*size, b.allocAlignment())
	maxBytes := GrowMaxFor(minBytes)

	if frontKept == b.data.CapacityFront() && b.data.TryResizeAlloc(minBytes, maxBytes) {
		return pendingGrow[T]{}
	}

	na := memres.CreateEmptyBytes[T](minBytes, maxBytes, b.allocAlignment(), b.data.CustomResource())
	na.PlaceLiveRange(frontKept+oldSize, 0)
	return pendingGrow[T]{fresh: true, alloc: na, oldSize: oldSize, frontKept: frontKept}
}

// growTarget returns the next construction slot of a pending growth.
func (b *Base[T]) growTarget(g *pendingGrow[T]) *T {
	if g.fresh {
		return g.alloc.ObjEndPtr()
	}
	return b.data.ObjEndPtr()
}

// commitOne extends the live window over one just-constructed element.
func (b *Base[T]) commitOne(g *pendingGrow[T]) {
	if g.fresh {
		g.alloc.AdvanceObjEnd(1)
	} else {
		b.data.AdvanceObjEnd(1)
	}
}

// abandon tears down a fresh growth, destroying exactly the elements
// constructed into it. The container is unchanged.
func (b *Base[T]) abandon(g *pendingGrow[T]) {
	if g.fresh {
		g.alloc.Release()
	}
}

// finalizeGrowBack moves the old elements into a fresh block (in reverse
// order, so a partial move still leaves a contiguous window) and adopts
// it. In-place growths need no finalization. Any reallocation
// invalidates all pointers into the container.
func (b *Base[T]) finalizeGrowBack(g *pendingGrow[T]) {
	if !g.fresh {
		return
	}
	g.alloc.AdvanceObjStart(-g.oldSize)
	dst := g.alloc.ObjSpan()[:g.oldSize]
	lifetime.MoveIntoReverse(dst, b.data.ObjSpan())
	b.data.MarkEmpty()
	b.data.Release()
	b.data = g.alloc
}

// EmplaceBack appends one element built in place by ctor. When ctor
// fails the container is unchanged (capacity may have grown). The
// returned pointer stays valid until the next reallocating operation.
//
// ctor may read existing elements: a fresh block's construction happens
// before the old storage is torn down.
func (b *Base[T]) EmplaceBack(ctor func(*T) error) (*T, error) {
	b.ensureFuncs()
	if b.data.CapacityBack() >= 1 {
		p := b.data.ObjEndPtr()
		var zero T
		*p = zero
		if err := ctor(p); err != nil {
			return nil, err
		}
		b.data.AdvanceObjEnd(1)
		return p, nil
	}

	g := b.beginGrowBack(1)
	p := b.growTarget(&g)
	var zero T
	*p = zero
	if err := ctor(p); err != nil {
		b.abandon(&g)
		return nil, err
	}
	b.commitOne(&g)
	b.finalizeGrowBack(&g)
	return b.data.At(b.data.Len() - 1), nil
}

// PushBack appends a copy of v and returns a pointer to the new element.
func (b *Base[T]) PushBack(v T) *T {
	p, _ := b.EmplaceBack(func(dst *T) error {
		*dst = v
		return nil
	})
	return p
}

// PushBackStable appends without any reallocation. The caller must have
// ensured back capacity; violating that is a contract breach.
func (b *Base[T]) PushBackStable(v T) *T {
	b.ensureFuncs()
	assert.That(b.data.CapacityBack() >= 1, assert.CapacityExceeded,
		"capacityBack >= 1", "stable push without back capacity")
	p := b.data.ObjEndPtr()
	*p = v
	b.data.AdvanceObjEnd(1)
	return p
}

// ReserveBack ensures room for count more elements at the back, growing
// exponentially.
func (b *Base[T]) ReserveBack(count int) {
	assert.That(count >= 0, assert.SizeMismatch, "count >= 0", "negative reserve")
	b.ensureFuncs()
	if b.data.CapacityBack() >= count {
		return
	}
	g := b.beginGrowBack(count)
	b.finalizeGrowBack(&g)
}

// ReserveBackExact ensures room for exactly count more elements, growing
// to the aligned-exact size instead of exponentially.
func (b *Base[T]) ReserveBackExact(count int) {
	assert.That(count >= 0, assert.SizeMismatch, "count >= 0", "negative reserve")
	b.ensureFuncs()
	if b.data.CapacityBack() >= count {
		return
	}
	frontKept := 0
	if b.keepsFrontCapacity {
		frontKept = b.data.CapacityFront()
	}
	size := sizeOf[T]()
	bytes := memres.AlignUp((frontKept+b.data.Len()+count)*size, b.allocAlignment())
	b.reallocMove(bytes, bytes, frontKept)
}

// reallocMove grows or shrinks the owned block to [minBytes, maxBytes],
// preferring an in-place resize and otherwise moving every element into
// a fresh block with frontKept elements of front capacity.
func (b *Base[T]) reallocMove(minBytes, maxBytes, frontKept int) {
	if frontKept == b.data.CapacityFront() && b.data.TryResizeAlloc(minBytes, maxBytes) {
		return
	}
	oldSize := b.data.Len()
	na := memres.CreateEmptyBytes[T](minBytes, maxBytes, b.allocAlignment(), b.data.CustomResource())
	na.PlaceLiveRange(frontKept, oldSize)
	lifetime.MoveIntoReverse(na.ObjSpan(), b.data.ObjSpan())
	b.data.MarkEmpty()
	b.data.Release()
	b.data = na
}

// ShrinkToFit reduces the owned block to the aligned size of the live
// elements, dropping all front and back capacity. Calling it twice in a
// row is a no-op the second time.
func (b *Base[T]) ShrinkToFit() {
	b.ensureFuncs()
	target := memres.AlignUp(b.data.Len()*sizeOf[T](), b.allocAlignment())
	if target == b.data.AllocSizeBytes() && b.data.CapacityFront() == 0 {
		return
	}
	if target == 0 {
		b.data.Release()
		return
	}
	b.reallocMove(target, target, 0)
}

// Clear destroys every element in reverse order. Capacity is kept.
func (b *Base[T]) Clear() {
	b.ResizeDownTo(0)
}

// Release destroys every element and returns the owned bytes to the
// resource. The container is reusable afterwards and keeps its resource.
func (b *Base[T]) Release() {
	b.ensureFuncs()
	b.data.Release()
}

// ExtractAllocation moves the owned allocation out, leaving the
// container empty. No element constructors or destructors run.
func (b *Base[T]) ExtractAllocation() memres.ByteAllocation[T] {
	var out memres.ByteAllocation[T]
	out.MoveFrom(&b.data)
	return out
}

// AdoptAllocation replaces the container's storage with a, releasing the
// previous storage. No element constructors or destructors run for the
// adopted elements.
func (b *Base[T]) AdoptAllocation(a *memres.ByteAllocation[T]) {
	b.ensureFuncs()
	b.data.MoveFrom(a)
}
