package memres

import (
	"unsafe"

	"github.com/solidean/clean-core-go/internal/assert"
	"github.com/solidean/clean-core-go/internal/lifetime"
)

// ByteAllocation owns one byte range acquired from a resource and a
// typed live window strictly inside it:
//
//	allocStart <= objStart <= objEnd <= allocEnd
//
// [objStart, objEnd) holds live T values; [allocStart, allocEnd) is the
// owned byte range. objStart and objEnd stay aligned to the alignment of
// T even when the live window is empty.
//
// Ownership is exclusive. The handle is move-only by convention: use
// MoveFrom to transfer (the source is left all-zero) and never copy a
// live handle. Release destroys every live object in reverse order and
// then returns the bytes to the effective resource.
//
// The resource field keeps the handle's custom resource; nil means the
// process default. Note that values of T stored here live outside the
// garbage collector's view: pointers inside elements do not keep their
// referents alive on their own.
type ByteAllocation[T any] struct {
	objStart   unsafe.Pointer
	objEnd     unsafe.Pointer
	allocStart unsafe.Pointer
	allocEnd   unsafe.Pointer
	alignment  int
	resource   *Resource
}

func sizeOf[T any]() int {
	var z T
	return int(unsafe.Sizeof(z))
}

func alignOf[T any]() int {
	var z T
	return int(unsafe.Alignof(z))
}

// CreateEmptyBytes allocates between minBytes and maxBytes at the given
// alignment and sets an empty live window at the start of the block.
// minBytes == 0 performs no allocation.
func CreateEmptyBytes[T any](minBytes, maxBytes, alignment int, res *Resource) ByteAllocation[T] {
	assert.That(sizeOf[T]() > 0, assert.InvalidState,
		"sizeof(T) > 0", "zero-sized element types are not supported")
	alignment = maxInt(alignment, alignOf[T]())
	a := ByteAllocation[T]{alignment: alignment, resource: res}
	if minBytes == 0 {
		return a
	}
	p, n := Effective(res).Allocate(minBytes, maxBytes, alignment)
	a.allocStart = p
	a.allocEnd = unsafe.Add(p, n)
	a.objStart = p
	a.objEnd = p
	return a
}

// CreateEmpty allocates room for exactly count elements with an empty
// live window.
func CreateEmpty[T any](count, alignment int, res *Resource) ByteAllocation[T] {
	bytes := count * sizeOf[T]()
	return CreateEmptyBytes[T](bytes, bytes, alignment, res)
}

// CreateDefaulted allocates count elements and zero-initializes them.
func CreateDefaulted[T any](count int, res *Resource) ByteAllocation[T] {
	a := CreateEmpty[T](count, alignOf[T](), res)
	if count > 0 {
		raw := unsafe.Slice((*byte)(a.objStart), count*sizeOf[T]())
		clear(raw)
		a.objEnd = unsafe.Add(a.objStart, count*sizeOf[T]())
	}
	return a
}

// CreateFilled allocates count elements and initializes each to value.
func CreateFilled[T any](count int, value T, res *Resource) ByteAllocation[T] {
	a := CreateEmpty[T](count, alignOf[T](), res)
	size := sizeOf[T]()
	for i := 0; i < count; i++ {
		*(*T)(unsafe.Add(a.objStart, i*size)) = value
		a.objEnd = unsafe.Add(a.objStart, (i+1)*size)
	}
	return a
}

// CreateUninitialized allocates count elements and extends the live
// window over them without initializing the memory. T must be trivially
// destructible and free of Go pointers; violations go through the assert
// handler.
func CreateUninitialized[T any](count int, res *Resource) ByteAllocation[T] {
	lf := lifetime.FuncsFor[T]()
	assert.That(lf.Trivial && lf.PointerFree, assert.InvalidState,
		"trivial(T) && pointerFree(T)",
		"uninitialized creation requires a trivially destructible, pointer-free element type")
	return CreateUninitializedUnsafe[T](count, res)
}

// CreateUninitializedUnsafe is CreateUninitialized without the type
// checks. The safety burden is entirely on the caller.
func CreateUninitializedUnsafe[T any](count int, res *Resource) ByteAllocation[T] {
	a := CreateEmpty[T](count, alignOf[T](), res)
	if count > 0 {
		a.objEnd = unsafe.Add(a.objStart, count*sizeOf[T]())
	}
	return a
}

// CreateCopyOf allocates len(src) elements and copies src into them.
func CreateCopyOf[T any](src []T, res *Resource) ByteAllocation[T] {
	a := CreateEmpty[T](len(src), alignOf[T](), res)
	if len(src) > 0 {
		a.objEnd = unsafe.Add(a.objStart, len(src)*sizeOf[T]())
		copy(a.ObjSpan(), src)
	}
	return a
}

// IsValid reports whether the handle's invariants hold.
func (a *ByteAllocation[T]) IsValid() bool {
	if a.allocStart == nil {
		return a.allocEnd == nil && a.objStart == nil && a.objEnd == nil
	}
	align := alignOf[T]()
	return uintptr(a.allocStart) <= uintptr(a.objStart) &&
		uintptr(a.objStart) <= uintptr(a.objEnd) &&
		uintptr(a.objEnd) <= uintptr(a.allocEnd) &&
		IsAlignedPtr(a.objStart, align) &&
		IsAlignedPtr(a.objEnd, align)
}

// Len returns the number of live elements.
func (a *ByteAllocation[T]) Len() int {
	return int(uintptr(a.objEnd)-uintptr(a.objStart)) / sizeOf[T]()
}

// AllocSizeBytes returns the size of the owned byte range.
func (a *ByteAllocation[T]) AllocSizeBytes() int {
	return int(uintptr(a.allocEnd) - uintptr(a.allocStart))
}

// CapacityFront returns how many whole elements fit between allocStart
// and objStart.
func (a *ByteAllocation[T]) CapacityFront() int {
	return int(uintptr(a.objStart)-uintptr(a.allocStart)) / sizeOf[T]()
}

// CapacityBack returns how many whole elements fit between objEnd and
// allocEnd.
func (a *ByteAllocation[T]) CapacityBack() int {
	return int(uintptr(a.allocEnd)-uintptr(a.objEnd)) / sizeOf[T]()
}

// ObjSpan returns the live window as a slice. The slice is invalidated
// by any operation that reallocates or moves the window.
func (a *ByteAllocation[T]) ObjSpan() []T {
	n := a.Len()
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(a.objStart), n)
}

// At returns a pointer to the i-th live element.
func (a *ByteAllocation[T]) At(i int) *T {
	assert.Thatf(i >= 0 && i < a.Len(), assert.OutOfBounds,
		"0 <= i && i < len", "index %d out of range [0, %d)", i, a.Len())
	return (*T)(unsafe.Add(a.objStart, i*sizeOf[T]()))
}

// ObjStartPtr returns the first live slot. Only meaningful for callers
// managing the window directly.
func (a *ByteAllocation[T]) ObjStartPtr() *T {
	return (*T)(a.objStart)
}

// ObjEndPtr returns the slot one past the live window, i.e. the next
// back construction target. The caller must ensure back capacity.
func (a *ByteAllocation[T]) ObjEndPtr() *T {
	return (*T)(a.objEnd)
}

// AdvanceObjEnd moves the back boundary by n elements (n may be
// negative). No constructors or destructors run.
func (a *ByteAllocation[T]) AdvanceObjEnd(n int) {
	a.objEnd = unsafe.Add(a.objEnd, n*sizeOf[T]())
	assert.That(a.IsValid(), assert.InvalidState,
		"a.IsValid()", "live window left the owned byte range")
}

// AdvanceObjStart moves the front boundary by n elements (n may be
// negative). No constructors or destructors run.
func (a *ByteAllocation[T]) AdvanceObjStart(n int) {
	a.objStart = unsafe.Add(a.objStart, n*sizeOf[T]())
	assert.That(a.IsValid(), assert.InvalidState,
		"a.IsValid()", "live window left the owned byte range")
}

// PlaceLiveRange positions an empty-or-uninitialized live window at
// frontElems elements past the aligned base of the block, spanning count
// elements. No constructors run; the caller owns initialization.
func (a *ByteAllocation[T]) PlaceLiveRange(frontElems, count int) {
	assert.That(a.allocStart != nil || (frontElems == 0 && count == 0), assert.InvalidState,
		"allocStart != nil", "cannot place a live range without an allocation")
	if a.allocStart == nil {
		return
	}
	base := alignUpPtr(a.allocStart, alignOf[T]())
	a.objStart = unsafe.Add(base, frontElems*sizeOf[T]())
	a.objEnd = unsafe.Add(a.objStart, count*sizeOf[T]())
	assert.That(a.IsValid(), assert.InvalidState,
		"a.IsValid()", "live window left the owned byte range")
}

// TryResizeAlloc attempts to grow or shrink the owned byte range in
// place. On success allocEnd is updated and true is returned; the block
// never moves. minBytes must cover the bytes occupied by the live
// window.
func (a *ByteAllocation[T]) TryResizeAlloc(minBytes, maxBytes int) bool {
	assert.Thatf(minBytes >= 0 && maxBytes >= minBytes, assert.SizeMismatch,
		"0 <= min && min <= max", "invalid size range [%d, %d]", minBytes, maxBytes)
	occupied := int(uintptr(a.objEnd) - uintptr(a.allocStart))
	assert.Thatf(minBytes >= occupied, assert.SizeMismatch,
		"min >= occupiedBytes", "cannot resize to %d bytes below the %d bytes occupied by live objects",
		minBytes, occupied)
	if a.allocStart == nil {
		return minBytes == 0
	}
	n := a.EffectiveResource().TryResize(a.allocStart, a.AllocSizeBytes(), minBytes, maxBytes, a.alignment)
	if n < 0 {
		return false
	}
	a.allocEnd = unsafe.Add(a.allocStart, n)
	return true
}

// CustomResource returns the handle's own resource pointer, which may be
// nil ("use the default"). The choice is sticky: factories and MoveFrom
// carry it along.
func (a *ByteAllocation[T]) CustomResource() *Resource {
	return a.resource
}

// EffectiveResource resolves the handle's resource.
func (a *ByteAllocation[T]) EffectiveResource() *Resource {
	return Effective(a.resource)
}

// Alignment returns the allocation-time alignment.
func (a *ByteAllocation[T]) Alignment() int {
	return a.alignment
}

// Release destroys every live element in reverse order, deallocates the
// owned bytes and resets the window. The resource choice and alignment
// are kept so the handle can be refilled.
func (a *ByteAllocation[T]) Release() {
	if n := a.Len(); n > 0 {
		lf := lifetime.FuncsFor[T]()
		lifetime.DestroyReverse(a.ObjSpan(), lf.Destroy)
	}
	if a.allocStart != nil {
		a.EffectiveResource().Deallocate(a.allocStart, a.AllocSizeBytes(), a.alignment)
	}
	a.objStart = nil
	a.objEnd = nil
	a.allocStart = nil
	a.allocEnd = nil
}

// MarkEmpty collapses the live window without running destructors or
// touching the owned bytes. Used after element ownership has been
// transferred elsewhere.
func (a *ByteAllocation[T]) MarkEmpty() {
	a.objEnd = a.objStart
}

// MoveFrom transfers rhs into a. The transfer steals rhs into a
// temporary first, then tears down a, then adopts: this ordering keeps
// the operation safe even when rhs is a subobject of an element owned by
// a. rhs is left all-zero.
func (a *ByteAllocation[T]) MoveFrom(rhs *ByteAllocation[T]) {
	if a == rhs {
		return
	}
	tmp := *rhs
	*rhs = ByteAllocation[T]{}
	a.Release()
	*a = tmp
}
