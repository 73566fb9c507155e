package noderes

import (
	"unsafe"

	"github.com/solidean/clean-core-go/internal/assert"
	"github.com/solidean/clean-core-go/internal/lifetime"
)

// NodeHandle owns one node-allocated T and holds nothing but the
// pointer: everything needed to free is derived from the pointer value
// and the size/alignment of T. The handle is move-only by convention;
// transfer with MoveFrom and never copy a live handle.
type NodeHandle[T any] struct {
	ptr *T
}

// NewNode allocates a node on the calling thread's allocator of the
// default node resource and moves v into it.
func NewNode[T any](v T) NodeHandle[T] {
	return NewNodeIn(DefaultAllocator(), v)
}

// NewNodeIn allocates a node from the given allocator view and moves v
// into it.
func NewNodeIn[T any](a *Allocator, v T) NodeHandle[T] {
	assert.That(a != nil, assert.NilArgument, "a != nil", "node allocation without an allocator")
	var z T
	size := int(unsafe.Sizeof(z))
	align := int(unsafe.Alignof(z))
	idx := ClassIndexFor(size, align)

	var p unsafe.Pointer
	if IsLargeClass(idx) {
		p = a.AllocateNodeBytesLarge(idx, size, align)
	} else {
		p = a.AllocateNodeBytes(idx)
	}
	tp := (*T)(p)
	*tp = v
	return NodeHandle[T]{ptr: tp}
}

// IsValid reports whether the handle owns a node.
func (h *NodeHandle[T]) IsValid() bool {
	return h.ptr != nil
}

// Get returns the owned node.
func (h *NodeHandle[T]) Get() *T {
	assert.That(h.ptr != nil, assert.EmptyAccess, "ptr != nil", "access through an empty node handle")
	return h.ptr
}

// Release tears the node down (Deinit when implemented) and returns its
// slot by setting the freemap bit derived from the pointer. Safe to call
// on an empty handle.
func (h *NodeHandle[T]) Release() {
	if h.ptr == nil {
		return
	}
	lf := lifetime.FuncsFor[T]()
	if lf.Destroy != nil {
		lf.Destroy(h.ptr)
	}
	idx := ClassIndexOf[T]()
	if IsLargeClass(idx) {
		FreeLargeNodeBytes(unsafe.Pointer(h.ptr), idx)
	} else {
		FreeNodeBytes(unsafe.Pointer(h.ptr), idx)
	}
	h.ptr = nil
}

// Take moves the node out of the handle, leaving it empty. The caller
// becomes responsible for freeing through another handle.
func (h *NodeHandle[T]) Take() NodeHandle[T] {
	out := NodeHandle[T]{ptr: h.ptr}
	h.ptr = nil
	return out
}

// MoveFrom transfers rhs into h: steal into a temporary, tear down h,
// adopt. The ordering keeps the transfer safe even when rhs is a
// subobject of the node h owns. rhs is left empty.
func (h *NodeHandle[T]) MoveFrom(rhs *NodeHandle[T]) {
	if h == rhs {
		return
	}
	tmp := rhs.ptr
	rhs.ptr = nil
	h.Release()
	h.ptr = tmp
}
