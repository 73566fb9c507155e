// Package memres implements the polymorphic byte resource the rest of
// the library allocates through, plus the owning ByteAllocation handle
// that separates "bytes owned" from "live objects inside them".
//
// A Resource is a plain value: four function pointers plus opaque user
// data. It has no identity and no lifecycle beyond existing at a stable
// address. A nil *Resource on any handle means "use the process default".
package memres

import (
	"unsafe"

	"github.com/solidean/clean-core-go/internal/assert"
)

// Resource is the byte resource ABI. Implementations must uphold the
// size and alignment contracts exactly:
//
//   - AllocateBytes: min == 0 never reaches the function; for min > 0 the
//     returned pointer is non-nil and the returned size is in [min, max].
//   - TryAllocateBytes: like AllocateBytes but failure is reported as
//     (nil, -1) instead of being fatal.
//   - DeallocateBytes: the caller passes the exact pointer, the size last
//     returned by allocate/resize, and the allocation-time alignment.
//   - TryResizeInPlace: returns the new canonical size in [min, max] on
//     success, -1 on failure; the block never moves and on failure keeps
//     its old size. Shrinking is allowed.
type Resource struct {
	AllocateBytes    func(min, max, align int, userdata unsafe.Pointer) (unsafe.Pointer, int)
	TryAllocateBytes func(min, max, align int, userdata unsafe.Pointer) (unsafe.Pointer, int)
	DeallocateBytes  func(p unsafe.Pointer, bytes, align int, userdata unsafe.Pointer)
	TryResizeInPlace func(p unsafe.Pointer, oldBytes, min, max, align int, userdata unsafe.Pointer) int
	Userdata         unsafe.Pointer
}

// defaultResource backs the system allocator and is valid as soon as
// this package is initialized.
var defaultResource = newSystemResource(nil)

// Default returns the process-wide default resource. The pointer is
// stable for the lifetime of the process.
func Default() *Resource {
	return defaultResource
}

// Effective resolves a possibly-nil resource pointer to the resource to
// actually call into.
func Effective(r *Resource) *Resource {
	if r == nil {
		return defaultResource
	}
	return r
}

func checkRequest(min, max, align int) {
	assert.Thatf(min >= 0 && max >= min, assert.SizeMismatch,
		"0 <= min && min <= max", "invalid size range [%d, %d]", min, max)
	assert.Thatf(IsPowerOfTwo(align), assert.BadAlignment,
		"isPowerOfTwo(align)", "alignment %d must be a power of two", align)
}

// Allocate allocates between min and max bytes at the given alignment.
// min == 0 performs no allocation and returns (nil, 0). Allocation
// failure for min > 0 is fatal (routed through the assert handler).
func (r *Resource) Allocate(min, max, align int) (unsafe.Pointer, int) {
	checkRequest(min, max, align)
	if min == 0 {
		return nil, 0
	}
	assert.That(r.AllocateBytes != nil, assert.NilArgument,
		"r.AllocateBytes != nil", "resource must implement AllocateBytes")
	p, n := r.AllocateBytes(min, max, align, r.Userdata)
	assert.Thatf(p != nil && n >= min && n <= max, assert.MemoryExhausted,
		"p != nil && min <= n && n <= max",
		"allocation of [%d, %d] bytes failed", min, max)
	return p, n
}

// TryAllocate is Allocate with failure reported as (nil, -1) instead of
// being fatal.
func (r *Resource) TryAllocate(min, max, align int) (unsafe.Pointer, int) {
	checkRequest(min, max, align)
	if min == 0 {
		return nil, 0
	}
	fn := r.TryAllocateBytes
	if fn == nil {
		fn = r.AllocateBytes
	}
	assert.That(fn != nil, assert.NilArgument,
		"r.TryAllocateBytes != nil", "resource must implement an allocate entry point")
	return fn(min, max, align, r.Userdata)
}

// Deallocate returns a block to the resource. p must be the exact
// pointer returned by Allocate/TryAllocate, bytes the size last returned
// by allocate or resize, and align the allocation-time alignment.
// Deallocate(nil, 0, align) is a no-op.
func (r *Resource) Deallocate(p unsafe.Pointer, bytes, align int) {
	if p == nil {
		assert.That(bytes == 0, assert.SizeMismatch,
			"bytes == 0", "nil pointer with non-zero size")
		return
	}
	assert.That(r.DeallocateBytes != nil, assert.NilArgument,
		"r.DeallocateBytes != nil", "resource must implement DeallocateBytes")
	r.DeallocateBytes(p, bytes, align, r.Userdata)
}

// TryResize attempts to change the size of the block at p without moving
// it. Returns the new canonical size in [min, max], or -1 when the
// resource cannot resize in place (the block then keeps oldBytes).
func (r *Resource) TryResize(p unsafe.Pointer, oldBytes, min, max, align int) int {
	checkRequest(min, max, align)
	if r.TryResizeInPlace == nil {
		return -1
	}
	n := r.TryResizeInPlace(p, oldBytes, min, max, align, r.Userdata)
	assert.Thatf(n == -1 || (n >= min && n <= max), assert.InvalidState,
		"n == -1 || (min <= n && n <= max)",
		"resource returned out-of-range resize result %d", n)
	return n
}
