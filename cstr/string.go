// Package cstr implements a byte string with small-string optimization.
// A String is a 48-byte tagged union: up to 39 bytes live inline, longer
// content lives in a heap ByteAllocation over bytes. The mode tag is the
// low bit of the resource word both views share at offset 40 (resource
// pointers are always at least 2-aligned, so the bit is spare): 1 means
// inline, 0 means heap.
//
// The resource choice is sticky: it survives inline/heap transitions and
// move transfers. Size counts bytes, not codepoints; embedded NUL bytes
// are fine, and Data is not NUL-terminated unless materialized.
package cstr

import (
	"unsafe"

	"github.com/solidean/clean-core-go/container"
	"github.com/solidean/clean-core-go/internal/assert"
	"github.com/solidean/clean-core-go/memres"
)

// SSOCapacity is the inline capacity in bytes.
const SSOCapacity = 39

const allocAlignment = container.DestructiveInterferenceSize

// String is the 48-byte tagged union. The zero value is a valid empty
// string (heap-tagged with no storage); Empty and New produce the
// canonical inline form. Strings are move-only: transfer with MoveFrom
// or duplicate with Clone, never assign a live heap String.
type String struct {
	raw [6]uint64
}

// smallView is the inline representation: 39 data bytes, one size byte
// and the tagged resource word.
type smallView struct {
	data         [SSOCapacity]byte
	size         uint8
	resourceWord uintptr
}

// The three views must coincide exactly.
var (
	_ [unsafe.Sizeof(String{}) - 48]byte
	_ [48 - unsafe.Sizeof(String{})]byte
	_ [unsafe.Sizeof(smallView{}) - 48]byte
	_ [48 - unsafe.Sizeof(smallView{})]byte
	_ [unsafe.Sizeof(memres.ByteAllocation[byte]{}) - 48]byte
	_ [48 - unsafe.Sizeof(memres.ByteAllocation[byte]{})]byte
	_ [unsafe.Offsetof(smallView{}.resourceWord) - 40]byte
	_ [40 - unsafe.Offsetof(smallView{}.resourceWord)]byte
)

func (s *String) small() *smallView {
	return (*smallView)(unsafe.Pointer(s))
}

func (s *String) heap() *memres.ByteAllocation[byte] {
	return (*memres.ByteAllocation[byte])(unsafe.Pointer(s))
}

// IsSmall reports whether the string is in inline mode.
func (s *String) IsSmall() bool {
	return s.raw[5]&1 != 0
}

func packResourceWord(res *memres.Resource, small bool) uintptr {
	w := uintptr(unsafe.Pointer(res))
	if small {
		w |= 1
	}
	return w
}

// Resource returns the string's custom resource (nil means default),
// regardless of mode.
func (s *String) Resource() *memres.Resource {
	return (*memres.Resource)(unsafe.Pointer(uintptr(s.raw[5]) &^ 1))
}

// Empty returns an inline empty string on the default resource.
func Empty() String {
	return EmptyIn(nil)
}

// EmptyIn returns an inline empty string bound to res.
func EmptyIn(res *memres.Resource) String {
	var s String
	s.small().resourceWord = packResourceWord(res, true)
	return s
}

// New returns a string holding a copy of str.
func New(str string) String {
	return NewIn(nil, str)
}

// NewIn returns a string holding a copy of str, allocating from res
// when the content does not fit inline.
func NewIn(res *memres.Resource, str string) String {
	s := EmptyIn(res)
	s.Append(str)
	return s
}

// FromBytes returns a string holding a copy of b.
func FromBytes(b []byte) String {
	s := EmptyIn(nil)
	s.AppendBytes(b)
	return s
}

// NewCStrMaterialized returns a string that additionally owns a
// trailing NUL byte (not counted by Len), so CStrIfTerminated succeeds
// without further mutation.
func NewCStrMaterialized(str string) String {
	s := EmptyIn(nil)
	if len(str) < SSOCapacity {
		sv := s.small()
		copy(sv.data[:], str)
		sv.size = uint8(len(str))
		sv.data[len(str)] = 0
		return s
	}
	s.materializeHeap(len(str) + 1)
	hb := s.heap()
	hb.AdvanceObjEnd(len(str))
	copy(hb.ObjSpan(), str)
	*hb.ObjEndPtr() = 0
	return s
}

// Len returns the size in bytes.
func (s *String) Len() int {
	if s.IsSmall() {
		return int(s.small().size)
	}
	return s.heap().Len()
}

// IsEmpty reports whether the string has no content.
func (s *String) IsEmpty() bool {
	return s.Len() == 0
}

// Capacity returns how many bytes fit without reallocation.
func (s *String) Capacity() int {
	if s.IsSmall() {
		return SSOCapacity
	}
	hb := s.heap()
	return hb.Len() + hb.CapacityBack()
}

// Data returns the content. The slice aliases the string's storage and
// is invalidated by any mutating operation (and, in inline mode, by
// moving the String value itself).
func (s *String) Data() []byte {
	if s.IsSmall() {
		sv := s.small()
		return sv.data[:sv.size]
	}
	return s.heap().ObjSpan()
}

// String returns the content as a Go string copy.
func (s *String) String() string {
	return string(s.Data())
}

// At returns the i-th byte.
func (s *String) At(i int) byte {
	n := s.Len()
	assert.Thatf(i >= 0 && i < n, assert.OutOfBounds,
		"0 <= i && i < len", "index %d out of range [0, %d)", i, n)
	return s.Data()[i]
}

// Clear resets the size to zero. Heap storage is kept; a heap string
// never falls back to inline mode.
func (s *String) Clear() {
	if s.IsSmall() {
		s.small().size = 0
		return
	}
	s.heap().MarkEmpty()
}

// release frees heap storage, leaving raw in an undefined state the
// caller must overwrite.
func (s *String) release() {
	if !s.IsSmall() {
		s.heap().Release()
	}
}

// Release frees any owned storage and resets to inline-empty, keeping
// the sticky resource.
func (s *String) Release() {
	res := s.Resource()
	s.release()
	s.raw = [6]uint64{}
	s.small().resourceWord = packResourceWord(res, true)
}

// materializeHeap promotes an inline string to heap mode with at least
// minBack bytes of back capacity beyond the current content. The sticky
// resource is preserved; afterwards the mode tag reads heap.
func (s *String) materializeHeap(minBack int) {
	assert.That(s.IsSmall(), assert.InvalidState, "isSmall", "already in heap mode")
	sv := *s.small() // save the inline view before the union flips
	size := int(sv.size)
	res := s.Resource()

	byteSize := memres.AlignUp(size+minBack, allocAlignment)
	na := memres.CreateEmptyBytes[byte](byteSize, container.GrowMaxFor(byteSize), allocAlignment, res)
	na.AdvanceObjEnd(size)
	copy(na.ObjSpan(), sv.data[:size])
	*s.heap() = na
}

// heapGrow ensures room for extra more bytes at the back of a heap
// string, reusing the allocating container's growth policy (front
// capacity is preserved).
func (s *String) heapGrow(extra int) {
	hb := s.heap()
	if hb.CapacityBack() >= extra {
		return
	}
	size := hb.Len()
	front := hb.CapacityFront()
	minBytes := container.GrowSizeFor(front+size, front+size+extra, allocAlignment)
	maxBytes := container.GrowMaxFor(minBytes)
	if hb.TryResizeAlloc(minBytes, maxBytes) {
		return
	}
	na := memres.CreateEmptyBytes[byte](minBytes, maxBytes, allocAlignment, hb.CustomResource())
	na.PlaceLiveRange(front, size)
	copy(na.ObjSpan(), hb.ObjSpan())
	hb.MarkEmpty()
	hb.Release()
	*hb = na
}

// PushBack appends one byte.
func (s *String) PushBack(c byte) {
	if s.IsSmall() {
		sv := s.small()
		if int(sv.size) < SSOCapacity {
			sv.data[sv.size] = c
			sv.size++
			return
		}
		s.materializeHeap(1)
	}
	s.heapGrow(1)
	hb := s.heap()
	*hb.ObjEndPtr() = c
	hb.AdvanceObjEnd(1)
}

// Append appends the bytes of str.
func (s *String) Append(str string) {
	s.appendRaw(len(str), func(dst []byte) { copy(dst, str) })
}

// AppendBytes appends a copy of b.
func (s *String) AppendBytes(b []byte) {
	s.appendRaw(len(b), func(dst []byte) { copy(dst, b) })
}

func (s *String) appendRaw(n int, fill func(dst []byte)) {
	if n == 0 {
		return
	}
	if s.IsSmall() {
		sv := s.small()
		size := int(sv.size)
		if size+n <= SSOCapacity {
			fill(sv.data[size : size+n])
			sv.size = uint8(size + n)
			return
		}
		s.materializeHeap(n)
	}
	s.heapGrow(n)
	hb := s.heap()
	size := hb.Len()
	hb.AdvanceObjEnd(n)
	fill(hb.ObjSpan()[size:])
}

// Reserve ensures room for extra more bytes without changing content.
// An inline string with enough inline room is left alone.
func (s *String) Reserve(extra int) {
	assert.That(extra >= 0, assert.SizeMismatch, "extra >= 0", "negative reserve")
	if s.IsSmall() {
		if int(s.small().size)+extra <= SSOCapacity {
			return
		}
		s.materializeHeap(extra)
		return
	}
	s.heapGrow(extra)
}

// ResizeUninitialized sets the size to n bytes without initializing new
// content. Shrinking keeps storage and mode.
func (s *String) ResizeUninitialized(n int) {
	assert.That(n >= 0, assert.SizeMismatch, "n >= 0", "negative resize")
	if s.IsSmall() {
		sv := s.small()
		if n <= SSOCapacity {
			sv.size = uint8(n)
			return
		}
		s.materializeHeap(n - int(sv.size))
	}
	hb := s.heap()
	size := hb.Len()
	if n > size {
		s.heapGrow(n - size)
		hb = s.heap()
	}
	hb.AdvanceObjEnd(n - size)
}
