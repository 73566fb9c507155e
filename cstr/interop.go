package cstr

import (
	"bytes"
	"unsafe"

	"github.com/solidean/clean-core-go/memres"
)

// CStrMaterialize guarantees a NUL byte directly after the content and
// returns content plus terminator (length Len()+1). An inline string at
// full capacity is promoted to heap mode to make room. The returned
// slice is valid until the next mutating operation.
func (s *String) CStrMaterialize() []byte {
	if s.IsSmall() {
		sv := s.small()
		if int(sv.size) < SSOCapacity {
			sv.data[sv.size] = 0
			return sv.data[: int(sv.size)+1 : int(sv.size)+1]
		}
		s.materializeHeap(1)
	}
	s.heapGrow(1)
	hb := s.heap()
	*hb.ObjEndPtr() = 0
	return unsafe.Slice(hb.ObjStartPtr(), hb.Len()+1)
}

// CStrIfTerminated returns content plus terminator when the byte at
// position Len() already is NUL and lies within the owned capacity;
// ok is false otherwise. The string is not mutated.
func (s *String) CStrIfTerminated() (b []byte, ok bool) {
	if s.IsSmall() {
		sv := s.small()
		if int(sv.size) < SSOCapacity && sv.data[sv.size] == 0 {
			return sv.data[: int(sv.size)+1 : int(sv.size)+1], true
		}
		return nil, false
	}
	hb := s.heap()
	if hb.CapacityBack() < 1 || *hb.ObjEndPtr() != 0 {
		return nil, false
	}
	return unsafe.Slice(hb.ObjStartPtr(), hb.Len()+1), true
}

// newHeapCopy builds a heap-mode string over a copy of data, allocating
// from res.
func newHeapCopy(res *memres.Resource, data []byte) String {
	out := EmptyIn(res)
	out.materializeHeap(len(data))
	hb := out.heap()
	hb.AdvanceObjEnd(len(data))
	copy(hb.ObjSpan(), data)
	return out
}

// Clone duplicates the string. An inline source is copied blockwise
// (mode tag and resource included); a heap source gets a fresh heap
// block with the same bytes and resource.
func (s *String) Clone() String {
	if s.IsSmall() {
		return String{raw: s.raw}
	}
	return newHeapCopy(s.Resource(), s.Data())
}

// CopyFrom replaces the content with a copy of rhs. An inline rhs is
// copied blockwise; a heap rhs is copied into a fresh heap block
// allocated from this string's own (sticky) resource. Self-assignment
// is a no-op.
func (s *String) CopyFrom(rhs *String) {
	if s == rhs {
		return
	}
	if rhs.IsSmall() {
		s.release()
		s.raw = rhs.raw
		return
	}
	fresh := newHeapCopy(s.Resource(), rhs.Data())
	s.release()
	s.raw = fresh.raw
}

// MoveFrom transfers rhs into s: the six-word block moves either view
// verbatim; rhs is reset to inline-empty with its sticky resource tag
// preserved. Steal-then-clean ordering keeps nested-subobject moves
// safe.
func (s *String) MoveFrom(rhs *String) {
	if s == rhs {
		return
	}
	tmp := rhs.raw
	res := rhs.Resource()
	rhs.raw = [6]uint64{}
	rhs.small().resourceWord = packResourceWord(res, true)
	s.release()
	s.raw = tmp
}

// Equal reports content equality.
func (s *String) Equal(rhs *String) bool {
	return bytes.Equal(s.Data(), rhs.Data())
}

// EqualString reports content equality with a Go string.
func (s *String) EqualString(str string) bool {
	return string(s.Data()) == str
}

// Compare orders two strings bytewise.
func (s *String) Compare(rhs *String) int {
	return bytes.Compare(s.Data(), rhs.Data())
}
