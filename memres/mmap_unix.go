//go:build unix

package memres

import (
	"sync/atomic"
	"unsafe"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sys/unix"

	"github.com/solidean/clean-core-go/internal/assert"
)

// mmapBlock records one live mapping. mapped is the full mapping as
// returned by the kernel; base is the aligned pointer handed out.
type mmapBlock struct {
	mapped []byte
	base   unsafe.Pointer
	size   int // canonical size
	cap    int // usable bytes from base to the end of the mapping
	align  int
}

type mmapState struct {
	mappings *xsync.MapOf[uintptr, *mmapBlock]
	pageSize int

	mmaps  atomic.Int64
	munmap atomic.Int64
}

// MmapResource allocates page-granular blocks directly from the kernel.
// It naturally supports large alignments (slabs aligned to their own
// size) by over-mapping and aligning within the mapping, and supports
// in-place resize within the originally mapped length.
type MmapResource struct {
	resource Resource
	state    *mmapState
}

// NewMmapResource builds an mmap-backed resource.
func NewMmapResource() *MmapResource {
	st := &mmapState{
		mappings: xsync.NewMapOf[uintptr, *mmapBlock](),
		pageSize: unix.Getpagesize(),
	}
	m := &MmapResource{state: st}
	m.resource = Resource{
		AllocateBytes:    mmapAllocate,
		TryAllocateBytes: mmapTryAllocate,
		DeallocateBytes:  mmapDeallocate,
		TryResizeInPlace: mmapTryResize,
		Userdata:         unsafe.Pointer(st),
	}
	return m
}

// Resource returns the ABI handle; its address is stable for the
// lifetime of the MmapResource.
func (m *MmapResource) Resource() *Resource {
	return &m.resource
}

// Close unmaps every live mapping. Outstanding pointers become invalid.
func (m *MmapResource) Close() error {
	var err error
	m.state.mappings.Range(func(base uintptr, blk *mmapBlock) bool {
		m.state.mappings.Delete(base)
		if e := unix.Munmap(blk.mapped); e != nil && err == nil {
			err = e
		}
		return true
	})
	return err
}

// MappingCount returns the number of live mappings.
func (m *MmapResource) MappingCount() int {
	return m.state.mappings.Size()
}

func (st *mmapState) allocate(min, max, align int) (unsafe.Pointer, int) {
	mapLen := AlignUp(min, st.pageSize)
	if align > st.pageSize {
		// over-map so an aligned base with min usable bytes fits
		mapLen = AlignUp(min+align-1, st.pageSize)
	}
	b, err := unix.Mmap(-1, 0, mapLen,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, -1
	}
	p := unsafe.Pointer(unsafe.SliceData(b))
	off := int(-uintptr(p) & uintptr(align-1))
	base := unsafe.Add(p, off)
	capacity := mapLen - off
	actual := minInt(capacity, max)

	blk := &mmapBlock{mapped: b, base: base, size: actual, cap: capacity, align: align}
	st.mappings.Store(uintptr(base), blk)
	st.mmaps.Add(1)
	return base, actual
}

func mmapTryAllocate(min, max, align int, userdata unsafe.Pointer) (unsafe.Pointer, int) {
	st := (*mmapState)(userdata)
	return st.allocate(min, max, align)
}

func mmapAllocate(min, max, align int, userdata unsafe.Pointer) (unsafe.Pointer, int) {
	st := (*mmapState)(userdata)
	p, n := st.allocate(min, max, align)
	assert.Thatf(p != nil, assert.MemoryExhausted,
		"mmap(len) succeeded", "mmap of [%d, %d] bytes failed", min, max)
	return p, n
}

func mmapDeallocate(p unsafe.Pointer, bytes, align int, userdata unsafe.Pointer) {
	st := (*mmapState)(userdata)

	blk, ok := st.mappings.LoadAndDelete(uintptr(p))
	assert.Thatf(ok, assert.DoubleFree,
		"mappings.contains(p)", "deallocate of unknown mapping %#x", uintptr(p))
	assert.Thatf(bytes == blk.size, assert.SizeMismatch,
		"bytes == blk.size", "deallocate with size %d, mapping has canonical size %d", bytes, blk.size)
	assert.Thatf(align == blk.align, assert.BadAlignment,
		"align == blk.align", "deallocate with alignment %d, mapping was allocated with %d", align, blk.align)

	st.munmap.Add(1)
	if err := unix.Munmap(blk.mapped); err != nil {
		assert.Failf(assert.InvalidState, "munmap(blk.mapped) == nil", "munmap failed: %v", err)
	}
}

func mmapTryResize(p unsafe.Pointer, oldBytes, min, max, align int, userdata unsafe.Pointer) int {
	st := (*mmapState)(userdata)

	blk, ok := st.mappings.Load(uintptr(p))
	if !ok {
		return -1
	}
	assert.Thatf(oldBytes == blk.size, assert.SizeMismatch,
		"oldBytes == blk.size", "resize with size %d, mapping has canonical size %d", oldBytes, blk.size)

	if min > blk.cap {
		return -1
	}
	newSize := minInt(blk.cap, max)
	blk.size = newSize
	return newSize
}
