package noderes

import (
	"math/rand"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ccassert "github.com/solidean/clean-core-go/internal/assert"
)

func TestClassIndexFor(t *testing.T) {
	tests := []struct {
		size  int
		align int
		want  ClassIndex
	}{
		{1, 1, 0},
		{2, 1, 1},
		{2, 2, 1},
		{3, 1, 2},
		{4, 4, 2},
		{8, 8, 3},
		{9, 8, 4},
		{16, 8, 4},
		{24, 8, 5},
		{128, 8, 7},
		{256, 8, 8},
		{257, 8, 9},
		{1, 8, 3},
	}
	for _, tt := range tests {
		got := ClassIndexFor(tt.size, tt.align)
		assert.Equal(t, tt.want, got, "size=%d align=%d", tt.size, tt.align)
	}
}

func TestClassIndexOf(t *testing.T) {
	assert.Equal(t, ClassIndex(0), ClassIndexOf[byte]())
	assert.Equal(t, ClassIndex(3), ClassIndexOf[uint64]())
	assert.Equal(t, ClassIndex(3), ClassIndexOf[int64]())
	assert.True(t, IsLargeClass(ClassIndexOf[[64]uint64]()))
}

func TestSlabGeometry(t *testing.T) {
	for idx := ClassIndex(0); idx <= SmallMaxClass; idx++ {
		slab := SlabSizeFor(idx)
		assert.Equal(t, ClassSizeFor(idx)*SlotsPerSlab, slab)

		blocked := BlockedSlotsFor(idx)
		if idx <= 4 {
			assert.Equal(t, (HeaderBytes+ClassSizeFor(idx)-1)/ClassSizeFor(idx), blocked)
		} else {
			assert.Equal(t, 1, blocked, "header fits in one slot for class %d", idx)
		}

		fm := initialFreemapFor(idx)
		assert.Equal(t, 64-blocked, popcount(fm))
		assert.Zero(t, fm&((uint64(1)<<blocked)-1), "header slots permanently clear")
	}
}

func popcount(v uint64) int {
	n := 0
	for v != 0 {
		v &= v - 1
		n++
	}
	return n
}

func TestSlabBaseRecovery(t *testing.T) {
	a := DefaultAllocator()
	const idx = ClassIndex(3)

	p := a.AllocateNodeBytes(idx)
	base := SlabBaseOf(p, idx)
	slot := SlotIndexOf(p, idx)

	assert.True(t, uintptr(base)%uintptr(SlabSizeFor(idx)) == 0, "slab aligned to its own size")
	assert.GreaterOrEqual(t, slot, BlockedSlotsFor(idx))
	assert.Less(t, slot, SlotsPerSlab)

	// the allocated slot's bit is clear
	fm := FreemapForBase(base)
	assert.Zero(t, fm&(uint64(1)<<slot))

	FreeNodeBytes(p, idx)
	fm = FreemapForBase(base)
	assert.NotZero(t, fm&(uint64(1)<<slot))
}

func TestAllocFreeSymmetry(t *testing.T) {
	// class with slot size 8: allocate 500 nodes with increasing
	// payloads, drop in forward order, allocate 500 more; reads match
	// writes and the footprint stays within the expected slab count.
	handles := make([]NodeHandle[uint64], 500)
	bases := map[uintptr]bool{}
	for i := range handles {
		handles[i] = NewNode(uint64(i))
		bases[uintptr(SlabBaseOf(unsafe.Pointer(handles[i].Get()), 3))] = true
	}
	for i := range handles {
		require.Equal(t, uint64(i), *handles[i].Get())
	}
	for i := range handles {
		handles[i].Release()
	}

	for i := range handles {
		handles[i] = NewNode(uint64(1000 + i))
		bases[uintptr(SlabBaseOf(unsafe.Pointer(handles[i].Get()), 3))] = true
	}
	for i := range handles {
		assert.Equal(t, uint64(1000+i), *handles[i].Get())
		handles[i].Release()
	}

	assert.LessOrEqual(t, len(bases), 500/60+1+1)
}

func TestFreemapsFullAfterArbitraryDropOrder(t *testing.T) {
	a := DefaultAllocator()
	const idx = ClassIndex(3)

	const n = 300
	handles := make([]NodeHandle[uint64], n)
	for i := range handles {
		handles[i] = NewNodeIn(a, uint64(i))
	}

	perm := rand.New(rand.NewSource(42)).Perm(n)
	for _, i := range perm {
		handles[i].Release()
	}

	// every slab in this thread's ring is fully free again
	head := a.HeadSlab(idx)
	require.NotNil(t, head)
	seen := 0
	for cur := head; ; cur = slabNext(cur) {
		assert.Equal(t, initialFreemapFor(idx), FreemapForBase(cur),
			"slab %#x must be fully free", uintptr(cur))
		seen++
		if slabNext(cur) == head {
			break
		}
	}
	assert.Equal(t, a.RingLen(idx), seen)
}

func TestRingWalkReusesRemoteFrees(t *testing.T) {
	a := DefaultAllocator()
	const idx = ClassIndex(3)

	// fill more than one slab
	perSlab := SlotsPerSlab - BlockedSlotsFor(idx)
	n := perSlab*2 + 4
	handles := make([]NodeHandle[uint64], n)
	for i := range handles {
		handles[i] = NewNodeIn(a, uint64(i))
	}
	refillsBefore := a.Refills()

	// free a node from the oldest slab on another goroutine
	victim := unsafe.Pointer(handles[0].Get())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		handles[0].Release()
	}()
	wg.Wait()

	// exhaust the current head, then keep allocating: the ring walk must
	// find the remotely freed slot before requesting a new slab
	for a.HeadSlab(idx) != nil && FreemapForBase(a.HeadSlab(idx)) != 0 {
		handles = append(handles, NewNodeIn(a, uint64(len(handles))))
	}
	h := NewNodeIn(a, uint64(7777))
	assert.Equal(t, uintptr(SlabBaseOf(victim, idx)),
		uintptr(SlabBaseOf(unsafe.Pointer(h.Get()), idx)),
		"the freed slot is found by walking the ring")
	assert.Equal(t, refillsBefore, a.Refills(), "no refill was needed")
	assert.Equal(t, uint64(7777), *h.Get())

	h.Release()
	for i := 1; i < len(handles); i++ {
		handles[i].Release()
	}
}

func TestConcurrentFrees(t *testing.T) {
	a := DefaultAllocator()

	const n = 256
	handles := make([]NodeHandle[uint32], n)
	for i := range handles {
		handles[i] = NewNodeIn(a, uint32(i))
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := w; i < n; i += 8 {
				handles[i].Release()
			}
		}()
	}
	wg.Wait()

	// all slots are free again; the owning thread can reuse every one
	idx := ClassIndexOf[uint32]()
	perSlab := SlotsPerSlab - BlockedSlotsFor(idx)
	refillsBefore := a.Refills()
	again := make([]NodeHandle[uint32], n)
	for i := range again {
		again[i] = NewNodeIn(a, uint32(i*3))
	}
	for i := range again {
		assert.Equal(t, uint32(i*3), *again[i].Get())
		again[i].Release()
	}
	assert.LessOrEqual(t, a.Refills()-refillsBefore, int64(n/perSlab+1))
}

type sentinel struct{ v ccassert.Violation }

func expectViolation(t *testing.T, fn func()) ccassert.Violation {
	t.Helper()
	defer ccassert.Scoped(func(v ccassert.Violation) bool {
		panic(sentinel{v})
	})()
	var got ccassert.Violation
	func() {
		defer func() {
			r := recover()
			s, ok := r.(sentinel)
			require.True(t, ok, "expected a contract violation, got %v", r)
			got = s.v
		}()
		fn()
		t.Fatal("expected a contract violation")
	}()
	return got
}

func TestDoubleFreeDetected(t *testing.T) {
	a := DefaultAllocator()
	p := a.AllocateNodeBytes(3)
	FreeNodeBytes(p, 3)

	v := expectViolation(t, func() { FreeNodeBytes(p, 3) })
	assert.Equal(t, ccassert.DoubleFree, v.Kind)

	// reclaim the slot so the slab stays consistent for later tests
	q := a.AllocateNodeBytes(3)
	FreeNodeBytes(q, 3)
}

func TestAllocateNodeBytes_RejectsLargeClass(t *testing.T) {
	a := DefaultAllocator()
	v := expectViolation(t, func() { a.AllocateNodeBytes(9) })
	assert.Equal(t, ccassert.InvalidState, v.Kind)
}
