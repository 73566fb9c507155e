package container

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ccassert "github.com/solidean/clean-core-go/internal/assert"
	"github.com/solidean/clean-core-go/memres"
)

// counters tracks element lifetime for the Tracked scenarios.
type counters struct {
	ctors int
	dtors int
	order []int
}

type trackedElem struct {
	id int
	c  *counters
}

func newTracked(c *counters, id int) trackedElem {
	c.ctors++
	return trackedElem{id: id, c: c}
}

func (e *trackedElem) Deinit() {
	if e.c != nil {
		e.c.dtors++
		e.c.order = append(e.c.order, e.id)
	}
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

func TestVector_PushThenRead(t *testing.T) {
	v := NewVector[int]()
	defer v.Release()

	v.PushBack(10)
	v.PushBack(20)
	v.PushBack(30)

	require.Equal(t, 3, v.Len())
	assert.Equal(t, 10, v.Get(0))
	assert.Equal(t, 20, v.Get(1))
	assert.Equal(t, 30, v.Get(2))

	assert.Equal(t, 30, v.PopBack())
	assert.Equal(t, 2, v.Len())
}

func TestVector_ReverseDestructionOrder(t *testing.T) {
	var c counters
	v := NewVector[trackedElem]()
	for i := 0; i < 5; i++ {
		v.PushBack(newTracked(&c, i))
	}
	v.Release()

	assert.Equal(t, []int{4, 3, 2, 1, 0}, c.order)
	assert.Equal(t, c.ctors, c.dtors)
}

func TestVector_LifetimeBalancedAcrossGrowth(t *testing.T) {
	var c counters
	v := NewVector[trackedElem]()
	for i := 0; i < 100; i++ {
		v.PushBack(newTracked(&c, i))
	}
	require.Equal(t, 100, v.Len())
	for i := 0; i < 100; i++ {
		assert.Equal(t, i, v.At(i).id)
	}
	v.Release()
	assert.Equal(t, 100, c.ctors)
	assert.Equal(t, 100, c.dtors)
}

func TestVector_GrowthIsLogarithmic(t *testing.T) {
	cr := memres.NewCountingResource(nil, nil)
	v := NewVectorIn[int64](cr.Resource())

	const n = 10000
	for i := int64(0); i < n; i++ {
		v.PushBack(i)
		assert.Equal(t, int(i)+1, v.Len())
		assert.Equal(t, i, *v.Last())
	}
	st := cr.Stats()
	assert.LessOrEqual(t, st.Allocs, int64(24), "reallocations must be O(log n)")

	v.Release()
	st = cr.Stats()
	assert.Equal(t, st.Allocs, st.Deallocs)
	assert.Zero(t, st.LiveBytes)
}

func TestVector_CopyFromKeepsOwnResource(t *testing.T) {
	ca := memres.NewCountingResource(nil, nil)
	cb := memres.NewCountingResource(nil, nil)

	lhs := NewVectorDefaulted[int](3, ca.Resource())
	rhs := NewVectorIn[int](cb.Resource())
	for _, x := range []int{10, 20, 30, 40, 50} {
		rhs.PushBack(x)
	}

	beforeA := ca.Stats()
	beforeB := cb.Stats()

	lhs.CopyFrom(rhs)

	require.Equal(t, 5, lhs.Len())
	assert.Equal(t, []int{10, 20, 30, 40, 50}, lhs.Span())

	afterA := ca.Stats()
	afterB := cb.Stats()
	assert.Equal(t, int64(1), afterA.Allocs-beforeA.Allocs)
	assert.Equal(t, int64(1), afterA.Deallocs-beforeA.Deallocs)
	assert.Equal(t, int64(0), afterB.Allocs-beforeB.Allocs)
	assert.Equal(t, int64(0), afterB.Deallocs-beforeB.Deallocs)

	lhs.Release()
	rhs.Release()
	assert.Zero(t, ca.Stats().LiveBytes)
	assert.Zero(t, cb.Stats().LiveBytes)
}

func TestVector_CopyFrom_Self(t *testing.T) {
	v := NewVector[int]()
	defer v.Release()
	v.PushBack(1)
	v.PushBack(2)
	v.CopyFrom(v)
	assert.Equal(t, []int{1, 2}, v.Span())
}

func TestVector_EmplaceBack_ErrorLeavesContainerUnchanged(t *testing.T) {
	var c counters
	v := NewVector[trackedElem]()
	for i := 0; i < 4; i++ {
		v.PushBack(newTracked(&c, i))
	}
	size := v.Len()
	boom := errors.New("ctor failed")

	// fill capacity so the next emplace takes the cold path
	for v.CapacityBack() > 0 {
		v.PushBack(newTracked(&c, 100+v.Len()))
	}
	size = v.Len()

	_, err := v.EmplaceBack(func(p *trackedElem) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, size, v.Len())
	for i := 0; i < 4; i++ {
		assert.Equal(t, i, v.At(i).id)
	}

	v.Release()
	assert.Equal(t, c.ctors, c.dtors)
}

func TestVector_EmplaceBack_ConstructFromOwnElement(t *testing.T) {
	v := NewVector[int]()
	defer v.Release()
	v.PushBack(7)
	for v.CapacityBack() > 0 {
		v.PushBack(1)
	}
	// cold append reading an existing element: old storage must outlive
	// construction of the new element
	first := v.At(0)
	p, err := v.EmplaceBack(func(dst *int) error {
		*dst = *first * 2
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 14, *p)
}

func TestVector_ResizeFamily(t *testing.T) {
	v := NewVector[int]()
	defer v.Release()

	v.ResizeToDefaulted(4)
	assert.Equal(t, []int{0, 0, 0, 0}, v.Span())

	v.ResizeToFilled(6, 9)
	assert.Equal(t, []int{0, 0, 0, 0, 9, 9}, v.Span())

	v.ResizeDownTo(2)
	assert.Equal(t, []int{0, 0}, v.Span())

	i := 0
	err := v.ResizeToConstructed(5, func(p *int) error {
		i++
		*p = i * 10
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 10, 20, 30}, v.Span())
}

func TestVector_ResizeDownDestroysReverse(t *testing.T) {
	var c counters
	v := NewVector[trackedElem]()
	for i := 0; i < 6; i++ {
		v.PushBack(newTracked(&c, i))
	}
	v.ResizeDownTo(2)
	assert.Equal(t, []int{5, 4, 3, 2}, c.order)
	assert.Equal(t, 2, v.Len())
	v.Release()
	assert.Equal(t, c.ctors, c.dtors)
}

func TestVector_ResizeToUninitialized(t *testing.T) {
	v := NewVector[uint32]()
	defer v.Release()

	v.PushBack(11)
	v.PushBack(22)
	v.ResizeToUninitialized(64)
	require.Equal(t, 64, v.Len())
	assert.Equal(t, uint32(11), v.Get(0), "existing content preserved across realloc")
	assert.Equal(t, uint32(22), v.Get(1))

	v.ResizeToUninitialized(1)
	assert.Equal(t, 1, v.Len())
}

func TestVector_ResizeToUninitialized_GateRejectsNonTrivial(t *testing.T) {
	v := NewVector[trackedElem]()
	defer v.Release()
	got := expectViolation(t, func() { v.ResizeToUninitialized(8) })
	assert.Equal(t, ccassert.InvalidState, got.Kind)
}

func TestVector_ClearResizeToUninitialized_ReclaimsFront(t *testing.T) {
	f := NewFrontVector[uint64]()
	defer f.Release()
	for i := uint64(0); i < 8; i++ {
		f.PushBack(i)
	}
	f.ReserveFront(4)
	require.GreaterOrEqual(t, f.CapacityFront(), 4)

	f.ClearResizeToUninitialized(2)
	assert.Equal(t, 2, f.Len())
	assert.Zero(t, f.CapacityFront(), "window repositioned at the block start")
}

func TestVector_ReserveBack(t *testing.T) {
	v := NewVector[int32]()
	defer v.Release()

	v.ReserveBack(100)
	require.GreaterOrEqual(t, v.CapacityBack(), 100)
	assert.Zero(t, v.Len())

	// stable pushes never reallocate
	for i := int32(0); i < 100; i++ {
		v.PushBackStable(i)
	}
	assert.Equal(t, 100, v.Len())
}

func TestVector_PushBackStable_WithoutCapacity(t *testing.T) {
	v := NewVector[int]()
	defer v.Release()
	got := expectViolation(t, func() { v.PushBackStable(1) })
	assert.Equal(t, ccassert.CapacityExceeded, got.Kind)
}

func TestVector_ShrinkToFitIdempotent(t *testing.T) {
	cr := memres.NewCountingResource(nil, nil)
	v := NewVectorIn[int64](cr.Resource())

	for i := int64(0); i < 100; i++ {
		v.PushBack(i)
	}
	v.ResizeDownTo(10)

	v.ShrinkToFit()
	sizeAfter := v.Len()
	capAfter := v.Cap()
	statsAfter := cr.Stats()

	v.ShrinkToFit()
	assert.Equal(t, sizeAfter, v.Len())
	assert.Equal(t, capAfter, v.Cap())
	assert.Equal(t, statsAfter.Allocs, cr.Stats().Allocs, "second shrink is a no-op")
	assert.Equal(t, statsAfter.Deallocs, cr.Stats().Deallocs)

	for i := int64(0); i < 10; i++ {
		assert.Equal(t, i, v.Get(int(i)))
	}
	v.Release()
}

func TestVector_ExtractAndAdoptAllocation(t *testing.T) {
	var c counters
	v := NewVector[trackedElem]()
	for i := 0; i < 3; i++ {
		v.PushBack(newTracked(&c, i))
	}
	dtorsBefore := c.dtors

	a := v.ExtractAllocation()
	assert.Zero(t, v.Len())
	assert.Equal(t, dtorsBefore, c.dtors, "extraction runs no destructors")

	w := VectorFromAllocation(&a)
	require.Equal(t, 3, w.Len())
	assert.Equal(t, dtorsBefore, c.dtors, "adoption runs no constructors or destructors")
	for i := 0; i < 3; i++ {
		assert.Equal(t, i, w.At(i).id)
	}

	v.Release()
	w.Release()
	assert.Equal(t, c.ctors, c.dtors)
}

func TestVector_MoveFrom(t *testing.T) {
	v := NewVector[int]()
	w := NewVector[int]()
	defer v.Release()

	w.PushBack(5)
	w.PushBack(6)
	v.PushBack(1)

	v.MoveFrom(w)
	assert.Equal(t, []int{5, 6}, v.Span())
	assert.Zero(t, w.Len())
}

func TestVector_AccessContracts(t *testing.T) {
	v := NewVector[int]()
	defer v.Release()

	got := expectViolation(t, func() { v.At(0) })
	assert.Equal(t, ccassert.OutOfBounds, got.Kind)

	got = expectViolation(t, func() { v.First() })
	assert.Equal(t, ccassert.EmptyAccess, got.Kind)

	got = expectViolation(t, func() { v.PopBack() })
	assert.Equal(t, ccassert.EmptyAccess, got.Kind)
}

func TestVector_FromSlice(t *testing.T) {
	src := []int{2, 7, 1, 8}
	v := VectorFromSlice(src, nil)
	defer v.Release()
	assert.Equal(t, src, v.Span())
}

func TestVector_InvariantSizeCapacity(t *testing.T) {
	v := NewVector[int16]()
	defer v.Release()
	for i := 0; i < 333; i++ {
		v.PushBack(int16(i))
		assert.Equal(t, v.Len()+v.CapacityBack(), v.Cap())
		assert.GreaterOrEqual(t, v.CapacityBack(), 0)
	}
}
