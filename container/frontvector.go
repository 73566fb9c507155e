package container

import (
	"github.com/solidean/clean-core-go/internal/assert"
	"github.com/solidean/clean-core-go/internal/lifetime"
	"github.com/solidean/clean-core-go/memres"
)

// FrontVector is the front-capable allocating container: front capacity
// is preserved across back reallocation, and elements can be inserted
// and removed at the front without moving the rest.
type FrontVector[T any] struct {
	Base[T]
}

// NewFrontVector returns an empty front vector on the default resource.
func NewFrontVector[T any]() *FrontVector[T] {
	return NewFrontVectorIn[T](nil)
}

// NewFrontVectorIn returns an empty front vector allocating from res
// (nil means the default resource).
func NewFrontVectorIn[T any](res *memres.Resource) *FrontVector[T] {
	f := &FrontVector[T]{}
	f.lf = lifetime.FuncsFor[T]()
	f.lfReady = true
	f.keepsFrontCapacity = true
	f.data = memres.CreateEmptyBytes[T](0, 0, f.allocAlignment(), res)
	return f
}

// ReserveFront ensures room for count more elements at the front,
// growing the front gap exponentially.
func (f *FrontVector[T]) ReserveFront(count int) {
	assert.That(count >= 0, assert.SizeMismatch, "count >= 0", "negative reserve")
	f.ensureFuncs()
	if f.data.CapacityFront() >= count {
		return
	}
	f.growFront(count, false)
}

// ReserveFrontExact ensures room for exactly count more elements at the
// front.
func (f *FrontVector[T]) ReserveFrontExact(count int) {
	assert.That(count >= 0, assert.SizeMismatch, "count >= 0", "negative reserve")
	f.ensureFuncs()
	if f.data.CapacityFront() >= count {
		return
	}
	f.growFront(count, true)
}

// EmplaceFront prepends one element built in place by ctor. On failure
// the container is unchanged (capacity may have grown).
func (f *FrontVector[T]) EmplaceFront(ctor func(*T) error) (*T, error) {
	f.ensureFuncs()
	if f.data.CapacityFront() < 1 {
		f.growFront(1, false)
	}
	f.data.AdvanceObjStart(-1)
	p := f.data.ObjStartPtr()
	var zero T
	*p = zero
	if err := ctor(p); err != nil {
		f.data.AdvanceObjStart(1)
		return nil, err
	}
	return p, nil
}

// PushFront prepends a copy of v.
func (f *FrontVector[T]) PushFront(v T) *T {
	p, _ := f.EmplaceFront(func(dst *T) error {
		*dst = v
		return nil
	})
	return p
}

// PushFrontStable prepends without any reallocation. The caller must
// have ensured front capacity.
func (f *FrontVector[T]) PushFrontStable(v T) *T {
	f.ensureFuncs()
	assert.That(f.data.CapacityFront() >= 1, assert.CapacityExceeded,
		"capacityFront >= 1", "stable push without front capacity")
	f.data.AdvanceObjStart(-1)
	p := f.data.ObjStartPtr()
	*p = v
	return p
}

// RemoveFront destroys the first element in place.
func (f *FrontVector[T]) RemoveFront() {
	f.ensureFuncs()
	assert.That(f.Len() > 0, assert.EmptyAccess, "len > 0", "remove front of empty container")
	p := f.data.ObjStartPtr()
	f.destroyAt(p)
	var zero T
	*p = zero
	f.data.AdvanceObjStart(1)
}

// PopFront moves the first element out and returns it. Ownership
// transfers to the caller.
func (f *FrontVector[T]) PopFront() T {
	f.ensureFuncs()
	assert.That(f.Len() > 0, assert.EmptyAccess, "len > 0", "pop front of empty container")
	p := f.data.ObjStartPtr()
	v := *p
	var zero T
	*p = zero
	f.data.AdvanceObjStart(1)
	return v
}
