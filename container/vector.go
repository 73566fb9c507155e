package container

import (
	"github.com/solidean/clean-core-go/internal/lifetime"
	"github.com/solidean/clean-core-go/memres"
)

// Vector is the back-growing allocating container. It does not preserve
// front capacity across reallocation.
type Vector[T any] struct {
	Base[T]
}

// NewVector returns an empty vector on the default resource.
func NewVector[T any]() *Vector[T] {
	return NewVectorIn[T](nil)
}

// NewVectorIn returns an empty vector allocating from res (nil means
// the default resource).
func NewVectorIn[T any](res *memres.Resource) *Vector[T] {
	v := &Vector[T]{}
	v.lf = lifetime.FuncsFor[T]()
	v.lfReady = true
	v.data = memres.CreateEmptyBytes[T](0, 0, v.allocAlignment(), res)
	return v
}

// NewVectorWithCap returns an empty vector with room for at least count
// elements.
func NewVectorWithCap[T any](count int, res *memres.Resource) *Vector[T] {
	v := NewVectorIn[T](res)
	v.ReserveBackExact(count)
	return v
}

// NewVectorDefaulted returns a vector of count zero-valued elements.
func NewVectorDefaulted[T any](count int, res *memres.Resource) *Vector[T] {
	v := &Vector[T]{}
	v.lf = lifetime.FuncsFor[T]()
	v.lfReady = true
	v.data = memres.CreateDefaulted[T](count, res)
	return v
}

// NewVectorFilled returns a vector of count copies of value.
func NewVectorFilled[T any](count int, value T, res *memres.Resource) *Vector[T] {
	v := &Vector[T]{}
	v.lf = lifetime.FuncsFor[T]()
	v.lfReady = true
	v.data = memres.CreateFilled[T](count, value, res)
	return v
}

// VectorFromSlice returns a vector holding a copy of src.
func VectorFromSlice[T any](src []T, res *memres.Resource) *Vector[T] {
	v := &Vector[T]{}
	v.lf = lifetime.FuncsFor[T]()
	v.lfReady = true
	v.data = memres.CreateCopyOf[T](src, res)
	return v
}

// VectorFromAllocation adopts an existing allocation as a vector's
// storage. No element constructors or destructors run.
func VectorFromAllocation[T any](a *memres.ByteAllocation[T]) *Vector[T] {
	v := NewVectorIn[T](a.CustomResource())
	v.AdoptAllocation(a)
	return v
}

// CopyFrom replaces this vector's content with a copy of rhs, keeping
// this vector's own resource. Self-assignment is a no-op.
func (v *Vector[T]) CopyFrom(rhs *Vector[T]) {
	if v == rhs {
		return
	}
	v.Clear()
	src := rhs.Span()
	v.ReserveBackExact(len(src))
	for i := range src {
		v.PushBackStable(src[i])
	}
}

// MoveFrom transfers rhs's content into this vector, releasing the
// previous content. rhs is left empty. Safe even when rhs is reachable
// from an element this vector owns.
func (v *Vector[T]) MoveFrom(rhs *Vector[T]) {
	if v == rhs {
		return
	}
	v.ensureFuncs()
	v.data.MoveFrom(&rhs.data)
}
