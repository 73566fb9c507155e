package container

import (
	"github.com/solidean/clean-core-go/internal/assert"
)

func (b *Base[T]) destroyAt(p *T) {
	if b.lf.Destroy != nil {
		b.lf.Destroy(p)
	}
}

// RemoveAt removes the i-th element, preserving the relative order of
// the survivors.
func (b *Base[T]) RemoveAt(i int) {
	b.ensureFuncs()
	s := b.data.ObjSpan()
	assert.Thatf(i >= 0 && i < len(s), assert.OutOfBounds,
		"0 <= i && i < len", "remove at %d with %d elements", i, len(s))
	b.destroyAt(&s[i])
	copy(s[i:], s[i+1:])
	var zero T
	s[len(s)-1] = zero
	b.data.AdvanceObjEnd(-1)
}

// RemoveAtUnordered removes the i-th element by moving the last element
// into its slot (unless i is last) and shrinking by one.
func (b *Base[T]) RemoveAtUnordered(i int) {
	b.ensureFuncs()
	s := b.data.ObjSpan()
	assert.Thatf(i >= 0 && i < len(s), assert.OutOfBounds,
		"0 <= i && i < len", "remove at %d with %d elements", i, len(s))
	b.destroyAt(&s[i])
	last := len(s) - 1
	if i != last {
		s[i] = s[last]
	}
	var zero T
	s[last] = zero
	b.data.AdvanceObjEnd(-1)
}

// RemoveBack destroys the last element in place.
func (b *Base[T]) RemoveBack() {
	b.ensureFuncs()
	n := b.data.Len()
	assert.That(n > 0, assert.EmptyAccess, "len > 0", "remove back of empty container")
	s := b.data.ObjSpan()
	b.destroyAt(&s[n-1])
	var zero T
	s[n-1] = zero
	b.data.AdvanceObjEnd(-1)
}

// PopBack moves the last element out and returns it. No destructor runs;
// ownership transfers to the caller.
func (b *Base[T]) PopBack() T {
	b.ensureFuncs()
	n := b.data.Len()
	assert.That(n > 0, assert.EmptyAccess, "len > 0", "pop back of empty container")
	s := b.data.ObjSpan()
	v := s[n-1]
	var zero T
	s[n-1] = zero
	b.data.AdvanceObjEnd(-1)
	return v
}

// RemoveAllWhere removes every element for which pred is true,
// preserving the order of survivors, and returns how many were removed.
// Single pass: survivors are moved forward over the holes.
func (b *Base[T]) RemoveAllWhere(pred func(*T) bool) int {
	b.ensureFuncs()
	s := b.data.ObjSpan()
	var zero T
	write := 0
	removed := 0
	for read := 0; read < len(s); read++ {
		if pred(&s[read]) {
			b.destroyAt(&s[read])
			s[read] = zero
			removed++
			continue
		}
		if write != read {
			s[write] = s[read]
			s[read] = zero
		}
		write++
	}
	b.data.AdvanceObjEnd(write - len(s))
	return removed
}

// RetainAllWhere removes every element for which pred is false and
// returns how many were removed.
func (b *Base[T]) RetainAllWhere(pred func(*T) bool) int {
	return b.RemoveAllWhere(func(p *T) bool { return !pred(p) })
}

// RemoveFirstWhere removes the first matching element, preserving
// order, and returns its former index; -1 when nothing matched.
func (b *Base[T]) RemoveFirstWhere(pred func(*T) bool) int {
	b.ensureFuncs()
	s := b.data.ObjSpan()
	for i := range s {
		if pred(&s[i]) {
			b.RemoveAt(i)
			return i
		}
	}
	return -1
}

// RemoveLastWhere removes the last matching element, preserving order,
// and returns its former index; -1 when nothing matched.
func (b *Base[T]) RemoveLastWhere(pred func(*T) bool) int {
	b.ensureFuncs()
	s := b.data.ObjSpan()
	for i := len(s) - 1; i >= 0; i-- {
		if pred(&s[i]) {
			b.RemoveAt(i)
			return i
		}
	}
	return -1
}

// RemoveAllValue removes every element equal to value and returns the
// count removed.
func RemoveAllValue[T comparable](b *Base[T], value T) int {
	return b.RemoveAllWhere(func(p *T) bool { return *p == value })
}

// RemoveFirstValue removes the first element equal to value; returns its
// former index or -1.
func RemoveFirstValue[T comparable](b *Base[T], value T) int {
	return b.RemoveFirstWhere(func(p *T) bool { return *p == value })
}

// RemoveLastValue removes the last element equal to value; returns its
// former index or -1.
func RemoveLastValue[T comparable](b *Base[T], value T) int {
	return b.RemoveLastWhere(func(p *T) bool { return *p == value })
}
