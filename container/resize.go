package container

import (
	"github.com/solidean/clean-core-go/internal/assert"
	"github.com/solidean/clean-core-go/internal/lifetime"
	"github.com/solidean/clean-core-go/memres"
)

// ResizeDownTo shrinks the container to n elements, destroying the
// trailing ones in reverse order.
func (b *Base[T]) ResizeDownTo(n int) {
	b.ensureFuncs()
	size := b.data.Len()
	assert.Thatf(n >= 0 && n <= size, assert.SizeMismatch,
		"0 <= n && n <= len", "resize down to %d with %d elements", n, size)
	if n == size {
		return
	}
	if b.lf.Destroy != nil {
		s := b.data.ObjSpan()
		for i := size - 1; i >= n; i-- {
			b.lf.Destroy(&s[i])
		}
	}
	b.data.AdvanceObjEnd(n - size)
}

// ResizeToConstructed grows or shrinks to exactly n elements. New
// elements are built in place by ctor, one at a time; ctor is shared
// across elements (it is not consumed per element) so it may safely
// reference existing container elements. On a ctor failure during a
// reallocating grow the container is unchanged; during an in-place grow
// the elements already constructed are kept.
func (b *Base[T]) ResizeToConstructed(n int, ctor func(*T) error) error {
	b.ensureFuncs()
	assert.That(n >= 0, assert.SizeMismatch, "n >= 0", "negative resize")
	size := b.data.Len()
	if n <= size {
		b.ResizeDownTo(n)
		return nil
	}
	count := n - size

	if b.data.CapacityBack() >= count {
		for i := 0; i < count; i++ {
			p := b.data.ObjEndPtr()
			var zero T
			*p = zero
			if err := ctor(p); err != nil {
				return err
			}
			b.data.AdvanceObjEnd(1)
		}
		return nil
	}

	g := b.beginGrowBack(count)
	for i := 0; i < count; i++ {
		p := b.growTarget(&g)
		var zero T
		*p = zero
		if err := ctor(p); err != nil {
			b.abandon(&g)
			return err
		}
		b.commitOne(&g)
	}
	b.finalizeGrowBack(&g)
	return nil
}

// ResizeToDefaulted grows or shrinks to n elements; new elements are
// zero values.
func (b *Base[T]) ResizeToDefaulted(n int) {
	_ = b.ResizeToConstructed(n, func(p *T) error {
		var zero T
		*p = zero
		return nil
	})
}

// ResizeToFilled grows or shrinks to n elements; new elements are copies
// of value.
func (b *Base[T]) ResizeToFilled(n int, value T) {
	_ = b.ResizeToConstructed(n, func(p *T) error {
		*p = value
		return nil
	})
}

func (b *Base[T]) checkUninitOK() {
	assert.That(b.lf.Trivial && b.lf.PointerFree, assert.InvalidState,
		"trivial(T) && pointerFree(T)",
		"uninitialized resize requires a trivially destructible, pointer-free element type")
}

// ResizeToUninitialized grows or shrinks to n elements without
// initializing new memory. Existing content is preserved across a
// reallocation. T must be trivially destructible and pointer-free.
func (b *Base[T]) ResizeToUninitialized(n int) {
	b.ensureFuncs()
	assert.That(n >= 0, assert.SizeMismatch, "n >= 0", "negative resize")
	b.checkUninitOK()
	size := b.data.Len()
	if n <= size {
		b.data.AdvanceObjEnd(n - size)
		return
	}
	count := n - size
	if b.data.CapacityBack() < count {
		frontKept := 0
		if b.keepsFrontCapacity {
			frontKept = b.data.CapacityFront()
		}
		elemSize := sizeOf[T]()
		curr := (frontKept + size) * elemSize
		minBytes := GrowSizeFor(curr, (frontKept+n)*elemSize, b.allocAlignment())
		b.reallocMove(minBytes, GrowMaxFor(minBytes), frontKept)
	}
	b.data.AdvanceObjEnd(count)
}

// ClearResizeToDefaulted destroys all elements first, then grows to n
// zero-valued elements.
func (b *Base[T]) ClearResizeToDefaulted(n int) {
	b.Clear()
	b.ResizeToDefaulted(n)
}

// ClearResizeToFilled destroys all elements first, then grows to n
// copies of value.
func (b *Base[T]) ClearResizeToFilled(n int, value T) {
	b.Clear()
	b.ResizeToFilled(n, value)
}

// ClearResizeToUninitialized destroys all elements, repositions the
// window at the front of the block to reclaim front capacity, and
// extends it over n uninitialized elements. T must be trivially
// destructible and pointer-free.
func (b *Base[T]) ClearResizeToUninitialized(n int) {
	b.ensureFuncs()
	assert.That(n >= 0, assert.SizeMismatch, "n >= 0", "negative resize")
	b.checkUninitOK()
	b.Clear()
	b.data.PlaceLiveRange(0, 0)
	if b.data.CapacityBack() < n {
		bytes := GrowSizeFor(b.data.AllocSizeBytes(), n*sizeOf[T](), b.allocAlignment())
		b.reallocMove(bytes, GrowMaxFor(bytes), 0)
	}
	b.data.AdvanceObjEnd(n)
}

// grow helper shared with the front-growing derivation; reallocates so
// that at least frontCount elements fit before the window.
func (b *Base[T]) growFront(frontCount int, exact bool) {
	oldSize := b.data.Len()
	size := sizeOf[T]()
	newFront := frontCount
	if !exact {
		newFront = maxInt(frontCount, b.data.CapacityFront()*2)
	}
	minBytes := memres.AlignUp((newFront+oldSize)*size, b.allocAlignment())
	maxBytes := minBytes
	if !exact {
		maxBytes = GrowMaxFor(minBytes)
	}
	na := memres.CreateEmptyBytes[T](minBytes, maxBytes, b.allocAlignment(), b.data.CustomResource())
	na.PlaceLiveRange(newFront, oldSize)
	lifetime.MoveIntoReverse(na.ObjSpan(), b.data.ObjSpan())
	b.data.MarkEmpty()
	b.data.Release()
	b.data = na
}
