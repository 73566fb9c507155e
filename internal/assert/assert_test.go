package assert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sentinel carried through panic by the test handler
type sentinel struct{ v Violation }

func TestThat_PassingConditionIsSilent(t *testing.T) {
	assert.NotPanics(t, func() {
		That(true, OutOfBounds, "i < n", "index must be in range")
	})
}

func TestFail_DefaultHandlerPanicsWithViolation(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r)
		v, ok := r.(Violation)
		require.True(t, ok, "panic value should be a Violation")
		assert.Equal(t, OutOfBounds, v.Kind)
		assert.Equal(t, "i < n", v.Expr)
		assert.Contains(t, v.Loc.File, "assert_test.go")
	}()
	Fail(OutOfBounds, "i < n", "index 5 out of range [0, 3)")
}

func TestScoped_HandlerReceivesViolation(t *testing.T) {
	var got Violation
	restore := Scoped(func(v Violation) bool {
		got = v
		panic(sentinel{v})
	})
	defer restore()

	func() {
		defer func() {
			r := recover()
			_, ok := r.(sentinel)
			require.True(t, ok)
		}()
		That(false, SizeMismatch, "bytes == blk.size", "deallocate with mismatched size")
	}()

	assert.Equal(t, SizeMismatch, got.Kind)
	assert.Equal(t, "bytes == blk.size", got.Expr)
}

func TestScoped_NestingIsLIFO(t *testing.T) {
	var order []string
	outer := Scoped(func(v Violation) bool {
		order = append(order, "outer")
		return false
	})
	inner := Scoped(func(v Violation) bool {
		order = append(order, "inner")
		return false
	})

	Fail(InvalidState, "x", "first")
	inner()
	Fail(InvalidState, "x", "second")
	outer()

	require.Equal(t, []string{"inner", "outer"}, order)
}

func TestHandler_ReturningFalseSuppressesPanic(t *testing.T) {
	defer Scoped(func(v Violation) bool { return false })()
	assert.NotPanics(t, func() {
		Fail(DoubleFree, "bit == 0", "slot freed twice")
	})
}

func TestViolation_ErrorFormat(t *testing.T) {
	v := Violation{
		Kind:    BadAlignment,
		Expr:    "isPow2(align)",
		Message: "alignment must be a power of two",
		Loc:     Location{File: "x.go", Line: 7, Function: "f"},
	}
	msg := v.Error()
	assert.Contains(t, msg, "bad alignment")
	assert.Contains(t, msg, "isPow2(align)")
	assert.Contains(t, msg, "x.go:7")
}

func TestKind_Strings(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{OutOfBounds, "out of bounds"},
		{BadAlignment, "bad alignment"},
		{SizeMismatch, "size mismatch"},
		{EmptyAccess, "empty access"},
		{NilArgument, "nil argument"},
		{DoubleFree, "double free"},
		{CapacityExceeded, "capacity exceeded"},
		{MemoryExhausted, "memory exhausted"},
		{InvalidState, "invalid state"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}
