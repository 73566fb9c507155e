package memres

import (
	"sync/atomic"
	"unsafe"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/solidean/clean-core-go/internal/assert"
	"github.com/solidean/clean-core-go/internal/ccconfig"
)

// sysBlock records one live allocation of the system resource. The buf
// reference keeps the backing array alive while unsafe pointers into it
// circulate.
type sysBlock struct {
	buf   []byte
	base  unsafe.Pointer
	size  int // canonical size, updated by resize
	cap   int // usable bytes from base to the end of buf
	align int
}

type systemState struct {
	blocks *xsync.MapOf[uintptr, *sysBlock]
	logger *zap.Logger
	trace  bool

	allocs    atomic.Int64
	deallocs  atomic.Int64
	resizes   atomic.Int64
	liveBytes atomic.Int64
}

// NewSystemResource builds a resource backed by the Go heap. Each block
// is carved out of a fresh byte slice pinned in a registry until it is
// deallocated. cfg may be nil.
func NewSystemResource(cfg *ccconfig.Config) *Resource {
	return newSystemResource(cfg)
}

func newSystemResource(cfg *ccconfig.Config) *Resource {
	st := &systemState{
		blocks: xsync.NewMapOf[uintptr, *sysBlock](),
		logger: ccconfig.Logger(cfg),
		trace:  cfg != nil && cfg.Trace,
	}
	return &Resource{
		AllocateBytes:    systemAllocate,
		TryAllocateBytes: systemAllocate,
		DeallocateBytes:  systemDeallocate,
		TryResizeInPlace: systemTryResize,
		Userdata:         unsafe.Pointer(st),
	}
}

func systemAllocate(min, max, align int, userdata unsafe.Pointer) (unsafe.Pointer, int) {
	st := (*systemState)(userdata)

	buf := make([]byte, min+align-1)
	p := unsafe.Pointer(unsafe.SliceData(buf))
	off := int(-uintptr(p) & uintptr(align-1))
	base := unsafe.Add(p, off)
	capacity := len(buf) - off
	actual := minInt(capacity, max)

	blk := &sysBlock{buf: buf, base: base, size: actual, cap: capacity, align: align}
	st.blocks.Store(uintptr(base), blk)

	st.allocs.Add(1)
	st.liveBytes.Add(int64(actual))
	if st.trace {
		st.logger.Debug("allocate",
			zap.Uintptr("base", uintptr(base)),
			zap.Int("min", min), zap.Int("max", max),
			zap.Int("actual", actual), zap.Int("align", align))
	}
	return base, actual
}

func systemDeallocate(p unsafe.Pointer, bytes, align int, userdata unsafe.Pointer) {
	st := (*systemState)(userdata)

	blk, ok := st.blocks.LoadAndDelete(uintptr(p))
	assert.Thatf(ok, assert.DoubleFree,
		"blocks.contains(p)", "deallocate of unknown block %#x", uintptr(p))
	assert.Thatf(bytes == blk.size, assert.SizeMismatch,
		"bytes == blk.size", "deallocate with size %d, block has canonical size %d", bytes, blk.size)
	assert.Thatf(align == blk.align, assert.BadAlignment,
		"align == blk.align", "deallocate with alignment %d, block was allocated with %d", align, blk.align)

	st.deallocs.Add(1)
	st.liveBytes.Add(-int64(blk.size))
	if st.trace {
		st.logger.Debug("deallocate",
			zap.Uintptr("base", uintptr(p)), zap.Int("bytes", bytes))
	}
}

func systemTryResize(p unsafe.Pointer, oldBytes, min, max, align int, userdata unsafe.Pointer) int {
	st := (*systemState)(userdata)

	blk, ok := st.blocks.Load(uintptr(p))
	if !ok {
		return -1
	}
	assert.Thatf(oldBytes == blk.size, assert.SizeMismatch,
		"oldBytes == blk.size", "resize with size %d, block has canonical size %d", oldBytes, blk.size)
	assert.Thatf(align == blk.align, assert.BadAlignment,
		"align == blk.align", "resize with alignment %d, block was allocated with %d", align, blk.align)

	if min > blk.cap {
		return -1
	}
	newSize := minInt(blk.cap, max)
	st.resizes.Add(1)
	st.liveBytes.Add(int64(newSize - blk.size))
	blk.size = newSize
	if st.trace {
		st.logger.Debug("resize in place",
			zap.Uintptr("base", uintptr(p)),
			zap.Int("old", oldBytes), zap.Int("new", newSize))
	}
	return newSize
}
