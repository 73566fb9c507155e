package noderes

import (
	"sync/atomic"
	"unsafe"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/timandy/routine"
	"go.uber.org/zap"

	"github.com/solidean/clean-core-go/internal/assert"
	"github.com/solidean/clean-core-go/internal/ccconfig"
	"github.com/solidean/clean-core-go/memres"
)

// Resource is the node resource ABI: four function pointers plus opaque
// user data. GetAllocator hands out the calling thread's allocator view;
// the remaining entry points are reached through an Allocator.
type Resource struct {
	GetAllocator                    func(userdata unsafe.Pointer) *Allocator
	AllocateNodeBytesLarge          func(idx ClassIndex, sizeBytes, alignment int, userdata unsafe.Pointer) unsafe.Pointer
	RefillSlabsAndAllocateNodeBytes func(a *Allocator, idx ClassIndex, userdata unsafe.Pointer) unsafe.Pointer
	DeallocateNodeBytesLarge        func(p unsafe.Pointer, idx ClassIndex, userdata unsafe.Pointer)
	Userdata                        unsafe.Pointer
}

// The registry resolves the resource word stored in large-node headers
// back to a live Resource. Ids instead of raw pointers keep the header
// free of Go pointers.
var (
	resourceIDs    = xsync.NewMapOf[*Resource, uintptr]()
	resourcesByID  = xsync.NewMapOf[uintptr, *Resource]()
	nextResourceID atomic.Int64
)

func registerResource(r *Resource) uintptr {
	if id, ok := resourceIDs.Load(r); ok {
		return id
	}
	id := uintptr(nextResourceID.Add(1))
	if prev, loaded := resourceIDs.LoadOrStore(r, id); loaded {
		return prev
	}
	resourcesByID.Store(id, r)
	return id
}

func resourceByID(id uintptr) *Resource {
	r, _ := resourcesByID.Load(id)
	return r
}

// SystemStats is a snapshot of a system node resource's counters.
type SystemStats struct {
	SlabsCreated int64
	SlabBytes    int64
	LargeAllocs  int64
	LargeFrees   int64
}

type systemNodeState struct {
	self  *Resource
	bytes *memres.Resource
	tls   routine.ThreadLocal[*Allocator]

	logger *zap.Logger
	trace  bool

	slabsCreated atomic.Int64
	slabBytes    atomic.Int64
	largeAllocs  atomic.Int64
	largeFrees   atomic.Int64
}

// SystemNodeResource is the slab-backed node resource implementation.
// It hands out one Allocator per thread; slabs are never shared between
// threads on the allocation path, while the free path may run anywhere.
type SystemNodeResource struct {
	resource Resource
	state    *systemNodeState
}

// NewSystemNodeResource builds a node resource drawing slab and
// large-node memory from bytes (nil means the default byte resource).
// cfg may be nil.
func NewSystemNodeResource(bytes *memres.Resource, cfg *ccconfig.Config) *SystemNodeResource {
	st := &systemNodeState{
		bytes:  memres.Effective(bytes),
		logger: ccconfig.Logger(cfg),
		trace:  cfg != nil && cfg.NodeTrace,
	}
	s := &SystemNodeResource{state: st}
	s.resource = Resource{
		GetAllocator:                    systemGetAllocator,
		AllocateNodeBytesLarge:          systemAllocateLarge,
		RefillSlabsAndAllocateNodeBytes: systemRefill,
		DeallocateNodeBytesLarge:        systemDeallocateLarge,
		Userdata:                        unsafe.Pointer(st),
	}
	st.self = &s.resource
	st.tls = routine.NewThreadLocalWithInitial[*Allocator](func() *Allocator {
		return &Allocator{resource: st.self}
	})
	registerResource(&s.resource)
	return s
}

// Resource returns the ABI handle; its address is stable for the
// lifetime of the SystemNodeResource.
func (s *SystemNodeResource) Resource() *Resource {
	return &s.resource
}

// Stats snapshots the counters.
func (s *SystemNodeResource) Stats() SystemStats {
	return SystemStats{
		SlabsCreated: s.state.slabsCreated.Load(),
		SlabBytes:    s.state.slabBytes.Load(),
		LargeAllocs:  s.state.largeAllocs.Load(),
		LargeFrees:   s.state.largeFrees.Load(),
	}
}

var defaultSystem = NewSystemNodeResource(nil, nil)

// Default returns the process-wide node resource. The pointer is stable
// for the lifetime of the process.
func Default() *Resource {
	return defaultSystem.Resource()
}

// DefaultStats snapshots the default node resource's counters.
func DefaultStats() SystemStats {
	return defaultSystem.Stats()
}

// DefaultAllocator returns the calling thread's allocator of the
// default node resource, lazily created on first use.
func DefaultAllocator() *Allocator {
	return Default().GetAllocator(Default().Userdata)
}

func systemGetAllocator(userdata unsafe.Pointer) *Allocator {
	st := (*systemNodeState)(userdata)
	return st.tls.Get()
}

// systemRefill allocates a fresh slab for the class, initializes its
// freemap with the header slots permanently cleared, wires it into the
// calling thread's ring as the new head and serves the first slot.
func systemRefill(a *Allocator, idx ClassIndex, userdata unsafe.Pointer) unsafe.Pointer {
	st := (*systemNodeState)(userdata)

	slabSize := SlabSizeFor(idx)
	base, _ := st.bytes.Allocate(slabSize, slabSize, slabSize)
	assert.Thatf(memres.IsAlignedPtr(base, slabSize), assert.BadAlignment,
		"isAligned(base, slabSize)", "slab for class %d must be aligned to %d bytes", idx, slabSize)

	atomic.StoreUint64((*uint64)(base), initialFreemapFor(idx))

	head := a.heads[idx]
	if head == nil {
		setSlabNext(base, base)
	} else {
		// insert behind the old head so the ring stays one cycle
		setSlabNext(base, slabNext(head))
		setSlabNext(head, base)
	}
	a.heads[idx] = base
	a.ringLen[idx]++

	st.slabsCreated.Add(1)
	st.slabBytes.Add(int64(slabSize))
	if st.trace {
		st.logger.Debug("slab refill",
			zap.Int("class", int(idx)),
			zap.Uintptr("base", uintptr(base)),
			zap.Int32("ring", a.ringLen[idx]))
	}

	fm := atomic.LoadUint64((*uint64)(base))
	return takeSlot(base, idx, fm)
}

// systemAllocateLarge serves nodes above the small-max boundary: a
// 24-byte header [size][alignment][resource id] immediately precedes the
// user pointer.
func systemAllocateLarge(idx ClassIndex, sizeBytes, alignment int, userdata unsafe.Pointer) unsafe.Pointer {
	st := (*systemNodeState)(userdata)

	if alignment < 8 {
		alignment = 8
	}
	assert.Thatf(alignment == 8, assert.BadAlignment,
		"alignment == 8", "large nodes with alignment %d are not supported", alignment)

	total := LargeHeaderBytes + sizeBytes
	base, _ := st.bytes.Allocate(total, total, alignment)

	*(*int64)(base) = int64(sizeBytes)
	*(*int64)(unsafe.Add(base, 8)) = int64(alignment)
	*(*uintptr)(unsafe.Add(base, 16)) = registerResource(st.self)

	st.largeAllocs.Add(1)
	return unsafe.Add(base, LargeHeaderBytes)
}

func systemDeallocateLarge(p unsafe.Pointer, idx ClassIndex, userdata unsafe.Pointer) {
	st := (*systemNodeState)(userdata)

	base := unsafe.Add(p, -LargeHeaderBytes)
	sizeBytes := int(*(*int64)(base))
	alignment := int(*(*int64)(unsafe.Add(base, 8)))

	st.bytes.Deallocate(base, LargeHeaderBytes+sizeBytes, alignment)
	st.largeFrees.Add(1)
}

// FreeNodeBytes returns a small-node slot to its slab: the slab base and
// slot index are recovered from the pointer alone and the slot bit is
// set with one atomic OR. Wait-free and callable from any thread.
func FreeNodeBytes(p unsafe.Pointer, idx ClassIndex) {
	assert.That(p != nil, assert.NilArgument, "p != nil", "free of nil node")
	assert.That(!IsLargeClass(idx), assert.InvalidState,
		"idx <= smallMax", "large nodes are freed through their header")

	base := SlabBaseOf(p, idx)
	slot := SlotIndexOf(p, idx)
	bit := uint64(1) << slot
	old := atomic.OrUint64((*uint64)(base), bit)
	assert.Thatf(old&bit == 0, assert.DoubleFree,
		"freemap bit was clear", "slot %d of slab %#x freed twice", slot, uintptr(base))
}

// FreeLargeNodeBytes returns a large node by reading its header: the
// resource word resolves the owning resource, which deallocates with the
// recorded size and alignment.
func FreeLargeNodeBytes(p unsafe.Pointer, idx ClassIndex) {
	assert.That(p != nil, assert.NilArgument, "p != nil", "free of nil node")
	assert.That(memres.IsAlignedPtr(p, 8), assert.BadAlignment,
		"isAligned(p, 8)", "large nodes are at least 8-byte aligned")

	id := *(*uintptr)(unsafe.Add(p, -8))
	r := resourceByID(id)
	assert.Thatf(r != nil, assert.InvalidState,
		"resource != nil", "large node header names unknown resource %d", id)
	assert.That(r.DeallocateNodeBytesLarge != nil, assert.NilArgument,
		"r.DeallocateNodeBytesLarge != nil", "resource must implement DeallocateNodeBytesLarge")
	r.DeallocateNodeBytesLarge(p, idx, r.Userdata)
}

// FreemapForBase returns the current freemap of a slab. Intended for
// diagnostics and tests.
func FreemapForBase(base unsafe.Pointer) uint64 {
	return atomic.LoadUint64((*uint64)(base))
}
