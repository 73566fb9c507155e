package memres

import (
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/solidean/clean-core-go/internal/ccconfig"
)

// CountingStats is a snapshot of a counting resource's counters.
type CountingStats struct {
	Allocs    int64
	Deallocs  int64
	Resizes   int64
	LiveBytes int64
	PeakBytes int64
}

// LeakReport describes one block that outlived the configured leak
// threshold.
type LeakReport struct {
	Base  uintptr
	Bytes int
	Age   time.Duration
}

type trackedBlock struct {
	bytes int
	at    time.Time
}

// CountingResource wraps another resource and records allocation
// traffic. It is the test-suite workhorse (scenario checks assert exact
// alloc/dealloc counts) and doubles as a leak detector when enabled in
// the configuration.
type CountingResource struct {
	resource Resource
	inner    *Resource
	cfg      *ccconfig.Config
	logger   *zap.Logger

	allocs    atomic.Int64
	deallocs  atomic.Int64
	resizes   atomic.Int64
	liveBytes atomic.Int64
	peakBytes atomic.Int64

	tracked *xsync.MapOf[uintptr, trackedBlock]
}

// NewCountingResource builds a counting resource delegating to inner
// (nil means the default resource). cfg may be nil.
func NewCountingResource(inner *Resource, cfg *ccconfig.Config) *CountingResource {
	if cfg == nil {
		cfg = ccconfig.DefaultConfig()
	}
	c := &CountingResource{
		inner:  Effective(inner),
		cfg:    cfg,
		logger: ccconfig.Logger(cfg),
	}
	if cfg.TrackAllocations {
		c.tracked = xsync.NewMapOf[uintptr, trackedBlock]()
	}
	c.resource = Resource{
		AllocateBytes:    countingAllocate,
		TryAllocateBytes: countingTryAllocate,
		DeallocateBytes:  countingDeallocate,
		TryResizeInPlace: countingTryResize,
		Userdata:         unsafe.Pointer(c),
	}
	return c
}

// Resource returns the ABI handle; its address is stable for the
// lifetime of the CountingResource.
func (c *CountingResource) Resource() *Resource {
	return &c.resource
}

// Stats snapshots the counters.
func (c *CountingResource) Stats() CountingStats {
	return CountingStats{
		Allocs:    c.allocs.Load(),
		Deallocs:  c.deallocs.Load(),
		Resizes:   c.resizes.Load(),
		LiveBytes: c.liveBytes.Load(),
		PeakBytes: c.peakBytes.Load(),
	}
}

// CheckLeaks reports tracked blocks older than the leak threshold.
// Returns nil when tracking or leak detection is disabled.
func (c *CountingResource) CheckLeaks() []LeakReport {
	if c.tracked == nil || !c.cfg.EnableLeakDetection {
		return nil
	}
	now := time.Now()
	var leaks []LeakReport
	c.tracked.Range(func(base uintptr, blk trackedBlock) bool {
		if age := now.Sub(blk.at); age >= c.cfg.LeakThreshold {
			leaks = append(leaks, LeakReport{Base: base, Bytes: blk.bytes, Age: age})
		}
		return true
	})
	for _, l := range leaks {
		c.logger.Warn("possible leak",
			zap.Uintptr("base", l.Base),
			zap.Int("bytes", l.Bytes),
			zap.Duration("age", l.Age))
	}
	return leaks
}

func (c *CountingResource) recordAlloc(p unsafe.Pointer, n int) {
	c.allocs.Add(1)
	live := c.liveBytes.Add(int64(n))
	for {
		peak := c.peakBytes.Load()
		if live <= peak || c.peakBytes.CompareAndSwap(peak, live) {
			break
		}
	}
	if c.tracked != nil {
		c.tracked.Store(uintptr(p), trackedBlock{bytes: n, at: time.Now()})
	}
}

func countingAllocate(min, max, align int, userdata unsafe.Pointer) (unsafe.Pointer, int) {
	c := (*CountingResource)(userdata)
	p, n := c.inner.Allocate(min, max, align)
	if p != nil {
		c.recordAlloc(p, n)
	}
	return p, n
}

func countingTryAllocate(min, max, align int, userdata unsafe.Pointer) (unsafe.Pointer, int) {
	c := (*CountingResource)(userdata)
	p, n := c.inner.TryAllocate(min, max, align)
	if p != nil && n >= 0 {
		c.recordAlloc(p, n)
	}
	return p, n
}

func countingDeallocate(p unsafe.Pointer, bytes, align int, userdata unsafe.Pointer) {
	c := (*CountingResource)(userdata)
	c.inner.Deallocate(p, bytes, align)
	c.deallocs.Add(1)
	c.liveBytes.Add(-int64(bytes))
	if c.tracked != nil {
		c.tracked.Delete(uintptr(p))
	}
}

func countingTryResize(p unsafe.Pointer, oldBytes, min, max, align int, userdata unsafe.Pointer) int {
	c := (*CountingResource)(userdata)
	n := c.inner.TryResize(p, oldBytes, min, max, align)
	if n < 0 {
		return n
	}
	c.resizes.Add(1)
	c.liveBytes.Add(int64(n - oldBytes))
	if c.tracked != nil {
		if blk, ok := c.tracked.Load(uintptr(p)); ok {
			blk.bytes = n
			c.tracked.Store(uintptr(p), blk)
		}
	}
	return n
}
