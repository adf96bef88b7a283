// Package pool supplies pre-sized, reusable Trade and Position instances to
// keep steady-state allocation near zero under sustained high tick rates.
//
// Each pool is a thin, mutex-guarded free list over a generic element type.
// Acquire always returns an instance — the pool grows past its configured
// capacity rather than blocking, the way the teacher's market.Book favors a
// stale-but-available read over blocking the tick loop. Release is
// idempotent: releasing an instance that is not currently checked out is a
// logged warning, not a panic, guarded by an identity set rather than a
// language-level finalizer.
package pool

import (
	"log/slog"
	"sync"
	"time"
)

// Resettable is implemented by pooled element types so Release can zero them
// before they re-enter circulation.
type Resettable interface {
	Reset()
}

// checkoutInfo tracks when an instance was handed out, for idle-deadline GC.
type checkoutInfo struct {
	acquiredAt time.Time
}

// Pool is a generic, identity-checked allocator for *T.
type Pool[T Resettable] struct {
	mu sync.Mutex

	new      func() T
	capacity int

	free     []T
	checkedOut map[T]checkoutInfo

	acquired uint64
	released uint64

	leakLogged bool // true once a >500 drift has been logged, until drift recovers

	logger *slog.Logger
	name   string
}

// driftCleanupThreshold is the per-pool acquired-minus-released drift past
// which Acquire forces an idle-deadline GC pass regardless of utilization.
const driftCleanupThreshold = 100

// driftLeakLogThreshold is the drift past which Acquire logs a leak warning
// — this engine runs at most one active session at a time, so a pool's
// drift is simultaneously the per-session and the process-wide figure.
const driftLeakLogThreshold = 500

// New creates a pool pre-populated with capacity instances.
func New[T Resettable](name string, capacity int, newFn func() T, logger *slog.Logger) *Pool[T] {
	p := &Pool[T]{
		new:        newFn,
		capacity:   capacity,
		checkedOut: make(map[T]checkoutInfo, capacity),
		logger:     logger.With("component", "pool", "pool", name),
		name:       name,
	}
	p.free = make([]T, 0, capacity)
	for i := 0; i < capacity; i++ {
		p.free = append(p.free, newFn())
	}
	return p
}

// Acquire returns a zeroed instance. If the free list is exhausted the pool
// grows by allocating a fresh instance rather than blocking the caller.
func (p *Pool[T]) Acquire() T {
	p.mu.Lock()
	defer p.mu.Unlock()

	var item T
	if n := len(p.free); n > 0 {
		item = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		item = p.new()
	}

	item.Reset()
	p.checkedOut[item] = checkoutInfo{acquiredAt: time.Now()}
	p.acquired++

	drift := int64(p.acquired) - int64(p.released)

	if p.utilizationLocked() > 0.8 || drift > driftCleanupThreshold {
		p.forceGCLocked()
		drift = int64(p.acquired) - int64(p.released)
	}

	switch {
	case drift > driftLeakLogThreshold:
		if !p.leakLogged {
			p.logger.Error("pool drift exceeded leak threshold", "pool", p.name, "drift", drift)
			p.leakLogged = true
		}
	case drift <= driftCleanupThreshold:
		p.leakLogged = false
	}

	return item
}

// Release returns an instance for reuse. Releasing an instance that is not
// currently checked out is idempotent: it is logged and otherwise ignored,
// so a double-release can never corrupt the free list.
func (p *Pool[T]) Release(item T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.checkedOut[item]; !ok {
		p.logger.Warn("double release detected, ignoring", "pool", p.name)
		return
	}

	delete(p.checkedOut, item)
	item.Reset()
	p.free = append(p.free, item)
	p.released++
}

// forceGCLocked drops checked-out entries held past an idle deadline from
// bookkeeping so the health report reflects reality even when a caller
// leaked a reference. It does not reclaim the underlying memory (the caller
// still owns it) — it only corrects the in-use accounting.
func (p *Pool[T]) forceGCLocked() {
	const idleDeadline = 5 * time.Minute
	now := time.Now()
	for item, info := range p.checkedOut {
		if now.Sub(info.acquiredAt) > idleDeadline {
			delete(p.checkedOut, item)
			p.released++
		}
	}
}

// GC runs a one-shot forced collection of checked-out entries held past the
// idle deadline, for use by a lifecycle operation (e.g. session pause/stop)
// that wants to reconcile accounting outside the acquire-triggered path.
func (p *Pool[T]) GC() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forceGCLocked()
}

func (p *Pool[T]) utilizationLocked() float64 {
	if p.capacity == 0 {
		return 0
	}
	return float64(len(p.checkedOut)) / float64(p.capacity)
}

// HealthReport summarizes a pool's current utilization.
type HealthReport struct {
	Name      string
	InUse     int
	Available int
	Capacity  int
	Healthy   bool
	Drift     int64 // acquired - released, signed
}

// Health returns the current health snapshot.
func (p *Pool[T]) Health() HealthReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	inUse := len(p.checkedOut)
	return HealthReport{
		Name:      p.name,
		InUse:     inUse,
		Available: len(p.free),
		Capacity:  p.capacity,
		Healthy:   p.utilizationLocked() <= 0.8,
		Drift:     int64(p.acquired) - int64(p.released),
	}
}
