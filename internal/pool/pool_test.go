package pool

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simengine/pkg/simtypes"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTradePool(capacity int) *Pool[*simtypes.Trade] {
	return New[*simtypes.Trade]("trade", capacity, func() *simtypes.Trade {
		return &simtypes.Trade{}
	}, testLogger())
}

func TestAcquireReturnsZeroedInstance(t *testing.T) {
	t.Parallel()

	p := newTradePool(4)
	tr := p.Acquire()
	tr.Price = 123
	p.Release(tr)

	again := p.Acquire()
	assert.Equal(t, 0.0, again.Price, "released instance must be reset before reuse")
}

func TestAcquireGrowsPastCapacity(t *testing.T) {
	t.Parallel()

	p := newTradePool(2)
	a := p.Acquire()
	b := p.Acquire()
	c := p.Acquire() // exhausts the free list, must still succeed

	require.NotNil(t, c)
	h := p.Health()
	assert.Equal(t, 3, h.InUse)

	p.Release(a)
	p.Release(b)
	p.Release(c)
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	p := newTradePool(4)
	tr := p.Acquire()
	p.Release(tr)
	p.Release(tr) // double release must not corrupt the free list

	h := p.Health()
	assert.Equal(t, 0, h.InUse)
	assert.LessOrEqual(t, h.Available, 4)
}

func TestAcquireForcesCleanupPastDriftThreshold(t *testing.T) {
	t.Parallel()

	p := newTradePool(2000)
	var held []*simtypes.Trade
	for i := 0; i < 50; i++ {
		held = append(held, p.Acquire())
	}
	// Manually age every checked-out entry past the idle deadline so the
	// drift-triggered forceGCLocked pass (not the 80%-utilization one,
	// which never fires at this capacity) has something to reclaim.
	p.mu.Lock()
	for item := range p.checkedOut {
		p.checkedOut[item] = checkoutInfo{acquiredAt: time.Now().Add(-10 * time.Minute)}
	}
	p.mu.Unlock()

	for i := 0; i < driftCleanupThreshold+1; i++ {
		p.Acquire()
	}

	inUseBeforeRelease := p.Health().InUse
	for _, tr := range held {
		p.Release(tr)
	}
	assert.Equal(t, inUseBeforeRelease, p.Health().InUse,
		"aged-out checkouts must already have been reclaimed by the drift-triggered cleanup, making this release a no-op")
}

func TestAcquireLogsLeakPastDriftThreshold(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := New[*simtypes.Trade]("trade", 2000, func() *simtypes.Trade { return &simtypes.Trade{} }, logger)

	// Keep every instance checked out and fresh (never past the idle
	// deadline), so drift climbs past the leak-log threshold without the
	// cleanup pass ever being able to reclaim it.
	for i := 0; i < driftLeakLogThreshold+1; i++ {
		p.Acquire()
	}

	assert.Contains(t, buf.String(), "leak threshold")
}

func TestHealthReflectsUtilization(t *testing.T) {
	t.Parallel()

	p := newTradePool(10)
	var held []*simtypes.Trade
	for i := 0; i < 9; i++ {
		held = append(held, p.Acquire())
	}

	h := p.Health()
	assert.False(t, h.Healthy, "utilization above 80%% must be reported unhealthy")

	for _, tr := range held {
		p.Release(tr)
	}
	h = p.Health()
	assert.True(t, h.Healthy)
	assert.Equal(t, int64(0), h.Drift)
}
