package candle

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simengine/pkg/simtypes"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIntervalByPriceTier(t *testing.T) {
	t.Parallel()

	cases := []struct {
		price float64
		want  int64
	}{
		{0.001, 6000},
		{0.5, 8000},
		{5, 10000},
		{50, 12000},
		{500, 15000},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Interval(c.price))
	}
}

func TestIngestRollsOverOnNewBar(t *testing.T) {
	t.Parallel()

	a := New(50, 100, testLogger())
	a.Ingest(0, 50, 10)
	a.Ingest(1000, 51, 5) // still within the first 12s bar

	cur, ok := a.Current()
	require.True(t, ok)
	assert.Equal(t, 15.0, cur.Volume)
	assert.Equal(t, 51.0, cur.Close)

	a.Ingest(13000, 52, 2) // crosses into the next bar, finalizes the first

	hist := a.History(0)
	require.Len(t, hist, 1)
	assert.Equal(t, 50.0, hist[0].Open)
	assert.Equal(t, 51.0, hist[0].Close)

	cur, ok = a.Current()
	require.True(t, ok)
	assert.Equal(t, 52.0, cur.Close)
}

func TestCoordinateTimestampIsMonotonic(t *testing.T) {
	t.Parallel()

	a := New(50, 100, testLogger())
	a.Ingest(10000, 50, 1)
	a.Ingest(5000, 51, 1) // earlier than last+interval, must be advanced

	assert.GreaterOrEqual(t, a.lastTimestamp, int64(10000))
	assert.Greater(t, a.driftAccum, int64(0))
}

func TestRepairDropsUnrecoverableCandle(t *testing.T) {
	t.Parallel()

	a := New(50, 100, testLogger())
	a.Ingest(0, 50, 10)
	a.current.Open = -1
	a.current.High = -1
	a.current.Low = -1
	a.current.Close = -1
	a.repairAndValidateCurrent()

	assert.Nil(t, a.current)
	assert.Equal(t, int64(1), a.counters.InvalidDropped)
}

func TestSetCandlesFixesNonMonotonicTimestamps(t *testing.T) {
	t.Parallel()

	a := New(50, 100, testLogger())
	batch := []simtypes.Candle{
		{OpenTime: 0, Open: 50, High: 52, Low: 49, Close: 51, Volume: 10},
		{OpenTime: 0, Open: 51, High: 53, Low: 50, Close: 52, Volume: 5}, // same open_time, must be advanced
	}
	a.SetCandles(batch)

	hist := a.History(0)
	require.Len(t, hist, 2)
	assert.Greater(t, hist[1].OpenTime, hist[0].OpenTime)
	assert.Equal(t, int64(1), a.counters.TimestampFixes)
}

func TestResetClearsStateAndRederivesInterval(t *testing.T) {
	t.Parallel()

	a := New(50, 100, testLogger())
	a.Ingest(0, 50, 10)
	a.Ingest(13000, 51, 2)
	require.NotEmpty(t, a.History(0))

	a.Reset(5000)

	assert.Empty(t, a.History(0))
	_, ok := a.Current()
	assert.False(t, ok)
	assert.Equal(t, Interval(5000), a.intervalMS)
}

func TestRegistryCreationCoalesces(t *testing.T) {
	t.Parallel()

	r := NewRegistry(100, testLogger())

	const n = 8
	results := make(chan *Aggregator, n)
	for i := 0; i < n; i++ {
		go func() {
			results <- r.GetOrCreate("session-1", 50)
		}()
	}

	first := <-results
	for i := 1; i < n; i++ {
		assert.Same(t, first, <-results)
	}
}

func TestRegistryReleaseRemovesInstance(t *testing.T) {
	t.Parallel()

	r := NewRegistry(100, testLogger())
	r.GetOrCreate("session-1", 50)
	r.Release("session-1")

	_, ok := r.Get("session-1")
	assert.False(t, ok)
}

func TestRegistryAuditCountsUninitialized(t *testing.T) {
	t.Parallel()

	r := NewRegistry(100, testLogger())
	r.GetOrCreate("session-1", 50)

	report := r.Audit()
	assert.Equal(t, 1, report.TotalInstances)
	assert.Equal(t, 1, report.UninitializedInstances)
}
