package external

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simengine/pkg/simtypes"
)

func TestTickBudgetRespectsCap(t *testing.T) {
	t.Parallel()

	assert.Equal(t, simtypes.ThroughputNormal.TickCap(), TickBudget(simtypes.ThroughputNormal, 2000))
}

func TestTickBudgetCapsAtModeCeiling(t *testing.T) {
	t.Parallel()

	n := TickBudget(simtypes.ThroughputHFT, 1000)
	assert.LessOrEqual(t, n, simtypes.ThroughputHFT.TickCap())
}

func TestGenerateProducesValidOrders(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	orders := Generate(50, 50, 50, simtypes.TrendBullish, rng, 1000)
	require.NotEmpty(t, orders)
	for _, o := range orders {
		assert.Greater(t, o.Price, 0.0)
		assert.Greater(t, o.Quantity, 0.0)
	}
}

func TestWhaleSidesOnlyAtExtremes(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	_, ok := sideFor(simtypes.ArchetypeWhale, Configs[simtypes.ArchetypeWhale], 50, 50, simtypes.TrendSideways, rng)
	assert.False(t, ok, "a whale must not order when price is within its dead zone")

	side, ok := sideFor(simtypes.ArchetypeWhale, Configs[simtypes.ArchetypeWhale], 40, 50, simtypes.TrendSideways, rng)
	require.True(t, ok)
	assert.Equal(t, simtypes.Buy, side)
}

func TestDrainQueueOrdersByPriorityThenFIFO(t *testing.T) {
	t.Parallel()

	pending := []simtypes.ExternalOrder{
		{Priority: 1, Clock: 1},
		{Priority: 5, Clock: 2},
		{Priority: 3, Clock: 3},
	}
	toProcess, remaining := DrainQueue(pending, 2)
	require.Len(t, toProcess, 2)
	assert.Equal(t, 5, toProcess[0].Priority)
	assert.Equal(t, 3, toProcess[1].Priority)
	require.Len(t, remaining, 1)
	assert.Equal(t, 1, remaining[0].Priority)
}

func TestLiquidationCascadeSizeAndDescendingPrice(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	orders := LiquidationCascade(50, rng, 1000, 50)
	assert.GreaterOrEqual(t, len(orders), 10)
	assert.LessOrEqual(t, len(orders), 30)
	for i := 1; i < len(orders); i++ {
		assert.Less(t, orders[i].Price, orders[i-1].Price)
		assert.Equal(t, simtypes.Sell, orders[i].Action)
	}
}

func TestDetectFrontRunOnlyAboveThreshold(t *testing.T) {
	t.Parallel()

	small := simtypes.ExternalOrder{Action: simtypes.Buy, Price: 50, Quantity: 1}
	_, ok := DetectFrontRun(small, 50, 1000)
	assert.False(t, ok)

	large := simtypes.ExternalOrder{Action: simtypes.Buy, Price: 50, Quantity: 1000}
	front, ok := DetectFrontRun(large, 50, 1000)
	require.True(t, ok)
	assert.Equal(t, simtypes.ArchetypeMEVBot, front.Archetype)
	assert.Equal(t, simtypes.Buy, front.Action)
}

func TestPacerAllowsUpToBurst(t *testing.T) {
	t.Parallel()

	p := NewPacer(simtypes.ThroughputBurst)
	allowed := 0
	for i := 0; i < simtypes.ThroughputBurst.TickCap()+5; i++ {
		if p.Allow() {
			allowed++
		}
	}
	assert.LessOrEqual(t, allowed, simtypes.ThroughputBurst.TickCap())
}
