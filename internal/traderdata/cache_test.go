package traderdata

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	traders []RawTrader
	err     error
}

func (s stubFetcher) FetchTopTraders() ([]RawTrader, error) {
	return s.traders, s.err
}

func TestGetFetchesAndPersists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fetcher := stubFetcher{traders: []RawTrader{{Wallet: "0xabc", TotalVolume: 1000}}}
	c, err := NewCache(dir, time.Hour, 10, fetcher)
	require.NoError(t, err)

	traders := c.Get("q1")
	require.Len(t, traders, 1)
	assert.Equal(t, "0xabc", traders[0].Wallet)
}

func TestGetFallsBackToStaleCacheOnFetchFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	okFetcher := stubFetcher{traders: []RawTrader{{Wallet: "0xabc", TotalVolume: 1000}}}
	c, err := NewCache(dir, time.Nanosecond, 10, okFetcher)
	require.NoError(t, err)
	c.Get("q1") // persist once

	time.Sleep(2 * time.Millisecond) // expire the TTL

	failing, err := NewCache(dir, time.Nanosecond, 10, stubFetcher{err: errors.New("upstream down")})
	require.NoError(t, err)
	traders := failing.Get("q1")
	require.Len(t, traders, 1)
	assert.Equal(t, "0xabc", traders[0].Wallet)
}

func TestGetFallsBackToSyntheticWhenNothingAvailable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := NewCache(dir, time.Hour, 118, nil)
	require.NoError(t, err)

	traders := c.Get("q-missing")
	assert.Len(t, traders, 118)
}

func TestToTraderDerivesProfile(t *testing.T) {
	t.Parallel()

	raw := RawTrader{Wallet: "0xabc", TotalVolume: 10000, WinRate: 0.7, TradeCount: 50}
	tr := ToTrader(raw, rand.New(rand.NewSource(1)))
	assert.Equal(t, "0xabc", tr.WalletID)
	assert.NotEmpty(t, tr.Strategy)
	assert.NotEmpty(t, tr.RiskClass)
}
