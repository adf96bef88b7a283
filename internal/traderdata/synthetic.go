package traderdata

import (
	"fmt"
	"math/rand"
)

// SyntheticPopulation generates n synthetic trader rows with distributions
// matching the documented archetype mix, used when the upstream feed and
// the on-disk cache are both unavailable.
func SyntheticPopulation(n int) []RawTrader {
	rng := rand.New(rand.NewSource(1)) // deterministic: this is a fallback, not a live feed
	out := make([]RawTrader, n)

	for i := 0; i < n; i++ {
		volume := 1000 + rng.Float64()*500000
		winRate := 0.35 + rng.Float64()*0.35
		buyShare := 0.3 + rng.Float64()*0.4
		buyVolume := volume * buyShare
		sellVolume := volume - buyVolume
		tradeCount := int64(10 + rng.Intn(2000))
		avgTrade := volume / float64(tradeCount)

		out[i] = RawTrader{
			Position:     i + 1,
			Wallet:       fmt.Sprintf("0xsynthetic%06d", i),
			NetPnL:       (rng.Float64()*2 - 0.8) * volume * 0.05,
			TotalVolume:  volume,
			BuyVolume:    buyVolume,
			SellVolume:   sellVolume,
			TradeCount:   tradeCount,
			FeesUSD:      volume * 0.001,
			WinRate:      winRate,
			AvgTradeSize: avgTrade,
			LargestTrade: avgTrade * (3 + rng.Float64()*10),
			LastActive:   0,
		}
	}
	return out
}
