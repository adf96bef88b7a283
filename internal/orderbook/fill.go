package orderbook

import (
	"math"

	"simengine/pkg/simtypes"
)

const maxPriceImpact = 0.08

// Fill walks the opposing side of the book in price-priority order against
// an incoming external order, consuming depth up to the limit price. It
// returns the resulting trade and whether any quantity filled at all. The
// live price is expected to be nudged by the returned price impact by the
// caller (sign +1 for buys, -1 for sells).
func (b *Book) Fill(order simtypes.ExternalOrder, currentPrice float64) (simtypes.Trade, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	opposing := b.asks
	if order.Action == simtypes.Sell {
		opposing = b.bids
	}

	remaining := order.Quantity
	var filledNotional, filledQty float64
	opposingDepth := totalQuantity(opposing)

	for i := range opposing {
		if remaining <= 0 {
			break
		}
		level := &opposing[i]
		if order.Action == simtypes.Buy && level.Price > order.Price {
			break
		}
		if order.Action == simtypes.Sell && level.Price < order.Price {
			break
		}

		take := math.Min(remaining, level.Quantity)
		if take <= 0 {
			continue
		}

		level.Quantity -= take
		remaining -= take
		filledQty += take
		filledNotional += take * level.Price
	}

	if filledQty <= 0 {
		return simtypes.Trade{}, false
	}

	avgPrice := filledNotional / filledQty
	impact := filledNotional / (opposingDepth + filledNotional)
	if impact > maxPriceImpact {
		impact = maxPriceImpact
	}

	b.recentTrades = append(b.recentTrades, tradeSample{side: order.Action, notional: filledNotional})
	if len(b.recentTrades) > 10 {
		b.recentTrades = b.recentTrades[len(b.recentTrades)-10:]
	}

	trade := simtypes.Trade{
		Clock:       order.Clock,
		Action:      order.Action,
		Price:       avgPrice,
		Quantity:    filledQty,
		Notional:    filledNotional,
		PriceImpact: impact,
		Archetype:   order.Archetype,
	}
	return trade, true
}

// SignedImpact returns the price impact with its directional sign applied:
// positive for buys, negative for sells.
func SignedImpact(side simtypes.Side, impact float64) float64 {
	if side == simtypes.Sell {
		return -impact
	}
	return impact
}
