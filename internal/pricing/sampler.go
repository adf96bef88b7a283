package pricing

import "math"

type priceCategory struct {
	name     string
	weight   float64
	lo, hi   float64 // log-uniform draw range
}

var priceCategories = []priceCategory{
	{"micro", 0.25, 0.0001, 0.01},
	{"small", 0.30, 0.01, 1},
	{"mid", 0.25, 1, 50},
	{"large", 0.15, 50, 500},
	{"mega", 0.05, 500, 50000},
}

// SampleInitialPrice picks one of five weighted price categories then draws
// a log-uniform price within it, rounded to a sensible precision for the
// category's magnitude.
func SampleInitialPrice(rng Rand) float64 {
	r := rng.Float64()
	var cumulative float64
	chosen := priceCategories[len(priceCategories)-1]
	for _, c := range priceCategories {
		cumulative += c.weight
		if r <= cumulative {
			chosen = c
			break
		}
	}

	logLo, logHi := math.Log(chosen.lo), math.Log(chosen.hi)
	price := math.Exp(logLo + rng.Float64()*(logHi-logLo))
	return roundForMagnitude(price)
}

func roundForMagnitude(price float64) float64 {
	switch {
	case price < 0.01:
		return math.Round(price*1e6) / 1e6
	case price < 1:
		return math.Round(price*1e4) / 1e4
	case price < 100:
		return math.Round(price*100) / 100
	default:
		return math.Round(price*100) / 100
	}
}
