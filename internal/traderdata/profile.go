package traderdata

import (
	"math/rand"

	"simengine/pkg/simtypes"
)

// ToTrader derives a Trader profile (risk class, strategy, behavioral
// parameters) from a raw upstream/synthetic row.
func ToTrader(raw RawTrader, rng *rand.Rand) simtypes.Trader {
	risk := riskClassFor(raw, rng)
	strategy := strategyFor(raw, rng)

	return simtypes.Trader{
		WalletID:       raw.Wallet,
		LifetimeVolume: raw.TotalVolume,
		BuyVolume:      raw.BuyVolume,
		SellVolume:     raw.SellVolume,
		TradeCount:     raw.TradeCount,
		WinRate:        raw.WinRate,
		RiskClass:      risk,
		Strategy:       strategy,
		Params:         paramsFor(risk, strategy),
	}
}

func riskClassFor(raw RawTrader, rng *rand.Rand) simtypes.RiskClass {
	switch {
	case raw.AvgTradeSize > raw.TotalVolume*0.1:
		return simtypes.RiskAggressive
	case raw.WinRate < 0.45:
		return simtypes.RiskConservative
	default:
		classes := []simtypes.RiskClass{simtypes.RiskConservative, simtypes.RiskModerate, simtypes.RiskAggressive}
		return classes[rng.Intn(len(classes))]
	}
}

func strategyFor(raw RawTrader, rng *rand.Rand) simtypes.Strategy {
	switch {
	case raw.TradeCount > 1000:
		return simtypes.StrategyScalper
	case raw.WinRate > 0.6:
		return simtypes.StrategyMomentum
	case raw.WinRate < 0.4:
		return simtypes.StrategyContrarian
	default:
		strategies := []simtypes.Strategy{simtypes.StrategyScalper, simtypes.StrategySwing, simtypes.StrategyMomentum, simtypes.StrategyContrarian}
		return strategies[rng.Intn(len(strategies))]
	}
}

func paramsFor(risk simtypes.RiskClass, strategy simtypes.Strategy) simtypes.TraderParams {
	p := simtypes.TraderParams{
		EntryThreshold:       0.01,
		ExitProfitThreshold:  0.02,
		ExitLossThreshold:    0.01,
		MinHoldingPeriodMS:   1000,
		MaxHoldingPeriodMS:   3600000,
		TradingFrequency:     0.5,
		SentimentSensitivity: 0.5,
		StopLoss:             0.05,
		TakeProfit:           0.10,
	}

	switch risk {
	case simtypes.RiskAggressive:
		p.StopLoss, p.TakeProfit = 0.10, 0.20
	case simtypes.RiskConservative:
		p.StopLoss, p.TakeProfit = 0.02, 0.04
	}

	if strategy == simtypes.StrategyScalper {
		p.MaxHoldingPeriodMS = 60000
		p.TradingFrequency = 0.9
	}

	return p
}
