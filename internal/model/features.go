package model

import (
	"fmt"

	"tradebot/internal/domain"
	"tradebot/internal/indicators"
)

// FeatureNames lists the features Features produces, in pipeline order.
var FeatureNames = []string{
	"rsi",
	"ema_ratio",
	"macd_hist",
	"stoch_k",
	"stoch_d",
	"atr_pct",
	"bb_pct_b",
	"ret_1",
	"ret_5",
	"volume_ratio",
}

const volumeWindow = 20

// Features computes the feature vector of the most recent bar. Bars must be
// in ascending time order and long enough for every indicator to warm up.
func Features(bars []domain.Bar) (map[string]float64, error) {
	closes := indicators.Closes(bars)
	n := len(closes)
	if n < volumeWindow+1 {
		return nil, fmt.Errorf("need at least %d bars, got %d", volumeWindow+1, n)
	}
	last := closes[n-1]
	if last == 0 {
		return nil, fmt.Errorf("last close is zero")
	}

	out := make(map[string]float64, len(FeatureNames))
	put := func(name string, series []float64) error {
		if len(series) == 0 {
			return fmt.Errorf("not enough bars for %s", name)
		}
		out[name] = series[len(series)-1]
		return nil
	}

	emaFast := indicators.EMA(closes, 9)
	emaSlow := indicators.EMA(closes, 21)
	if len(emaFast) == 0 || len(emaSlow) == 0 || emaSlow[len(emaSlow)-1] == 0 {
		return nil, fmt.Errorf("not enough bars for ema_ratio")
	}
	out["ema_ratio"] = emaFast[len(emaFast)-1]/emaSlow[len(emaSlow)-1] - 1

	k, d := indicators.StochRSI(closes, 14, 3, 3)
	atr := indicators.ATR(bars, 14)
	for _, step := range []struct {
		name   string
		series []float64
	}{
		{"rsi", indicators.RSI(closes, 14)},
		{"macd_hist", indicators.MACDHist(closes, 12, 26, 9)},
		{"stoch_k", k},
		{"stoch_d", d},
		{"atr_pct", atr},
		{"bb_pct_b", indicators.BBandsPercentB(closes, 20, 2)},
	} {
		if err := put(step.name, step.series); err != nil {
			return nil, err
		}
	}
	out["macd_hist"] /= last
	out["atr_pct"] /= last

	out["ret_1"] = last/closes[n-2] - 1
	out["ret_5"] = last/closes[n-6] - 1

	var sum float64
	for _, b := range bars[n-1-volumeWindow : n-1] {
		sum += float64(b.Volume)
	}
	if sum == 0 {
		out["volume_ratio"] = 1
	} else {
		out["volume_ratio"] = float64(bars[n-1].Volume) / (sum / volumeWindow)
	}
	return out, nil
}
