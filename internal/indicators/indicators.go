// Package indicators wraps go-talib with lookback trimming so every returned
// series holds only valid values, oldest first.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"

	"tradebot/internal/domain"
)

// Closes extracts close prices from bars.
func Closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// RSI returns the relative strength index series.
func RSI(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) <= period {
		return nil
	}
	return sanitize(talib.Rsi(closes, period)[period:])
}

// EMA returns the exponential moving average series.
func EMA(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period {
		return nil
	}
	return sanitize(talib.Ema(closes, period)[period-1:])
}

// StochRSI returns the stochastic RSI %K and %D series scaled to 0..1.
func StochRSI(closes []float64, period, fastK, fastD int) (k, d []float64) {
	lookback := period + (fastK - 1) + (fastD - 1)
	if period <= 0 || fastK <= 0 || fastD <= 0 || len(closes) <= lookback {
		return nil, nil
	}
	rk, rd := talib.StochRsi(closes, period, fastK, fastD, talib.SMA)
	k = sanitize(scale(rk[lookback:], 0.01))
	d = sanitize(scale(rd[lookback:], 0.01))
	n := min(len(k), len(d))
	return k[len(k)-n:], d[len(d)-n:]
}

// MACDHist returns the MACD histogram series.
func MACDHist(closes []float64, fast, slow, signal int) []float64 {
	lookback := (slow - 1) + (signal - 1)
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) <= lookback {
		return nil
	}
	_, _, hist := talib.Macd(closes, fast, slow, signal)
	return sanitize(hist[lookback:])
}

// ATR returns the average true range series.
func ATR(bars []domain.Bar, period int) []float64 {
	if period <= 0 || len(bars) <= period {
		return nil
	}
	high := make([]float64, len(bars))
	low := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		high[i], low[i], closes[i] = b.High, b.Low, b.Close
	}
	return sanitize(talib.Atr(high, low, closes, period)[period:])
}

// BBandsPercentB returns where each close sits inside its Bollinger band,
// 0 at the lower band and 1 at the upper.
func BBandsPercentB(closes []float64, period int, dev float64) []float64 {
	if period <= 1 || len(closes) < period {
		return nil
	}
	upper, _, lower := talib.BBands(closes, period, dev, dev, talib.SMA)
	out := make([]float64, 0, len(closes)-period+1)
	for i := period - 1; i < len(closes); i++ {
		width := upper[i] - lower[i]
		if width == 0 {
			out = append(out, 0.5)
			continue
		}
		out = append(out, (closes[i]-lower[i])/width)
	}
	return sanitize(out)
}

// Cross reports how series a crossed series b between the previous and the
// latest sample: +1 upward, -1 downward, 0 no cross.
func Cross(aPrev, bPrev, a, b float64) int {
	switch {
	case aPrev < bPrev && a > b:
		return 1
	case aPrev > bPrev && a < b:
		return -1
	}
	return 0
}

// CrossFrom is Cross counting a start from equality: a moved from at or
// below b to above it (+1), or from at or above b to below it (-1).
func CrossFrom(aPrev, bPrev, a, b float64) int {
	switch {
	case aPrev <= bPrev && a > b:
		return 1
	case aPrev >= bPrev && a < b:
		return -1
	}
	return 0
}

// LastTwo returns the previous and latest values of s.
func LastTwo(s []float64) (prev, last float64, ok bool) {
	if len(s) < 2 {
		return 0, 0, false
	}
	return s[len(s)-2], s[len(s)-1], true
}

// ClassifyTrend labels closes UPTREND when the last close is above the fast
// EMA and the fast EMA is above the slow one, DOWNTREND for the mirror
// image, and SIDEWAYS otherwise or when history is too short.
func ClassifyTrend(closes []float64, fast, slow int) domain.Trend {
	f := EMA(closes, fast)
	s := EMA(closes, slow)
	if len(f) == 0 || len(s) == 0 {
		return domain.TrendSideways
	}
	last := closes[len(closes)-1]
	ef, es := f[len(f)-1], s[len(s)-1]
	switch {
	case last > ef && ef > es:
		return domain.TrendUp
	case last < ef && ef < es:
		return domain.TrendDown
	}
	return domain.TrendSideways
}

func scale(s []float64, f float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = v * f
	}
	return out
}

// sanitize drops leading NaN/Inf values and carries the previous value over
// any later ones.
func sanitize(s []float64) []float64 {
	start := 0
	for start < len(s) && !valid(s[start]) {
		start++
	}
	out := make([]float64, 0, len(s)-start)
	for _, v := range s[start:] {
		if !valid(v) {
			v = out[len(out)-1]
		}
		out = append(out, v)
	}
	return out
}

func valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
