package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebot/internal/domain"
)

func TestExpandOrder(t *testing.T) {
	b := &Bundle{Degree: 2, IncludeBias: true}
	// 1, a, b, a², ab, b²
	assert.Equal(t, []float64{1, 2, 3, 4, 6, 9}, b.expand([]float64{2, 3}))

	b = &Bundle{Degree: 3}
	assert.Len(t, b.expand([]float64{1, 1, 1}), 3+6+10)
}

func binaryBundle() *Bundle {
	// Degree 1, no bias, identity scaling: the decision is sign(x - y).
	return &Bundle{
		Features:  []string{"x", "y"},
		Degree:    1,
		Mean:      []float64{0, 0},
		Scale:     []float64{1, 1},
		Classes:   []string{"SELL", "BUY"},
		Coef:      [][]float64{{1, -1}},
		Intercept: []float64{0},
	}
}

func TestPredictBinary(t *testing.T) {
	b := binaryBundle()
	require.NoError(t, b.Validate())

	got, err := b.Predict(map[string]float64{"x": 2, "y": 1, "extra": 5})
	require.NoError(t, err)
	assert.Equal(t, "BUY", got)

	got, err = b.Predict(map[string]float64{"x": 1, "y": 2})
	require.NoError(t, err)
	assert.Equal(t, "SELL", got)

	_, err = b.Predict(map[string]float64{"x": 1})
	assert.Error(t, err, "missing feature")

	_, err = b.Predict(map[string]float64{"x": math.NaN(), "y": 1})
	assert.Error(t, err)
}

func TestPredictMulticlass(t *testing.T) {
	b := &Bundle{
		Features:  []string{"x"},
		Degree:    1,
		Mean:      []float64{10},
		Scale:     []float64{2},
		Classes:   []string{"SELL", "HOLD", "BUY"},
		Coef:      [][]float64{{-1}, {0}, {1}},
		Intercept: []float64{0, 0.5, 0},
	}
	require.NoError(t, b.Validate())

	for x, want := range map[float64]string{4: "SELL", 10: "HOLD", 16: "BUY"} {
		got, err := b.Predict(map[string]float64{"x": x})
		require.NoError(t, err)
		assert.Equal(t, want, got, "x=%v", x)
	}
}

func TestValidateRejectsMismatch(t *testing.T) {
	b := binaryBundle()
	b.Mean = []float64{0}
	assert.Error(t, b.Validate())

	b = binaryBundle()
	b.Classes = []string{"BUY"}
	assert.Error(t, b.Validate())
}

func TestFileStoreRoundTrip(t *testing.T) {
	s := NewFileStore(t.TempDir())
	want := binaryBundle()
	require.NoError(t, s.Save("aapl", want))

	got, err := s.Load("AAPL")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = s.Load("MSFT")
	assert.Error(t, err)
}

func TestFeatures(t *testing.T) {
	start := time.Date(2024, 6, 12, 13, 30, 0, 0, time.UTC)
	bars := make([]domain.Bar, 80)
	for i := range bars {
		c := 100 + 3*math.Sin(float64(i)/5) + float64(i)*0.05
		bars[i] = domain.Bar{
			Symbol:    "AAPL",
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      c - 0.1,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    1000,
		}
	}
	bars[len(bars)-1].Volume = 2000

	f, err := Features(bars)
	require.NoError(t, err)
	for _, name := range FeatureNames {
		v, ok := f[name]
		require.True(t, ok, name)
		assert.False(t, math.IsNaN(v), name)
	}
	assert.InDelta(t, 2, f["volume_ratio"], 1e-9)
	assert.InDelta(t, 1.0/100, f["atr_pct"], 0.005)

	_, err = Features(bars[:10])
	assert.Error(t, err)
}
