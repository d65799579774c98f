package workers

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finiex/internal/core"
)

// historyFromCloses builds a completed-bar history over M5 from close
// prices, oldest first.
func historyFromCloses(closes []float64) core.BarHistorySet {
	base := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	bars := make([]core.Bar, len(closes))
	for i, c := range closes {
		p := decimal.NewFromFloat(c)
		bars[i] = core.Bar{
			Symbol:     "EURUSD",
			Timeframe:  core.M5,
			Timestamp:  base.Add(time.Duration(i) * 5 * time.Minute),
			Open:       p,
			High:       p,
			Low:        p,
			Close:      p,
			IsComplete: true,
			BarType:    core.BarTypeReal,
		}
	}
	return core.BarHistorySet{core.M5: bars}
}

func priceTick(price float64) core.Tick {
	p := decimal.NewFromFloat(price)
	return core.Tick{
		Timestamp: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		Symbol:    "EURUSD",
		Bid:       p,
		Ask:       p,
	}
}

func TestNewRSIWorkerDefaults(t *testing.T) {
	w, err := NewRSIWorker(nil)
	require.NoError(t, err)
	assert.Equal(t, "rsi", w.Name())
	assert.Equal(t, []core.Timeframe{core.M5}, w.RequiredTimeframes())
	assert.Equal(t, 42, w.WarmupBars(core.M5))
	assert.Equal(t, 0, w.WarmupBars(core.H1))
}

func TestNewRSIWorkerRejectsBadParams(t *testing.T) {
	_, err := NewRSIWorker(map[string]any{"timeframe": "M7"})
	assert.Error(t, err)

	_, err = NewRSIWorker(map[string]any{"period": 1})
	assert.Error(t, err)
}

func TestRSIExtremes(t *testing.T) {
	w, err := NewRSIWorker(map[string]any{"period": 14})
	require.NoError(t, err)

	rising := make([]float64, 40)
	for i := range rising {
		rising[i] = 1.1000 + float64(i)*0.0010
	}
	res, err := w.Compute(priceTick(rising[len(rising)-1]), nil, historyFromCloses(rising))
	require.NoError(t, err)
	assert.False(t, res.IsStale)
	assert.Equal(t, 100.0, res.Value.(float64))

	falling := make([]float64, 40)
	for i := range falling {
		falling[i] = 1.1400 - float64(i)*0.0010
	}
	res, err = w.Compute(priceTick(falling[len(falling)-1]), nil, historyFromCloses(falling))
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Value.(float64))
}

func TestRSIFlatIsNeutral(t *testing.T) {
	w, err := NewRSIWorker(map[string]any{"period": 14})
	require.NoError(t, err)

	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 1.1000
	}
	res, err := w.Compute(priceTick(1.1000), nil, historyFromCloses(flat))
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.Value.(float64))
}

func TestRSIStaleOnShortHistory(t *testing.T) {
	w, err := NewRSIWorker(map[string]any{"period": 14})
	require.NoError(t, err)

	res, err := w.Compute(priceTick(1.1), nil, historyFromCloses([]float64{1.1, 1.2, 1.3}))
	require.NoError(t, err)
	assert.True(t, res.IsStale)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, 50.0, res.Value.(float64))
}

func TestRSIUsesFormingBarClose(t *testing.T) {
	w, err := NewRSIWorker(map[string]any{"period": 5})
	require.NoError(t, err)

	closes := []float64{1.10, 1.11, 1.10, 1.12, 1.11, 1.13}
	history := historyFromCloses(closes)
	current := core.BarSet{core.M5: core.Bar{
		Timeframe: core.M5,
		Close:     decimal.NewFromFloat(1.14),
	}}

	withForming, err := w.Compute(priceTick(1.14), current, history)
	require.NoError(t, err)
	withoutForming, err := w.Compute(priceTick(1.13), nil, history)
	require.NoError(t, err)
	assert.NotEqual(t, withoutForming.Value, withForming.Value)
}

func TestRSIOnWarmupRequiresEnoughBars(t *testing.T) {
	w, err := NewRSIWorker(map[string]any{"period": 14})
	require.NoError(t, err)

	assert.Error(t, w.OnWarmup(historyFromCloses([]float64{1.1, 1.2})))
	long := make([]float64, 20)
	for i := range long {
		long[i] = 1.1
	}
	assert.NoError(t, w.OnWarmup(historyFromCloses(long)))
}
