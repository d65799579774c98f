package bars

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finiex/internal/core"
)

func tick(ts time.Time, price float64) core.Tick {
	p := decimal.NewFromFloat(price)
	return core.Tick{
		Timestamp: ts,
		Symbol:    "EURUSD",
		Bid:       p,
		Ask:       p,
		Volume:    1,
	}
}

func TestOnTickAggregatesWithinBar(t *testing.T) {
	c := NewController("EURUSD", 0)
	c.RegisterTimeframes([]core.Timeframe{core.M5})

	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	c.OnTick(tick(base, 1.1000))
	c.OnTick(tick(base.Add(time.Minute), 1.1010))
	snapshot := c.OnTick(tick(base.Add(2*time.Minute), 1.0990))

	bar := snapshot[core.M5]
	assert.Equal(t, base, bar.Timestamp)
	assert.True(t, bar.Open.Equal(decimal.NewFromFloat(1.1000)))
	assert.True(t, bar.High.Equal(decimal.NewFromFloat(1.1010)))
	assert.True(t, bar.Low.Equal(decimal.NewFromFloat(1.0990)))
	assert.True(t, bar.Close.Equal(decimal.NewFromFloat(1.0990)))
	assert.Equal(t, 3, bar.TickCount)
	assert.Equal(t, float64(3), bar.Volume)
	assert.False(t, bar.IsComplete)
	assert.Equal(t, core.BarTypeReal, bar.BarType)
	assert.Empty(t, c.History()[core.M5])
}

func TestOnTickCompletesBarOnBoundary(t *testing.T) {
	c := NewController("EURUSD", 0)
	c.RegisterTimeframes([]core.Timeframe{core.M1})

	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	c.OnTick(tick(base, 1.1000))
	c.OnTick(tick(base.Add(30*time.Second), 1.1005))
	snapshot := c.OnTick(tick(base.Add(time.Minute), 1.1010))

	history := c.History()[core.M1]
	require.Len(t, history, 1)
	assert.True(t, history[0].IsComplete)
	assert.True(t, history[0].Close.Equal(decimal.NewFromFloat(1.1005)))

	current := snapshot[core.M1]
	assert.Equal(t, base.Add(time.Minute), current.Timestamp)
	assert.Equal(t, 1, current.TickCount)
}

func TestWeekendGapSynthesizesFlatBars(t *testing.T) {
	c := NewController("EURUSD", 0)
	c.RegisterTimeframes([]core.Timeframe{core.M5})

	// Friday 21:57 UTC to Sunday 22:03 UTC. The Friday bar completes and
	// every M5 interval in between becomes one synthetic bar.
	friday := time.Date(2024, 3, 15, 21, 57, 0, 0, time.UTC)
	sunday := time.Date(2024, 3, 17, 22, 3, 0, 0, time.UTC)
	c.OnTick(tick(friday, 1.1000))
	c.OnTick(tick(sunday, 1.1020))

	history := c.History()[core.M5]
	fridayOpen := time.Date(2024, 3, 15, 21, 55, 0, 0, time.UTC)
	sundayOpen := time.Date(2024, 3, 17, 22, 0, 0, 0, time.UTC)
	expectedSynthetic := int(sundayOpen.Sub(fridayOpen)/(5*time.Minute)) - 1

	require.Len(t, history, 1+expectedSynthetic)
	assert.Equal(t, core.BarTypeReal, history[0].BarType)

	lastClose := decimal.NewFromFloat(1.1000)
	for i, bar := range history[1:] {
		assert.Equal(t, core.BarTypeSynthetic, bar.BarType, "bar %d", i+1)
		assert.True(t, bar.IsComplete)
		assert.True(t, bar.Open.Equal(lastClose))
		assert.True(t, bar.High.Equal(lastClose))
		assert.True(t, bar.Low.Equal(lastClose))
		assert.True(t, bar.Close.Equal(lastClose))
		assert.Equal(t, float64(0), bar.Volume)
		assert.Equal(t, 0, bar.TickCount)
		assert.Equal(t, fridayOpen.Add(time.Duration(i+1)*5*time.Minute), bar.Timestamp)
	}
}

func TestInjectWarmup(t *testing.T) {
	c := NewController("EURUSD", 0)
	c.RegisterTimeframes([]core.Timeframe{core.M5})

	base := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	warmup := make([]core.Bar, 10)
	for i := range warmup {
		warmup[i] = core.Bar{
			Symbol:    "EURUSD",
			Timeframe: core.M5,
			Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:      decimal.NewFromFloat(1.1),
			High:      decimal.NewFromFloat(1.1),
			Low:       decimal.NewFromFloat(1.1),
			Close:     decimal.NewFromFloat(1.1),
			BarType:   core.BarTypeReal,
		}
	}
	require.NoError(t, c.InjectWarmup(core.M5, warmup))

	history := c.History()[core.M5]
	require.Len(t, history, 10)
	for _, bar := range history {
		assert.True(t, bar.IsComplete)
	}

	err := c.InjectWarmup(core.H1, warmup)
	assert.Error(t, err)
}

func TestMaxHistoryRingBuffer(t *testing.T) {
	c := NewController("EURUSD", 5)
	c.RegisterTimeframes([]core.Timeframe{core.M1})

	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		c.OnTick(tick(base.Add(time.Duration(i)*time.Minute), 1.1))
	}

	history := c.History()[core.M1]
	require.Len(t, history, 5)
	// Newest completed bar is minute 10; minute 11 is still forming.
	assert.Equal(t, base.Add(10*time.Minute), history[4].Timestamp)
	assert.Equal(t, base.Add(6*time.Minute), history[0].Timestamp)
}

func TestRegisterTimeframesDedupesAndSorts(t *testing.T) {
	c := NewController("EURUSD", 0)
	c.RegisterTimeframes([]core.Timeframe{core.H1, core.M5})
	c.RegisterTimeframes([]core.Timeframe{core.M5, core.M1})
	assert.Equal(t, []core.Timeframe{core.M1, core.M5, core.H1}, c.Timeframes())
}
