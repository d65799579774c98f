package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finiex/internal/config"
	"finiex/internal/core"
)

func TestCollectRequirements(t *testing.T) {
	start := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	set := &config.ScenarioSet{Scenarios: []config.Scenario{
		{
			Name: "a", Symbol: "EURUSD", StartTime: start, MaxTicks: 1000,
			Merged: config.StrategyConfig{Workers: map[string]map[string]any{
				"CORE/rsi":      {"period": 14.0},
				"CORE/envelope": {"period": 20.0},
			}},
		},
		{
			Name: "b", Symbol: "GBPUSD", StartTime: start, EndTime: start.AddDate(0, 0, 7),
			Merged: config.StrategyConfig{Workers: map[string]map[string]any{
				"CORE/rsi": {"period": 14.0, "timeframe": "H1"},
			}},
		},
	}}

	reqs, err := CollectRequirements(set)
	require.NoError(t, err)

	tr, ok := reqs.TicksFor(0)
	require.True(t, ok)
	assert.Equal(t, "EURUSD", tr.Symbol)
	assert.Equal(t, 1000, tr.MaxTicks)
	assert.True(t, tr.EndTime.IsZero())

	tr, ok = reqs.TicksFor(1)
	require.True(t, ok)
	assert.Equal(t, "GBPUSD", tr.Symbol)
	assert.False(t, tr.EndTime.IsZero())

	// Both workers of scenario a run on M5; the requirement carries the
	// larger of the two warmups.
	bars := reqs.BarsFor(0)
	require.Len(t, bars, 1)
	assert.Equal(t, core.M5, bars[0].Timeframe)
	assert.Equal(t, 42, bars[0].WarmupBars)
	assert.True(t, bars[0].Before.Equal(start))

	bars = reqs.BarsFor(1)
	require.Len(t, bars, 1)
	assert.Equal(t, core.H1, bars[0].Timeframe)
}

func TestCollectRequirementsUnknownWorker(t *testing.T) {
	set := &config.ScenarioSet{Scenarios: []config.Scenario{{
		Name: "bad", Symbol: "EURUSD",
		Merged: config.StrategyConfig{Workers: map[string]map[string]any{
			"CORE/nope": {},
		}},
	}}}
	_, err := CollectRequirements(set)
	assert.Error(t, err)
}
