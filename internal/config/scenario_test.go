package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validScenario() Scenario {
	return Scenario{
		Name:       "baseline",
		Symbol:     "EURUSD",
		StartDate:  "2024-03-01",
		EndDate:    "2024-03-08",
		BrokerType: "ic_markets",
	}
}

func TestResolveDefaults(t *testing.T) {
	set := &ScenarioSet{Scenarios: []Scenario{validScenario()}}
	require.NoError(t, set.Resolve())

	sc := set.Scenarios[0]
	assert.True(t, sc.InitialBalance.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, "auto", sc.AccountCurrency)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), sc.StartTime)
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), sc.EndTime)

	exec := set.Global.ExecutionConfig
	assert.Equal(t, 4, exec.MaxParallelScenarios)
	assert.Equal(t, 500, exec.AdaptiveCheckTicks)
	assert.Equal(t, 0.8, exec.WarmupStrictness)
	assert.Equal(t, 256, exec.SnapshotEveryTicks)
}

func TestResolveValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Scenario)
	}{
		{"missing name", func(sc *Scenario) { sc.Name = "" }},
		{"missing symbol", func(sc *Scenario) { sc.Symbol = "" }},
		{"bad start date", func(sc *Scenario) { sc.StartDate = "03/01/2024" }},
		{"end before start", func(sc *Scenario) { sc.EndDate = "2024-02-01" }},
		{"neither end nor max ticks", func(sc *Scenario) { sc.EndDate = "" }},
		{"both end and max ticks", func(sc *Scenario) { sc.MaxTicks = 1000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := validScenario()
			tt.mutate(&sc)
			set := &ScenarioSet{Scenarios: []Scenario{sc}}
			assert.Error(t, set.Resolve())
		})
	}

	assert.Error(t, (&ScenarioSet{}).Resolve())
}

func TestResolveMaxTicksMode(t *testing.T) {
	sc := validScenario()
	sc.EndDate = ""
	sc.MaxTicks = 5000
	set := &ScenarioSet{Scenarios: []Scenario{sc}}
	require.NoError(t, set.Resolve())
	assert.True(t, set.Scenarios[0].EndTime.IsZero())
}

func TestParseDateFormats(t *testing.T) {
	for _, input := range []string{
		"2024-03-01",
		"2024-03-01 14:30:00",
		"2024-03-01T14:30:00Z",
	} {
		got, err := parseDate(input)
		require.NoError(t, err, input)
		assert.Equal(t, time.UTC, got.Location())
	}
	_, err := parseDate("yesterday")
	assert.Error(t, err)
}

func TestMergeStrategyConfigWorkerParams(t *testing.T) {
	global := StrategyConfig{
		Workers: map[string]map[string]any{
			"CORE/rsi":      {"period": 14, "timeframe": "M5"},
			"CORE/envelope": {"period": 20},
		},
		DecisionLogic: DecisionLogicConfig{
			Type:   "CORE/simple_consensus",
			Params: map[string]any{"min_confidence": 0.5},
		},
	}
	override := &StrategyConfig{
		Workers: map[string]map[string]any{
			"CORE/rsi": {"period": 7},
		},
	}

	merged := MergeStrategyConfig(global, override)
	assert.Equal(t, 7, merged.Workers["CORE/rsi"]["period"])
	assert.Equal(t, "M5", merged.Workers["CORE/rsi"]["timeframe"])
	assert.Equal(t, 20, merged.Workers["CORE/envelope"]["period"])
	assert.Equal(t, "CORE/simple_consensus", merged.DecisionLogic.Type)

	// The global config is cloned, never mutated.
	assert.Equal(t, 14, global.Workers["CORE/rsi"]["period"])
}

func TestMergeStrategyConfigNewWorker(t *testing.T) {
	global := StrategyConfig{Workers: map[string]map[string]any{"CORE/rsi": {"period": 14}}}
	override := &StrategyConfig{Workers: map[string]map[string]any{"CORE/envelope": {"deviation": 0.002}}}

	merged := MergeStrategyConfig(global, override)
	assert.Len(t, merged.Workers, 2)
	assert.Equal(t, 0.002, merged.Workers["CORE/envelope"]["deviation"])
}

func TestMergeStrategyConfigDecisionLogic(t *testing.T) {
	global := StrategyConfig{DecisionLogic: DecisionLogicConfig{
		Type:   "CORE/simple_consensus",
		Params: map[string]any{"min_confidence": 0.5, "lot_size": 0.1},
	}}

	// Same type merges params key-wise.
	merged := MergeStrategyConfig(global, &StrategyConfig{DecisionLogic: DecisionLogicConfig{
		Params: map[string]any{"min_confidence": 0.7},
	}})
	assert.Equal(t, 0.7, merged.DecisionLogic.Params["min_confidence"])
	assert.Equal(t, 0.1, merged.DecisionLogic.Params["lot_size"])

	// A different type replaces the params wholesale.
	merged = MergeStrategyConfig(global, &StrategyConfig{DecisionLogic: DecisionLogicConfig{
		Type:   "CORE/other",
		Params: map[string]any{"x": 1},
	}})
	assert.Equal(t, "CORE/other", merged.DecisionLogic.Type)
	assert.Equal(t, map[string]any{"x": 1}, merged.DecisionLogic.Params)
}

func TestMergeStrategyConfigNilOverride(t *testing.T) {
	global := StrategyConfig{Workers: map[string]map[string]any{"CORE/rsi": {"period": 14}}}
	merged := MergeStrategyConfig(global, nil)
	assert.Equal(t, global.Workers, merged.Workers)
}

func TestDecodeParams(t *testing.T) {
	type params struct {
		Period    int    `json:"period"`
		Timeframe string `json:"timeframe"`
	}
	var p params
	require.NoError(t, DecodeParams(map[string]any{"period": 7, "timeframe": "H1"}, &p))
	assert.Equal(t, params{Period: 7, Timeframe: "H1"}, p)

	require.NoError(t, DecodeParams(nil, &p))

	var typed struct {
		Period int `json:"period"`
	}
	assert.Error(t, DecodeParams(map[string]any{"period": "fourteen"}, &typed))
}
