package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// ScenarioSet is the consumed scenario-set JSON contract.
type ScenarioSet struct {
	Version         string       `json:"version"`
	ScenarioSetName string       `json:"scenario_set_name"`
	Created         string       `json:"created"`
	Global          GlobalConfig `json:"global"`
	Scenarios       []Scenario   `json:"scenarios"`
}

// GlobalConfig holds the defaults deep-merged into each scenario.
type GlobalConfig struct {
	StrategyConfig  StrategyConfig  `json:"strategy_config"`
	ExecutionConfig ExecutionConfig `json:"execution_config"`
}

// StrategyConfig names the workers and the decision logic of a scenario.
type StrategyConfig struct {
	Workers       map[string]map[string]any `json:"workers"`
	DecisionLogic DecisionLogicConfig       `json:"decision_logic"`
}

// DecisionLogicConfig selects a decision logic type and its parameters.
type DecisionLogicConfig struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

// ExecutionConfig controls batch and worker scheduling.
type ExecutionConfig struct {
	ParallelScenarios    bool    `json:"parallel_scenarios"`
	MaxParallelScenarios int     `json:"max_parallel_scenarios"`
	ParallelWorkers      bool    `json:"parallel_workers"`
	ParallelThresholdMs  float64 `json:"parallel_threshold_ms"`
	AdaptiveCheckTicks   int     `json:"adaptive_check_ticks"`
	ScenarioTimeoutSec   int     `json:"scenario_timeout_sec"`
	WarmupStrictness     float64 `json:"warmup_strictness"`  // fraction of requested warmup below which preparation fails
	BarHistoryExtra      int     `json:"bar_history_extra"`  // ring-buffer slack beyond warmup; 0 keeps history unbounded
	SnapshotEveryTicks   int     `json:"snapshot_every_ticks"`
}

// TradeSimulatorConfig tunes broker simulation per scenario.
type TradeSimulatorConfig struct {
	MaxPendingAgeTicks int             `json:"max_pending_age_ticks"`
	ConversionRate     decimal.Decimal `json:"conversion_rate"`
}

// StressRejectConfig injects deterministic open-order rejections.
type StressRejectConfig struct {
	Enabled     bool    `json:"enabled"`
	Probability float64 `json:"probability"`
	Seed        int64   `json:"seed"`
}

// StressTestConfig groups all stress injections.
type StressTestConfig struct {
	RejectOpenOrder StressRejectConfig `json:"reject_open_order"`
}

// Scenario is a single fully specified backtest run.
type Scenario struct {
	Name                 string               `json:"name"`
	Symbol               string               `json:"symbol"`
	StartDate            string               `json:"start_date"`
	EndDate              string               `json:"end_date,omitempty"`
	MaxTicks             int                  `json:"max_ticks,omitempty"`
	DataMode             string               `json:"data_mode,omitempty"`
	BrokerType           string               `json:"broker_type"`
	InitialBalance       decimal.Decimal      `json:"initial_balance"`
	AccountCurrency      string               `json:"account_currency,omitempty"`
	StrategyConfig       *StrategyConfig      `json:"strategy_config,omitempty"`
	TradeSimulatorConfig TradeSimulatorConfig `json:"trade_simulator_config"`
	StressTestConfig     StressTestConfig     `json:"stress_test_config"`
	Seeds                map[string]int64     `json:"seeds,omitempty"`

	// Parsed and merged at load time.
	StartTime time.Time      `json:"-"`
	EndTime   time.Time      `json:"-"`
	Merged    StrategyConfig `json:"-"`
}

// LoadScenarioSet reads and resolves a scenario-set JSON file: dates are
// parsed, and each scenario's strategy overrides are deep-merged into a
// clone of the global config.
func LoadScenarioSet(path string) (*ScenarioSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario set: %w", err)
	}
	var set ScenarioSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse scenario set: %w", err)
	}
	if err := set.Resolve(); err != nil {
		return nil, err
	}
	return &set, nil
}

// Resolve validates the set and computes per-scenario merged configs.
func (s *ScenarioSet) Resolve() error {
	if len(s.Scenarios) == 0 {
		return ValidationError{Field: "scenarios", Message: "at least one scenario is required"}
	}
	s.Global.ExecutionConfig.applyDefaults()

	for i := range s.Scenarios {
		sc := &s.Scenarios[i]
		if sc.Name == "" {
			return ValidationError{Field: fmt.Sprintf("scenarios[%d].name", i), Message: "scenario name is required"}
		}
		if sc.Symbol == "" {
			return ValidationError{Field: fmt.Sprintf("scenarios[%d].symbol", i), Message: "symbol is required"}
		}
		start, err := parseDate(sc.StartDate)
		if err != nil {
			return ValidationError{Field: fmt.Sprintf("scenarios[%d].start_date", i), Value: sc.StartDate, Message: err.Error()}
		}
		sc.StartTime = start

		hasEnd := sc.EndDate != ""
		hasMax := sc.MaxTicks > 0
		if hasEnd == hasMax {
			return ValidationError{
				Field:   fmt.Sprintf("scenarios[%d]", i),
				Message: "exactly one of end_date or max_ticks must be set",
			}
		}
		if hasEnd {
			end, err := parseDate(sc.EndDate)
			if err != nil {
				return ValidationError{Field: fmt.Sprintf("scenarios[%d].end_date", i), Value: sc.EndDate, Message: err.Error()}
			}
			if !end.After(start) {
				return ValidationError{Field: fmt.Sprintf("scenarios[%d].end_date", i), Value: sc.EndDate, Message: "end_date must be after start_date"}
			}
			sc.EndTime = end
		}
		if sc.AccountCurrency == "" {
			sc.AccountCurrency = "auto"
		}
		if sc.InitialBalance.IsZero() {
			sc.InitialBalance = decimal.NewFromInt(10000)
		}
		sc.Merged = MergeStrategyConfig(s.Global.StrategyConfig, sc.StrategyConfig)
	}
	return nil
}

func (e *ExecutionConfig) applyDefaults() {
	if e.MaxParallelScenarios == 0 {
		e.MaxParallelScenarios = 4
	}
	if e.ParallelThresholdMs == 0 {
		e.ParallelThresholdMs = 2.0
	}
	if e.AdaptiveCheckTicks == 0 {
		e.AdaptiveCheckTicks = 500
	}
	if e.WarmupStrictness == 0 {
		e.WarmupStrictness = 0.8
	}
	if e.SnapshotEveryTicks == 0 {
		e.SnapshotEveryTicks = 256
	}
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// MergeStrategyConfig deep-merges a scenario override into a clone of the
// global strategy config. The workers map merges per worker type, and
// within one worker its parameter map merges key-wise. Override decision
// logic params merge into global params; a new type replaces params
// wholesale.
func MergeStrategyConfig(global StrategyConfig, override *StrategyConfig) StrategyConfig {
	merged := StrategyConfig{
		Workers: make(map[string]map[string]any, len(global.Workers)),
		DecisionLogic: DecisionLogicConfig{
			Type:   global.DecisionLogic.Type,
			Params: cloneParams(global.DecisionLogic.Params),
		},
	}
	for workerType, params := range global.Workers {
		merged.Workers[workerType] = cloneParams(params)
	}
	if override == nil {
		return merged
	}

	for workerType, params := range override.Workers {
		base, ok := merged.Workers[workerType]
		if !ok {
			base = make(map[string]any, len(params))
			merged.Workers[workerType] = base
		}
		for k, v := range params {
			base[k] = v
		}
	}

	if override.DecisionLogic.Type != "" && override.DecisionLogic.Type != merged.DecisionLogic.Type {
		merged.DecisionLogic.Type = override.DecisionLogic.Type
		merged.DecisionLogic.Params = cloneParams(override.DecisionLogic.Params)
	} else {
		for k, v := range override.DecisionLogic.Params {
			if merged.DecisionLogic.Params == nil {
				merged.DecisionLogic.Params = make(map[string]any)
			}
			merged.DecisionLogic.Params[k] = v
		}
	}
	return merged
}

func cloneParams(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// DecodeParams converts a loosely typed parameter map into a typed config
// struct via a JSON round trip. Factories use it to build their typed
// configs from scenario JSON.
func DecodeParams(params map[string]any, target any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode params: %w", err)
	}
	return nil
}
