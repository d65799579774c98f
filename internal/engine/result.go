// Package engine runs scenarios: the per-scenario tick loop, the batch
// coordinator that dispatches a scenario set sequentially or in parallel,
// and the sqlite run archive.
package engine

import (
	"time"

	"finiex/internal/broker"
	"finiex/internal/workers"
)

// DecisionStats counts decision outcomes over a tick loop.
type DecisionStats struct {
	TotalDecisions  int64 `json:"total_decisions"`
	BuySignals      int64 `json:"buy_signals"`
	SellSignals     int64 `json:"sell_signals"`
	FlatDecisions   int64 `json:"flat_decisions"`
	OrdersAttempted int64 `json:"orders_attempted"`
}

// TickRangeStats describes the tick slice a scenario actually processed.
type TickRangeStats struct {
	TicksProcessed int64     `json:"ticks_processed"`
	FirstTick      time.Time `json:"first_tick,omitempty"`
	LastTick       time.Time `json:"last_tick,omitempty"`
	SyntheticBars  int64     `json:"synthetic_bars"`
}

// ProfilingData carries coarse wall-time segments of a scenario run.
type ProfilingData struct {
	PrepareMs  float64 `json:"prepare_ms"`
	WarmupMs   float64 `json:"warmup_ms"`
	TickLoopMs float64 `json:"tick_loop_ms"`
	FlushMs    float64 `json:"flush_ms"`
}

// TickLoopResults bundles every statistic the tick loop emits.
type TickLoopResults struct {
	DecisionStatistics     DecisionStats                   `json:"decision_statistics"`
	WorkerStatistics       map[string]workers.WorkerTiming `json:"worker_statistics"`
	CoordinationStatistics workers.CoordinationStats       `json:"coordination_statistics"`
	PortfolioStats         broker.PortfolioStats           `json:"portfolio_stats"`
	ExecutionStats         broker.ExecutionStats           `json:"execution_stats"`
	CostBreakdown          broker.CostBreakdown            `json:"cost_breakdown"`
	ProfilingData          ProfilingData                   `json:"profiling_data"`
	TickRangeStats         TickRangeStats                  `json:"tick_range_stats"`
	TickLoopError          string                          `json:"tick_loop_error,omitempty"`
}

// ProcessResult is the typed outcome of one scenario. A result with
// Success=false but non-zero tick statistics is a hybrid result: the loop
// started, processed ticks and then failed.
type ProcessResult struct {
	Success         bool            `json:"success"`
	ScenarioName    string          `json:"scenario_name"`
	Symbol          string          `json:"symbol"`
	ScenarioIndex   int             `json:"scenario_index"`
	ExecutionTimeMs float64         `json:"execution_time_ms"`
	TickLoopResults TickLoopResults `json:"tick_loop_results"`
	LoggerBuffer    string          `json:"scenario_logger_buffer,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
	ErrorType       string          `json:"error_type,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	Traceback       string          `json:"traceback,omitempty"`
}

// Hybrid reports whether the scenario started processing ticks before it
// failed. Hybrid results carry partial statistics alongside the error and
// render with a CRITICAL marker downstream.
func (r ProcessResult) Hybrid() bool {
	return !r.Success && r.TickLoopResults.TickRangeStats.TicksProcessed > 0
}
