// Package livestats implements the non-blocking telemetry path: a bounded
// queue fed by scenario tick loops, a consumer that fans snapshots out to
// a websocket hub, and per-scenario rate limiting.
package livestats

import (
	"time"

	"github.com/shopspring/decimal"
)

// MessageType discriminates queue messages.
type MessageType string

const (
	MessageTypeStatus   MessageType = "status"
	MessageTypeProgress MessageType = "progress"
	MessageTypeBatch    MessageType = "batch"
)

// Scenario status values, in lifecycle order. The WARMUP_* states cover
// data preparation; INIT_PROCESS covers per-scenario process assembly.
const (
	StatusInitialized       = "INITIALIZED"
	StatusWarmupCoverage    = "WARMUP_COVERAGE"
	StatusWarmupDataTicks   = "WARMUP_DATA_TICKS"
	StatusWarmupDataBars    = "WARMUP_DATA_BARS"
	StatusWarmupTrader      = "WARMUP_TRADER"
	StatusInitProcess       = "INIT_PROCESS"
	StatusRunning           = "RUNNING"
	StatusCompleted         = "COMPLETED"
	StatusFinishedWithError = "FINISHED_WITH_ERROR"
)

// Message is one queue entry. Data is one of the payload structs below.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// StatusUpdate announces a scenario lifecycle transition.
type StatusUpdate struct {
	ScenarioIndex int    `json:"scenario_index"`
	ScenarioName  string `json:"scenario_name"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
}

// Progress is a periodic tick-loop snapshot.
type Progress struct {
	ScenarioIndex   int             `json:"scenario_index"`
	ScenarioName    string          `json:"scenario_name"`
	TicksProcessed  int64           `json:"ticks_processed"`
	TicksTotal      int64           `json:"ticks_total"`
	ProgressPercent float64         `json:"progress_percent"`
	CurrentTickTime time.Time       `json:"current_tick_time"`
	Equity          decimal.Decimal `json:"equity"`
	Balance         decimal.Decimal `json:"balance"`
	OpenPositions   int             `json:"open_positions"`
	TotalTrades     int             `json:"total_trades"`
}

// BatchUpdate summarizes batch-level progress.
type BatchUpdate struct {
	ScenarioSetName string `json:"scenario_set_name"`
	Total           int    `json:"total"`
	Completed       int    `json:"completed"`
	Failed          int    `json:"failed"`
}
