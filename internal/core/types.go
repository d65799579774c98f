// Package core defines the shared data model and interfaces of the
// backtesting engine: ticks, bars, timeframes, decisions, orders and the
// contracts between workers, decision logics and the broker simulator.
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick is a single bid/ask quote from the columnar tick store. Timestamps
// are UTC and strictly non-decreasing within a scenario's stream.
type Tick struct {
	Timestamp    time.Time       `json:"timestamp"`
	Symbol       string          `json:"symbol"`
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	Volume       float64         `json:"volume"`
	TimeMsc      int64           `json:"time_msc"`
	SpreadPoints float64         `json:"spread_points"`
	SpreadPct    float64         `json:"spread_pct"`
}

var two = decimal.NewFromInt(2)

// Mid returns the bid/ask midpoint.
func (t Tick) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(two)
}

// BarType distinguishes bars aggregated from real ticks, gap-filling
// synthetic bars, and bars mixing both.
type BarType string

const (
	BarTypeReal      BarType = "real"
	BarTypeSynthetic BarType = "synthetic"
	BarTypeHybrid    BarType = "hybrid"
)

// Bar is an OHLC aggregate of ticks over one timeframe interval. The
// timestamp is the UTC-aligned bar open.
type Bar struct {
	Symbol     string          `json:"symbol"`
	Timeframe  Timeframe       `json:"timeframe"`
	Timestamp  time.Time       `json:"timestamp"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     float64         `json:"volume"`
	TickCount  int             `json:"tick_count"`
	IsComplete bool            `json:"is_complete"`
	BarType    BarType         `json:"bar_type"`
}

// BarSet holds the current (possibly incomplete) bar per timeframe.
type BarSet map[Timeframe]Bar

// BarHistorySet holds the completed-bar history per timeframe, oldest
// first. Slices are read-only views into the bar controller's storage.
type BarHistorySet map[Timeframe][]Bar

// WorkerResult is the typed output of one indicator worker for one tick.
// Value is opaque to the coordinator; only the decision logic interprets it.
type WorkerResult struct {
	WorkerName        string  `json:"worker_name"`
	Value             any     `json:"value"`
	Confidence        float64 `json:"confidence"`
	ComputationTimeMs float64 `json:"computation_time_ms"`
	IsStale           bool    `json:"is_stale"`
}

// Action is the intent produced by a decision logic.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionFlat Action = "FLAT"
)

// Decision is a pure function result of worker outputs for one tick.
type Decision struct {
	Action     Action          `json:"action"`
	Confidence float64         `json:"confidence"`
	Reason     string          `json:"reason"`
	Price      decimal.Decimal `json:"price"`
	Timestamp  time.Time       `json:"timestamp"`
}

// OrderType enumerates the order kinds the broker simulator models.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// Direction is the side of an order or position.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusExecuted  OrderStatus = "EXECUTED"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Rejection and cancellation reasons recorded on order history entries.
const (
	RejectInvalidLots        = "INVALID_LOTS"
	RejectInsufficientMargin = "INSUFFICIENT_MARGIN"
	RejectInvalidPrice       = "INVALID_PRICE"
	RejectStressTest         = "STRESS_TEST_REJECT"
	RejectUnsupportedType    = "UNSUPPORTED_ORDER_TYPE"
	CancelTimedOut           = "TIMED_OUT"
	CancelUnfilledAtEnd      = "UNFILLED_AT_END"
	CloseForced              = "FORCE_CLOSED"
)

// Order is one entry in the broker's order book / history. OrderID is
// unique within a scenario.
type Order struct {
	OrderID         int64           `json:"order_id"`
	Symbol          string          `json:"symbol"`
	Type            OrderType       `json:"type"`
	Direction       Direction       `json:"direction"`
	Lots            decimal.Decimal `json:"lots"`
	RequestedPrice  decimal.Decimal `json:"requested_price,omitempty"`
	LimitPrice      decimal.Decimal `json:"limit_price,omitempty"`
	Status          OrderStatus     `json:"status"`
	ExecutedPrice   decimal.Decimal `json:"executed_price,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	Comment         string          `json:"comment,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	FilledAt        time.Time       `json:"filled_at,omitempty"`

	// Latency model bookkeeping, not part of the wire contract.
	SubmittedAtTick int64 `json:"-"`
	LatencyTicks    int   `json:"-"`
	StopTriggered   bool  `json:"-"`
	ClosePositionID int64 `json:"-"`
}

// Position is an open trade. All monetary figures are in the portfolio's
// account currency.
type Position struct {
	PositionID    int64           `json:"position_id"`
	Symbol        string          `json:"symbol"`
	Direction     Direction       `json:"direction"`
	Lots          decimal.Decimal `json:"lots"`
	OpenPrice     decimal.Decimal `json:"open_price"`
	OpenTime      time.Time       `json:"open_time"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Swap          decimal.Decimal `json:"swap"`
	Commission    decimal.Decimal `json:"commission"`
	SpreadCost    decimal.Decimal `json:"spread_cost"`
	UsedMargin    decimal.Decimal `json:"used_margin"`
}

// ClosedPosition is a position after it has been closed, with realized P&L.
type ClosedPosition struct {
	Position
	ClosePrice  decimal.Decimal `json:"close_price"`
	CloseTime   time.Time       `json:"close_time"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	CloseReason string          `json:"close_reason,omitempty"`
}

// OrderRequest is the input to TradingAPI.OpenOrder.
type OrderRequest struct {
	Symbol         string          `json:"symbol"`
	Type           OrderType       `json:"type"`
	Direction      Direction       `json:"direction"`
	Lots           decimal.Decimal `json:"lots"`
	RequestedPrice decimal.Decimal `json:"requested_price,omitempty"`
	LimitPrice     decimal.Decimal `json:"limit_price,omitempty"`
	Comment        string          `json:"comment,omitempty"`
}

// OrderResult is the immediate outcome of an order submission or close.
type OrderResult struct {
	OrderID         int64           `json:"order_id"`
	Status          OrderStatus     `json:"status"`
	ExecutedPrice   decimal.Decimal `json:"executed_price,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
}
