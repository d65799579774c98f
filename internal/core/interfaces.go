package core

import "github.com/shopspring/decimal"

// Logger is the logging contract used throughout the engine. pkg/logging
// provides the zap-backed implementation and the per-scenario buffered
// variant.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// Worker is an indicator computation invoked once per tick by the
// coordinator. Workers are pure over their inputs: the same tick, current
// bars and history must produce the same result.
type Worker interface {
	Name() string
	RequiredTimeframes() []Timeframe
	WarmupBars(tf Timeframe) int
	OnWarmup(history BarHistorySet) error
	Compute(tick Tick, current BarSet, history BarHistorySet) (WorkerResult, error)
}

// DecisionLogic maps worker results to a trading intent and submits orders
// through the attached TradingAPI.
type DecisionLogic interface {
	Name() string
	RequiredOrderTypes() []OrderType
	SetTradingAPI(api TradingAPI)
	Compute(tick Tick, results map[string]WorkerResult, current BarSet, history BarHistorySet) Decision
	Execute(decision Decision, tick Tick) (*OrderResult, error)
}

// TradingAPI is the narrow order-submission surface handed to decision
// logics. It hides everything of the broker except what a strategy may
// legitimately consult.
type TradingAPI interface {
	OpenOrder(req OrderRequest) OrderResult
	ClosePosition(positionID int64, comment string) OrderResult
	OpenPositions() []Position
	PendingOrders() []Order
	Balance() decimal.Decimal
	Equity() decimal.Decimal
	FreeMargin() decimal.Decimal
}
