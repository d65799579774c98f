package apperrors

import "errors"

// Validation and data-preparation errors. These fail a scenario before its
// tick loop starts; sibling scenarios are unaffected.
var (
	ErrUnknownSymbol        = errors.New("unknown symbol")
	ErrUnknownTimeframe     = errors.New("unknown timeframe")
	ErrUnknownWorkerType    = errors.New("unknown worker type")
	ErrUnknownDecisionLogic = errors.New("unknown decision logic type")
	ErrDataCoverage         = errors.New("insufficient data coverage")
	ErrInsufficientWarmup   = errors.New("insufficient warmup bars")
	ErrNonMonotonicTicks    = errors.New("non-monotonic tick timestamps")
	ErrCorruptDataFile      = errors.New("corrupt data file")
	ErrIndexStale           = errors.New("index is stale")
)

// Runtime errors. These abort the current scenario's tick loop.
var (
	ErrWorkerFailed          = errors.New("worker computation failed")
	ErrDecisionFailed        = errors.New("decision logic failed")
	ErrBrokerInvariant       = errors.New("broker invariant violation")
	ErrScenarioCancelled     = errors.New("scenario cancelled")
	ErrScenarioTimeout       = errors.New("scenario wall-clock timeout")
	ErrUnsupportedOrderType  = errors.New("order type not supported by broker")
	ErrTradingAPINotAttached = errors.New("trading API not attached")
)

// Order-level rejections. Non-fatal; recorded in execution stats and the
// order history, never propagated out of the broker.
var (
	ErrInvalidLots        = errors.New("invalid lot size")
	ErrInsufficientMargin = errors.New("insufficient free margin")
	ErrInvalidPrice       = errors.New("invalid requested price")
	ErrStressReject       = errors.New("stress test rejection")
)
