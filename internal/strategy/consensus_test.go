package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finiex/internal/core"
	"finiex/internal/workers"
)

// fakeAPI records order traffic and serves canned account state.
type fakeAPI struct {
	positions  []core.Position
	pending    []core.Order
	freeMargin decimal.Decimal

	opened []core.OrderRequest
	closed []int64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{freeMargin: decimal.NewFromInt(10000)}
}

func (f *fakeAPI) OpenOrder(req core.OrderRequest) core.OrderResult {
	f.opened = append(f.opened, req)
	return core.OrderResult{OrderID: int64(len(f.opened)), Status: core.OrderStatusPending}
}

func (f *fakeAPI) ClosePosition(id int64, comment string) core.OrderResult {
	f.closed = append(f.closed, id)
	return core.OrderResult{OrderID: id, Status: core.OrderStatusExecuted}
}

func (f *fakeAPI) OpenPositions() []core.Position { return f.positions }
func (f *fakeAPI) PendingOrders() []core.Order    { return f.pending }
func (f *fakeAPI) Balance() decimal.Decimal       { return decimal.NewFromInt(10000) }
func (f *fakeAPI) Equity() decimal.Decimal        { return decimal.NewFromInt(10000) }
func (f *fakeAPI) FreeMargin() decimal.Decimal    { return f.freeMargin }

func consensusTick() core.Tick {
	return core.Tick{
		Timestamp: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		Symbol:    "EURUSD",
		Bid:       decimal.NewFromFloat(1.1000),
		Ask:       decimal.NewFromFloat(1.1002),
	}
}

func results(rsi float64, envPos float64) map[string]core.WorkerResult {
	return map[string]core.WorkerResult{
		"rsi":      {WorkerName: "rsi", Value: rsi, Confidence: 1},
		"envelope": {WorkerName: "envelope", Value: workers.EnvelopeValue{Position: envPos}, Confidence: 1},
	}
}

func newConsensus(t *testing.T, api core.TradingAPI) core.DecisionLogic {
	t.Helper()
	logic, err := NewSimpleConsensus(nil)
	require.NoError(t, err)
	logic.SetTradingAPI(api)
	return logic
}

func TestConsensusComputeSignals(t *testing.T) {
	logic := newConsensus(t, newFakeAPI())

	tests := []struct {
		name     string
		rsi      float64
		envPos   float64
		expected core.Action
	}{
		{"oversold and low band", 25, 0.1, core.ActionBuy},
		{"oversold at thresholds", 30, 0.3, core.ActionBuy},
		{"overbought and high band", 80, 0.9, core.ActionSell},
		{"overbought at thresholds", 70, 0.7, core.ActionSell},
		{"rsi low but band neutral", 25, 0.5, core.ActionFlat},
		{"band low but rsi neutral", 50, 0.1, core.ActionFlat},
		{"both neutral", 50, 0.5, core.ActionFlat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := logic.Compute(consensusTick(), results(tt.rsi, tt.envPos), nil, nil)
			assert.Equal(t, tt.expected, d.Action)
			if tt.expected != core.ActionFlat {
				assert.GreaterOrEqual(t, d.Confidence, 0.5)
				assert.LessOrEqual(t, d.Confidence, 1.0)
			}
		})
	}
}

func TestConsensusConfidenceGrowsWithExtremity(t *testing.T) {
	logic := newConsensus(t, newFakeAPI())

	mild := logic.Compute(consensusTick(), results(29, 0.29), nil, nil)
	extreme := logic.Compute(consensusTick(), results(5, 0.02), nil, nil)
	require.Equal(t, core.ActionBuy, mild.Action)
	require.Equal(t, core.ActionBuy, extreme.Action)
	assert.Greater(t, extreme.Confidence, mild.Confidence)
}

func TestConsensusStaleResultsForceFlat(t *testing.T) {
	logic := newConsensus(t, newFakeAPI())

	r := results(20, 0.1)
	stale := r["rsi"]
	stale.IsStale = true
	r["rsi"] = stale

	d := logic.Compute(consensusTick(), r, nil, nil)
	assert.Equal(t, core.ActionFlat, d.Action)

	d = logic.Compute(consensusTick(), map[string]core.WorkerResult{}, nil, nil)
	assert.Equal(t, core.ActionFlat, d.Action)
}

func TestConsensusExecuteOpensOrder(t *testing.T) {
	api := newFakeAPI()
	logic := newConsensus(t, api)

	d := logic.Compute(consensusTick(), results(20, 0.1), nil, nil)
	res, err := logic.Execute(d, consensusTick())
	require.NoError(t, err)
	require.NotNil(t, res)

	require.Len(t, api.opened, 1)
	req := api.opened[0]
	assert.Equal(t, core.OrderTypeMarket, req.Type)
	assert.Equal(t, core.DirectionBuy, req.Direction)
	assert.True(t, req.Lots.Equal(decimal.NewFromFloat(0.1)))
}

func TestConsensusExecuteFlatIsNoop(t *testing.T) {
	api := newFakeAPI()
	logic := newConsensus(t, api)

	d := logic.Compute(consensusTick(), results(50, 0.5), nil, nil)
	res, err := logic.Execute(d, consensusTick())
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, api.opened)
	assert.Empty(t, api.closed)
}

func TestConsensusSameDirectionIsSuppressed(t *testing.T) {
	api := newFakeAPI()
	api.positions = []core.Position{{
		PositionID: 7, Symbol: "EURUSD", Direction: core.DirectionBuy,
	}}
	logic := newConsensus(t, api)

	d := logic.Compute(consensusTick(), results(20, 0.1), nil, nil)
	res, err := logic.Execute(d, consensusTick())
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, api.opened)
	assert.Empty(t, api.closed)
}

func TestConsensusReversalClosesThenOpens(t *testing.T) {
	api := newFakeAPI()
	api.positions = []core.Position{{
		PositionID: 7, Symbol: "EURUSD", Direction: core.DirectionBuy,
	}}
	logic := newConsensus(t, api)

	d := logic.Compute(consensusTick(), results(80, 0.9), nil, nil)
	require.Equal(t, core.ActionSell, d.Action)
	res, err := logic.Execute(d, consensusTick())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, []int64{7}, api.closed)
	require.Len(t, api.opened, 1)
	assert.Equal(t, core.DirectionSell, api.opened[0].Direction)
}

func TestConsensusPendingDuplicateSuppression(t *testing.T) {
	api := newFakeAPI()
	api.pending = []core.Order{{
		OrderID: 3, Symbol: "EURUSD", Direction: core.DirectionBuy, Status: core.OrderStatusPending,
	}}
	logic := newConsensus(t, api)

	d := logic.Compute(consensusTick(), results(20, 0.1), nil, nil)
	res, err := logic.Execute(d, consensusTick())
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, api.opened)
}

func TestConsensusFreeMarginGuard(t *testing.T) {
	api := newFakeAPI()
	api.freeMargin = decimal.NewFromInt(500)
	logic := newConsensus(t, api)

	d := logic.Compute(consensusTick(), results(20, 0.1), nil, nil)
	res, err := logic.Execute(d, consensusTick())
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, api.opened)
}

func TestNewSimpleConsensusValidatesParams(t *testing.T) {
	_, err := NewSimpleConsensus(map[string]any{"rsi_oversold": 70.0, "rsi_overbought": 30.0})
	assert.Error(t, err)

	_, err = NewSimpleConsensus(map[string]any{"lot_size": -1.0})
	assert.Error(t, err)
}
