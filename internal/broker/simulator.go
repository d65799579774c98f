package broker

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"finiex/internal/config"
	"finiex/internal/core"
	"finiex/pkg/telemetry"
)

var one = decimal.NewFromInt(1)

// Simulator is the per-scenario broker. It owns the portfolio, the
// pending-order book and the order history, and is mutated exclusively by
// the scenario's tick loop.
type Simulator struct {
	spec   *Spec
	logger core.Logger

	portfolio *Portfolio
	pending   []*core.Order
	history   []core.Order
	open      []*core.Position
	closed    []core.ClosedPosition

	orderSeq    int64
	positionSeq int64

	latencyRNG *rand.Rand
	stressRNG  *rand.Rand
	stress     config.StressRejectConfig

	maxPendingAge  int64
	conversionRate decimal.Decimal

	tickCount int64
	bid, ask  decimal.Decimal
	lastTick  core.Tick

	stats ExecutionStats
	costs CostBreakdown
}

// NewSimulator builds a broker simulator for one scenario. Seeds drive the
// latency and stress generators; same seeds and inputs give bit-identical
// runs.
func NewSimulator(spec *Spec, scenario config.Scenario, logger core.Logger) *Simulator {
	latencySeed := scenario.Seeds["latency"]
	stressSeed := scenario.StressTestConfig.RejectOpenOrder.Seed
	if stressSeed == 0 {
		stressSeed = scenario.Seeds["stress"]
	}

	rate := scenario.TradeSimulatorConfig.ConversionRate
	if rate.IsZero() {
		rate = one
	}

	return &Simulator{
		spec:           spec,
		logger:         logger.WithField("component", "broker"),
		portfolio:      NewPortfolio(scenario.InitialBalance, spec.ResolveCurrency(scenario.AccountCurrency)),
		latencyRNG:     rand.New(rand.NewSource(latencySeed)),
		stressRNG:      rand.New(rand.NewSource(stressSeed)),
		stress:         scenario.StressTestConfig.RejectOpenOrder,
		maxPendingAge:  int64(scenario.TradeSimulatorConfig.MaxPendingAgeTicks),
		conversionRate: rate,
	}
}

func dirSign(d core.Direction) decimal.Decimal {
	if d == core.DirectionBuy {
		return one
	}
	return one.Neg()
}

// closeSidePrice is the market price a position of the given direction
// closes at: BUY positions sell at bid, SELL positions buy back at ask.
func (s *Simulator) closeSidePrice(d core.Direction) decimal.Decimal {
	if d == core.DirectionBuy {
		return s.bid
	}
	return s.ask
}

// openSidePrice is the market price an order of the given direction fills
// at when opening: BUY at ask, SELL at bid.
func (s *Simulator) openSidePrice(d core.Direction) decimal.Decimal {
	if d == core.DirectionBuy {
		return s.ask
	}
	return s.bid
}

// UpdatePrices advances the simulator by one tick: refreshes quotes,
// revalues open positions, updates the portfolio high-water marks and
// processes the pending-order book.
func (s *Simulator) UpdatePrices(tick core.Tick) {
	s.tickCount++
	s.bid = tick.Bid
	s.ask = tick.Ask
	s.lastTick = tick

	for _, pos := range s.open {
		pos.CurrentPrice = s.closeSidePrice(pos.Direction)
		s.revalue(pos)
	}
	s.refreshPortfolio()
	s.processPending(tick)
}

func (s *Simulator) revalue(pos *core.Position) {
	gross := pos.CurrentPrice.Sub(pos.OpenPrice).
		Mul(pos.Lots).Mul(s.spec.ContractSize).Mul(dirSign(pos.Direction))
	pos.UnrealizedPnL = gross.Mul(s.conversionRate).Sub(pos.Swap).Sub(pos.Commission)
}

func (s *Simulator) refreshPortfolio() {
	unrealized := decimal.Zero
	usedMargin := decimal.Zero
	for _, pos := range s.open {
		unrealized = unrealized.Add(pos.UnrealizedPnL)
		usedMargin = usedMargin.Add(pos.UsedMargin)
	}
	s.portfolio.update(unrealized, usedMargin)
}

// OpenOrder validates and queues a new order. Accepted orders enter the
// pending book with status PENDING and fill on a later tick per the
// latency model; rejected orders are recorded and returned immediately.
func (s *Simulator) OpenOrder(req core.OrderRequest) core.OrderResult {
	s.orderSeq++
	order := core.Order{
		OrderID:         s.orderSeq,
		Symbol:          req.Symbol,
		Type:            req.Type,
		Direction:       req.Direction,
		Lots:            req.Lots,
		RequestedPrice:  req.RequestedPrice,
		LimitPrice:      req.LimitPrice,
		Comment:         req.Comment,
		CreatedAt:       s.lastTick.Timestamp,
		SubmittedAtTick: s.tickCount,
	}

	if reason := s.validate(req); reason != "" {
		order.Status = core.OrderStatusRejected
		order.RejectionReason = reason
		s.history = append(s.history, order)
		s.stats.OrdersRejected++
		telemetry.OrdersRejected.Inc()
		s.logger.Debug("Order rejected", "order_id", order.OrderID, "reason", reason)
		return core.OrderResult{OrderID: order.OrderID, Status: core.OrderStatusRejected, RejectionReason: reason}
	}

	order.Status = core.OrderStatusPending
	order.LatencyTicks = s.drawLatency()
	s.history = append(s.history, order)
	pendingCopy := order
	s.pending = append(s.pending, &pendingCopy)
	s.stats.OrdersSent++
	return core.OrderResult{OrderID: order.OrderID, Status: core.OrderStatusPending}
}

// validate applies lot, margin and price checks in that order, then the
// stress injection. It returns the rejection reason or "".
func (s *Simulator) validate(req core.OrderRequest) string {
	if !s.spec.SupportsOrderType(req.Type) {
		return core.RejectUnsupportedType
	}

	if !req.Lots.IsPositive() ||
		req.Lots.LessThan(s.spec.MinLots) ||
		req.Lots.GreaterThan(s.spec.MaxLots) ||
		!req.Lots.Mod(s.spec.LotStep).IsZero() {
		return core.RejectInvalidLots
	}

	price := s.openSidePrice(req.Direction)
	required := req.Lots.Mul(s.spec.ContractSize).Mul(price).Div(decimal.NewFromInt(s.spec.Leverage))
	if s.portfolio.FreeMargin.LessThan(required) {
		return core.RejectInsufficientMargin
	}

	if req.Type != core.OrderTypeMarket {
		if !req.RequestedPrice.IsPositive() {
			return core.RejectInvalidPrice
		}
		ref := s.ask
		if req.Direction == core.DirectionSell {
			ref = s.bid
		}
		switch req.Type {
		case core.OrderTypeLimit:
			if req.Direction == core.DirectionBuy && req.RequestedPrice.GreaterThan(ref) {
				return core.RejectInvalidPrice
			}
			if req.Direction == core.DirectionSell && req.RequestedPrice.LessThan(ref) {
				return core.RejectInvalidPrice
			}
		case core.OrderTypeStop, core.OrderTypeStopLimit:
			if req.Direction == core.DirectionBuy && req.RequestedPrice.LessThan(ref) {
				return core.RejectInvalidPrice
			}
			if req.Direction == core.DirectionSell && req.RequestedPrice.GreaterThan(ref) {
				return core.RejectInvalidPrice
			}
		}
	}

	if s.stress.Enabled && s.stressRNG.Float64() < s.stress.Probability {
		return core.RejectStressTest
	}
	return ""
}

func (s *Simulator) drawLatency() int {
	min, max := s.spec.Latency.MinTicks, s.spec.Latency.MaxTicks
	if max <= min {
		return min
	}
	return min + s.latencyRNG.Intn(max-min+1)
}

// processPending walks the pending book in submission order, cancelling
// aged orders and filling the ones whose condition is met.
func (s *Simulator) processPending(tick core.Tick) {
	remaining := s.pending[:0]
	for _, order := range s.pending {
		age := s.tickCount - order.SubmittedAtTick

		if s.maxPendingAge > 0 && age > s.maxPendingAge {
			s.cancel(order, core.CancelTimedOut)
			s.stats.OrdersTimedOut++
			continue
		}

		if s.shouldFill(order, age) {
			s.fill(order, tick)
			continue
		}
		remaining = append(remaining, order)
	}
	s.pending = remaining
}

func (s *Simulator) shouldFill(order *core.Order, age int64) bool {
	switch order.Type {
	case core.OrderTypeMarket:
		return age >= int64(order.LatencyTicks)
	case core.OrderTypeLimit:
		if order.Direction == core.DirectionBuy {
			return s.ask.LessThanOrEqual(order.RequestedPrice)
		}
		return s.bid.GreaterThanOrEqual(order.RequestedPrice)
	case core.OrderTypeStop:
		if order.Direction == core.DirectionBuy {
			return s.ask.GreaterThanOrEqual(order.RequestedPrice)
		}
		return s.bid.LessThanOrEqual(order.RequestedPrice)
	case core.OrderTypeStopLimit:
		if !order.StopTriggered {
			triggered := false
			if order.Direction == core.DirectionBuy {
				triggered = s.ask.GreaterThanOrEqual(order.RequestedPrice)
			} else {
				triggered = s.bid.LessThanOrEqual(order.RequestedPrice)
			}
			if triggered {
				order.StopTriggered = true
			}
			return false
		}
		if order.Direction == core.DirectionBuy {
			return s.ask.LessThanOrEqual(order.LimitPrice)
		}
		return s.bid.GreaterThanOrEqual(order.LimitPrice)
	}
	return false
}

// fill executes a pending order at the current market, creating a
// position. The history receives one EXECUTED record in addition to the
// PENDING record written at submission.
func (s *Simulator) fill(order *core.Order, tick core.Tick) {
	fillPrice := s.openSidePrice(order.Direction)

	order.Status = core.OrderStatusExecuted
	order.ExecutedPrice = fillPrice
	order.FilledAt = tick.Timestamp
	s.history = append(s.history, *order)
	s.stats.OrdersExecuted++
	telemetry.OrdersExecuted.Inc()

	commission := s.spec.commission(order.Lots, fillPrice)
	spreadCost := s.ask.Sub(s.bid).Mul(order.Lots).Mul(s.spec.ContractSize)
	margin := order.Lots.Mul(s.spec.ContractSize).Mul(fillPrice).Div(decimal.NewFromInt(s.spec.Leverage))

	s.positionSeq++
	pos := &core.Position{
		PositionID:   s.positionSeq,
		Symbol:       order.Symbol,
		Direction:    order.Direction,
		Lots:         order.Lots,
		OpenPrice:    fillPrice,
		OpenTime:     tick.Timestamp,
		CurrentPrice: s.closeSidePrice(order.Direction),
		Commission:   commission,
		SpreadCost:   spreadCost,
		UsedMargin:   margin,
	}
	s.revalue(pos)
	s.open = append(s.open, pos)

	s.costs.Commission = s.costs.Commission.Add(commission)
	s.costs.SpreadCost = s.costs.SpreadCost.Add(spreadCost)

	if order.Direction == core.DirectionBuy {
		s.portfolio.LongTrades++
	} else {
		s.portfolio.ShortTrades++
	}
	s.refreshPortfolio()

	s.logger.Debug("Order filled",
		"order_id", order.OrderID, "position_id", pos.PositionID,
		"price", fillPrice.String(), "lots", order.Lots.String())
}

func (s *Simulator) cancel(order *core.Order, reason string) {
	order.Status = core.OrderStatusCancelled
	order.RejectionReason = reason
	s.history = append(s.history, *order)
	s.stats.OrdersCancelled++
}

// ClosePosition closes an open position at the current market price. The
// close fill appends a single EXECUTED record to the order history.
func (s *Simulator) ClosePosition(positionID int64, comment string) core.OrderResult {
	for i, pos := range s.open {
		if pos.PositionID != positionID {
			continue
		}
		s.open = append(s.open[:i], s.open[i+1:]...)
		return s.close(pos, s.closeSidePrice(pos.Direction), s.lastTick, comment, false)
	}
	return core.OrderResult{Status: core.OrderStatusRejected, RejectionReason: "POSITION_NOT_FOUND"}
}

func (s *Simulator) close(pos *core.Position, closePrice decimal.Decimal, tick core.Tick, reason string, forced bool) core.OrderResult {
	closeCommission := s.spec.commission(pos.Lots, closePrice)
	commissionTotal := pos.Commission.Add(closeCommission)

	gross := closePrice.Sub(pos.OpenPrice).
		Mul(pos.Lots).Mul(s.spec.ContractSize).Mul(dirSign(pos.Direction))
	realized := gross.Mul(s.conversionRate).Sub(commissionTotal).Sub(pos.Swap).Sub(pos.SpreadCost)

	s.orderSeq++
	closeDir := core.DirectionSell
	if pos.Direction == core.DirectionSell {
		closeDir = core.DirectionBuy
	}
	record := core.Order{
		OrderID:         s.orderSeq,
		Symbol:          pos.Symbol,
		Type:            core.OrderTypeMarket,
		Direction:       closeDir,
		Lots:            pos.Lots,
		Status:          core.OrderStatusExecuted,
		ExecutedPrice:   closePrice,
		Comment:         reason,
		CreatedAt:       tick.Timestamp,
		FilledAt:        tick.Timestamp,
		ClosePositionID: pos.PositionID,
	}
	s.history = append(s.history, record)
	s.stats.CloseFills++
	s.costs.Commission = s.costs.Commission.Add(closeCommission)

	s.closed = append(s.closed, core.ClosedPosition{
		Position:    *pos,
		ClosePrice:  closePrice,
		CloseTime:   tick.Timestamp,
		RealizedPnL: realized,
		CloseReason: reason,
	})
	s.portfolio.recordClose(realized, forced)
	s.refreshPortfolio()

	s.logger.Debug("Position closed",
		"position_id", pos.PositionID, "price", closePrice.String(),
		"realized", realized.String(), "reason", reason)

	return core.OrderResult{OrderID: record.OrderID, Status: core.OrderStatusExecuted, ExecutedPrice: closePrice}
}

// Flush ends the run: every open position is force-closed at the last
// tick's mid and every pending order is cancelled UNFILLED_AT_END.
func (s *Simulator) Flush() {
	if len(s.open) > 0 {
		mid := s.lastTick.Mid()
		for _, pos := range s.open {
			s.close(pos, mid, s.lastTick, core.CloseForced, true)
		}
		s.open = nil
	}
	for _, order := range s.pending {
		s.cancel(order, core.CancelUnfilledAtEnd)
	}
	s.pending = nil
	s.refreshPortfolio()
}

// Accessors used by the trading API facade and the result builder.

func (s *Simulator) Spec() *Spec { return s.spec }

func (s *Simulator) Balance() decimal.Decimal    { return s.portfolio.Balance }
func (s *Simulator) Equity() decimal.Decimal     { return s.portfolio.Equity }
func (s *Simulator) FreeMargin() decimal.Decimal { return s.portfolio.FreeMargin }

// OpenPositions returns copies of the open positions.
func (s *Simulator) OpenPositions() []core.Position {
	out := make([]core.Position, 0, len(s.open))
	for _, pos := range s.open {
		out = append(out, *pos)
	}
	return out
}

// PendingOrders returns copies of the pending orders in submission order.
func (s *Simulator) PendingOrders() []core.Order {
	out := make([]core.Order, 0, len(s.pending))
	for _, o := range s.pending {
		out = append(out, *o)
	}
	return out
}

// OrderHistory returns the full order history.
func (s *Simulator) OrderHistory() []core.Order {
	out := make([]core.Order, len(s.history))
	copy(out, s.history)
	return out
}

// ClosedPositions returns the closed positions in close order.
func (s *Simulator) ClosedPositions() []core.ClosedPosition {
	out := make([]core.ClosedPosition, len(s.closed))
	copy(out, s.closed)
	return out
}

// PortfolioStats snapshots the portfolio.
func (s *Simulator) PortfolioStats() PortfolioStats {
	p := s.portfolio
	return PortfolioStats{
		Currency:          p.Currency,
		InitialBalance:    p.InitialBalance,
		Balance:           p.Balance,
		Equity:            p.Equity,
		FreeMargin:        p.FreeMargin,
		UsedMargin:        p.UsedMargin,
		MaxEquity:         p.MaxEquity,
		MaxDrawdown:       p.MaxDrawdown,
		OpenPositions:     len(s.open),
		ClosedPositions:   len(s.closed),
		WinningTrades:     p.WinningTrades,
		LosingTrades:      p.LosingTrades,
		LongTrades:        p.LongTrades,
		ShortTrades:       p.ShortTrades,
		TotalTrades:       p.TotalTrades,
		ForceClosedTrades: p.ForceClosedTrades,
	}
}

// ExecutionStats snapshots the order lifecycle counters.
func (s *Simulator) ExecutionStats() ExecutionStats { return s.stats }

// CostBreakdown snapshots accumulated trading costs.
func (s *Simulator) CostBreakdown() CostBreakdown { return s.costs }
