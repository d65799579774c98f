package broker

import "github.com/shopspring/decimal"

// Portfolio is the rolling account state of one scenario. Balance carries
// realized P&L only; equity adds unrealized P&L of open positions.
type Portfolio struct {
	Currency       string
	InitialBalance decimal.Decimal
	Balance        decimal.Decimal
	Equity         decimal.Decimal
	UsedMargin     decimal.Decimal
	FreeMargin     decimal.Decimal
	MaxEquity      decimal.Decimal
	MaxDrawdown    decimal.Decimal

	WinningTrades     int
	LosingTrades      int
	LongTrades        int
	ShortTrades       int
	TotalTrades       int
	ForceClosedTrades int

	minEquitySinceMax decimal.Decimal
}

// NewPortfolio creates a portfolio with the given starting balance.
func NewPortfolio(initialBalance decimal.Decimal, currency string) *Portfolio {
	return &Portfolio{
		Currency:          currency,
		InitialBalance:    initialBalance,
		Balance:           initialBalance,
		Equity:            initialBalance,
		FreeMargin:        initialBalance,
		MaxEquity:         initialBalance,
		minEquitySinceMax: initialBalance,
	}
}

// update recomputes equity, free margin and the drawdown high-water marks
// from the current unrealized P&L and locked margin.
func (p *Portfolio) update(unrealized, usedMargin decimal.Decimal) {
	p.Equity = p.Balance.Add(unrealized)
	p.UsedMargin = usedMargin
	p.FreeMargin = p.Equity.Sub(usedMargin)

	if p.Equity.GreaterThan(p.MaxEquity) {
		p.MaxEquity = p.Equity
		p.minEquitySinceMax = p.Equity
	}
	if p.Equity.LessThan(p.minEquitySinceMax) {
		p.minEquitySinceMax = p.Equity
		if dd := p.MaxEquity.Sub(p.minEquitySinceMax); dd.GreaterThan(p.MaxDrawdown) {
			p.MaxDrawdown = dd
		}
	}
}

// recordClose books a realized P&L and updates the win/loss counters.
func (p *Portfolio) recordClose(realized decimal.Decimal, forced bool) {
	p.Balance = p.Balance.Add(realized)
	p.TotalTrades++
	if forced {
		p.ForceClosedTrades++
	}
	switch {
	case realized.IsPositive():
		p.WinningTrades++
	case realized.IsNegative():
		p.LosingTrades++
	}
}

// PortfolioStats is the immutable snapshot emitted in results.
type PortfolioStats struct {
	Currency          string          `json:"currency"`
	InitialBalance    decimal.Decimal `json:"initial_balance"`
	Balance           decimal.Decimal `json:"balance"`
	Equity            decimal.Decimal `json:"equity"`
	FreeMargin        decimal.Decimal `json:"free_margin"`
	UsedMargin        decimal.Decimal `json:"used_margin"`
	MaxEquity         decimal.Decimal `json:"max_equity"`
	MaxDrawdown       decimal.Decimal `json:"max_drawdown"`
	OpenPositions     int             `json:"open_positions"`
	ClosedPositions   int             `json:"closed_positions"`
	WinningTrades     int             `json:"winning_trades"`
	LosingTrades      int             `json:"losing_trades"`
	LongTrades        int             `json:"long_trades"`
	ShortTrades       int             `json:"short_trades"`
	TotalTrades       int             `json:"total_trades"`
	ForceClosedTrades int             `json:"force_closed_trades"`
}

// ExecutionStats counts order lifecycle events. OrdersSent and
// OrdersExecuted track open submissions and open fills; close fills are
// counted separately so each closed trade maps to exactly one CloseFill.
type ExecutionStats struct {
	OrdersSent      int `json:"orders_sent"`
	OrdersExecuted  int `json:"orders_executed"`
	OrdersRejected  int `json:"orders_rejected"`
	OrdersCancelled int `json:"orders_cancelled"`
	OrdersTimedOut  int `json:"orders_timed_out"`
	CloseFills      int `json:"close_fills"`
}

// CostBreakdown aggregates trading costs over a scenario.
type CostBreakdown struct {
	SpreadCost decimal.Decimal `json:"spread_cost"`
	Commission decimal.Decimal `json:"commission"`
	Swap       decimal.Decimal `json:"swap"`
}
