// Package strategy contains the decision logics that turn worker results
// into orders, their factory registry and the trading API facade that
// mediates between a logic and the broker simulator.
package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"finiex/internal/broker"
	"finiex/internal/core"
	apperrors "finiex/pkg/errors"
)

// TradingFacade is the TradingAPI implementation handed to decision
// logics. It delegates to the scenario's broker simulator and counts the
// submissions that pass through it.
type TradingFacade struct {
	sim *broker.Simulator
}

// NewTradingFacade wraps a broker simulator.
func NewTradingFacade(sim *broker.Simulator) *TradingFacade {
	return &TradingFacade{sim: sim}
}

// ValidateOrderTypes checks that the broker supports every order type the
// decision logic declares, before the first tick runs.
func ValidateOrderTypes(logic core.DecisionLogic, spec *broker.Spec) error {
	for _, t := range logic.RequiredOrderTypes() {
		if !spec.SupportsOrderType(t) {
			return fmt.Errorf("%w: decision logic %s requires %s, broker %s does not offer it",
				apperrors.ErrUnsupportedOrderType, logic.Name(), t, spec.Name)
		}
	}
	return nil
}

func (f *TradingFacade) OpenOrder(req core.OrderRequest) core.OrderResult {
	return f.sim.OpenOrder(req)
}

func (f *TradingFacade) ClosePosition(positionID int64, comment string) core.OrderResult {
	return f.sim.ClosePosition(positionID, comment)
}

func (f *TradingFacade) OpenPositions() []core.Position { return f.sim.OpenPositions() }
func (f *TradingFacade) PendingOrders() []core.Order    { return f.sim.PendingOrders() }
func (f *TradingFacade) Balance() decimal.Decimal       { return f.sim.Balance() }
func (f *TradingFacade) Equity() decimal.Decimal        { return f.sim.Equity() }
func (f *TradingFacade) FreeMargin() decimal.Decimal    { return f.sim.FreeMargin() }
