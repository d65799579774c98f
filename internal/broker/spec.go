// Package broker simulates order acceptance, fills, margin, commissions
// and P&L on a replayed tick stream. All state is scenario-local and every
// random draw comes from seeded generators, so identical inputs produce
// bit-identical results.
package broker

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"finiex/internal/core"
)

// CommissionModel describes how per-side commission is charged.
type CommissionModel struct {
	Type    string          `json:"type"` // "none", "per_lot", "percent"
	PerLot  decimal.Decimal `json:"per_lot,omitempty"`
	Percent decimal.Decimal `json:"percent,omitempty"`
}

// SpreadModel is consumed metadata about how the broker quotes spreads.
// Tick files already carry bid/ask, so the engine never re-applies it.
type SpreadModel struct {
	Type   string          `json:"type"`
	Points decimal.Decimal `json:"points,omitempty"`
}

// LatencyDistribution parameterizes the deterministic execution latency
// drawn per market order at submission time, in ticks.
type LatencyDistribution struct {
	Type     string `json:"type"` // "fixed", "uniform"
	MinTicks int    `json:"min_ticks"`
	MaxTicks int    `json:"max_ticks"`
}

// MarginRequirements holds broker margin thresholds.
type MarginRequirements struct {
	MarginCallLevel decimal.Decimal `json:"margin_call_level,omitempty"`
	StopOutLevel    decimal.Decimal `json:"stop_out_level,omitempty"`
}

// Spec is the consumed broker configuration contract.
type Spec struct {
	Name                string              `json:"name"`
	Leverage            int64               `json:"leverage"`
	AccountCurrency     string              `json:"account_currency"`
	ContractSize        decimal.Decimal     `json:"contract_size"`
	CommissionModel     CommissionModel     `json:"commission_model"`
	MinLots             decimal.Decimal     `json:"min_lots"`
	MaxLots             decimal.Decimal     `json:"max_lots"`
	LotStep             decimal.Decimal     `json:"lot_step"`
	Digits              int                 `json:"digits"`
	TickSize            decimal.Decimal     `json:"tick_size"`
	SpreadModel         SpreadModel         `json:"spread_model"`
	SupportedOrderTypes []core.OrderType    `json:"supported_order_types"`
	Latency             LatencyDistribution `json:"latency_distribution"`
	Margin              MarginRequirements  `json:"margin_requirements"`
	SwapPerLotDaily     decimal.Decimal     `json:"swap_per_lot_daily,omitempty"`
}

// LoadSpec reads a broker spec JSON file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read broker spec: %w", err)
	}
	return ParseSpec(data)
}

// ParseSpec parses a serialized broker spec, applying defaults and
// validating it.
func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse broker spec: %w", err)
	}
	spec.applyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (s *Spec) applyDefaults() {
	if s.ContractSize.IsZero() {
		s.ContractSize = decimal.NewFromInt(100000)
	}
	if s.MinLots.IsZero() {
		s.MinLots = decimal.NewFromFloat(0.01)
	}
	if s.MaxLots.IsZero() {
		s.MaxLots = decimal.NewFromInt(100)
	}
	if s.LotStep.IsZero() {
		s.LotStep = decimal.NewFromFloat(0.01)
	}
	if len(s.SupportedOrderTypes) == 0 {
		s.SupportedOrderTypes = []core.OrderType{core.OrderTypeMarket}
	}
	if s.AccountCurrency == "" {
		s.AccountCurrency = "USD"
	}
}

// Validate checks spec invariants.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("broker spec: name is required")
	}
	if s.Leverage <= 0 {
		return fmt.Errorf("broker spec %q: leverage must be positive, got %d", s.Name, s.Leverage)
	}
	if s.MinLots.GreaterThan(s.MaxLots) {
		return fmt.Errorf("broker spec %q: min_lots %s exceeds max_lots %s", s.Name, s.MinLots, s.MaxLots)
	}
	if !s.LotStep.IsPositive() {
		return fmt.Errorf("broker spec %q: lot_step must be positive", s.Name)
	}
	if s.Latency.MinTicks < 0 || s.Latency.MaxTicks < s.Latency.MinTicks {
		return fmt.Errorf("broker spec %q: invalid latency distribution [%d, %d]", s.Name, s.Latency.MinTicks, s.Latency.MaxTicks)
	}
	return nil
}

// SupportsOrderType reports whether the broker accepts an order type.
func (s *Spec) SupportsOrderType(t core.OrderType) bool {
	for _, ot := range s.SupportedOrderTypes {
		if ot == t {
			return true
		}
	}
	return false
}

// ResolveCurrency maps a scenario account currency setting to the
// effective portfolio currency. "auto" (or empty) adopts the broker's.
func (s *Spec) ResolveCurrency(scenarioCurrency string) string {
	if scenarioCurrency == "" || scenarioCurrency == "auto" {
		return s.AccountCurrency
	}
	return scenarioCurrency
}

// commission returns the per-side commission for a fill.
func (s *Spec) commission(lots, price decimal.Decimal) decimal.Decimal {
	switch s.CommissionModel.Type {
	case "per_lot":
		return s.CommissionModel.PerLot.Mul(lots)
	case "percent":
		return price.Mul(lots).Mul(s.ContractSize).Mul(s.CommissionModel.Percent)
	default:
		return decimal.Zero
	}
}
