package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"finiex/internal/config"
	"finiex/internal/core"
	"finiex/internal/workers"
)

// ConsensusConfig parameterizes the simple consensus logic.
type ConsensusConfig struct {
	RSIOversold   float64 `json:"rsi_oversold"`
	RSIOverbought float64 `json:"rsi_overbought"`
	EnvelopeLower float64 `json:"envelope_lower"`
	EnvelopeUpper float64 `json:"envelope_upper"`
	MinConfidence float64 `json:"min_confidence"`
	LotSize       float64 `json:"lot_size"`
	MinFreeMargin float64 `json:"min_free_margin"`
}

// SimpleConsensus trades when the RSI and envelope workers agree on an
// extreme. It holds at most one position per symbol and reverses when the
// signal flips against an open position.
type SimpleConsensus struct {
	cfg ConsensusConfig
	api core.TradingAPI

	lots          decimal.Decimal
	minFreeMargin decimal.Decimal
}

// NewSimpleConsensus builds the logic from scenario params.
func NewSimpleConsensus(params map[string]any) (core.DecisionLogic, error) {
	cfg := ConsensusConfig{
		RSIOversold:   30,
		RSIOverbought: 70,
		EnvelopeLower: 0.3,
		EnvelopeUpper: 0.7,
		MinConfidence: 0.5,
		LotSize:       0.1,
		MinFreeMargin: 1000,
	}
	if err := config.DecodeParams(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.RSIOversold >= cfg.RSIOverbought {
		return nil, fmt.Errorf("simple consensus: rsi_oversold (%v) must be below rsi_overbought (%v)",
			cfg.RSIOversold, cfg.RSIOverbought)
	}
	if cfg.EnvelopeLower >= cfg.EnvelopeUpper {
		return nil, fmt.Errorf("simple consensus: envelope_lower (%v) must be below envelope_upper (%v)",
			cfg.EnvelopeLower, cfg.EnvelopeUpper)
	}
	if cfg.LotSize <= 0 {
		return nil, fmt.Errorf("simple consensus: lot_size must be positive, got %v", cfg.LotSize)
	}
	return &SimpleConsensus{
		cfg:           cfg,
		lots:          decimal.NewFromFloat(cfg.LotSize),
		minFreeMargin: decimal.NewFromFloat(cfg.MinFreeMargin),
	}, nil
}

func (s *SimpleConsensus) Name() string { return "simple_consensus" }

func (s *SimpleConsensus) RequiredOrderTypes() []core.OrderType {
	return []core.OrderType{core.OrderTypeMarket}
}

func (s *SimpleConsensus) SetTradingAPI(api core.TradingAPI) { s.api = api }

// Compute evaluates both indicators and emits an intent. Stale or missing
// worker results force FLAT.
func (s *SimpleConsensus) Compute(tick core.Tick, results map[string]core.WorkerResult, current core.BarSet, history core.BarHistorySet) core.Decision {
	flat := func(reason string) core.Decision {
		return core.Decision{
			Action:    core.ActionFlat,
			Reason:    reason,
			Price:     tick.Mid(),
			Timestamp: tick.Timestamp,
		}
	}

	rsiRes, ok := results["rsi"]
	if !ok || rsiRes.IsStale {
		return flat("rsi unavailable")
	}
	envRes, ok := results["envelope"]
	if !ok || envRes.IsStale {
		return flat("envelope unavailable")
	}

	rsi, ok := rsiRes.Value.(float64)
	if !ok {
		return flat("rsi value has unexpected type")
	}
	env, ok := envRes.Value.(workers.EnvelopeValue)
	if !ok {
		return flat("envelope value has unexpected type")
	}

	switch {
	case rsi <= s.cfg.RSIOversold && env.Position <= s.cfg.EnvelopeLower:
		rsiExt := (s.cfg.RSIOversold - rsi) / s.cfg.RSIOversold
		envExt := 0.0
		if s.cfg.EnvelopeLower > 0 {
			envExt = (s.cfg.EnvelopeLower - env.Position) / s.cfg.EnvelopeLower
		}
		return core.Decision{
			Action:     core.ActionBuy,
			Confidence: consensusConfidence(rsiExt, envExt),
			Reason:     fmt.Sprintf("rsi %.1f oversold, envelope position %.2f near lower band", rsi, env.Position),
			Price:      tick.Ask,
			Timestamp:  tick.Timestamp,
		}
	case rsi >= s.cfg.RSIOverbought && env.Position >= s.cfg.EnvelopeUpper:
		rsiExt := (rsi - s.cfg.RSIOverbought) / (100 - s.cfg.RSIOverbought)
		envExt := 0.0
		if s.cfg.EnvelopeUpper < 1 {
			envExt = (env.Position - s.cfg.EnvelopeUpper) / (1 - s.cfg.EnvelopeUpper)
		}
		return core.Decision{
			Action:     core.ActionSell,
			Confidence: consensusConfidence(rsiExt, envExt),
			Reason:     fmt.Sprintf("rsi %.1f overbought, envelope position %.2f near upper band", rsi, env.Position),
			Price:      tick.Bid,
			Timestamp:  tick.Timestamp,
		}
	}
	return flat("no consensus")
}

// consensusConfidence maps the average indicator extremity into [0.5, 1].
func consensusConfidence(exts ...float64) float64 {
	sum := 0.0
	for _, e := range exts {
		if e < 0 {
			e = 0
		}
		if e > 1 {
			e = 1
		}
		sum += e
	}
	c := 0.5 + 0.5*(sum/float64(len(exts)))
	if c > 1 {
		c = 1
	}
	return c
}

// Execute enforces the one-position-per-symbol policy: a signal in the
// direction of an open position or of a pending order is suppressed, an
// opposite signal closes the position first (reversal) and then opens the
// new one on the same tick.
func (s *SimpleConsensus) Execute(decision core.Decision, tick core.Tick) (*core.OrderResult, error) {
	if decision.Action == core.ActionFlat || decision.Confidence < s.cfg.MinConfidence {
		return nil, nil
	}

	dir := core.DirectionBuy
	if decision.Action == core.ActionSell {
		dir = core.DirectionSell
	}

	for _, pos := range s.api.OpenPositions() {
		if pos.Symbol != tick.Symbol {
			continue
		}
		if pos.Direction == dir {
			return nil, nil
		}
		s.api.ClosePosition(pos.PositionID, "signal reversal")
	}

	for _, pending := range s.api.PendingOrders() {
		if pending.Symbol == tick.Symbol && pending.Direction == dir {
			return nil, nil
		}
	}

	if s.api.FreeMargin().LessThan(s.minFreeMargin) {
		return nil, nil
	}

	result := s.api.OpenOrder(core.OrderRequest{
		Symbol:    tick.Symbol,
		Type:      core.OrderTypeMarket,
		Direction: dir,
		Lots:      s.lots,
		Comment:   decision.Reason,
	})
	return &result, nil
}
