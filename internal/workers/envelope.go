package workers

import (
	"fmt"

	"finiex/internal/config"
	"finiex/internal/core"
)

// EnvelopeConfig parameterizes the envelope worker.
type EnvelopeConfig struct {
	Timeframe  string  `json:"timeframe"`
	Period     int     `json:"period"`
	Deviation  float64 `json:"deviation"` // band half-width as a fraction of the SMA
	WarmupBars int     `json:"warmup_bars"`
}

// EnvelopeValue is the typed result of the envelope worker. Position is
// where the current price sits inside the band: 0 at the lower band, 1 at
// the upper band.
type EnvelopeValue struct {
	Position float64 `json:"position"`
	Upper    float64 `json:"upper"`
	Lower    float64 `json:"lower"`
	SMA      float64 `json:"sma"`
}

// EnvelopeWorker computes an SMA envelope and the relative position of the
// current price within it.
type EnvelopeWorker struct {
	tf        core.Timeframe
	period    int
	deviation float64
	warmup    int
}

// NewEnvelopeWorker builds an envelope worker from scenario params.
func NewEnvelopeWorker(params map[string]any) (core.Worker, error) {
	cfg := EnvelopeConfig{Timeframe: string(core.M5), Period: 20, Deviation: 0.001}
	if err := config.DecodeParams(params, &cfg); err != nil {
		return nil, err
	}
	tf, err := core.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("envelope worker: %w", err)
	}
	if cfg.Period < 2 {
		return nil, fmt.Errorf("envelope worker: period must be >= 2, got %d", cfg.Period)
	}
	if cfg.Deviation <= 0 {
		return nil, fmt.Errorf("envelope worker: deviation must be positive, got %f", cfg.Deviation)
	}
	warmup := cfg.WarmupBars
	if warmup == 0 {
		warmup = cfg.Period * 2
	}
	return &EnvelopeWorker{tf: tf, period: cfg.Period, deviation: cfg.Deviation, warmup: warmup}, nil
}

func (w *EnvelopeWorker) Name() string { return "envelope" }

func (w *EnvelopeWorker) RequiredTimeframes() []core.Timeframe {
	return []core.Timeframe{w.tf}
}

func (w *EnvelopeWorker) WarmupBars(tf core.Timeframe) int {
	if tf == w.tf {
		return w.warmup
	}
	return 0
}

func (w *EnvelopeWorker) OnWarmup(history core.BarHistorySet) error {
	if len(history[w.tf]) < w.period {
		return fmt.Errorf("envelope worker: warmup has %d bars on %s, need at least %d",
			len(history[w.tf]), w.tf, w.period)
	}
	return nil
}

func (w *EnvelopeWorker) Compute(tick core.Tick, current core.BarSet, history core.BarHistorySet) (core.WorkerResult, error) {
	closes := collectCloses(w.tf, current, history, w.period)
	if len(closes) < w.period {
		return core.WorkerResult{
			WorkerName: w.Name(),
			Value:      EnvelopeValue{Position: 0.5},
			Confidence: 0,
			IsStale:    true,
		}, nil
	}

	sum := 0.0
	for _, c := range closes[len(closes)-w.period:] {
		sum += c
	}
	sma := sum / float64(w.period)
	upper := sma * (1 + w.deviation)
	lower := sma * (1 - w.deviation)

	price, _ := tick.Mid().Float64()
	position := 0.5
	if upper > lower {
		position = (price - lower) / (upper - lower)
	}
	if position < 0 {
		position = 0
	}
	if position > 1 {
		position = 1
	}

	return core.WorkerResult{
		WorkerName: w.Name(),
		Value:      EnvelopeValue{Position: position, Upper: upper, Lower: lower, SMA: sma},
		Confidence: 1.0,
	}, nil
}
