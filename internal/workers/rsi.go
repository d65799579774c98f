// Package workers contains the indicator workers, their static factory
// registry and the per-tick coordinator that fans computation out to them.
package workers

import (
	"fmt"

	"finiex/internal/config"
	"finiex/internal/core"
)

// RSIConfig parameterizes the RSI worker.
type RSIConfig struct {
	Timeframe  string `json:"timeframe"`
	Period     int    `json:"period"`
	WarmupBars int    `json:"warmup_bars"`
}

// RSIWorker computes Wilder's relative strength index over the closes of
// one timeframe.
type RSIWorker struct {
	tf     core.Timeframe
	period int
	warmup int
}

// NewRSIWorker builds an RSI worker from scenario params.
func NewRSIWorker(params map[string]any) (core.Worker, error) {
	cfg := RSIConfig{Timeframe: string(core.M5), Period: 14}
	if err := config.DecodeParams(params, &cfg); err != nil {
		return nil, err
	}
	tf, err := core.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("rsi worker: %w", err)
	}
	if cfg.Period < 2 {
		return nil, fmt.Errorf("rsi worker: period must be >= 2, got %d", cfg.Period)
	}
	warmup := cfg.WarmupBars
	if warmup == 0 {
		warmup = cfg.Period * 3
	}
	return &RSIWorker{tf: tf, period: cfg.Period, warmup: warmup}, nil
}

func (w *RSIWorker) Name() string { return "rsi" }

func (w *RSIWorker) RequiredTimeframes() []core.Timeframe {
	return []core.Timeframe{w.tf}
}

func (w *RSIWorker) WarmupBars(tf core.Timeframe) int {
	if tf == w.tf {
		return w.warmup
	}
	return 0
}

func (w *RSIWorker) OnWarmup(history core.BarHistorySet) error {
	if len(history[w.tf]) < w.period+1 {
		return fmt.Errorf("rsi worker: warmup has %d bars on %s, need at least %d",
			len(history[w.tf]), w.tf, w.period+1)
	}
	return nil
}

// Compute evaluates RSI over the completed history plus the forming bar's
// close. A result over insufficient data is flagged stale with a neutral
// value.
func (w *RSIWorker) Compute(tick core.Tick, current core.BarSet, history core.BarHistorySet) (core.WorkerResult, error) {
	closes := collectCloses(w.tf, current, history, w.period+1)
	if len(closes) < w.period+1 {
		return core.WorkerResult{WorkerName: w.Name(), Value: 50.0, Confidence: 0, IsStale: true}, nil
	}

	// Wilder smoothing: seed with the simple average of the first period
	// deltas, then recursively blend the remainder.
	var gain, loss float64
	for i := 1; i <= w.period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	avgGain := gain / float64(w.period)
	avgLoss := loss / float64(w.period)
	for i := w.period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if delta > 0 {
			g = delta
		} else {
			l = -delta
		}
		avgGain = (avgGain*float64(w.period-1) + g) / float64(w.period)
		avgLoss = (avgLoss*float64(w.period-1) + l) / float64(w.period)
	}

	rsi := 100.0
	if avgLoss > 0 {
		rs := avgGain / avgLoss
		rsi = 100.0 - 100.0/(1.0+rs)
	} else if avgGain == 0 {
		rsi = 50.0
	}

	return core.WorkerResult{WorkerName: w.Name(), Value: rsi, Confidence: 1.0}, nil
}

// collectCloses returns at least min closes (all available, oldest first)
// from the completed history plus the current forming bar.
func collectCloses(tf core.Timeframe, current core.BarSet, history core.BarHistorySet, min int) []float64 {
	h := history[tf]
	want := len(h) + 1
	if want > min*3 {
		want = min * 3
	}
	closes := make([]float64, 0, want)
	start := 0
	if len(h)+1 > want {
		start = len(h) + 1 - want
	}
	for _, bar := range h[start:] {
		f, _ := bar.Close.Float64()
		closes = append(closes, f)
	}
	if cur, ok := current[tf]; ok {
		f, _ := cur.Close.Float64()
		closes = append(closes, f)
	}
	return closes
}
