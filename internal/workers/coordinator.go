package workers

import (
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"finiex/internal/core"
)

// CoordinatorConfig tunes worker scheduling within a scenario.
type CoordinatorConfig struct {
	ParallelWorkers     bool
	ParallelThresholdMs float64
	AdaptiveCheckTicks  int
}

// WorkerTiming aggregates per-worker wall-time statistics.
type WorkerTiming struct {
	Calls   int64   `json:"calls"`
	TotalMs float64 `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
}

// CoordinationStats reports how ticks were scheduled.
type CoordinationStats struct {
	SerialTicks   int64 `json:"serial_ticks"`
	ParallelTicks int64 `json:"parallel_ticks"`
	ModeSwitches  int64 `json:"mode_switches"`
}

// Coordinator invokes every worker once per tick, gathers their results
// keyed by worker name and hands them to the decision logic. Execution is
// serial by default and flips to a tick-local fork/join when the measured
// average worker wall time crosses the configured threshold. The mode is
// only ever revisited between ticks.
type Coordinator struct {
	workers []core.Worker
	logic   core.DecisionLogic
	logger  core.Logger
	cfg     CoordinatorConfig

	useParallel  bool
	tickCount    int64
	totalWorkMs  float64
	totalSamples int64

	timings map[string]*WorkerTiming
	stats   CoordinationStats
}

// NewCoordinator wires workers and a decision logic together.
func NewCoordinator(workers []core.Worker, logic core.DecisionLogic, cfg CoordinatorConfig, logger core.Logger) *Coordinator {
	if cfg.AdaptiveCheckTicks <= 0 {
		cfg.AdaptiveCheckTicks = 500
	}
	timings := make(map[string]*WorkerTiming, len(workers))
	for _, w := range workers {
		timings[w.Name()] = &WorkerTiming{}
	}
	return &Coordinator{
		workers: workers,
		logic:   logic,
		logger:  logger.WithField("component", "coordinator"),
		cfg:     cfg,
		timings: timings,
	}
}

// Warmup feeds the injected bar history to every worker so indicators can
// precompute state before the first tick.
func (c *Coordinator) Warmup(history core.BarHistorySet) error {
	for _, w := range c.workers {
		if err := w.OnWarmup(history); err != nil {
			return fmt.Errorf("worker %s warmup failed: %w", w.Name(), err)
		}
	}
	return nil
}

// OnTick computes all worker results for one tick and returns the
// decision. Any worker failure is fatal to the scenario.
func (c *Coordinator) OnTick(tick core.Tick, current core.BarSet, history core.BarHistorySet) (core.Decision, error) {
	c.maybeAdapt()
	c.tickCount++

	var results map[string]core.WorkerResult
	var err error
	if c.useParallel {
		c.stats.ParallelTicks++
		results, err = c.computeParallel(tick, current, history)
	} else {
		c.stats.SerialTicks++
		results, err = c.computeSerial(tick, current, history)
	}
	if err != nil {
		return core.Decision{}, err
	}

	return c.logic.Compute(tick, results, current, history), nil
}

func (c *Coordinator) computeSerial(tick core.Tick, current core.BarSet, history core.BarHistorySet) (map[string]core.WorkerResult, error) {
	results := make(map[string]core.WorkerResult, len(c.workers))
	for _, w := range c.workers {
		start := time.Now()
		res, err := w.Compute(tick, current, history)
		elapsed := float64(time.Since(start).Microseconds()) / 1000.0
		if err != nil {
			return nil, fmt.Errorf("worker %s failed: %w", w.Name(), err)
		}
		res.WorkerName = w.Name()
		res.ComputationTimeMs = elapsed
		results[w.Name()] = res
		c.recordTiming(w.Name(), elapsed)
	}
	return results, nil
}

// computeParallel forks one task per worker over the same read-only tick
// snapshot and joins all before returning. Results merge by worker name,
// so the outcome is independent of completion order.
func (c *Coordinator) computeParallel(tick core.Tick, current core.BarSet, history core.BarHistorySet) (map[string]core.WorkerResult, error) {
	slots := make([]core.WorkerResult, len(c.workers))
	var g errgroup.Group
	for i, w := range c.workers {
		i, w := i, w
		g.Go(func() error {
			start := time.Now()
			res, err := w.Compute(tick, current, history)
			if err != nil {
				return fmt.Errorf("worker %s failed: %w", w.Name(), err)
			}
			res.WorkerName = w.Name()
			res.ComputationTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
			slots[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make(map[string]core.WorkerResult, len(c.workers))
	for i, w := range c.workers {
		results[w.Name()] = slots[i]
		c.recordTiming(w.Name(), slots[i].ComputationTimeMs)
	}
	return results, nil
}

func (c *Coordinator) recordTiming(name string, ms float64) {
	t := c.timings[name]
	t.Calls++
	t.TotalMs += ms
	t.AvgMs = t.TotalMs / float64(t.Calls)
	c.totalWorkMs += ms
	c.totalSamples++
}

// maybeAdapt revisits the serial/parallel choice on the adaptive interval
// boundary, before the tick's computation starts.
func (c *Coordinator) maybeAdapt() {
	if !c.cfg.ParallelWorkers || len(c.workers) < 2 {
		return
	}
	if c.tickCount == 0 || c.tickCount%int64(c.cfg.AdaptiveCheckTicks) != 0 {
		return
	}
	avg := 0.0
	if c.totalSamples > 0 {
		avg = c.totalWorkMs / float64(c.totalSamples)
	}
	want := avg >= c.cfg.ParallelThresholdMs
	if want != c.useParallel {
		c.useParallel = want
		c.stats.ModeSwitches++
		c.logger.Debug("Worker execution mode switched",
			"parallel", want, "avg_worker_ms", avg)
	}
}

// ForceSerial disables parallel workers regardless of config. The batch
// coordinator calls this when a debugger is attached.
func (c *Coordinator) ForceSerial() {
	c.cfg.ParallelWorkers = false
	c.useParallel = false
}

// Timings returns per-worker timing aggregates keyed by worker name.
func (c *Coordinator) Timings() map[string]WorkerTiming {
	out := make(map[string]WorkerTiming, len(c.timings))
	for name, t := range c.timings {
		out[name] = *t
	}
	return out
}

// Stats returns the scheduling statistics.
func (c *Coordinator) Stats() CoordinationStats { return c.stats }
