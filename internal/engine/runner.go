package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"finiex/internal/bars"
	"finiex/internal/broker"
	"finiex/internal/config"
	"finiex/internal/core"
	"finiex/internal/data"
	"finiex/internal/livestats"
	"finiex/internal/strategy"
	"finiex/internal/workers"
	apperrors "finiex/pkg/errors"
	"finiex/pkg/logging"
	"finiex/pkg/telemetry"
)

// Error type labels recorded on failure results.
const (
	errorTypeValidation = "validation"
	errorTypeData       = "data"
	errorTypeRuntime    = "runtime"
	errorTypeCancelled  = "cancelled"
	errorTypeTimeout    = "timeout"
	errorTypePanic      = "panic"
)

// ScenarioRunner executes one scenario's tick loop over a prepared data
// package. All of its state is scenario-local; nothing is shared with
// sibling runners.
type ScenarioRunner struct {
	scenario      *config.Scenario
	scenarioIndex int
	pkg           *data.ProcessDataPackage
	execCfg       config.ExecutionConfig
	live          *livestats.Coordinator // nil disables live updates
	logger        *logging.ScenarioLogger
	forceSerial   bool
}

// NewScenarioRunner assembles a runner for one scenario.
func NewScenarioRunner(sc *config.Scenario, scenarioIndex int, pkg *data.ProcessDataPackage,
	execCfg config.ExecutionConfig, live *livestats.Coordinator, logger *logging.ScenarioLogger) *ScenarioRunner {
	return &ScenarioRunner{
		scenario:      sc,
		scenarioIndex: scenarioIndex,
		pkg:           pkg,
		execCfg:       execCfg,
		live:          live,
		logger:        logger,
	}
}

// ForceSerial disables worker parallelism for this run.
func (r *ScenarioRunner) ForceSerial() { r.forceSerial = true }

// Run executes the tick loop and always returns a result; errors are
// captured, never propagated. A failure after ticks were processed is a
// hybrid result carrying partial statistics.
func (r *ScenarioRunner) Run(ctx context.Context) (result ProcessResult) {
	start := time.Now()
	result = ProcessResult{
		ScenarioName:  r.scenario.Name,
		Symbol:        r.scenario.Symbol,
		ScenarioIndex: r.scenarioIndex,
		Warnings:      r.pkg.Warnings,
	}

	defer func() {
		if rec := recover(); rec != nil {
			result.Success = false
			result.ErrorType = errorTypePanic
			result.ErrorMessage = fmt.Sprintf("%v", rec)
			result.Traceback = string(debug.Stack())
			result.TickLoopResults.TickLoopError = result.ErrorMessage
			r.logger.Error("Scenario panicked", "error", result.ErrorMessage)
		}
		result.ExecutionTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
		result.LoggerBuffer = r.logger.Buffer()
		r.publishFinalStatus(result)
	}()

	r.publishStatus(livestats.StatusInitProcess, "")

	setup, err := r.buildScenario()
	if err != nil {
		return r.failBefore(result, err)
	}
	result.TickLoopResults.ProfilingData.PrepareMs = float64(time.Since(start).Microseconds()) / 1000.0

	r.publishStatus(livestats.StatusWarmupTrader, "")
	warmupStart := time.Now()
	if err := r.warmup(setup); err != nil {
		return r.failBefore(result, err)
	}
	result.TickLoopResults.ProfilingData.WarmupMs = float64(time.Since(warmupStart).Microseconds()) / 1000.0

	r.publishStatus(livestats.StatusRunning, "")
	r.logger.Info("Tick loop starting",
		"ticks", len(r.pkg.Ticks), "timeframes", setup.controller.Timeframes())

	loopStart := time.Now()
	loopErr := r.tickLoop(ctx, setup, &result)
	result.TickLoopResults.ProfilingData.TickLoopMs = float64(time.Since(loopStart).Microseconds()) / 1000.0

	flushStart := time.Now()
	setup.sim.Flush()
	result.TickLoopResults.ProfilingData.FlushMs = float64(time.Since(flushStart).Microseconds()) / 1000.0

	r.collectStats(setup, &result)

	if loopErr != nil {
		result.Success = false
		result.ErrorType = classifyError(loopErr)
		result.ErrorMessage = loopErr.Error()
		result.TickLoopResults.TickLoopError = loopErr.Error()
		r.logger.Error("Tick loop failed", "error", loopErr)
		return result
	}

	result.Success = true
	r.logger.Info("Scenario finished",
		"ticks", result.TickLoopResults.TickRangeStats.TicksProcessed,
		"trades", result.TickLoopResults.PortfolioStats.TotalTrades,
		"balance", result.TickLoopResults.PortfolioStats.Balance)
	return result
}

// scenarioSetup bundles the per-scenario objects the tick loop drives.
type scenarioSetup struct {
	spec       *broker.Spec
	sim        *broker.Simulator
	controller *bars.Controller
	coord      *workers.Coordinator
	logic      core.DecisionLogic
	maxWarmup  map[core.Timeframe]int
}

func (r *ScenarioRunner) buildScenario() (*scenarioSetup, error) {
	spec, err := broker.ParseSpec(r.pkg.BrokerConfig)
	if err != nil {
		return nil, err
	}

	built, err := workers.BuildAll(r.scenario.Merged.Workers)
	if err != nil {
		return nil, err
	}
	if len(built) == 0 {
		return nil, fmt.Errorf("scenario %s configures no workers", r.scenario.Name)
	}

	logicCfg := r.scenario.Merged.DecisionLogic
	if logicCfg.Type == "" {
		return nil, fmt.Errorf("scenario %s configures no decision logic", r.scenario.Name)
	}
	logic, err := strategy.Build(logicCfg.Type, logicCfg.Params)
	if err != nil {
		return nil, err
	}
	if err := strategy.ValidateOrderTypes(logic, spec); err != nil {
		return nil, err
	}

	sim := broker.NewSimulator(spec, *r.scenario, r.logger)
	logic.SetTradingAPI(strategy.NewTradingFacade(sim))

	maxWarmup := workers.MaxWarmup(built)
	maxHistory := 0
	if r.execCfg.BarHistoryExtra > 0 {
		for _, n := range maxWarmup {
			if n+r.execCfg.BarHistoryExtra > maxHistory {
				maxHistory = n + r.execCfg.BarHistoryExtra
			}
		}
	}
	controller := bars.NewController(r.scenario.Symbol, maxHistory)
	controller.RegisterTimeframes(workers.RequiredTimeframes(built))

	coordCfg := workers.CoordinatorConfig{
		ParallelWorkers:     r.execCfg.ParallelWorkers && !r.forceSerial,
		ParallelThresholdMs: r.execCfg.ParallelThresholdMs,
		AdaptiveCheckTicks:  r.execCfg.AdaptiveCheckTicks,
	}
	coord := workers.NewCoordinator(built, logic, coordCfg, r.logger)

	return &scenarioSetup{
		spec:       spec,
		sim:        sim,
		controller: controller,
		coord:      coord,
		logic:      logic,
		maxWarmup:  maxWarmup,
	}, nil
}

// warmup injects the prepared bar history and lets workers precompute
// state before the first tick.
func (r *ScenarioRunner) warmup(setup *scenarioSetup) error {
	for tf, warmupBars := range r.pkg.WarmupBars {
		if err := setup.controller.InjectWarmup(tf, warmupBars); err != nil {
			return err
		}
	}
	for _, warning := range r.pkg.Warnings {
		r.logger.Warn(warning)
	}
	return setup.coord.Warmup(setup.controller.History())
}

func (r *ScenarioRunner) tickLoop(ctx context.Context, setup *scenarioSetup, result *ProcessResult) error {
	stats := &result.TickLoopResults
	ticksTotal := int64(len(r.pkg.Ticks))

	for i, tick := range r.pkg.Ticks {
		// Cancellation is only observed between ticks; a tick's pipeline
		// always runs to completion.
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w after %d ticks", apperrors.ErrScenarioTimeout, i)
			}
			return fmt.Errorf("%w after %d ticks", apperrors.ErrScenarioCancelled, i)
		default:
		}

		setup.sim.UpdatePrices(tick)
		current := setup.controller.OnTick(tick)
		history := setup.controller.History()

		decision, err := setup.coord.OnTick(tick, current, history)
		if err != nil {
			stats.TickRangeStats.TicksProcessed = int64(i + 1)
			return fmt.Errorf("%w: %v", apperrors.ErrWorkerFailed, err)
		}

		stats.DecisionStatistics.TotalDecisions++
		switch decision.Action {
		case core.ActionBuy:
			stats.DecisionStatistics.BuySignals++
		case core.ActionSell:
			stats.DecisionStatistics.SellSignals++
		default:
			stats.DecisionStatistics.FlatDecisions++
		}

		orderResult, err := setup.logic.Execute(decision, tick)
		if err != nil {
			stats.TickRangeStats.TicksProcessed = int64(i + 1)
			return fmt.Errorf("%w: %v", apperrors.ErrDecisionFailed, err)
		}
		if orderResult != nil {
			stats.DecisionStatistics.OrdersAttempted++
		}

		telemetry.TicksProcessed.Inc()
		stats.TickRangeStats.TicksProcessed = int64(i + 1)
		if stats.TickRangeStats.FirstTick.IsZero() {
			stats.TickRangeStats.FirstTick = tick.Timestamp
		}
		stats.TickRangeStats.LastTick = tick.Timestamp

		if r.live != nil && r.execCfg.SnapshotEveryTicks > 0 && (i+1)%r.execCfg.SnapshotEveryTicks == 0 {
			r.publishProgress(setup, int64(i+1), ticksTotal, tick.Timestamp, false)
		}
	}
	return nil
}

func (r *ScenarioRunner) collectStats(setup *scenarioSetup, result *ProcessResult) {
	stats := &result.TickLoopResults
	stats.WorkerStatistics = setup.coord.Timings()
	stats.CoordinationStatistics = setup.coord.Stats()
	stats.PortfolioStats = setup.sim.PortfolioStats()
	stats.ExecutionStats = setup.sim.ExecutionStats()
	stats.CostBreakdown = setup.sim.CostBreakdown()

	for _, tfBars := range setup.controller.History() {
		for _, bar := range tfBars {
			if bar.BarType == core.BarTypeSynthetic {
				stats.TickRangeStats.SyntheticBars++
			}
		}
	}

	if r.live != nil {
		r.publishProgress(setup, stats.TickRangeStats.TicksProcessed, int64(len(r.pkg.Ticks)),
			stats.TickRangeStats.LastTick, true)
	}
}

// failBefore finalizes a result for errors raised before the tick loop.
func (r *ScenarioRunner) failBefore(result ProcessResult, err error) ProcessResult {
	result.Success = false
	result.ErrorType = classifyError(err)
	result.ErrorMessage = err.Error()
	r.logger.Error("Scenario setup failed", "error", err)
	return result
}

func (r *ScenarioRunner) publishStatus(status, errMsg string) {
	if r.live == nil {
		return
	}
	r.live.PublishStatus(livestats.StatusUpdate{
		ScenarioIndex: r.scenarioIndex,
		ScenarioName:  r.scenario.Name,
		Status:        status,
		Error:         errMsg,
	})
}

func (r *ScenarioRunner) publishFinalStatus(result ProcessResult) {
	if r.live == nil {
		return
	}
	status := livestats.StatusCompleted
	if !result.Success {
		status = livestats.StatusFinishedWithError
	}
	r.publishStatus(status, result.ErrorMessage)
}

func (r *ScenarioRunner) publishProgress(setup *scenarioSetup, processed, total int64, tickTime time.Time, force bool) {
	portfolio := setup.sim.PortfolioStats()
	percent := 0.0
	if total > 0 {
		percent = 100.0 * float64(processed) / float64(total)
	}
	r.live.PublishProgress(livestats.Progress{
		ScenarioIndex:   r.scenarioIndex,
		ScenarioName:    r.scenario.Name,
		TicksProcessed:  processed,
		TicksTotal:      total,
		ProgressPercent: percent,
		CurrentTickTime: tickTime,
		Equity:          portfolio.Equity,
		Balance:         portfolio.Balance,
		OpenPositions:   portfolio.OpenPositions,
		TotalTrades:     portfolio.TotalTrades,
	}, force)
}

// classifyError maps an error chain onto the result taxonomy.
func classifyError(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrScenarioTimeout):
		return errorTypeTimeout
	case errors.Is(err, apperrors.ErrScenarioCancelled):
		return errorTypeCancelled
	case errors.Is(err, apperrors.ErrWorkerFailed),
		errors.Is(err, apperrors.ErrDecisionFailed),
		errors.Is(err, apperrors.ErrBrokerInvariant):
		return errorTypeRuntime
	case errors.Is(err, apperrors.ErrCorruptDataFile),
		errors.Is(err, apperrors.ErrNonMonotonicTicks),
		errors.Is(err, apperrors.ErrDataCoverage),
		errors.Is(err, apperrors.ErrInsufficientWarmup):
		return errorTypeData
	default:
		return errorTypeValidation
	}
}
