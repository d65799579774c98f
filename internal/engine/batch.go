package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/timeout"

	"finiex/internal/config"
	"finiex/internal/core"
	"finiex/internal/data"
	"finiex/internal/livestats"
	"finiex/pkg/concurrency"
	"finiex/pkg/logging"
	"finiex/pkg/telemetry"
)

// BatchCoordinator dispatches a scenario set: collects requirements,
// prepares the per-scenario payloads, runs scenarios sequentially or in a
// bounded pool, and returns results in original scenario order.
type BatchCoordinator struct {
	cfg          *config.Config
	set          *config.ScenarioSet
	index        *data.Index
	live         *livestats.Coordinator // nil disables live updates
	logger       core.Logger
	runTimestamp string
}

// NewBatchCoordinator assembles a batch over an opened index.
func NewBatchCoordinator(cfg *config.Config, set *config.ScenarioSet, index *data.Index,
	live *livestats.Coordinator, logger core.Logger) *BatchCoordinator {
	return &BatchCoordinator{
		cfg:          cfg,
		set:          set,
		index:        index,
		live:         live,
		logger:       logger.WithField("component", "batch"),
		runTimestamp: time.Now().UTC().Format("20060102_150405"),
	}
}

// Run executes every scenario and returns one result per scenario, in
// input order. Per-scenario failures are captured in their results; only
// preparation-wide problems (requirements collection) fail the batch.
func (b *BatchCoordinator) Run(ctx context.Context) ([]ProcessResult, error) {
	execCfg := b.set.Global.ExecutionConfig

	reqs, err := data.CollectRequirements(b.set)
	if err != nil {
		return nil, fmt.Errorf("requirements collection failed: %w", err)
	}

	preparator := data.NewPreparator(b.index, b.cfg.Data.BrokerConfigDir, b.cfg.Data.Collector,
		execCfg.WarmupStrictness, b.logger)
	preparator.PhaseHook = func(scenarioIndex int, phase data.PreparePhase) {
		b.publishStatus(scenarioIndex, b.set.Scenarios[scenarioIndex].Name, statusForPhase(phase), "")
	}

	results := make([]ProcessResult, len(b.set.Scenarios))
	packages := make([]*data.ProcessDataPackage, len(b.set.Scenarios))
	for i := range b.set.Scenarios {
		sc := &b.set.Scenarios[i]
		b.publishStatus(i, sc.Name, livestats.StatusInitialized, "")
		pkg, err := preparator.Prepare(sc, i, reqs)
		if err != nil {
			results[i] = ProcessResult{
				Success:       false,
				ScenarioName:  sc.Name,
				Symbol:        sc.Symbol,
				ScenarioIndex: i,
				ErrorType:     classifyError(err),
				ErrorMessage:  err.Error(),
			}
			b.publishStatus(i, sc.Name, livestats.StatusFinishedWithError, err.Error())
			b.logger.Error("Scenario preparation failed", "scenario", sc.Name, "error", err)
			continue
		}
		packages[i] = pkg
	}

	parallel := execCfg.ParallelScenarios
	if parallel && debuggerAttached() {
		b.logger.Warn("Debugger detected, forcing sequential scenario execution")
		parallel = false
	}

	if parallel {
		b.runParallel(ctx, packages, results, execCfg)
	} else {
		b.runSequential(ctx, packages, results, execCfg, debuggerAttached())
	}

	completed, failed := 0, 0
	for i := range results {
		if results[i].Success {
			completed++
			telemetry.ScenariosCompleted.Inc()
		} else {
			failed++
			telemetry.ScenariosFailed.Inc()
		}
	}
	b.publishBatch(completed, failed)
	b.logger.Info("Batch finished",
		"scenarios", len(b.set.Scenarios), "completed", completed, "failed", failed)
	return results, nil
}

func (b *BatchCoordinator) runSequential(ctx context.Context, packages []*data.ProcessDataPackage,
	results []ProcessResult, execCfg config.ExecutionConfig, forceSerial bool) {
	for i := range packages {
		if packages[i] == nil {
			continue
		}
		results[i] = b.runOne(ctx, i, packages[i], execCfg, forceSerial)
	}
}

func (b *BatchCoordinator) runParallel(ctx context.Context, packages []*data.ProcessDataPackage,
	results []ProcessResult, execCfg config.ExecutionConfig) {
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "scenarios",
		MaxWorkers:  execCfg.MaxParallelScenarios,
		MaxCapacity: len(packages),
	}, b.logger)

	var mu sync.Mutex
	for i := range packages {
		if packages[i] == nil {
			continue
		}
		i := i
		_ = pool.Submit(func() {
			res := b.runOne(ctx, i, packages[i], execCfg, false)
			mu.Lock()
			results[i] = res
			mu.Unlock()
		})
	}
	pool.StopAndWait()
}

// runOne executes a single scenario, wrapping it in the wall-clock
// timeout policy when configured.
func (b *BatchCoordinator) runOne(ctx context.Context, scenarioIndex int, pkg *data.ProcessDataPackage,
	execCfg config.ExecutionConfig, forceSerial bool) ProcessResult {
	sc := &b.set.Scenarios[scenarioIndex]
	scenarioLogger := logging.NewScenarioLogger(b.set.ScenarioSetName, sc.Name, b.runTimestamp,
		b.cfg.System.LogLevel, b.cfg.System.LogDir)

	runner := NewScenarioRunner(sc, scenarioIndex, pkg, execCfg, b.live, scenarioLogger)
	if forceSerial {
		runner.ForceSerial()
	}

	telemetry.ScenariosRunning.Inc()
	defer telemetry.ScenariosRunning.Dec()

	var result ProcessResult
	if execCfg.ScenarioTimeoutSec > 0 {
		result = b.runWithTimeout(ctx, runner, time.Duration(execCfg.ScenarioTimeoutSec)*time.Second)
	} else {
		result = runner.Run(ctx)
	}

	if err := scenarioLogger.Flush(); err != nil {
		b.logger.Warn("Failed to flush scenario log", "scenario", sc.Name, "error", err)
	}
	return result
}

// runWithTimeout cancels the runner's context when the wall-clock budget
// is exceeded. The runner observes the cancellation between ticks and
// still returns its partial-stats result, which is then relabeled as a
// timeout.
func (b *BatchCoordinator) runWithTimeout(ctx context.Context, runner *ScenarioRunner, budget time.Duration) ProcessResult {
	resultCh := make(chan ProcessResult, 1)
	executor := failsafe.With[ProcessResult](timeout.New[ProcessResult](budget)).WithContext(ctx)

	result, err := executor.GetWithExecution(func(exec failsafe.Execution[ProcessResult]) (ProcessResult, error) {
		res := runner.Run(exec.Context())
		resultCh <- res
		return res, nil
	})
	if err == nil {
		return result
	}

	res := <-resultCh
	if errors.Is(err, timeout.ErrExceeded) {
		res.Success = false
		res.ErrorType = errorTypeTimeout
		res.ErrorMessage = fmt.Sprintf("scenario exceeded wall-clock budget of %s", budget)
		if res.TickLoopResults.TickLoopError == "" {
			res.TickLoopResults.TickLoopError = res.ErrorMessage
		}
	}
	return res
}

// statusForPhase maps a preparation phase onto its lifecycle status.
func statusForPhase(phase data.PreparePhase) string {
	switch phase {
	case data.PhaseTickData:
		return livestats.StatusWarmupDataTicks
	case data.PhaseBarData:
		return livestats.StatusWarmupDataBars
	default:
		return livestats.StatusWarmupCoverage
	}
}

func (b *BatchCoordinator) publishStatus(scenarioIndex int, name, status, errMsg string) {
	if b.live == nil {
		return
	}
	b.live.PublishStatus(livestats.StatusUpdate{
		ScenarioIndex: scenarioIndex,
		ScenarioName:  name,
		Status:        status,
		Error:         errMsg,
	})
}

func (b *BatchCoordinator) publishBatch(completed, failed int) {
	if b.live == nil {
		return
	}
	b.live.PublishBatch(livestats.BatchUpdate{
		ScenarioSetName: b.set.ScenarioSetName,
		Total:           len(b.set.Scenarios),
		Completed:       completed,
		Failed:          failed,
	})
}

// debuggerAttached probes for an attached tracer. Delve and gdb show up
// as a non-zero TracerPid; FINIEX_DEBUG forces the same behavior.
func debuggerAttached() bool {
	if config.Debug() {
		return true
	}
	status, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(status), "\n") {
		if after, ok := strings.CutPrefix(line, "TracerPid:"); ok {
			pid, err := strconv.Atoi(strings.TrimSpace(after))
			return err == nil && pid != 0
		}
	}
	return false
}
