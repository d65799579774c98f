package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finiex/internal/config"
	"finiex/internal/data"
	"finiex/internal/engine"
	"finiex/internal/livestats"
	"finiex/pkg/logging"
	"finiex/pkg/telemetry"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

const (
	exitOK        = 0
	exitError     = 1
	exitInterrupt = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/app.yaml", "Path to configuration file")
	scenarioPath := flag.String("scenarios", "", "Path to scenario set JSON (required)")
	outPath := flag.String("out", "", "Write results JSON to this file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("backtest version %s (built %s)\n", version, buildTime)
		return exitOK
	}
	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "missing required -scenarios flag")
		flag.Usage()
		return exitError
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return exitError
	}

	set, err := config.LoadScenarioSet(*scenarioPath)
	if err != nil {
		logger.Error("Failed to load scenario set", "path", *scenarioPath, "error", err)
		return exitError
	}

	logger.Info("Starting backtest",
		"version", version,
		"scenario_set", set.ScenarioSetName,
		"scenarios", len(set.Scenarios),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.EnableMetrics {
		srv := telemetry.Serve(cfg.Telemetry.MetricsPort)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("Metrics endpoint started", "port", cfg.Telemetry.MetricsPort)
	}

	var live *livestats.Coordinator
	if cfg.LiveStats.Enabled {
		var hub *livestats.Hub
		if cfg.LiveStats.ListenAddr != "" {
			hub = livestats.NewHub(logger)
			go hub.Run(ctx)
			server := livestats.NewServer(hub, cfg.LiveStats.ListenAddr, logger)
			server.Start()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = server.Stop(shutdownCtx)
			}()
		}
		interval := time.Duration(cfg.LiveStats.UpdateIntervalSec * float64(time.Second))
		live = livestats.NewCoordinator(cfg.LiveStats.QueueSize, interval, hub, logger)
		go live.Run(ctx)
	}

	store := data.NewStore(cfg.Data.DataDir, cfg.Data.Collector)
	index, err := data.OpenIndex(store, logger)
	if err != nil {
		logger.Error("Failed to open data index", "error", err)
		return exitError
	}

	batch := engine.NewBatchCoordinator(cfg, set, index, live, logger)
	results, err := batch.Run(ctx)
	if err != nil {
		logger.Error("Batch failed", "error", err)
		return exitError
	}

	if cfg.Archive.Enabled {
		archive, err := engine.OpenRunArchive(cfg.Archive.Path)
		if err != nil {
			logger.Warn("Failed to open run archive", "error", err)
		} else {
			defer archive.Close()
			runID, err := archive.SaveRun(context.Background(), set.ScenarioSetName, results)
			if err != nil {
				logger.Warn("Failed to archive run", "error", err)
			} else {
				logger.Info("Run archived", "run_id", runID)
			}
		}
	}

	if *outPath != "" {
		if err := writeResults(*outPath, results); err != nil {
			logger.Error("Failed to write results", "path", *outPath, "error", err)
			return exitError
		}
		logger.Info("Results written", "path", *outPath)
	}

	printSummary(results)

	if errors.Is(ctx.Err(), context.Canceled) {
		return exitInterrupt
	}
	return exitOK
}

func writeResults(path string, results []engine.ProcessResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func printSummary(results []engine.ProcessResult) {
	for _, res := range results {
		switch {
		case res.Success:
			fmt.Printf("[OK]       %-30s trades=%d balance=%s max_dd=%s\n",
				res.ScenarioName,
				res.TickLoopResults.PortfolioStats.TotalTrades,
				res.TickLoopResults.PortfolioStats.Balance,
				res.TickLoopResults.PortfolioStats.MaxDrawdown)
		case res.Hybrid():
			fmt.Printf("[CRITICAL] %-30s hybrid result: %s (%s, %d ticks processed)\n",
				res.ScenarioName, res.ErrorMessage, res.ErrorType,
				res.TickLoopResults.TickRangeStats.TicksProcessed)
		default:
			fmt.Printf("[FAILED]   %-30s %s (%s)\n", res.ScenarioName, res.ErrorMessage, res.ErrorType)
		}
	}
}
