package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"finiex/internal/config"
	"finiex/internal/data"
	"finiex/pkg/logging"
)

const (
	exitOK    = 0
	exitError = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/app.yaml", "Path to configuration file")
	flag.Parse()

	if flag.NArg() < 2 || flag.Arg(0) != "analyze" {
		fmt.Fprintln(os.Stderr, "usage: scenario [-config path] analyze <scenario_set.json>")
		return exitError
	}
	scenarioPath := flag.Arg(1)

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

	set, err := config.LoadScenarioSet(scenarioPath)
	if err != nil {
		logger.Error("Failed to load scenario set", "path", scenarioPath, "error", err)
		return exitError
	}

	store := data.NewStore(cfg.Data.DataDir, cfg.Data.Collector)
	index, err := data.OpenIndex(store, logger)
	if err != nil {
		logger.Error("Failed to open data index", "error", err)
		return exitError
	}

	reqs, err := data.CollectRequirements(set)
	if err != nil {
		logger.Error("Requirements collection failed", "error", err)
		return exitError
	}

	fmt.Printf("scenario set: %s (%d scenarios)\n\n", set.ScenarioSetName, len(set.Scenarios))

	problems := 0
	for i := range set.Scenarios {
		sc := &set.Scenarios[i]
		fmt.Printf("[%d] %s  symbol=%s start=%s\n", i, sc.Name, sc.Symbol,
			sc.StartTime.Format(time.RFC3339))

		tr, _ := reqs.TicksFor(i)
		end := tr.EndTime
		if end.IsZero() {
			end = tr.StartTime.AddDate(10, 0, 0)
			fmt.Printf("    range: max_ticks=%d\n", tr.MaxTicks)
		} else {
			fmt.Printf("    range: end=%s\n", end.Format(time.RFC3339))
		}

		spans, err := index.FilesForRange(sc.Symbol, tr.StartTime, end)
		if err != nil {
			fmt.Printf("    ticks: PROBLEM: %v\n", err)
			problems++
		} else {
			var estimated int64
			for _, s := range spans {
				estimated += s.RowCount
			}
			fmt.Printf("    ticks: %d files, <=%d ticks\n", len(spans), estimated)
		}

		for _, br := range reqs.BarsFor(i) {
			span, err := index.BarFile(br.Symbol, br.Timeframe)
			if err != nil {
				fmt.Printf("    warmup %s: PROBLEM: %v\n", br.Timeframe, err)
				problems++
				continue
			}
			if span.StartTime.After(br.Before) {
				fmt.Printf("    warmup %s: PROBLEM: bar coverage starts %s, after scenario start\n",
					br.Timeframe, span.StartTime.Format(time.RFC3339))
				problems++
				continue
			}
			fmt.Printf("    warmup %s: need %d bars before %s, file covers %s .. %s\n",
				br.Timeframe, br.WarmupBars, br.Before.Format("2006-01-02"),
				span.StartTime.Format("2006-01-02"), span.EndTime.Format("2006-01-02"))
		}
	}

	fmt.Printf("\n%d problem(s) found\n", problems)
	if problems > 0 {
		return exitError
	}
	return exitOK
}
