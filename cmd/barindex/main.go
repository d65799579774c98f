package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"finiex/internal/bars"
	"finiex/internal/config"
	"finiex/internal/core"
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

	if flag.NArg() < 1 {
		usage()
		return exitError
	}
	command := flag.Arg(0)

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

	store := data.NewStore(cfg.Data.DataDir, cfg.Data.Collector)

	switch command {
	case "rebuild":
		index, err := data.OpenIndex(store, logger)
		if err != nil {
			logger.Error("Index open failed", "error", err)
			return exitError
		}
		if err := index.Rebuild(); err != nil {
			logger.Error("Index rebuild failed", "error", err)
			return exitError
		}
		fmt.Println("index rebuilt")
		return exitOK

	case "status":
		return status(store, logger)

	case "report":
		return report(store, logger)

	case "render":
		clean := false
		for _, arg := range flag.Args()[1:] {
			if arg == "--clean" {
				clean = true
			}
		}
		return render(store, clean, logger)

	default:
		usage()
		return exitError
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: barindex [-config path] {rebuild|status|report|render [--clean]}")
}

func status(store *data.Store, logger core.Logger) int {
	index, err := data.OpenIndex(store, logger)
	if err != nil {
		logger.Error("Index open failed", "error", err)
		return exitError
	}
	for _, sym := range index.TickSymbols() {
		spans := index.TickSpans(sym)
		var rows int64
		for _, s := range spans {
			rows += s.RowCount
		}
		fmt.Printf("%-10s tick_files=%d ticks=%d bar_timeframes=%d\n",
			sym, len(spans), rows, len(index.BarSpans(sym)))
	}
	return exitOK
}

func report(store *data.Store, logger core.Logger) int {
	index, err := data.OpenIndex(store, logger)
	if err != nil {
		logger.Error("Index open failed", "error", err)
		return exitError
	}
	for _, sym := range index.TickSymbols() {
		fmt.Printf("%s\n", sym)
		for _, s := range index.TickSpans(sym) {
			fmt.Printf("  %s  %s .. %s  rows=%d\n",
				s.Path, s.StartTime.Format(time.RFC3339), s.EndTime.Format(time.RFC3339), s.RowCount)
		}
		for tf, s := range index.BarSpans(sym) {
			fmt.Printf("  [%s] %s  %s .. %s  rows=%d\n",
				tf, s.Path, s.StartTime.Format(time.RFC3339), s.EndTime.Format(time.RFC3339), s.RowCount)
		}
	}
	return exitOK
}

// render aggregates every symbol's full tick history into bar files for
// all timeframes. With --clean existing bar files are removed first.
func render(store *data.Store, clean bool, logger core.Logger) int {
	index, err := data.OpenIndex(store, logger)
	if err != nil {
		logger.Error("Index open failed", "error", err)
		return exitError
	}

	for _, sym := range index.TickSymbols() {
		if clean {
			for _, tf := range core.AllTimeframes() {
				_ = os.Remove(store.BarPath(sym, tf))
			}
		}

		controller := bars.NewController(sym, 0)
		controller.RegisterTimeframes(core.AllTimeframes())

		var ticks int64
		for _, span := range index.TickSpans(sym) {
			rows, err := data.ReadTickFile(span.Path)
			if err != nil {
				logger.Error("Failed to read tick file", "path", span.Path, "error", err)
				return exitError
			}
			for _, tick := range rows {
				controller.OnTick(tick)
				ticks++
			}
		}

		history := controller.History()
		current := controller.CurrentBars()
		for _, tf := range core.AllTimeframes() {
			tfBars := history[tf]
			if cur, ok := current[tf]; ok {
				cur.IsComplete = true
				tfBars = append(tfBars, cur)
			}
			if len(tfBars) == 0 {
				continue
			}
			if err := data.WriteBarFile(store.BarPath(sym, tf), tfBars); err != nil {
				logger.Error("Failed to write bar file", "symbol", sym, "timeframe", tf, "error", err)
				return exitError
			}
		}
		logger.Info("Bars rendered", "symbol", sym, "ticks", ticks)
	}

	if err := index.Rebuild(); err != nil {
		logger.Error("Index rebuild failed", "error", err)
		return exitError
	}
	return exitOK
}
