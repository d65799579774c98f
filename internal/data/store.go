// Package data implements the columnar tick/bar store access layer: the
// parquet reader/writer, the range index with its JSON sidecars, the
// per-scenario requirements collector and the shared data preparator.
package data

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"finiex/internal/core"
	apperrors "finiex/pkg/errors"
)

// TickRow is the columnar layout of one tick. Timestamps are UTC epoch
// milliseconds; time_msc carries the collector's original millisecond
// stamp used for deduplication.
type TickRow struct {
	Timestamp    int64   `parquet:"timestamp"`
	Symbol       string  `parquet:"symbol"`
	Bid          float64 `parquet:"bid"`
	Ask          float64 `parquet:"ask"`
	Volume       float64 `parquet:"volume"`
	TimeMsc      int64   `parquet:"time_msc"`
	SpreadPoints float64 `parquet:"spread_points"`
	SpreadPct    float64 `parquet:"spread_pct"`
}

// BarRow is the columnar layout of one pre-rendered bar.
type BarRow struct {
	Timestamp int64   `parquet:"timestamp"`
	Symbol    string  `parquet:"symbol"`
	Timeframe string  `parquet:"timeframe"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
	TickCount int32   `parquet:"tick_count"`
	BarType   string  `parquet:"bar_type"`
}

// Store resolves paths inside one collector's processed-data tree:
// ticks under ticks/<SYMBOL>/, bars under bars/<SYMBOL>/.
type Store struct {
	root string
}

// NewStore opens the store rooted at dataDir/collector.
func NewStore(dataDir, collector string) *Store {
	return &Store{root: filepath.Join(dataDir, collector)}
}

func (s *Store) Root() string { return s.root }

// TickDir returns the tick file directory of one symbol.
func (s *Store) TickDir(symbol string) string {
	return filepath.Join(s.root, "ticks", symbol)
}

// BarPath returns the canonical single bar file of a symbol/timeframe.
func (s *Store) BarPath(symbol string, tf core.Timeframe) string {
	return filepath.Join(s.root, "bars", symbol, fmt.Sprintf("%s_%s_BARS.parquet", symbol, tf))
}

// TickSymbols lists the symbols that have a tick directory.
func (s *Store) TickSymbols() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "ticks"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list tick store: %w", err)
	}
	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	return symbols, nil
}

// BarSymbols lists the symbols that have a bar directory.
func (s *Store) BarSymbols() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "bars"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list bar store: %w", err)
	}
	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	return symbols, nil
}

// ReadTickFile loads one tick file into domain ticks, in file order.
func ReadTickFile(path string) ([]core.Tick, error) {
	rows, err := parquet.ReadFile[TickRow](path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrCorruptDataFile, path, err)
	}
	ticks := make([]core.Tick, len(rows))
	for i, r := range rows {
		ticks[i] = core.Tick{
			Timestamp:    time.UnixMilli(r.Timestamp).UTC(),
			Symbol:       r.Symbol,
			Bid:          decimal.NewFromFloat(r.Bid),
			Ask:          decimal.NewFromFloat(r.Ask),
			Volume:       r.Volume,
			TimeMsc:      r.TimeMsc,
			SpreadPoints: r.SpreadPoints,
			SpreadPct:    r.SpreadPct,
		}
	}
	return ticks, nil
}

// WriteTickFile writes ticks as one parquet file, creating parent
// directories as needed.
func WriteTickFile(path string, ticks []core.Tick) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create tick directory: %w", err)
	}
	rows := make([]TickRow, len(ticks))
	for i, t := range ticks {
		bid, _ := t.Bid.Float64()
		ask, _ := t.Ask.Float64()
		rows[i] = TickRow{
			Timestamp:    t.Timestamp.UnixMilli(),
			Symbol:       t.Symbol,
			Bid:          bid,
			Ask:          ask,
			Volume:       t.Volume,
			TimeMsc:      t.TimeMsc,
			SpreadPoints: t.SpreadPoints,
			SpreadPct:    t.SpreadPct,
		}
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("failed to write tick file %s: %w", path, err)
	}
	return nil
}

// ReadBarFile loads one bar file into domain bars, in file order. Bars
// from the store are complete by definition.
func ReadBarFile(path string) ([]core.Bar, error) {
	rows, err := parquet.ReadFile[BarRow](path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrCorruptDataFile, path, err)
	}
	bars := make([]core.Bar, len(rows))
	for i, r := range rows {
		bars[i] = core.Bar{
			Symbol:     r.Symbol,
			Timeframe:  core.Timeframe(r.Timeframe),
			Timestamp:  time.UnixMilli(r.Timestamp).UTC(),
			Open:       decimal.NewFromFloat(r.Open),
			High:       decimal.NewFromFloat(r.High),
			Low:        decimal.NewFromFloat(r.Low),
			Close:      decimal.NewFromFloat(r.Close),
			Volume:     r.Volume,
			TickCount:  int(r.TickCount),
			IsComplete: true,
			BarType:    core.BarType(r.BarType),
		}
	}
	return bars, nil
}

// WriteBarFile writes bars as one parquet file, creating parent
// directories as needed.
func WriteBarFile(path string, bars []core.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create bar directory: %w", err)
	}
	rows := make([]BarRow, len(bars))
	for i, b := range bars {
		open, _ := b.Open.Float64()
		high, _ := b.High.Float64()
		low, _ := b.Low.Float64()
		cls, _ := b.Close.Float64()
		rows[i] = BarRow{
			Timestamp: b.Timestamp.UnixMilli(),
			Symbol:    b.Symbol,
			Timeframe: string(b.Timeframe),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     cls,
			Volume:    b.Volume,
			TickCount: int32(b.TickCount),
			BarType:   string(b.BarType),
		}
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("failed to write bar file %s: %w", path, err)
	}
	return nil
}
