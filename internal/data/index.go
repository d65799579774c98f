package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"finiex/internal/core"
	apperrors "finiex/pkg/errors"
)

const (
	tickIndexName = ".parquet_index.json"
	barIndexName  = ".parquet_bars_index.json"
)

// FileSpan describes the time coverage of one store file.
type FileSpan struct {
	Path      string    `json:"path"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	RowCount  int64     `json:"row_count"`
}

// Overlaps reports whether the span's closed interval intersects [t0, t1].
func (f FileSpan) Overlaps(t0, t1 time.Time) bool {
	return !f.StartTime.After(t1) && !f.EndTime.Before(t0)
}

type tickIndexFile struct {
	CreatedAt time.Time             `json:"created_at"`
	Symbols   map[string][]FileSpan `json:"symbols"`
}

type barIndexFile struct {
	CreatedAt time.Time                      `json:"created_at"`
	Symbols   map[string]map[string]FileSpan `json:"symbols"`
}

// Index is the range index over one collector's tick and bar files. It is
// persisted as JSON sidecars next to the store and rebuilt whenever any
// indexed file is newer than its sidecar.
type Index struct {
	store  *Store
	logger core.Logger

	ticks map[string][]FileSpan
	bars  map[string]map[string]FileSpan
}

// OpenIndex loads the sidecar index for the store, rebuilding it when it
// is missing or stale.
func OpenIndex(store *Store, logger core.Logger) (*Index, error) {
	idx := &Index{store: store, logger: logger.WithField("component", "index")}
	if idx.load() && !idx.stale() {
		return idx, nil
	}
	if err := idx.Rebuild(); err != nil {
		return nil, err
	}
	return idx, nil
}

// load reads both sidecars; false means at least one is missing or
// unreadable.
func (idx *Index) load() bool {
	tickData, err := os.ReadFile(filepath.Join(idx.store.Root(), tickIndexName))
	if err != nil {
		return false
	}
	barData, err := os.ReadFile(filepath.Join(idx.store.Root(), barIndexName))
	if err != nil {
		return false
	}
	var ticks tickIndexFile
	var bars barIndexFile
	if json.Unmarshal(tickData, &ticks) != nil || json.Unmarshal(barData, &bars) != nil {
		return false
	}
	idx.ticks = ticks.Symbols
	idx.bars = bars.Symbols
	return true
}

// stale reports whether any indexed file's mtime is newer than its
// sidecar, or a symbol directory contains files the index has not seen.
func (idx *Index) stale() bool {
	sidecarInfo, err := os.Stat(filepath.Join(idx.store.Root(), tickIndexName))
	if err != nil {
		return true
	}
	sidecarTime := sidecarInfo.ModTime()

	counted := 0
	for _, spans := range idx.ticks {
		counted += len(spans)
		for _, span := range spans {
			info, err := os.Stat(span.Path)
			if err != nil || info.ModTime().After(sidecarTime) {
				return true
			}
		}
	}
	onDisk, err := idx.countTickFiles()
	if err != nil || onDisk != counted {
		return true
	}

	for _, byTF := range idx.bars {
		for _, span := range byTF {
			info, err := os.Stat(span.Path)
			if err != nil || info.ModTime().After(sidecarTime) {
				return true
			}
		}
	}
	return false
}

func (idx *Index) countTickFiles() (int, error) {
	symbols, err := idx.store.TickSymbols()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, sym := range symbols {
		paths, err := filepath.Glob(filepath.Join(idx.store.TickDir(sym), "*.parquet"))
		if err != nil {
			return 0, err
		}
		total += len(paths)
	}
	return total, nil
}

// Rebuild scans the store once and rewrites both sidecars.
func (idx *Index) Rebuild() error {
	start := time.Now()
	ticks := make(map[string][]FileSpan)
	symbols, err := idx.store.TickSymbols()
	if err != nil {
		return err
	}
	for _, sym := range symbols {
		paths, err := filepath.Glob(filepath.Join(idx.store.TickDir(sym), "*.parquet"))
		if err != nil {
			return err
		}
		sort.Strings(paths)
		var spans []FileSpan
		for _, path := range paths {
			rows, err := ReadTickFile(path)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				continue
			}
			spans = append(spans, FileSpan{
				Path:      path,
				StartTime: rows[0].Timestamp,
				EndTime:   rows[len(rows)-1].Timestamp,
				RowCount:  int64(len(rows)),
			})
		}
		sort.Slice(spans, func(i, j int) bool { return spans[i].StartTime.Before(spans[j].StartTime) })
		ticks[sym] = spans
	}

	bars := make(map[string]map[string]FileSpan)
	barSymbols, err := idx.store.BarSymbols()
	if err != nil {
		return err
	}
	for _, sym := range barSymbols {
		byTF := make(map[string]FileSpan)
		for _, tf := range core.AllTimeframes() {
			path := idx.store.BarPath(sym, tf)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			rows, err := ReadBarFile(path)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				continue
			}
			byTF[string(tf)] = FileSpan{
				Path:      path,
				StartTime: rows[0].Timestamp,
				EndTime:   rows[len(rows)-1].Timestamp,
				RowCount:  int64(len(rows)),
			}
		}
		bars[sym] = byTF
	}

	idx.ticks = ticks
	idx.bars = bars
	if err := idx.save(); err != nil {
		return err
	}
	idx.logger.Info("Index rebuilt",
		"symbols", len(ticks), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (idx *Index) save() error {
	now := time.Now().UTC()
	tickData, err := json.MarshalIndent(tickIndexFile{CreatedAt: now, Symbols: idx.ticks}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(idx.store.Root(), tickIndexName), tickData, 0o644); err != nil {
		return fmt.Errorf("failed to write tick index: %w", err)
	}
	barData, err := json.MarshalIndent(barIndexFile{CreatedAt: now, Symbols: idx.bars}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(idx.store.Root(), barIndexName), barData, 0o644); err != nil {
		return fmt.Errorf("failed to write bar index: %w", err)
	}
	return nil
}

// FilesForRange returns every tick file of the symbol whose coverage
// overlaps [t0, t1], ordered by start time.
func (idx *Index) FilesForRange(symbol string, t0, t1 time.Time) ([]FileSpan, error) {
	spans, ok := idx.ticks[symbol]
	if !ok || len(spans) == 0 {
		return nil, fmt.Errorf("%w: no tick files for %s", apperrors.ErrUnknownSymbol, symbol)
	}
	var out []FileSpan
	for _, span := range spans {
		if span.Overlaps(t0, t1) {
			out = append(out, span)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s has no ticks in [%s, %s]",
			apperrors.ErrDataCoverage, symbol, t0.Format(time.RFC3339), t1.Format(time.RFC3339))
	}
	return out, nil
}

// BarFile returns the single bar file of a symbol/timeframe.
func (idx *Index) BarFile(symbol string, tf core.Timeframe) (FileSpan, error) {
	byTF, ok := idx.bars[symbol]
	if !ok {
		return FileSpan{}, fmt.Errorf("%w: no bar files for %s", apperrors.ErrUnknownSymbol, symbol)
	}
	span, ok := byTF[string(tf)]
	if !ok {
		return FileSpan{}, fmt.Errorf("%w: %s has no %s bar file", apperrors.ErrDataCoverage, symbol, tf)
	}
	return span, nil
}

// TickSymbols returns the indexed symbols sorted ascending.
func (idx *Index) TickSymbols() []string {
	symbols := make([]string, 0, len(idx.ticks))
	for sym := range idx.ticks {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// TickSpans returns the indexed spans of one symbol.
func (idx *Index) TickSpans(symbol string) []FileSpan { return idx.ticks[symbol] }

// BarSpans returns the indexed bar files of one symbol keyed by timeframe.
func (idx *Index) BarSpans(symbol string) map[string]FileSpan { return idx.bars[symbol] }
