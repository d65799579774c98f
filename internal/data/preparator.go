package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"finiex/internal/config"
	"finiex/internal/core"
	apperrors "finiex/pkg/errors"
)

// ProcessDataPackage is the immutable per-scenario payload handed to the
// scenario runner: the exact tick slice, the warmup bars per timeframe and
// the raw broker spec. Packages are never shared between scenarios.
type ProcessDataPackage struct {
	ScenarioIndex int
	Symbol        string
	Ticks         []core.Tick
	WarmupBars    core.BarHistorySet
	BrokerConfig  json.RawMessage
	Warnings      []string
}

// PreparePhase names one data preparation step for progress reporting.
type PreparePhase string

const (
	PhaseCoverage PreparePhase = "coverage"
	PhaseTickData PreparePhase = "tick_data"
	PhaseBarData  PreparePhase = "bar_data"
)

// Preparator loads and normalizes the data payloads for a scenario set.
// All disk I/O of a scenario happens here, before its tick loop starts.
type Preparator struct {
	index     *Index
	brokerDir string
	collector string
	logger    core.Logger

	// PhaseHook, when set, is called as each preparation phase of a
	// scenario begins.
	PhaseHook func(scenarioIndex int, phase PreparePhase)

	// warmupStrictness is the fraction of the requested warmup below
	// which preparation fails instead of warning.
	warmupStrictness float64
}

// NewPreparator creates a preparator over an opened index.
func NewPreparator(index *Index, brokerDir, collector string, warmupStrictness float64, logger core.Logger) *Preparator {
	if warmupStrictness <= 0 || warmupStrictness > 1 {
		warmupStrictness = 0.8
	}
	return &Preparator{
		index:            index,
		brokerDir:        brokerDir,
		collector:        collector,
		logger:           logger.WithField("component", "preparator"),
		warmupStrictness: warmupStrictness,
	}
}

// Prepare builds the data package of one scenario.
func (p *Preparator) Prepare(sc *config.Scenario, scenarioIndex int, reqs RequirementsMap) (*ProcessDataPackage, error) {
	p.notify(scenarioIndex, PhaseCoverage)
	spans, err := p.resolveSpans(sc)
	if err != nil {
		return nil, err
	}

	p.notify(scenarioIndex, PhaseTickData)
	ticks, err := p.loadTicks(sc, spans)
	if err != nil {
		return nil, err
	}

	pkg := &ProcessDataPackage{
		ScenarioIndex: scenarioIndex,
		Symbol:        sc.Symbol,
		Ticks:         ticks,
	}

	p.notify(scenarioIndex, PhaseBarData)
	pkg.WarmupBars = make(core.BarHistorySet)
	for _, br := range reqs.BarsFor(scenarioIndex) {
		bars, warning, err := p.loadWarmup(br)
		if err != nil {
			return nil, err
		}
		pkg.WarmupBars[br.Timeframe] = bars
		if warning != "" {
			pkg.Warnings = append(pkg.Warnings, warning)
		}
	}

	raw, err := p.loadBrokerConfig(sc.BrokerType)
	if err != nil {
		return nil, err
	}
	pkg.BrokerConfig = raw

	p.logger.Debug("Scenario data prepared",
		"scenario", sc.Name, "ticks", len(pkg.Ticks), "warnings", len(pkg.Warnings))
	return pkg, nil
}

func (p *Preparator) notify(scenarioIndex int, phase PreparePhase) {
	if p.PhaseHook != nil {
		p.PhaseHook(scenarioIndex, phase)
	}
}

// resolveSpans finds the tick files overlapping the scenario range.
func (p *Preparator) resolveSpans(sc *config.Scenario) ([]FileSpan, error) {
	end := sc.EndTime
	if end.IsZero() {
		// max_ticks mode: overlap query is open-ended.
		end = sc.StartTime.AddDate(10, 0, 0)
	}
	return p.index.FilesForRange(sc.Symbol, sc.StartTime, end)
}

// loadTicks reads the overlapping tick files, normalizes to UTC, sorts
// stably, deduplicates by (time_msc, bid, ask) keeping the last entry and
// clips to the scenario range or tick limit.
func (p *Preparator) loadTicks(sc *config.Scenario, spans []FileSpan) ([]core.Tick, error) {
	var ticks []core.Tick
	for _, span := range spans {
		rows, err := ReadTickFile(span.Path)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, rows...)
	}
	for i := range ticks {
		ticks[i].Timestamp = ticks[i].Timestamp.UTC()
	}
	sort.SliceStable(ticks, func(i, j int) bool {
		return ticks[i].Timestamp.Before(ticks[j].Timestamp)
	})
	ticks = dedupeTicks(ticks)

	clipped := make([]core.Tick, 0, len(ticks))
	for _, t := range ticks {
		if t.Timestamp.Before(sc.StartTime) {
			continue
		}
		if !sc.EndTime.IsZero() && t.Timestamp.After(sc.EndTime) {
			break
		}
		clipped = append(clipped, t)
		if sc.MaxTicks > 0 && len(clipped) == sc.MaxTicks {
			break
		}
	}
	if len(clipped) == 0 {
		return nil, fmt.Errorf("%w: %s has no ticks in scenario range", apperrors.ErrDataCoverage, sc.Symbol)
	}
	if err := checkMonotonic(clipped); err != nil {
		return nil, err
	}
	return clipped, nil
}

// dedupeTicks drops ticks whose (time_msc, bid, ask) recurs later in the
// same millisecond, keeping the last occurrence. Input must be sorted by
// timestamp, so equal-key candidates are confined to one millisecond run.
func dedupeTicks(ticks []core.Tick) []core.Tick {
	if len(ticks) < 2 {
		return ticks
	}
	out := make([]core.Tick, 0, len(ticks))
	for start := 0; start < len(ticks); {
		end := start
		for end < len(ticks) && ticks[end].TimeMsc == ticks[start].TimeMsc {
			end++
		}
		for i := start; i < end; i++ {
			duplicated := false
			for j := i + 1; j < end; j++ {
				if ticks[i].Bid.Equal(ticks[j].Bid) && ticks[i].Ask.Equal(ticks[j].Ask) {
					duplicated = true
					break
				}
			}
			if !duplicated {
				out = append(out, ticks[i])
			}
		}
		start = end
	}
	return out
}

func checkMonotonic(ticks []core.Tick) error {
	for i := 1; i < len(ticks); i++ {
		if ticks[i].Timestamp.Before(ticks[i-1].Timestamp) {
			return fmt.Errorf("%w: tick %d at %s precedes tick %d at %s",
				apperrors.ErrNonMonotonicTicks,
				i, ticks[i].Timestamp.Format(time.RFC3339Nano),
				i-1, ticks[i-1].Timestamp.Format(time.RFC3339Nano))
		}
	}
	return nil
}

// loadWarmup selects the last WarmupBars bars strictly before the
// scenario start. A shortfall above the strictness threshold is returned
// as a warning; below it preparation fails.
func (p *Preparator) loadWarmup(br BarRequirement) ([]core.Bar, string, error) {
	span, err := p.index.BarFile(br.Symbol, br.Timeframe)
	if err != nil {
		return nil, "", err
	}
	bars, err := ReadBarFile(span.Path)
	if err != nil {
		return nil, "", err
	}

	cut := sort.Search(len(bars), func(i int) bool {
		return !bars[i].Timestamp.Before(br.Before)
	})
	available := bars[:cut]
	if len(available) >= br.WarmupBars {
		start := len(available) - br.WarmupBars
		out := make([]core.Bar, br.WarmupBars)
		copy(out, available[start:])
		return out, "", nil
	}

	got := len(available)
	minimum := int(float64(br.WarmupBars) * p.warmupStrictness)
	if got < minimum {
		return nil, "", fmt.Errorf("%w: %s %s has %d of %d requested bars before %s",
			apperrors.ErrInsufficientWarmup, br.Symbol, br.Timeframe, got, br.WarmupBars,
			br.Before.Format(time.RFC3339))
	}
	warning := fmt.Sprintf("insufficient warmup: %s %s has %d of %d requested bars",
		br.Symbol, br.Timeframe, got, br.WarmupBars)
	out := make([]core.Bar, got)
	copy(out, available)
	return out, warning, nil
}

// loadBrokerConfig reads the raw broker spec JSON. The runner parses it;
// the package carries bytes so payloads stay serialization-stable.
func (p *Preparator) loadBrokerConfig(brokerType string) (json.RawMessage, error) {
	path := filepath.Join(p.brokerDir, p.collector, brokerType+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read broker config %s: %w", path, err)
	}
	return raw, nil
}
