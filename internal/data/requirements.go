package data

import (
	"fmt"
	"time"

	"finiex/internal/config"
	"finiex/internal/core"
	"finiex/internal/workers"
)

// TickRequirement is one scenario's tick range need.
type TickRequirement struct {
	ScenarioIndex int
	Symbol        string
	StartTime     time.Time
	EndTime       time.Time // zero in max_ticks mode
	MaxTicks      int
}

// BarRequirement is one scenario's warmup need on one timeframe.
type BarRequirement struct {
	ScenarioIndex int
	Symbol        string
	Timeframe     core.Timeframe
	WarmupBars    int
	Before        time.Time
}

// RequirementsMap aggregates the data needs of a scenario set. Every
// scenario keeps its own entries; payloads are scenario-scoped, so there
// is no cross-scenario deduplication.
type RequirementsMap struct {
	TickRequirements []TickRequirement
	BarRequirements  []BarRequirement
}

// BarsFor returns the bar requirements of one scenario.
func (r RequirementsMap) BarsFor(scenarioIndex int) []BarRequirement {
	var out []BarRequirement
	for _, br := range r.BarRequirements {
		if br.ScenarioIndex == scenarioIndex {
			out = append(out, br)
		}
	}
	return out
}

// TicksFor returns the tick requirement of one scenario.
func (r RequirementsMap) TicksFor(scenarioIndex int) (TickRequirement, bool) {
	for _, tr := range r.TickRequirements {
		if tr.ScenarioIndex == scenarioIndex {
			return tr, true
		}
	}
	return TickRequirement{}, false
}

// CollectRequirements instantiates each scenario's workers without data to
// query their timeframes and warmup needs, and aggregates the per-timeframe
// maximum across workers.
func CollectRequirements(set *config.ScenarioSet) (RequirementsMap, error) {
	var reqs RequirementsMap
	for i := range set.Scenarios {
		sc := &set.Scenarios[i]
		built, err := workers.BuildAll(sc.Merged.Workers)
		if err != nil {
			return RequirementsMap{}, fmt.Errorf("scenario %s: %w", sc.Name, err)
		}

		reqs.TickRequirements = append(reqs.TickRequirements, TickRequirement{
			ScenarioIndex: i,
			Symbol:        sc.Symbol,
			StartTime:     sc.StartTime,
			EndTime:       sc.EndTime,
			MaxTicks:      sc.MaxTicks,
		})

		warmup := workers.MaxWarmup(built)
		for _, tf := range workers.RequiredTimeframes(built) {
			reqs.BarRequirements = append(reqs.BarRequirements, BarRequirement{
				ScenarioIndex: i,
				Symbol:        sc.Symbol,
				Timeframe:     tf,
				WarmupBars:    warmup[tf],
				Before:        sc.StartTime,
			})
		}
	}
	return reqs, nil
}
