package workers

import (
	"fmt"
	"sort"

	"finiex/internal/core"
)

// Factory builds a worker from its scenario parameter map.
type Factory func(params map[string]any) (core.Worker, error)

// Static registry mapping worker type identifiers to constructors. No
// runtime introspection: unknown types fail scenario validation.
var registry = map[string]Factory{
	"CORE/rsi":      NewRSIWorker,
	"CORE/envelope": NewEnvelopeWorker,
}

// Register adds a worker factory. Intended for tests and extensions;
// re-registering a type id replaces it.
func Register(typeID string, factory Factory) {
	registry[typeID] = factory
}

// Build instantiates a single worker by type id.
func Build(typeID string, params map[string]any) (core.Worker, error) {
	factory, ok := registry[typeID]
	if !ok {
		return nil, fmt.Errorf("unknown worker type %q", typeID)
	}
	return factory(params)
}

// BuildAll instantiates every worker of a strategy config in
// deterministic (sorted type id) order.
func BuildAll(workerConfigs map[string]map[string]any) ([]core.Worker, error) {
	typeIDs := make([]string, 0, len(workerConfigs))
	for typeID := range workerConfigs {
		typeIDs = append(typeIDs, typeID)
	}
	sort.Strings(typeIDs)

	built := make([]core.Worker, 0, len(typeIDs))
	for _, typeID := range typeIDs {
		w, err := Build(typeID, workerConfigs[typeID])
		if err != nil {
			return nil, fmt.Errorf("failed to build worker %s: %w", typeID, err)
		}
		built = append(built, w)
	}
	return built, nil
}

// RequiredTimeframes returns the union of timeframes the workers need,
// sorted ascending.
func RequiredTimeframes(workers []core.Worker) []core.Timeframe {
	seen := make(map[core.Timeframe]bool)
	var tfs []core.Timeframe
	for _, w := range workers {
		for _, tf := range w.RequiredTimeframes() {
			if !seen[tf] {
				seen[tf] = true
				tfs = append(tfs, tf)
			}
		}
	}
	return core.SortTimeframes(tfs)
}

// MaxWarmup computes the per-timeframe maximum warmup requirement across
// workers.
func MaxWarmup(workers []core.Worker) map[core.Timeframe]int {
	warmup := make(map[core.Timeframe]int)
	for _, w := range workers {
		for _, tf := range w.RequiredTimeframes() {
			if n := w.WarmupBars(tf); n > warmup[tf] {
				warmup[tf] = n
			}
		}
	}
	return warmup
}
