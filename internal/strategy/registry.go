package strategy

import (
	"fmt"

	"finiex/internal/core"
)

// Factory builds a decision logic from its scenario parameter map.
type Factory func(params map[string]any) (core.DecisionLogic, error)

var registry = map[string]Factory{
	"CORE/simple_consensus": NewSimpleConsensus,
}

// Register adds a decision logic factory. Re-registering a type id
// replaces it.
func Register(typeID string, factory Factory) {
	registry[typeID] = factory
}

// Build instantiates a decision logic by type id.
func Build(typeID string, params map[string]any) (core.DecisionLogic, error) {
	factory, ok := registry[typeID]
	if !ok {
		return nil, fmt.Errorf("unknown decision logic type %q", typeID)
	}
	logic, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("failed to build decision logic %s: %w", typeID, err)
	}
	return logic, nil
}
