package strategy

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
)

// Strategy turns a bar series into an annotated signal series.
// Run must be a pure function of its inputs and must not modify bars.
type Strategy interface {
	Name() string
	Run(bars []types.Bar, params types.ParameterSet) ([]types.AnnotatedBar, error)
}

// OpenEnded is implemented by strategies that can annotate a live series whose final
// session has not ended yet. interval is the bar width used to decide whether the
// final bar closes its session.
type OpenEnded interface {
	RunOpenEnded(bars []types.Bar, params types.ParameterSet, interval time.Duration) ([]types.AnnotatedBar, error)
}

// Constructor builds a strategy for an instrument.
type Constructor func(instrument types.Instrument) (Strategy, error)

// Registry maps strategy identifiers to constructors. Identifiers are case-insensitive.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
	}
}

// DefaultRegistry returns a registry with the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	// both names are unique, registration cannot fail
	_ = r.Register(DefaultStrategyName, NewMACrossover)
	_ = r.Register(MACrossoverName, NewMACrossover)

	return r
}

// Register adds a constructor under name.
func (r *Registry) Register(name string, constructor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(name)
	if _, exists := r.constructors[key]; exists {
		return errors.Newf(errors.ErrCodeStrategyAlreadyRegistered, "strategy %s already registered", name)
	}

	r.constructors[key] = constructor

	return nil
}

// Create builds the strategy registered under name.
func (r *Registry) Create(name string, instrument types.Instrument) (Strategy, error) {
	r.mu.RLock()
	constructor, exists := r.constructors[strings.ToLower(name)]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrCodeStrategyNotFound, "unknown strategy: %s", name)
	}

	return constructor(instrument)
}

// List returns all registered identifiers in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}
