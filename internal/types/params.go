package types

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Well-known strategy parameter names.
const (
	ParamStop   = "stop"
	ParamFastMA = "fast_ma"
	ParamSlowMA = "slow_ma"
)

// TradingHours is the half-open local hour window [Start, End) in which signals are allowed.
type TradingHours struct {
	Start int `yaml:"start" json:"start" validate:"gte=0,lte=24"`
	End   int `yaml:"end" json:"end" validate:"gte=0,lte=24"`
}

// Contains reports whether hour falls inside the window.
func (h TradingHours) Contains(hour int) bool {
	return hour >= h.Start && hour < h.End
}

// ParameterSet is one immutable combination of strategy hyperparameters.
type ParameterSet struct {
	Values       map[string]int
	TradingHours TradingHours
}

// NewParameterSet copies values into a new ParameterSet.
func NewParameterSet(values map[string]int, hours TradingHours) ParameterSet {
	return ParameterSet{
		Values:       maps.Clone(values),
		TradingHours: hours,
	}
}

// Int returns the named value and whether it is present.
func (p ParameterSet) Int(name string) (int, bool) {
	v, ok := p.Values[name]

	return v, ok
}

// With returns a copy with name set to value.
func (p ParameterSet) With(name string, value int) ParameterSet {
	out := p.Clone()
	if out.Values == nil {
		out.Values = make(map[string]int, 1)
	}

	out.Values[name] = value

	return out
}

// Clone returns a deep copy.
func (p ParameterSet) Clone() ParameterSet {
	return ParameterSet{
		Values:       maps.Clone(p.Values),
		TradingHours: p.TradingHours,
	}
}

// Names returns the parameter names in sorted order.
func (p ParameterSet) Names() []string {
	return slices.Sorted(maps.Keys(p.Values))
}

// Key renders the set as "fast_ma=5,slow_ma=30,stop=20,hours=0-22".
func (p ParameterSet) Key() string {
	var sb strings.Builder

	for _, name := range p.Names() {
		fmt.Fprintf(&sb, "%s=%d,", name, p.Values[name])
	}

	fmt.Fprintf(&sb, "hours=%d-%d", p.TradingHours.Start, p.TradingHours.End)

	return sb.String()
}
