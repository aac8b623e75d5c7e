package backtest

import (
	"iter"
	"math"
	"math/bits"
	"slices"

	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
)

// DefaultMaxCombinations caps a sweep when no ceiling is configured.
const DefaultMaxCombinations uint64 = 1_000_000

// Range is an inclusive integer range of one parameter.
type Range struct {
	Min int `yaml:"min" json:"min" jsonschema:"title=Minimum value"`
	Max int `yaml:"max" json:"max" jsonschema:"title=Maximum value (inclusive)"`
}

// Len returns the number of values in the range.
func (r Range) Len() uint64 {
	if r.Max < r.Min {
		return 0
	}

	return uint64(int64(r.Max)-int64(r.Min)) + 1
}

// Grid is the cartesian product of named parameter ranges.
type Grid struct {
	Ranges map[string]Range
}

// NewGrid checks the ranges and returns a grid over them.
func NewGrid(ranges map[string]Range) (Grid, error) {
	if len(ranges) == 0 {
		return Grid{}, errors.New(errors.ErrCodeInvalidParameter, "parameter grid is empty")
	}

	copied := make(map[string]Range, len(ranges))

	for name, r := range ranges {
		if r.Max < r.Min {
			return Grid{}, errors.Newf(errors.ErrCodeInvalidParameter, "range %s has max %d below min %d", name, r.Max, r.Min)
		}

		copied[name] = r
	}

	return Grid{Ranges: copied}, nil
}

// Names returns the parameter names in enumeration order.
func (g Grid) Names() []string {
	names := make([]string, 0, len(g.Ranges))
	for name := range g.Ranges {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Size returns the number of combinations. ok is false when the product overflows uint64.
func (g Grid) Size() (size uint64, ok bool) {
	if len(g.Ranges) == 0 {
		return 0, true
	}

	size = 1

	for _, r := range g.Ranges {
		hi, lo := bits.Mul64(size, r.Len())
		if hi != 0 {
			return math.MaxUint64, false
		}

		size = lo
	}

	return size, true
}

// Validate rejects grids larger than maxCombinations before anything runs.
func (g Grid) Validate(maxCombinations uint64) error {
	if len(g.Ranges) == 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "parameter grid is empty")
	}

	size, ok := g.Size()
	if !ok {
		return errors.Newf(errors.ErrCodeGridTooLarge, "parameter grid overflows, ceiling is %d", maxCombinations)
	}

	if size > maxCombinations {
		return errors.Newf(errors.ErrCodeGridTooLarge, "parameter grid has %d combinations, ceiling is %d", size, maxCombinations)
	}

	return nil
}

// All yields every combination applied on top of base, with its index. Names are sorted
// and the last name varies fastest. Base values not in the grid are carried unchanged.
func (g Grid) All(base types.ParameterSet) iter.Seq2[int, types.ParameterSet] {
	return func(yield func(int, types.ParameterSet) bool) {
		names := g.Names()
		if len(names) == 0 {
			return
		}

		for _, name := range names {
			if g.Ranges[name].Len() == 0 {
				return
			}
		}

		current := make(map[string]int, len(names))
		for _, name := range names {
			current[name] = g.Ranges[name].Min
		}

		for index := 0; ; index++ {
			params := base
			for _, name := range names {
				params = params.With(name, current[name])
			}

			if !yield(index, params) {
				return
			}

			// odometer step from the last name
			pos := len(names) - 1
			for ; pos >= 0; pos-- {
				name := names[pos]
				if current[name] < g.Ranges[name].Max {
					current[name]++

					break
				}

				current[name] = g.Ranges[name].Min
			}

			if pos < 0 {
				return
			}
		}
	}
}
